// Package badgerstore keeps timeline cursors in an embedded Badger database
// for deployments that do not want cursor writes on the primary store.
package badgerstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"skyfeed/internal/model"
)

const cursorKeyPrefix = "cursor:"

// maxConflictRetries bounds retries when a concurrent transaction touched the
// same key between read and commit.
const maxConflictRetries = 5

// Store is a Badger-backed timeline cursor store.
type Store struct {
	db *badger.DB
}

// Open opens (or creates) a store at path. An empty path opens an
// in-memory store.
func Open(path string) (*Store, error) {
	opts := badger.DefaultOptions(path)
	if path == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger db for cursors: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

type record struct {
	LastTweetID  string `json:"last_tweet_id"`
	LastPosition int64  `json:"last_position"`
	UpdatedAt    int64  `json:"updated_at"`
}

func key(userID string) []byte { return []byte(cursorKeyPrefix + userID) }

func get(txn *badger.Txn, userID string) (record, bool, error) {
	var r record
	item, err := txn.Get(key(userID))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return r, false, nil
	}
	if err != nil {
		return r, false, err
	}
	err = item.Value(func(val []byte) error { return json.Unmarshal(val, &r) })
	return r, err == nil, err
}

// LoadTimelineCursor returns the stored cursor or a zero cursor.
func (s *Store) LoadTimelineCursor(_ context.Context, userID string) (model.TimelineCursor, error) {
	c := model.TimelineCursor{UserID: userID}
	err := s.db.View(func(txn *badger.Txn) error {
		r, ok, err := get(txn, userID)
		if err != nil || !ok {
			return err
		}
		c.LastTweetID = r.LastTweetID
		c.LastPosition = r.LastPosition
		c.UpdatedAt = time.UnixMicro(r.UpdatedAt).UTC()
		return nil
	})
	return c, err
}

// AdvanceTimelineCursor moves the cursor from expected to next when the
// stored position still equals expected. A missing cursor counts as 0.
func (s *Store) AdvanceTimelineCursor(ctx context.Context, userID string, expected, next int64, lastTweetID string) (bool, error) {
	if next < expected {
		return false, nil
	}
	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		applied := false
		err := s.db.Update(func(txn *badger.Txn) error {
			r, _, err := get(txn, userID)
			if err != nil {
				return err
			}
			if r.LastPosition != expected {
				return nil
			}
			b, err := json.Marshal(record{LastTweetID: lastTweetID, LastPosition: next, UpdatedAt: time.Now().UTC().UnixMicro()})
			if err != nil {
				return err
			}
			if err := txn.Set(key(userID), b); err != nil {
				return err
			}
			applied = true
			return nil
		})
		if errors.Is(err, badger.ErrConflict) {
			continue
		}
		if err != nil {
			return false, err
		}
		return applied, nil
	}
	return false, badger.ErrConflict
}
