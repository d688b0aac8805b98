// Package pagination encodes opaque continuation tokens and slices result
// lists into pages.
package pagination

import (
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
)

// ErrInvalidCursor marks a token that could not be decoded or belongs to a
// different feed. It is a client error, distinct from an exhausted feed.
var ErrInvalidCursor = errors.New("invalid cursor")

const (
	kindChrono = "c"
	kindRanked = "r"
)

// Chrono is a chronological keyset position: the last served item's
// creation time and id.
type Chrono struct {
	Timestamp time.Time
	TweetID   string
}

// Equal compares instants rather than time.Time representations.
func (c Chrono) Equal(o Chrono) bool {
	return c.TweetID == o.TweetID && c.Timestamp.Equal(o.Timestamp)
}

// Ranked is a position in a personalized ranked session. Base is the
// persisted position when the session started; Position is how far the
// user has read.
type Ranked struct {
	Base     int64
	Position int64
}

// Offset is the index into the session's ranked list.
func (r Ranked) Offset() int64 { return r.Position - r.Base }

type token struct {
	Kind string `json:"k"`
	TS   int64  `json:"ts,omitempty"`
	ID   string `json:"id,omitempty"`
	Base int64  `json:"b,omitempty"`
	Pos  int64  `json:"p,omitempty"`
}

func encode(t token) string {
	b, err := json.Marshal(t)
	if err != nil {
		// token has only scalar fields
		panic(err)
	}
	return base64.RawURLEncoding.EncodeToString(b)
}

func decode(s, kind string) (token, error) {
	var t token
	if s == "" {
		return t, fmt.Errorf("%w: empty token", ErrInvalidCursor)
	}
	b, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return t, fmt.Errorf("%w: invalid base64 encoding: %v", ErrInvalidCursor, err)
	}
	if err := json.Unmarshal(b, &t); err != nil {
		return t, fmt.Errorf("%w: invalid cursor JSON: %v", ErrInvalidCursor, err)
	}
	if t.Kind != kind {
		return t, fmt.Errorf("%w: token belongs to another feed", ErrInvalidCursor)
	}
	return t, nil
}

// EncodeChrono returns the opaque token for c.
func EncodeChrono(c Chrono) string {
	return encode(token{Kind: kindChrono, TS: c.Timestamp.UnixNano(), ID: c.TweetID})
}

// DecodeChrono parses a token produced by EncodeChrono.
func DecodeChrono(s string) (Chrono, error) {
	t, err := decode(s, kindChrono)
	if err != nil {
		return Chrono{}, err
	}
	if t.ID == "" || t.TS <= 0 {
		return Chrono{}, fmt.Errorf("%w: missing position", ErrInvalidCursor)
	}
	return Chrono{Timestamp: time.Unix(0, t.TS).UTC(), TweetID: t.ID}, nil
}

// EncodeRanked returns the opaque token for r.
func EncodeRanked(r Ranked) string {
	return encode(token{Kind: kindRanked, Base: r.Base, Pos: r.Position})
}

// DecodeRanked parses a token produced by EncodeRanked.
func DecodeRanked(s string) (Ranked, error) {
	t, err := decode(s, kindRanked)
	if err != nil {
		return Ranked{}, err
	}
	if t.Base < 0 || t.Pos < t.Base {
		return Ranked{}, fmt.Errorf("%w: position out of range", ErrInvalidCursor)
	}
	return Ranked{Base: t.Base, Position: t.Pos}, nil
}
