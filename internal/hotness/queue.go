package hotness

import (
	"context"
	"sync"
	"time"

	"github.com/bits-and-blooms/bloom/v3"

	"skyfeed/internal/logging"
	"skyfeed/internal/metrics"
)

// OneRecomputer recomputes a single tweet.
type OneRecomputer interface {
	RecomputeOne(ctx context.Context, id string) error
}

type queued struct {
	id  string
	due time.Time
}

// Queue schedules recomputations off the request path. Repeated enqueues of
// the same id within one coalesce window collapse into a single recompute
// that runs after the window closes, so it observes every counter change
// made during the window. Bloom false positives can skip an id until the
// next sweep.
type Queue struct {
	rec      OneRecomputer
	ch       chan queued
	coalesce time.Duration
	timeout  time.Duration

	mu      sync.Mutex
	seen    *bloom.BloomFilter
	resetAt time.Time
	now     func() time.Time
}

// NewQueue returns a queue holding up to size pending ids.
func NewQueue(rec OneRecomputer, size int, coalesce time.Duration) *Queue {
	if size <= 0 {
		size = 1024
	}
	return &Queue{
		rec:      rec,
		ch:       make(chan queued, size),
		coalesce: coalesce,
		timeout:  5 * time.Second,
		seen:     bloom.NewWithEstimates(uint(size)*4, 0.001),
		now:      time.Now,
	}
}

// Enqueue schedules id without blocking. It returns false when the id was
// coalesced into a pending recompute or the queue is full.
func (q *Queue) Enqueue(id string) bool {
	now := q.now()
	q.mu.Lock()
	if !now.Before(q.resetAt) {
		q.seen.ClearAll()
		q.resetAt = now.Add(q.coalesce)
	}
	dup := q.coalesce > 0 && q.seen.TestAndAddString(id)
	q.mu.Unlock()
	if dup {
		return false
	}
	select {
	case q.ch <- queued{id: id, due: now.Add(q.coalesce)}:
		return true
	default:
		metrics.HotnessDropped.Inc()
		return false
	}
}

// Len is the number of ids waiting.
func (q *Queue) Len() int { return len(q.ch) }

// Serve drains the queue until ctx is cancelled.
func (q *Queue) Serve(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case it := <-q.ch:
			if wait := it.due.Sub(q.now()); wait > 0 {
				t := time.NewTimer(wait)
				select {
				case <-ctx.Done():
					t.Stop()
					return ctx.Err()
				case <-t.C:
				}
			}
			rctx, cancel := context.WithTimeout(ctx, q.timeout)
			if err := q.rec.RecomputeOne(rctx, it.id); err != nil {
				logging.Warn("hotness_recompute_failed", map[string]any{"tweet_id": it.id, "error": err.Error()})
			}
			cancel()
		}
	}
}

func (q *Queue) String() string { return "hotness-queue" }
