package candidates

import (
	"context"
	"errors"
	"sync"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"skyfeed/internal/config"
	"skyfeed/internal/logging"
	"skyfeed/internal/metrics"
	"skyfeed/internal/model"
)

// Options bounds a gather.
type Options struct {
	// PerSource caps what each source is asked for.
	PerSource int
	// Max caps the merged result.
	Max int
	// Timeout bounds each source call.
	Timeout time.Duration
	// BreakerFailures consecutive failures open a source's breaker for
	// BreakerTimeout.
	BreakerFailures int
	BreakerTimeout  time.Duration
}

// OptionsFromConfig maps ranking configuration onto gather options.
func OptionsFromConfig(c config.RankingConfig) Options {
	return Options{
		PerSource:       c.SourceLimit,
		Max:             c.MaxCandidates,
		Timeout:         c.SourceTimeout,
		BreakerFailures: c.BreakerFailures,
		BreakerTimeout:  c.BreakerTimeout,
	}
}

type guarded struct {
	src Source
	cb  *gobreaker.CircuitBreaker[[]model.CandidateTweet]
}

// Gatherer fans out to every source concurrently and merges the results.
// A failing, slow or tripped source contributes nothing.
type Gatherer struct {
	sources []guarded
	opts    Options
}

func NewGatherer(opts Options, sources ...Source) *Gatherer {
	if opts.BreakerFailures <= 0 {
		opts.BreakerFailures = 5
	}
	g := &Gatherer{opts: opts}
	for _, s := range sources {
		name := string(s.Name())
		settings := gobreaker.Settings{
			Name:    name,
			Timeout: opts.BreakerTimeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= uint32(opts.BreakerFailures)
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				l := logging.WithComponent("candidates")
				l.Warn().Str("source", name).Str("from", from.String()).Str("to", to.String()).Msg("source breaker changed state")
			},
			// a viewer's own context ending is not the source's fault
			IsSuccessful: func(err error) bool {
				return err == nil || errors.Is(err, context.Canceled)
			},
		}
		g.sources = append(g.sources, guarded{src: s, cb: gobreaker.NewCircuitBreaker[[]model.CandidateTweet](settings)})
	}
	return g
}

// Gather returns live, distinct candidates in source registration order,
// then source order within each source. It never fails: source errors are
// logged and counted.
func (g *Gatherer) Gather(ctx context.Context, userID string) []model.CandidateTweet {
	results := make([][]model.CandidateTweet, len(g.sources))
	var wg sync.WaitGroup
	for i, s := range g.sources {
		wg.Add(1)
		go func(i int, s guarded) {
			defer wg.Done()
			results[i] = g.fetch(ctx, s, userID)
		}(i, s)
	}
	wg.Wait()

	limit := g.opts.Max
	seen := make(map[string]struct{})
	var out []model.CandidateTweet
	for _, rs := range results {
		for _, c := range rs {
			if c.Tweet.ID == "" || c.Tweet.Deleted() {
				continue
			}
			if _, dup := seen[c.Tweet.ID]; dup {
				continue
			}
			seen[c.Tweet.ID] = struct{}{}
			out = append(out, c)
			if limit > 0 && len(out) >= limit {
				return out
			}
		}
	}
	return out
}

func (g *Gatherer) fetch(ctx context.Context, s guarded, userID string) []model.CandidateTweet {
	name := string(s.src.Name())
	if g.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.opts.Timeout)
		defer cancel()
	}
	got, err := s.cb.Execute(func() ([]model.CandidateTweet, error) {
		return s.src.Candidates(ctx, userID, g.opts.PerSource)
	})
	if err != nil {
		metrics.SourceErrors.WithLabelValues(name).Inc()
		logging.Ctx(ctx).Warn().Err(err).Str("source", name).Msg("candidate source failed")
		return nil
	}
	if g.opts.PerSource > 0 && len(got) > g.opts.PerSource {
		got = got[:g.opts.PerSource]
	}
	metrics.Candidates.WithLabelValues(name).Add(float64(len(got)))
	return got
}
