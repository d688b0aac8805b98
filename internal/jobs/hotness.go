// Package jobs holds periodic background work.
package jobs

import (
	"context"
	"time"

	"skyfeed/internal/logging"
	"skyfeed/internal/metrics"
)

// Sweeper recomputes every live hotness score.
type Sweeper interface {
	Sweep(ctx context.Context) (int, error)
}

// RunHotnessSweepOnce runs one sweep and records its outcome.
func RunHotnessSweepOnce(ctx context.Context, s Sweeper) error {
	start := time.Now()
	metrics.SweepRuns.Inc()
	n, err := s.Sweep(ctx)
	metrics.ObserveSweepDuration(start)
	if err != nil {
		metrics.SweepErrors.Inc()
		return err
	}
	logging.Info("hotness_sweep", map[string]any{"recomputed": n, "duration_ms": time.Since(start).Milliseconds()})
	return nil
}

// RunHotnessSweepLoop runs RunHotnessSweepOnce on a ticker until ctx is cancelled.
func RunHotnessSweepLoop(ctx context.Context, s Sweeper, interval time.Duration) error {
	t := time.NewTicker(interval)
	defer t.Stop()
	// run immediately
	if err := RunHotnessSweepOnce(ctx, s); err != nil && ctx.Err() == nil {
		logging.Error("hotness_sweep_error", map[string]any{"error": err.Error()})
	}
	for {
		select {
		case <-ctx.Done():
			logging.Info("hotness_sweep_loop_stop", nil)
			return ctx.Err()
		case <-t.C:
			if err := RunHotnessSweepOnce(ctx, s); err != nil && ctx.Err() == nil {
				logging.Error("hotness_sweep_error", map[string]any{"error": err.Error()})
			}
		}
	}
}

// SweepService adapts the loop to a supervised service.
type SweepService struct {
	Sweeper  Sweeper
	Interval time.Duration
}

func (s SweepService) Serve(ctx context.Context) error {
	return RunHotnessSweepLoop(ctx, s.Sweeper, s.Interval)
}

func (s SweepService) String() string { return "hotness-sweep" }
