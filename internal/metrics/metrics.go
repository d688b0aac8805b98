package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RankRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "skyfeed_rank_requests_total",
		Help: "Total timeline requests by feed",
	}, []string{"feed"})
	RankDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "skyfeed_rank_duration_seconds",
		Help:    "Timeline request duration seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"feed"})
	Candidates = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "skyfeed_candidates_total",
		Help: "Candidates returned per source",
	}, []string{"source"})
	SourceErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "skyfeed_candidate_source_errors_total",
		Help: "Candidate source failures (including open breakers and timeouts)",
	}, []string{"source"})
	NonFinite = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "skyfeed_nonfinite_values_total",
		Help: "NaN/Inf values clamped or skipped during scoring",
	}, []string{"stage"})
	HotnessRecomputed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "skyfeed_hotness_recomputed_total",
		Help: "Tweets whose hotness was recomputed",
	})
	HotnessDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "skyfeed_hotness_queue_dropped_total",
		Help: "Recompute requests dropped because the queue was full",
	})
	SweepRuns = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "skyfeed_hotness_sweep_runs_total",
		Help: "Total hotness sweep runs",
	})
	SweepErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "skyfeed_hotness_sweep_errors_total",
		Help: "Total hotness sweep errors",
	})
	SweepDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "skyfeed_hotness_sweep_duration_seconds",
		Help:    "Hotness sweep duration seconds",
		Buckets: prometheus.DefBuckets,
	})
	CursorConflicts = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "skyfeed_cursor_conflicts_total",
		Help: "Timeline cursor advances rejected because a newer position was stored",
	})
	EngagementEvents = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "skyfeed_engagement_events_total",
		Help: "Engagement events applied by kind",
	}, []string{"kind"})
	APIRetries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "skyfeed_search_retries_total",
		Help: "Total search API retry attempts",
	}, []string{"endpoint"})
	CommandRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "skyfeed_command_runs_total",
		Help: "CLI command runs",
	}, []string{"command"})
	CommandErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "skyfeed_command_errors_total",
		Help: "CLI command errors",
	}, []string{"command"})
)

func init() {
	prometheus.MustRegister(
		RankRequests, RankDuration, Candidates, SourceErrors, NonFinite,
		HotnessRecomputed, HotnessDropped, SweepRuns, SweepErrors, SweepDuration,
		CursorConflicts, EngagementEvents, APIRetries, CommandRuns, CommandErrors,
	)
}

// Handler exposes the default registry.
func Handler() http.Handler { return promhttp.Handler() }

// ObserveRank records one timeline request.
func ObserveRank(feed string, start time.Time) {
	RankRequests.WithLabelValues(feed).Inc()
	RankDuration.WithLabelValues(feed).Observe(time.Since(start).Seconds())
}

// ObserveSweepDuration records a sweep duration.
func ObserveSweepDuration(start time.Time) { SweepDuration.Observe(time.Since(start).Seconds()) }

// IncAPIRetry increments the retry counter for an endpoint.
func IncAPIRetry(endpoint string) { APIRetries.WithLabelValues(endpoint).Inc() }

func IncCommandRun(cmd string)   { CommandRuns.WithLabelValues(cmd).Inc() }
func IncCommandError(cmd string) { CommandErrors.WithLabelValues(cmd).Inc() }
