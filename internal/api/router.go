// Package api exposes the feeds over HTTP.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"

	"skyfeed/internal/config"
	"skyfeed/internal/logging"
	"skyfeed/internal/metrics"
	"skyfeed/internal/model"
	"skyfeed/internal/timeline"
)

// Feeds is the timeline surface the handlers serve.
type Feeds interface {
	ForYou(ctx context.Context, userID, cursor string, limit int) (timeline.Page, error)
	Following(ctx context.Context, userID, cursor string, limit int) (timeline.Page, error)
	Trending(ctx context.Context, category model.Category, limit int) (timeline.Page, error)
}

// Pinger reports backing store health.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Handler struct {
	feeds    Feeds
	health   Pinger
	validate *validator.Validate
	maxLimit int
}

// NewRouter builds the HTTP handler tree.
func NewRouter(cfg config.ServerConfig, maxLimit int, feeds Feeds, health Pinger) http.Handler {
	h := &Handler{feeds: feeds, health: health, validate: validator.New(validator.WithRequiredStructEnabled()), maxLimit: maxLimit}

	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(requestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.CORSOrigins,
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "Authorization", "X-Request-ID", "X-User-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         86400,
	}))

	r.Get("/health", h.handleHealth)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		if cfg.RateLimitReqs > 0 {
			window := cfg.RateLimitWindow
			if window <= 0 {
				window = time.Minute
			}
			r.Use(httprate.Limit(cfg.RateLimitReqs, window,
				httprate.WithKeyFuncs(httprate.KeyByIP),
				httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
					respondError(w, r, http.StatusTooManyRequests, "RATE_LIMITED", "too many requests")
				}),
			))
		}
		if cfg.RequestTimeout > 0 {
			r.Use(chimiddleware.Timeout(cfg.RequestTimeout))
		}
		r.Get("/timeline/for-you", h.handleForYou)
		r.Get("/timeline/following", h.handleFollowing)
		r.Get("/trending", h.handleTrending)
	})
	return r
}

// requestID propagates or assigns an X-Request-ID and tags the request
// context with it.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" || len(id) > 128 {
			id = logging.GenerateRequestID()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(logging.ContextWithRequestID(r.Context(), id)))
	})
}
