// Package api exposes collection and catalog queries over HTTP.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/sells-group/grants-cli/internal/collector"
	"github.com/sells-group/grants-cli/internal/store"
	"github.com/sells-group/grants-cli/internal/tracing"
)

// Runner performs one collection pass.
type Runner interface {
	Run(ctx context.Context) *collector.Report
}

// Options configures the HTTP handlers.
type Options struct {
	// CollectTimeout bounds a POST /collect run. Zero uses 5 minutes.
	CollectTimeout time.Duration
	CORSOrigins    []string
	// OnReport is called after every POST /collect run.
	OnReport func(ctx context.Context, r *collector.Report)
	Now      func() time.Time
}

// Handler serves the grants API.
type Handler struct {
	store  store.Store
	runner Runner
	opts   Options
}

// NewHandler creates a Handler over st. runner may be nil, in which case
// POST /collect is not routed.
func NewHandler(st store.Store, runner Runner, opts Options) *Handler {
	if opts.CollectTimeout <= 0 {
		opts.CollectTimeout = 5 * time.Minute
	}
	if len(opts.CORSOrigins) == 0 {
		opts.CORSOrigins = []string{"*"}
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	return &Handler{store: st, runner: runner, opts: opts}
}

// Router returns the chi router with middleware and every route mounted.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(requestLogger)
	r.Use(chimw.Recoverer)
	r.Use(tracing.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: h.opts.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
		ExposedHeaders: []string{"X-Request-Id"},
		MaxAge:         300,
	}))

	r.Get("/health", h.Health)

	r.Route("/collect", func(r chi.Router) {
		if h.runner != nil {
			r.Post("/", h.Collect)
		}
		r.Get("/status", h.CollectStatus)
	})

	r.Route("/grants", func(r chi.Router) {
		r.Get("/", h.ListGrants)
		r.Get("/{id}", h.GetGrant)
	})

	return r
}
