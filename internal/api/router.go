// Package api serves the run log and reach provenance over HTTP.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/sells-group/sos-priors/internal/model"
	"github.com/sells-group/sos-priors/internal/monitoring"
	"github.com/sells-group/sos-priors/internal/store"
)

// Reader is the read side of store.Store the API needs.
type Reader interface {
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	ListRuns(ctx context.Context, filter store.RunFilter) ([]model.Run, error)
	LoadProvenance(ctx context.Context, reachID int64) (*model.ReachProvenance, error)
}

// Options configures optional routes and middleware.
type Options struct {
	AllowedOrigins []string
	// Gatherer backs /metrics. Nil leaves the route unmounted.
	Gatherer prometheus.Gatherer
	// Collector backs /status. Nil leaves the route unmounted.
	Collector     *monitoring.Collector
	LookbackHours int
}

type handlers struct {
	store     Reader
	collector *monitoring.Collector
	lookback  int
}

// NewRouter builds the HTTP handler.
func NewRouter(rd Reader, opts Options) http.Handler {
	h := &handlers{store: rd, collector: opts.Collector, lookback: opts.LookbackHours}
	if h.lookback <= 0 {
		h.lookback = 24
	}

	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", h.health)
	r.Get("/runs", h.listRuns)
	r.Get("/runs/{id}", h.getRun)
	r.Get("/reaches/{reachID}/provenance", h.getProvenance)
	if opts.Collector != nil {
		r.Get("/status", h.status)
	}
	if opts.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))
	}
	return r
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		zap.L().Debug("api: request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}
