// Package httpapi assembles the public HTTP surface: the authenticated
// application API, health and Prometheus metrics.
package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"creditengine/internal/platform/metrics"
	"creditengine/internal/platform/middleware"
	"creditengine/pkg/platform/httputil"
)

const healthTimeout = 3 * time.Second

// Routes registers a module's endpoints on an authenticated sub-router.
type Routes interface {
	Register(r chi.Router)
}

// Check reports whether a dependency is reachable.
type Check func(ctx context.Context) error

type Config struct {
	Validator middleware.JWTValidator
	Logger    *slog.Logger
	Metrics   *metrics.Metrics
	// Checks are keyed by dependency name and reported by /healthz.
	Checks map[string]Check
}

// NewRouter wires the middleware chain, the /api tree and operational endpoints.
func NewRouter(cfg Config, modules ...Routes) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RequestTime)
	r.Use(middleware.Recover(cfg.Logger))
	r.Use(middleware.Instrument(cfg.Metrics))

	r.Get("/healthz", healthHandler(cfg.Checks))
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(api chi.Router) {
		api.Use(middleware.RequireAuth(cfg.Validator, cfg.Logger))
		for _, m := range modules {
			m.Register(api)
		}
	})
	return r
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

func healthHandler(checks map[string]Check) http.HandlerFunc {
	names := make([]string, 0, len(checks))
	for name := range checks {
		names = append(names, name)
	}
	sort.Strings(names)

	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
		defer cancel()

		resp := healthResponse{Status: "ok", Checks: make(map[string]string, len(names))}
		for _, name := range names {
			if err := checks[name](ctx); err != nil {
				resp.Status = "degraded"
				resp.Checks[name] = err.Error()
				continue
			}
			resp.Checks[name] = "ok"
		}

		status := http.StatusOK
		if resp.Status != "ok" {
			status = http.StatusServiceUnavailable
		}
		httputil.WriteJSON(w, status, resp)
	}
}
