// Package httptransport assembles the public HTTP surface: shared middleware,
// the versioned API and the operational endpoints.
package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"pollwatch/internal/platform/metrics"
	"pollwatch/pkg/platform/httputil"
	"pollwatch/pkg/platform/middleware/operator"
	"pollwatch/pkg/platform/middleware/request"
	"pollwatch/pkg/platform/middleware/requesttime"
)

// APIPrefix is where every module handler is mounted.
const APIPrefix = "/v1"

// Registrar is implemented by every module handler.
type Registrar interface {
	Register(r chi.Router)
}

// HealthCheck reports whether a backing dependency is usable.
type HealthCheck func(ctx context.Context) error

// RouterConfig carries the cross-cutting pieces of the router.
type RouterConfig struct {
	Logger   *slog.Logger
	Metrics  *metrics.Metrics
	Gatherer prometheus.Gatherer
	Checks   map[string]HealthCheck
}

// NewRouter wires middleware, mounts handlers under /v1 and exposes
// /healthz and /metrics.
func NewRouter(cfg RouterConfig, handlers ...Registrar) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(request.RequestID)
	r.Use(request.Recovery(logger))
	r.Use(requesttime.Middleware)
	r.Use(request.Logger(logger, cfg.Metrics))

	r.Get("/healthz", healthz(cfg.Checks))
	if cfg.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler(cfg.Gatherer))
	}

	r.Route(APIPrefix, func(api chi.Router) {
		api.Use(operator.Tag(logger))
		for _, h := range handlers {
			h.Register(api)
		}
	})
	return r
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

func healthz(checks map[string]HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		resp := healthResponse{Status: "ok"}
		status := http.StatusOK
		if len(checks) > 0 {
			resp.Checks = make(map[string]string, len(checks))
		}
		for name, check := range checks {
			if err := check(ctx); err != nil {
				resp.Checks[name] = err.Error()
				resp.Status = "degraded"
				status = http.StatusServiceUnavailable
				continue
			}
			resp.Checks[name] = "ok"
		}
		httputil.WriteJSON(w, status, resp)
	}
}
