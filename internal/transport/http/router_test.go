package httptransport

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pollwatch/internal/platform/metrics"
	"pollwatch/pkg/platform/middleware/operator"
	"pollwatch/pkg/platform/middleware/request"
	"pollwatch/pkg/requestcontext"
)

type echoHandler struct {
	seen requestcontext.OperatorTag
	at   time.Time
}

func (h *echoHandler) Register(r chi.Router) {
	r.Get("/echo", func(w http.ResponseWriter, r *http.Request) {
		h.seen = requestcontext.Operator(r.Context())
		h.at = requestcontext.Now(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})
	r.Get("/boom", func(http.ResponseWriter, *http.Request) {
		panic("boom")
	})
}

func newTestRouter(checks map[string]HealthCheck) (http.Handler, *echoHandler) {
	reg := prometheus.NewRegistry()
	h := &echoHandler{}
	router := NewRouter(RouterConfig{
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		Metrics:  metrics.New(reg),
		Gatherer: reg,
		Checks:   checks,
	}, h)
	return router, h
}

func TestRouterMountsHandlersUnderPrefix(t *testing.T) {
	router, h := newTestRouter(nil)

	req := httptest.NewRequest(http.MethodGet, "/v1/echo", nil)
	req.Header.Set(operator.HeaderOperatorID, "ops-7")
	req.Header.Set(operator.HeaderOperatorRole, "Admin")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(request.HeaderRequestID))
	assert.Equal(t, requestcontext.OperatorTag{ID: "ops-7", Role: "admin"}, h.seen)
	assert.False(t, h.at.IsZero())

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/echo", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRouterRecoversPanics(t *testing.T) {
	router, _ := newTestRouter(nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/boom", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"internal_error"}`, rec.Body.String())
}

func TestHealthz(t *testing.T) {
	t.Run("no checks", func(t *testing.T) {
		router, _ := newTestRouter(nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	})

	t.Run("failing dependency", func(t *testing.T) {
		router, _ := newTestRouter(map[string]HealthCheck{
			"postgres": func(context.Context) error { return nil },
			"redis":    func(context.Context) error { return errors.New("connection refused") },
		})
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.JSONEq(t, `{"status":"degraded","checks":{"postgres":"ok","redis":"connection refused"}}`, rec.Body.String())
	})
}

func TestMetricsEndpoint(t *testing.T) {
	router, _ := newTestRouter(nil)
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/echo", nil))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "pollwatch_http_requests_total")
}
