package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"pollwatch/internal/audit"
	dErrors "pollwatch/pkg/domain-errors"
	"pollwatch/pkg/platform/httputil"
)

const (
	defaultLimit = 50
	maxLimit     = 1000
)

// Trail reads persisted audit events.
type Trail interface {
	List(ctx context.Context, q audit.Query) ([]audit.Event, error)
}

type Handler struct {
	trail  Trail
	logger *slog.Logger
}

func New(trail Trail, logger *slog.Logger) *Handler {
	return &Handler{trail: trail, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Get("/audit", h.HandleList)
}

type listResponse struct {
	Events []audit.Event `json:"events"`
}

// HandleList handles GET /audit?unit_id=&limit=.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	q := audit.Query{UnitID: strings.TrimSpace(r.URL.Query().Get("unit_id")), Limit: defaultLimit}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "limit must be a positive integer"))
			return
		}
		q.Limit = min(n, maxLimit)
	}

	events, err := h.trail.List(r.Context(), q)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to list audit events", "error", err)
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list audit events"))
		return
	}
	if events == nil {
		events = []audit.Event{}
	}
	httputil.WriteJSON(w, http.StatusOK, listResponse{Events: events})
}
