package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"pollwatch/internal/notify"
	dErrors "pollwatch/pkg/domain-errors"
	"pollwatch/pkg/platform/httputil"
	"pollwatch/pkg/requestcontext"
)

const (
	defaultLimit = 20
	maxLimit     = 500
)

// Dispatcher is the read side of the notification buffer.
type Dispatcher interface {
	ListRecent(limit int) []notify.Event
	MarkAllRead() int
	Unread() int
}

// Handler serves the notification feed.
type Handler struct {
	dispatcher Dispatcher
	logger     *slog.Logger
}

func New(dispatcher Dispatcher, logger *slog.Logger) *Handler {
	return &Handler{dispatcher: dispatcher, logger: logger}
}

// Register mounts notification endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Get("/notifications", h.HandleList)
	r.Post("/notifications/read", h.HandleMarkAllRead)
}

type listResponse struct {
	Notifications []notify.Event `json:"notifications"`
	Unread        int            `json:"unread"`
}

type markReadResponse struct {
	Marked int `json:"marked"`
}

// HandleList handles GET /notifications?limit=N.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r.URL.Query().Get("limit"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, listResponse{
		Notifications: h.dispatcher.ListRecent(limit),
		Unread:        h.dispatcher.Unread(),
	})
}

// HandleMarkAllRead handles POST /notifications/read.
func (h *Handler) HandleMarkAllRead(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	marked := h.dispatcher.MarkAllRead()
	h.logger.InfoContext(ctx, "notifications marked read",
		"request_id", requestcontext.RequestID(ctx),
		"operator_id", requestcontext.Operator(ctx).ID,
		"marked", marked,
	)
	httputil.WriteJSON(w, http.StatusOK, markReadResponse{Marked: marked})
}

func parseLimit(raw string) (int, error) {
	if raw == "" {
		return defaultLimit, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, dErrors.New(dErrors.CodeValidation, "limit must be a positive integer")
	}
	return min(n, maxLimit), nil
}
