package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"pollwatch/internal/results"
	dErrors "pollwatch/pkg/domain-errors"
	"pollwatch/pkg/platform/httputil"
	"pollwatch/pkg/requestcontext"
)

const (
	defaultFindingsLimit = 50
	maxFindingsLimit     = 500
)

// Service defines the ingestion and query operations the handler needs.
type Service interface {
	Ingest(ctx context.Context, sub results.Submission) (*results.Outcome, error)
	Verify(ctx context.Context, unitID string) (*results.ResultRecord, error)
	Reject(ctx context.Context, unitID string) (*results.ResultRecord, error)
	Snapshot(ctx context.Context) results.Snapshot
	VerifySnapshot(ctx context.Context) (*results.Consistency, error)
	List(ctx context.Context, f results.Filter) ([]*results.ResultRecord, error)
	Get(ctx context.Context, unitID string) (*results.ResultRecord, error)
	RecentFindings(ctx context.Context, limit int) []results.Finding
}

// Handler wires result endpoints to the ingestion service.
type Handler struct {
	service Service
	logger  *slog.Logger
}

// New constructs a results handler with its dependencies.
func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  logger,
	}
}

// Register mounts result endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/results", h.HandleSubmit)
	r.Get("/results", h.HandleList)
	r.Get("/results/{unitID}", h.HandleGet)
	r.Post("/results/{unitID}/verify", h.HandleVerify)
	r.Post("/results/{unitID}/reject", h.HandleReject)
	r.Get("/snapshot", h.HandleSnapshot)
	r.Get("/snapshot/verify", h.HandleVerifySnapshot)
	r.Get("/findings", h.HandleFindings)
}

// HandleSubmit handles POST /results.
func (h *Handler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	start := time.Now()

	req, ok := httputil.DecodeAndPrepare[SubmitRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	out, err := h.service.Ingest(ctx, req.ToSubmission())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	h.logger.DebugContext(ctx, "submission handled",
		"request_id", requestID,
		"unit_id", req.UnitID,
		"status", out.Status,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	httputil.WriteJSON(w, http.StatusOK, FromOutcome(out))
}

// HandleList handles GET /results?status=&region=.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := results.Filter{
		Status: results.Status(strings.ToLower(strings.TrimSpace(q.Get("status")))),
		Region: strings.TrimSpace(q.Get("region")),
	}
	records, err := h.service.List(r.Context(), filter)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromRecords(records))
}

// HandleGet handles GET /results/{unitID}.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	rec, err := h.service.Get(r.Context(), chi.URLParam(r, "unitID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, rec)
}

// HandleVerify handles POST /results/{unitID}/verify.
func (h *Handler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	h.review(w, r, h.service.Verify)
}

// HandleReject handles POST /results/{unitID}/reject.
func (h *Handler) HandleReject(w http.ResponseWriter, r *http.Request) {
	h.review(w, r, h.service.Reject)
}

func (h *Handler) review(w http.ResponseWriter, r *http.Request, action func(context.Context, string) (*results.ResultRecord, error)) {
	ctx := r.Context()
	unitID := chi.URLParam(r, "unitID")
	rec, err := action(ctx, unitID)
	if err != nil {
		h.logger.WarnContext(ctx, "review refused",
			"request_id", requestcontext.RequestID(ctx),
			"unit_id", unitID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, rec)
}

// HandleSnapshot handles GET /snapshot.
func (h *Handler) HandleSnapshot(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, FromSnapshot(h.service.Snapshot(r.Context())))
}

// HandleVerifySnapshot handles GET /snapshot/verify.
func (h *Handler) HandleVerifySnapshot(w http.ResponseWriter, r *http.Request) {
	check, err := h.service.VerifySnapshot(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, check)
}

// HandleFindings handles GET /findings?limit=N.
func (h *Handler) HandleFindings(w http.ResponseWriter, r *http.Request) {
	limit := defaultFindingsLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "limit must be a positive integer"))
			return
		}
		limit = min(n, maxFindingsLimit)
	}
	findings := h.service.RecentFindings(r.Context(), limit)
	if findings == nil {
		findings = []results.Finding{}
	}
	httputil.WriteJSON(w, http.StatusOK, FindingsResponse{Findings: findings})
}
