package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"pollwatch/internal/insight"
	"pollwatch/internal/registry"
	"pollwatch/internal/results"
	"pollwatch/pkg/platform/httputil"
	"pollwatch/pkg/requestcontext"
)

const summaryIncidents = 20

// Results is the read side of the ingestion pipeline plus the append-only
// findings hook.
type Results interface {
	Snapshot(ctx context.Context) results.Snapshot
	List(ctx context.Context, f results.Filter) ([]*results.ResultRecord, error)
	RecentFindings(ctx context.Context, limit int) []results.Finding
	AppendFindings(ctx context.Context, findings []results.Finding)
}

// Registry resolves unit names for the gateway payload.
type Registry interface {
	Lookup(ctx context.Context, unitID string) (registry.PollingUnit, error)
}

// Insights is the degrading gateway client.
type Insights interface {
	Available() bool
	Anomalies(ctx context.Context, units []insight.UnitData) []insight.Report
	Summary(ctx context.Context, in insight.SummaryInput) string
}

// Handler serves on-demand narration endpoints.
type Handler struct {
	results  Results
	registry Registry
	insights Insights
	logger   *slog.Logger
}

func New(rs Results, reg Registry, insights Insights, logger *slog.Logger) *Handler {
	return &Handler{results: rs, registry: reg, insights: insights, logger: logger}
}

// Register mounts insight endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Get("/insights/summary", h.HandleSummary)
	r.Post("/insights/anomalies", h.HandleAnomalies)
}

type summaryResponse struct {
	Report    string `json:"report"`
	Available bool   `json:"available"`
}

type anomaliesResponse struct {
	Anomalies []insight.Report `json:"anomalies"`
	Available bool             `json:"available"`
}

// HandleSummary handles GET /insights/summary.
func (h *Handler) HandleSummary(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	snap := h.results.Snapshot(ctx)
	report := h.insights.Summary(ctx, insight.SummaryInput{
		Snapshot:  snap,
		Turnout:   snap.Turnout(),
		Incidents: h.results.RecentFindings(ctx, summaryIncidents),
	})
	httputil.WriteJSON(w, http.StatusOK, summaryResponse{
		Report:    report,
		Available: report != insight.UnavailableMessage,
	})
}

// HandleAnomalies handles POST /insights/anomalies. Narrated anomalies are
// appended to the recent findings.
func (h *Handler) HandleAnomalies(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	records, err := h.results.List(ctx, results.Filter{})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	units := make([]insight.UnitData, 0, len(records))
	for _, rec := range records {
		unit, err := h.registry.Lookup(ctx, rec.UnitID)
		if err != nil {
			unit = registry.PollingUnit{ID: rec.UnitID, Name: rec.UnitID}
		}
		units = append(units, insight.FromRecord(rec, unit))
	}

	reports := h.insights.Anomalies(ctx, units)
	if reports == nil {
		reports = []insight.Report{}
	}
	if len(reports) > 0 {
		now := requestcontext.Now(ctx).UTC().Truncate(time.Second)
		findings := make([]results.Finding, 0, len(reports))
		for _, rep := range reports {
			f := rep.ToFinding()
			f.DetectedAt = now
			findings = append(findings, f)
		}
		h.results.AppendFindings(ctx, findings)
	}

	h.logger.InfoContext(ctx, "anomaly narration requested",
		"request_id", requestcontext.RequestID(ctx),
		"units", len(units),
		"anomalies", len(reports),
	)
	httputil.WriteJSON(w, http.StatusOK, anomaliesResponse{Anomalies: reports, Available: h.insights.Available()})
}
