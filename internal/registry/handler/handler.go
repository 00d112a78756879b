package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"pollwatch/internal/registry"
	"pollwatch/pkg/platform/httputil"
)

// Catalog is the read-only registry view served over HTTP.
type Catalog interface {
	Units() []registry.PollingUnit
	Candidates() []registry.Candidate
}

type Handler struct {
	catalog Catalog
}

func New(catalog Catalog) *Handler {
	return &Handler{catalog: catalog}
}

func (h *Handler) Register(r chi.Router) {
	r.Get("/candidates", h.HandleCandidates)
	r.Get("/units", h.HandleUnits)
}

type candidatesResponse struct {
	Candidates []registry.Candidate `json:"candidates"`
}

type unitsResponse struct {
	Units []registry.PollingUnit `json:"units"`
	Count int                    `json:"count"`
}

// HandleCandidates handles GET /candidates.
func (h *Handler) HandleCandidates(w http.ResponseWriter, _ *http.Request) {
	candidates := h.catalog.Candidates()
	if candidates == nil {
		candidates = []registry.Candidate{}
	}
	httputil.WriteJSON(w, http.StatusOK, candidatesResponse{Candidates: candidates})
}

// HandleUnits handles GET /units, optionally filtered by ?region=.
func (h *Handler) HandleUnits(w http.ResponseWriter, r *http.Request) {
	region := r.URL.Query().Get("region")
	units := make([]registry.PollingUnit, 0)
	for _, u := range h.catalog.Units() {
		if region != "" && u.Region != region {
			continue
		}
		units = append(units, u)
	}
	httputil.WriteJSON(w, http.StatusOK, unitsResponse{Units: units, Count: len(units)})
}
