package handlers

import (
	"net/http"

	"github.com/calyxbio/warrant/internal/domain"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// EventHandler serves the per-run append-only streams. All four streams page
// the same way and never 404 on an empty stream: a run with no events of a
// kind returns an empty list.
type EventHandler struct {
	evidence    domain.EvidenceStore
	refusals    domain.RefusalStore
	decisions   domain.DecisionStore
	diagnostics domain.DiagnosticStore
}

func NewEventHandler(evidence domain.EvidenceStore, refusals domain.RefusalStore, decisions domain.DecisionStore, diagnostics domain.DiagnosticStore) *EventHandler {
	return &EventHandler{
		evidence:    evidence,
		refusals:    refusals,
		decisions:   decisions,
		diagnostics: diagnostics,
	}
}

func runIDParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid run id")
		return uuid.Nil, false
	}
	return id, true
}

func (h *EventHandler) ListEvidence(w http.ResponseWriter, r *http.Request) {
	runID, ok := runIDParam(w, r)
	if !ok {
		return
	}
	limit, offset := pageParams(r)

	events, err := h.evidence.ListByRun(r.Context(), runID, limit, offset)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list evidence")
		return
	}
	if events == nil {
		events = []domain.EvidenceEvent{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}

func (h *EventHandler) ListRefusals(w http.ResponseWriter, r *http.Request) {
	runID, ok := runIDParam(w, r)
	if !ok {
		return
	}
	limit, offset := pageParams(r)

	events, err := h.refusals.ListByRun(r.Context(), runID, limit, offset)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list refusals")
		return
	}
	if events == nil {
		events = []domain.RefusalEvent{}
	}

	count, err := h.refusals.CountByRun(r.Context(), runID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to count refusals")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"events": events, "total": count})
}

func (h *EventHandler) ListDecisions(w http.ResponseWriter, r *http.Request) {
	runID, ok := runIDParam(w, r)
	if !ok {
		return
	}
	limit, offset := pageParams(r)

	events, err := h.decisions.ListByRun(r.Context(), runID, limit, offset)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list decisions")
		return
	}
	if events == nil {
		events = []domain.DecisionEvent{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}

func (h *EventHandler) ListDiagnostics(w http.ResponseWriter, r *http.Request) {
	runID, ok := runIDParam(w, r)
	if !ok {
		return
	}
	limit, offset := pageParams(r)

	events, err := h.diagnostics.ListByRun(r.Context(), runID, limit, offset)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list diagnostics")
		return
	}
	if events == nil {
		events = []domain.DiagnosticEvent{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}
