package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/calyxbio/warrant/internal/domain"
	"github.com/calyxbio/warrant/internal/service"
	"github.com/calyxbio/warrant/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type RunHandler struct {
	runs   domain.RunStore
	runner *service.RunnerService
}

func NewRunHandler(runs domain.RunStore, runner *service.RunnerService) *RunHandler {
	return &RunHandler{runs: runs, runner: runner}
}

func (h *RunHandler) Create(w http.ResponseWriter, r *http.Request) {
	var spec domain.RunSpec
	if err := json.NewDecoder(r.Body).Decode(&spec); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := spec.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	run := &domain.Run{Spec: spec}
	if err := h.runs.Create(r.Context(), run); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create run")
		return
	}

	if err := h.runner.Enqueue(run); err != nil {
		if errors.Is(err, service.ErrRunnerBusy) {
			writeError(w, http.StatusServiceUnavailable, "run queue is full, retry later")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to enqueue run")
		return
	}

	writeJSON(w, http.StatusCreated, run)
}

func (h *RunHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid run id")
		return
	}

	run, err := h.runs.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "run not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to get run")
		return
	}

	writeJSON(w, http.StatusOK, run)
}

func (h *RunHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, offset := pageParams(r)

	runs, err := h.runs.List(r.Context(), limit, offset)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}
	if runs == nil {
		runs = []domain.Run{}
	}

	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}
