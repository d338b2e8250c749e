package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/SharingMan/CNinfo2Notebookllm/internal/interfaces"
	"github.com/SharingMan/CNinfo2Notebookllm/internal/models"
)

const (
	defaultRunsLimit = 20
	maxRunsLimit     = 200
)

// RunsHandler lists run history
type RunsHandler struct {
	runs   interfaces.RunStorage
	logger arbor.ILogger
}

// NewRunsHandler creates a handler. runs may be nil when history is disabled.
func NewRunsHandler(runs interfaces.RunStorage, logger arbor.ILogger) *RunsHandler {
	return &RunsHandler{
		runs:   runs,
		logger: logger,
	}
}

// ListRunsHandler handles GET /api/runs?status=&limit=
func (h *RunsHandler) ListRunsHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	if h.runs == nil {
		WriteJSON(w, http.StatusOK, []*models.RunRecord{})
		return
	}

	limit := QueryInt(r, "limit", defaultRunsLimit, maxRunsLimit)
	status := strings.TrimSpace(r.URL.Query().Get("status"))

	var (
		runs []*models.RunRecord
		err  error
	)
	if status != "" {
		runs, err = h.runs.ListRunsByStatus(r.Context(), status, limit)
	} else {
		runs, err = h.runs.ListRuns(r.Context(), limit)
	}
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to list runs")
		WriteError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}
	if runs == nil {
		runs = []*models.RunRecord{}
	}
	WriteJSON(w, http.StatusOK, runs)
}

// GetRunHandler handles GET /api/runs/{id}
func (h *RunsHandler) GetRunHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/api/runs/")
	if id == "" || h.runs == nil {
		WriteError(w, http.StatusNotFound, "run not found")
		return
	}

	run, err := h.runs.GetRun(r.Context(), id)
	if errors.Is(err, models.ErrRunNotFound) {
		WriteError(w, http.StatusNotFound, "run not found")
		return
	}
	if err != nil {
		h.logger.Error().Err(err).Str("run_id", id).Msg("Failed to get run")
		WriteError(w, http.StatusInternalServerError, "failed to get run")
		return
	}
	WriteJSON(w, http.StatusOK, run)
}

// DeleteRunHandler handles DELETE /api/runs/{id}
func (h *RunsHandler) DeleteRunHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodDelete) {
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/api/runs/")
	if id == "" || h.runs == nil {
		WriteError(w, http.StatusNotFound, "run not found")
		return
	}
	if err := h.runs.DeleteRun(r.Context(), id); err != nil {
		h.logger.Error().Err(err).Str("run_id", id).Msg("Failed to delete run")
		WriteError(w, http.StatusInternalServerError, "failed to delete run")
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"status": "deleted", "id": id})
}
