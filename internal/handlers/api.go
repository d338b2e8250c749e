package handlers

import (
	"net/http"

	"github.com/ternarybob/arbor"

	"github.com/SharingMan/CNinfo2Notebookllm/internal/common"
	"github.com/SharingMan/CNinfo2Notebookllm/internal/interfaces"
)

type APIHandler struct {
	directory interfaces.StockDirectory
	logger    arbor.ILogger
}

func NewAPIHandler(directory interfaces.StockDirectory, logger arbor.ILogger) *APIHandler {
	return &APIHandler{
		directory: directory,
		logger:    logger,
	}
}

// VersionHandler returns version information
func (h *APIHandler) VersionHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	WriteJSON(w, http.StatusOK, map[string]string{
		"version":    common.GetVersion(),
		"build":      common.GetBuild(),
		"git_commit": common.GetGitCommit(),
	})
}

// HealthHandler returns health check status with the loaded directory size
func (h *APIHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"stocks": h.directory.Len(),
	})
}

// NotFoundHandler handles 404 errors with JSON response
func (h *APIHandler) NotFoundHandler(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusNotFound, map[string]interface{}{
		"error":   "Not Found",
		"path":    r.URL.Path,
		"message": "The requested endpoint does not exist",
	})
}
