package handlers

import (
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/ternarybob/arbor"
)

// DownloadHandler serves finished archives from the output directory.
// Each archive is removed once it has been served in full; range and
// conditional responses leave it in place for the client to resume.
type DownloadHandler struct {
	outputDir string
	logger    arbor.ILogger
}

// NewDownloadHandler creates a handler rooted at outputDir
func NewDownloadHandler(outputDir string, logger arbor.ILogger) *DownloadHandler {
	return &DownloadHandler{
		outputDir: outputDir,
		logger:    logger,
	}
}

// DownloadHandler handles GET /api/download?path=archive.zip
func (h *DownloadHandler) DownloadHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	path, err := h.resolve(r.URL.Query().Get("path"))
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	f, err := os.Open(path)
	if err != nil {
		WriteError(w, http.StatusNotFound, "archive not found")
		return
	}
	info, err := f.Stat()
	if err != nil || info.IsDir() {
		f.Close()
		WriteError(w, http.StatusNotFound, "archive not found")
		return
	}

	name := filepath.Base(path)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))
	w.Header().Set("Content-Type", "application/zip")
	sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
	http.ServeContent(sw, r, name, info.ModTime(), f)
	f.Close()

	if sw.status != http.StatusOK {
		h.logger.Debug().Str("archive", name).Int("status", sw.status).Msg("Partial archive response, keeping file")
		return
	}
	if err := os.Remove(path); err != nil {
		h.logger.Warn().Err(err).Str("path", path).Msg("Failed to remove served archive")
		return
	}
	h.logger.Info().Str("archive", name).Int64("bytes", info.Size()).Msg("Archive served and removed")
}

// resolve maps the query value to a .zip file directly inside outputDir
func (h *DownloadHandler) resolve(value string) (string, error) {
	if value == "" {
		return "", fmt.Errorf("path is required")
	}
	root, err := filepath.Abs(h.outputDir)
	if err != nil {
		return "", err
	}

	path := value
	if !filepath.IsAbs(path) {
		path = filepath.Join(root, path)
	}
	path = filepath.Clean(path)

	if filepath.Dir(path) != root || !strings.EqualFold(filepath.Ext(path), ".zip") {
		return "", fmt.Errorf("path must name an archive in the output directory")
	}
	return path, nil
}

// statusWriter records the status code written by ServeContent
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}
