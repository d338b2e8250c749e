package handlers

import (
	"embed"
	"html/template"
	"net/http"

	"github.com/ternarybob/arbor"

	"github.com/SharingMan/CNinfo2Notebookllm/internal/common"
)

//go:embed pages/*.html
var pages embed.FS

type PageHandler struct {
	logger      arbor.ILogger
	templates   *template.Template
	defaultMode string
}

func NewPageHandler(defaultMode string, logger arbor.ILogger) *PageHandler {
	return &PageHandler{
		logger:      logger,
		templates:   template.Must(template.ParseFS(pages, "pages/*.html")),
		defaultMode: defaultMode,
	}
}

// ServePage renders templateName for GET /
func (h *PageHandler) ServePage(templateName string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		data := map[string]interface{}{
			"Version":     common.GetVersion(),
			"DefaultMode": h.defaultMode,
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := h.templates.ExecuteTemplate(w, templateName, data); err != nil {
			h.logger.Error().
				Err(err).
				Str("template", templateName).
				Msg("Failed to render page")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		}
	}
}
