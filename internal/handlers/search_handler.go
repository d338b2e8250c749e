package handlers

import (
	"net/http"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/SharingMan/CNinfo2Notebookllm/internal/interfaces"
	"github.com/SharingMan/CNinfo2Notebookllm/internal/models"
)

const maxSearchLimit = 50

// SearchResponse is the body of GET /api/search
type SearchResponse struct {
	Query   string               `json:"query"`
	Count   int                  `json:"count"`
	Results []models.StockRecord `json:"results"`
}

// SearchHandler serves stock lookups for the analyze form
type SearchHandler struct {
	matcher      interfaces.StockMatcher
	defaultLimit int
	logger       arbor.ILogger
}

// NewSearchHandler creates a new search handler with dependencies
func NewSearchHandler(matcher interfaces.StockMatcher, defaultLimit int, logger arbor.ILogger) *SearchHandler {
	return &SearchHandler{
		matcher:      matcher,
		defaultLimit: defaultLimit,
		logger:       logger,
	}
}

// SearchHandler handles GET /api/search?q=query&limit=n requests
func (h *SearchHandler) SearchHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	query := strings.TrimSpace(r.URL.Query().Get("q"))
	limit := QueryInt(r, "limit", h.defaultLimit, maxSearchLimit)

	results := h.matcher.Search(query, limit)
	if results == nil {
		results = []models.StockRecord{}
	}

	h.logger.Debug().
		Str("query", query).
		Int("limit", limit).
		Int("results", len(results)).
		Msg("Stock search")

	WriteJSON(w, http.StatusOK, SearchResponse{
		Query:   query,
		Count:   len(results),
		Results: results,
	})
}
