package server

import (
	"net/http"
)

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// UI
	mux.HandleFunc("/", s.app.PageHandler.ServePage("index.html"))

	// API routes - stock lookup and analysis
	mux.HandleFunc("/api/search", s.app.SearchHandler.SearchHandler)       // GET ?q=&limit=
	mux.HandleFunc("/api/analyze", s.app.AnalyzeHandler.AnalyzeHandler)    // GET ?stock=&mode= (SSE)
	mux.HandleFunc("/api/download", s.app.DownloadHandler.DownloadHandler) // GET ?path= (served once)

	// API routes - run history
	mux.HandleFunc("/api/runs", s.app.RunsHandler.ListRunsHandler) // GET ?status=&limit=
	mux.HandleFunc("/api/runs/", s.handleRunRoutes)                // GET/DELETE /{id}

	// API routes - system
	mux.HandleFunc("/api/version", s.app.APIHandler.VersionHandler)
	mux.HandleFunc("/api/health", s.app.APIHandler.HealthHandler)
	mux.HandleFunc("/api/", s.app.APIHandler.NotFoundHandler)

	return mux
}

// handleRunRoutes routes /api/runs/{id} by method
func (s *Server) handleRunRoutes(w http.ResponseWriter, r *http.Request) {
	if pathID(r.URL.Path, "/api/runs/") == "" {
		s.app.APIHandler.NotFoundHandler(w, r)
		return
	}
	RouteByMethod(w, r, MethodRouter{
		http.MethodGet:    s.app.RunsHandler.GetRunHandler,
		http.MethodDelete: s.app.RunsHandler.DeleteRunHandler,
	})
}
