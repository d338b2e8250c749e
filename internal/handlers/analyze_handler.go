package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/SharingMan/CNinfo2Notebookllm/internal/common"
	"github.com/SharingMan/CNinfo2Notebookllm/internal/models"
	"github.com/SharingMan/CNinfo2Notebookllm/internal/services/pipeline"
)

const (
	eventBuffer  = 32
	pingInterval = 15 * time.Second
)

// Runner executes one analysis request
type Runner interface {
	Run(ctx context.Context, req pipeline.Request, events chan<- models.Event) (*models.RunRecord, error)
}

// AnalyzeHandler streams pipeline events over Server-Sent Events
type AnalyzeHandler struct {
	runner      Runner
	defaultMode models.PackageMode
	slots       chan struct{}
	logger      arbor.ILogger
}

// NewAnalyzeHandler creates a handler allowing maxRuns concurrent streams
func NewAnalyzeHandler(runner Runner, defaultMode models.PackageMode, maxRuns int, logger arbor.ILogger) *AnalyzeHandler {
	if maxRuns < 1 {
		maxRuns = 1
	}
	return &AnalyzeHandler{
		runner:      runner,
		defaultMode: defaultMode,
		slots:       make(chan struct{}, maxRuns),
		logger:      logger,
	}
}

// AnalyzeHandler handles GET /api/analyze?stock=&mode=&types=&years=
func (h *AnalyzeHandler) AnalyzeHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	req, err := h.parseRequest(r)
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "SSE not supported", http.StatusInternalServerError)
		return
	}

	select {
	case h.slots <- struct{}{}:
	default:
		h.logger.Warn().Str("stock", req.Query).Int("max_runs", cap(h.slots)).Msg("Analyze rejected, too many runs")
		WriteError(w, http.StatusTooManyRequests, "too many analyses in progress, try again later")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering
	flusher.Flush()

	// The run ends when the client disconnects
	ctx := r.Context()
	events := make(chan models.Event, eventBuffer)

	common.SafeGo(h.logger, "analyze", func() {
		defer func() { <-h.slots }()
		defer close(events)
		h.runner.Run(ctx, req, events)
	})

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case e, ok := <-events:
			if !ok {
				return
			}
			h.sendEvent(w, flusher, string(e.Type), e)
		case <-ticker.C:
			h.sendEvent(w, flusher, "ping", map[string]time.Time{"timestamp": time.Now()})
		}
	}
}

func (h *AnalyzeHandler) parseRequest(r *http.Request) (pipeline.Request, error) {
	params := r.URL.Query()

	req := pipeline.Request{
		Query: strings.TrimSpace(params.Get("stock")),
		Mode:  h.defaultMode,
		Years: QueryInt(r, "years", 0, 20),
	}
	if req.Query == "" {
		return req, fmt.Errorf("stock is required")
	}

	if mode := params.Get("mode"); mode != "" {
		req.Mode = models.PackageMode(strings.ToLower(mode))
		if !req.Mode.IsValid() {
			return req, fmt.Errorf("unknown mode %q", mode)
		}
	}

	if types := params.Get("types"); types != "" {
		set, err := models.ParseReportTypes(types)
		if err != nil {
			return req, err
		}
		req.Types = set
	}
	return req, nil
}

// sendEvent writes an SSE event to the response
func (h *AnalyzeHandler) sendEvent(w http.ResponseWriter, flusher http.Flusher, event string, data interface{}) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to marshal SSE event data")
		return
	}

	fmt.Fprintf(w, "event: %s\n", event)
	fmt.Fprintf(w, "data: %s\n\n", jsonData)
	flusher.Flush()
}
