package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/SharingMan/CNinfo2Notebookllm/internal/models"
	"github.com/SharingMan/CNinfo2Notebookllm/internal/services/directory"
	"github.com/SharingMan/CNinfo2Notebookllm/internal/services/matcher"
)

func testDirectory() *directory.Directory {
	return directory.New([]models.StockRecord{
		{Code: "600519", Name: "贵州茅台", Market: models.MarketSSE, OrgID: "gssh0600519", Pinyin: "gzmt"},
		{Code: "000858", Name: "五粮液", Market: models.MarketSZSE, OrgID: "gssz0000858", Pinyin: "wly"},
		{Code: "00700", Name: "腾讯控股", Market: models.MarketHKE, OrgID: "gshk0000700", Pinyin: "txkg"},
	})
}

func executeSearch(t *testing.T, url string) (*httptest.ResponseRecorder, SearchResponse) {
	t.Helper()
	h := NewSearchHandler(matcher.New(testDirectory(), 10, 300), 10, arbor.NewLogger())
	w := httptest.NewRecorder()
	h.SearchHandler(w, httptest.NewRequest(http.MethodGet, url, nil))

	var body SearchResponse
	if w.Code == http.StatusOK {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	}
	return w, body
}

func TestSearchHandler(t *testing.T) {
	tests := []struct {
		name      string
		url       string
		wantCodes []string
	}{
		{name: "code", url: "/api/search?q=600519", wantCodes: []string{"600519"}},
		{name: "name", url: "/api/search?q=%E8%8C%85%E5%8F%B0", wantCodes: []string{"600519"}},
		{name: "pinyin", url: "/api/search?q=txkg", wantCodes: []string{"00700"}},
		{name: "empty query", url: "/api/search?q=", wantCodes: []string{}},
		{name: "no match", url: "/api/search?q=zzzz", wantCodes: []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, body := executeSearch(t, tt.url)
			require.Equal(t, http.StatusOK, w.Code)
			assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

			codes := []string{}
			for _, r := range body.Results {
				codes = append(codes, r.Code)
			}
			assert.Equal(t, tt.wantCodes, codes)
			assert.Equal(t, len(tt.wantCodes), body.Count)
		})
	}
}

func TestSearchHandler_Limit(t *testing.T) {
	_, body := executeSearch(t, "/api/search?q=0&limit=1")
	assert.Len(t, body.Results, 1)
}

func TestSearchHandler_MethodNotAllowed(t *testing.T) {
	h := NewSearchHandler(matcher.New(testDirectory(), 10, 300), 10, arbor.NewLogger())
	w := httptest.NewRecorder()
	h.SearchHandler(w, httptest.NewRequest(http.MethodPost, "/api/search?q=600519", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestQueryInt(t *testing.T) {
	tests := []struct {
		url  string
		want int
	}{
		{"/?limit=5", 5},
		{"/?limit=500", 50},
		{"/?limit=-1", 10},
		{"/?limit=abc", 10},
		{"/", 10},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, QueryInt(httptest.NewRequest(http.MethodGet, tt.url, nil), "limit", 10, 50), tt.url)
	}
}
