package handlers

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
)

func TestDownloadHandler_ServesAndRemoves(t *testing.T) {
	out := t.TempDir()
	archive := filepath.Join(out, "贵州茅台_财务资料_20240630.zip")
	require.NoError(t, os.WriteFile(archive, []byte("PK\x03\x04 archive"), 0644))

	h := NewDownloadHandler(out, arbor.NewLogger())
	w := httptest.NewRecorder()
	h.DownloadHandler(w, httptest.NewRequest(http.MethodGet, "/api/download?path="+filepath.Base(archive), nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "PK\x03\x04 archive", w.Body.String())
	assert.Equal(t, "application/zip", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "attachment")

	_, err := os.Stat(archive)
	assert.True(t, os.IsNotExist(err))

	// Served once only
	w = httptest.NewRecorder()
	h.DownloadHandler(w, httptest.NewRequest(http.MethodGet, "/api/download?path="+filepath.Base(archive), nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDownloadHandler_AbsolutePathInsideOutput(t *testing.T) {
	out := t.TempDir()
	archive := filepath.Join(out, "a.zip")
	require.NoError(t, os.WriteFile(archive, []byte("zip"), 0644))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/download", nil)
	q := req.URL.Query()
	q.Set("path", archive)
	req.URL.RawQuery = q.Encode()
	NewDownloadHandler(out, arbor.NewLogger()).DownloadHandler(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestDownloadHandler_RejectsPaths(t *testing.T) {
	out := t.TempDir()
	outside := filepath.Join(t.TempDir(), "secret.zip")
	require.NoError(t, os.WriteFile(outside, []byte("zip"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(out, "notes.txt"), []byte("txt"), 0644))

	tests := []struct {
		name string
		path string
	}{
		{name: "empty", path: ""},
		{name: "traversal", path: "../" + filepath.Base(filepath.Dir(outside)) + "/secret.zip"},
		{name: "outside absolute", path: outside},
		{name: "not an archive", path: "notes.txt"},
		{name: "nested", path: "sub/a.zip"},
	}

	h := NewDownloadHandler(out, arbor.NewLogger())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/download", nil)
			q := req.URL.Query()
			q.Set("path", tt.path)
			req.URL.RawQuery = q.Encode()

			w := httptest.NewRecorder()
			h.DownloadHandler(w, req)
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}

	_, err := os.Stat(outside)
	assert.NoError(t, err)
}

func TestDownloadHandler_RangeRequestKeepsArchive(t *testing.T) {
	out := t.TempDir()
	archive := filepath.Join(out, "贵州茅台_财务资料_20240630.zip")
	require.NoError(t, os.WriteFile(archive, []byte("PK\x03\x04 archive"), 0644))
	h := NewDownloadHandler(out, arbor.NewLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/download?path="+filepath.Base(archive), nil)
	req.Header.Set("Range", "bytes=0-3")
	w := httptest.NewRecorder()
	h.DownloadHandler(w, req)

	require.Equal(t, http.StatusPartialContent, w.Code)
	assert.Equal(t, "PK\x03\x04", w.Body.String())
	_, err := os.Stat(archive)
	assert.NoError(t, err)

	// Resume with the rest of the file, still a range response
	req = httptest.NewRequest(http.MethodGet, "/api/download?path="+filepath.Base(archive), nil)
	req.Header.Set("Range", "bytes=4-")
	w = httptest.NewRecorder()
	h.DownloadHandler(w, req)
	require.Equal(t, http.StatusPartialContent, w.Code)
	assert.Equal(t, " archive", w.Body.String())
	_, err = os.Stat(archive)
	assert.NoError(t, err)

	// A full download removes it
	w = httptest.NewRecorder()
	h.DownloadHandler(w, httptest.NewRequest(http.MethodGet, "/api/download?path="+filepath.Base(archive), nil))
	require.Equal(t, http.StatusOK, w.Code)
	_, err = os.Stat(archive)
	assert.True(t, os.IsNotExist(err))
}
