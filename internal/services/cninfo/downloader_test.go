package cninfo

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/SharingMan/CNinfo2Notebookllm/internal/models"
	"github.com/SharingMan/CNinfo2Notebookllm/internal/worker"
)

type fakeSource struct {
	mu      sync.Mutex
	bodies  map[string]string
	fail    map[string]error
	block   bool
	started chan struct{}
	calls   int
}

func (s *fakeSource) Download(ctx context.Context, fileURL string, w io.Writer) (int64, error) {
	s.mu.Lock()
	s.calls++
	body, ok := s.bodies[fileURL]
	err := s.fail[fileURL]
	s.mu.Unlock()

	if s.block {
		n, _ := io.WriteString(w, "%PDF-1.4 partial")
		if s.started != nil {
			select {
			case s.started <- struct{}{}:
			default:
			}
		}
		<-ctx.Done()
		return int64(n), ctx.Err()
	}
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, fmt.Errorf("download failed with status: 404")
	}
	n, werr := io.WriteString(w, body)
	return int64(n), werr
}

type rejectVerifier struct {
	marker string
}

func (v rejectVerifier) Verify(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if strings.Contains(string(data), v.marker) {
		return errors.New("corrupt pdf: bad xref")
	}
	return nil
}

func testAnnouncements(n int) []models.AnnouncementMetadata {
	anns := make([]models.AnnouncementMetadata, n)
	for i := range anns {
		id := fmt.Sprintf("%04d", i)
		anns[i] = models.AnnouncementMetadata{
			ID:          id,
			Title:       "公告" + id,
			SecCode:     "600519",
			SecName:     "贵州茅台",
			AdjunctType: "PDF",
			DownloadURL: "http://static.test/finalpage/" + id + ".PDF",
		}
	}
	return anns
}

func newTestDownloader(src FileSource, verifier Verifier) *Downloader {
	logger := arbor.NewLogger()
	return NewDownloader(src, worker.NewWorkerPool(logger, 3), verifier, logger)
}

func partFiles(t *testing.T, dir string) []string {
	matches, err := filepath.Glob(filepath.Join(dir, "*"+partSuffix))
	require.NoError(t, err)
	return matches
}

func TestDownloadAll_PartialFailure(t *testing.T) {
	anns := testAnnouncements(10)
	src := &fakeSource{bodies: map[string]string{}, fail: map[string]error{}}
	for i, a := range anns {
		src.bodies[a.DownloadURL] = "%PDF-1.4 report " + a.ID
		if i == 3 || i == 7 {
			src.fail[a.DownloadURL] = errors.New("connection reset")
		}
	}
	dir := t.TempDir()

	var (
		counts []int
		totals []int
	)
	files, failed, err := newTestDownloader(src, nil).DownloadAll(context.Background(), anns, dir,
		func(done, total int, _ models.AnnouncementMetadata, _ error) {
			counts = append(counts, done)
			totals = append(totals, total)
		})

	require.NoError(t, err)
	assert.Len(t, files, 8)
	require.Len(t, failed, 2)
	assert.Equal(t, "0003", failed[0].Announcement.ID)
	assert.Equal(t, "0007", failed[1].Announcement.ID)
	assert.Contains(t, failed[0].Error, "connection reset")

	assert.Equal(t, []int{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}, counts)
	for _, total := range totals {
		assert.Equal(t, 10, total)
	}

	for _, f := range files {
		data, err := os.ReadFile(f.Path)
		require.NoError(t, err)
		assert.Equal(t, f.Size, int64(len(data)))
		assert.True(t, strings.HasSuffix(f.Path, ".pdf"))
	}
	assert.Empty(t, partFiles(t, dir))
}

func TestDownloadAll_RejectsNonPDF(t *testing.T) {
	anns := testAnnouncements(3)
	anns[0].AdjunctType = "HTML"
	anns[0].DownloadURL = "http://static.test/finalpage/0000.html"

	src := &fakeSource{bodies: map[string]string{
		anns[1].DownloadURL: "<html>login required</html>",
		anns[2].DownloadURL: "%PDF-1.7 ok",
	}}
	dir := t.TempDir()

	files, failed, err := newTestDownloader(src, nil).DownloadAll(context.Background(), anns, dir, nil)

	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "0002", files[0].Announcement.ID)
	require.Len(t, failed, 2)
	assert.Contains(t, failed[0].Error, models.ErrFileDownloadFailed.Error())
	assert.Contains(t, failed[1].Error, "not a PDF")
	assert.Empty(t, partFiles(t, dir))
}

func TestDownloadAll_VerifierRejectsCorrupt(t *testing.T) {
	anns := testAnnouncements(2)
	src := &fakeSource{bodies: map[string]string{
		anns[0].DownloadURL: "%PDF-1.4 fine",
		anns[1].DownloadURL: "%PDF-1.4 truncated",
	}}
	dir := t.TempDir()

	files, failed, err := newTestDownloader(src, rejectVerifier{marker: "truncated"}).DownloadAll(context.Background(), anns, dir, nil)

	require.NoError(t, err)
	assert.Len(t, files, 1)
	require.Len(t, failed, 1)
	assert.Contains(t, failed[0].Error, "corrupt pdf")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestDownloadAll_CancelLeavesNoPartFiles(t *testing.T) {
	anns := testAnnouncements(6)
	src := &fakeSource{block: true, started: make(chan struct{}, 1)}
	dir := t.TempDir()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-src.started
		cancel()
	}()

	files, failed, err := newTestDownloader(src, nil).DownloadAll(ctx, anns, dir, nil)

	assert.True(t, errors.Is(err, context.Canceled))
	assert.Empty(t, files)
	assert.Len(t, failed, 6)
	assert.Empty(t, partFiles(t, dir))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestFileName(t *testing.T) {
	tests := []struct {
		name string
		ann  models.AnnouncementMetadata
		want string
	}{
		{
			name: "plain",
			ann:  models.AnnouncementMetadata{ID: "1219", SecCode: "600519", SecName: "贵州茅台", Title: "2023年年度报告"},
			want: "600519_贵州茅台_2023年年度报告_1219.pdf",
		},
		{
			name: "star st and separators",
			ann:  models.AnnouncementMetadata{ID: "7", SecCode: "000001", SecName: "*ST某某", Title: "关于A/B股的公告 (修订)"},
			want: "000001_sST某某_关于A-B股的公告修订_7.pdf",
		},
		{
			name: "empty fields",
			ann:  models.AnnouncementMetadata{ID: "9", Title: "报告"},
			want: "报告_9.pdf",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FileName(tt.ann))
		})
	}
}

func TestFileName_TruncatesTitle(t *testing.T) {
	ann := models.AnnouncementMetadata{ID: "1", Title: strings.Repeat("长", 100)}
	name := FileName(ann)
	assert.Equal(t, strings.Repeat("长", maxTitleRunes)+"_1.pdf", name)
}
