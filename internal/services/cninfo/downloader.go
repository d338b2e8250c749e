package cninfo

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/ternarybob/arbor"

	"github.com/SharingMan/CNinfo2Notebookllm/internal/models"
	"github.com/SharingMan/CNinfo2Notebookllm/internal/worker"
)

const (
	partSuffix    = ".part"
	maxTitleRunes = 60
)

var pdfMagic = []byte("%PDF-")

// FileSource streams a remote file into w
type FileSource interface {
	Download(ctx context.Context, fileURL string, w io.Writer) (int64, error)
}

// Verifier validates a downloaded file before it is accepted
type Verifier interface {
	Verify(path string) error
}

// ProgressFunc is called once per finished file. done counts up by one on every
// call; err is nil when the file was saved.
type ProgressFunc func(done, total int, ann models.AnnouncementMetadata, err error)

// Downloader saves announcements into a staging directory using a worker pool
type Downloader struct {
	source   FileSource
	pool     *worker.WorkerPool
	verifier Verifier
	logger   arbor.ILogger
}

// NewDownloader creates a downloader. verifier may be nil to skip PDF verification.
func NewDownloader(source FileSource, pool *worker.WorkerPool, verifier Verifier, logger arbor.ILogger) *Downloader {
	return &Downloader{
		source:   source,
		pool:     pool,
		verifier: verifier,
		logger:   logger,
	}
}

// DownloadAll downloads anns into dir and blocks until every file has been
// attempted. Per-file failures are collected, never returned. The error is
// non-nil only when ctx was cancelled; partial results are still returned.
func (d *Downloader) DownloadAll(ctx context.Context, anns []models.AnnouncementMetadata, dir string, progress ProgressFunc) ([]models.LocalFile, []models.FailedDownload, error) {
	files := make([]*models.LocalFile, len(anns))
	errs := make([]error, len(anns))
	completed := 0

	d.pool.Run(ctx, len(anns),
		func(ctx context.Context, i int) error {
			f, err := d.downloadOne(ctx, anns[i], dir)
			files[i] = f
			return err
		},
		func(i int, err error) {
			completed++
			errs[i] = err
			if err != nil {
				d.logger.Warn().
					Str("id", anns[i].ID).
					Str("title", anns[i].Title).
					Err(err).
					Msg("Download failed")
			}
			if progress != nil {
				progress(completed, len(anns), anns[i], err)
			}
		})

	var (
		saved  []models.LocalFile
		failed []models.FailedDownload
	)
	for i, ann := range anns {
		if errs[i] == nil && files[i] != nil {
			saved = append(saved, *files[i])
			continue
		}
		msg := "not attempted"
		if errs[i] != nil {
			msg = errs[i].Error()
		}
		failed = append(failed, models.FailedDownload{Announcement: ann, Error: msg})
	}

	if err := ctx.Err(); err != nil {
		return saved, failed, err
	}
	return saved, failed, nil
}

func (d *Downloader) downloadOne(ctx context.Context, ann models.AnnouncementMetadata, dir string) (*models.LocalFile, error) {
	if !ann.IsPDF() {
		return nil, fmt.Errorf("%w: attachment type %q is not a PDF", models.ErrFileDownloadFailed, ann.AdjunctType)
	}

	final := filepath.Join(dir, FileName(ann))
	part := final + partSuffix

	size, err := d.fetch(ctx, ann.DownloadURL, part)
	if err != nil {
		os.Remove(part)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %v", models.ErrFileDownloadFailed, err)
	}

	if d.verifier != nil {
		if err := d.verifier.Verify(part); err != nil {
			os.Remove(part)
			return nil, fmt.Errorf("%w: %v", models.ErrFileDownloadFailed, err)
		}
	}

	if err := os.Rename(part, final); err != nil {
		os.Remove(part)
		return nil, fmt.Errorf("%w: %v", models.ErrFileDownloadFailed, err)
	}

	d.logger.Debug().
		Str("id", ann.ID).
		Str("file", filepath.Base(final)).
		Int64("bytes", size).
		Msg("File downloaded")

	return &models.LocalFile{Path: final, Size: size, Announcement: ann}, nil
}

// fetch writes the remote file to path and checks the PDF header
func (d *Downloader) fetch(ctx context.Context, fileURL, path string) (int64, error) {
	out, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("failed to create file: %w", err)
	}

	w := bufio.NewWriter(out)
	n, err := d.source.Download(ctx, fileURL, w)
	if err == nil {
		err = w.Flush()
	}
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return n, err
	}
	if n == 0 {
		return 0, fmt.Errorf("empty response body")
	}

	if err := checkPDFHeader(path); err != nil {
		return n, err
	}
	return n, nil
}

func checkPDFHeader(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	head := make([]byte, len(pdfMagic))
	if _, err := io.ReadFull(f, head); err != nil {
		return fmt.Errorf("response is not a PDF")
	}
	if !bytes.Equal(head, pdfMagic) {
		return fmt.Errorf("response is not a PDF")
	}
	return nil
}

// FileName builds the staged file name {secCode}_{secName}_{title}_{id}.pdf.
// Only letters (including CJK), digits and ._- survive; the title is truncated.
func FileName(ann models.AnnouncementMetadata) string {
	title := ann.Title
	if utf8.RuneCountInString(title) > maxTitleRunes {
		title = string([]rune(title)[:maxTitleRunes])
	}

	parts := make([]string, 0, 4)
	for _, p := range []string{ann.SecCode, ann.SecName, title, ann.ID} {
		if s := SafeName(p); s != "" {
			parts = append(parts, s)
		}
	}
	if len(parts) == 0 {
		parts = append(parts, "announcement")
	}
	return strings.Join(parts, "_") + ".pdf"
}

// SafeName keeps letters (including CJK), digits and ._- ; "*" becomes "s" and path
// separators become "-"
func SafeName(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r == '*':
			b.WriteRune('s')
		case r == '/' || r == '\\':
			b.WriteRune('-')
		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '.' || r == '_' || r == '-':
			b.WriteRune(r)
		}
	}
	return strings.Trim(b.String(), ".")
}
