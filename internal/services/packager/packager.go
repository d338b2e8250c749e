// Package packager hands a run's staged files to the user: either a zip
// archive with the analyst prompt, or a notebook created through the uploader.
package packager

import (
	"context"
	_ "embed"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/klauspost/compress/zip"
	"github.com/ternarybob/arbor"

	"github.com/SharingMan/CNinfo2Notebookllm/internal/common"
	"github.com/SharingMan/CNinfo2Notebookllm/internal/interfaces"
	"github.com/SharingMan/CNinfo2Notebookllm/internal/models"
)

// DefaultPromptName is the archive entry holding the analyst prompt
const DefaultPromptName = "00_AI分析指令.txt"

//go:embed assets/financial_analyst_prompt.txt
var defaultPrompt string

// DefaultPrompt returns the embedded financial analyst prompt
func DefaultPrompt() string {
	return defaultPrompt
}

// LoadPrompt reads the prompt at path, or returns the embedded prompt when path is empty
func LoadPrompt(path string) (string, error) {
	if path == "" {
		return defaultPrompt, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read prompt file: %w", err)
	}
	return string(data), nil
}

// Input is what a run hands to the packager
type Input struct {
	RunID      string // Keeps archive names of same-day runs apart
	Stock      models.StockRecord
	Mode       models.PackageMode
	StagingDir string
	Files      []string // Absolute paths inside StagingDir
}

// Result describes a completed handoff
type Result struct {
	Mode          models.PackageMode `json:"mode"`
	ArchivePath   string             `json:"archive_path,omitempty"`
	NotebookID    string             `json:"notebook_id,omitempty"`
	Packaged      int                `json:"packaged"`
	FailedSources []string           `json:"failed_sources,omitempty"`
}

// Packager writes archives or uploads to a notebook
type Packager struct {
	outputDir  string
	promptName string
	prompt     string
	uploader   interfaces.NotebookUploader
	logger     arbor.ILogger
	now        func() time.Time
}

// New creates a packager. uploader may be nil when upload mode is never used.
func New(outputDir, promptName, prompt string, uploader interfaces.NotebookUploader, logger arbor.ILogger) *Packager {
	if promptName == "" {
		promptName = DefaultPromptName
	}
	if prompt == "" {
		prompt = defaultPrompt
	}
	return &Packager{
		outputDir:  outputDir,
		promptName: promptName,
		prompt:     prompt,
		uploader:   uploader,
		logger:     logger,
		now:        time.Now,
	}
}

var unsafeName = strings.NewReplacer("/", "-", "\\", "-", "*", "s", ":", "-", " ", "")

// ArchiveName returns {name}_财务资料_{YYYYMMDD}_{run}.zip, using the code when
// the name is empty. The run part is omitted when runID is empty.
func ArchiveName(stock models.StockRecord, now time.Time, runID string) string {
	name := unsafeName.Replace(stock.Name)
	if name == "" {
		name = stock.Code
	}
	if short := common.ShortID(runID); short != "" {
		return fmt.Sprintf("%s_财务资料_%s_%s.zip", name, now.Format("20060102"), short)
	}
	return fmt.Sprintf("%s_财务资料_%s.zip", name, now.Format("20060102"))
}

// archivePath returns a path in the output directory no existing archive uses
func (p *Packager) archivePath(in Input) string {
	name := ArchiveName(in.Stock, p.now(), in.RunID)
	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)

	path := filepath.Join(p.outputDir, name)
	for i := 2; ; i++ {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return path
		}
		path = filepath.Join(p.outputDir, fmt.Sprintf("%s_%d%s", base, i, ext))
	}
}

// NotebookTitle returns the title used for the uploaded notebook
func NotebookTitle(stock models.StockRecord) string {
	return stock.Name + " 财务报告"
}

// Package delivers the staged files. Errors wrap models.ErrPackagingFailed
// and leave the staging directory untouched.
func (p *Packager) Package(ctx context.Context, in Input) (*Result, error) {
	if len(in.Files) == 0 {
		return nil, fmt.Errorf("%w: no files to package", models.ErrPackagingFailed)
	}
	switch in.Mode {
	case models.ModeUpload:
		return p.upload(ctx, in)
	case models.ModeArchive, "":
		return p.archive(in)
	}
	return nil, fmt.Errorf("%w: unknown mode %q", models.ErrPackagingFailed, in.Mode)
}

func (p *Packager) archive(in Input) (*Result, error) {
	if err := os.MkdirAll(p.outputDir, 0755); err != nil {
		return nil, fmt.Errorf("%w: failed to create output directory: %v", models.ErrPackagingFailed, err)
	}

	path := p.archivePath(in)
	// Each run writes its own temp file, concurrent runs never share one
	f, err := os.CreateTemp(p.outputDir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create archive: %v", models.ErrPackagingFailed, err)
	}
	tmp := f.Name()
	f.Close()

	count, err := p.writeArchive(tmp, in.Files)
	if err != nil {
		os.Remove(tmp)
		return nil, fmt.Errorf("%w: %v", models.ErrPackagingFailed, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return nil, fmt.Errorf("%w: failed to finalise archive: %v", models.ErrPackagingFailed, err)
	}

	p.logger.Info().
		Str("code", in.Stock.Code).
		Str("archive", path).
		Int("files", count).
		Msg("Archive written")

	return &Result{Mode: models.ModeArchive, ArchivePath: path, Packaged: count}, nil
}

func (p *Packager) writeArchive(path string, files []string) (int, error) {
	out, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("failed to create archive: %w", err)
	}
	defer out.Close()

	zw := zip.NewWriter(out)

	w, err := zw.CreateHeader(&zip.FileHeader{Name: p.promptName, Method: zip.Deflate, Modified: p.now()})
	if err != nil {
		return 0, fmt.Errorf("failed to add prompt: %w", err)
	}
	if _, err := io.WriteString(w, p.prompt); err != nil {
		return 0, fmt.Errorf("failed to add prompt: %w", err)
	}

	sorted := append([]string(nil), files...)
	sort.Strings(sorted)
	for _, f := range sorted {
		if err := addFile(zw, f); err != nil {
			return 0, err
		}
	}

	if err := zw.Close(); err != nil {
		return 0, fmt.Errorf("failed to close archive: %w", err)
	}
	return len(sorted), out.Close()
}

func addFile(zw *zip.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", filepath.Base(path), err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", filepath.Base(path), err)
	}
	header, err := zip.FileInfoHeader(info)
	if err != nil {
		return fmt.Errorf("failed to build header for %s: %w", filepath.Base(path), err)
	}
	header.Name = filepath.Base(path)
	header.Method = zip.Deflate

	w, err := zw.CreateHeader(header)
	if err != nil {
		return fmt.Errorf("failed to add %s: %w", header.Name, err)
	}
	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("failed to add %s: %w", header.Name, err)
	}
	return nil
}

func (p *Packager) upload(ctx context.Context, in Input) (*Result, error) {
	if p.uploader == nil {
		return nil, fmt.Errorf("%w: no uploader configured", models.ErrPackagingFailed)
	}

	id, err := p.uploader.CreateNotebook(ctx, NotebookTitle(in.Stock))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrPackagingFailed, err)
	}
	if err := p.uploader.SetSystemPrompt(ctx, id, p.prompt); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrPackagingFailed, err)
	}

	result := &Result{Mode: models.ModeUpload, NotebookID: id}
	for _, f := range in.Files {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%w: %v", models.ErrPackagingFailed, err)
		}
		if err := p.uploader.AddSource(ctx, id, f); err != nil {
			p.logger.Warn().
				Str("notebook_id", id).
				Str("file", filepath.Base(f)).
				Err(err).
				Msg("Failed to add source")
			result.FailedSources = append(result.FailedSources, f)
			continue
		}
		result.Packaged++
	}

	if result.Packaged == 0 {
		return nil, fmt.Errorf("%w: every source upload failed for notebook %s", models.ErrPackagingFailed, id)
	}

	p.logger.Info().
		Str("code", in.Stock.Code).
		Str("notebook_id", id).
		Int("uploaded", result.Packaged).
		Int("failed", len(result.FailedSources)).
		Msg("Notebook populated")

	return result, nil
}

// Cleanup removes a staging directory after a successful handoff. Failures
// are logged and never returned.
func (p *Packager) Cleanup(dir string) {
	if dir == "" {
		return
	}
	if err := os.RemoveAll(dir); err != nil {
		p.logger.Warn().
			Str("dir", dir).
			Err(fmt.Errorf("%w: %v", models.ErrCleanupFailed, err)).
			Msg("Failed to remove staging directory")
	}
}
