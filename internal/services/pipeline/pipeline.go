// Package pipeline runs one analysis request end to end: resolve the stock,
// fetch its disclosures into a private staging directory, package them and
// record the run.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/SharingMan/CNinfo2Notebookllm/internal/common"
	"github.com/SharingMan/CNinfo2Notebookllm/internal/interfaces"
	"github.com/SharingMan/CNinfo2Notebookllm/internal/models"
	"github.com/SharingMan/CNinfo2Notebookllm/internal/services/cninfo"
	"github.com/SharingMan/CNinfo2Notebookllm/internal/services/packager"
)

// Progress percentages outside the fetch range
const (
	percentResolve  = 5
	percentPackage  = 90
	percentComplete = 100
)

// Fetcher lists, selects and downloads a stock's disclosures
type Fetcher interface {
	NewJob(stock models.StockRecord, types models.ReportTypeSet, years int) models.DownloadJob
	Fetch(ctx context.Context, job models.DownloadJob, staging string, emit models.EmitFunc) (*models.FetchResult, error)
}

// Packager delivers staged files and removes staging directories
type Packager interface {
	Package(ctx context.Context, in packager.Input) (*packager.Result, error)
	Cleanup(dir string)
}

// Request is one analysis request
type Request struct {
	Query string
	Mode  models.PackageMode
	Types models.ReportTypeSet // Empty requests every type
	Years int                  // Lookback years, <= 0 uses the configured default
}

// Pipeline coordinates matcher, fetcher and packager
type Pipeline struct {
	matcher     interfaces.StockMatcher
	fetcher     Fetcher
	packager    Packager
	runs        interfaces.RunStorage
	stagingRoot string
	logger      arbor.ILogger
	now         func() time.Time
}

// New creates a pipeline. runs may be nil to disable history.
func New(matcher interfaces.StockMatcher, fetcher Fetcher, pkg Packager, runs interfaces.RunStorage, stagingRoot string, logger arbor.ILogger) *Pipeline {
	return &Pipeline{
		matcher:     matcher,
		fetcher:     fetcher,
		packager:    pkg,
		runs:        runs,
		stagingRoot: stagingRoot,
		logger:      logger,
		now:         time.Now,
	}
}

// run carries the state of one Run call
type run struct {
	p      *Pipeline
	ctx    context.Context
	events chan<- models.Event
	record *models.RunRecord
}

// emit sends e unless ctx is done, so a stalled consumer never blocks the run
func (r *run) emit(e models.Event) {
	if r.events == nil {
		return
	}
	e.RunID = r.record.ID
	select {
	case r.events <- e:
	case <-r.ctx.Done():
	}
}

func (r *run) save() {
	if r.p.runs == nil {
		return
	}
	// History is written even after cancellation
	if err := r.p.runs.SaveRun(context.Background(), r.record); err != nil {
		r.p.logger.Warn().Err(err).Str("run_id", r.record.ID).Msg("Failed to save run history")
	}
}

func (r *run) fail(err error) (*models.RunRecord, error) {
	if ctxErr := r.ctx.Err(); ctxErr != nil && !errors.Is(err, ctxErr) {
		err = fmt.Errorf("%w: %v", ctxErr, err)
	}

	r.record.Status = models.RunStatusFailed
	r.record.Error = models.Describe(err)
	r.record.FinishedAt = r.p.now()
	r.save()

	r.p.logger.Error().
		Str("run_id", r.record.ID).
		Str("query", r.record.Query).
		Err(err).
		Msg("Run failed")

	r.emit(models.ErrorEvent(models.Describe(err)))
	return r.record, err
}

// Run executes req, sending events on events (which may be nil). The channel
// is never closed by Run. The returned record is also saved to history.
func (p *Pipeline) Run(ctx context.Context, req Request, events chan<- models.Event) (*models.RunRecord, error) {
	mode := req.Mode
	if mode == "" {
		mode = models.ModeArchive
	}

	r := &run{
		p:      p,
		ctx:    ctx,
		events: events,
		record: &models.RunRecord{
			ID:        common.NewRunID(),
			Query:     req.Query,
			Mode:      mode,
			Status:    models.RunStatusRunning,
			StartedAt: p.now(),
		},
	}

	if !mode.IsValid() {
		return r.fail(fmt.Errorf("%w: unknown mode %q", models.ErrPackagingFailed, mode))
	}

	r.emit(models.ProgressEvent(percentResolve, "正在识别股票..."))
	stock, err := p.matcher.Resolve(req.Query)
	if err != nil {
		return r.fail(err)
	}
	r.record.StockCode = stock.Code
	r.record.StockName = stock.Name
	r.record.Market = stock.Market
	r.save()
	r.emit(models.LogEvent(fmt.Sprintf("已识别: %s (%s, %s)", stock.Name, stock.Code, stock.Market)))

	staging := filepath.Join(p.stagingRoot, fmt.Sprintf("%s_%s_%s", cninfo.SafeName(stock.Name), stock.Code, common.ShortID(r.record.ID)))
	if err := os.MkdirAll(staging, 0755); err != nil {
		return r.fail(fmt.Errorf("failed to create staging directory: %w", err))
	}

	job := p.fetcher.NewJob(stock, req.Types, req.Years)
	result, err := p.fetcher.Fetch(ctx, job, staging, r.emit)
	if err != nil {
		os.RemoveAll(staging)
		return r.fail(err)
	}
	r.record.Selected = len(result.Selected)
	r.record.Downloaded = len(result.Files)
	r.record.Failed = len(result.Failed)

	if len(result.Files) == 0 {
		os.RemoveAll(staging)
		return r.fail(fmt.Errorf("%w: %d selected, %d failed", models.ErrNoFilesDownloaded, len(result.Selected), len(result.Failed)))
	}
	for _, f := range result.Failed {
		r.emit(models.LogEvent(fmt.Sprintf("下载失败: %s (%s)", f.Announcement.Title, f.Error)))
	}

	files := make([]string, 0, len(result.Files)+1)
	for _, f := range result.Files {
		files = append(files, f.Path)
	}
	if job.RequestedTypes.Has(models.ReportTypeOther) {
		path, err := cninfo.WriteDigest(staging, stock.Name, result.Recent, p.now())
		if err != nil {
			p.logger.Warn().Err(err).Str("run_id", r.record.ID).Msg("Failed to write digest")
		} else {
			files = append(files, path)
		}
	}

	r.emit(models.ProgressEvent(percentPackage, packageStatus(mode)))
	pkg, err := p.packager.Package(ctx, packager.Input{
		RunID:      r.record.ID,
		Stock:      stock,
		Mode:       mode,
		StagingDir: staging,
		Files:      files,
	})
	if err != nil {
		r.record.StagingDir = staging
		return r.fail(err)
	}
	p.packager.Cleanup(staging)

	r.record.ArchivePath = pkg.ArchivePath
	r.record.NotebookID = pkg.NotebookID
	r.record.Status = models.RunStatusComplete
	if result.Status() == models.FetchStatusPartial || len(pkg.FailedSources) > 0 {
		r.record.Status = models.RunStatusPartial
	}
	r.record.FinishedAt = p.now()
	r.save()

	p.logger.Info().
		Str("run_id", r.record.ID).
		Str("code", stock.Code).
		Str("status", r.record.Status).
		Int("downloaded", r.record.Downloaded).
		Int("failed", r.record.Failed).
		Str("duration", r.record.FinishedAt.Sub(r.record.StartedAt).String()).
		Msg("Run finished")

	r.emit(models.ProgressEvent(percentComplete, "完成"))
	complete := models.Event{
		Type:        models.EventComplete,
		Timestamp:   p.now(),
		StockName:   stock.Name,
		ArchivePath: pkg.ArchivePath,
		NotebookID:  pkg.NotebookID,
		Count:       len(result.Files),
		Failed:      len(result.Failed),
		Result:      r.record.Status,
	}
	if pkg.ArchivePath != "" {
		complete.FolderPath = filepath.Dir(pkg.ArchivePath)
	}
	r.emit(complete)

	return r.record, nil
}

func packageStatus(mode models.PackageMode) string {
	if mode == models.ModeUpload {
		return "正在上传到笔记本..."
	}
	return "正在打包..."
}
