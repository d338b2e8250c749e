package cninfo

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/SharingMan/CNinfo2Notebookllm/internal/models"
)

// Progress percentages reported by Fetch. The pipeline reports the rest.
const (
	PercentListing   = 10
	PercentSelected  = 30
	PercentDownloads = 85
)

// Lister reads every announcement matching a listing query
type Lister interface {
	List(ctx context.Context, q Query, limit int) ([]models.AnnouncementMetadata, error)
}

// FetcherConfig holds the fetch window and selection limits
type FetcherConfig struct {
	LookbackYears      int  // Fiscal years before the current one in the window
	AnnualYears        int  // Annual reports kept
	RecentEnabled      bool // Query recent announcements when Other is requested
	RecentLookbackDays int
	RecentListLimit    int // Announcements listed in the digest
	RecentLimit        int // Recent announcements downloaded
}

// DefaultFetcherConfig returns the registry defaults
func DefaultFetcherConfig() FetcherConfig {
	return FetcherConfig{
		LookbackYears:      6,
		AnnualYears:        5,
		RecentEnabled:      true,
		RecentLookbackDays: 180,
		RecentListLimit:    15,
		RecentLimit:        5,
	}
}

// Fetcher runs listing, classification, selection and download for one stock
type Fetcher struct {
	lister     Lister
	downloader *Downloader
	config     FetcherConfig
	logger     arbor.ILogger
	now        func() time.Time
}

// NewFetcher creates a fetcher
func NewFetcher(lister Lister, downloader *Downloader, config FetcherConfig, logger arbor.ILogger) *Fetcher {
	return &Fetcher{
		lister:     lister,
		downloader: downloader,
		config:     config,
		logger:     logger,
		now:        time.Now,
	}
}

// NewJob builds the download job for stock. years <= 0 uses the configured lookback.
func (f *Fetcher) NewJob(stock models.StockRecord, types models.ReportTypeSet, years int) models.DownloadJob {
	if years <= 0 {
		years = f.config.LookbackYears
	}
	requested := models.DefaultReportTypes()
	if len(types) > 0 {
		requested = models.NewReportTypeSet(types.Slice()...)
	}
	if !f.config.RecentEnabled {
		delete(requested, models.ReportTypeOther)
	}
	return models.DownloadJob{
		Stock:          stock,
		YearWindow:     models.YearWindowEnding(f.now().In(chinaTZ).Year(), years),
		RequestedTypes: requested,
	}
}

// QueryPlan is the set of listing queries for one job
type QueryPlan struct {
	Periodic []Query
	Recent   *Query
}

// PlanQueries builds the listing queries for job. A-share periodic reports are
// filtered by category on the registry side and fit in one query. HK listings
// carry no categories, so they are split into one query per fiscal year covering
// {year}-01-01 to {year+1}-06-30, which keeps each query under the page cap.
func PlanQueries(job models.DownloadJob, now time.Time, recentDays int) (QueryPlan, error) {
	var plan QueryPlan

	if job.Stock.Market.Column() == "" {
		return plan, fmt.Errorf("%w: %s (%s)", models.ErrUnsupportedMarket, job.Stock.Market, job.Stock.Code)
	}
	now = now.In(chinaTZ)

	if job.RequestedTypes.Has(models.ReportTypeAnnual) || job.RequestedTypes.HasPeriodic() {
		if job.Stock.Market == models.MarketHKE {
			plan.Periodic = fiscalYearQueries(job, now)
		} else {
			q := Query{
				Stock: job.Stock,
				Start: time.Date(job.FirstYear(), time.January, 1, 0, 0, 0, 0, chinaTZ),
				End:   now,
			}
			for _, t := range job.RequestedTypes.Slice() {
				if c := CategoryFor(t); c != "" {
					q.Categories = append(q.Categories, c)
				}
			}
			plan.Periodic = []Query{q}
		}
	}

	if job.RequestedTypes.Has(models.ReportTypeOther) {
		plan.Recent = &Query{
			Stock: job.Stock,
			Start: now.AddDate(0, 0, -recentDays),
			End:   now,
		}
	}

	return plan, nil
}

// fiscalYearQueries returns one query per window year, newest first
func fiscalYearQueries(job models.DownloadJob, now time.Time) []Query {
	years := append([]int(nil), job.YearWindow...)
	sort.Sort(sort.Reverse(sort.IntSlice(years)))

	queries := make([]Query, 0, len(years))
	for _, y := range years {
		start := time.Date(y, time.January, 1, 0, 0, 0, 0, chinaTZ)
		if start.After(now) {
			continue
		}
		end := time.Date(y+1, time.June, 30, 0, 0, 0, 0, chinaTZ)
		if end.After(now) {
			end = now
		}
		queries = append(queries, Query{Stock: job.Stock, Start: start, End: end})
	}
	return queries
}

// Fetch lists, selects and downloads the job's announcements into staging.
// Listing failures and unsupported markets are fatal; per-file failures are
// reported in the result.
func (f *Fetcher) Fetch(ctx context.Context, job models.DownloadJob, staging string, emit models.EmitFunc) (*models.FetchResult, error) {
	if emit == nil {
		emit = models.Discard
	}

	plan, err := PlanQueries(job, f.now(), f.config.RecentLookbackDays)
	if err != nil {
		return nil, err
	}

	emit(models.ProgressEvent(PercentListing, "查询公告列表..."))

	var periodic, recent []models.AnnouncementMetadata
	if len(plan.Periodic) > 0 {
		seen := make(map[string]struct{})
		var anns []models.AnnouncementMetadata
		for _, q := range plan.Periodic {
			listed, err := f.lister.List(ctx, q, 0)
			if err != nil {
				return nil, fmt.Errorf("periodic listing: %w", err)
			}
			// Fiscal-year windows overlap by half a year
			for _, a := range listed {
				if _, ok := seen[a.ID]; ok && a.ID != "" {
					continue
				}
				seen[a.ID] = struct{}{}
				anns = append(anns, a)
			}
		}
		periodic = classifyAll(anns)
		emit(models.LogEvent(fmt.Sprintf("定期报告列表: %d 条", len(periodic))))
	}
	if plan.Recent != nil {
		anns, err := f.lister.List(ctx, *plan.Recent, f.config.RecentListLimit)
		if err != nil {
			return nil, fmt.Errorf("recent listing: %w", err)
		}
		recent = classifyAll(anns)
		emit(models.LogEvent(fmt.Sprintf("最新公告列表: %d 条", len(recent))))
	}

	selected := Select(periodic, recent, job, SelectPolicy{
		AnnualYears: f.config.AnnualYears,
		RecentLimit: f.config.RecentLimit,
	})

	f.logger.Info().
		Str("code", job.Stock.Code).
		Int("periodic", len(periodic)).
		Int("recent", len(recent)).
		Int("selected", len(selected)).
		Msg("Announcements selected")

	emit(models.ProgressEvent(PercentSelected, fmt.Sprintf("已选择 %d 份文件，开始下载...", len(selected))))

	result := &models.FetchResult{Selected: selected, Recent: recent}
	if len(selected) == 0 {
		return result, nil
	}

	span := PercentDownloads - PercentSelected
	files, failed, err := f.downloader.DownloadAll(ctx, selected, staging, func(done, total int, ann models.AnnouncementMetadata, err error) {
		status := fmt.Sprintf("已下载 %d/%d: %s", done, total, ann.Title)
		if err != nil {
			status = fmt.Sprintf("下载失败 %d/%d: %s", done, total, ann.Title)
		}
		emit(models.ProgressEvent(PercentSelected+span*done/total, status))
	})
	result.Files = files
	result.Failed = failed
	if err != nil {
		return result, err
	}

	f.logger.Info().
		Str("code", job.Stock.Code).
		Int("files", len(files)).
		Int("failed", len(failed)).
		Str("status", result.Status()).
		Msg("Fetch finished")

	return result, nil
}

func classifyAll(anns []models.AnnouncementMetadata) []models.AnnouncementMetadata {
	out := make([]models.AnnouncementMetadata, len(anns))
	for i, a := range anns {
		out[i] = ClassifyAnnouncement(a)
	}
	return out
}
