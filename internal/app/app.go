package app

import (
	"fmt"
	"os"

	"github.com/ternarybob/arbor"

	"github.com/SharingMan/CNinfo2Notebookllm/internal/common"
	"github.com/SharingMan/CNinfo2Notebookllm/internal/handlers"
	"github.com/SharingMan/CNinfo2Notebookllm/internal/interfaces"
	"github.com/SharingMan/CNinfo2Notebookllm/internal/models"
	"github.com/SharingMan/CNinfo2Notebookllm/internal/services/cninfo"
	"github.com/SharingMan/CNinfo2Notebookllm/internal/services/directory"
	"github.com/SharingMan/CNinfo2Notebookllm/internal/services/matcher"
	"github.com/SharingMan/CNinfo2Notebookllm/internal/services/packager"
	"github.com/SharingMan/CNinfo2Notebookllm/internal/services/pipeline"
	"github.com/SharingMan/CNinfo2Notebookllm/internal/services/uploader"
	"github.com/SharingMan/CNinfo2Notebookllm/internal/storage/badger"
	"github.com/SharingMan/CNinfo2Notebookllm/internal/worker"
)

// App holds all application components and dependencies
type App struct {
	Config *common.Config
	Logger arbor.ILogger

	// Storage (nil when run history is disabled)
	DB   *badger.BadgerDB
	Runs interfaces.RunStorage

	// Services
	Directory *directory.Directory
	Matcher   *matcher.Matcher
	Client    *cninfo.Client
	Fetcher   *cninfo.Fetcher
	Uploader  *uploader.CLIUploader
	Packager  *packager.Packager
	Pipeline  *pipeline.Pipeline

	// HTTP handlers
	APIHandler      *handlers.APIHandler
	PageHandler     *handlers.PageHandler
	SearchHandler   *handlers.SearchHandler
	AnalyzeHandler  *handlers.AnalyzeHandler
	DownloadHandler *handlers.DownloadHandler
	RunsHandler     *handlers.RunsHandler
}

// New initializes the application with all dependencies
func New(cfg *common.Config, logger arbor.ILogger) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: logger,
	}

	if err := app.initDatabase(); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	if err := app.initServices(); err != nil {
		app.Close()
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	app.initHandlers()

	logger.Info().
		Int("stocks", app.Directory.Len()).
		Str("mode", cfg.Packager.Mode).
		Bool("history", app.Runs != nil).
		Msg("Application initialization complete")

	return app, nil
}

// initDatabase opens run history storage (Badger)
func (a *App) initDatabase() error {
	if !a.Config.Storage.Badger.Enabled {
		a.Logger.Debug().Msg("Run history disabled")
		return nil
	}

	db, err := badger.NewBadgerDB(a.Logger, &a.Config.Storage.Badger)
	if err != nil {
		return err
	}
	a.DB = db
	a.Runs = badger.NewRunStorage(db, a.Logger)

	a.Logger.Debug().
		Str("storage", "badger").
		Str("path", a.Config.Storage.Badger.Path).
		Msg("Storage layer initialized")
	return nil
}

// initServices wires directory, matcher, registry client, fetcher, packager and pipeline
func (a *App) initServices() error {
	cfg := a.Config

	dir, err := directory.Load(cfg.Directory.Path, a.Logger)
	if err != nil {
		return err
	}
	a.Directory = dir
	a.Matcher = matcher.New(dir, cfg.Search.Limit, cfg.Search.ResolveThreshold)

	a.Client = NewClient(cfg, a.Logger)

	var verifier cninfo.Verifier
	if cfg.Download.VerifyPDF {
		verifier = cninfo.NewPDFVerifier()
	}
	pool := worker.NewWorkerPool(a.Logger, cfg.Download.Workers)
	downloader := cninfo.NewDownloader(a.Client, pool, verifier, a.Logger)

	a.Fetcher = cninfo.NewFetcher(a.Client, downloader, cninfo.FetcherConfig{
		LookbackYears:      cfg.Download.LookbackYears,
		AnnualYears:        cfg.Download.AnnualYears,
		RecentEnabled:      cfg.Recent.Enabled,
		RecentLookbackDays: cfg.Recent.LookbackDays,
		RecentListLimit:    cfg.Recent.ListLimit,
		RecentLimit:        cfg.Recent.DownloadLimit,
	}, a.Logger)

	a.Uploader = uploader.NewCLIUploader(a.Logger,
		uploader.WithCommand(cfg.Uploader.Command),
		uploader.WithTimeout(common.ParseDuration(cfg.Uploader.Timeout, uploader.DefaultTimeout)),
		uploader.WithResponseLength(cfg.Uploader.ResponseLength),
	)

	prompt, err := packager.LoadPrompt(cfg.Packager.PromptFile)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(cfg.OutputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory %s: %w", cfg.OutputDir, err)
	}
	a.Packager = packager.New(cfg.OutputDir, cfg.Packager.PromptName, prompt, a.Uploader, a.Logger)

	a.Pipeline = pipeline.New(a.Matcher, a.Fetcher, a.Packager, a.Runs, cfg.StagingDir, a.Logger)
	return nil
}

func (a *App) initHandlers() {
	cfg := a.Config

	a.APIHandler = handlers.NewAPIHandler(a.Directory, a.Logger)
	a.PageHandler = handlers.NewPageHandler(cfg.Packager.Mode, a.Logger)
	a.SearchHandler = handlers.NewSearchHandler(a.Matcher, cfg.Search.Limit, a.Logger)
	a.AnalyzeHandler = handlers.NewAnalyzeHandler(a.Pipeline, models.PackageMode(cfg.Packager.Mode), cfg.Server.MaxConcurrentRuns, a.Logger)
	a.DownloadHandler = handlers.NewDownloadHandler(cfg.OutputDir, a.Logger)
	a.RunsHandler = handlers.NewRunsHandler(a.Runs, a.Logger)
}

// NewClient builds the registry client from configuration
func NewClient(cfg *common.Config, logger arbor.ILogger) *cninfo.Client {
	return cninfo.NewClient(
		cninfo.WithBaseURL(cfg.Registry.BaseURL),
		cninfo.WithStaticURL(cfg.Registry.StaticURL),
		cninfo.WithLogger(logger),
		cninfo.WithTimeout(common.ParseDuration(cfg.Registry.Timeout, cninfo.DefaultTimeout)),
		cninfo.WithRetry(
			cfg.Registry.RetryMax,
			common.ParseDuration(cfg.Registry.RetryWaitMin, cninfo.DefaultRetryWaitMin),
			common.ParseDuration(cfg.Registry.RetryWaitMax, cninfo.DefaultRetryWaitMax),
		),
		cninfo.WithRateLimit(cfg.Registry.RateLimit),
		cninfo.WithPaging(cfg.Registry.PageSize, cfg.Registry.MaxPages),
		cninfo.WithUserAgent(cfg.Registry.UserAgent),
	)
}

// Close releases storage
func (a *App) Close() error {
	if a.Runs != nil {
		if err := a.Runs.Close(); err != nil {
			return fmt.Errorf("failed to close storage: %w", err)
		}
		a.Logger.Info().Msg("Storage closed")
	}
	return nil
}
