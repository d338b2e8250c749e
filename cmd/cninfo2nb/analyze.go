package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/SharingMan/CNinfo2Notebookllm/internal/app"
	"github.com/SharingMan/CNinfo2Notebookllm/internal/common"
	"github.com/SharingMan/CNinfo2Notebookllm/internal/models"
	"github.com/SharingMan/CNinfo2Notebookllm/internal/services/directory"
	"github.com/SharingMan/CNinfo2Notebookllm/internal/services/pipeline"
)

var analyzeFlags struct {
	mode     string
	types    string
	years    int
	noRecent bool
	output   string
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze <code|name|pinyin>",
	Short: "Download a stock's reports and package them as an archive or notebook",
	Long: `Resolves the stock, downloads its recent annual, semi-annual and quarterly reports
plus recent announcements from CNinfo, then writes a zip archive with the analysis
prompt or uploads everything to a NotebookLM notebook.

Exits 0 when at least one file was delivered, non-zero otherwise.`,
	Args: cobra.ExactArgs(1),
	RunE: runAnalyze,
}

func init() {
	f := analyzeCmd.Flags()
	f.StringVar(&analyzeFlags.mode, "mode", "", "Delivery mode: archive or upload (overrides config)")
	f.StringVar(&analyzeFlags.types, "types", "", "Report types, comma separated: annual,semi,q1,q3,other or all")
	f.IntVar(&analyzeFlags.years, "years", 0, "Lookback years (overrides config)")
	f.BoolVar(&analyzeFlags.noRecent, "no-recent", false, "Skip recent announcements and the digest")
	f.StringVarP(&analyzeFlags.output, "output", "o", "", "Output directory for archives (overrides config)")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	req := pipeline.Request{
		Query: strings.TrimSpace(args[0]),
		Mode:  models.PackageMode(config.Packager.Mode),
		Years: analyzeFlags.years,
	}
	if analyzeFlags.mode != "" {
		req.Mode = models.PackageMode(strings.ToLower(analyzeFlags.mode))
		if !req.Mode.IsValid() {
			return withCode(exitConfig, fmt.Errorf("unknown mode %q", analyzeFlags.mode))
		}
	}
	if analyzeFlags.types != "" {
		set, err := models.ParseReportTypes(analyzeFlags.types)
		if err != nil {
			return withCode(exitConfig, err)
		}
		req.Types = set
	}
	if analyzeFlags.noRecent {
		config.Recent.Enabled = false
	}
	if analyzeFlags.output != "" {
		config.OutputDir = analyzeFlags.output
	}

	application, err := app.New(config, logger)
	if err != nil {
		return withCode(exitFailed, err)
	}
	defer application.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	events := make(chan models.Event, 32)
	done := make(chan struct{})
	common.SafeGo(logger, "analyze-events", func() {
		defer close(done)
		for e := range events {
			printEvent(e)
		}
	})

	record, err := application.Pipeline.Run(ctx, req, events)
	close(events)
	<-done

	if err != nil {
		if c := candidates(err); len(c) > 0 {
			fmt.Fprintln(os.Stderr, "候选股票:")
			printStocks(os.Stderr, c)
		}
		if errors.Is(err, models.ErrUnresolvedStock) && application.Directory.IsSeed() {
			fmt.Fprintln(os.Stderr, directory.RefreshHint)
		}
		return withCode(exitFailed, errors.New(models.Describe(err)))
	}

	printSummary(record)
	if !record.Succeeded() {
		return withCode(exitFailed, fmt.Errorf("run finished with status %s", record.Status))
	}
	return nil
}

func printEvent(e models.Event) {
	switch e.Type {
	case models.EventLog:
		fmt.Println("  " + e.Message)
	case models.EventProgress:
		fmt.Printf("[%3d%%] %s\n", e.Percent, e.Status)
	case models.EventError:
		fmt.Fprintln(os.Stderr, "失败: "+e.Message)
	}
}

func printSummary(r *models.RunRecord) {
	fmt.Println()
	fmt.Printf("股票:   %s (%s)\n", r.StockName, r.StockCode)
	fmt.Printf("文件:   %d 个已下载, %d 个失败\n", r.Downloaded, r.Failed)
	if r.ArchivePath != "" {
		size := ""
		if info, err := os.Stat(r.ArchivePath); err == nil {
			size = " (" + humanize.Bytes(uint64(info.Size())) + ")"
		}
		fmt.Printf("资料包: %s%s\n", r.ArchivePath, size)
		fmt.Printf("目录:   %s\n", filepath.Dir(r.ArchivePath))
	}
	if r.NotebookID != "" {
		fmt.Printf("笔记本: %s\n", r.NotebookID)
	}
	fmt.Printf("状态:   %s, 用时 %s\n", r.Status, r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond))
}

func candidates(err error) []models.StockRecord {
	var unresolved *models.UnresolvedStockError
	if errors.As(err, &unresolved) {
		return unresolved.Candidates
	}
	return nil
}
