package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/SharingMan/CNinfo2Notebookllm/internal/app"
	"github.com/SharingMan/CNinfo2Notebookllm/internal/models"
	"github.com/SharingMan/CNinfo2Notebookllm/internal/services/directory"
)

var refreshOut string

var directoryCmd = &cobra.Command{
	Use:   "directory",
	Short: "Manage the stock directory dataset",
}

var directoryRefreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Download the registry stock lists and write a dataset file",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := refreshOut
		if out == "" {
			out = config.Directory.Path
		}
		if out == "" {
			return withCode(exitConfig, fmt.Errorf("no output path: pass --out or set directory.path"))
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		records, err := app.NewClient(config, logger).FetchStockList(ctx)
		if err != nil {
			return withCode(exitFailed, err)
		}
		if err := directory.WriteFile(out, records); err != nil {
			return withCode(exitFailed, err)
		}

		by := directory.New(records).Markets()
		logger.Info().
			Str("path", out).
			Int("stocks", len(records)).
			Msg("Stock directory written")
		fmt.Printf("已写入 %d 只股票到 %s\n", len(records), out)
		markets := make([]string, 0, len(by))
		for market := range by {
			markets = append(markets, string(market))
		}
		sort.Strings(markets)
		for _, market := range markets {
			fmt.Printf("  %-5s %d\n", market, by[models.Market(market)])
		}
		return nil
	},
}

func init() {
	directoryRefreshCmd.Flags().StringVarP(&refreshOut, "out", "o", "", "Dataset file to write (default directory.path)")
	directoryCmd.AddCommand(directoryRefreshCmd)
}
