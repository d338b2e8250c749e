package main

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/SharingMan/CNinfo2Notebookllm/internal/models"
	"github.com/SharingMan/CNinfo2Notebookllm/internal/storage/badger"
)

var historyFlags struct {
	limit  int
	status string
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent analysis runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !config.Storage.Badger.Enabled {
			fmt.Println("运行记录已禁用 (storage.badger.enabled = false)")
			return nil
		}

		// History must never be wiped by a read
		cfg := config.Storage.Badger
		cfg.ResetOnStartup = false
		db, err := badger.NewBadgerDB(logger, &cfg)
		if err != nil {
			return withCode(exitFailed, err)
		}
		runs := badger.NewRunStorage(db, logger)
		defer runs.Close()

		ctx := context.Background()
		var records []*models.RunRecord
		if historyFlags.status != "" {
			records, err = runs.ListRunsByStatus(ctx, historyFlags.status, historyFlags.limit)
		} else {
			records, err = runs.ListRuns(ctx, historyFlags.limit)
		}
		if err != nil {
			return withCode(exitFailed, err)
		}
		if len(records) == 0 {
			fmt.Println("暂无运行记录")
			return nil
		}

		table := tablewriter.NewWriter(os.Stdout)
		table.SetHeader([]string{"Run", "Started", "Stock", "Mode", "Status", "Files", "Failed", "Result"})
		for _, r := range records {
			result := r.ArchivePath
			if r.NotebookID != "" {
				result = r.NotebookID
			}
			if r.Error != "" {
				result = r.Error
			}
			table.Append([]string{
				r.ID,
				humanize.Time(r.StartedAt),
				fmt.Sprintf("%s %s", r.StockCode, r.StockName),
				string(r.Mode),
				r.Status,
				strconv.Itoa(r.Downloaded),
				strconv.Itoa(r.Failed),
				result,
			})
		}
		table.Render()
		return nil
	},
}

func init() {
	historyCmd.Flags().IntVarP(&historyFlags.limit, "limit", "n", 20, "Maximum runs to list")
	historyCmd.Flags().StringVar(&historyFlags.status, "status", "", "Only runs with this status (complete, partial, failed, running)")
}
