package main

import (
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/SharingMan/CNinfo2Notebookllm/internal/models"
	"github.com/SharingMan/CNinfo2Notebookllm/internal/services/directory"
	"github.com/SharingMan/CNinfo2Notebookllm/internal/services/matcher"
)

var searchLimit int

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search the stock directory by code, name or pinyin",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, err := directory.Load(config.Directory.Path, logger)
		if err != nil {
			return withCode(exitFailed, err)
		}

		limit := searchLimit
		if limit <= 0 {
			limit = config.Search.Limit
		}
		matches := matcher.New(dir, limit, config.Search.ResolveThreshold).Rank(args[0], limit)
		if len(matches) == 0 {
			fmt.Printf("没有找到匹配 %q 的股票\n", args[0])
			if dir.IsSeed() {
				fmt.Println(directory.RefreshHint)
			}
			return nil
		}

		table := tablewriter.NewWriter(os.Stdout)
		table.SetHeader([]string{"Code", "Name", "Market", "Pinyin", "Score"})
		for _, m := range matches {
			table.Append([]string{m.Record.Code, m.Record.Name, string(m.Record.Market), m.Record.Pinyin, strconv.Itoa(m.Score)})
		}
		table.Render()
		return nil
	},
}

func init() {
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", 0, "Maximum results (default from config)")
}

// printStocks renders records as a table
func printStocks(w io.Writer, records []models.StockRecord) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Code", "Name", "Market"})
	for _, r := range records {
		table.Append([]string{r.Code, r.Name, string(r.Market)})
	}
	table.Render()
}
