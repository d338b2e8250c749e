package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/SharingMan/CNinfo2Notebookllm/internal/common"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("cninfo2nb version %s\n", common.GetFullVersion())
	},
}
