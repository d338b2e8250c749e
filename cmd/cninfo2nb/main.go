package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/ternarybob/arbor"

	"github.com/SharingMan/CNinfo2Notebookllm/internal/common"
)

// Exit codes
const (
	exitOK     = 0
	exitFailed = 1 // Fatal pipeline or command error
	exitCrash  = 2 // Panic, see common.RecoverAndExit
	exitConfig = 3
)

var (
	// Multiple -c flags supported, later files override earlier ones
	configFiles []string
	logLevel    string

	// Global state
	config *common.Config
	logger arbor.ILogger
)

// exitError carries a process exit code through cobra
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func withCode(code int, err error) error {
	return &exitError{code: code, err: err}
}

var rootCmd = &cobra.Command{
	Use:           "cninfo2nb",
	Short:         "Download CNinfo financial disclosures and package them for notebook analysis",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "version" {
			return nil
		}
		return loadConfig()
	},
}

func init() {
	rootCmd.PersistentFlags().StringArrayVarP(&configFiles, "config", "c", nil, "Configuration file path (repeatable, later files override earlier ones)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (overrides config)")

	rootCmd.AddCommand(analyzeCmd, searchCmd, serveCmd, historyCmd, directoryCmd, versionCmd)
}

// loadConfig runs defaults -> each -c file -> env, then validates and sets up logging
func loadConfig() error {
	if len(configFiles) == 0 {
		if _, err := os.Stat("cninfo2nb.toml"); err == nil {
			configFiles = append(configFiles, "cninfo2nb.toml")
		}
	}

	var err error
	config, err = common.LoadFromFiles(configFiles...)
	if err != nil {
		return withCode(exitConfig, err)
	}
	if logLevel != "" {
		config.Logging.Level = logLevel
	}
	if err := config.Validate(); err != nil {
		return withCode(exitConfig, err)
	}

	logger = common.InitLogger(config)
	logger.Debug().
		Strs("config_files", configFiles).
		Str("log_level", config.Logging.Level).
		Str("output_dir", config.OutputDir).
		Msg("Configuration loaded")
	return nil
}

func main() {
	defer common.RecoverAndExit()
	common.InstallCrashHandler("logs")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "错误: %v\n", err)

		var ee *exitError
		if errors.As(err, &ee) {
			os.Exit(ee.code)
		}
		os.Exit(exitFailed)
	}
}
