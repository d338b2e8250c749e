package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/SharingMan/CNinfo2Notebookllm/internal/app"
	"github.com/SharingMan/CNinfo2Notebookllm/internal/common"
	"github.com/SharingMan/CNinfo2Notebookllm/internal/server"
)

var serveFlags struct {
	port int
	host string
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the web UI and API server",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().IntVarP(&serveFlags.port, "port", "p", 0, "Server port (overrides config)")
	serveCmd.Flags().StringVar(&serveFlags.host, "host", "", "Server host (overrides config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	common.ApplyFlagOverrides(config, serveFlags.port, serveFlags.host)
	if err := config.Validate(); err != nil {
		return withCode(exitConfig, err)
	}

	common.PrintBanner(config)

	application, err := app.New(config, logger)
	if err != nil {
		return withCode(exitFailed, err)
	}
	defer application.Close()

	srv := server.New(application)
	serverErr := make(chan error, 1)
	common.SafeGo(logger, "http-server", func() {
		serverErr <- srv.Start()
	})

	logger.Info().
		Str("url", fmt.Sprintf("http://%s:%d", config.Server.Host, config.Server.Port)).
		Msg("Server ready - Press Ctrl+C to stop")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigChan:
		logger.Info().Msg("Interrupt signal received")
	case err := <-serverErr:
		if err != nil {
			return withCode(exitFailed, err)
		}
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("Server shutdown failed")
	}

	logger.Info().Msg("Server stopped")
	return nil
}
