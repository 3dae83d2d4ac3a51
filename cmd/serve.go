package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/cwbudde/offloadtest/internal/server"
	"github.com/cwbudde/offloadtest/internal/store"
	"github.com/spf13/cobra"
)

var (
	serveAddr    string
	serveDataDir string
	serveNoStore bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the comparison HTTP server",
	Long: `Starts an HTTP server that runs image comparisons as background jobs.

  POST /api/v1/jobs               {"expected", "actual", "mode", "metric", "rulesPath"}
  GET  /api/v1/jobs               list jobs
  GET  /api/v1/jobs/:id           job status and printed report
  GET  /api/v1/jobs/:id/stream    server-sent state changes
  GET  /api/v1/jobs/:id/diff.png  per-channel difference image
  GET  /api/v1/reports[/:id]      stored reports`,
	RunE: func(cmd *cobra.Command, args []string) error {
		var reportStore *store.FSStore
		if !serveNoStore {
			var err error
			if reportStore, err = store.NewFSStore(serveDataDir); err != nil {
				return fmt.Errorf("failed to create report store: %w", err)
			}
		}

		srv := server.NewServer(serveAddr, reportStore)

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		errCh := make(chan error, 1)
		go func() {
			errCh <- srv.Start()
		}()

		select {
		case err := <-errCh:
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err
		case <-ctx.Done():
		}

		slog.Info("Received shutdown signal")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "localhost:8080", "Listen address")
	serveCmd.Flags().StringVar(&serveDataDir, "data-dir", "./data", "Base directory for report storage")
	serveCmd.Flags().BoolVar(&serveNoStore, "no-store", false, "Keep results in memory only")

	rootCmd.AddCommand(serveCmd)
}
