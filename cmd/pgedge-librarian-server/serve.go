//-------------------------------------------------------------------------
//
// pgEdge Librarian Server
//
// Portions copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pgEdge/pgedge-librarian-server/internal/pipeline"
	"github.com/pgEdge/pgedge-librarian-server/internal/server"
)

func newServeCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(*configPath)
		},
	}
}

func runServe(configPath string) error {
	cfg, logger, err := loadRuntime(configPath)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("configuration loaded",
		zap.String("table", cfg.Library.Table),
		zap.Int("dimensions", cfg.Library.Dimensions))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	pm, err := pipeline.NewManager(ctx, pipeline.ManagerConfig{
		Config: cfg,
		Logger: logger,
	})
	cancel()
	if err != nil {
		logger.Error("failed to create pipeline manager", zap.Error(err))
		return err
	}
	defer func() {
		if err := pm.Close(); err != nil {
			logger.Error("failed to close pipeline manager", zap.Error(err))
		}
	}()

	// Create and start server
	srv := server.New(cfg, pm, logger)

	// Handle graceful shutdown
	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(shutdownCh)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	// Wait for shutdown signal or server error
	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", zap.Error(err))
			return err
		}
		return nil
	case sig := <-shutdownCh:
		logger.Info("received shutdown signal", zap.String("signal", sig.String()))

		// Give 30 seconds for graceful shutdown
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		return srv.Shutdown(ctx)
	}
}

func newOpenAPICommand() *cobra.Command {
	return &cobra.Command{
		Use:   "openapi",
		Short: "Output the OpenAPI v3 specification as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			encoder := json.NewEncoder(cmd.OutOrStdout())
			encoder.SetIndent("", "  ")
			if err := encoder.Encode(server.BuildOpenAPISpec()); err != nil {
				return fmt.Errorf("failed to encode OpenAPI spec: %w", err)
			}
			return nil
		},
	}
}
