//-------------------------------------------------------------------------
//
// pgEdge Librarian Server
//
// Copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pgEdge/pgedge-librarian-server/internal/config"
	"github.com/pgEdge/pgedge-librarian-server/internal/database"
	"github.com/pgEdge/pgedge-librarian-server/internal/llm/factory"
	"github.com/pgEdge/pgedge-librarian-server/internal/seed"
)

// seedOptions are the flags of the seed command.
type seedOptions struct {
	dataPath  string
	reset     bool
	force     bool
	batchSize int
}

func newSeedCommand(configPath *string) *cobra.Command {
	opts := seedOptions{}

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Create the book table and load embedded summaries",
		Long: `Create the pgvector extension, the book table and its indexes, then
embed each book of the data file and upsert it. Books already stored are
skipped unless --force or --reset is given.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSeed(cmd.Context(), *configPath, opts)
		},
	}

	cmd.Flags().StringVar(&opts.dataPath, "data", "data/book_summaries.json", "JSON file of book summaries")
	cmd.Flags().BoolVar(&opts.reset, "reset", false, "Drop and recreate the book table first")
	cmd.Flags().BoolVar(&opts.force, "force", false, "Re-embed books that are already stored")
	cmd.Flags().IntVar(&opts.batchSize, "batch-size", seed.DefaultBatchSize, "Books embedded per request")
	return cmd
}

func runSeed(ctx context.Context, configPath string, opts seedOptions) error {
	cfg, logger, err := loadRuntime(configPath)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	books, err := seed.LoadBooks(opts.dataPath)
	if err != nil {
		return err
	}

	keys, err := config.NewAPIKeyLoader(cfg.APIKeys).LoadRequiredKeys(cfg)
	if err != nil {
		return fmt.Errorf("failed to load API keys: %w", err)
	}

	embedder, err := factory.NewEmbeddingProvider(cfg.EmbeddingLLM, cfg.Library.Dimensions, keys)
	if err != nil {
		return fmt.Errorf("failed to create embedding provider: %w", err)
	}

	pool, err := database.NewPool(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer pool.Close()

	report, err := seed.Run(ctx, database.NewBooks(pool, cfg.Library), embedder, books, seed.Options{
		Dimensions: cfg.Library.Dimensions,
		Reset:      opts.reset,
		Force:      opts.force,
		BatchSize:  opts.batchSize,
		Logger:     logger,
	})
	if err != nil {
		logger.Error("seeding failed", zap.Error(err))
		return err
	}

	logger.Info("seeding complete",
		zap.String("data", opts.dataPath),
		zap.Int("loaded", report.Loaded),
		zap.Int("skipped", report.Skipped),
		zap.Int("upserted", report.Upserted))
	return nil
}
