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
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pgEdge/pgedge-librarian-server/internal/config"
	"github.com/pgEdge/pgedge-librarian-server/internal/logging"
)

// Version information - set via ldflags during build
var (
	version   = "1.0.0-alpha1"
	buildTime = "unknown"
	gitCommit = "unknown"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:   "pgedge-librarian-server",
		Short: "pgEdge Librarian Server - grounded book recommendations on PostgreSQL",
		Long: `pgEdge Librarian Server recommends books from a pgvector corpus of
summaries, grounding every answer in retrieved documents, and illustrates
requests with a policy-aware image cascade.

If --config is not given the configuration is searched for in:
    1. /etc/pgedge/pgedge-librarian-server.yaml
    2. pgedge-librarian-server.yaml (in binary directory)

Variables in a .env file in the working directory are loaded first.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// A missing .env file is normal; a malformed one is not
			if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("failed to load .env: %w", err)
			}
			return nil
		},
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to configuration file")

	root.AddCommand(
		newServeCommand(&configPath),
		newSeedCommand(&configPath),
		newOpenAPICommand(),
		newVersionCommand(),
	)
	return root
}

// loadRuntime loads the configuration and builds the process logger.
func loadRuntime(configPath string) (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to set up logging: %w", err)
	}
	return cfg, logger, nil
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "pgEdge Librarian Server\n")
			_, _ = fmt.Fprintf(out, "  Version:    %s\n", version)
			_, _ = fmt.Fprintf(out, "  Build Time: %s\n", buildTime)
			_, _ = fmt.Fprintf(out, "  Git Commit: %s\n", gitCommit)
		},
	}
}
