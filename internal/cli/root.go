// Package cli provides the command-line interface for the research agent.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/cmwaseemyousef/ai-research-agent-atlas-guild/internal/config"
	"github.com/cmwaseemyousef/ai-research-agent-atlas-guild/internal/storage"
	"github.com/cmwaseemyousef/ai-research-agent-atlas-guild/internal/storage/jsonbackend"
	"github.com/cmwaseemyousef/ai-research-agent-atlas-guild/internal/storage/postgres"
	"github.com/cmwaseemyousef/ai-research-agent-atlas-guild/internal/storage/sqlite"
)

var (
	// Version is set at build time.
	Version = "0.1.0"

	// Global flags
	cfgFile string
	verbose bool

	// Initialized by the persistent pre-run
	cfg        config.Config
	logger     *slog.Logger
	logCleanup func() error
	store      storage.Backend
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "research-agent",
	Short: "AI-powered web research pipeline",
	Long: `research-agent answers research questions by searching the web,
extracting content from the resulting pages and PDFs, and synthesizing a
structured report with an LLM. Every query, source, and report is persisted
so past research can be listed and reviewed.`,
	Version: Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "version" || cmd.Name() == "help" {
			return nil
		}

		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return err
		}
		if verbose {
			cfg.LogLevel = slog.LevelDebug
		}

		logger, logCleanup = config.SetupLogger(cfg.LogFile, cfg.LogLevel)
		slog.SetDefault(logger)

		store, err = openBackend(cmd.Context(), cfg)
		if err != nil {
			return fmt.Errorf("open storage backend: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if store != nil {
			if err := store.Close(); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: failed to close storage: %v\n", err)
			}
		}
		if logCleanup != nil {
			_ = logCleanup()
		}
	},
}

func openBackend(ctx context.Context, cfg config.Config) (storage.Backend, error) {
	switch cfg.Backend {
	case config.BackendSQLite:
		return sqlite.New(cfg.SQLitePath)
	case config.BackendPostgres:
		return postgres.New(ctx, cfg.PostgresDSN)
	case config.BackendJSON:
		return jsonbackend.New(cfg.JSONPath)
	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to YAML config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(statsCmd)
}
