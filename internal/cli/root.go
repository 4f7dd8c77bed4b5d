// Package cli provides the command-line interface for oskour.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/oskour/internal/chat"
	"github.com/raphaelgruber/oskour/internal/client"
	"github.com/raphaelgruber/oskour/internal/config"
	"github.com/raphaelgruber/oskour/internal/incident"
	"github.com/raphaelgruber/oskour/internal/metrics"
	"github.com/raphaelgruber/oskour/internal/session"
	"github.com/raphaelgruber/oskour/internal/storage"
)

// sqlitePollInterval is how often the SQLite store looks for commits by other processes.
const sqlitePollInterval = 500 * time.Millisecond

// fullScreen marks commands that take over the terminal; they log to the file only.
const fullScreen = "fullscreen"

var (
	// Version is set at build time.
	Version = "0.1.0"

	// Global flags
	verbose bool

	// Global config and shared components
	cfg       config.Config
	logger    *slog.Logger
	closeLog  func() error
	kv        storage.Store
	collector *metrics.Collector
	api       *client.Client
	sessions  *session.Provider
	incidents *incident.Store
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "oskour",
	Short: "Helpdesk assistant client",
	Long: `Oskour is a terminal client for the helpdesk question-answering service.

Chat with the assistant, rate its answers, follow trending questions,
watch the incident ticker and the statistics dashboard.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Skip setup for version and help commands
		if cmd.Name() == "version" || cmd.Name() == "help" {
			return nil
		}

		cfg = config.Load()
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}
		if verbose {
			cfg.LogLevel = slog.LevelDebug
		}

		if isFullScreen(cmd) {
			logger, closeLog = config.SetupFileLogger(cfg.LogFile, cfg.LogLevel)
		} else {
			logger, closeLog = config.SetupLogger(cfg.LogFile, cfg.LogLevel)
		}
		slog.SetDefault(logger)

		ctx := context.Background()
		var err error
		kv, err = openStore(ctx, cfg, logger)
		if err != nil {
			return fmt.Errorf("open %s store: %w", cfg.Store, err)
		}

		collector = metrics.NewCollector()
		api = client.New(cfg.APIURL,
			client.WithTimeout(cfg.ClientTimeout),
			client.WithLogger(logger),
			client.WithMetrics(collector),
			client.WithRateLimit(cfg.RateLimit, 1),
		)
		sessions = session.NewProvider(kv, logger)
		incidents = incident.NewStore(kv, logger)

		if err := incidents.InitializeIfAbsent(ctx); err != nil {
			logger.Warn("incident list not seeded", "error", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if kv != nil {
			if err := kv.Close(); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: failed to close store: %v\n", err)
			}
		}
		if closeLog != nil {
			_ = closeLog()
		}
	},
}

// openStore creates the configured key-value backend.
func openStore(ctx context.Context, c config.Config, log *slog.Logger) (storage.Store, error) {
	switch c.Store {
	case config.StoreMemory:
		return storage.NewMemoryStore(), nil
	case config.StoreSQLite:
		if err := os.MkdirAll(c.StateDir, 0o755); err != nil {
			return nil, fmt.Errorf("create state dir: %w", err)
		}
		store, err := storage.NewSQLiteStore(ctx, filepath.Join(c.StateDir, "state.db"), sqlitePollInterval, log)
		if err != nil {
			return nil, err
		}
		return store, nil
	case config.StoreSurrealDB:
		store, err := storage.NewSurrealStore(ctx, storage.SurrealConfig{
			URL:       c.SurrealDBURL,
			Namespace: c.SurrealDBNamespace,
			Database:  c.SurrealDBDatabase,
			Username:  c.SurrealDBUser,
			Password:  c.SurrealDBPass,
			AuthLevel: c.SurrealDBAuthLevel,
		}, log)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		store, err := storage.NewFileStore(c.StateDir, log)
		if err != nil {
			return nil, err
		}
		return store, nil
	}
}

// isFullScreen reports whether cmd, or one of its parents, draws a full-screen view.
func isFullScreen(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if _, ok := c.Annotations[fullScreen]; ok {
			return true
		}
	}
	return false
}

// chatConfig returns the widget configuration for a variant with the loaded settings applied.
func chatConfig(v chat.Variant) chat.Config {
	cc := chat.DefaultConfig(v)
	cc.KnowledgeBase = cfg.KnowledgeBase
	cc.Model = cfg.Model
	cc.TrendingLimit = cfg.TrendingLimit
	cc.TrendingInterval = cfg.TrendingInterval
	cc.TypingDelayMin = cfg.TypingDelayMin
	cc.TypingDelayMax = cfg.TypingDelayMax
	return cc
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	// Add subcommands
	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(sessionCmd)
	rootCmd.AddCommand(feedbackCmd)
	rootCmd.AddCommand(trendingCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(incidentCmd)
	rootCmd.AddCommand(tickerCmd)
	rootCmd.AddCommand(dashboardCmd)
}
