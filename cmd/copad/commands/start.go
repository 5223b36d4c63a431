package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/marmos91/copad/internal/logger"
	"github.com/marmos91/copad/pkg/config"
	"github.com/marmos91/copad/pkg/metrics"
	promMetrics "github.com/marmos91/copad/pkg/metrics/prometheus"
	"github.com/marmos91/copad/pkg/registry"
	"github.com/marmos91/copad/pkg/server"
	"github.com/marmos91/copad/pkg/store"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the copad server",
	Long: `Start the copad server with the specified configuration.

Use --config to specify a custom configuration file; without one the server
reads $XDG_CONFIG_HOME/copad/config.yaml if present and otherwise runs on
defaults (in-memory documents, port 3030).

Examples:
  # Start with defaults
  copad start

  # Start with custom config file
  copad start --config /etc/copad/config.yaml

  # Start with environment variable overrides
  COPAD_LOGGING_LEVEL=DEBUG copad start
  PORT=8000 SQLITE_URI=sqlite://copad.db copad start`,
	RunE: runStart,
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(GetConfigFile())
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := logger.Init(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	}); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger.Info("configuration loaded", "source", getConfigSource(GetConfigFile()))

	// Initialize metrics before anything that records them.
	if cfg.Metrics.Enabled {
		metrics.InitRegistry()
		logger.Info("metrics enabled")
	} else {
		logger.Info("metrics collection disabled")
	}
	collabMetrics := promMetrics.NewCollabMetrics()

	var st store.Store
	if cfg.Database.Enabled {
		gormStore, err := store.New(&cfg.Database.Store)
		if err != nil {
			return fmt.Errorf("failed to open document store: %w", err)
		}
		defer func() {
			if err := gormStore.Close(); err != nil {
				logger.Error("store close error", logger.KeyError, err)
			}
		}()
		st = gormStore
		logger.Info("persistence enabled", "backend", string(cfg.Database.Store.Type))
	} else {
		logger.Info("persistence disabled, documents are in-memory only")
	}

	reg := registry.New(st, collabMetrics, registry.Config{
		Expiry:          cfg.Documents.Expiry,
		CleanupInterval: cfg.Documents.CleanupInterval,
		PersistInterval: cfg.Documents.PersistInterval,
	})
	defer reg.Close()
	go reg.RunCleaner(ctx)

	srv := server.NewServer(cfg.Server, server.NewRouter(reg, st))

	serverDone := make(chan error, 1)
	go func() {
		serverDone <- srv.Start(ctx)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("server is running, press Ctrl+C to stop", "port", cfg.Server.Port)

	select {
	case <-sigChan:
		signal.Stop(sigChan)
		logger.Info("shutdown signal received, initiating graceful shutdown")
		cancel()

		if err := <-serverDone; err != nil {
			logger.Error("server shutdown error", logger.KeyError, err)
			return err
		}
		logger.Info("server stopped gracefully")

	case err := <-serverDone:
		signal.Stop(sigChan)
		if err != nil {
			logger.Error("server error", logger.KeyError, err)
			return err
		}
		logger.Info("server stopped")
	}

	return nil
}

// getConfigSource returns a description of where the config was loaded from.
func getConfigSource(configFile string) string {
	if configFile != "" {
		return configFile
	}
	if config.DefaultConfigExists() {
		return config.GetDefaultConfigPath()
	}
	return "defaults"
}
