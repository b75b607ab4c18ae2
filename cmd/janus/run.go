package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"github.com/Evoker-Industries/Janus/pkg/config"
	"github.com/Evoker-Industries/Janus/pkg/mgmt"
	"github.com/Evoker-Industries/Janus/pkg/server"
	"github.com/Evoker-Industries/Janus/pkg/stats"
	"github.com/Evoker-Industries/Janus/pkg/telemetry/logging"
	"github.com/Evoker-Industries/Janus/pkg/telemetry/metrics"
	"github.com/Evoker-Industries/Janus/pkg/upstream"
)

var runFlags struct {
	logLevel string
	dryRun   bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the Janus proxy server",
	Long: `Start the Janus proxy server with the specified configuration.

The server proxies HTTP requests to the configured upstream pools, serves
the configured static mounts, watches the configuration file for changes,
and exposes the management control plane on its own listener.

Examples:
  # Start with default config
  janus run

  # Start with custom config
  janus run --config /etc/janus/janus.toml

  # Validate config without starting the server
  janus run --dry-run`,
	RunE: runServer,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVar(&runFlags.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	runCmd.Flags().BoolVar(&runFlags.dryRun, "dry-run", false, "validate config without starting server")
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if runFlags.logLevel != "" {
		cfg.Telemetry.Logging.Level = runFlags.logLevel
	}
	if verbose {
		cfg.Telemetry.Logging.Level = "debug"
	}

	logger, err := logging.New(cfg.Telemetry.Logging, os.Stdout)
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	slog.SetDefault(logger)

	if runFlags.dryRun {
		fmt.Println("✓ Configuration valid")
		return nil
	}

	printBanner(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Snapshot store and upstream pool. The pool follows the store for
	// the rest of the process lifetime via the subscription below.
	store := config.NewStore(cfg)
	pool := upstream.NewPool(store.Get(), logger)
	pool.StartProbing(ctx)
	defer pool.StopProbing()

	collector := metrics.NewCollector(cfg.Telemetry.Metrics, nil)
	collector.SetConfigGeneration(store.Get().Generation)

	tracker := stats.NewTracker()

	var records *stats.Store
	if cfg.Stats.Enabled {
		records, err = stats.NewStore(cfg.Stats.Path)
		if err != nil {
			return fmt.Errorf("failed to open stats store: %w", err)
		}
		defer records.Close()

		scheduler := stats.NewScheduler(records, cfg.Stats, logger)
		if err := scheduler.Start(ctx); err != nil {
			return fmt.Errorf("failed to start retention scheduler: %w", err)
		}
		defer scheduler.Stop()

		fmt.Printf("✓ Stats store initialized (%s)\n", cfg.Stats.Path)
	}

	store.Subscribe(func(snap *config.Snapshot) {
		pool.Reconcile(snap)
		collector.SetConfigGeneration(snap.Generation)
		collector.RecordReload("success")
		logger.Info("configuration applied",
			slog.Uint64("generation", snap.Generation),
			slog.Int("upstreams", len(snap.Config.Upstreams)),
			slog.Int("routes", len(snap.Config.Routes)))
	})

	watcher, err := config.NewWatcher(config.WatcherConfig{Path: cfgFile}, store, logger)
	if err != nil {
		return fmt.Errorf("failed to create config watcher: %w", err)
	}
	go func() {
		if err := watcher.Watch(ctx); err != nil {
			logger.Error("config watcher stopped", slog.String("error", err.Error()))
		}
	}()
	defer watcher.Stop()

	if cfg.Management.IsEnabled() {
		var metricsHandler http.Handler
		if cfg.Telemetry.Metrics.Enabled {
			metricsHandler = collector.Handler()
		}
		mgmtServer := mgmt.NewServer(mgmt.ServerConfig{
			Config:         cfg.Management,
			Store:          store,
			Reloader:       watcher,
			Pool:           pool,
			Tracker:        tracker,
			Logger:         logger,
			MetricsHandler: metricsHandler,
			MetricsPath:    cfg.Telemetry.Metrics.Path,
		})
		go func() {
			if err := mgmtServer.Start(ctx); err != nil {
				logger.Error("management server failed", slog.String("error", err.Error()))
			}
		}()
		fmt.Printf("✓ Management listener on %s\n", cfg.Management.Addr())
	}

	srv := server.NewServer(server.Options{
		Config:  cfg.Server,
		Store:   store,
		Pool:    pool,
		Tracker: tracker,
		Metrics: collector,
		Logger:  logger,
		Records: records,
	})

	fmt.Printf("✓ Proxy listening on %s\n", cfg.Server.Addr())
	fmt.Println("\nPress Ctrl+C to stop")

	// Blocks until a termination signal or listener failure.
	return srv.Start(ctx)
}

func printBanner(cfg *config.Config) {
	fmt.Println("Janus reverse proxy")
	fmt.Printf("✓ Configuration loaded from %s\n", cfgFile)
	fmt.Printf("✓ Upstreams configured (%d pools, %d routes, %d static mounts)\n",
		len(cfg.Upstreams), len(cfg.Routes), len(cfg.StaticFiles))
}
