package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/zap"

	"github.com/hamed0406/reachmon/internal/config"
	"github.com/hamed0406/reachmon/internal/httpapi"
	apimw "github.com/hamed0406/reachmon/internal/httpapi/middleware"
	"github.com/hamed0406/reachmon/internal/hub"
	"github.com/hamed0406/reachmon/internal/logging"
	"github.com/hamed0406/reachmon/internal/monitor"
	"github.com/hamed0406/reachmon/internal/notify"
	"github.com/hamed0406/reachmon/internal/probe"
	"github.com/hamed0406/reachmon/internal/repo"
	"github.com/hamed0406/reachmon/internal/repo/memory"
	"github.com/hamed0406/reachmon/internal/repo/postgres"
	"github.com/hamed0406/reachmon/internal/repo/sqlite"
	"github.com/hamed0406/reachmon/internal/sink"
)

// shutdownSlack is added on top of the probe grace period.
const shutdownSlack = 5 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the monitor and HTTP API",
	Long: `Start monitoring and serve the HTTP API.

Settings come from the environment (API_ADDR, DATABASE_URL, SQLITE_PATH,
CHECK_INTERVAL_MS, ...) with the optional config file layered on top.
Targets saved by a previous run are restored before the config file's
targets are added.

Storage is postgres when DATABASE_URL is set, sqlite when SQLITE_PATH is
set, and in-memory otherwise.

Example:
  reachmon serve -c reachmon.yaml`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringP("config", "c", "", "path to config file")
	serveCmd.Flags().Bool("log-stderr", false, "log to stderr only, no rotated file")
}

func newLogger(cmd *cobra.Command, cfg config.Config) (*zap.Logger, error) {
	if stderrOnly, _ := cmd.Flags().GetBool("log-stderr"); stderrOnly {
		return logging.NewConsole(cfg.LogLevel)
	}
	return logging.NewLogger(cfg.LogDir, cfg.LogLevel)
}

func openStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (repo.Store, string, error) {
	switch {
	case cfg.DatabaseURL != "":
		pg, err := postgres.New(ctx, cfg.DatabaseURL, logger)
		if err != nil {
			return nil, "", err
		}
		if err := pg.Migrate(ctx); err != nil {
			_ = pg.Close()
			return nil, "", err
		}
		return pg, "postgres", nil
	case cfg.SQLitePath != "":
		st, err := sqlite.Open(sqlite.Config{DSN: cfg.SQLitePath, RetentionAge: cfg.Retention})
		if err != nil {
			return nil, "", err
		}
		return st, "sqlite", nil
	default:
		return memory.New(), "memory", nil
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	logger, err := newLogger(cmd, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, kind, err := openStore(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Warn("store_close_error", zap.Error(err))
		}
	}()
	logger.Info("store_ready", zap.String("kind", kind))

	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer func() { _ = provider.Shutdown(context.Background()) }()
	metrics, err := sink.NewMetrics(provider.Meter("github.com/hamed0406/reachmon"))
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	streams := hub.New(logger, cfg.AllowedOrigins)

	sinks := sink.Multi{
		sink.Log{Logger: logger},
		sink.Store{Results: store, Transitions: store},
		metrics,
		streams,
	}
	if slack := notify.NewSlack(cfg.SlackWebhookURL); slack != nil {
		sinks = append(sinks, sink.NewAlert(store, slack, sink.AlertConfig{
			AlertOnRecovery: cfg.AlertOnRecovery,
			Cooldown:        cfg.AlertCooldown,
		}))
		logger.Info("slack_alerts_enabled", zap.Duration("cooldown", cfg.AlertCooldown))
	}
	async := sink.NewAsync(logger, sinks, cfg.SinkQueueSize)

	exec := probe.NewExecutor(probe.Options{PrivilegedICMP: cfg.Monitor.PrivilegedICMP})
	mon := monitor.New(logger, exec, async, monitor.Options{
		MaxConcurrent: cfg.Monitor.MaxConcurrent,
		ShutdownGrace: cfg.Monitor.ShutdownGrace,
		Store:         store,
	})

	restored, err := mon.Restore(ctx)
	if err != nil {
		logger.Warn("restore_incomplete", zap.Error(err))
	}
	added := 0
	for _, t := range cfg.Targets {
		_, err := mon.RegisterUnique(ctx, t)
		switch {
		case errors.Is(err, monitor.ErrDuplicateTarget):
			logger.Debug("config_target_exists", zap.String("address", t.Address()))
		case err != nil:
			return fmt.Errorf("register %s: %w", t.Address(), err)
		default:
			added++
		}
	}
	logger.Info("targets_loaded", zap.Int("restored", restored), zap.Int("from_config", added))

	api := &httpapi.Server{
		Logger:      logger,
		Monitor:     mon,
		Defaults:    cfg.Monitor,
		Results:     store,
		Transitions: store,
		Scans:       store,
		Prober:      exec,
		Scanner:     exec,
		Hub:         streams,
		Metrics:     reader,
	}
	keys := apimw.Keys{Public: cfg.PublicAPIKeys, Admin: cfg.AdminAPIKeys}
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.Router(keys, cfg.AllowedOrigins, cfg.PublicRPM, cfg.PublicBurst, cfg.AdminRPM, cfg.AdminBurst),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go streams.Run(ctx)

	monDone := make(chan error, 1)
	go func() { monDone <- mon.Run(ctx) }()

	srvErr := make(chan error, 1)
	go func() {
		logger.Info("api_listen", zap.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			srvErr <- err
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutdown_requested")
	case runErr = <-srvErr:
		logger.Error("api_error", zap.Error(runErr))
		stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Monitor.ShutdownGrace+shutdownSlack)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("api_shutdown_error", zap.Error(err))
	}
	select {
	case err := <-monDone:
		if err != nil {
			logger.Warn("monitor_stop_error", zap.Error(err))
		}
	case <-shutdownCtx.Done():
		logger.Warn("shutdown_timed_out", zap.String("action", "forcing exit"))
	}
	if err := async.Close(shutdownCtx); err != nil {
		logger.Warn("sink_drain_incomplete", zap.Uint64("dropped", async.Dropped()), zap.Error(err))
	}

	stats := mon.Stats()
	logger.Info("shutdown_complete",
		zap.Uint64("dispatched", stats.Dispatched),
		zap.Uint64("skipped", stats.Skipped),
		zap.Uint64("abandoned", stats.Abandoned),
	)
	return runErr
}
