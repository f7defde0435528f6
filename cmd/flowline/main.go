package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/anvilops/flowline/internal/api"
	"github.com/anvilops/flowline/internal/engine"
	"github.com/anvilops/flowline/internal/events"
	"github.com/anvilops/flowline/internal/logging"
	"github.com/anvilops/flowline/internal/metrics"
	"github.com/anvilops/flowline/internal/registry"
	"github.com/anvilops/flowline/internal/scheduler"
	"github.com/anvilops/flowline/internal/service"
	"github.com/anvilops/flowline/internal/services"
	"github.com/anvilops/flowline/internal/store"
	"github.com/anvilops/flowline/internal/validation"
)

func main() {
	cfg := loadConfig()
	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	inner := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	return slog.New(logging.NewCorrelationHandler(inner))
}

func run(cfg Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Store.
	var st store.Store
	if cfg.DBPath == "memory" {
		st = store.NewMemoryStore()
	} else {
		if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
			return err
		}
		s, err := store.NewLibSQLStore(cfg.DBPath)
		if err != nil {
			return err
		}
		st = s
	}
	defer st.Close()
	if err := st.Migrate(ctx); err != nil {
		return err
	}

	// Service registry with builtins.
	reg := registry.NewRegistry()
	if err := services.RegisterBuiltins(reg, services.HTTPConfig{}); err != nil {
		return err
	}

	validator, err := validation.NewWorkflowValidator(reg)
	if err != nil {
		return err
	}

	// Engine options.
	var engineOpts []engine.Option
	var promReg *prometheus.Registry
	if cfg.Metrics {
		promReg = prometheus.NewRegistry()
		engineOpts = append(engineOpts, engine.WithMetrics(metrics.New(promReg)))
	}
	if cfg.NATSURL != "" {
		pub, err := events.NewNATSPublisher(cfg.NATSURL, logger)
		if err != nil {
			return err
		}
		defer pub.Close()
		engineOpts = append(engineOpts, engine.WithPublisher(pub))
	}

	eng := engine.New(st, reg, logger, engineOpts...)
	workflows := service.NewWorkflowService(st, eng, validator, logger)

	if cfg.Scheduler {
		sched := scheduler.NewScheduler(st, workflows, logger)
		if err := sched.Start(ctx); err != nil {
			return err
		}
		defer sched.Stop() //nolint:errcheck
	}

	server := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           api.NewServer(workflows, logger, promReg).Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", slog.String("addr", cfg.ListenAddr))
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
