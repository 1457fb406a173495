// Package main provides the entry point for the clip generation API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/maauso/clipgen-api/internal/bootstrap"
	"github.com/maauso/clipgen-api/internal/config"
	"github.com/maauso/clipgen-api/internal/server"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Load configuration from .env and the environment
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// Create structured logger
	logger := cfg.NewLogger()
	slog.SetDefault(logger)

	logger.Info("starting clipgen API",
		slog.Int("port", cfg.Port),
		slog.String("log_format", cfg.LogFormat),
		slog.String("log_level", cfg.LogLevel),
		slog.String("workspace_root", cfg.WorkspaceRoot),
		slog.Int("workers", cfg.Workers),
		slog.Int("queue_size", cfg.QueueSize),
		slog.Duration("retention", cfg.Retention),
		slog.Bool("s3_enabled", cfg.S3Enabled()),
	)

	deps, err := bootstrap.NewDependencies(cfg, logger)
	if err != nil {
		return fmt.Errorf("initialize dependencies: %w", err)
	}

	// Start-up housekeeping: drop expired workspaces, then close out tasks
	// a previous process left mid-flight.
	startupCtx := context.Background()
	if n, err := deps.Sweeper.Sweep(startupCtx, cfg.Retention); err != nil {
		logger.Warn("startup sweep failed", slog.String("error", err.Error()))
	} else {
		logger.Info("startup sweep complete", slog.Int("reclaimed", n))
	}
	if n, err := deps.Sweeper.Recover(startupCtx); err != nil {
		logger.Warn("startup recovery failed", slog.String("error", err.Error()))
	} else if n > 0 {
		logger.Info("marked abandoned tasks", slog.Int("count", n))
	}

	// Background workers
	workCtx, stopWork := context.WithCancel(context.Background())
	defer stopWork()
	g, gctx := errgroup.WithContext(workCtx)
	g.Go(func() error {
		return deps.Dispatcher.Start(gctx)
	})
	if cfg.SweepInterval > 0 {
		g.Go(func() error {
			deps.Sweeper.Run(gctx, cfg.SweepInterval, cfg.Retention)
			return nil
		})
	}

	router := server.NewRouter(deps.Handlers, logger, server.DefaultConfig())

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 300 * time.Second, // Allow for large video downloads
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown handling
	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, os.Interrupt, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening",
			slog.String("addr", srv.Addr),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("server failed: %w", err)
		}
	}()

	var runErr error
	select {
	case sig := <-shutdownCh:
		logger.Info("received shutdown signal",
			slog.String("signal", sig.String()),
		)
	case runErr = <-errCh:
	}

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	logger.Info("shutting down server...")
	if err := srv.Shutdown(ctx); err != nil {
		runErr = errors.Join(runErr, fmt.Errorf("shutdown failed: %w", err))
	}

	// Running tasks are cancelled and recorded; queued ones are recovered on next start.
	stopWork()
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		runErr = errors.Join(runErr, fmt.Errorf("workers: %w", err))
	}

	if runErr == nil {
		logger.Info("server stopped gracefully")
	}
	return runErr
}
