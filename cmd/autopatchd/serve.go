package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/autopatchd/internal/config"
	apihttp "github.com/fyrsmithlabs/autopatchd/internal/http"
	"github.com/fyrsmithlabs/autopatchd/internal/knowledge"
	"github.com/fyrsmithlabs/autopatchd/internal/router"
)

// runServe starts the daemon and blocks until ctx is cancelled.
//
// Startup order:
//  1. Load and validate configuration
//  2. Telemetry and logger
//  3. Store, approvals, knowledge base and router
//  4. Background loops: poller, Telegram listener, knowledge watcher
//  5. HTTP API
//
// Shutdown stops the HTTP server first, then waits for the loops.
func runServe(ctx context.Context) error {
	cfg, err := config.LoadWithFile(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger, tel, err := setupLogging(ctx, cfg, false)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Duration())
		defer cancel()
		if err := tel.Shutdown(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown failed", zap.Error(err))
		}
		_ = logger.Sync()
	}()

	logger.Info("starting autopatchd",
		zap.String("version", version),
		zap.String("commit", gitCommit),
		zap.Int("port", cfg.Server.Port),
		zap.String("approval_backend", cfg.Approval.Backend))

	a, err := newApp(ctx, cfg, logger, tel, true)
	if err != nil {
		return err
	}
	defer a.Close()

	srv, err := apihttp.NewServer(apihttp.Deps{
		Store:     a.store,
		Router:    a.router,
		Pending:   a.pending(),
		Decider:   a.decider,
		Whitelist: a.whitelist,
		Scrubber:  a.scrubber,
		Checks:    a.healthChecks(),
	}, logger, &apihttp.Config{
		Host:     cfg.Server.Host,
		Port:     cfg.Server.Port,
		APIToken: cfg.Server.APIToken.Value(),
	})
	if err != nil {
		return fmt.Errorf("creating http server: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	var wg sync.WaitGroup
	goLoop := func(name string, fn func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(runCtx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("background loop stopped", zap.String("loop", name), zap.Error(err))
			}
		}()
	}

	if cfg.Router.DisablePolling {
		logger.Info("ticket polling disabled")
	} else {
		goLoop("poller", router.NewPoller(a.router, logger).Start)
	}
	if a.telegram != nil {
		goLoop("telegram", a.telegram.Start)
	}
	if a.indexer != nil {
		goLoop("knowledge", func(ctx context.Context) error {
			return runKnowledge(ctx, a, logger)
		})
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case err := <-errCh:
		cancel()
		wg.Wait()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down", zap.Duration("timeout", cfg.Server.ShutdownTimeout.Duration()))
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Duration())
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown failed", zap.Error(err))
	}
	cancel()
	wg.Wait()
	logger.Info("shutdown complete")
	return nil
}

// runKnowledge indexes the documentation tree once and, when configured,
// keeps it in sync until ctx is cancelled.
func runKnowledge(ctx context.Context, a *app, logger *zap.Logger) error {
	n, err := a.indexer.IndexAll(ctx)
	if err != nil {
		logger.Warn("initial knowledge index failed", zap.Error(err))
	} else {
		logger.Info("knowledge indexed", zap.Int("chunks", n), zap.Int("documents", a.corpus.Count()))
	}
	if !a.cfg.Knowledge.Watch {
		return nil
	}
	w, err := knowledge.NewWatcher(a.indexer, a.cfg.Knowledge.Debounce.Duration(), logger)
	if err != nil {
		return fmt.Errorf("starting knowledge watcher: %w", err)
	}
	defer w.Close()
	w.Run(ctx)
	return ctx.Err()
}
