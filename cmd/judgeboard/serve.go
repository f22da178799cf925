package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/judgeboard/platform/internal/api"
	"github.com/judgeboard/platform/internal/config"
	"github.com/judgeboard/platform/internal/eventbus"
	"github.com/judgeboard/platform/internal/lifecycle"
)

// apiRateLimitMax and apiRateLimitWindow bound requests per team/IP on
// the rate-limited routes (register, login, and submission intake),
// separate from the team-fairness queue priority
// bonus which only affects scheduling order, not admission.
const (
	apiRateLimitMax    = 60
	apiRateLimitWindow = time.Minute
)

func runServe(cfg config.Config, logger *zap.Logger) int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	d, err := buildDeps(cfg, "judgeboard-serve", logger)
	if err != nil {
		logger.Error("startup failed", zap.Error(err))
		return exitStartupErr
	}
	defer d.Close()

	elector, err := newElector(ctx, cfg, logger)
	if err != nil {
		logger.Error("leader election startup failed", zap.Error(err))
		return exitStartupErr
	}
	if closer, ok := elector.(*lifecycle.EtcdElector); ok {
		defer closer.Close()
	}

	hub := eventbus.NewHub(logger)
	hubStop := make(chan struct{})
	go hub.Run(hubStop)
	defer close(hubStop)

	bridge := eventbus.NewBridge(hub, d.msg, logger)
	if err := bridge.Start(); err != nil {
		logger.Error("event bus bridge startup failed", zap.Error(err))
		return exitStartupErr
	}

	d.leaderboard.Start(ctx)
	defer d.leaderboard.Stop()

	scheduler := lifecycle.NewScheduler(d.store, d.leaderboard, elector, d.msg, logger, lifecycleTick)
	go scheduler.Run(ctx)
	defer scheduler.Stop()

	server := api.NewServer(api.Config{
		RateLimitWindow: apiRateLimitWindow,
		RateLimitMax:    apiRateLimitMax,
	}, d.authSvc, d.store, d.rq, hub, d.leaderboard, d.executor, d.msg, logger)

	httpServer := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      server.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("judgeboard serve starting", zap.String("addr", cfg.ListenAddr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
			return
		}
		serveErr <- nil
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			logger.Error("http server failed", zap.Error(err))
			return exitStartupErr
		}
	case <-ctx.Done():
		logger.Info("shutting down judgeboard serve")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("graceful shutdown error", zap.Error(err))
	}

	if ctx.Err() != nil {
		return exitSignal
	}
	return exitOK
}
