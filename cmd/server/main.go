package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/dgnsrekt/roll-pressure/internal/app"
	"github.com/dgnsrekt/roll-pressure/internal/config"
	"github.com/dgnsrekt/roll-pressure/internal/data"
	"github.com/dgnsrekt/roll-pressure/internal/metrics"
	"github.com/dgnsrekt/roll-pressure/internal/server"
	pgstore "github.com/dgnsrekt/roll-pressure/internal/store"
	"github.com/dgnsrekt/roll-pressure/internal/ws"
)

func main() {
	os.Exit(run())
}

func run() int {
	_ = godotenv.Load()

	cfg, err := config.Load(os.Getenv("ROLLPRESSURE_CONFIG"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		return 1
	}

	logger, err := app.NewLogger("server", false, &cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		return 1
	}
	defer logger.Sync()

	reloadEvery, _ := cfg.Server.ReloadEvery()

	logger.Info("configuration loaded",
		zap.String("port", cfg.Server.Port),
		zap.String("dataDir", cfg.Paths.DataProcessed),
		zap.Duration("reloadInterval", reloadEvery),
		zap.Bool("wsEnabled", cfg.Server.WSEnabled),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := data.NewStore(nil)
	m := metrics.New()

	listeners := server.Broadcasters{server.BroadcastFunc(func(snap *data.Snapshot) {
		m.ObserveRows(snap.Rows)
	})}

	var stream http.Handler
	if cfg.Server.WSEnabled {
		hub := ws.NewHub(store, logger)
		go hub.Run(ctx)
		listeners = append(listeners, hub)
		stream = http.HandlerFunc(hub.HandleStream)
		logger.Info("WebSocket enabled", zap.String("path", "/v1/stream"))
	}

	reload := server.NewReloadManager(store, cfg.Paths.DataProcessed, listeners, logger)

	start := time.Now()
	if res, err := reload.Reload(ctx); err != nil {
		if !errors.Is(err, data.ErrNotFound) {
			logger.Error("failed to load data", zap.Error(err))
			return 1
		}
		logger.Warn("no processed output yet, serving without data", zap.String("dir", cfg.Paths.DataProcessed))
	} else {
		logger.Info("data loaded",
			zap.String("source", res.Source),
			zap.Int("rows", res.Rows),
			zap.Duration("duration", time.Since(start)),
		)
	}

	go reload.Run(ctx, reloadEvery)

	var history *server.HistoryHandler
	if cfg.Storage.Postgres.Enabled {
		repo, err := pgstore.Open(ctx, cfg.Storage.Postgres.DSN, time.Duration(cfg.Storage.Postgres.TimeoutSec)*time.Second)
		if err != nil {
			logger.Error("failed to open postgres", zap.Error(err))
			return 1
		}
		defer repo.Close()
		history = server.NewHistoryHandler(repo, logger)
		logger.Info("history enabled", zap.String("path", "/v1/history"))
	}

	srv := server.NewServer(store, reload, logger)
	router := server.NewRouter(srv, server.RouterOptions{
		Metrics: m.Handler(),
		Stream:  stream,
		History: history,
	}, logger)

	httpServer := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		logger.Info("starting server", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", zap.Error(err))
			cancel()
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case <-ctx.Done():
	}

	logger.Info("shutting down server...")

	// Stops the hub and periodic reload
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
		return 1
	}

	logger.Info("server stopped")
	return 0
}
