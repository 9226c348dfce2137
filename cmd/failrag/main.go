package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/failrag/internal/bootstrap"
	"github.com/kailas-cloud/failrag/internal/config"
	logpkg "github.com/kailas-cloud/failrag/internal/logger"
	"github.com/kailas-cloud/failrag/internal/metrics"
	documentrepo "github.com/kailas-cloud/failrag/internal/repository/document"
	"github.com/kailas-cloud/failrag/internal/version"
)

func main() {
	// Load configuration based on ENV
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level, logpkg.FileSink{
		Path:       cfg.Logging.File.Path,
		MaxSizeMB:  cfg.Logging.File.MaxSizeMB,
		MaxBackups: cfg.Logging.File.MaxBackups,
		MaxAgeDays: cfg.Logging.File.MaxAgeDays,
		Compress:   cfg.Logging.File.Compress,
	})
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	settings := bootstrap.ProvidersFromConfig(&cfg)
	providerIDs := make([]string, 0, len(settings))
	for _, s := range settings {
		providerIDs = append(providerIDs, string(s.ID))
	}

	logger.Info("Starting failrag API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.String("snapshot", cfg.Store.SnapshotPath),
		zap.Strings("providers", providerIDs),
	)

	// Register metrics explicitly (no init())
	metrics.RegisterEmbeddingMetrics()
	metrics.RegisterRetrievalMetrics()
	metrics.RegisterHTTPMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := wire(ctx, &cfg, logger)
	if err != nil {
		logger.Fatal("Failed to wire server", zap.Error(err))
	}
	defer app.Close()
	if n, err := app.store.Count(ctx); err == nil {
		logger.Info("Snapshot loaded", zap.Int("documents", n))
	}

	var wg sync.WaitGroup
	if cfg.Store.Watch {
		w := documentrepo.NewWatcher(app.store, cfg.Store.SnapshotPath, app.gen.Bump, logger)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := w.Run(ctx); err != nil {
				logger.Error("Snapshot watcher stopped", zap.Error(err))
			}
		}()
	}

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           app.handler,
		ReadTimeout:       time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		ReadHeaderTimeout: time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout:      time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}
	wg.Wait()

	logger.Info("Server stopped gracefully")
}
