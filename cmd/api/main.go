package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpadapter "github.com/ebookgov/property-voice-agent/internal/adapters/http"
	"github.com/ebookgov/property-voice-agent/internal/bootstrap"
	"github.com/ebookgov/property-voice-agent/internal/config"
	"github.com/ebookgov/property-voice-agent/internal/observability/logging"
)

func main() {
	cfg := config.Load()
	logger := logging.NewJSONLogger("api", cfg.InstanceID, cfg.LogLevel)
	slog.SetDefault(logger)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	go func() {
		if err := app.RunInvalidationListener(ctx); err != nil {
			logger.Error("invalidation_listener_failed", "error", err)
		}
	}()

	router := httpadapter.NewRouter(cfg, httpadapter.Services{
		Properties:  app.PropertyUC,
		Listings:    app.ListingUC,
		Knowledge:   app.KnowledgeUC,
		CacheAdmin:  app.CacheAdminUC,
		CacheHealth: app.Cache,
	}, httpadapter.WithMetrics(app.Metrics), httpadapter.WithLogger(logger)).Handler()

	server := &http.Server{
		Addr:              ":" + cfg.APIPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("api_listening", "port", cfg.APIPort, "instance_id", cfg.InstanceID)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api_server_failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("api_shutdown_failed", "error", err)
	}
}
