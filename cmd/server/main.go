package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"video-digest/internal/app"
	"video-digest/internal/digest"
	"video-digest/internal/platform/config"
	"video-digest/internal/platform/logger"
	"video-digest/internal/platform/metrics"

	"github.com/go-chi/chi/v5"
)

const shutdownTimeout = 10 * time.Second

func main() {
	_ = config.Load()

	settings, err := config.LoadSettings(config.GetEnv("CONFIG_FILE", ""))
	if err != nil {
		logger.New("info", "json").Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	log := logger.New(settings.Server.LogLevel, settings.Server.LogFormat)
	met := metrics.New()

	a, err := app.New(context.Background(), settings, log, app.WithMetrics(met))
	if err != nil {
		log.Error("startup failed", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	h := digest.NewHandler(a.Service, log, settings.Production())

	r := chi.NewRouter()
	r.Use(logger.RequestLogger(log))
	r.Use(metrics.RequestMiddleware(met, "/metrics"))
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		met.Handler(func() { met.SetCachedResults(a.Service.CachedResults(r.Context())) }).ServeHTTP(w, r)
	})
	r.Get("/healthz", h.Health)
	r.Get("/summarize", h.Summarize)
	r.Get("/api/summarise", h.Summarize)
	r.Get("/analytics/top", h.TopVideos)

	addr := ":" + settings.Server.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	log.Info("server starting",
		"port", settings.Server.Port,
		"environment", settings.Server.Environment,
		"provider", settings.Generation.Provider,
		"pipeline_timeout", settings.Pipeline.Timeout.String(),
		"log_level", settings.Server.LogLevel,
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Info("shutdown signal received, draining connections")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("shutdown error", "error", err)
		a.Close()
		os.Exit(1)
	}

	log.Info("server stopped")
}
