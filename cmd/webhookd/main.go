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

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	outboxpg "github.com/trainerbase/taskengine/internal/outbox/repository/postgres"
	"github.com/trainerbase/taskengine/internal/platform/config"
	"github.com/trainerbase/taskengine/internal/platform/database"
	"github.com/trainerbase/taskengine/internal/platform/logger"
	webhttp "github.com/trainerbase/taskengine/internal/webhookd/transport/http"
)

const serviceName = "webhookd"

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load(serviceName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	appLogger := logger.New(serviceName, cfg.LogLevel)
	appLogger.Info("webhook service starting", "log_level", cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dbPool, err := database.NewDBPool(ctx, cfg.PostgresDSN)
	if err != nil {
		appLogger.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	defer dbPool.Close()
	appLogger.Info("connected to postgres")

	taskRepo := outboxpg.NewPgTaskRepository(dbPool, appLogger)
	mandrillHandler := webhttp.NewMandrillHandler(dbPool, taskRepo, appLogger)

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)
	router.Handle("/metrics", promhttp.Handler())
	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	router.Post("/webhooks/mandrill", mandrillHandler.HandleWebhook)

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.WebhookServicePort),
		Handler: router,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			appLogger.Error("http server shutdown failed", "error", err)
		}
	}()

	appLogger.Info("webhook listener starting", "addr", httpServer.Addr)
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		appLogger.Error("webhook service exited with error", "error", err)
		os.Exit(1)
	}
	appLogger.Info("webhook service shut down cleanly")
}
