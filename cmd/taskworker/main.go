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
	"golang.org/x/sync/errgroup"

	billingapp "github.com/trainerbase/taskengine/internal/billing/app"
	"github.com/trainerbase/taskengine/internal/billing/adapters/paymentgateway"
	billingpg "github.com/trainerbase/taskengine/internal/billing/repository/postgres"
	"github.com/trainerbase/taskengine/internal/mailing/adapters/mailer"
	mailingapp "github.com/trainerbase/taskengine/internal/mailing/app"
	mailingpg "github.com/trainerbase/taskengine/internal/mailing/repository/postgres"
	notificationapp "github.com/trainerbase/taskengine/internal/notification/app"
	"github.com/trainerbase/taskengine/internal/notification/adapters/pushprovider"
	notificationpg "github.com/trainerbase/taskengine/internal/notification/repository/postgres"
	outboxapp "github.com/trainerbase/taskengine/internal/outbox/app"
	outboxdomain "github.com/trainerbase/taskengine/internal/outbox/domain"
	outboxpg "github.com/trainerbase/taskengine/internal/outbox/repository/postgres"
	"github.com/trainerbase/taskengine/internal/platform/config"
	"github.com/trainerbase/taskengine/internal/platform/database"
	"github.com/trainerbase/taskengine/internal/platform/logger"
	provisioningapp "github.com/trainerbase/taskengine/internal/provisioning/app"
	"github.com/trainerbase/taskengine/internal/receipts/adapters/appstore"
	receiptsapp "github.com/trainerbase/taskengine/internal/receipts/app"
	receiptspg "github.com/trainerbase/taskengine/internal/receipts/repository/postgres"
)

const serviceName = "taskworker"

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load(serviceName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	appLogger := logger.New(serviceName, cfg.LogLevel)
	appLogger.Info("task worker starting", "log_level", cfg.LogLevel)

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
	planRepo := billingpg.NewPgPaymentPlanRepository(appLogger)
	trainerRepo := billingpg.NewPgTrainerRepository(appLogger)
	clientRepo := billingpg.NewPgClientRepository(appLogger)
	deviceRepo := notificationpg.NewPgDeviceRepository(appLogger)
	notificationRepo := notificationpg.NewPgNotificationRepository(appLogger)
	receiptRepo := receiptspg.NewPgTransactionRepository(appLogger)
	emailRepo := mailingpg.NewPgEmailStatusRepository(appLogger)

	// External capabilities. The mocks stand in until real credentials are
	// wired; every handler takes the interface, not the concrete type.
	gateway := paymentgateway.NewMockGateway(appLogger)
	pushProvider := pushprovider.NewMockProvider(appLogger)
	mailingList := &mailer.MockMailingList{}
	verifier := appstore.NewClient(appLogger, cfg.AppStoreVerifyURL, cfg.AppStoreSandboxVerifyURL, nil)

	chargeHandler := billingapp.NewChargeOutstandingHandler(
		dbPool, dbPool, planRepo, trainerRepo, clientRepo, gateway, taskRepo, appLogger)
	notifyHandler := notificationapp.NewNotifyHandler(
		dbPool, deviceRepo, notificationRepo, pushProvider, taskRepo, appLogger)
	mandrillHandler := mailingapp.NewMandrillEventHandler(dbPool, emailRepo, taskRepo, appLogger)
	tagsHandler := mailingapp.NewUpdateTagsHandler(dbPool, mailingList, taskRepo, appLogger)
	provisionHandler := provisioningapp.NewCreateStripeAccountHandler(
		dbPool, trainerRepo, gateway, taskRepo, appLogger)

	receiptProcessor := receiptsapp.NewReceiptProcessor(
		dbPool, verifier, receiptRepo, trainerRepo, taskRepo, cfg.AppStoreSharedSecret, appLogger)
	receiptRefresher := receiptsapp.NewReceiptRefresher(dbPool, receiptRepo, receiptProcessor, appLogger)
	paymentReminders := billingapp.NewPaymentReminders(dbPool, planRepo, taskRepo, appLogger)

	registry := outboxapp.NewRegistry()
	registry.Register(outboxdomain.KindChargeOutstanding, chargeHandler)
	registry.Register(outboxdomain.KindUserNotify, notifyHandler)
	registry.Register(outboxdomain.KindProcessMandrillEvent, mandrillHandler)
	registry.Register(outboxdomain.KindUpdateMailingListTags, tagsHandler)
	registry.Register(outboxdomain.KindCreateStripeAccount, provisionHandler)
	registry.Register(outboxdomain.KindRefreshAppStoreReceipts, outboxapp.Recurring(
		taskRepo, dbPool, outboxdomain.KindRefreshAppStoreReceipts,
		cfg.ReceiptRefreshInterval, appLogger, receiptRefresher.Run))
	registry.Register(outboxdomain.KindSendPaymentReminders, outboxapp.Recurring(
		taskRepo, dbPool, outboxdomain.KindSendPaymentReminders,
		cfg.PaymentReminderInterval, appLogger, paymentReminders.Run))

	// A recurring chain only lives on through its own re-enqueue, so a fresh
	// store (or a chain lost to a crash between claim and re-enqueue) needs a
	// first occurrence seeded here. EnsureScheduled is a no-op when a task of
	// the kind already exists.
	recurringKinds := []outboxdomain.TaskKind{
		outboxdomain.KindRefreshAppStoreReceipts,
		outboxdomain.KindSendPaymentReminders,
	}
	for _, kind := range recurringKinds {
		seeded, err := taskRepo.EnsureScheduled(ctx, kind, time.Now().UTC())
		if err != nil {
			appLogger.Error("failed to seed recurring task", "kind", kind, "error", err)
			os.Exit(1)
		}
		if seeded {
			appLogger.Info("seeded recurring task", "kind", kind)
		}
	}

	dispatcher := outboxapp.NewDispatcher(taskRepo, registry, appLogger, outboxapp.DispatcherConfig{
		PollInterval: cfg.DispatcherPollInterval,
		BatchSize:    cfg.DispatcherBatchSize,
		Workers:      cfg.DispatcherWorkers,
	})

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer)
	router.Handle("/metrics", promhttp.Handler())
	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.WorkerHTTPPort),
		Handler: router,
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		appLogger.Info("dispatcher starting",
			"poll_interval", cfg.DispatcherPollInterval,
			"batch_size", cfg.DispatcherBatchSize,
			"workers", cfg.DispatcherWorkers)
		return dispatcher.Run(gCtx)
	})
	g.Go(func() error {
		appLogger.Info("metrics listener starting", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		appLogger.Error("task worker exited with error", "error", err)
		os.Exit(1)
	}
	appLogger.Info("task worker shut down cleanly")
}
