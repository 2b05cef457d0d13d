package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/venturetrips/venture-backend/internal/bookings"
	"github.com/venturetrips/venture-backend/internal/ledger"
	"github.com/venturetrips/venture-backend/internal/notifications"
	"github.com/venturetrips/venture-backend/internal/sweeper"
	"github.com/venturetrips/venture-backend/internal/tours"
	"github.com/venturetrips/venture-backend/pkg/config"
	"github.com/venturetrips/venture-backend/pkg/db"
	"github.com/venturetrips/venture-backend/pkg/logger"
	"github.com/venturetrips/venture-backend/pkg/metrics"
	"github.com/venturetrips/venture-backend/pkg/migrate"
	"github.com/venturetrips/venture-backend/pkg/pubsub"
	"github.com/venturetrips/venture-backend/pkg/redis"
)

const lockKeyFormat = "sweeper:%s"

func main() {
	logg := logger.New(logger.Options{ServiceName: "sweeper-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "sweeper-worker"

	logg = logger.New(logger.Options{
		ServiceName: "sweeper-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	var pubsubClient *pubsub.Client
	if cfg.GCP.ProjectID != "" {
		pubsubClient, err = pubsub.NewClient(context.Background(), cfg.GCP, cfg.PubSub, logg)
		if err != nil {
			logg.Error(context.Background(), "failed to bootstrap pubsub", err)
			os.Exit(1)
		}
		defer func() {
			if err := pubsubClient.Close(); err != nil {
				logg.Error(context.Background(), "error closing pubsub", err)
			}
		}()
	} else {
		logg.Warn(context.Background(), "pubsub disabled, notification events will be dropped")
	}
	notifier := notifications.New(pubsubClient, logg)

	bookingRepo := bookings.NewRepository(dbClient.DB())
	tourRepo := tours.NewRepository(dbClient.DB())

	ledgerService, err := ledger.NewService(ledger.NewRepository(dbClient.DB()))
	if err != nil {
		logg.Error(context.Background(), "failed to create ledger service", err)
		os.Exit(1)
	}

	bookingService, err := bookings.NewService(bookings.ServiceParams{
		Repo:     bookingRepo,
		Tours:    tourRepo,
		Ledger:   ledgerService,
		TxRunner: dbClient,
		Notifier: notifier,
		Config:   cfg.Booking,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create booking service", err)
		os.Exit(1)
	}

	sweeperMetrics := metrics.NewSweeperMetrics(prometheus.DefaultRegisterer)

	paymentJob, err := sweeper.NewPaymentTimeoutJob(sweeper.PaymentTimeoutJobParams{
		Logger:   logg,
		Lister:   bookingRepo,
		Bookings: bookingService,
		Metrics:  sweeperMetrics,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create payment timeout job", err)
		os.Exit(1)
	}

	approvalJob, err := sweeper.NewApprovalTimeoutJob(sweeper.ApprovalTimeoutJobParams{
		Logger:   logg,
		Lister:   bookingRepo,
		Bookings: bookingService,
		Metrics:  sweeperMetrics,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create approval timeout job", err)
		os.Exit(1)
	}

	completionJob, err := sweeper.NewCompletionJob(sweeper.CompletionJobParams{
		Logger:   logg,
		Lister:   bookingRepo,
		Bookings: bookingService,
		Prompts:  notifications.NewPromptsRepository(dbClient.DB()),
		Notifier: notifier,
		Metrics:  sweeperMetrics,
		Window:   cfg.Sweeper.CompletionWindow,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create completion job", err)
		os.Exit(1)
	}

	lock, err := sweeper.NewRedisLock(redisClient, redisClient.LockKey(lockKey(cfg.App.Env)), 0)
	if err != nil {
		logg.Error(context.Background(), "failed to create sweeper lock", err)
		os.Exit(1)
	}

	service, err := sweeper.NewService(sweeper.ServiceParams{
		Logger:   logg,
		Registry: sweeper.NewRegistry(paymentJob, approvalJob, completionJob),
		Lock:     lock,
		Metrics:  sweeperMetrics,
		Interval: cfg.Sweeper.Interval,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create sweeper service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
	})
	logg.Info(ctx, "starting sweeper worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "sweeper worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "sweeper worker shutting down gracefully")
}

func lockKey(env string) string {
	if env == "" {
		env = "local"
	}
	return fmt.Sprintf(lockKeyFormat, env)
}
