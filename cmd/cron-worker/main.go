package main

import (
	"context"
	"errors"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/eventrentph/eventrent-backend/internal/availability"
	"github.com/eventrentph/eventrent-backend/internal/bookings"
	"github.com/eventrentph/eventrent-backend/internal/cron"
	"github.com/eventrentph/eventrent-backend/internal/inventory"
	"github.com/eventrentph/eventrent-backend/internal/notifications"
	"github.com/eventrentph/eventrent-backend/internal/payments"
	"github.com/eventrentph/eventrent-backend/internal/reservations"
	"github.com/eventrentph/eventrent-backend/pkg/config"
	"github.com/eventrentph/eventrent-backend/pkg/db"
	"github.com/eventrentph/eventrent-backend/pkg/logger"
	"github.com/eventrentph/eventrent-backend/pkg/metrics"
	"github.com/eventrentph/eventrent-backend/pkg/migrate"
	"github.com/eventrentph/eventrent-backend/pkg/outbox"
	"github.com/eventrentph/eventrent-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "cron-worker"

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
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

	gormDB := dbClient.DB()
	outboxRepo := outbox.NewRepository(gormDB)
	outboxService := outbox.NewService(outboxRepo, logg)
	inventoryRepo := inventory.NewRepository(gormDB)

	availabilityChecker, err := availability.NewChecker(availability.NewRepository(gormDB))
	if err != nil {
		logg.Error(context.Background(), "failed to create availability checker", err)
		os.Exit(1)
	}

	reservationsService, err := reservations.NewService(
		dbClient,
		reservations.NewRepository(gormDB),
		inventoryRepo,
		availabilityChecker,
		outboxService,
		logg,
		cfg.Holds.HoldWindow,
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create reservations service", err)
		os.Exit(1)
	}

	bookingsService, err := bookings.NewService(
		dbClient,
		bookings.NewRepository(gormDB),
		inventoryRepo,
		reservationsService,
		outboxService,
		logg,
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create bookings service", err)
		os.Exit(1)
	}

	notificationsService, err := notifications.NewService(notifications.NewRepository(gormDB), logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create notifications service", err)
		os.Exit(1)
	}

	paymentsService, err := payments.NewService(dbClient, payments.NewRepository(gormDB), bookingsService, cfg.Payments, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create payments service", err)
		os.Exit(1)
	}

	jobs := []cron.Job{
		&cron.HoldExpiryJob{Reservations: reservationsService, Bookings: bookingsService, Logg: logg},
		&cron.BookingCompletionJob{Bookings: bookingsService, Logg: logg},
		&cron.VerificationRecoveryJob{Payments: paymentsService, Timeout: cfg.Payments.VerifyTimeout, Logg: logg},
		&cron.NotificationCleanupJob{Notifications: notificationsService, RetentionDays: cfg.Notifications.RetentionDays, Logg: logg},
		&cron.OutboxRetentionJob{Outbox: outboxRepo, RetentionDays: cfg.Outbox.RetentionDays, Logg: logg},
	}

	jobMetrics := metrics.NewCronJobMetrics(prometheus.DefaultRegisterer)
	service, err := cron.NewService(jobs, cfg.Cron.Interval, redisClient, jobMetrics, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create cron service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
	})
	logg.Info(ctx, "starting cron worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}
