package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"

	"github.com/eventrentph/eventrent-backend/api/routes"
	"github.com/eventrentph/eventrent-backend/internal/availability"
	"github.com/eventrentph/eventrent-backend/internal/bookings"
	"github.com/eventrentph/eventrent-backend/internal/inventory"
	"github.com/eventrentph/eventrent-backend/internal/notifications"
	"github.com/eventrentph/eventrent-backend/internal/payments"
	"github.com/eventrentph/eventrent-backend/internal/payments/receipts"
	"github.com/eventrentph/eventrent-backend/internal/reservations"
	"github.com/eventrentph/eventrent-backend/pkg/config"
	"github.com/eventrentph/eventrent-backend/pkg/db"
	"github.com/eventrentph/eventrent-backend/pkg/logger"
	"github.com/eventrentph/eventrent-backend/pkg/migrate"
	"github.com/eventrentph/eventrent-backend/pkg/outbox"
	"github.com/eventrentph/eventrent-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
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
	outboxService := outbox.NewService(outbox.NewRepository(gormDB), logg)
	inventoryRepo := inventory.NewRepository(gormDB)

	inventoryService, err := inventory.NewService(dbClient, inventoryRepo, outboxService, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create inventory service", err)
		os.Exit(1)
	}

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

	paymentsRepo := payments.NewRepository(gormDB)
	paymentsService, err := payments.NewService(dbClient, paymentsRepo, bookingsService, cfg.Payments, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create payments service", err)
		os.Exit(1)
	}

	extractor, err := receipts.NewHTTPExtractor(cfg.Ocr)
	if err != nil {
		logg.Error(context.Background(), "failed to create receipt extractor", err)
		os.Exit(1)
	}
	receiptsService, err := receipts.NewService(
		dbClient,
		paymentsRepo,
		bookingsService,
		reservationsService,
		extractor,
		outboxService,
		cfg.Payments,
		cfg.Holds,
		logg,
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create receipts service", err)
		os.Exit(1)
	}

	notificationsService, err := notifications.NewService(notifications.NewRepository(gormDB), logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create notifications service", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(
			cfg,
			logg,
			redisClient,
			inventoryService,
			availabilityChecker,
			bookingsService,
			paymentsService,
			receiptsService,
			notificationsService,
		),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}
