package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/contrib/otelfiber"
	"github.com/gofiber/fiber/v2"
	_ "github.com/joho/godotenv/autoload"
	"github.com/prometheus/client_golang/prometheus"

	"fleetdocs/internal/config"
	"fleetdocs/internal/database"
	"fleetdocs/internal/database/migration"
	handlers "fleetdocs/internal/http/handler"
	"fleetdocs/internal/http/middleware"
	"fleetdocs/internal/mail"
	"fleetdocs/internal/otel"
	"fleetdocs/internal/repository/postgres"
	"fleetdocs/internal/scheduler"
	"fleetdocs/internal/service"
	"fleetdocs/internal/storage"
)

func main() {
	// Load configuration from environment variables (.env auto-loaded if present)
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		log.Fatalf("invalid timezone %q: %v", cfg.Timezone, err)
	}

	ctx := context.Background()

	// Initialize OpenTelemetry tracing (no-op when OTEL_SDK_DISABLED=true)
	shutdownTracing, err := otel.Init(ctx, loc)
	if err != nil {
		log.Fatalf("failed to initialize tracing: %v", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			log.Printf("tracing shutdown: %v", err)
		}
	}()

	// Initialize PostgreSQL connection (with pooling via database/sql)
	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := migration.EnsureMigrated(ctx, db, loc, cfg.Database.Host); err != nil {
		log.Fatalf("failed to migrate database: %v", err)
	}

	// Initialize reusable S3-compatible object storage client (MinIO-supported)
	objStore, err := storage.NewMinIO(cfg.MinIO)
	if err != nil {
		log.Fatalf("failed to initialize object storage: %v", err)
	}

	// Outbound mail: primary transport per config, the other as fallback
	notifier := mail.NewNotifier(cfg.Mail,
		mail.NewResendTransport(cfg.Mail),
		mail.NewSMTPTransport(cfg.Mail))

	// Metrics registry shared by HTTP middleware and the notification pipeline
	registry := prometheus.NewRegistry()
	httpMetrics, err := middleware.NewHTTPMetrics(registry)
	if err != nil {
		log.Fatalf("failed to register http metrics: %v", err)
	}
	notifyMetrics, err := service.NewNotifyMetrics(registry)
	if err != nil {
		log.Fatalf("failed to register notification metrics: %v", err)
	}

	// Repositories and services
	vehicleRepo := postgres.NewVehiclePostgres(db)
	docRepo := postgres.NewDocumentPostgres(db)
	ledgerRepo := postgres.NewNotificationLogPostgres(db)

	vehicleSvc := service.NewVehicleService(vehicleRepo, docRepo, notifier, cfg.PanelURL, nil)
	docSvc := service.NewDocumentService(docRepo, vehicleRepo, ledgerRepo, objStore, notifier, cfg.Notify.Thresholds, cfg.PanelURL, nil)
	notifySvc := service.NewNotifyService(docRepo, ledgerRepo, notifier, cfg.Notify.Thresholds, cfg.PanelURL, loc, nil, notifyMetrics)

	// Daily reminder pass
	sched, err := scheduler.New(notifySvc, loc, cfg.Notify.CronHour, cfg.Notify.CronMinute)
	if err != nil {
		log.Fatalf("failed to build scheduler: %v", err)
	}
	if cfg.Notify.Enabled {
		sched.Start()
		defer sched.Stop()
	}

	app := fiber.New(fiber.Config{
		ErrorHandler: handlers.ErrorHandler(),
	})

	// Register global middleware
	// RequestID middleware adds/propagates X-Request-ID and stores it in context
	app.Use(middleware.RequestID())
	// JSON Logger middleware for structured request logs
	app.Use(middleware.Logger())
	app.Use(httpMetrics.Handler())
	app.Use(otelfiber.Middleware())

	handlers.RegisterRoutes(app, handlers.Deps{
		DB:            db,
		Vehicles:      vehicleSvc,
		Documents:     docSvc,
		Notify:        notifySvc,
		Runner:        sched,
		Gatherer:      registry,
		AdminPassword: cfg.AdminPassword,
	})

	// Serve until interrupted, then drain in-flight requests
	errCh := make(chan error, 1)
	go func() {
		errCh <- app.Listen(":" + cfg.Port)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			log.Fatalf("failed to start server: %v", err)
		}
	case <-quit:
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Printf("server shutdown: %v", err)
		}
	}
}
