package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"tunecrate/internal/capacity"
	"tunecrate/internal/config"
	"tunecrate/internal/database"
	"tunecrate/internal/handlers"
	"tunecrate/internal/health"
	"tunecrate/internal/logging"
	"tunecrate/internal/metrics"
	"tunecrate/internal/middleware"
	"tunecrate/internal/tracing"
	"tunecrate/internal/utils"
)

// Version of the application
var Version = "1.0.0"

func main() {
	appConfig, err := config.NewConfigLoader().Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Failed to load configuration:", err)
		os.Exit(1)
	}

	logging.InitGlobalLogger(logging.LogLevel(appConfig.Logging.Level), appConfig.Logging.Format)
	log := logging.WithModule("api")

	ctx := context.Background()
	tracer, err := tracing.Setup(ctx, appConfig.Tracing)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to set up tracing")
	}

	dbManager, err := database.NewDatabaseManager(&appConfig.Database, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer dbManager.Close()

	var redisPinger health.Pinger
	if appConfig.Redis.Enabled {
		client, err := database.NewRedisClient(ctx, appConfig.Redis)
		if err != nil {
			// The order cache is optional; report it through /healthz instead of refusing to start
			log.Error().Err(err).Msg("Redis unavailable")
			redisPinger = health.PingFunc(func(context.Context) error { return err })
		} else {
			defer client.Close()
			redisPinger = health.PingFunc(func(ctx context.Context) error { return client.Ping(ctx).Err() })
		}
	}

	roots := []string{appConfig.Storage.AudioRoot(), appConfig.Storage.ImageRoot(), appConfig.Storage.OrderRoot()}
	for _, root := range roots {
		if err := os.MkdirAll(root, 0o755); err != nil {
			log.Fatal().Err(err).Str("root", root).Msg("Failed to create storage root")
		}
	}

	m := metrics.Default()
	checker := health.NewChecker(dbManager, redisPinger, m).WithStorage(capacity.NewProbe(m), roots...)

	app := fiber.New(fiber.Config{
		ServerHeader: "Tunecrate",
		AppName:      "Tunecrate v" + Version,
		ReadTimeout:  appConfig.Server.ReadTimeout,
		WriteTimeout: appConfig.Server.WriteTimeout,
		IdleTimeout:  appConfig.Server.IdleTimeout,
		ErrorHandler: utils.FiberErrorHandler,
	})

	app.Use(recover.New())
	app.Use(middleware.RequestContext(log))

	health.RegisterHealthRoutes(app, checker)
	app.Get("/metrics", handlers.NewMetricsHandler(nil).Metrics())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info().Msg("Shutting down gracefully...")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Error().Err(err).Msg("Error during shutdown")
		}
	}()

	addr := fmt.Sprintf("%s:%d", appConfig.Server.Host, appConfig.Server.Port)
	log.Info().Str("addr", addr).Msg("Starting server")
	if err := app.Listen(addr); err != nil {
		log.Error().Err(err).Msg("Error starting server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := tracer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Failed to flush traces")
	}
}
