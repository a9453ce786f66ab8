package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"tunecrate/internal/config"
	"tunecrate/internal/database"
	"tunecrate/internal/logging"
	"tunecrate/internal/maintenance"
	"tunecrate/internal/metrics"
	"tunecrate/internal/playlistorder"
	"tunecrate/internal/storage"
	"tunecrate/internal/tracing"
)

// WorkerServer runs the maintenance sweep on its cron schedule
type WorkerServer struct {
	srv       *asynq.Server
	scheduler *asynq.Scheduler
	mux       *asynq.ServeMux
	db        *database.DatabaseManager
	tracer    *tracing.Tracer
	logger    *zerolog.Logger
}

// NewWorkerServer creates a new worker server
func NewWorkerServer(ctx context.Context, cfg *config.AppConfig) (*WorkerServer, error) {
	log := logging.WithModule("worker")

	tracer, err := tracing.Setup(ctx, cfg.Tracing)
	if err != nil {
		return nil, fmt.Errorf("failed to set up tracing: %w", err)
	}

	dbManager, err := database.NewDatabaseManager(&cfg.Database, log)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	audio, err := storage.NewAudioStore(cfg.Storage, log)
	if err != nil {
		return nil, err
	}
	image, err := storage.NewImageStore(cfg.Storage, log)
	if err != nil {
		return nil, err
	}

	var cache playlistorder.Cache
	if cfg.Redis.Enabled {
		client, err := database.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			log.Warn().Err(err).Msg("Order cache disabled")
		} else {
			cache = playlistorder.NewRedisCache(client, cfg.Redis.OrderCacheTTL)
		}
	}
	orders, err := playlistorder.NewOrderStore(cfg.Storage.OrderRoot(), cache, log)
	if err != nil {
		return nil, err
	}

	sweeper := maintenance.NewSweeper(dbManager.GetGormDB(), audio, image, orders, cfg.Maintenance, log, metrics.Default())

	redisOpt := asynq.RedisClientOpt{
		Addr:     cfg.Redis.Address,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}
	srv := asynq.NewServer(redisOpt, asynq.Config{
		Queues: map[string]int{
			cfg.Maintenance.Queue: 1,
		},
		Concurrency: 1,
		Logger:      newAsynqLogger(log),
	})

	mux := asynq.NewServeMux()
	sweeper.RegisterTasks(mux)

	scheduler := asynq.NewScheduler(redisOpt, &asynq.SchedulerOpts{
		Location: time.UTC,
		Logger:   newAsynqLogger(log),
	})
	entryID, err := maintenance.ScheduleSweep(scheduler, cfg.Maintenance)
	if err != nil {
		return nil, err
	}
	log.Info().Str("entry_id", entryID).Str("schedule", cfg.Maintenance.SweepSchedule).Msg("Scheduled maintenance sweep")

	return &WorkerServer{
		srv:       srv,
		scheduler: scheduler,
		mux:       mux,
		db:        dbManager,
		tracer:    tracer,
		logger:    log,
	}, nil
}

// Start starts the task server and the scheduler
func (w *WorkerServer) Start() error {
	w.logger.Info().Msg("Starting worker server...")

	if err := w.scheduler.Start(); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}
	if err := w.srv.Start(w.mux); err != nil {
		return fmt.Errorf("failed to start worker server: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the worker server
func (w *WorkerServer) Shutdown(ctx context.Context) {
	w.logger.Info().Msg("Shutting down worker server...")
	w.scheduler.Shutdown()
	w.srv.Shutdown()
	if err := w.tracer.Shutdown(ctx); err != nil {
		w.logger.Error().Err(err).Msg("Failed to flush traces")
	}
	if err := w.db.Close(); err != nil {
		w.logger.Error().Err(err).Msg("Failed to close database")
	}
}

// enqueueSweep pushes a one-off sweep onto the maintenance queue
func enqueueSweep(cfg *config.AppConfig, dryRun bool) error {
	client := asynq.NewClient(asynq.RedisClientOpt{
		Addr:     cfg.Redis.Address,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer client.Close()

	task, err := maintenance.NewSweepTask(cfg.Maintenance.Queue, dryRun)
	if err != nil {
		return err
	}
	info, err := client.Enqueue(task)
	if err != nil {
		return fmt.Errorf("failed to enqueue sweep: %w", err)
	}
	logging.Infof("Enqueued sweep %s on queue %s", info.ID, info.Queue)
	return nil
}

func main() {
	configPath := flag.String("config", "", "Path to config file")
	sweepNow := flag.Bool("sweep-now", false, "Enqueue one sweep and exit")
	dryRun := flag.Bool("dry-run", false, "With -sweep-now, only report what would be removed")
	flag.Parse()

	loader := config.NewConfigLoader()
	if *configPath != "" {
		loader.SetConfigFile(*configPath)
	}
	cfg, err := loader.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Failed to load configuration:", err)
		os.Exit(1)
	}
	logging.InitGlobalLogger(logging.LogLevel(cfg.Logging.Level), cfg.Logging.Format)

	if *sweepNow {
		if err := enqueueSweep(cfg, *dryRun); err != nil {
			logging.Fatalf("%v", err)
		}
		return
	}

	ctx := context.Background()
	worker, err := NewWorkerServer(ctx, cfg)
	if err != nil {
		logging.Fatalf("Failed to create worker server: %v", err)
	}
	if err := worker.Start(); err != nil {
		logging.Fatalf("Worker server error: %v", err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	logging.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	worker.Shutdown(shutdownCtx)
}
