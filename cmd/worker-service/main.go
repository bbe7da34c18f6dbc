package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/mangashelf/mangashelf/internal/catalog"
	"github.com/mangashelf/mangashelf/internal/config"
	"github.com/mangashelf/mangashelf/internal/jobs/domain"
	"github.com/mangashelf/mangashelf/internal/jobs/runner"
	"github.com/mangashelf/mangashelf/internal/jobs/scheduler"
	"github.com/mangashelf/mangashelf/internal/jobs/store"
	"github.com/mangashelf/mangashelf/internal/jobs/worker"
	"github.com/mangashelf/mangashelf/internal/library"
	"github.com/mangashelf/mangashelf/internal/mangadx"
	"github.com/mangashelf/mangashelf/shared/logger"
	"github.com/mangashelf/mangashelf/shared/postgresql"
	"github.com/mangashelf/mangashelf/shared/rabbitmq"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables or flags")
	}

	// Parse command-line flags
	defaultConfigPath := os.Getenv("WORKER_SERVICE_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/worker-service/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.ValidateWorkerConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	// Initialize logger
	appLogger, err := initLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	workerID := uuid.New().String()

	appLogger.Info("Starting worker service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
		slog.String("worker_id", workerID),
	)

	// Initialize PostgreSQL client and apply migrations
	dbClient, err := initPostgreSQL(&cfg.Database, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer dbClient.Close()

	if err := store.Migrate(dbClient.GetDB(), appLogger.Logger); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	// Initialize RabbitMQ event publisher when enabled
	var rabbitClient *rabbitmq.Client
	if cfg.RabbitMQ.Enabled {
		rabbitClient, err = initRabbitMQ(&cfg.RabbitMQ, appLogger.Logger)
		if err != nil {
			return fmt.Errorf("failed to initialize RabbitMQ: %w", err)
		}
		defer rabbitClient.Close()
	}

	// Build the job subsystem
	jobStore := store.NewStorage(dbClient.GetDB(), appLogger.Logger)
	catalogStore := catalog.NewStorage(dbClient.GetDB(), appLogger.Logger)

	importer := library.NewImporter(catalogStore, appLogger.Logger)
	dxClient := mangadx.NewClient(&mangadx.Config{
		BaseURL:   cfg.MangaDx.BaseURL,
		Timeout:   cfg.MangaDx.Timeout,
		UserAgent: cfg.MangaDx.UserAgent,
	})

	registry := worker.NewRegistry()
	registry.Register(domain.JobTypeLibraryScan, worker.NewLibraryScanHandler(importer, catalogStore, appLogger.Logger))
	registry.Register(domain.JobTypeDownload, worker.NewDownloadHandler(dxClient, appLogger.Logger))
	registry.Register(domain.JobTypeChapterUpdateCheck, worker.NewUpdateCheckHandler(dxClient, catalogStore, appLogger.Logger))

	jobWorker := worker.NewWorker(jobStore, registry, appLogger.Logger)

	var publisher runner.EventPublisher
	if rabbitClient != nil {
		publisher = rabbitClient
	}

	workerRunner := runner.NewWorkerRunner(&runner.WorkerRunnerConfig{
		WorkerID:          workerID,
		PollInterval:      cfg.Worker.PollInterval,
		MaxConcurrentJobs: cfg.Worker.MaxConcurrentJobs,
	}, jobStore, jobWorker, publisher, appLogger.Logger)

	jobScheduler := scheduler.NewScheduler(jobStore, catalogStore, appLogger.Logger)

	var schedulerRunner *runner.SchedulerRunner
	if cfg.Scheduler.Enabled {
		schedulerRunner = runner.NewSchedulerRunner(jobScheduler, cfg.Scheduler.Interval, appLogger.Logger)
	}

	// Start runners
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	workerRunner.Start(ctx)
	if schedulerRunner != nil {
		schedulerRunner.Start(ctx)
	}

	appLogger.Info("Worker service started successfully",
		slog.Int("max_concurrent_jobs", cfg.Worker.MaxConcurrentJobs),
		slog.Duration("poll_interval", cfg.Worker.PollInterval),
	)

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	appLogger.Info("Received signal, shutting down gracefully",
		slog.String("signal", sig.String()),
	)

	// Stop runners with a drain timeout
	done := make(chan struct{})
	go func() {
		if schedulerRunner != nil {
			schedulerRunner.Stop()
		}
		workerRunner.Stop()
		close(done)
	}()

	select {
	case <-done:
		appLogger.Info("Runners stopped gracefully")
	case <-time.After(cfg.Worker.ShutdownTimeout):
		appLogger.Warn("Shutdown timeout exceeded, forcing exit")
	}

	appLogger.Info("Worker service shutdown complete")
	return nil
}

// initLogger initializes and configures the application logger
func initLogger(cfg *config.LoggingConfig) (*logger.Logger, error) {
	loggerCfg := &logger.Config{
		Level:        cfg.Level,
		Format:       cfg.Format,
		Output:       cfg.Output,
		EnableSource: cfg.EnableCaller,
		TimeFormat:   time.RFC3339,
	}

	return logger.New(loggerCfg)
}

// initPostgreSQL initializes the PostgreSQL database client
func initPostgreSQL(cfg *config.DatabaseConfig, logger *slog.Logger) (*postgresql.Client, error) {
	dbConfig := &postgresql.Config{
		Host:            cfg.Host,
		Port:            cfg.Port,
		User:            cfg.User,
		Password:        cfg.Password,
		Database:        cfg.Database,
		SSLMode:         cfg.SSLMode,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.ConnMaxIdleTime,
	}

	return postgresql.NewClient(dbConfig, logger)
}

// initRabbitMQ initializes the RabbitMQ event publisher
func initRabbitMQ(cfg *config.RabbitMQConfig, logger *slog.Logger) (*rabbitmq.Client, error) {
	rabbitConfig := &rabbitmq.Config{
		Host:              cfg.Host,
		Port:              cfg.Port,
		User:              cfg.User,
		Password:          cfg.Password,
		VHost:             cfg.VHost,
		ExchangeName:      cfg.Exchange,
		RetryAttempts:     cfg.RetryAttempts,
		RetryInterval:     cfg.RetryInterval,
		Heartbeat:         cfg.Heartbeat,
		PublishRetries:    cfg.PublishRetries,
		PublishRetryDelay: cfg.PublishRetryDelay,
	}

	return rabbitmq.NewClient(rabbitConfig, logger)
}
