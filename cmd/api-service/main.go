package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/mangashelf/mangashelf/internal/api/handler"
	"github.com/mangashelf/mangashelf/internal/api/router"
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
	defaultConfigPath := os.Getenv("API_SERVICE_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/api-service/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.ValidateAPIConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	// Initialize logger
	appLogger, err := initLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	appLogger.Info("Starting API service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
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
	jobScheduler := scheduler.NewScheduler(jobStore, catalogStore, appLogger.Logger)

	// Optionally run a worker and scheduler in-process
	var workerRunner *runner.WorkerRunner
	var schedulerRunner *runner.SchedulerRunner

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Worker.Enabled {
		workerRunner = buildWorkerRunner(cfg, jobStore, catalogStore, rabbitClient, appLogger.Logger)
		workerRunner.Start(ctx)
	}

	if cfg.Scheduler.Enabled {
		schedulerRunner = runner.NewSchedulerRunner(jobScheduler, cfg.Scheduler.Interval, appLogger.Logger)
		schedulerRunner.Start(ctx)
	}

	// Initialize router
	if cfg.App.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := router.SetupRouter(&handler.Dependencies{
		Logger:       appLogger.Logger,
		Scheduler:    jobScheduler,
		WorkerRunner: workerRunner,
		DBClient:     dbClient,
	})

	// Create HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start server in goroutine
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Error("Server failed to start",
				slog.Any("error", err),
			)
			os.Exit(1)
		}
	}()

	appLogger.Info("API service is running",
		slog.String("address", addr),
	)

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down...")

	// Runners drain their in-flight jobs before the server goes down
	if schedulerRunner != nil {
		schedulerRunner.Stop()
	}
	if workerRunner != nil {
		workerRunner.Stop()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("Server forced to shutdown",
			slog.Any("error", err),
		)
		return err
	}

	appLogger.Info("Server shutdown complete")
	return nil
}

// buildWorkerRunner wires the handler registry, worker, and runner
func buildWorkerRunner(cfg *config.Config, jobStore *store.Storage, catalogStore *catalog.Storage, rabbitClient *rabbitmq.Client, log *slog.Logger) *runner.WorkerRunner {
	importer := library.NewImporter(catalogStore, log)
	dxClient := mangadx.NewClient(&mangadx.Config{
		BaseURL:   cfg.MangaDx.BaseURL,
		Timeout:   cfg.MangaDx.Timeout,
		UserAgent: cfg.MangaDx.UserAgent,
	})

	registry := worker.NewRegistry()
	registry.Register(domain.JobTypeLibraryScan, worker.NewLibraryScanHandler(importer, catalogStore, log))
	registry.Register(domain.JobTypeDownload, worker.NewDownloadHandler(dxClient, log))
	registry.Register(domain.JobTypeChapterUpdateCheck, worker.NewUpdateCheckHandler(dxClient, catalogStore, log))

	jobWorker := worker.NewWorker(jobStore, registry, log)

	var publisher runner.EventPublisher
	if rabbitClient != nil {
		publisher = rabbitClient
	}

	return runner.NewWorkerRunner(&runner.WorkerRunnerConfig{
		WorkerID:          uuid.New().String(),
		PollInterval:      cfg.Worker.PollInterval,
		MaxConcurrentJobs: cfg.Worker.MaxConcurrentJobs,
	}, jobStore, jobWorker, publisher, log)
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
