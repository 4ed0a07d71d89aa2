package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/aescanero/dago-sandbox-router/internal/banking"
	"github.com/aescanero/dago-sandbox-router/internal/config"
	"github.com/aescanero/dago-sandbox-router/internal/gate"
	"github.com/aescanero/dago-sandbox-router/internal/metrics"
	"github.com/aescanero/dago-sandbox-router/internal/rules"
	"github.com/aescanero/dago-sandbox-router/internal/task"
	"github.com/aescanero/dago-sandbox-router/internal/worker"
)

var (
	// Version is set at build time
	Version = "dev"
	// BuildTime is set at build time
	BuildTime = "unknown"
)

// consumer is the lifecycle shared by both transports
type consumer interface {
	Start() error
	Stop() error
}

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger, err := initLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	role := cfg.Role()
	logger.Info("starting sandbox worker",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("worker_id", cfg.WorkerID),
		zap.String("role", role.String()),
		zap.String("routes_api", cfg.RoutesAPI.ServerAddr),
	)

	// Log configuration (without sensitive data)
	logger.Info("configuration loaded", zap.String("config", cfg.String()))

	// Initialize Redis client; it backs the balance store for both transports
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	// Test Redis connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Fatal("failed to connect to redis", zap.Error(err))
	}
	logger.Info("connected to redis", zap.String("addr", cfg.RedisAddr))

	collector := metrics.New(nil)

	// Initialize the routing rules source and cache
	client, err := rules.NewClient(cfg.ClientConfig())
	if err != nil {
		logger.Fatal("failed to create routing rules client", zap.Error(err))
	}
	cache := rules.NewCache(rules.CacheConfig{
		Source:          client,
		RefreshInterval: cfg.RoutesAPI.RefreshInterval(),
		FetchTimeout:    cfg.RoutesAPI.FetchTimeout,
		Logger:          logger.Named("rules"),
		Metrics:         collector,
	})
	logger.Info("routing rules source configured", zap.String("url", client.URL()))

	// Register task handlers behind the gate
	registry := task.NewRegistry()
	banking.NewService(banking.NewStore(redisClient, logger.Named("banking")), logger.Named("banking")).Register(registry)
	g := gate.New(role, cache, registry, logger.Named("gate"), collector)
	processor := worker.NewProcessor(cfg.WorkerID, g, cfg.MaxRetries, collector, logger)
	logger.Info("task handlers registered", zap.Strings("types", registry.Types()))

	// Keep the rules fresh in the background
	refreshCtx, stopRefresher := context.WithCancel(context.Background())
	var refreshWG sync.WaitGroup
	refreshWG.Add(1)
	go func() {
		defer refreshWG.Done()
		if err := rules.NewRefresher(cache, 0, logger.Named("refresher")).Run(refreshCtx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("routing rules refresher stopped", zap.Error(err))
		}
	}()

	checks := map[string]worker.CheckFunc{"redis": worker.RedisCheck(redisClient)}

	// Initialize the transport
	var (
		w        consumer
		amqpConn *amqp.Connection
		amqpDone <-chan struct{}
	)
	switch cfg.Transport {
	case config.TransportAMQP:
		var amqpWorker *worker.AMQPWorker
		amqpConn, amqpWorker, err = newAMQPWorker(cfg, processor, logger)
		if err != nil {
			logger.Fatal("failed to initialize amqp transport", zap.Error(err))
		}
		checks["amqp"] = worker.AMQPCheck(amqpConn)
		amqpDone = amqpWorker.Done()
		w = amqpWorker
	default:
		w = worker.NewWorker(cfg, redisClient, processor, logger)
	}

	// Start worker
	if err := w.Start(); err != nil {
		logger.Fatal("failed to start worker", zap.Error(err))
	}

	// Start health server
	healthServer := worker.NewHealthServer(worker.HealthConfig{
		Port:    cfg.HealthPort,
		Role:    role,
		Checks:  checks,
		Routing: cache,
		Metrics: collector,
		Logger:  logger,
	})
	if err := healthServer.Start(); err != nil {
		logger.Fatal("failed to start health server", zap.Error(err))
	}

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	logger.Info("sandbox worker running, press Ctrl+C to stop")
	select {
	case <-sigChan:
		logger.Info("shutdown signal received, stopping worker")
	case <-amqpDone:
		logger.Error("amqp consumer stopped, shutting down")
	}

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	// Stop health server
	if err := healthServer.Stop(); err != nil {
		logger.Error("failed to stop health server", zap.Error(err))
	}

	// Stop worker
	if err := w.Stop(); err != nil {
		logger.Error("failed to stop worker", zap.Error(err))
	}

	// Stop the refresher; a fetch in flight is allowed to finish
	stopRefresher()
	refreshWG.Wait()

	if amqpConn != nil {
		if err := amqpConn.Close(); err != nil {
			logger.Error("failed to close amqp connection", zap.Error(err))
		}
	}

	// Close Redis connection
	if err := redisClient.Close(); err != nil {
		logger.Error("failed to close redis connection", zap.Error(err))
	}

	select {
	case <-shutdownCtx.Done():
		logger.Warn("shutdown timeout exceeded, forcing exit")
	default:
		logger.Info("worker stopped gracefully")
	}
}

// initLogger initializes the logger
func initLogger(level string) (*zap.Logger, error) {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "info":
		zapLevel = zapcore.InfoLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	config := zap.Config{
		Level:            zap.NewAtomicLevelAt(zapLevel),
		Development:      false,
		Encoding:         "json",
		EncoderConfig:    zap.NewProductionEncoderConfig(),
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}

	return config.Build()
}

// newAMQPWorker dials RabbitMQ and builds the AMQP worker
func newAMQPWorker(cfg *config.Config, processor *worker.Processor, logger *zap.Logger) (*amqp.Connection, *worker.AMQPWorker, error) {
	conn, err := amqp.Dial(cfg.AMQPURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to dial amqp: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("failed to open channel: %w", err)
	}

	logger.Info("connected to rabbitmq", zap.String("queue", cfg.AMQPQueue))
	return conn, worker.NewAMQPWorker(cfg, ch, processor, logger), nil
}
