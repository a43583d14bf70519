package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Harsh-BH/Sentinel/judge/internal/config"
	"github.com/Harsh-BH/Sentinel/judge/internal/consumer"
	amqpdelivery "github.com/Harsh-BH/Sentinel/judge/internal/delivery/amqp"
	"github.com/Harsh-BH/Sentinel/judge/internal/delivery/callback"
	redisqueue "github.com/Harsh-BH/Sentinel/judge/internal/delivery/redis"
	"github.com/Harsh-BH/Sentinel/judge/internal/executor"
	"github.com/Harsh-BH/Sentinel/judge/internal/repository"
	"github.com/Harsh-BH/Sentinel/judge/internal/repository/postgres"
	redisrepo "github.com/Harsh-BH/Sentinel/judge/internal/repository/redis"
	"github.com/Harsh-BH/Sentinel/judge/internal/retry"
	"github.com/Harsh-BH/Sentinel/judge/internal/runner"
	"github.com/Harsh-BH/Sentinel/judge/internal/scheduler"
	"github.com/Harsh-BH/Sentinel/judge/internal/usecase"
)

func main() {
	// Initialize logger
	logger, _ := zap.NewProduction()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}
	if cfg.Worker.LogLevel == "debug" {
		logger, _ = zap.NewDevelopment()
	}
	defer logger.Sync()

	logger.Info("Starting judge worker",
		zap.String("queue_driver", cfg.Queue.Driver),
		zap.String("queue", cfg.Queue.Name),
		zap.String("piston_url", cfg.Piston.URL),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Connect to Redis only when the queue, dead letters or dedup use it
	var redisClient *goredis.Client
	if cfg.NeedsRedis() {
		redisClient, err = redisqueue.NewClient(cfg.Redis.URL, cfg.Redis.TLSInsecureSkipVerify, logger)
		if err != nil {
			logger.Fatal("Invalid Redis URL", zap.Error(err))
		}
		defer redisClient.Close()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		logger.Info("Connected to Redis")
	}

	// Initialize repositories
	var idempotencyStore repository.IdempotencyStore
	if cfg.Judge.DedupTTL > 0 {
		idempotencyStore = redisrepo.NewRedisIdempotencyStore(redisClient, cfg.Judge.DedupTTL)
	}

	deadLetters, closeDeadLetters := newDeadLetterStore(ctx, cfg, redisClient, logger)
	defer closeDeadLetters()

	// Execution pipeline: Piston client → paced scheduler → retrying runner
	pistonClient := executor.NewPistonClient(cfg.Piston.URL, cfg.Piston.Timeout, logger)

	schedCtx, stopScheduler := context.WithCancel(context.Background())
	sched := scheduler.New(pistonClient, cfg.Piston.DispatchInterval, logger)
	schedDone := make(chan struct{})
	go func() {
		sched.Run(schedCtx)
		close(schedDone)
	}()

	policy := retry.DefaultPolicy()
	policy.MaxAttempts = cfg.Piston.RetryMaxAttempts
	policy.BaseDelay = cfg.Piston.RetryBaseDelay
	policy.MaxJitter = cfg.Piston.RetryMaxJitter

	caseRunner := runner.New(sched, policy, cfg.Judge.Limits, runner.Options{
		EmptyOutputPlaceholder: cfg.Judge.EmptyOutputPlaceholder,
	}, logger)

	callbackClient := callback.NewClient(callback.Config{
		BaseURL:     cfg.Callback.BackendURL,
		Path:        cfg.Callback.Path,
		MaxAttempts: cfg.Callback.MaxAttempts,
		Backoff:     cfg.Callback.Backoff,
		Timeout:     cfg.Callback.Timeout,
	}, deadLetters, logger)
	logger.Info("Callback endpoint configured", zap.String("url", callbackClient.URL()))

	// Initialize use case
	judgeUC := usecase.NewJudgeSubmissionUsecase(
		cfg.Languages,
		caseRunner,
		callbackClient,
		idempotencyStore,
		usecase.Options{CompileShortCircuit: cfg.Judge.CompileShortCircuit},
		logger,
	)

	// Initialize queue source
	source, err := newQueueSource(cfg, redisClient, logger)
	if err != nil {
		logger.Fatal("Failed to initialize queue source", zap.Error(err))
	}
	defer source.Close()

	loop := consumer.NewLoop(source, judgeUC, cfg.Queue.PopBackoff, logger)
	loopDone := make(chan struct{})
	go func() {
		if err := loop.Run(ctx); err != nil {
			logger.Error("Consumer loop error", zap.Error(err))
		}
		close(loopDone)
	}()

	// Start Prometheus metrics server
	metricsAddr := fmt.Sprintf(":%d", cfg.Worker.MetricsPort)
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	metricsServer := &http.Server{Addr: metricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		logger.Info("Metrics server listening", zap.String("addr", metricsAddr))
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Metrics server error", zap.Error(err))
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down worker...")
	cancel()

	// Let the in-flight submission finish before stopping the scheduler.
	<-loopDone
	stopScheduler()
	<-schedDone

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = metricsServer.Shutdown(shutdownCtx)

	logger.Info("Worker stopped")
}

// newQueueSource picks the consumer for QUEUE_DRIVER. redisClient is nil
// unless cfg.NeedsRedis.
func newQueueSource(cfg *config.Config, redisClient *goredis.Client, logger *zap.Logger) (repository.QueueSource, error) {
	switch cfg.Queue.Driver {
	case config.DriverAMQP:
		c, err := amqpdelivery.NewConsumer(cfg.RabbitMQ.URL, cfg.Queue.Name, logger)
		if err != nil {
			return nil, err
		}
		logger.Info("Connected to RabbitMQ")
		return c, nil
	default:
		return redisqueue.NewSource(redisClient, cfg.Queue.Name, logger), nil
	}
}

// newDeadLetterStore returns the configured store and a cleanup func.
// redisClient is nil unless cfg.NeedsRedis.
func newDeadLetterStore(ctx context.Context, cfg *config.Config, redisClient *goredis.Client, logger *zap.Logger) (repository.DeadLetterStore, func()) {
	if cfg.DeadLetter.Driver != config.DriverPostgres {
		return redisrepo.NewRedisDeadLetterStore(redisClient, cfg.DeadLetter.Queue), func() {}
	}

	// Connect to PostgreSQL
	dbPool, err := pgxpool.New(ctx, cfg.Database.URL)
	if err != nil {
		logger.Fatal("Failed to connect to PostgreSQL", zap.Error(err))
	}
	if err := dbPool.Ping(ctx); err != nil {
		logger.Fatal("Failed to ping PostgreSQL", zap.Error(err))
	}
	if err := postgres.Migrate(ctx, dbPool); err != nil {
		logger.Fatal("Failed to migrate dead-letter table", zap.Error(err))
	}
	logger.Info("Connected to PostgreSQL")
	return postgres.NewPostgresDeadLetterStore(dbPool), dbPool.Close
}
