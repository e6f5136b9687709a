package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"commission-engine/internal/bootstrap"
	"commission-engine/internal/config"
	"commission-engine/internal/jobs"
	"commission-engine/internal/jobs/scheduler"
	"commission-engine/internal/jobs/workers"
	"commission-engine/internal/observability"

	"github.com/hibiken/asynq"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if cfg.Redis.Addr == "" {
		log.Fatal("REDIS_ADDR is required for the job worker")
	}

	// Initialize logger
	logger := observability.NewLogger()
	ctx := context.Background()

	logger.Info(ctx, "Starting background worker server...")

	if err := observability.InitTracing(observability.TracingConfig{
		Enabled:     cfg.Tracing.Enabled,
		Endpoint:    cfg.Tracing.Endpoint,
		ServiceName: "commission-engine-worker",
		Environment: cfg.Environment,
	}); err != nil {
		logger.Error(ctx, "failed to initialize tracing", err)
	}

	deps, err := bootstrap.Initialize(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("Failed to initialize dependencies: %v", err)
	}
	defer deps.Cleanup()

	redisOpt := bootstrap.RedisClientOpt(cfg.Redis)

	// Create Asynq server with queue configuration
	srv := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: cfg.WorkerPool.JobConcurrency,
			Queues: map[string]int{
				jobs.QueueHigh:   10,
				jobs.QueueMedium: 5,
				jobs.QueueLow:    2,
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				logger.Error(ctx, fmt.Sprintf("task %s failed", task.Type()), err)
			}),
			RetryDelayFunc: asynq.DefaultRetryDelayFunc,
			Logger:         &jobs.AsynqLogger{Logger: logger},
		},
	)

	mux := workers.NewServeMux(
		workers.NewPoolWorker(deps.Pools, logger),
		workers.NewLedgerWorker(deps.Commissions, deps.Payouts, logger),
	)

	sched, err := scheduler.New(redisOpt, scheduler.Config{
		ReconcileInterval: cfg.Engine.ReconcileInterval,
	}, logger)
	if err != nil {
		log.Fatalf("Failed to register scheduled jobs: %v", err)
	}
	if err := sched.Start(); err != nil {
		log.Fatalf("Failed to start scheduler: %v", err)
	}
	defer sched.Shutdown()

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info(ctx, fmt.Sprintf("Worker server started on Redis: %s", cfg.Redis.Addr))
		if err := srv.Run(mux); err != nil {
			log.Fatalf("Failed to run server: %v", err)
		}
	}()

	<-sigChan
	logger.Info(ctx, "Shutting down worker server...")

	srv.Shutdown()
	logger.Info(ctx, "Worker server stopped")
}
