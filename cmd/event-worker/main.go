package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"commission-engine/internal/bootstrap"
	"commission-engine/internal/config"
	"commission-engine/internal/observability"
	"commission-engine/internal/workers"
	"commission-engine/internal/workers/payments"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if cfg.Kafka.Brokers == "" {
		log.Fatal("KAFKA_BROKERS is required for the event worker")
	}

	// Initialize logger
	logger := observability.NewLogger()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger.Info(ctx, "Starting payment event worker...")

	deps, err := bootstrap.Initialize(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("Failed to initialize dependencies: %v", err)
	}
	defer deps.Cleanup()

	brokers := strings.Split(cfg.Kafka.Brokers, ",")
	consumerConfig := workers.DefaultConsumerConfig(brokers, cfg.Kafka.ConsumerGroup, cfg.Kafka.PaymentTopic)
	consumerConfig.NumWorkers = cfg.WorkerPool.PaymentWorkers

	consumer := workers.NewConsumer(consumerConfig, payments.New(deps.Commissions, logger), logger)

	logger.Info(ctx, fmt.Sprintf(`Payment event worker configuration:
  - Workers: %d
  - Kafka brokers: %v
  - Kafka topic: %s
  - Consumer group: %s`,
		consumerConfig.NumWorkers, brokers, cfg.Kafka.PaymentTopic, cfg.Kafka.ConsumerGroup))

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		logger.Info(ctx, "Received shutdown signal, draining in-flight events...")
		consumer.Stop()
	}()

	if err := consumer.Start(ctx); err != nil {
		logger.Error(ctx, "payment event consumer stopped with error", err)
	}
	logger.Info(ctx, "Payment event worker stopped")
}
