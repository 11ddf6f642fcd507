package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/unclebandit/smsleopard-intake/internal/config"
	"github.com/unclebandit/smsleopard-intake/internal/logger"
	"github.com/unclebandit/smsleopard-intake/internal/queue"
	"github.com/unclebandit/smsleopard-intake/internal/service"
)

func main() {
	cfg, _, err := config.Load()
	if err != nil {
		slog.Error("Invalid configuration", slog.Any("error", err))
		os.Exit(1)
	}
	l := logger.NewLogger(cfg.LogLevel)

	if cfg.AMQPURL == "" {
		l.Error("AMQP_URL is required for the worker")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Connect to RabbitMQ
	broker, err := queue.NewAMQPQueue(cfg.AMQPURL, l)
	if err != nil {
		l.Error("Failed to connect to RabbitMQ", slog.Any("error", err))
		os.Exit(1)
	}

	worker := service.NewWorker(nil, nil, l)
	if err := broker.Subscribe(cfg.OutcomeTopic, handleDelivery(ctx, worker, l)); err != nil {
		l.Error("Failed to register consumer", slog.Any("error", err))
		broker.Close()
		os.Exit(1)
	}

	l.Info("Worker running, waiting for batch events", slog.String("topic", cfg.OutcomeTopic))
	<-ctx.Done()

	// unacked deliveries go back to the queue when the connection closes
	if err := broker.Close(); err != nil {
		l.Warn("Failed to close RabbitMQ connection", slog.Any("error", err))
	}

	tally := worker.Tally()
	l.Info("Worker stopped",
		slog.Int("batches", tally.Batches),
		slog.Int("processed", tally.Processed),
		slog.Int("failed", tally.Failed),
		slog.Int("skipped_duplicates", tally.SkippedDuplicates))
}

// handleDelivery processes each delivery before returning, so a delivery is
// only acked once it is in the tally. Undecodable bodies are acked and
// dropped; deliveries arriving after shutdown began are nacked.
func handleDelivery(ctx context.Context, worker *service.Worker, l *slog.Logger) func(payload any) error {
	return func(payload any) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		evt, err := queue.DecodeBatchRecorded(payload)
		if err != nil {
			l.Warn("Invalid batch event", slog.Any("error", err))
			return nil
		}
		worker.Handle(evt)
		return nil
	}
}
