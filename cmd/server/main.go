// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/unclebandit/smsleopard-intake/internal/config"
	"github.com/unclebandit/smsleopard-intake/internal/controller"
	"github.com/unclebandit/smsleopard-intake/internal/db"
	"github.com/unclebandit/smsleopard-intake/internal/handler"
	"github.com/unclebandit/smsleopard-intake/internal/logger"
	"github.com/unclebandit/smsleopard-intake/internal/metrics"
	"github.com/unclebandit/smsleopard-intake/internal/queue"
	"github.com/unclebandit/smsleopard-intake/internal/repository"
	"github.com/unclebandit/smsleopard-intake/internal/router"
	"github.com/unclebandit/smsleopard-intake/internal/service"
)

func main() {
	cfg, foundDotEnv, err := config.Load()
	if err != nil {
		slog.Error("Invalid configuration", slog.Any("error", err))
		os.Exit(1)
	}

	l := logger.NewLogger(cfg.LogLevel)
	if !foundDotEnv {
		l.Info("No .env file found, relying on OS environment variables")
	}
	metrics.Init()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Init DB
	conn, dialect, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		l.Error("Failed to open database", slog.Any("error", err))
		os.Exit(1)
	}
	defer conn.Close()
	if err := db.Migrate(ctx, conn, dialect); err != nil {
		l.Error("Failed to migrate database", slog.Any("error", err))
		os.Exit(1)
	}
	l.Info("Database ready", slog.String("dialect", string(dialect)))

	outcomeRepo := repository.NewOutcomeRepository(conn, dialect)

	// Batch events: counters in-process, optionally forwarded to RabbitMQ.
	q := queue.NewInMemoryQueue(l)
	if err := queue.StartOutcomeMetricsSubscriber(q, cfg.OutcomeTopic, l); err != nil {
		l.Error("Failed to subscribe metrics", slog.Any("error", err))
		os.Exit(1)
	}
	if cfg.AMQPURL != "" {
		broker, err := queue.NewAMQPQueue(cfg.AMQPURL, l)
		if err != nil {
			l.Error("Failed to connect to RabbitMQ", slog.Any("error", err))
			os.Exit(1)
		}
		defer broker.Close()
		if err := queue.StartForwarder(q, broker, cfg.OutcomeTopic, l); err != nil {
			l.Error("Failed to start forwarder", slog.Any("error", err))
			os.Exit(1)
		}
		l.Info("Forwarding batch events", slog.String("topic", cfg.OutcomeTopic))
	}

	ingestService := service.NewIngestService(outcomeRepo, service.NewPhoneValidator(), q, cfg.OutcomeTopic, l)
	metricsService := service.NewMetricsService(outcomeRepo, cfg.MetricsRecentLimit, l)
	healthService := service.NewHealthService(outcomeRepo, l)

	r := router.NewRouter(
		controller.NewMessageController(ingestService, cfg.MaxUploadBytes, l),
		handler.NewMetricsHandler(metricsService, l),
		handler.NewHealthHandler(healthService, l),
		router.Options{
			SubmitPerSecond: cfg.SubmitRatePerSecond,
			PerHour:         cfg.RatePerHour,
			PerDay:          cfg.RatePerDay,
			RequestTimeout:  cfg.RequestTimeout,
		},
		l,
	)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: r}
	go func() {
		l.Info("Server running", slog.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.Error("Server failed", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	l.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		l.Error("Graceful shutdown failed", slog.Any("error", err))
	}
	q.Wait()
	l.Info("Server stopped")
}
