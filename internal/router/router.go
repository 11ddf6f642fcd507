package router

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/unclebandit/smsleopard-intake/internal/controller"
	"github.com/unclebandit/smsleopard-intake/internal/handler"
	customMiddleware "github.com/unclebandit/smsleopard-intake/internal/middleware"
)

// Options holds the per-client request budgets, keyed by IP, and the
// deadline for preview and metrics reads. A zero limit is disabled and a zero
// timeout means 30s. Submissions run without a deadline.
type Options struct {
	SubmitPerSecond int
	PerHour         int
	PerDay          int
	RequestTimeout  time.Duration
}

const defaultRequestTimeout = 30 * time.Second

func NewRouter(
	messages *controller.MessageController,
	metricsHandler *handler.MetricsHandler,
	healthHandler *handler.HealthHandler,
	opts Options,
	logger *slog.Logger,
) http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(customMiddleware.MetricsMiddleware)
	r.Use(customMiddleware.RequestLogger(logger))
	r.Use(middleware.Recoverer)

	// Health checks and scraping stay outside the client budgets.
	r.Get("/healthz", healthHandler.Liveness)
	r.Get("/readyz", healthHandler.Readiness)
	r.Handle("/metrics/prometheus", promhttp.Handler())

	timeout := opts.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}

	r.Group(func(r chi.Router) {
		useLimit(r, opts.PerHour, time.Hour)
		useLimit(r, opts.PerDay, 24*time.Hour)

		r.Route("/messages", func(r chi.Router) {
			r.With(middleware.Timeout(timeout)).Post("/preview", messages.Preview)

			r.Group(func(r chi.Router) {
				useLimit(r, opts.SubmitPerSecond, time.Second)
				r.Post("/", messages.SubmitMessages)
				r.Post("/upload", messages.UploadCSV)
			})
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(timeout))
			r.Get("/metrics", metricsHandler.ListMessages)
			r.Get("/metrics/summary", metricsHandler.Summary)
		})
	})

	return r
}

func useLimit(r chi.Router, n int, window time.Duration) {
	if n > 0 {
		r.Use(httprate.LimitByIP(n, window))
	}
}
