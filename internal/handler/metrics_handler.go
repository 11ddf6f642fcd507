// internal/handler/metrics_handler.go
package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/unclebandit/smsleopard-intake/internal/model"
	"github.com/unclebandit/smsleopard-intake/internal/service"
)

// MetricsHandler serves the persisted outcome views.
type MetricsHandler struct {
	Service *service.MetricsService
	logger  *slog.Logger
}

func NewMetricsHandler(svc *service.MetricsService, logger *slog.Logger) *MetricsHandler {
	return &MetricsHandler{Service: svc, logger: logger.With("layer", "handler", "component", "metricsHandler")}
}

// ListMessages dumps every stored outcome, unmasked, in insertion order.
func (h *MetricsHandler) ListMessages(w http.ResponseWriter, r *http.Request) {
	outcomes, err := h.Service.AllOutcomes(r.Context())
	if err != nil {
		h.logger.Error("Failed to fetch messages", slog.Any("error", err))
		respondError(w, http.StatusInternalServerError, "failed to fetch messages")
		return
	}
	if outcomes == nil {
		outcomes = []model.MessageOutcome{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"messages": outcomes})
}

// Summary returns aggregate counts and the most recent outcomes with masked destinations.
func (h *MetricsHandler) Summary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.Service.Summary(r.Context())
	if err != nil {
		h.logger.Error("Failed to build summary", slog.Any("error", err))
		respondError(w, http.StatusInternalServerError, "failed to build summary")
		return
	}
	if summary.RecentMessages == nil {
		summary.RecentMessages = []model.MessageOutcome{}
	}
	respondJSON(w, http.StatusOK, summary)
}

func respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
