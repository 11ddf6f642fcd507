package service

import (
	"context"
	"log/slog"
	"math"
	"strings"

	appErrors "github.com/unclebandit/smsleopard-intake/internal/errors"
	"github.com/unclebandit/smsleopard-intake/internal/model"
	"github.com/unclebandit/smsleopard-intake/internal/repository"
)

const DefaultRecentLimit = 100

// OutcomeReader is the read side of the outcome store.
type OutcomeReader interface {
	ListAll(ctx context.Context) ([]model.MessageOutcome, error)
	Snapshot(ctx context.Context, recentLimit int) (*repository.OutcomeSnapshot, error)
}

type MetricsService struct {
	Store       OutcomeReader
	RecentLimit int
	Logger      *slog.Logger
}

type MetricsSummary struct {
	TotalMessages  int                    `json:"total_messages"`
	StatusCounts   map[model.Status]int   `json:"status_counts"`
	SuccessRate    float64                `json:"success_rate"`
	RecentMessages []model.MessageOutcome `json:"recent_messages"`
}

func NewMetricsService(store OutcomeReader, recentLimit int, logger *slog.Logger) *MetricsService {
	if recentLimit <= 0 {
		recentLimit = DefaultRecentLimit
	}
	return &MetricsService{
		Store:       store,
		RecentLimit: recentLimit,
		Logger:      logger.With("layer", "service", "component", "metricsService"),
	}
}

// AllOutcomes returns every stored outcome, unmasked, oldest first.
func (s *MetricsService) AllOutcomes(ctx context.Context) ([]model.MessageOutcome, error) {
	outcomes, err := s.Store.ListAll(ctx)
	if err != nil {
		s.Logger.Error("Failed to list outcomes", slog.Any("error", err))
		return nil, appErrors.NewStoreFailure("list", err)
	}
	return outcomes, nil
}

// Summary aggregates counts and returns the most recent outcomes with
// destinations masked.
func (s *MetricsService) Summary(ctx context.Context) (*MetricsSummary, error) {
	snap, err := s.Store.Snapshot(ctx, s.RecentLimit)
	if err != nil {
		s.Logger.Error("Failed to read outcome snapshot", slog.Any("error", err))
		return nil, appErrors.NewStoreFailure("snapshot", err)
	}
	counts, recent := snap.Counts, snap.Recent

	total := 0
	for _, n := range counts {
		total += n
	}
	for i := range recent {
		recent[i].Destination = MaskPhone(recent[i].Destination)
	}

	return &MetricsSummary{
		TotalMessages:  total,
		StatusCounts:   counts,
		SuccessRate:    SuccessRate(counts[model.StatusSuccess], total),
		RecentMessages: recent,
	}, nil
}

// SuccessRate is success/total as a percentage rounded to two decimals, and
// 100 when nothing has been stored.
func SuccessRate(success, total int) float64 {
	if total == 0 {
		return 100
	}
	return math.Round(float64(success)/float64(total)*100*100) / 100
}

// MaskPhone replaces every digit but the last four with '*'.
func MaskPhone(destination string) string {
	if destination == model.MissingDestination {
		return destination
	}
	digits := 0
	for _, r := range destination {
		if r >= '0' && r <= '9' {
			digits++
		}
	}
	keep := 4
	if digits <= keep {
		keep = 0
	}

	var b strings.Builder
	seen := 0
	for _, r := range destination {
		if r >= '0' && r <= '9' {
			seen++
			if seen <= digits-keep {
				b.WriteByte('*')
				continue
			}
		}
		b.WriteRune(r)
	}
	return b.String()
}
