package service

import (
	"log/slog"
	"sync"

	"github.com/unclebandit/smsleopard-intake/internal/model"
)

// BatchTally is the running total of every batch event a worker has seen.
type BatchTally struct {
	Batches           int `json:"batches"`
	Processed         int `json:"processed"`
	Failed            int `json:"failed"`
	SkippedDuplicates int `json:"skipped_duplicates"`
}

// Worker consumes committed-batch events
type Worker struct {
	Events  <-chan model.BatchRecorded
	OnEvent func(evt model.BatchRecorded)
	Logger  *slog.Logger

	mu    sync.Mutex
	tally BatchTally
}

// Constructor
func NewWorker(events <-chan model.BatchRecorded, onEvent func(evt model.BatchRecorded), logger *slog.Logger) *Worker {
	return &Worker{
		Events:  events,
		OnEvent: onEvent,
		Logger:  logger.With("layer", "service", "component", "worker"),
	}
}

// Start processes events until the channel is closed
func (w *Worker) Start() {
	for evt := range w.Events {
		w.Handle(evt)
	}
}

// Handle processes one event synchronously; once it returns the event is in the tally.
func (w *Worker) Handle(evt model.BatchRecorded) {
	w.mu.Lock()
	w.tally.Batches++
	w.tally.Processed += evt.Processed
	w.tally.Failed += evt.Failed
	w.tally.SkippedDuplicates += evt.SkippedDuplicates
	tally := w.tally
	w.mu.Unlock()

	w.Logger.Info("Batch event received",
		slog.String("batch_id", evt.BatchID),
		slog.String("source", string(evt.Source)),
		slog.Int("processed", evt.Processed),
		slog.Int("failed", evt.Failed),
		slog.Int("skipped_duplicates", evt.SkippedDuplicates),
		slog.Int("total_contacts", evt.TotalContacts),
		slog.Int("batches_seen", tally.Batches))

	if w.OnEvent != nil {
		w.OnEvent(evt)
	}
}

func (w *Worker) Tally() BatchTally {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.tally
}
