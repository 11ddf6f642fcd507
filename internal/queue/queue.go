package queue

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/unclebandit/smsleopard-intake/internal/model"
)

// Queue interface
type Queue interface {
	Publish(topic string, payload any) error
	Subscribe(topic string, handler func(payload any) error) error
}

// InMemoryQueue fans each payload out to every subscriber of a topic and
// retries failing handlers with a linear backoff.
type InMemoryQueue struct {
	mu         sync.Mutex
	handlers   map[string][]func(payload any) error
	wg         sync.WaitGroup
	logger     *slog.Logger
	MaxRetries int
	Backoff    time.Duration
}

// NewInMemoryQueue creates a new queue
func NewInMemoryQueue(logger *slog.Logger) *InMemoryQueue {
	return &InMemoryQueue{
		handlers:   make(map[string][]func(payload any) error),
		logger:     logger.With("component", "inMemoryQueue"),
		MaxRetries: 3,
		Backoff:    500 * time.Millisecond,
	}
}

// JobPayload wraps a message payload with retry info
type JobPayload struct {
	Topic      string
	Payload    any
	RetryCount int
	MaxRetries int
}

// Publish sends a message to all subscribers
func (q *InMemoryQueue) Publish(topic string, payload any) error {
	q.mu.Lock()
	handlers := append([]func(payload any) error(nil), q.handlers[topic]...)
	q.mu.Unlock()

	if len(handlers) == 0 {
		return fmt.Errorf("no subscribers for topic %s", topic)
	}

	for _, handler := range handlers {
		job := JobPayload{Topic: topic, Payload: payload, MaxRetries: q.MaxRetries}
		q.wg.Add(1)
		go q.processJob(handler, job)
	}
	return nil
}

func (q *InMemoryQueue) processJob(handler func(payload any) error, job JobPayload) {
	defer q.wg.Done()
	for {
		err := handler(job.Payload)
		if err == nil {
			return
		}

		job.RetryCount++
		if job.RetryCount > job.MaxRetries {
			q.logger.Error("Job permanently failed",
				slog.String("topic", job.Topic),
				slog.Int("attempts", job.RetryCount),
				slog.Any("error", err))
			return
		}
		q.logger.Warn("Job failed, retrying",
			slog.String("topic", job.Topic),
			slog.Int("attempt", job.RetryCount),
			slog.Int("max_retries", job.MaxRetries),
			slog.Any("error", err))
		time.Sleep(time.Duration(job.RetryCount) * q.Backoff)
	}
}

// Subscribe adds a handler for a topic
func (q *InMemoryQueue) Subscribe(topic string, handler func(payload any) error) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.handlers[topic] = append(q.handlers[topic], handler)
	return nil
}

// Wait blocks until every published job has finished or given up.
func (q *InMemoryQueue) Wait() {
	q.wg.Wait()
}

// DecodeBatchRecorded accepts the event as published in-process or as the raw
// JSON body delivered by a broker.
func DecodeBatchRecorded(payload any) (model.BatchRecorded, error) {
	switch p := payload.(type) {
	case model.BatchRecorded:
		return p, nil
	case *model.BatchRecorded:
		if p == nil {
			return model.BatchRecorded{}, fmt.Errorf("nil batch event")
		}
		return *p, nil
	case []byte:
		var evt model.BatchRecorded
		if err := json.Unmarshal(p, &evt); err != nil {
			return model.BatchRecorded{}, fmt.Errorf("decode batch event: %w", err)
		}
		return evt, nil
	default:
		return model.BatchRecorded{}, fmt.Errorf("unexpected batch event payload %T", payload)
	}
}
