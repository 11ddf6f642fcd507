package queue

import (
	"fmt"
	"log/slog"

	"github.com/unclebandit/smsleopard-intake/internal/metrics"
)

// StartOutcomeMetricsSubscriber keeps the Prometheus outcome counters in step
// with committed batches.
func StartOutcomeMetricsSubscriber(q Queue, topic string, logger *slog.Logger) error {
	return q.Subscribe(topic, func(payload any) error {
		evt, err := DecodeBatchRecorded(payload)
		if err != nil {
			// retrying will not fix a bad payload
			logger.Warn("Dropping batch event", slog.Any("error", err))
			return nil
		}
		metrics.ObserveBatch(evt)
		return nil
	})
}

// StartForwarder republishes every event on the local topic to remote.
func StartForwarder(local, remote Queue, topic string, logger *slog.Logger) error {
	if remote == nil {
		return fmt.Errorf("forwarder needs a remote queue")
	}
	return local.Subscribe(topic, func(payload any) error {
		evt, err := DecodeBatchRecorded(payload)
		if err != nil {
			logger.Warn("Dropping batch event", slog.Any("error", err))
			return nil
		}
		if err := remote.Publish(topic, evt); err != nil {
			return fmt.Errorf("forward batch %s: %w", evt.BatchID, err)
		}
		logger.Debug("Batch event forwarded", slog.String("batch_id", evt.BatchID))
		return nil
	})
}
