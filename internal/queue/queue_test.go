package queue

import (
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unclebandit/smsleopard-intake/internal/logger"
	"github.com/unclebandit/smsleopard-intake/internal/metrics"
	"github.com/unclebandit/smsleopard-intake/internal/model"
)

func newTestQueue() *InMemoryQueue {
	q := NewInMemoryQueue(logger.Discard())
	q.Backoff = time.Millisecond
	return q
}

func TestPublishWithoutSubscribersFails(t *testing.T) {
	q := newTestQueue()
	require.Error(t, q.Publish("message_outcomes", 1))
}

func TestPublishFansOutToAllSubscribers(t *testing.T) {
	q := newTestQueue()
	var calls atomic.Int32
	for i := 0; i < 3; i++ {
		require.NoError(t, q.Subscribe("t", func(payload any) error {
			calls.Add(1)
			return nil
		}))
	}

	require.NoError(t, q.Publish("t", "x"))
	q.Wait()
	assert.Equal(t, int32(3), calls.Load())
}

func TestFailingHandlerIsRetriedThenDropped(t *testing.T) {
	q := newTestQueue()
	q.MaxRetries = 2

	var attempts atomic.Int32
	require.NoError(t, q.Subscribe("t", func(payload any) error {
		attempts.Add(1)
		return errors.New("boom")
	}))
	require.NoError(t, q.Publish("t", "x"))
	q.Wait()

	assert.Equal(t, int32(3), attempts.Load())
}

func TestHandlerRecoversOnRetry(t *testing.T) {
	q := newTestQueue()
	var (
		mu       sync.Mutex
		attempts int
	)
	require.NoError(t, q.Subscribe("t", func(payload any) error {
		mu.Lock()
		defer mu.Unlock()
		attempts++
		if attempts < 2 {
			return errors.New("transient")
		}
		return nil
	}))
	require.NoError(t, q.Publish("t", "x"))
	q.Wait()
	assert.Equal(t, 2, attempts)
}

func TestDecodeBatchRecorded(t *testing.T) {
	evt := model.BatchRecorded{BatchID: "b-1", Source: model.SourceCSV, Processed: 2, Failed: 1, TotalContacts: 3}

	got, err := DecodeBatchRecorded(evt)
	require.NoError(t, err)
	assert.Equal(t, evt, got)

	got, err = DecodeBatchRecorded(&evt)
	require.NoError(t, err)
	assert.Equal(t, evt, got)

	body, err := json.Marshal(evt)
	require.NoError(t, err)
	got, err = DecodeBatchRecorded(body)
	require.NoError(t, err)
	assert.Equal(t, "b-1", got.BatchID)
	assert.Equal(t, 3, got.TotalContacts)

	_, err = DecodeBatchRecorded(42)
	require.Error(t, err)
	_, err = DecodeBatchRecorded([]byte("{"))
	require.Error(t, err)
}

func TestOutcomeMetricsSubscriber(t *testing.T) {
	metrics.Init()
	q := newTestQueue()
	require.NoError(t, StartOutcomeMetricsSubscriber(q, "t", logger.Discard()))

	processed := metrics.ContactOutcomes.WithLabelValues("json", "processed")
	duplicates := metrics.ContactOutcomes.WithLabelValues("json", "duplicate")
	batches := metrics.BatchesRecorded.WithLabelValues("json")
	beforeProcessed := testutil.ToFloat64(processed)
	beforeDuplicates := testutil.ToFloat64(duplicates)
	beforeBatches := testutil.ToFloat64(batches)

	require.NoError(t, q.Publish("t", model.BatchRecorded{Source: model.SourceJSON, Processed: 2, SkippedDuplicates: 1}))
	require.NoError(t, q.Publish("t", "garbage"))
	q.Wait()

	assert.Equal(t, beforeProcessed+2, testutil.ToFloat64(processed))
	assert.Equal(t, beforeDuplicates+1, testutil.ToFloat64(duplicates))
	assert.Equal(t, beforeBatches+1, testutil.ToFloat64(batches))
}

type recordingQueue struct {
	mu        sync.Mutex
	published []any
	fail      bool
}

func (r *recordingQueue) Publish(topic string, payload any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail {
		return errors.New("broker down")
	}
	r.published = append(r.published, payload)
	return nil
}

func (r *recordingQueue) Subscribe(string, func(any) error) error { return nil }

func TestForwarderRepublishesEvents(t *testing.T) {
	local := newTestQueue()
	remote := &recordingQueue{}
	require.NoError(t, StartForwarder(local, remote, "t", logger.Discard()))

	require.NoError(t, local.Publish("t", model.BatchRecorded{BatchID: "b-2"}))
	local.Wait()

	require.Len(t, remote.published, 1)
	assert.Equal(t, "b-2", remote.published[0].(model.BatchRecorded).BatchID)

	require.Error(t, StartForwarder(local, nil, "t", logger.Discard()))
}

func TestForwarderRetriesWhenRemoteFails(t *testing.T) {
	local := newTestQueue()
	local.MaxRetries = 1
	remote := &recordingQueue{fail: true}
	require.NoError(t, StartForwarder(local, remote, "t", logger.Discard()))

	require.NoError(t, local.Publish("t", model.BatchRecorded{BatchID: "b-3"}))
	local.Wait()
	assert.Empty(t, remote.published)
}
