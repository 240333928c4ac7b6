package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shared-transactions/internal/domain"
	"shared-transactions/internal/metrics"
	"shared-transactions/pkg/logging"
)

type captureSink struct {
	mu      sync.Mutex
	got     []domain.Notification
	block   chan struct{}
	failing bool
}

func (s *captureSink) Name() string { return "capture" }

func (s *captureSink) Deliver(ctx context.Context, n domain.Notification) error {
	if s.block != nil {
		<-s.block
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.got = append(s.got, n)
	if s.failing {
		return assert.AnError
	}
	return nil
}

func (s *captureSink) delivered() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.got)
}

type outcomeCollector struct {
	metrics.NoOpCollector
	mu       sync.Mutex
	outcomes map[string]int
}

func (c *outcomeCollector) RecordNotification(_ string, outcome string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.outcomes[outcome]++
}

func (c *outcomeCollector) count(outcome string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.outcomes[outcome]
}

func notification() domain.Notification {
	return domain.Notification{
		Recipient:     uuid.New(),
		Kind:          domain.EventParticipantInvited,
		TransactionID: uuid.New(),
	}
}

func TestDispatcherDelivers(t *testing.T) {
	sink := &captureSink{}
	collector := &outcomeCollector{outcomes: map[string]int{}}
	d := NewDispatcher(sink, DispatcherConfig{QueueSize: 8, Workers: 2}, collector, logging.Discard())

	for i := 0; i < 5; i++ {
		d.Notify(context.Background(), notification())
	}
	require.NoError(t, d.Close(context.Background()))

	assert.Equal(t, 5, sink.delivered())
	assert.Equal(t, 5, collector.count(metrics.OutcomeDelivered))
	for _, n := range sink.got {
		assert.False(t, n.OccurredAt.IsZero())
	}
}

func TestDispatcherDropsWhenFull(t *testing.T) {
	sink := &captureSink{block: make(chan struct{})}
	collector := &outcomeCollector{outcomes: map[string]int{}}
	d := NewDispatcher(sink, DispatcherConfig{QueueSize: 1, Workers: 1}, collector, logging.Discard())

	// One in flight, one queued; the rest find the queue full.
	d.Notify(context.Background(), notification())
	require.Eventually(t, func() bool { return len(d.queue) == 0 }, time.Second, time.Millisecond)
	d.Notify(context.Background(), notification())
	d.Notify(context.Background(), notification())
	d.Notify(context.Background(), notification())

	assert.Equal(t, 2, collector.count(metrics.OutcomeDropped))

	close(sink.block)
	require.NoError(t, d.Close(context.Background()))
	assert.Equal(t, 2, sink.delivered())
}

func TestDispatcherFailureIsNotRetried(t *testing.T) {
	sink := &captureSink{failing: true}
	collector := &outcomeCollector{outcomes: map[string]int{}}
	d := NewDispatcher(sink, DispatcherConfig{}, collector, logging.Discard())

	d.Notify(context.Background(), notification())
	require.NoError(t, d.Close(context.Background()))

	assert.Equal(t, 1, sink.delivered())
	assert.Equal(t, 1, collector.count(metrics.OutcomeFailed))
}

func TestDispatcherAfterClose(t *testing.T) {
	sink := &captureSink{}
	collector := &outcomeCollector{outcomes: map[string]int{}}
	d := NewDispatcher(sink, DispatcherConfig{}, collector, logging.Discard())
	require.NoError(t, d.Close(context.Background()))
	require.NoError(t, d.Close(context.Background()))

	d.Notify(context.Background(), notification())
	assert.Equal(t, 1, collector.count(metrics.OutcomeDropped))
	assert.Zero(t, sink.delivered())
}

func TestDispatcherCloseHonoursContext(t *testing.T) {
	sink := &captureSink{block: make(chan struct{})}
	d := NewDispatcher(sink, DispatcherConfig{Workers: 1}, nil, logging.Discard())
	d.Notify(context.Background(), notification())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, d.Close(ctx), context.DeadlineExceeded)

	close(sink.block)
}

func TestWebhookSink(t *testing.T) {
	var received domain.Notification
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	sink := NewWebhookSink(WebhookConfig{URL: srv.URL}, logging.Discard())
	n := notification()
	n.Payload = map[string]string{"status": "ACCEPTED"}

	require.NoError(t, sink.Deliver(context.Background(), n))
	assert.Equal(t, n.TransactionID, received.TransactionID)
	assert.Equal(t, "ACCEPTED", received.Payload["status"])
}

func TestWebhookSinkBreakerOpens(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	sink := NewWebhookSink(WebhookConfig{URL: srv.URL, ConsecutiveFailures: 3, OpenTimeout: time.Minute}, logging.Discard())
	for i := 0; i < 3; i++ {
		assert.Error(t, sink.Deliver(context.Background(), notification()))
	}
	assert.Equal(t, gobreaker.StateOpen, sink.State())

	err := sink.Deliver(context.Background(), notification())
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, int32(3), calls.Load(), "open breaker does not call the endpoint")
}

func TestLogSink(t *testing.T) {
	sink := NewLogSink(logging.Discard())
	assert.Equal(t, "log", sink.Name())
	assert.NoError(t, sink.Deliver(context.Background(), notification()))
}
