// Package notify delivers participant events after the state change that
// caused them has been committed. Delivery is asynchronous and at most once:
// a full queue drops the event and a failed delivery is logged, never retried.
package notify

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"shared-transactions/internal/domain"
	"shared-transactions/internal/metrics"
)

var ErrDispatcherClosed = errors.New("notify: dispatcher closed")

// Sink performs the actual delivery of one notification.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, n domain.Notification) error
}

type DispatcherConfig struct {
	// QueueSize bounds pending notifications (default: 256).
	QueueSize int

	// Workers is the number of concurrent deliveries (default: 2).
	Workers int

	// DeliveryTimeout bounds a single Deliver call (default: 5s).
	DeliveryTimeout time.Duration
}

// Dispatcher implements domain.Notifier over a bounded queue and a worker pool.
type Dispatcher struct {
	sink    Sink
	config  DispatcherConfig
	queue   chan domain.Notification
	metrics metrics.Collector
	logger  *slog.Logger

	wg        sync.WaitGroup
	mu        sync.RWMutex
	closed    bool
	closeOnce sync.Once
}

var _ domain.Notifier = (*Dispatcher)(nil)

// NewDispatcher starts the worker pool. It must be stopped with Close.
func NewDispatcher(sink Sink, config DispatcherConfig, collector metrics.Collector, logger *slog.Logger) *Dispatcher {
	if config.QueueSize <= 0 {
		config.QueueSize = 256
	}
	if config.Workers <= 0 {
		config.Workers = 2
	}
	if config.DeliveryTimeout <= 0 {
		config.DeliveryTimeout = 5 * time.Second
	}
	if collector == nil {
		collector = metrics.NoOpCollector{}
	}
	if logger == nil {
		logger = slog.Default()
	}

	d := &Dispatcher{
		sink:    sink,
		config:  config,
		queue:   make(chan domain.Notification, config.QueueSize),
		metrics: collector,
		logger:  logger,
	}

	for i := 0; i < config.Workers; i++ {
		d.wg.Add(1)
		go d.worker()
	}
	return d
}

// Notify enqueues n without blocking. The caller's context is not propagated to
// delivery: the event outlives the request that produced it.
func (d *Dispatcher) Notify(_ context.Context, n domain.Notification) {
	if n.OccurredAt.IsZero() {
		n.OccurredAt = time.Now().UTC()
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.drop(n, ErrDispatcherClosed)
		return
	}

	select {
	case d.queue <- n:
		d.metrics.RecordQueueDepth(len(d.queue))
	default:
		d.drop(n, errors.New("queue full"))
	}
}

func (d *Dispatcher) drop(n domain.Notification, reason error) {
	d.metrics.RecordNotification(string(n.Kind), metrics.OutcomeDropped)
	d.logger.Warn("Notification dropped",
		"kind", n.Kind,
		"recipient", n.Recipient,
		"transaction_id", n.TransactionID,
		"reason", reason)
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for n := range d.queue {
		d.deliver(n)
		d.metrics.RecordQueueDepth(len(d.queue))
	}
}

func (d *Dispatcher) deliver(n domain.Notification) {
	ctx, cancel := context.WithTimeout(context.Background(), d.config.DeliveryTimeout)
	defer cancel()

	if err := d.sink.Deliver(ctx, n); err != nil {
		d.metrics.RecordNotification(string(n.Kind), metrics.OutcomeFailed)
		d.logger.Warn("Notification delivery failed",
			"sink", d.sink.Name(),
			"kind", n.Kind,
			"recipient", n.Recipient,
			"transaction_id", n.TransactionID,
			"error", err)
		return
	}
	d.metrics.RecordNotification(string(n.Kind), metrics.OutcomeDelivered)
}

// Close stops accepting notifications and waits for queued ones to be
// delivered, or for ctx to expire.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.closeOnce.Do(func() {
		d.mu.Lock()
		d.closed = true
		close(d.queue)
		d.mu.Unlock()
	})

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
