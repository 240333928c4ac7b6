// Package metrics defines the engine's instrumentation points. The service and
// the notification dispatcher record through Collector; NoOpCollector is the
// default so that tests and embedders need no metrics backend.
package metrics

import "time"

// Notification outcomes.
const (
	OutcomeDelivered = "delivered"
	OutcomeFailed    = "failed"
	OutcomeDropped   = "dropped"
)

type Collector interface {
	// RecordOperation is called once per engine operation with the resulting
	// error code ("ok" on success).
	RecordOperation(op string, code string, duration time.Duration)

	// RecordRetry counts a retried attempt; reason is "conflict" or "transient".
	RecordRetry(op string, reason string)

	RecordNotification(kind string, outcome string)

	RecordQueueDepth(depth int)
}

// NoOpCollector discards everything.
type NoOpCollector struct{}

func (NoOpCollector) RecordOperation(op string, code string, duration time.Duration) {}

func (NoOpCollector) RecordRetry(op string, reason string) {}

func (NoOpCollector) RecordNotification(kind string, outcome string) {}

func (NoOpCollector) RecordQueueDepth(depth int) {}
