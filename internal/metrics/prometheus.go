package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusCollector implements Collector for Prometheus.
type PrometheusCollector struct {
	operations    *prometheus.CounterVec
	latency       *prometheus.HistogramVec
	retries       *prometheus.CounterVec
	notifications *prometheus.CounterVec
	queueDepth    prometheus.Gauge
}

// NewPrometheusCollector creates the collectors and registers them with reg.
func NewPrometheusCollector(namespace string, reg prometheus.Registerer) (*PrometheusCollector, error) {
	pc := &PrometheusCollector{
		operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "operations_total",
				Help:      "Engine operations by name and result code",
			},
			[]string{"operation", "code"},
		),
		latency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "operation_duration_seconds",
				Help:      "Engine operation latency",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		retries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "operation_retries_total",
				Help:      "Retried attempts by operation and reason",
			},
			[]string{"operation", "reason"},
		),
		notifications: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "notifications_total",
				Help:      "Notifications by event kind and outcome",
			},
			[]string{"kind", "outcome"},
		),
		queueDepth: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "notification_queue_depth",
				Help:      "Notifications waiting for delivery",
			},
		),
	}

	for _, c := range []prometheus.Collector{pc.operations, pc.latency, pc.retries, pc.notifications, pc.queueDepth} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return pc, nil
}

func (pc *PrometheusCollector) RecordOperation(op string, code string, duration time.Duration) {
	pc.operations.WithLabelValues(op, code).Inc()
	pc.latency.WithLabelValues(op).Observe(duration.Seconds())
}

func (pc *PrometheusCollector) RecordRetry(op string, reason string) {
	pc.retries.WithLabelValues(op, reason).Inc()
}

func (pc *PrometheusCollector) RecordNotification(kind string, outcome string) {
	pc.notifications.WithLabelValues(kind, outcome).Inc()
}

func (pc *PrometheusCollector) RecordQueueDepth(depth int) {
	pc.queueDepth.Set(float64(depth))
}
