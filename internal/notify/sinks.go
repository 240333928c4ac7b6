package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/sony/gobreaker"

	"shared-transactions/internal/domain"
)

// LogSink writes notifications to the log. It is the default when no webhook
// is configured.
type LogSink struct {
	logger *slog.Logger
}

func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger}
}

func (s *LogSink) Name() string { return "log" }

func (s *LogSink) Deliver(_ context.Context, n domain.Notification) error {
	s.logger.Info("Notification",
		"kind", n.Kind,
		"recipient", n.Recipient,
		"transaction_id", n.TransactionID,
		"payload", n.Payload)
	return nil
}

// WebhookSink POSTs each notification as JSON. A circuit breaker stops calling
// an endpoint that keeps failing; while open, deliveries fail immediately.
type WebhookSink struct {
	url    string
	client *http.Client
	cb     *gobreaker.CircuitBreaker
	logger *slog.Logger
}

type WebhookConfig struct {
	URL     string
	Timeout time.Duration
	// ConsecutiveFailures trips the breaker (default: 5).
	ConsecutiveFailures uint32
	// OpenTimeout is how long the breaker stays open (default: 30s).
	OpenTimeout time.Duration
}

func NewWebhookSink(config WebhookConfig, logger *slog.Logger) *WebhookSink {
	if config.Timeout <= 0 {
		config.Timeout = 5 * time.Second
	}
	if config.ConsecutiveFailures == 0 {
		config.ConsecutiveFailures = 5
	}
	if config.OpenTimeout <= 0 {
		config.OpenTimeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	threshold := config.ConsecutiveFailures
	settings := gobreaker.Settings{
		Name:        "notification-webhook",
		MaxRequests: 1,
		Timeout:     config.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				"breaker", name,
				"from", from.String(),
				"to", to.String())
		},
	}

	return &WebhookSink{
		url:    config.URL,
		client: &http.Client{Timeout: config.Timeout},
		cb:     gobreaker.NewCircuitBreaker(settings),
		logger: logger,
	}
}

func (s *WebhookSink) Name() string { return "webhook" }

func (s *WebhookSink) Deliver(ctx context.Context, n domain.Notification) error {
	body, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("failed to encode notification: %w", err)
	}

	_, err = s.cb.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := s.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode >= http.StatusBadRequest {
			return nil, fmt.Errorf("webhook responded %d", resp.StatusCode)
		}
		return nil, nil
	})
	return err
}

// State exposes the breaker state, mainly for tests.
func (s *WebhookSink) State() gobreaker.State {
	return s.cb.State()
}
