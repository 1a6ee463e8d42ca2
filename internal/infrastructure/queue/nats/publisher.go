package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/daehwan-dev/policy-assistant/internal/core/ports"
)

// Publisher emits usage events for the offline evaluation pipeline. The
// publisher is best-effort end to end: when NATS is not configured it is a
// no-op, and publish failures are logged, never surfaced to the request path.
type Publisher struct {
	conn    *nats.Conn
	subject string
	logger  *slog.Logger
}

type Options struct {
	ConnectTimeout time.Duration
	ReconnectWait  time.Duration
	MaxReconnects  int
}

// New connects to NATS. An empty url disables publishing entirely.
func New(url, subject string, options Options, logger *slog.Logger) (*Publisher, error) {
	if url == "" {
		return &Publisher{logger: logger}, nil
	}

	connectTimeout := options.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 2 * time.Second
	}
	reconnectWait := options.ReconnectWait
	if reconnectWait <= 0 {
		reconnectWait = 2 * time.Second
	}
	maxReconnects := options.MaxReconnects
	if maxReconnects <= 0 {
		maxReconnects = 60
	}

	conn, err := nats.Connect(
		url,
		nats.Name("policy-assistant"),
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(maxReconnects),
		nats.RetryOnFailedConnect(true),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats_disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats_reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &Publisher{conn: conn, subject: subject, logger: logger}, nil
}

func (p *Publisher) Close() {
	if p.conn != nil {
		p.conn.Close()
	}
}

func (p *Publisher) PublishChatAnswered(_ context.Context, event ports.ChatAnsweredEvent) error {
	return p.publish("chat_answered", event)
}

func (p *Publisher) PublishSearchCompleted(_ context.Context, event ports.SearchCompletedEvent) error {
	return p.publish("search_completed", event)
}

func (p *Publisher) publish(kind string, event any) error {
	if p.conn == nil {
		return nil
	}

	payload, err := json.Marshal(map[string]any{
		"kind":  kind,
		"event": event,
	})
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", kind, err)
	}
	if err := p.conn.Publish(p.subject, payload); err != nil {
		p.logger.Warn("usage_event_publish_failed", "kind", kind, "error", err)
		return fmt.Errorf("nats publish %s: %w", kind, err)
	}
	return nil
}
