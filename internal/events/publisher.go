package events

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/lablup/baimgr-core/internal/logger"
)

// Config holds NATS connection configuration for the event publisher.
type Config struct {
	URL  string
	User string
	Password string
}

// Publisher publishes buffered events to NATS after a scheduling
// transaction commits. If NATS is unreachable at startup it degrades to a
// disabled publisher that logs and drops, rather than blocking scheduling
// on an event bus outage.
type Publisher struct {
	conn    *nats.Conn
	js      nats.JetStreamContext
	enabled bool
}

// NewPublisher connects to NATS and provisions the session event stream.
func NewPublisher(cfg Config) (*Publisher, error) {
	if cfg.URL == "" {
		cfg.URL = os.Getenv("SCHEDCORE_NATS_URL")
	}
	if cfg.URL == "" {
		logger.Events().Warn().Msg("NATS URL not configured, event publishing disabled")
		return &Publisher{enabled: false}, nil
	}

	opts := []nats.Option{
		nats.Name("schedcore"),
		nats.ReconnectWait(2 * time.Second),
		nats.MaxReconnects(10),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				logger.Events().Warn().Err(err).Msg("nats disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Events().Info().Str("url", nc.ConnectedUrl()).Msg("nats reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			logger.Events().Error().Err(err).Msg("nats error")
		}),
	}
	if cfg.User != "" {
		opts = append(opts, nats.UserInfo(cfg.User, cfg.Password))
	}

	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		logger.Events().Warn().Err(err).Str("url", cfg.URL).Msg("failed to connect to nats, event publishing disabled")
		return &Publisher{enabled: false}, nil
	}

	js, err := conn.JetStream()
	if err != nil {
		logger.Events().Warn().Err(err).Msg("jetstream unavailable, using core nats")
	} else if err := ensureStream(js); err != nil {
		logger.Events().Warn().Err(err).Msg("failed to create jetstream stream, events will not be durable")
		js = nil
	}

	return &Publisher{conn: conn, js: js, enabled: true}, nil
}

func ensureStream(js nats.JetStreamContext) error {
	_, err := js.AddStream(&nats.StreamConfig{
		Name:      "SCHEDCORE_SESSIONS",
		Subjects:  []string{"schedcore.session.>"},
		Retention: nats.WorkQueuePolicy,
		MaxAge:    24 * time.Hour,
		Storage:   nats.FileStorage,
		Replicas:  1,
	})
	if err != nil && err.Error() != "stream name already in use" {
		return fmt.Errorf("add stream SCHEDCORE_SESSIONS: %w", err)
	}
	return nil
}

// Close drains and closes the NATS connection.
func (p *Publisher) Close() {
	if p.conn != nil {
		p.conn.Drain()
		p.conn.Close()
	}
}

// IsEnabled reports whether the publisher has a live NATS connection.
func (p *Publisher) IsEnabled() bool {
	return p.enabled
}

// Flush publishes every event in evts to its subject, "schedcore.session.<kind>".
// Failures are logged, not returned: by the time Flush runs the owning
// transaction has already committed, so a publish failure must never cause
// the caller to retry the transaction itself.
func (p *Publisher) Flush(evts []Event) {
	if !p.enabled {
		if len(evts) > 0 {
			logger.Events().Warn().Int("count", len(evts)).Msg("event publishing disabled, dropping")
		}
		return
	}
	for _, evt := range evts {
		subject := fmt.Sprintf("schedcore.session.%s", evt.Kind)
		data, err := json.Marshal(evt)
		if err != nil {
			logger.Events().Error().Err(err).Str("event_id", evt.ID).Msg("failed to marshal event")
			continue
		}
		if err := p.conn.Publish(subject, data); err != nil {
			logger.Events().Error().Err(err).Str("subject", subject).Msg("failed to publish event")
		}
	}
}
