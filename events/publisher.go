// Package events publishes query-log events for executed operations.
//
// The sink is optional: without a broker URL the publisher is a no-op.
// Publishing is fire-and-forget and never fails or delays a request.
package events

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/Gratheon/graphql-router/errors"
)

// QueryLogSubject is the broker subject query-log events are published to
const QueryLogSubject = "router.query.log"

// QueryEvent describes one executed operation
type QueryEvent struct {
	RequestID     string `json:"requestId"`
	UserID        string `json:"userId,omitempty"`
	OperationName string `json:"operationName,omitempty"`
	FieldName     string `json:"fieldName,omitempty"`
	DurationMs    int64  `json:"durationMs"`
	ErrorCount    int    `json:"errorCount"`
	Timestamp     string `json:"timestamp"`
}

// Publisher sends query-log events to the event broker
type Publisher struct {
	conn    *nats.Conn
	publish func(subject string, data []byte) error
	logger  *slog.Logger
}

// NewPublisher connects to the event broker. An empty broker URL yields a
// disabled publisher; a connection failure does too, because query logging
// must never prevent the gateway from serving.
func NewPublisher(brokerURL string, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Publisher{logger: logger}

	if brokerURL == "" {
		return p
	}

	conn, err := nats.Connect(brokerURL,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		logger.Warn("event broker unavailable, query logging disabled",
			"url", brokerURL, "error", errors.Wrap(err, "Publisher", "NewPublisher", "broker connect"))
		return p
	}

	p.conn = conn
	p.publish = conn.Publish
	logger.Info("query log publisher connected", "url", brokerURL)
	return p
}

// Enabled reports whether events are actually being published
func (p *Publisher) Enabled() bool {
	return p.publish != nil
}

// Publish sends one query-log event. Failures are logged and swallowed.
func (p *Publisher) Publish(ev QueryEvent) {
	if p.publish == nil {
		return
	}
	if ev.Timestamp == "" {
		ev.Timestamp = time.Now().UTC().Format(time.RFC3339Nano)
	}

	data, err := json.Marshal(ev)
	if err != nil {
		p.logger.Warn("query log event marshal failed", "error", err)
		return
	}
	if err := p.publish(QueryLogSubject, data); err != nil {
		p.logger.Warn("query log publish failed", "error", err)
	}
}

// Close drains the broker connection
func (p *Publisher) Close() {
	if p.conn != nil {
		p.conn.Close()
	}
}
