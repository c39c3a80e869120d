// Package broadcast mirrors coordinator notifications to other nodes.
package broadcast

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

const (
	TopicPresence = "presence"
	TopicOnline   = "online"
	TopicRooms    = "rooms"
)

// Publisher receives every notification after local fan-out.
type Publisher interface {
	Publish(topic string, payload any) error
	Close() error
}

type natsConn interface {
	Publish(subject string, data []byte) error
	Drain() error
}

// NatsPublisher publishes JSON payloads to <prefix>.<topic>.
type NatsPublisher struct {
	log    *slog.Logger
	conn   natsConn
	prefix string
}

func NewNatsPublisher(logger *slog.Logger, url, prefix string) (*NatsPublisher, error) {
	nc, err := nats.Connect(url,
		nats.Name("go-plaza"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}

	logger.Info("connected to nats", "url", nc.ConnectedUrl(), "prefix", prefix)
	return newNatsPublisher(logger, nc, prefix), nil
}

func newNatsPublisher(logger *slog.Logger, conn natsConn, prefix string) *NatsPublisher {
	if prefix == "" {
		prefix = "plaza"
	}

	return &NatsPublisher{
		log:    logger,
		conn:   conn,
		prefix: prefix,
	}
}

func (p *NatsPublisher) Subject(topic string) string {
	return p.prefix + "." + topic
}

func (p *NatsPublisher) Publish(topic string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", topic, err)
	}

	if err := p.conn.Publish(p.Subject(topic), data); err != nil {
		return fmt.Errorf("publish %s: %w", p.Subject(topic), err)
	}

	p.log.Debug("mirrored notification", "subject", p.Subject(topic), "bytes", len(data))
	return nil
}

// Close flushes pending publishes before closing the connection.
func (p *NatsPublisher) Close() error {
	return p.conn.Drain()
}

// NopPublisher discards everything. It is used when no NATS url is configured.
type NopPublisher struct{}

func (NopPublisher) Publish(string, any) error { return nil }
func (NopPublisher) Close() error              { return nil }
