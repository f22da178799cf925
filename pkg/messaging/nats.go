// Package messaging is the NATS-backed cross-process event backplane
// between the serve and worker subcommands: worker publishes judging and
// leaderboard events, serve's eventbus.Bridge subscribes and relays them
// onto the websocket hub. Every published event rides wrapped in the
// Event envelope (see events.go) so a relay never needs per-event-type
// unmarshaling logic to find its routing fields.
package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// Client wraps a NATS connection with the envelope-aware Publish this
// judging platform needs; it carries no JetStream surface because
// nothing in this platform needs at-least-once delivery guarantees
// stronger than core NATS pub/sub — a missed leaderboard tick gets
// superseded by the next one within recomputeTick.
type Client struct {
	conn *nats.Conn
	subs map[string]*nats.Subscription
	mu   sync.RWMutex

	logger *zap.Logger
}

// Config holds NATS connection options.
type Config struct {
	URL            string
	Name           string
	ReconnectWait  time.Duration
	MaxReconnects  int
	ConnectTimeout time.Duration
	Logger         *zap.Logger
}

// NewClient dials NATS and returns a Client ready to Publish and
// Subscribe.
func NewClient(cfg Config) (*Client, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	client := &Client{
		subs:   make(map[string]*nats.Subscription),
		logger: logger,
	}

	opts := []nats.Option{
		nats.Name(cfg.Name),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.Timeout(cfg.ConnectTimeout),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Warn("nats reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			logger.Warn("nats disconnected", zap.Error(err))
		}),
	}

	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("messaging: connect: %w", err)
	}
	client.conn = conn

	return client, nil
}

// Publish marshals data onto subject. If data implements Routable (every
// event type in this package does) it is wrapped in the Event envelope
// first, carrying the aggregate ID and contest/team routing metadata the
// eventbus bridge needs to pick which room gets a copy; otherwise the raw
// value is marshaled as-is.
func (c *Client) Publish(ctx context.Context, subject string, data interface{}) error {
	if c.conn == nil {
		return fmt.Errorf("messaging: not connected")
	}

	payload, err := c.encode(subject, data)
	if err != nil {
		return fmt.Errorf("messaging: encode: %w", err)
	}

	return c.conn.Publish(subject, payload)
}

func (c *Client) encode(subject string, data interface{}) ([]byte, error) {
	routable, ok := data.(Routable)
	if !ok {
		return json.Marshal(data)
	}
	event, err := NewEvent(subject, routable.AggregateID(), data, routable.Routing())
	if err != nil {
		return nil, err
	}
	return json.Marshal(event)
}

// Subscribe registers handler against subject. Callers must not subscribe
// to the same subject twice on one Client.
func (c *Client) Subscribe(subject string, handler func(msg *nats.Msg)) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.subs[subject]; exists {
		return fmt.Errorf("messaging: already subscribed to %s", subject)
	}

	sub, err := c.conn.Subscribe(subject, handler)
	if err != nil {
		return fmt.Errorf("messaging: subscribe: %w", err)
	}

	c.subs[subject] = sub
	return nil
}

// Close unsubscribes everything and closes the underlying connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for subject, sub := range c.subs {
		_ = sub.Unsubscribe()
		delete(c.subs, subject)
	}

	if c.conn != nil {
		c.conn.Close()
	}
	return nil
}
