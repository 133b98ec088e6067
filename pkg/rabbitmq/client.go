package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/multierr"

	"github.com/angelmondragon/library-backend/pkg/config"
	"github.com/angelmondragon/library-backend/pkg/logger"
)

const (
	exchangeKind          = "topic"
	defaultConfirmTimeout = 5 * time.Second
	contentTypeJSON       = "application/json"
)

// ErrNacked is returned when the broker negatively acknowledges a publish.
var ErrNacked = errors.New("rabbitmq: publish nacked by broker")

// Message is one event ready for the broker.
type Message struct {
	RoutingKey string
	MessageID  string
	Type       string
	Body       []byte
	Headers    map[string]any
	Timestamp  time.Time
}

type confirmation interface {
	WaitContext(ctx context.Context) (bool, error)
}

type channel interface {
	PublishWithDeferredConfirmWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) (*amqp.DeferredConfirmation, error)
	IsClosed() bool
	Close() error
}

// Client publishes to a durable topic exchange with publisher confirms enabled.
type Client struct {
	mu             sync.Mutex
	conn           *amqp.Connection
	ch             channel
	publish        func(ctx context.Context, exchange, key string, msg amqp.Publishing) (confirmation, error)
	exchange       string
	confirmTimeout time.Duration
}

// New dials the broker, declares the exchange and puts the channel in confirm mode.
func New(ctx context.Context, cfg config.RabbitMQConfig, logg *logger.Logger) (*Client, error) {
	if cfg.URL == "" {
		return nil, errors.New("rabbitmq url required")
	}
	if cfg.Exchange == "" {
		return nil, errors.New("rabbitmq exchange required")
	}
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(cfg.Exchange, exchangeKind, true, false, false, false, nil); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", cfg.Exchange, err)
	}
	if err := ch.Confirm(false); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("enable confirms: %w", err)
	}

	client := newClient(ch, cfg)
	client.conn = conn
	if logg != nil {
		logg.Info(logg.WithField(ctx, "exchange", cfg.Exchange), "rabbitmq connected")
	}
	return client, nil
}

func newClient(ch channel, cfg config.RabbitMQConfig) *Client {
	timeout := cfg.ConfirmTimeout
	if timeout <= 0 {
		timeout = defaultConfirmTimeout
	}
	c := &Client{ch: ch, exchange: cfg.Exchange, confirmTimeout: timeout}
	c.publish = func(ctx context.Context, exchange, key string, msg amqp.Publishing) (confirmation, error) {
		dc, err := ch.PublishWithDeferredConfirmWithContext(ctx, exchange, key, false, false, msg)
		if err != nil {
			return nil, err
		}
		if dc == nil {
			return nil, errors.New("channel not in confirm mode")
		}
		return dc, nil
	}
	return c
}

// Exchange returns the exchange messages are routed through.
func (c *Client) Exchange() string {
	return c.exchange
}

// Publish sends msg and blocks until the broker confirms it or the confirm
// timeout elapses.
func (c *Client) Publish(ctx context.Context, msg Message) error {
	if msg.RoutingKey == "" {
		return errors.New("routing key required")
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.ch == nil || c.ch.IsClosed() {
		return errors.New("rabbitmq channel closed")
	}

	ts := msg.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	publishing := amqp.Publishing{
		ContentType:  contentTypeJSON,
		DeliveryMode: amqp.Persistent,
		MessageId:    msg.MessageID,
		Type:         msg.Type,
		Timestamp:    ts,
		Headers:      amqp.Table(msg.Headers),
		Body:         msg.Body,
	}

	confirmCtx, cancel := context.WithTimeout(ctx, c.confirmTimeout)
	defer cancel()

	dc, err := c.publish(confirmCtx, c.exchange, msg.RoutingKey, publishing)
	if err != nil {
		return fmt.Errorf("publish %s: %w", msg.RoutingKey, err)
	}
	acked, err := dc.WaitContext(confirmCtx)
	if err != nil {
		return fmt.Errorf("await confirm %s: %w", msg.RoutingKey, err)
	}
	if !acked {
		return ErrNacked
	}
	return nil
}

// Ping reports whether the channel is still usable.
func (c *Client) Ping(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ch == nil || c.ch.IsClosed() {
		return errors.New("rabbitmq channel closed")
	}
	if c.conn != nil && c.conn.IsClosed() {
		return errors.New("rabbitmq connection closed")
	}
	return nil
}

// Close shuts the channel then the connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var err error
	if c.ch != nil && !c.ch.IsClosed() {
		err = multierr.Append(err, c.ch.Close())
	}
	if c.conn != nil && !c.conn.IsClosed() {
		err = multierr.Append(err, c.conn.Close())
	}
	return err
}
