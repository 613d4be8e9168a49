package eventbus

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/dmitrymomot/examgate/pkg/logger"
)

// Publisher sends a payload to the exchange under routingKey.
type Publisher interface {
	Publish(ctx context.Context, msg Message) error
}

// Message is one outbound event.
type Message struct {
	ID         string
	RoutingKey string
	Body       []byte
	Timestamp  time.Time
}

// RabbitPublisher publishes persistent JSON messages to a durable topic
// exchange and waits for the broker confirm on each one.
type RabbitPublisher struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
	timeout  time.Duration
	log      *slog.Logger

	mu     sync.Mutex
	closed bool
}

// NewRabbitPublisher dials cfg.URL, declares the exchange and puts the
// channel in confirm mode.
func NewRabbitPublisher(cfg Config, log *slog.Logger) (*RabbitPublisher, error) {
	if cfg.URL == "" {
		return nil, ErrEmptyURL
	}
	if log == nil {
		log = slog.Default()
	}

	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, errors.Join(ErrConnect, err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, errors.Join(ErrConnect, err)
	}
	if err := ch.ExchangeDeclare(cfg.Exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, errors.Join(ErrConnect, err)
	}
	if err := ch.Confirm(false); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, errors.Join(ErrConnect, err)
	}

	log.Info("amqp publisher connected", slog.String("exchange", cfg.Exchange))

	timeout := cfg.ConfirmTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &RabbitPublisher{
		conn:     conn,
		ch:       ch,
		exchange: cfg.Exchange,
		timeout:  timeout,
		log:      log,
	}, nil
}

func (p *RabbitPublisher) Publish(ctx context.Context, msg Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrPublisherClose
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	ts := msg.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	dc, err := p.ch.PublishWithDeferredConfirmWithContext(ctx, p.exchange, msg.RoutingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    msg.ID,
		Timestamp:    ts,
		Body:         msg.Body,
	})
	if err != nil {
		return errors.Join(ErrPublish, err)
	}

	acked, err := dc.WaitContext(ctx)
	if err != nil {
		return errors.Join(ErrPublish, err)
	}
	if !acked {
		return ErrNotConfirmed
	}

	p.log.DebugContext(ctx, "event published",
		logger.EventType(msg.RoutingKey),
		logger.MessageID(msg.ID),
	)
	return nil
}

// Healthcheck fails once the broker connection is gone.
func (p *RabbitPublisher) Healthcheck(context.Context) error {
	if p.conn.IsClosed() {
		return ErrPublisherClose
	}
	return nil
}

// Close closes the channel and the connection. Later calls are no-ops.
func (p *RabbitPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true

	if err := p.ch.Close(); err != nil {
		p.log.Warn("amqp channel close failed", logger.Error(err))
	}
	return p.conn.Close()
}
