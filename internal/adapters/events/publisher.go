// Package events publishes studio domain events to RabbitMQ.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

// Routing keys.
const (
	KeyBookingConfirmed = "booking.confirmed"
	KeyPackagePurchased = "package.purchased"
)

// BookingConfirmed is published after reconciliation creates a booking.
type BookingConfirmed struct {
	BookingID   string `json:"booking_id"`
	AthleteID   string `json:"athlete_id"`
	SlotID      string `json:"slot_id"`
	Date        string `json:"date"`
	StartTime   string `json:"start_time"`
	SessionID   string `json:"checkout_session_id"`
	AmountCents int64  `json:"amount_cents"`
}

// PackagePurchased is published after reconciliation records a package.
type PackagePurchased struct {
	AthletePackageID string `json:"athlete_package_id"`
	AthleteID        string `json:"athlete_id"`
	PackageID        string `json:"package_id"`
	SessionsTotal    int    `json:"sessions_total"`
	SessionID        string `json:"checkout_session_id"`
}

// Publisher sends one event.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, event any) error
}

// channel is the part of *amqp.Channel the publisher uses.
type channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AMQPPublisher publishes persistent JSON messages to a topic exchange. The
// connection is opened lazily and reopened after a failure.
type AMQPPublisher struct {
	url      string
	exchange string
	logger   zerolog.Logger
	dial     func(url string) (channel, func() error, error)

	mu        sync.Mutex
	ch        channel
	closeConn func() error
}

// NewAMQPPublisher creates a publisher for exchange at url.
// PRE: url is an amqp:// URL
// POST: No connection is made until the first Publish
func NewAMQPPublisher(url, exchange string, logger zerolog.Logger) *AMQPPublisher {
	if exchange == "" {
		exchange = "studio.events"
	}
	return &AMQPPublisher{url: url, exchange: exchange, logger: logger, dial: dialAMQP}
}

func dialAMQP(url string) (channel, func() error, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, nil, fmt.Errorf("amqp dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("amqp channel: %w", err)
	}
	return ch, conn.Close, nil
}

// Publish encodes event and publishes it under routingKey.
// POST: Message handed to the broker, or error with the connection dropped for the next call
func (p *AMQPPublisher) Publish(ctx context.Context, routingKey string, event any) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", routingKey, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.connect(); err != nil {
		return err
	}
	err = p.ch.PublishWithContext(ctx, p.exchange, routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	})
	if err != nil {
		p.resetLocked()
		p.logger.Warn().Err(err).Str("routing_key", routingKey).Msg("amqp_publish_failed")
		return fmt.Errorf("publish %s: %w", routingKey, err)
	}
	p.logger.Debug().Str("routing_key", routingKey).Msg("amqp_published")
	return nil
}

func (p *AMQPPublisher) connect() error {
	if p.ch != nil {
		return nil
	}
	ch, closeConn, err := p.dial(p.url)
	if err != nil {
		return err
	}
	if err := ch.ExchangeDeclare(p.exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		if closeConn != nil {
			_ = closeConn()
		}
		return fmt.Errorf("declare exchange %s: %w", p.exchange, err)
	}
	p.ch = ch
	p.closeConn = closeConn
	return nil
}

func (p *AMQPPublisher) resetLocked() {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.closeConn != nil {
		_ = p.closeConn()
	}
	p.ch = nil
	p.closeConn = nil
}

// Close releases the broker connection.
func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.resetLocked()
	return nil
}

// NoopPublisher drops events; used when no broker is configured.
type NoopPublisher struct{}

// Publish does nothing.
func (NoopPublisher) Publish(context.Context, string, any) error { return nil }
