// Package events publishes settlement events for downstream consumers
// (content delivery, accounting). Publishing is best effort: a payment is
// confirmed by the database, never by the broker.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog/log"
)

// RoutingPaymentConfirmed is the routing key of PaymentConfirmed.
const RoutingPaymentConfirmed = "payment.confirmed"

// PaymentConfirmed is emitted once per confirmed session.
type PaymentConfirmed struct {
	SessionID   string    `json:"sessionId"`
	ContentID   string    `json:"contentId"`
	Source      string    `json:"source"`
	Amount      int64     `json:"amount"`
	PlatformFee int64     `json:"platformFee"`
	OnChainRef  string    `json:"onChainRef,omitempty"`
	ConfirmedAt time.Time `json:"confirmedAt"`
}

// Publisher delivers events.
type Publisher interface {
	PaymentConfirmed(ctx context.Context, e PaymentConfirmed) error
	Close() error
}

// LogPublisher writes events to the context logger.
type LogPublisher struct{}

// PaymentConfirmed implements Publisher.
func (LogPublisher) PaymentConfirmed(ctx context.Context, e PaymentConfirmed) error {
	log.Ctx(ctx).Info().
		Str("event", RoutingPaymentConfirmed).
		Str("session_id", e.SessionID).
		Str("content_id", e.ContentID).
		Int64("amount", e.Amount).
		Msg("payment event")
	return nil
}

// Close implements Publisher.
func (LogPublisher) Close() error { return nil }

type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AMQP publishes JSON events to a durable topic exchange.
type AMQP struct {
	mu       sync.Mutex
	conn     *amqp.Connection
	ch       channel
	exchange string
}

// DialAMQP connects to url and declares exchange.
func DialAMQP(url, exchange string) (*AMQP, error) {
	if url == "" {
		return nil, errors.New("events: AMQP url is empty")
	}
	if exchange == "" {
		exchange = "paygate.events"
	}
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("events: dial broker: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("events: open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("events: declare exchange %s: %w", exchange, err)
	}
	return &AMQP{conn: conn, ch: ch, exchange: exchange}, nil
}

// PaymentConfirmed implements Publisher.
func (a *AMQP) PaymentConfirmed(ctx context.Context, e PaymentConfirmed) error {
	body, err := json.Marshal(e)
	if err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.ch.PublishWithContext(ctx, a.exchange, RoutingPaymentConfirmed, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    e.SessionID,
		Timestamp:    e.ConfirmedAt,
		Type:         RoutingPaymentConfirmed,
		Body:         body,
	})
}

// Close implements Publisher.
func (a *AMQP) Close() error {
	if a == nil {
		return nil
	}
	if a.ch != nil {
		_ = a.ch.Close()
	}
	if a.conn != nil {
		return a.conn.Close()
	}
	return nil
}
