package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// DefaultExchange is the topic exchange order notifications are published to.
const DefaultExchange = "slotbook.orders"

// AMQP publishes notifications to a RabbitMQ topic exchange and waits for
// the broker's publisher confirm.
type AMQP struct {
	mu       sync.Mutex
	conn     *amqp.Connection
	ch       *amqp.Channel
	acks     <-chan amqp.Confirmation
	exchange string
}

func NewAMQP(url, exchange string) (*AMQP, error) {
	if exchange == "" {
		exchange = DefaultExchange
	}
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("amqp: dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("amqp: channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("amqp: declare %s: %w", exchange, err)
	}
	if err := ch.Confirm(false); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("amqp: confirm mode: %w", err)
	}
	acks := ch.NotifyPublish(make(chan amqp.Confirmation, 1))
	return &AMQP{conn: conn, ch: ch, acks: acks, exchange: exchange}, nil
}

func (p *AMQP) Ping(ctx context.Context) error {
	if p.conn == nil || p.conn.IsClosed() {
		return errors.New("amqp: connection is closed")
	}
	return nil
}

// Publish is serialized so each confirm matches its message.
func (p *AMQP) Publish(ctx context.Context, m Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.ch.PublishWithContext(ctx, p.exchange, m.Type, false, false, publishing(m, time.Now())); err != nil {
		return fmt.Errorf("amqp: publish: %w", err)
	}
	select {
	case conf, ok := <-p.acks:
		if !ok {
			return errors.New("amqp: channel closed before confirm")
		}
		if conf.Ack {
			return nil
		}
		return errors.New("amqp: publish NACK from broker")
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *AMQP) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}

func publishing(m Message, now time.Time) amqp.Publishing {
	headers := amqp.Table{"x-event-type": m.Type}
	if m.Signature != "" {
		headers["x-signature"] = m.Signature
	}
	return amqp.Publishing{
		DeliveryMode: amqp.Persistent,
		ContentType:  "application/json",
		MessageId:    m.ID,
		Timestamp:    now.UTC(),
		Headers:      headers,
		Body:         m.Body,
	}
}
