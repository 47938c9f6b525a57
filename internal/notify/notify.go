// Package notify publishes order notifications to downstream consumers
// (kitchen, mailers) after a placement commits. Delivery is asynchronous
// and never affects the outcome of the placement.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const TypeOrderPlaced = "order.placed"

// Message is a signed, ready-to-send notification.
type Message struct {
	ID        string
	Type      string
	Body      []byte
	Signature string // empty when no secret is configured
}

type Publisher interface {
	Publish(ctx context.Context, m Message) error
	Close() error
}

// NewMessage wraps data in the notification envelope and signs it.
func NewMessage(eventType string, data any, secret string, now time.Time) (Message, error) {
	id := "evt_" + uuid.NewString()
	body, err := json.Marshal(map[string]any{
		"id":   id,
		"type": eventType,
		"ts":   now.UTC().Format(time.RFC3339),
		"data": data,
	})
	if err != nil {
		return Message{}, fmt.Errorf("notify: encode %s: %w", eventType, err)
	}
	m := Message{ID: id, Type: eventType, Body: body}
	if secret != "" {
		m.Signature = Sign(secret, body)
	}
	return m, nil
}

// LogPublisher writes notifications to the log; used when no broker is configured.
type LogPublisher struct {
	Log logrus.FieldLogger
}

func (p LogPublisher) Publish(ctx context.Context, m Message) error {
	p.Log.WithFields(logrus.Fields{"event_id": m.ID, "type": m.Type, "bytes": len(m.Body)}).Info("notification")
	return nil
}

func (p LogPublisher) Close() error { return nil }

var (
	ErrQueueFull = errors.New("notify: queue full")
	ErrStopped   = errors.New("notify: dispatcher stopped")
)

// Dispatcher delivers messages in the background with bounded retries.
type Dispatcher struct {
	Pub         Publisher
	Log         logrus.FieldLogger
	MaxAttempts int
	Backoff     func(attempt int) time.Duration
	// Observe, when set, is told the final outcome of every message.
	Observe func(m Message, err error)

	queue   chan Message
	wg      sync.WaitGroup
	mu      sync.Mutex // guards stopped and the close of queue
	stopped bool
}

func NewDispatcher(pub Publisher, log logrus.FieldLogger, maxAttempts, buffer int) *Dispatcher {
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	if buffer <= 0 {
		buffer = 256
	}
	return &Dispatcher{Pub: pub, Log: log, MaxAttempts: maxAttempts, Backoff: nextBackoff, queue: make(chan Message, buffer)}
}

// Start runs the delivery loop until Stop is called or ctx ends.
func (d *Dispatcher) Start(ctx context.Context) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-d.queue:
				if !ok {
					return
				}
				d.deliver(ctx, m)
			}
		}
	}()
}

// Enqueue hands m to the loop without blocking. After Stop it returns
// ErrStopped.
func (d *Dispatcher) Enqueue(m Message) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		d.Log.WithField("event_id", m.ID).Warn("notification dropped: dispatcher stopped")
		return ErrStopped
	}
	select {
	case d.queue <- m:
		return nil
	default:
		d.Log.WithField("event_id", m.ID).Warn("notification dropped: queue full")
		return ErrQueueFull
	}
}

// Stop drains queued messages and waits for the loop to exit.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if !d.stopped {
		d.stopped = true
		close(d.queue)
	}
	d.mu.Unlock()
	d.wg.Wait()
}

func (d *Dispatcher) deliver(ctx context.Context, m Message) {
	var err error
	for attempt := 0; attempt < d.MaxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				d.finish(m, ctx.Err())
				return
			case <-time.After(d.Backoff(attempt - 1)):
			}
		}
		pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err = d.Pub.Publish(pctx, m)
		cancel()
		if err == nil {
			break
		}
		d.Log.WithError(err).WithFields(logrus.Fields{"event_id": m.ID, "attempt": attempt + 1}).Warn("notification publish failed")
	}
	d.finish(m, err)
}

func (d *Dispatcher) finish(m Message, err error) {
	if err != nil {
		d.Log.WithError(err).WithField("event_id", m.ID).Error("notification abandoned")
	}
	if d.Observe != nil {
		d.Observe(m, err)
	}
}

func nextBackoff(attempts int) time.Duration {
	if attempts < 0 {
		attempts = 0
	}
	if attempts > 6 {
		attempts = 6
	}
	return 100 * time.Millisecond * time.Duration(1<<attempts)
}
