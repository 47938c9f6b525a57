package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func TestNewMessageSignsBody(t *testing.T) {
	now := time.Date(2026, 10, 14, 18, 0, 0, 0, time.UTC)
	m, err := NewMessage(TypeOrderPlaced, map[string]any{"orderId": "o1"}, "secret", now)
	if err != nil {
		t.Fatal(err)
	}
	if !verify("secret", m.Body, m.Signature) {
		t.Fatal("signature does not verify")
	}
	if verify("other", m.Body, m.Signature) {
		t.Fatal("signature verified with wrong secret")
	}
	var env map[string]any
	if err := json.Unmarshal(m.Body, &env); err != nil {
		t.Fatal(err)
	}
	if env["id"] != m.ID || env["type"] != TypeOrderPlaced || env["ts"] != "2026-10-14T18:00:00Z" {
		t.Fatalf("envelope = %v", env)
	}

	unsigned, _ := NewMessage(TypeOrderPlaced, nil, "", now)
	if unsigned.Signature != "" {
		t.Fatal("no secret must mean no signature")
	}
}

type flakyPublisher struct {
	mu    sync.Mutex
	fails int
	calls int
	got   []Message
}

func (p *flakyPublisher) Publish(ctx context.Context, m Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.calls <= p.fails {
		return errors.New("broker unavailable")
	}
	p.got = append(p.got, m)
	return nil
}

func (p *flakyPublisher) Close() error { return nil }

func TestDispatcherRetries(t *testing.T) {
	pub := &flakyPublisher{fails: 2}
	d := NewDispatcher(pub, quietLogger(), 3, 4)
	d.Backoff = func(int) time.Duration { return time.Millisecond }
	done := make(chan error, 1)
	d.Observe = func(m Message, err error) { done <- err }
	d.Start(context.Background())
	defer d.Stop()

	if err := d.Enqueue(Message{ID: "evt_1", Type: TypeOrderPlaced}); err != nil {
		t.Fatal(err)
	}
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("delivery failed: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout")
	}
	if pub.calls != 3 || len(pub.got) != 1 {
		t.Fatalf("calls=%d delivered=%d", pub.calls, len(pub.got))
	}
}

func TestDispatcherGivesUp(t *testing.T) {
	pub := &flakyPublisher{fails: 10}
	d := NewDispatcher(pub, quietLogger(), 2, 4)
	d.Backoff = func(int) time.Duration { return time.Millisecond }
	done := make(chan error, 1)
	d.Observe = func(m Message, err error) { done <- err }
	d.Start(context.Background())
	defer d.Stop()

	_ = d.Enqueue(Message{ID: "evt_1"})
	select {
	case err := <-done:
		if err == nil {
			t.Fatal("expected failure")
		}
	case <-time.After(time.Second):
		t.Fatal("timeout")
	}
	if pub.calls != 2 {
		t.Fatalf("calls = %d", pub.calls)
	}
}

func TestDispatcherQueueFull(t *testing.T) {
	d := NewDispatcher(&flakyPublisher{}, quietLogger(), 1, 1)
	// not started: the buffer fills up
	if err := d.Enqueue(Message{ID: "a"}); err != nil {
		t.Fatal(err)
	}
	if err := d.Enqueue(Message{ID: "b"}); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("err = %v", err)
	}
}

func TestDispatcherEnqueueAfterStop(t *testing.T) {
	pub := &flakyPublisher{}
	d := NewDispatcher(pub, quietLogger(), 1, 4)
	d.Start(context.Background())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				if err := d.Enqueue(Message{ID: "late"}); err != nil && !errors.Is(err, ErrStopped) && !errors.Is(err, ErrQueueFull) {
					t.Errorf("Enqueue: %v", err)
				}
			}
		}()
	}
	d.Stop()
	wg.Wait()

	if err := d.Enqueue(Message{ID: "after"}); !errors.Is(err, ErrStopped) {
		t.Fatalf("err = %v", err)
	}
	d.Stop() // second call is a no-op
}

func TestPublishingHeaders(t *testing.T) {
	now := time.Now()
	p := publishing(Message{ID: "evt_1", Type: TypeOrderPlaced, Body: []byte(`{}`), Signature: "abc"}, now)
	if p.DeliveryMode != amqp.Persistent || p.MessageId != "evt_1" || p.ContentType != "application/json" {
		t.Fatalf("publishing = %+v", p)
	}
	if p.Headers["x-signature"] != "abc" || p.Headers["x-event-type"] != TypeOrderPlaced {
		t.Fatalf("headers = %v", p.Headers)
	}
	if _, ok := publishing(Message{ID: "x"}, now).Headers["x-signature"]; ok {
		t.Fatal("unsigned message must not carry a signature header")
	}
}
