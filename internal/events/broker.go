// Package events fans day-scoped route events out to live subscribers.
package events

import (
	"context"
	"sync"
)

// Event types.
const (
	TypeStopUpdated = "stop.updated"
	TypeOrderPlaced = "order.placed"
)

type Event struct {
	Type string         `json:"type"`
	Day  string         `json:"day"`
	Data map[string]any `json:"data,omitempty"`
}

// Broker delivers events published for a day to that day's subscribers.
// Delivery is best effort: a slow subscriber drops events instead of
// blocking the publisher.
type Broker interface {
	Subscribe(ctx context.Context, day string) (<-chan Event, func(), error)
	Publish(ctx context.Context, day string, evt Event) error
	Close() error
}

// Memory is the in-process broker used when no REDIS_URL is set.
type Memory struct {
	mu   sync.Mutex
	subs map[string]map[chan Event]struct{} // day -> set of channels
}

func NewMemory() *Memory {
	return &Memory{subs: map[string]map[chan Event]struct{}{}}
}

func (b *Memory) Subscribe(ctx context.Context, day string) (<-chan Event, func(), error) {
	ch := make(chan Event, 8)
	b.mu.Lock()
	if b.subs[day] == nil {
		b.subs[day] = map[chan Event]struct{}{}
	}
	b.subs[day][ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			if m := b.subs[day]; m != nil {
				delete(m, ch)
				if len(m) == 0 {
					delete(b.subs, day)
				}
			}
			b.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel, nil
}

func (b *Memory) Publish(ctx context.Context, day string, evt Event) error {
	evt.Day = day
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs[day] {
		select {
		case ch <- evt:
		default:
		}
	}
	return nil
}

// Subscribers reports the live subscriber count for day.
func (b *Memory) Subscribers(day string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[day])
}

func (b *Memory) Close() error { return nil }
