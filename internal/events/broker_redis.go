package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// Redis implements Broker over Redis Pub/Sub so every API replica sees
// the events of every other replica.
type Redis struct {
	rdb    *redis.Client
	prefix string
}

func NewRedis(url string) (*Redis, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis broker: %w", err)
	}
	return NewRedisClient(redis.NewClient(opt)), nil
}

func NewRedisClient(rdb *redis.Client) *Redis {
	return &Redis{rdb: rdb, prefix: "slotbook:day:"}
}

func (b *Redis) Ping(ctx context.Context) error { return b.rdb.Ping(ctx).Err() }

func (b *Redis) Subscribe(ctx context.Context, day string) (<-chan Event, func(), error) {
	ps := b.rdb.Subscribe(ctx, b.chanName(day))
	// wait for the subscription confirmation
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, nil, fmt.Errorf("redis broker: subscribe %s: %w", day, err)
	}
	ch := make(chan Event, 16)
	go func() {
		defer close(ch)
		for msg := range ps.Channel() {
			var evt Event
			if err := json.Unmarshal([]byte(msg.Payload), &evt); err != nil {
				continue
			}
			select {
			case ch <- evt:
			default:
			}
		}
	}()
	var once sync.Once
	cancel := func() { once.Do(func() { _ = ps.Close() }) }
	return ch, cancel, nil
}

func (b *Redis) Publish(ctx context.Context, day string, evt Event) error {
	evt.Day = day
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("redis broker: encode: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := b.rdb.Publish(ctx, b.chanName(day), data).Err(); err != nil {
		return fmt.Errorf("redis broker: publish %s: %w", day, err)
	}
	return nil
}

func (b *Redis) Close() error { return b.rdb.Close() }

func (b *Redis) chanName(day string) string { return b.prefix + day }
