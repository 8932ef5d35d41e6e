package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisHub carries events over redis pub/sub so every app instance sees
// changes made by the others.
type RedisHub struct {
	client *redis.Client
	log    *zap.Logger
}

func NewRedisHub(addr, password string, log *zap.Logger) (*RedisHub, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	log.Info("realtime: connected to redis", zap.String("addr", addr))
	return &RedisHub{client: client, log: log}, nil
}

func (h *RedisHub) Close() error { return h.client.Close() }

func (h *RedisHub) Publish(ctx context.Context, ev Event) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := h.client.Publish(ctx, Channel(ev.CustomerID), b).Err(); err != nil {
		return fmt.Errorf("publish event: %w", err)
	}
	return nil
}

func (h *RedisHub) Subscribe(ctx context.Context, customerID string) (*Subscription, error) {
	ps := h.client.Subscribe(ctx, Channel(customerID))
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("subscribe %s: %w", Channel(customerID), err)
	}

	out := make(chan Event, subscriberBuffer)
	done := make(chan struct{})
	sub := &Subscription{CustomerID: customerID, C: out}
	sub.stop = func() {
		close(done)
		_ = ps.Close()
	}

	go func() {
		defer close(out)
		msgs := ps.Channel()
		for {
			select {
			case <-ctx.Done():
				sub.Close()
				return
			case <-done:
				return
			case m, ok := <-msgs:
				if !ok {
					return
				}
				var ev Event
				if err := json.Unmarshal([]byte(m.Payload), &ev); err != nil {
					h.log.Warn("realtime: bad payload", zap.String("channel", m.Channel), zap.Error(err))
					continue
				}
				select {
				case out <- ev:
				default:
				}
			}
		}
	}()
	return sub, nil
}
