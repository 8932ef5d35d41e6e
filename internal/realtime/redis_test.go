package realtime

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// redisHub connects to TEST_REDIS_ADDR or skips.
func redisHub(t *testing.T) *RedisHub {
	t.Helper()
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}
	h, err := NewRedisHub(addr, os.Getenv("TEST_REDIS_PASSWORD"), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = h.Close() })
	return h
}

func TestNewRedisHubFailsWithoutServer(t *testing.T) {
	_, err := NewRedisHub("127.0.0.1:1", "", zap.NewNop())
	assert.Error(t, err)
}

func TestRedisHubScopesEventsPerCustomer(t *testing.T) {
	h := redisHub(t)
	ctx := context.Background()
	a, err := h.Subscribe(ctx, "redis-cust-a")
	require.NoError(t, err)
	defer a.Close()
	b, err := h.Subscribe(ctx, "redis-cust-b")
	require.NoError(t, err)
	defer b.Close()

	require.NoError(t, h.Publish(ctx, Event{Table: "notifications", Type: EventUpdate, CustomerID: "redis-cust-a", RowID: "n1"}))

	ev, ok := recv(t, a)
	require.True(t, ok)
	assert.Equal(t, "n1", ev.RowID)
	assert.Equal(t, EventUpdate, ev.Type)
	assert.Equal(t, "redis-cust-a", ev.CustomerID)

	select {
	case <-b.C:
		t.Fatal("customer b must not see customer a's events")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestRedisHubCancelClosesSubscription(t *testing.T) {
	h := redisHub(t)
	ctx, cancel := context.WithCancel(context.Background())
	sub, err := h.Subscribe(ctx, "redis-cust-c")
	require.NoError(t, err)

	cancel()
	_, ok := recv(t, sub)
	assert.False(t, ok)
	sub.Close()
}
