package realtime

import (
	"context"
	"fmt"
	"sync"
)

type EventType string

const (
	EventInsert EventType = "INSERT"
	EventUpdate EventType = "UPDATE"
)

// Event is a row change on a customer-scoped table.
type Event struct {
	Table      string    `json:"table"`
	Type       EventType `json:"type"`
	CustomerID string    `json:"customer_id"`
	RowID      string    `json:"row_id,omitempty"`
}

// Hub fans change events out to per-customer subscribers.
type Hub interface {
	Publish(ctx context.Context, ev Event) error
	Subscribe(ctx context.Context, customerID string) (*Subscription, error)
}

// Subscription delivers events for one customer until Close is called or the
// subscribing context ends. Close is idempotent.
type Subscription struct {
	CustomerID string
	C          <-chan Event
	once       sync.Once
	stop       func()
}

func (s *Subscription) Close() {
	s.once.Do(s.stop)
}

// Channel is the pub/sub channel name for a customer's notifications.
func Channel(customerID string) string {
	return fmt.Sprintf("notifications:%s", customerID)
}

// subscriberBuffer bounds pending events per subscriber. Events past it are
// dropped; the next delivered insert refetches the whole feed.
const subscriberBuffer = 16
