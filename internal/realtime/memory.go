package realtime

import (
	"context"
	"sync"
)

// MemoryHub delivers events within one process.
type MemoryHub struct {
	mu     sync.Mutex
	nextID uint64
	subs   map[string]map[uint64]chan Event
}

func NewMemoryHub() *MemoryHub {
	return &MemoryHub{subs: map[string]map[uint64]chan Event{}}
}

func (h *MemoryHub) Publish(_ context.Context, ev Event) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.subs[ev.CustomerID] {
		select {
		case ch <- ev:
		default:
		}
	}
	return nil
}

func (h *MemoryHub) Subscribe(ctx context.Context, customerID string) (*Subscription, error) {
	ch := make(chan Event, subscriberBuffer)

	h.mu.Lock()
	h.nextID++
	id := h.nextID
	if h.subs[customerID] == nil {
		h.subs[customerID] = map[uint64]chan Event{}
	}
	h.subs[customerID][id] = ch
	h.mu.Unlock()

	done := make(chan struct{})
	sub := &Subscription{CustomerID: customerID, C: ch}
	sub.stop = func() {
		close(done)
		h.mu.Lock()
		delete(h.subs[customerID], id)
		if len(h.subs[customerID]) == 0 {
			delete(h.subs, customerID)
		}
		close(ch)
		h.mu.Unlock()
	}
	go func() {
		select {
		case <-ctx.Done():
			sub.Close()
		case <-done:
		}
	}()
	return sub, nil
}

// Subscribers returns the live subscription count for a customer.
func (h *MemoryHub) Subscribers(customerID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[customerID])
}
