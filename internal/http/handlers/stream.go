package handlers

import (
	"bufio"
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"chinasource/internal/domain"
	"chinasource/internal/realtime"
	"chinasource/internal/services"
)

const DefaultHeartbeat = 25 * time.Second

// Streams tracks the open notification streams of each session so that
// signing out closes them. A nil *Streams tracks nothing.
type Streams struct {
	mu   sync.Mutex
	next uint64
	open map[string]map[uint64]context.CancelFunc
}

func NewStreams() *Streams {
	return &Streams{open: map[string]map[uint64]context.CancelFunc{}}
}

// add registers cancel under sid and returns the matching release func.
func (s *Streams) add(sid string, cancel context.CancelFunc) func() {
	if s == nil {
		return func() {}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	id := s.next
	if s.open[sid] == nil {
		s.open[sid] = map[uint64]context.CancelFunc{}
	}
	s.open[sid][id] = cancel
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.open[sid], id)
		if len(s.open[sid]) == 0 {
			delete(s.open, sid)
		}
	}
}

// Close cancels every stream opened under sid.
func (s *Streams) Close(sid string) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, cancel := range s.open[sid] {
		cancel()
	}
	delete(s.open, sid)
}

// CloseAll cancels every open stream, for shutdown.
func (s *Streams) CloseAll() {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for sid, streams := range s.open {
		for _, cancel := range streams {
			cancel()
		}
		delete(s.open, sid)
	}
}

// Len reports the open streams of sid.
func (s *Streams) Len(sid string) int {
	if s == nil {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.open[sid])
}

type feedItem struct {
	ID        string    `json:"id"`
	OfferID   string    `json:"offer_id,omitempty"`
	Title     string    `json:"title"`
	Message   string    `json:"message,omitempty"`
	Type      string    `json:"type"`
	IsRead    bool      `json:"is_read"`
	CreatedAt time.Time `json:"created_at"`
}

type feedPayload struct {
	Unread int        `json:"unread"`
	Items  []feedItem `json:"items"`
}

func newFeedPayload(f *services.Feed) feedPayload {
	out := feedPayload{Unread: f.UnreadCount(), Items: make([]feedItem, 0, len(f.Items))}
	for _, n := range f.Items {
		out.Items = append(out.Items, itemOf(n))
	}
	return out
}

func itemOf(n domain.Notification) feedItem {
	return feedItem{
		ID:        n.ID,
		OfferID:   n.OfferID,
		Title:     n.Title,
		Message:   n.Message,
		Type:      string(n.Type),
		IsRead:    n.IsRead,
		CreatedAt: n.CreatedAt,
	}
}

// feedStream pushes a notification snapshot on every change event of one
// customer. Inserts trigger a refetch; a read of a held item is applied to the
// held list in place.
type feedStream struct {
	notes      *services.NotificationService
	sub        *realtime.Subscription
	customerID string
	heartbeat  time.Duration
	log        *zap.Logger

	feed *services.Feed
}

// refetch replaces the held list. A failed refetch is logged and reported as
// false so the stale snapshot is not resent.
func (s *feedStream) refetch(ctx context.Context) bool {
	feed, err := s.notes.List(ctx, s.customerID)
	if err != nil {
		s.log.Warn("notifications: stream refetch failed", zap.String("customer_id", s.customerID), zap.Error(err))
		return false
	}
	s.feed = feed
	return true
}

// apply folds ev into the held list and reports whether there is anything
// new to send.
func (s *feedStream) apply(ctx context.Context, ev realtime.Event) bool {
	if ev.Type == realtime.EventUpdate && s.feed != nil && s.feed.MarkReadLocal(ev.RowID, time.Now()) {
		return true
	}
	return s.refetch(ctx)
}

// write sends the held list as one "notifications" event.
func (s *feedStream) write(w *bufio.Writer) error {
	body, err := json.Marshal(newFeedPayload(s.feed))
	if err != nil {
		return err
	}
	if _, err := w.WriteString("event: notifications\ndata: "); err != nil {
		return err
	}
	if _, err := w.Write(body); err != nil {
		return err
	}
	if _, err := w.WriteString("\n\n"); err != nil {
		return err
	}
	return w.Flush()
}

func (s *feedStream) run(ctx context.Context, w *bufio.Writer) {
	if s.refetch(ctx) {
		if err := s.write(w); err != nil {
			return
		}
	}
	hb := s.heartbeat
	if hb <= 0 {
		hb = DefaultHeartbeat
	}
	tick := time.NewTicker(hb)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-s.sub.C:
			if !ok {
				return
			}
			if !s.apply(ctx, ev) {
				continue
			}
			if err := s.write(w); err != nil {
				return
			}
		case <-tick.C:
			if _, err := w.WriteString(": ping\n\n"); err != nil {
				return
			}
			if err := w.Flush(); err != nil {
				return
			}
		}
	}
}
