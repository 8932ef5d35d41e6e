package services

import (
	"context"
	"time"

	"go.uber.org/zap"

	"chinasource/internal/domain"
	"chinasource/internal/metrics"
	"chinasource/internal/realtime"
	"chinasource/internal/repos"
)

const notificationsTable = "notifications"

type NotificationService struct {
	Repo    *repos.NotificationRepo
	Hub     realtime.Hub
	Metrics metrics.Offers
	Log     *zap.Logger
	now     func() time.Time
}

func NewNotificationService(repo *repos.NotificationRepo, hub realtime.Hub, m metrics.Offers, log *zap.Logger) *NotificationService {
	return &NotificationService{Repo: repo, Hub: hub, Metrics: m, Log: log, now: time.Now}
}

// List returns the customer's most recent notifications, newest first.
func (s *NotificationService) List(ctx context.Context, customerID string) (*Feed, error) {
	items, err := s.Repo.ListRecent(ctx, customerID, repos.RecentNotifications)
	if err != nil {
		return nil, err
	}
	return &Feed{CustomerID: customerID, Items: items}, nil
}

// MarkRead is idempotent: reading an already read notification keeps the
// first read_at and publishes nothing.
func (s *NotificationService) MarkRead(ctx context.Context, customerID, id string) error {
	n, err := s.Repo.ByID(ctx, customerID, id)
	if err != nil {
		return notFoundAs(err)
	}
	if n.IsRead {
		return nil
	}
	if err := s.Repo.MarkRead(ctx, customerID, id, s.now()); err != nil {
		return notFoundAs(err)
	}
	s.Metrics.IncNotificationRead()
	s.publish(ctx, realtime.Event{Table: notificationsTable, Type: realtime.EventUpdate, CustomerID: customerID, RowID: id})
	return nil
}

// Notify records a notification for a customer and pushes an insert event to
// their open feeds.
func (s *NotificationService) Notify(ctx context.Context, customerID, offerID, title, message string, typ domain.NotificationType) (*domain.Notification, error) {
	n := &domain.Notification{
		CustomerID: customerID,
		OfferID:    offerID,
		Title:      title,
		Message:    message,
		Type:       typ,
	}
	if err := s.Repo.Insert(ctx, n); err != nil {
		return nil, err
	}
	s.publish(ctx, realtime.Event{Table: notificationsTable, Type: realtime.EventInsert, CustomerID: customerID, RowID: n.ID})
	return n, nil
}

// Subscribe opens a change feed for one customer. The caller must Close it.
func (s *NotificationService) Subscribe(ctx context.Context, customerID string) (*realtime.Subscription, error) {
	return s.Hub.Subscribe(ctx, customerID)
}

// A failed publish only delays the feed until the next page load.
func (s *NotificationService) publish(ctx context.Context, ev realtime.Event) {
	if err := s.Hub.Publish(ctx, ev); err != nil {
		s.Log.Warn("realtime: publish failed",
			zap.String("customer_id", ev.CustomerID),
			zap.String("type", string(ev.Type)),
			zap.Error(err))
	}
}

// Feed is one customer's notification list as last fetched.
type Feed struct {
	CustomerID string
	Items      []domain.Notification
}

func (f *Feed) UnreadCount() int {
	n := 0
	for _, it := range f.Items {
		if !it.IsRead {
			n++
		}
	}
	return n
}

// MarkReadLocal applies a read to the held list without refetching. It
// reports whether the item was found.
func (f *Feed) MarkReadLocal(id string, at time.Time) bool {
	for i := range f.Items {
		if f.Items[i].ID != id {
			continue
		}
		if !f.Items[i].IsRead {
			f.Items[i].IsRead = true
			t := at
			f.Items[i].ReadAt = &t
		}
		return true
	}
	return false
}
