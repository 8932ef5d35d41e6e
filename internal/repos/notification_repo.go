package repos

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"chinasource/internal/domain"
)

// RecentNotifications caps how many notifications a customer sees.
const RecentNotifications = 50

type NotificationRepo struct{ db *sqlx.DB }

func NewNotificationRepo(db *sqlx.DB) *NotificationRepo { return &NotificationRepo{db: db} }

type notificationRow struct {
	ID         string         `db:"id"`
	CustomerID string         `db:"customer_id"`
	OfferID    sql.NullString `db:"offer_id"`
	Title      string         `db:"title"`
	Message    string         `db:"message"`
	Type       string         `db:"type"`
	IsRead     bool           `db:"is_read"`
	CreatedAt  string         `db:"created_at"`
	ReadAt     sql.NullString `db:"read_at"`
}

const notificationCols = `id,customer_id,offer_id,title,message,type,is_read,created_at,read_at`

func (r notificationRow) toDomain() domain.Notification {
	n := domain.Notification{
		ID:         r.ID,
		CustomerID: r.CustomerID,
		OfferID:    r.OfferID.String,
		Title:      r.Title,
		Message:    r.Message,
		Type:       domain.ParseNotificationType(r.Type),
		IsRead:     r.IsRead,
		CreatedAt:  parseStamp(r.CreatedAt),
	}
	if r.ReadAt.Valid {
		t := parseStamp(r.ReadAt.String)
		n.ReadAt = &t
	}
	return n
}

func (r *NotificationRepo) Insert(ctx context.Context, n *domain.Notification) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	n.Type = domain.ParseNotificationType(string(n.Type))
	offerID := sql.NullString{String: n.OfferID, Valid: n.OfferID != ""}
	_, err := r.db.ExecContext(ctx, r.db.Rebind(`
		INSERT INTO notifications(id,customer_id,offer_id,title,message,type,is_read,created_at)
		VALUES(?,?,?,?,?,?,?,?)`),
		n.ID, n.CustomerID, offerID, n.Title, n.Message, string(n.Type), false, stamp(n.CreatedAt))
	return err
}

func (r *NotificationRepo) ByID(ctx context.Context, customerID, id string) (*domain.Notification, error) {
	var row notificationRow
	err := r.db.GetContext(ctx, &row, r.db.Rebind(`SELECT `+notificationCols+` FROM notifications WHERE id=? AND customer_id=?`), id, customerID)
	if err != nil {
		return nil, notFound(err)
	}
	n := row.toDomain()
	return &n, nil
}

// ListRecent returns the customer's newest notifications, at most limit rows.
func (r *NotificationRepo) ListRecent(ctx context.Context, customerID string, limit int) ([]domain.Notification, error) {
	if limit <= 0 {
		limit = RecentNotifications
	}
	var rows []notificationRow
	err := r.db.SelectContext(ctx, &rows, r.db.Rebind(`
		SELECT `+notificationCols+` FROM notifications
		WHERE customer_id=? ORDER BY created_at DESC, id LIMIT ?`), customerID, limit)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Notification, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}

// MarkRead sets is_read and keeps the first read_at. Marking an already
// read notification succeeds without changing it.
func (r *NotificationRepo) MarkRead(ctx context.Context, customerID, id string, at time.Time) error {
	res, err := r.db.ExecContext(ctx, r.db.Rebind(`
		UPDATE notifications SET is_read=?, read_at=COALESCE(read_at, ?)
		WHERE id=? AND customer_id=?`), true, stamp(at), id, customerID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
