package repos

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"chinasource/internal/domain"
)

type OfferRepo struct {
	db       *sqlx.DB
	products *ProductRepo
	images   *ImageRepo
}

func NewOfferRepo(db *sqlx.DB) *OfferRepo {
	return &OfferRepo{db: db, products: NewProductRepo(db), images: NewImageRepo(db)}
}

type offerRow struct {
	ID         string          `db:"id"`
	CustomerID string          `db:"customer_id"`
	CreatedBy  string          `db:"created_by"`
	Title      string          `db:"title"`
	OwnerName  string          `db:"owner_name"`
	OwnerEmail string          `db:"owner_email"`
	OwnerPhone string          `db:"owner_phone"`
	Status     string          `db:"status"`
	Currency   string          `db:"currency"`
	PickupFee  sql.NullFloat64 `db:"pickup_fee"`
	CreatedAt  string          `db:"created_at"`
}

const offerCols = `id,customer_id,created_by,title,owner_name,owner_email,owner_phone,status,currency,pickup_fee,created_at`

func (r offerRow) toDomain() domain.Offer {
	status := r.Status
	if strings.TrimSpace(status) == "" {
		status = domain.StatusDraft
	}
	return domain.Offer{
		ID:         r.ID,
		CustomerID: r.CustomerID,
		CreatedBy:  r.CreatedBy,
		Title:      r.Title,
		OwnerName:  r.OwnerName,
		OwnerEmail: r.OwnerEmail,
		OwnerPhone: r.OwnerPhone,
		Status:     status,
		Currency:   domain.NormalizeCurrency(r.Currency),
		PickupFee:  nullF(r.PickupFee),
		CreatedAt:  parseStamp(r.CreatedAt),
	}
}

// Create inserts o, assigning ID and CreatedAt when empty.
func (r *OfferRepo) Create(ctx context.Context, o *domain.Offer) error {
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	if o.CreatedAt.IsZero() {
		o.CreatedAt = time.Now().UTC()
	}
	if o.Status == "" {
		o.Status = domain.StatusDraft
	}
	o.Currency = domain.NormalizeCurrency(o.Currency)
	_, err := r.db.ExecContext(ctx, r.db.Rebind(`
		INSERT INTO offers(`+offerCols+`)
		VALUES(?,?,?,?,?,?,?,?,?,?,?)`),
		o.ID, o.CustomerID, o.CreatedBy, o.Title, o.OwnerName, o.OwnerEmail, o.OwnerPhone,
		o.Status, o.Currency, nf(o.PickupFee), stamp(o.CreatedAt))
	return err
}

// UpdateStatus is a single-row update; it does not check the previous value.
func (r *OfferRepo) UpdateStatus(ctx context.Context, id, status string) error {
	res, err := r.db.ExecContext(ctx, r.db.Rebind(`UPDATE offers SET status=? WHERE id=?`), status, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ByID returns the offer with its products and images.
func (r *OfferRepo) ByID(ctx context.Context, id string) (*domain.Offer, error) {
	var row offerRow
	if err := r.db.GetContext(ctx, &row, r.db.Rebind(`SELECT `+offerCols+` FROM offers WHERE id=?`), id); err != nil {
		return nil, notFound(err)
	}
	offers, err := r.embed(ctx, []offerRow{row})
	if err != nil {
		return nil, err
	}
	return &offers[0], nil
}

// ListByCustomer returns the customer's offers newest first, with nested
// products and images.
func (r *OfferRepo) ListByCustomer(ctx context.Context, customerID string) ([]domain.Offer, error) {
	var rows []offerRow
	if err := r.db.SelectContext(ctx, &rows, r.db.Rebind(`SELECT `+offerCols+` FROM offers WHERE customer_id=? ORDER BY created_at DESC`), customerID); err != nil {
		return nil, err
	}
	return r.embed(ctx, rows)
}

// ListAll returns every offer newest first, with nested products and images.
func (r *OfferRepo) ListAll(ctx context.Context) ([]domain.Offer, error) {
	var rows []offerRow
	if err := r.db.SelectContext(ctx, &rows, `SELECT `+offerCols+` FROM offers ORDER BY created_at DESC`); err != nil {
		return nil, err
	}
	return r.embed(ctx, rows)
}

func (r *OfferRepo) embed(ctx context.Context, rows []offerRow) ([]domain.Offer, error) {
	offers := make([]domain.Offer, 0, len(rows))
	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		offers = append(offers, row.toDomain())
		ids = append(ids, row.ID)
	}
	products, err := r.products.ByOffers(ctx, ids)
	if err != nil {
		return nil, err
	}
	if err := r.images.Attach(ctx, products); err != nil {
		return nil, err
	}
	byOffer := map[string][]domain.Product{}
	for _, p := range products {
		byOffer[p.OfferID] = append(byOffer[p.OfferID], p)
	}
	for i := range offers {
		offers[i].Products = byOffer[offers[i].ID]
	}
	return offers, nil
}
