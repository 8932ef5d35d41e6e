package repos

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"chinasource/internal/domain"
)

type ProductRepo struct{ db *sqlx.DB }

func NewProductRepo(db *sqlx.DB) *ProductRepo { return &ProductRepo{db: db} }

type productRow struct {
	ID                  string          `db:"id"`
	OfferID             string          `db:"offer_id"`
	CustomerID          string          `db:"customer_id"`
	Name                string          `db:"name"`
	Explanation         string          `db:"explanation"`
	Count               int             `db:"count"`
	ServiceType         string          `db:"service_type"`
	ProductWidth        sql.NullFloat64 `db:"product_width"`
	ProductLength       sql.NullFloat64 `db:"product_length"`
	ProductHeight       sql.NullFloat64 `db:"product_height"`
	ProductWeight       sql.NullFloat64 `db:"product_weight"`
	ProductPackage      string          `db:"product_package"`
	BoxWidth            sql.NullFloat64 `db:"box_width"`
	BoxLength           sql.NullFloat64 `db:"box_length"`
	BoxHeight           sql.NullFloat64 `db:"box_height"`
	BoxWeight           sql.NullFloat64 `db:"box_weight"`
	BoxVolumetricWeight sql.NullFloat64 `db:"box_volumetric_weight"`
	BoxUnits            sql.NullInt64   `db:"box_units"`
	BoxCount            sql.NullInt64   `db:"box_count"`
	UnitPrice           sql.NullFloat64 `db:"unit_price"`
	PickupFee           sql.NullFloat64 `db:"pickup_fee"`
	Currency            string          `db:"currency"`
	ExtraNotes          string          `db:"extra_notes"`
	Position            int             `db:"position"`
	CreatedAt           string          `db:"created_at"`
}

const productCols = `id,offer_id,customer_id,name,explanation,count,service_type,
  product_width,product_length,product_height,product_weight,product_package,
  box_width,box_length,box_height,box_weight,box_volumetric_weight,box_units,box_count,
  unit_price,pickup_fee,currency,extra_notes,position,created_at`

func nullF(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func nullI(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	n := int(v.Int64)
	return &n
}

func nf(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func ni(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func (r productRow) toDomain() domain.Product {
	count := r.Count
	if count < 1 {
		count = 1
	}
	return domain.Product{
		ID:          r.ID,
		OfferID:     r.OfferID,
		CustomerID:  r.CustomerID,
		Name:        r.Name,
		Explanation: r.Explanation,
		Count:       count,
		ServiceType: domain.ServiceType(r.ServiceType),
		Position:    r.Position,
		Fields: domain.ProductFields{
			ProductWidth:        nullF(r.ProductWidth),
			ProductLength:       nullF(r.ProductLength),
			ProductHeight:       nullF(r.ProductHeight),
			ProductWeight:       nullF(r.ProductWeight),
			ProductPackage:      r.ProductPackage,
			BoxWidth:            nullF(r.BoxWidth),
			BoxLength:           nullF(r.BoxLength),
			BoxHeight:           nullF(r.BoxHeight),
			BoxWeight:           nullF(r.BoxWeight),
			BoxVolumetricWeight: nullF(r.BoxVolumetricWeight),
			BoxUnits:            nullI(r.BoxUnits),
			BoxCount:            nullI(r.BoxCount),
			UnitPrice:           nullF(r.UnitPrice),
			PickupFee:           nullF(r.PickupFee),
			Currency:            domain.NormalizeCurrency(r.Currency),
			ExtraNotes:          r.ExtraNotes,
		},
		CreatedAt: parseStamp(r.CreatedAt),
	}
}

// Create inserts p, assigning ID and CreatedAt when empty.
func (r *ProductRepo) Create(ctx context.Context, p *domain.Product) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	f := p.Fields
	_, err := r.db.ExecContext(ctx, r.db.Rebind(`
		INSERT INTO products(`+productCols+`)
		VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`),
		p.ID, p.OfferID, p.CustomerID, p.Name, p.Explanation, p.Count, string(p.ServiceType),
		nf(f.ProductWidth), nf(f.ProductLength), nf(f.ProductHeight), nf(f.ProductWeight), f.ProductPackage,
		nf(f.BoxWidth), nf(f.BoxLength), nf(f.BoxHeight), nf(f.BoxWeight), nf(f.BoxVolumetricWeight), ni(f.BoxUnits), ni(f.BoxCount),
		nf(f.UnitPrice), nf(f.PickupFee), domain.NormalizeCurrency(f.Currency), f.ExtraNotes, p.Position, stamp(p.CreatedAt))
	return err
}

const fieldSet = `product_width=?, product_length=?, product_height=?, product_weight=?, product_package=?,
  box_width=?, box_length=?, box_height=?, box_weight=?, box_volumetric_weight=?, box_units=?, box_count=?,
  unit_price=?, pickup_fee=?, currency=?, extra_notes=?`

func fieldArgs(f domain.ProductFields) []any {
	return []any{
		nf(f.ProductWidth), nf(f.ProductLength), nf(f.ProductHeight), nf(f.ProductWeight), f.ProductPackage,
		nf(f.BoxWidth), nf(f.BoxLength), nf(f.BoxHeight), nf(f.BoxWeight), nf(f.BoxVolumetricWeight), ni(f.BoxUnits), ni(f.BoxCount),
		nf(f.UnitPrice), nf(f.PickupFee), domain.NormalizeCurrency(f.Currency), f.ExtraNotes,
	}
}

// UpdateFields overwrites the whole measurement and pricing set of one product.
func (r *ProductRepo) UpdateFields(ctx context.Context, id string, f domain.ProductFields) error {
	args := append(fieldArgs(f), id)
	res, err := r.db.ExecContext(ctx, r.db.Rebind(`UPDATE products SET `+fieldSet+` WHERE id=?`), args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Reassign moves a customer's product onto offerID at the given position and
// overwrites its count and fields.
func (r *ProductRepo) Reassign(ctx context.Context, id, customerID, offerID string, position, count int, f domain.ProductFields) error {
	args := append([]any{offerID, position, count}, fieldArgs(f)...)
	args = append(args, id, customerID)
	res, err := r.db.ExecContext(ctx, r.db.Rebind(`UPDATE products SET offer_id=?, position=?, count=?, `+fieldSet+` WHERE id=? AND customer_id=?`), args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *ProductRepo) ByID(ctx context.Context, id string) (*domain.Product, error) {
	var row productRow
	if err := r.db.GetContext(ctx, &row, r.db.Rebind(`SELECT `+productCols+` FROM products WHERE id=?`), id); err != nil {
		return nil, notFound(err)
	}
	p := row.toDomain()
	return &p, nil
}

// ListByCustomer returns a customer's products, newest first, without images.
func (r *ProductRepo) ListByCustomer(ctx context.Context, customerID string) ([]domain.Product, error) {
	var rows []productRow
	if err := r.db.SelectContext(ctx, &rows, r.db.Rebind(`SELECT `+productCols+` FROM products WHERE customer_id=? ORDER BY created_at DESC, id`), customerID); err != nil {
		return nil, err
	}
	return productsOf(rows), nil
}

// ByOffers returns products of the given offers in row order.
func (r *ProductRepo) ByOffers(ctx context.Context, offerIDs []string) ([]domain.Product, error) {
	if len(offerIDs) == 0 {
		return nil, nil
	}
	q, args, err := sqlx.In(`SELECT `+productCols+` FROM products WHERE offer_id IN (?) ORDER BY position, created_at, id`, offerIDs)
	if err != nil {
		return nil, err
	}
	var rows []productRow
	if err := r.db.SelectContext(ctx, &rows, r.db.Rebind(q), args...); err != nil {
		return nil, err
	}
	return productsOf(rows), nil
}

func productsOf(rows []productRow) []domain.Product {
	out := make([]domain.Product, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out
}
