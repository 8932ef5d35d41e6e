package repos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"chinasource/internal/domain"
)

type ImageRepo struct{ db *sqlx.DB }

func NewImageRepo(db *sqlx.DB) *ImageRepo { return &ImageRepo{db: db} }

type imageRow struct {
	ID         string `db:"id"`
	ProductID  string `db:"product_id"`
	CustomerID string `db:"customer_id"`
	Path       string `db:"path"`
	SortOrder  int    `db:"sort_order"`
	Source     string `db:"source_type"`
}

func (r imageRow) toDomain() domain.ProductImage {
	src := domain.ImageSource(r.Source)
	if src != domain.SourceURL {
		src = domain.SourceUpload
	}
	return domain.ProductImage{
		ID:         r.ID,
		ProductID:  r.ProductID,
		CustomerID: r.CustomerID,
		Path:       r.Path,
		SortOrder:  r.SortOrder,
		Source:     src,
	}
}

func (r *ImageRepo) Insert(ctx context.Context, im *domain.ProductImage) error {
	if im.ID == "" {
		im.ID = uuid.NewString()
	}
	_, err := r.db.ExecContext(ctx, r.db.Rebind(`
		INSERT INTO product_images(id,product_id,customer_id,path,sort_order,source_type,created_at)
		VALUES(?,?,?,?,?,?,?)`),
		im.ID, im.ProductID, im.CustomerID, im.Path, im.SortOrder, string(im.Source), stamp(time.Now()))
	return err
}

func (r *ImageRepo) CountByProduct(ctx context.Context, productID string) (int, error) {
	var n int
	err := r.db.GetContext(ctx, &n, r.db.Rebind(`SELECT COUNT(*) FROM product_images WHERE product_id=?`), productID)
	return n, err
}

// ByProducts groups images by product id, ordered by sort_order.
func (r *ImageRepo) ByProducts(ctx context.Context, productIDs []string) (map[string][]domain.ProductImage, error) {
	out := map[string][]domain.ProductImage{}
	if len(productIDs) == 0 {
		return out, nil
	}
	q, args, err := sqlx.In(`
		SELECT id,product_id,customer_id,path,sort_order,source_type
		FROM product_images WHERE product_id IN (?)
		ORDER BY product_id, sort_order, created_at`, productIDs)
	if err != nil {
		return nil, err
	}
	var rows []imageRow
	if err := r.db.SelectContext(ctx, &rows, r.db.Rebind(q), args...); err != nil {
		return nil, err
	}
	for _, row := range rows {
		out[row.ProductID] = append(out[row.ProductID], row.toDomain())
	}
	return out, nil
}

// Attach fills Images on each product in place.
func (r *ImageRepo) Attach(ctx context.Context, products []domain.Product) error {
	ids := make([]string, 0, len(products))
	for _, p := range products {
		ids = append(ids, p.ID)
	}
	byProduct, err := r.ByProducts(ctx, ids)
	if err != nil {
		return err
	}
	for i := range products {
		products[i].Images = byProduct[products[i].ID]
	}
	return nil
}
