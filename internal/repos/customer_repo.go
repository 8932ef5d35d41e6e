package repos

import (
	"context"

	"github.com/jmoiron/sqlx"

	"chinasource/internal/domain"
)

type CustomerRepo struct{ db *sqlx.DB }

func NewCustomerRepo(db *sqlx.DB) *CustomerRepo { return &CustomerRepo{db: db} }

type customerRow struct {
	ID        string `db:"id"`
	Name      string `db:"name"`
	Email     string `db:"email"`
	Phone     string `db:"phone"`
	CreatedAt string `db:"created_at"`
}

func (r customerRow) toDomain() domain.Customer {
	return domain.Customer{
		ID:        r.ID,
		Name:      r.Name,
		Email:     r.Email,
		Phone:     r.Phone,
		CreatedAt: parseStamp(r.CreatedAt),
	}
}

func (r *CustomerRepo) ByID(ctx context.Context, id string) (*domain.Customer, error) {
	var row customerRow
	if err := r.db.GetContext(ctx, &row, r.db.Rebind(`SELECT id,name,email,phone,created_at FROM customers WHERE id=?`), id); err != nil {
		return nil, notFound(err)
	}
	c := row.toDomain()
	return &c, nil
}

// List returns every customer, newest first.
func (r *CustomerRepo) List(ctx context.Context) ([]domain.Customer, error) {
	var rows []customerRow
	if err := r.db.SelectContext(ctx, &rows, `SELECT id,name,email,phone,created_at FROM customers ORDER BY created_at DESC`); err != nil {
		return nil, err
	}
	out := make([]domain.Customer, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}

// ByIDs returns the customers found, keyed by id.
func (r *CustomerRepo) ByIDs(ctx context.Context, ids []string) (map[string]domain.Customer, error) {
	out := map[string]domain.Customer{}
	if len(ids) == 0 {
		return out, nil
	}
	q, args, err := sqlx.In(`SELECT id,name,email,phone,created_at FROM customers WHERE id IN (?)`, ids)
	if err != nil {
		return nil, err
	}
	var rows []customerRow
	if err := r.db.SelectContext(ctx, &rows, r.db.Rebind(q), args...); err != nil {
		return nil, err
	}
	for _, row := range rows {
		out[row.ID] = row.toDomain()
	}
	return out, nil
}

// Taken reports whether another customer already uses the email or phone.
func (r *CustomerRepo) Taken(ctx context.Context, email, phone string) (emailTaken, phoneTaken bool, err error) {
	var n int
	if err = r.db.GetContext(ctx, &n, r.db.Rebind(`SELECT COUNT(*) FROM customers WHERE LOWER(email)=LOWER(?)`), email); err != nil {
		return
	}
	emailTaken = n > 0
	if phone == "" {
		return
	}
	if err = r.db.GetContext(ctx, &n, r.db.Rebind(`SELECT COUNT(*) FROM customers WHERE phone=?`), phone); err != nil {
		return
	}
	phoneTaken = n > 0
	return
}
