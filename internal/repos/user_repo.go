package repos

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"chinasource/internal/domain"
)

type UserRepo struct{ db *sqlx.DB }

func NewUserRepo(db *sqlx.DB) *UserRepo { return &UserRepo{db: db} }

type userRow struct {
	ID             string `db:"id"`
	Email          string `db:"email"`
	Hash           string `db:"password_hash"`
	Name           string `db:"name"`
	Phone          string `db:"phone"`
	EmailConfirmed bool   `db:"email_confirmed"`
	CreatedAt      string `db:"created_at"`
}

func (r userRow) toDomain() *domain.User {
	return &domain.User{
		ID:             r.ID,
		Email:          r.Email,
		Hash:           r.Hash,
		Name:           r.Name,
		Phone:          r.Phone,
		EmailConfirmed: r.EmailConfirmed,
		CreatedAt:      parseStamp(r.CreatedAt),
	}
}

const userCols = `u.id,u.email,u.password_hash,u.name,u.phone,u.email_confirmed,u.created_at`

type NewUser struct {
	ID        string
	Email     string
	Name      string
	Phone     string
	Hash      string
	Confirmed bool
}

// Create inserts the account and its customer row in one transaction.
func (r *UserRepo) Create(ctx context.Context, u NewUser) error {
	now := stamp(time.Now())
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, tx.Rebind(`
		INSERT INTO users(id,email,password_hash,name,phone,email_confirmed,created_at)
		VALUES(?,?,?,?,?,?,?)`), u.ID, u.Email, u.Hash, u.Name, u.Phone, u.Confirmed, now); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, tx.Rebind(`
		INSERT INTO customers(id,name,email,phone,created_at)
		VALUES(?,?,?,?,?)`), u.ID, u.Name, u.Email, u.Phone, now); err != nil {
		return err
	}
	return tx.Commit()
}

func (r *UserRepo) ByEmail(ctx context.Context, email string) (*domain.User, error) {
	var row userRow
	err := r.db.GetContext(ctx, &row, r.db.Rebind(`SELECT `+userCols+` FROM users u WHERE LOWER(u.email)=LOWER(?)`), email)
	if err != nil {
		return nil, notFound(err)
	}
	return row.toDomain(), nil
}

func (r *UserRepo) ByID(ctx context.Context, id string) (*domain.User, error) {
	var row userRow
	err := r.db.GetContext(ctx, &row, r.db.Rebind(`SELECT `+userCols+` FROM users u WHERE u.id=?`), id)
	if err != nil {
		return nil, notFound(err)
	}
	return row.toDomain(), nil
}

func (r *UserRepo) Confirm(ctx context.Context, id string) error {
	return r.execOne(ctx, `UPDATE users SET email_confirmed=? WHERE id=?`, true, id)
}

func (r *UserRepo) UpdatePassword(ctx context.Context, id, hash string) error {
	return r.execOne(ctx, `UPDATE users SET password_hash=? WHERE id=?`, hash, id)
}

// UpdateProfile writes name and phone to the account metadata and the
// customer row.
func (r *UserRepo) UpdateProfile(ctx context.Context, id, name, phone string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, tx.Rebind(`UPDATE users SET name=?, phone=? WHERE id=?`), name, phone, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	if _, err := tx.ExecContext(ctx, tx.Rebind(`UPDATE customers SET name=?, phone=? WHERE id=?`), name, phone, id); err != nil {
		return err
	}
	return tx.Commit()
}

func (r *UserRepo) BindSession(ctx context.Context, s domain.Session) error {
	_, err := r.db.ExecContext(ctx, r.db.Rebind(`
		INSERT INTO sessions(id,user_id,remember,recovery,created_at)
		VALUES(?,?,?,?,?)
		ON CONFLICT(id) DO UPDATE SET user_id=excluded.user_id, remember=excluded.remember,
		  recovery=excluded.recovery, created_at=excluded.created_at`),
		s.ID, s.UserID, s.Remember, s.Recovery, stamp(time.Now()))
	return err
}

type sessionRow struct {
	userRow
	SID      string `db:"sid"`
	Remember bool   `db:"remember"`
	Recovery bool   `db:"recovery"`
}

func (r *UserRepo) SessionUser(ctx context.Context, sid string) (*domain.User, *domain.Session, error) {
	var row sessionRow
	err := r.db.GetContext(ctx, &row, r.db.Rebind(`
		SELECT `+userCols+`, s.id AS sid, s.remember, s.recovery
		FROM sessions s
		JOIN users u ON u.id=s.user_id
		WHERE s.id=?`), sid)
	if err != nil {
		return nil, nil, notFound(err)
	}
	return row.toDomain(), &domain.Session{ID: row.SID, UserID: row.ID, Remember: row.Remember, Recovery: row.Recovery}, nil
}

func (r *UserRepo) UnbindSession(ctx context.Context, sid string) error {
	_, err := r.db.ExecContext(ctx, r.db.Rebind(`DELETE FROM sessions WHERE id=?`), sid)
	return err
}

func (r *UserRepo) execOne(ctx context.Context, q string, args ...any) error {
	res, err := r.db.ExecContext(ctx, r.db.Rebind(q), args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
