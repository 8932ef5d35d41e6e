package repos

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"golang.org/x/crypto/bcrypt"
	_ "modernc.org/sqlite"
)

var ErrNotFound = errors.New("not found")

// tsLayout is fixed width so that text ordering is time ordering.
const tsLayout = "2006-01-02T15:04:05.000000Z"

func stamp(t time.Time) string { return t.UTC().Format(tsLayout) }

func parseStamp(s string) time.Time {
	t, err := time.Parse(tsLayout, s)
	if err != nil {
		t, _ = time.Parse(time.RFC3339Nano, s)
	}
	return t
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

// OpenDB opens driver "sqlite" (modernc) or "pgx" (PostgreSQL) and applies
// the schema.
func OpenDB(driver, dsn string) (*sqlx.DB, error) {
	if driver == "" {
		driver = "sqlite"
	}
	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, err
	}
	if driver == "sqlite" {
		// One connection: :memory: databases are per connection, and
		// sqlite serialises writers anyway.
		db.SetMaxOpenConns(1)
		if _, err := db.Exec(`PRAGMA foreign_keys = ON`); err != nil {
			return nil, err
		}
	}
	if err = db.Ping(); err != nil {
		return nil, err
	}
	if err := ensureSchema(db); err != nil {
		return nil, err
	}
	return db, nil
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS users(
  id TEXT PRIMARY KEY,
  email TEXT NOT NULL UNIQUE,
  password_hash TEXT NOT NULL,
  name TEXT NOT NULL DEFAULT '',
  phone TEXT NOT NULL DEFAULT '',
  email_confirmed BOOLEAN NOT NULL DEFAULT FALSE,
  created_at TEXT NOT NULL
)`,
	`CREATE TABLE IF NOT EXISTS sessions(
  id TEXT PRIMARY KEY,
  user_id TEXT REFERENCES users(id) ON DELETE CASCADE,
  remember BOOLEAN NOT NULL DEFAULT FALSE,
  recovery BOOLEAN NOT NULL DEFAULT FALSE,
  created_at TEXT NOT NULL
)`,
	`CREATE TABLE IF NOT EXISTS customers(
  id TEXT PRIMARY KEY REFERENCES users(id) ON DELETE CASCADE,
  name TEXT NOT NULL DEFAULT '',
  email TEXT NOT NULL,
  phone TEXT NOT NULL DEFAULT '',
  created_at TEXT NOT NULL
)`,
	`CREATE TABLE IF NOT EXISTS offers(
  id TEXT PRIMARY KEY,
  customer_id TEXT NOT NULL REFERENCES customers(id),
  created_by TEXT NOT NULL,
  title TEXT NOT NULL DEFAULT '',
  owner_name TEXT NOT NULL DEFAULT '',
  owner_email TEXT NOT NULL DEFAULT '',
  owner_phone TEXT NOT NULL DEFAULT '',
  status TEXT NOT NULL DEFAULT 'draft',
  currency TEXT NOT NULL DEFAULT 'USD',
  pickup_fee DOUBLE PRECISION,
  created_at TEXT NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS idx_offers_customer ON offers(customer_id, created_at)`,
	`CREATE TABLE IF NOT EXISTS products(
  id TEXT PRIMARY KEY,
  offer_id TEXT NOT NULL REFERENCES offers(id),
  customer_id TEXT NOT NULL REFERENCES customers(id),
  name TEXT NOT NULL,
  explanation TEXT NOT NULL DEFAULT '',
  count INTEGER NOT NULL CHECK (count >= 1),
  service_type TEXT NOT NULL DEFAULT '',
  product_width DOUBLE PRECISION,
  product_length DOUBLE PRECISION,
  product_height DOUBLE PRECISION,
  product_weight DOUBLE PRECISION,
  product_package TEXT NOT NULL DEFAULT '',
  box_width DOUBLE PRECISION,
  box_length DOUBLE PRECISION,
  box_height DOUBLE PRECISION,
  box_weight DOUBLE PRECISION,
  box_volumetric_weight DOUBLE PRECISION,
  box_units INTEGER,
  box_count INTEGER,
  unit_price DOUBLE PRECISION,
  pickup_fee DOUBLE PRECISION,
  currency TEXT NOT NULL DEFAULT 'USD',
  extra_notes TEXT NOT NULL DEFAULT '',
  position INTEGER NOT NULL DEFAULT 0,
  created_at TEXT NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS idx_products_offer ON products(offer_id, position)`,
	`CREATE INDEX IF NOT EXISTS idx_products_customer ON products(customer_id, created_at)`,
	`CREATE TABLE IF NOT EXISTS product_images(
  id TEXT PRIMARY KEY,
  product_id TEXT NOT NULL REFERENCES products(id),
  customer_id TEXT NOT NULL REFERENCES customers(id),
  path TEXT NOT NULL,
  sort_order INTEGER NOT NULL DEFAULT 0,
  source_type TEXT NOT NULL CHECK (source_type IN ('upload','url')),
  created_at TEXT NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS idx_product_images_product ON product_images(product_id, sort_order)`,
	`CREATE TABLE IF NOT EXISTS notifications(
  id TEXT PRIMARY KEY,
  customer_id TEXT NOT NULL REFERENCES customers(id),
  offer_id TEXT,
  title TEXT NOT NULL,
  message TEXT NOT NULL DEFAULT '',
  type TEXT NOT NULL DEFAULT 'info',
  is_read BOOLEAN NOT NULL DEFAULT FALSE,
  created_at TEXT NOT NULL,
  read_at TEXT
)`,
	`CREATE INDEX IF NOT EXISTS idx_notifications_customer ON notifications(customer_id, created_at)`,
}

func ensureSchema(db *sqlx.DB) error {
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("schema: %s: %w", strings.SplitN(stmt, "(", 2)[0], err)
		}
	}
	return nil
}

// SeedUser creates a confirmed account (and its customer row) unless the
// email already exists. It reports whether a row was created.
func SeedUser(ctx context.Context, db *sqlx.DB, id, email, name, password string) (bool, error) {
	repo := NewUserRepo(db)
	if _, err := repo.ByEmail(ctx, email); err == nil {
		return false, nil
	} else if !errors.Is(err, ErrNotFound) {
		return false, err
	}
	h, err := bcrypt.GenerateFromPassword([]byte(password), 12)
	if err != nil {
		return false, err
	}
	err = repo.Create(ctx, NewUser{
		ID: id, Email: email, Name: name, Hash: string(h), Confirmed: true,
	})
	return err == nil, err
}
