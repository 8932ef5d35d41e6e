package services_test

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"chinasource/internal/domain"
	"chinasource/internal/forms"
	"chinasource/internal/realtime"
	"chinasource/internal/repos"
	"chinasource/internal/services"
	"chinasource/internal/storage"
)

type countingMetrics struct {
	mu             sync.Mutex
	offers         map[string]int
	products       map[string]int
	uploads        map[string]int
	statusChanges  map[string]int
	notificationRd int
}

func newCountingMetrics() *countingMetrics {
	return &countingMetrics{
		offers:        map[string]int{},
		products:      map[string]int{},
		uploads:       map[string]int{},
		statusChanges: map[string]int{},
	}
}

func (m *countingMetrics) IncOfferSubmitted(o string) { m.mu.Lock(); m.offers[o]++; m.mu.Unlock() }
func (m *countingMetrics) IncProductCreated(o string) { m.mu.Lock(); m.products[o]++; m.mu.Unlock() }
func (m *countingMetrics) IncImageUpload(r string)    { m.mu.Lock(); m.uploads[r]++; m.mu.Unlock() }
func (m *countingMetrics) IncStatusChange(s string)   { m.mu.Lock(); m.statusChanges[s]++; m.mu.Unlock() }
func (m *countingMetrics) IncNotificationRead()       { m.mu.Lock(); m.notificationRd++; m.mu.Unlock() }

func (m *countingMetrics) upload(r string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.uploads[r]
}

type env struct {
	db      *sqlx.DB
	store   services.OfferStore
	disk    *storage.Disk
	hub     *realtime.MemoryHub
	metrics *countingMetrics
	notes   *services.NotificationService
	offers  *services.OfferService
	admin   *services.AdminService
}

func newEnv(t *testing.T) *env {
	t.Helper()
	db, err := repos.OpenDB("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	disk := storage.NewDisk(t.TempDir(), "product-images", storage.NewSigner("test-key", "http://localhost/storage"))
	require.NoError(t, disk.EnsureBucket())

	store := services.OfferStore{
		Offers:    repos.NewOfferRepo(db),
		Products:  repos.NewProductRepo(db),
		Images:    repos.NewImageRepo(db),
		Customers: repos.NewCustomerRepo(db),
	}
	hub := realtime.NewMemoryHub()
	m := newCountingMetrics()
	log := zap.NewNop()
	notes := services.NewNotificationService(repos.NewNotificationRepo(db), hub, m, log)
	return &env{
		db:      db,
		store:   store,
		disk:    disk,
		hub:     hub,
		metrics: m,
		notes:   notes,
		offers:  services.NewOfferService(store, disk, services.DefaultSignedURLTTL, notes, m, log),
		admin:   services.NewAdminService(store, disk, services.DefaultSignedURLTTL, notes, m, log),
	}
}

func (e *env) customer(t *testing.T, id, email, phone string) domain.Customer {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, repos.NewUserRepo(e.db).Create(ctx, repos.NewUser{
		ID: id, Email: email, Name: "Customer " + id, Phone: phone, Hash: "x", Confirmed: true,
	}))
	c, err := e.store.Customers.ByID(ctx, id)
	require.NoError(t, err)
	return *c
}

func memFile(name, body string) forms.Upload {
	return forms.Upload{
		Name:        name,
		ContentType: "image/jpeg",
		Size:        int64(len(body)),
		Open: func() (io.ReadCloser, error) {
			return io.NopCloser(strings.NewReader(body)), nil
		},
	}
}

func brokenFile(name string) forms.Upload {
	return forms.Upload{
		Name: name,
		Open: func() (io.ReadCloser, error) { return nil, errors.New("disk read error") },
	}
}

func entry(st domain.ServiceType, name string, qty int) *forms.ProductForm {
	f := forms.NewCustomerForm()
	f.Entries[0].ServiceType = st
	f.Entries[0].Name = name
	f.Entries[0].Quantity = qty
	return f
}
