package handlers

import (
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"chinasource/internal/authz"
	"chinasource/internal/config"
	"chinasource/internal/mail"
	"chinasource/internal/metrics"
	"chinasource/internal/realtime"
	"chinasource/internal/repos"
	"chinasource/internal/services"
	"chinasource/internal/storage"
)

// Backends are the process-level services the handlers sit on.
type Backends struct {
	Disk     *storage.Disk
	Hub      realtime.Hub
	Mail     mail.Sender
	Registry *prometheus.Registry
	Log      *zap.Logger
}

type Deps struct {
	Auth          *services.AuthService
	Offers        *services.OfferService
	Admin         *services.AdminService
	Notifications *services.NotificationService
	Admins        authz.AllowList
	Registry      *prometheus.Registry
	Streams       *Streams

	AuthHandler      *AuthHandler
	DashboardHandler *DashboardHandler
	AdminHandler     *AdminHandler
	StorageHandler   *StorageHandler
}

const noAdminsWarning = "admin: ADMIN_EMAILS is empty, nobody can open the admin dashboard"

func NewDeps(db *sqlx.DB, cfg config.Config, b Backends) *Deps {
	if b.Log == nil {
		b.Log = zap.NewNop()
	}
	if b.Hub == nil {
		b.Hub = realtime.NewMemoryHub()
	}
	if b.Mail == nil {
		b.Mail = mail.LogSender{Log: b.Log}
	}
	if b.Registry == nil {
		b.Registry = prometheus.NewRegistry()
	}
	m := metrics.NewOfferMetrics(b.Registry)

	users := repos.NewUserRepo(db)
	customers := repos.NewCustomerRepo(db)
	store := services.OfferStore{
		Offers:    repos.NewOfferRepo(db),
		Products:  repos.NewProductRepo(db),
		Images:    repos.NewImageRepo(db),
		Customers: customers,
	}
	ttl := cfg.SignedURLTTL
	if ttl <= 0 {
		ttl = services.DefaultSignedURLTTL
	}

	notes := services.NewNotificationService(repos.NewNotificationRepo(db), b.Hub, m, b.Log)
	auth := &services.AuthService{
		Users:       users,
		Customers:   customers,
		Tokens:      services.NewTokens(cfg.BackendKey),
		Mail:        b.Mail,
		Log:         b.Log,
		PublicURL:   cfg.BackendURL + cfg.BasePath,
		AutoConfirm: cfg.AuthAutoConfirm,
	}
	offers := services.NewOfferService(store, b.Disk, ttl, notes, m, b.Log)
	admin := services.NewAdminService(store, b.Disk, ttl, notes, m, b.Log)
	streams := NewStreams()
	admins := authz.ParseAllowList(cfg.AdminEmails)
	if admins.Len() == 0 {
		b.Log.Warn(noAdminsWarning)
	}

	return &Deps{
		Auth:          auth,
		Offers:        offers,
		Admin:         admin,
		Notifications: notes,
		Admins:        admins,
		Registry:      b.Registry,
		Streams:       streams,

		AuthHandler: &AuthHandler{Auth: auth, Streams: streams},
		DashboardHandler: &DashboardHandler{
			Offers:    offers,
			Notes:     notes,
			Auth:      auth,
			Streams:   streams,
			Heartbeat: DefaultHeartbeat,
		},
		AdminHandler:   &AdminHandler{Admin: admin},
		StorageHandler: &StorageHandler{Disk: b.Disk},
	}
}
