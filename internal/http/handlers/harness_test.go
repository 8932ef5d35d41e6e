package handlers_test

import (
	"bytes"
	"context"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"golang.org/x/crypto/bcrypt"

	"chinasource/internal/config"
	"chinasource/internal/domain"
	"chinasource/internal/http/handlers"
	applog "chinasource/internal/log"
	"chinasource/internal/repos"
	"chinasource/internal/storage"
	"chinasource/web"
)

const (
	adminEmail = "ops@chinasource.test"
	password   = "secret12"
)

type harness struct {
	app  *fiber.App
	deps *handlers.Deps
	db   *sqlx.DB
	disk *storage.Disk
	logs *observer.ObservedLogs
	cfg  config.Config
}

func newHarness(t *testing.T, mods ...func(*config.Config)) *harness {
	t.Helper()
	db, err := repos.OpenDB("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	core, logs := observer.New(zapcore.DebugLevel)
	applog.SetLogger(zap.New(core))
	t.Cleanup(func() { applog.SetLogger(nil) })

	cfg := config.Config{
		BackendURL:      "http://localhost:8081",
		BackendKey:      "test-key",
		AdminEmails:     adminEmail,
		StorageBucket:   "product-images",
		SignedURLTTL:    time.Hour,
		AuthAutoConfirm: true,
	}
	for _, m := range mods {
		m(&cfg)
	}

	disk := storage.NewDisk(t.TempDir(), cfg.StorageBucket, storage.NewSigner(cfg.BackendKey, cfg.BackendURL+cfg.BasePath+"/storage"))
	require.NoError(t, disk.EnsureBucket())

	deps := handlers.NewDeps(db, cfg, handlers.Backends{Disk: disk})
	app := handlers.NewApp(cfg, deps, web.Engine(), handlers.Options{GlobalMax: 1000, LoginMax: 3})
	return &harness{app: app, deps: deps, db: db, disk: disk, logs: logs, cfg: cfg}
}

// account creates a confirmed user and returns its id and a live sid.
func (h *harness) account(t *testing.T, email, phone string) (string, string) {
	t.Helper()
	ctx := context.Background()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	id := uuid.NewString()
	users := repos.NewUserRepo(h.db)
	require.NoError(t, users.Create(ctx, repos.NewUser{
		ID: id, Email: email, Name: "Customer " + email, Phone: phone, Hash: string(hash), Confirmed: true,
	}))
	sid := uuid.NewString()
	require.NoError(t, users.BindSession(ctx, domain.Session{ID: sid, UserID: id}))
	return id, sid
}

func (h *harness) do(t *testing.T, req *http.Request) *http.Response {
	t.Helper()
	resp, err := h.app.Test(req, -1)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func (h *harness) get(t *testing.T, path, sid string) *http.Response {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if sid != "" {
		req.Header.Set("Cookie", "sid="+sid)
	}
	return h.do(t, req)
}

// csrf fetches a fresh token the way a browser would, from the sign-in page.
func (h *harness) csrf(t *testing.T) string {
	t.Helper()
	resp := h.get(t, h.cfg.BasePath+"/login", "")
	for _, ck := range resp.Cookies() {
		if ck.Name == "csrf_" {
			return ck.Value
		}
	}
	t.Fatal("no csrf cookie on the sign-in page")
	return ""
}

func cookieHeader(tok, sid string) string {
	parts := []string{"csrf_=" + tok}
	if sid != "" {
		parts = append(parts, "sid="+sid)
	}
	return strings.Join(parts, "; ")
}

func (h *harness) post(t *testing.T, path, sid string, form url.Values, headers ...string) *http.Response {
	t.Helper()
	tok := h.csrf(t)
	if form == nil {
		form = url.Values{}
	}
	form.Set("csrf", tok)
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Cookie", cookieHeader(tok, sid))
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	return h.do(t, req)
}

type upload struct {
	field, name, body string
}

func (h *harness) postMultipart(t *testing.T, path, sid string, fields map[string]string, files ...upload) *http.Response {
	t.Helper()
	tok := h.csrf(t)
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	require.NoError(t, w.WriteField("csrf", tok))
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	for _, f := range files {
		fw, err := w.CreateFormFile(f.field, f.name)
		require.NoError(t, err)
		_, err = io.WriteString(fw, f.body)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("Cookie", cookieHeader(tok, sid))
	return h.do(t, req)
}

func body(t *testing.T, resp *http.Response) string {
	t.Helper()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(b)
}

func cookie(resp *http.Response, name string) *http.Cookie {
	for _, ck := range resp.Cookies() {
		if ck.Name == name {
			return ck
		}
	}
	return nil
}

// logged reports whether an entry with the given action was written.
func (h *harness) logged(action string) bool {
	return h.logs.FilterMessage(action).Len() > 0
}
