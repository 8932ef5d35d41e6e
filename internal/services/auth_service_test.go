package services_test

import (
	"context"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"chinasource/internal/repos"
	"chinasource/internal/services"
)

type outbox struct {
	mu      sync.Mutex
	resets  map[string]string
	confirm map[string]string
}

func (o *outbox) SendPasswordReset(_ context.Context, to, link string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.resets[to] = link
	return nil
}

func (o *outbox) SendConfirmation(_ context.Context, to, link string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.confirm[to] = link
	return nil
}

func newAuth(t *testing.T, autoConfirm bool) (*services.AuthService, *outbox) {
	t.Helper()
	e := newEnv(t)
	box := &outbox{resets: map[string]string{}, confirm: map[string]string{}}
	return &services.AuthService{
		Users:       repos.NewUserRepo(e.db),
		Customers:   repos.NewCustomerRepo(e.db),
		Tokens:      services.NewTokens("test-key"),
		Mail:        box,
		Log:         zap.NewNop(),
		PublicURL:   "http://localhost:8081",
		AutoConfirm: autoConfirm,
	}, box
}

func signUp(email, phone string) services.SignUp {
	return services.SignUp{Name: "Ada", Email: email, Phone: phone, Password: "secret1", Confirm: "secret1"}
}

func TestRegisterValidatesInput(t *testing.T) {
	auth, _ := newAuth(t, true)
	ctx := context.Background()

	in := signUp("ada@x.com", "0555 123 45 67")
	in.Password, in.Confirm = "123", "123"
	_, err := auth.Register(ctx, in)
	assert.ErrorIs(t, err, services.ErrWeakPassword)

	in = signUp("ada@x.com", "0555 123 45 67")
	in.Confirm = "different"
	_, err = auth.Register(ctx, in)
	assert.ErrorIs(t, err, services.ErrPasswordMismatch)

	_, err = auth.Register(ctx, signUp("ada@x.com", "555 12"))
	assert.ErrorIs(t, err, services.ErrInvalidPhone)

	u, err := auth.Register(ctx, signUp("Ada@X.com", "+90 555 123 45 67"))
	require.NoError(t, err)
	assert.Equal(t, "ada@x.com", u.Email)
	assert.Equal(t, "5551234567", u.Phone)

	_, err = auth.Register(ctx, signUp("ADA@x.com", "5550000000"))
	assert.ErrorIs(t, err, services.ErrEmailTaken)
	_, err = auth.Register(ctx, signUp("other@x.com", "05551234567"))
	assert.ErrorIs(t, err, services.ErrPhoneTaken)
}

func TestLoginRequiresConfirmedEmail(t *testing.T) {
	auth, box := newAuth(t, false)
	ctx := context.Background()

	_, err := auth.Register(ctx, signUp("ada@x.com", "5551234567"))
	require.NoError(t, err)

	_, err = auth.Login(ctx, "sid-1", "ada@x.com", "secret1", false)
	assert.ErrorIs(t, err, services.ErrEmailNotConfirmed)
	_, err = auth.Login(ctx, "sid-1", "ada@x.com", "wrong-pass", false)
	assert.ErrorIs(t, err, services.ErrInvalidCredentials)
	_, err = auth.Login(ctx, "sid-1", "nobody@x.com", "secret1", false)
	assert.ErrorIs(t, err, services.ErrInvalidCredentials)

	link := box.confirm["ada@x.com"]
	require.NotEmpty(t, link)
	u, err := url.Parse(link)
	require.NoError(t, err)
	assert.Equal(t, "/auth/confirm", u.Path)

	_, err = auth.Confirm(ctx, u.Query().Get("token"))
	require.NoError(t, err)

	user, err := auth.Login(ctx, "sid-1", "ADA@x.com", "secret1", true)
	require.NoError(t, err)
	cur, sess, err := auth.CurrentUser(ctx, "sid-1")
	require.NoError(t, err)
	assert.Equal(t, user.ID, cur.ID)
	assert.True(t, sess.Remember)

	require.NoError(t, auth.Logout(ctx, "sid-1"))
	_, _, err = auth.CurrentUser(ctx, "sid-1")
	assert.Error(t, err)
}

func TestPasswordRecoveryFlow(t *testing.T) {
	auth, box := newAuth(t, true)
	ctx := context.Background()
	_, err := auth.Register(ctx, signUp("ada@x.com", "5551234567"))
	require.NoError(t, err)

	require.NoError(t, auth.RequestPasswordReset(ctx, "nobody@x.com"))
	assert.Empty(t, box.resets)

	require.NoError(t, auth.RequestPasswordReset(ctx, "ada@x.com"))
	link := box.resets["ada@x.com"]
	require.True(t, strings.HasPrefix(link, "http://localhost:8081/reset#"), link)
	frag, err := url.ParseQuery(link[strings.Index(link, "#")+1:])
	require.NoError(t, err)
	assert.Equal(t, "recovery", frag.Get("type"))
	assert.Empty(t, frag.Get("refresh_token"))

	_, err = auth.ResetPassword(ctx, "sid-r", "newpass1", "newpass1")
	assert.ErrorIs(t, err, services.ErrInvalidRecovery)

	_, sess, err := auth.EstablishSession(ctx, "sid-r", frag.Get("access_token"))
	require.NoError(t, err)
	assert.True(t, sess.Recovery)

	_, err = auth.ResetPassword(ctx, "sid-r", "newpass1", "nope")
	assert.ErrorIs(t, err, services.ErrPasswordMismatch)
	_, err = auth.ResetPassword(ctx, "sid-r", "newpass1", "newpass1")
	require.NoError(t, err)

	_, sess, err = auth.CurrentUser(ctx, "sid-r")
	require.NoError(t, err)
	assert.False(t, sess.Recovery)

	_, err = auth.Login(ctx, "sid-2", "ada@x.com", "newpass1", false)
	require.NoError(t, err)
}

func TestEstablishSessionAcceptsOnlyRecoveryTokens(t *testing.T) {
	auth, _ := newAuth(t, true)
	ctx := context.Background()
	u, err := auth.Register(ctx, signUp("ada@x.com", "5551234567"))
	require.NoError(t, err)

	confirm, err := auth.Tokens.Confirmation(u.ID)
	require.NoError(t, err)
	_, _, err = auth.EstablishSession(ctx, "sid", confirm)
	assert.ErrorIs(t, err, services.ErrInvalidToken)

	forged, err := services.NewTokens("other-key").Recovery(u.ID)
	require.NoError(t, err)
	_, _, err = auth.EstablishSession(ctx, "sid", forged)
	assert.ErrorIs(t, err, services.ErrInvalidToken)

	tok, err := auth.Tokens.Recovery(u.ID)
	require.NoError(t, err)
	_, sess, err := auth.EstablishSession(ctx, "sid", tok)
	require.NoError(t, err)
	assert.True(t, sess.Recovery)
}

func TestUpdateProfileNormalizesPhone(t *testing.T) {
	auth, _ := newAuth(t, true)
	ctx := context.Background()
	u, err := auth.Register(ctx, signUp("ada@x.com", "5551234567"))
	require.NoError(t, err)

	_, _, err = auth.UpdateProfile(ctx, u.ID, "  ", "5551234567")
	assert.ErrorIs(t, err, services.ErrNameRequired)
	_, _, err = auth.UpdateProfile(ctx, u.ID, "Ada L", "123")
	assert.ErrorIs(t, err, services.ErrInvalidPhone)

	name, phone, err := auth.UpdateProfile(ctx, u.ID, " Ada L ", "0555 987 65 43")
	require.NoError(t, err)
	assert.Equal(t, "Ada L", name)
	assert.Equal(t, "5559876543", phone)

	c, err := auth.Customers.ByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "5559876543", c.Phone)
}
