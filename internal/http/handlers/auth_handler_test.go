package handlers_test

import (
	"encoding/json"
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chinasource/internal/services"
)

func TestLoginSetsSessionAndLogs(t *testing.T) {
	h := newHarness(t)
	h.account(t, "ayse@example.com", "5551234567")

	resp := h.post(t, "/login", "", url.Values{"email": {"ayse@example.com"}, "password": {"wrong-pass"}})
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Contains(t, body(t, resp), "Invalid email or password")
	assert.True(t, h.logged("auth.login.fail"))

	resp = h.post(t, "/login", "", url.Values{"email": {"ayse@example.com"}, "password": {password}, "remember": {"on"}})
	require.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/dashboard", resp.Header.Get("Location"))
	sid := cookie(resp, "sid")
	require.NotNil(t, sid)
	assert.True(t, sid.HttpOnly)
	assert.False(t, sid.Expires.IsZero())
	assert.True(t, h.logged("auth.login.success"))

	resp = h.get(t, "/dashboard", sid.Value)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestLoginIsRateLimited(t *testing.T) {
	h := newHarness(t)
	form := url.Values{"email": {"nobody@example.com"}, "password": {"whatever1"}}
	for i := 0; i < 3; i++ {
		resp := h.post(t, "/login", "", form)
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	}
	resp := h.post(t, "/login", "", form)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.True(t, h.logged("rate.login.hit"))
}

func TestSignUpSignsInWhenConfirmedAutomatically(t *testing.T) {
	h := newHarness(t)
	resp := h.post(t, "/signup", "", url.Values{
		"name":     {"Mehmet Kaya"},
		"email":    {"mehmet@example.com"},
		"phone":    {"0555 123 45 67"},
		"password": {"secret12"},
		"confirm":  {"secret12"},
	})
	require.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/dashboard", resp.Header.Get("Location"))
	require.NotNil(t, cookie(resp, "sid"))
	assert.True(t, h.logged("auth.signup"))
}

func TestSignUpRejectsMismatchedPasswords(t *testing.T) {
	h := newHarness(t)
	resp := h.post(t, "/signup", "", url.Values{
		"name":     {"Mehmet Kaya"},
		"email":    {"mehmet@example.com"},
		"phone":    {"05551234567"},
		"password": {"secret12"},
		"confirm":  {"secret13"},
	})
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	html := body(t, resp)
	assert.Contains(t, html, `value="mehmet@example.com"`)
	assert.Nil(t, cookie(resp, "sid"))
}

func TestLogoutEndsSession(t *testing.T) {
	h := newHarness(t)
	_, sid := h.account(t, "ayse@example.com", "5551234567")

	resp := h.post(t, "/logout", sid, nil)
	require.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/", resp.Header.Get("Location"))

	resp = h.get(t, "/dashboard", sid)
	require.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/login", resp.Header.Get("Location"))
}

func TestSessionHandoffReportsFragmentErrors(t *testing.T) {
	h := newHarness(t)
	resp := h.post(t, "/auth/session", "", url.Values{
		"error":             {"access_denied"},
		"error_description": {"Email link is invalid or has expired"},
	}, "Accept", "application/json")

	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.JSONEq(t, `{"error":"Email link is invalid or has expired"}`, body(t, resp))
	assert.True(t, h.logged("auth.oauth.error"))
}

func TestSessionHandoffRejectsBadToken(t *testing.T) {
	h := newHarness(t)
	resp := h.post(t, "/auth/session", "", url.Values{"access_token": {"not-a-token"}}, "Accept", "application/json")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Nil(t, cookie(resp, "sid"))
}

func TestRecoveryHandoffOnlyAllowsPasswordReset(t *testing.T) {
	h := newHarness(t)
	id, _ := h.account(t, "ayse@example.com", "5551234567")
	access, err := services.NewTokens(h.cfg.BackendKey).Recovery(id)
	require.NoError(t, err)

	resp := h.post(t, "/auth/session", "", url.Values{"access_token": {access}, "type": {"recovery"}}, "Accept", "application/json")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var out struct {
		Redirect string `json:"redirect"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, "/reset", out.Redirect)
	sid := cookie(resp, "sid")
	require.NotNil(t, sid)

	// A recovery session is not a sign-in.
	resp = h.get(t, "/dashboard", sid.Value)
	require.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/login", resp.Header.Get("Location"))

	resp = h.get(t, "/reset", sid.Value)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body(t, resp), `name="password"`)

	resp = h.post(t, "/reset", sid.Value, url.Values{"password": {"newsecret1"}, "confirm": {"newsecret1"}})
	require.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/dashboard", resp.Header.Get("Location"))

	resp = h.get(t, "/dashboard", sid.Value)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = h.post(t, "/login", "", url.Values{"email": {"ayse@example.com"}, "password": {"newsecret1"}})
	assert.Equal(t, http.StatusFound, resp.StatusCode)
}

func TestResetWithoutRecoverySessionIsRefused(t *testing.T) {
	h := newHarness(t)
	_, sid := h.account(t, "ayse@example.com", "5551234567")

	resp := h.post(t, "/reset", sid, url.Values{"password": {"newsecret1"}, "confirm": {"newsecret1"}})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.True(t, h.logged("auth.reset.invalid_session"))
}
