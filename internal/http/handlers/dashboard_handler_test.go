package handlers_test

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chinasource/internal/domain"
)

func submitFields(name string) map[string]string {
	return map[string]string{
		"products[0][service_type]": string(domain.ServiceAmazonFBA),
		"products[0][name]":         name,
		"products[0][description]":  "Bamboo, 30x20 cm",
		"products[0][quantity]":     "300",
	}
}

func TestNewRequestTabNeedsPhone(t *testing.T) {
	h := newHarness(t)
	id, sid := h.account(t, "ayse@example.com", "")

	resp := h.get(t, "/dashboard?tab=new", sid)
	require.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/dashboard?tab=settings", resp.Header.Get("Location"))

	resp = h.postMultipart(t, "/dashboard/offers", sid, submitFields("Cutting board"))
	require.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/dashboard?tab=settings", resp.Header.Get("Location"))
	require.NotNil(t, cookie(resp, "flash"))

	offers, err := h.deps.Offers.ListForCustomer(context.Background(), id)
	require.NoError(t, err)
	assert.Empty(t, offers)
}

func TestSettingsSavesPhone(t *testing.T) {
	h := newHarness(t)
	id, sid := h.account(t, "ayse@example.com", "")

	resp := h.post(t, "/dashboard/settings", sid, url.Values{"name": {"Ayse Yilmaz"}, "phone": {"+90 555 123 45 67"}})
	require.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/dashboard?tab=settings", resp.Header.Get("Location"))

	c, err := h.deps.Offers.Customer(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "5551234567", c.Phone)
	assert.Equal(t, "Ayse Yilmaz", c.Name)

	resp = h.get(t, "/dashboard?tab=new", sid)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestSubmitStoresOfferWithImages(t *testing.T) {
	h := newHarness(t)
	id, sid := h.account(t, "ayse@example.com", "5551234567")

	fields := submitFields("Cutting board")
	fields["products[0][image_urls]"] = "https://example.com/board.jpg"
	resp := h.postMultipart(t, "/dashboard/offers", sid, fields,
		upload{field: "products[0][images]", name: "board.jpg", body: "jpeg-bytes"})
	require.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/dashboard?tab=pending", resp.Header.Get("Location"))
	assert.True(t, h.logged("offer.submit"))

	offers, err := h.deps.Offers.ListForCustomer(context.Background(), id)
	require.NoError(t, err)
	require.Len(t, offers, 1)
	o := offers[0]
	assert.Equal(t, domain.BucketPending, o.Bucket())
	require.Len(t, o.Products, 1)
	p := o.Products[0]
	assert.Equal(t, "Cutting board", p.Name)
	assert.Equal(t, 300, p.Count)
	require.Len(t, p.Images, 2)
	assert.Equal(t, "https://example.com/board.jpg", p.Images[1].URL)

	resp = h.get(t, "/dashboard?tab=pending", sid)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body(t, resp), o.Title)

	resp = h.get(t, "/dashboard/offers/"+o.ID, sid)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body(t, resp), "Cutting board")

	// The uploaded image is reachable through its signed URL only.
	signed, err := url.Parse(p.Images[0].URL)
	require.NoError(t, err)
	resp = h.get(t, signed.RequestURI(), "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "jpeg-bytes", body(t, resp))

	q := signed.Query()
	q.Set("token", q.Get("token")+"x")
	resp = h.get(t, signed.Path+"?"+q.Encode(), "")
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.True(t, h.logged("storage.signature.reject"))
}

func TestSubmitDropsMarkedLinks(t *testing.T) {
	h := newHarness(t)
	id, sid := h.account(t, "ayse@example.com", "5551234567")

	fields := submitFields("Cutting board")
	fields["products[0][image_urls]"] = "https://example.com/a.jpg\nhttps://example.com/b.jpg"
	fields["products[0][remove_url]"] = "0"
	resp := h.postMultipart(t, "/dashboard/offers", sid, fields)
	require.Equal(t, http.StatusFound, resp.StatusCode)

	offers, err := h.deps.Offers.ListForCustomer(context.Background(), id)
	require.NoError(t, err)
	require.Len(t, offers, 1)
	require.Len(t, offers[0].Products[0].Images, 1)
	assert.Equal(t, "https://example.com/b.jpg", offers[0].Products[0].Images[0].URL)
}

func TestSubmitValidationKeepsTypedValues(t *testing.T) {
	h := newHarness(t)
	_, sid := h.account(t, "ayse@example.com", "5551234567")

	fields := submitFields("Cutting board")
	delete(fields, "products[0][service_type]")
	resp := h.postMultipart(t, "/dashboard/offers", sid, fields)
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	html := body(t, resp)
	assert.Contains(t, html, "Product 1")
	assert.Contains(t, html, "Cutting board")
}

func TestOfferViewIsScopedToOwner(t *testing.T) {
	h := newHarness(t)
	_, owner := h.account(t, "ayse@example.com", "5551234567")
	_, other := h.account(t, "mehmet@example.com", "5559876543")

	resp := h.postMultipart(t, "/dashboard/offers", owner, submitFields("Cutting board"))
	require.Equal(t, http.StatusFound, resp.StatusCode)
	admin, _ := h.deps.Admin.ListOffers(context.Background())
	require.Len(t, admin, 1)

	resp = h.get(t, "/dashboard/offers/"+admin[0].ID, other)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.True(t, h.logged("offer.view.denied"))
}

func TestMalformedIDsAreNotFound(t *testing.T) {
	h := newHarness(t)
	_, sid := h.account(t, "ayse@example.com", "5551234567")

	resp := h.get(t, "/dashboard/offers/"+strings.Repeat("a", 65), sid)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.True(t, h.logged("request.id.invalid"))
	assert.False(t, h.logged("offer.view.denied"))
}

func TestMarkReadAnswersJSON(t *testing.T) {
	h := newHarness(t)
	id, sid := h.account(t, "ayse@example.com", "5551234567")
	_, other := h.account(t, "mehmet@example.com", "5559876543")
	ctx := context.Background()
	n, err := h.deps.Notifications.Notify(ctx, id, "", "Offer ready", "Your offer is ready.", domain.NotifySuccess)
	require.NoError(t, err)
	_, err = h.deps.Notifications.Notify(ctx, id, "", "Second", "", domain.NotifyInfo)
	require.NoError(t, err)

	resp := h.post(t, "/dashboard/notifications/"+n.ID+"/read", other, nil, "Accept", "application/json")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = h.post(t, "/dashboard/notifications/"+n.ID+"/read", sid, nil, "Accept", "application/json")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"ok":true,"unread":1}`, body(t, resp))

	resp = h.get(t, "/dashboard", sid)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body(t, resp), "Offer ready")
}

func TestStorageRejectsForeignBucketAndTraversal(t *testing.T) {
	h := newHarness(t)
	for _, p := range []string{
		"/storage/other-bucket/a.jpg?token=x",
		"/storage/product-images/..%2F..%2Fetc%2Fpasswd?token=x",
		"/storage/product-images/missing.jpg",
	} {
		resp := h.get(t, p, "")
		assert.NotEqual(t, http.StatusOK, resp.StatusCode, p)
		assert.True(t, resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusForbidden, p)
	}
	assert.True(t, h.logged("storage.traversal.block"))
}

func TestStreamEndpointRequiresSignIn(t *testing.T) {
	h := newHarness(t)
	resp := h.get(t, "/dashboard/notifications/stream", "")
	require.Equal(t, http.StatusFound, resp.StatusCode)
	assert.True(t, strings.HasSuffix(resp.Header.Get("Location"), "/login"))
}
