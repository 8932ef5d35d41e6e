package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBucketFor(t *testing.T) {
	cases := map[string]Bucket{
		"Hazır":          BucketReady,
		"hazır ":         BucketReady,
		"  HAZIR":        BucketPending, // dotless I does not fold to ı
		"iletim alındı":  BucketAccepted,
		" Reddedildi ":   BucketRejected,
		"draft":          BucketPending,
		"":               BucketPending,
		"hazırlanıyor":   BucketPending,
		"something else": BucketPending,
	}
	for in, want := range cases {
		assert.Equal(t, want, BucketFor(in), "status %q", in)
	}
}

func TestGroupByBucketRecomputesFromStatus(t *testing.T) {
	offers := []Offer{{ID: "a", Status: "draft"}, {ID: "b", Status: "hazır"}, {ID: "c", Status: "reddedildi"}}
	g := GroupByBucket(offers)
	require.Len(t, g[BucketPending], 1)
	require.Len(t, g[BucketReady], 1)
	require.Len(t, g[BucketRejected], 1)
	assert.Empty(t, g[BucketAccepted])

	offers[0].Status = StatusReady
	g = GroupByBucket(offers)
	assert.Len(t, g[BucketReady], 2)
	assert.Empty(t, g[BucketPending])
}

func TestStatusLabelFallsBackToRaw(t *testing.T) {
	assert.Equal(t, "Ready", StatusLabel(" Hazır"))
	assert.Equal(t, "Pending", StatusLabel(""))
	assert.Equal(t, "gönderildi", StatusLabel("gönderildi"))
}

func TestStatusDrafts(t *testing.T) {
	d := NewStatusDrafts([]Offer{{ID: "o1", Status: "draft"}})
	assert.False(t, d.CanSave("o1"))
	assert.Equal(t, "draft", d.Draft("o1"))

	d.Stage("o1", "draft")
	assert.False(t, d.CanSave("o1"), "draft equal to fetched value is not saveable")

	d.Stage("o1", StatusReady)
	assert.True(t, d.CanSave("o1"))
	assert.Equal(t, StatusReady, d.Draft("o1"))

	d.Clear("o1")
	assert.Equal(t, "draft", d.Draft("o1"))
}

func TestFilterOffers(t *testing.T) {
	offers := []Offer{
		{ID: "1", Status: "beklemede", OwnerName: "Ayse Yilmaz", OwnerEmail: "ayse@x.com"},
		{ID: "2", Status: "gonderildi", OwnerName: "Mehmet", OwnerEmail: "m@x.com"},
		{ID: "3", Status: "tamamlandi", OwnerName: "Zeynep", OwnerEmail: "zeynep@y.com"},
		{ID: "4", Status: "Beklemede", OwnerName: "Ali", OwnerEmail: "ali@y.com"},
	}

	ids := func(os []Offer) []string {
		var out []string
		for _, o := range os {
			out = append(out, o.ID)
		}
		return out
	}

	assert.Equal(t, []string{"1", "2", "3", "4"}, ids(FilterOffers(offers, OfferFilter{Category: CategoryAll})))
	assert.Equal(t, []string{"1", "4"}, ids(FilterOffers(offers, OfferFilter{Category: CategoryPending})))
	assert.Equal(t, []string{"2"}, ids(FilterOffers(offers, OfferFilter{Category: CategorySent})))
	assert.Equal(t, []string{"3"}, ids(FilterOffers(offers, OfferFilter{Category: CategoryCompleted})))

	// exact status match composes with the category filter
	assert.Equal(t, []string{"4"}, ids(FilterOffers(offers, OfferFilter{Category: CategoryPending, Status: "Beklemede"})))

	// search bypasses both status filters
	got := FilterOffers(offers, OfferFilter{Category: CategoryCompleted, Status: "beklemede", Search: "Y.COM"})
	assert.Equal(t, []string{"3", "4"}, ids(got))
	assert.Equal(t, []string{"1"}, ids(FilterOffers(offers, OfferFilter{Search: "yilmaz"})))
}

func TestDistinctStatuses(t *testing.T) {
	offers := []Offer{{Status: "hazır"}, {Status: ""}, {Status: "beklemede"}, {Status: "hazır"}}
	assert.Equal(t, []string{"beklemede", "draft", "hazır"}, DistinctStatuses(offers))
}

func TestOfferTotalsChargePickupOnce(t *testing.T) {
	price := 2.5
	fee := 40.0
	o := Offer{Products: []Product{
		{Count: 100, Fields: ProductFields{UnitPrice: &price, PickupFee: &fee}},
		{Count: 10, Fields: ProductFields{UnitPrice: &price, PickupFee: &fee}},
	}}
	assert.InDelta(t, 290.0, o.LineTotal(0), 1e-9)
	assert.InDelta(t, 25.0, o.LineTotal(1), 1e-9)
	assert.InDelta(t, 315.0, o.Total(), 1e-9)
	assert.Equal(t, 0.0, o.LineTotal(5))

	offerFee := 10.0
	o2 := Offer{PickupFee: &offerFee, Products: []Product{{Count: 1}}}
	require.NotNil(t, o2.EffectivePickupFee())
	assert.InDelta(t, 10.0, o2.Total(), 1e-9)
}
