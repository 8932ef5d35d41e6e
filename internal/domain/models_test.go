package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProductFieldsOverlay(t *testing.T) {
	price, width, newWidth := 2.5, 12.0, 14.0
	units := 24
	stored := ProductFields{UnitPrice: &price, BoxWidth: &width, BoxUnits: &units, Currency: "EUR", ExtraNotes: "fragile"}

	got := stored.Overlay(ProductFields{BoxWidth: &newWidth, ExtraNotes: "glass"})
	assert.Equal(t, 2.5, *got.UnitPrice)
	assert.Equal(t, 14.0, *got.BoxWidth)
	assert.Equal(t, 24, *got.BoxUnits)
	assert.Equal(t, "EUR", got.Currency)
	assert.Equal(t, "glass", got.ExtraNotes)
	assert.Nil(t, got.PickupFee)

	assert.Equal(t, 12.0, *stored.BoxWidth, "the receiver is not modified")
	assert.Equal(t, stored, stored.Overlay(ProductFields{}))
}
