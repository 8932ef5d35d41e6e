package forms

import (
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chinasource/internal/domain"
)

func fakeUploads(n int) []Upload {
	out := make([]Upload, n)
	for i := range out {
		out[i] = Upload{
			Name: "f.jpg",
			Size: 3,
			Open: func() (io.ReadCloser, error) { return io.NopCloser(strings.NewReader("img")), nil },
		}
	}
	return out
}

func validEntry(f *ProductForm, i int) {
	_ = f.UpdateField(i, "service_type", "dropshipping")
	_ = f.UpdateField(i, "name", "Phone Case")
	_ = f.UpdateField(i, "quantity", "100")
}

func TestNewCustomerFormStartsWithOneBlankEntry(t *testing.T) {
	f := NewCustomerForm()
	require.Len(t, f.Entries, 1)
	assert.Equal(t, 1, f.Entries[0].Quantity)
	assert.Equal(t, MaxCustomerImages, f.MaxImages)
}

func TestRemoveEntryKeepsLastOne(t *testing.T) {
	f := NewCustomerForm()
	assert.False(t, f.RemoveEntry(0))
	f.AddEntry()
	_ = f.UpdateField(1, "name", "second")
	assert.True(t, f.RemoveEntry(0))
	require.Len(t, f.Entries, 1)
	assert.Equal(t, "second", f.Entries[0].Name)
	assert.False(t, f.RemoveEntry(0))
}

func TestImagePoolNeverExceedsCap(t *testing.T) {
	f := NewCustomerForm()

	require.NoError(t, f.AddURL(0, "  https://example.com/a.jpg "))
	assert.Equal(t, "https://example.com/a.jpg", f.Entries[0].URLs[0])

	added, warn, err := f.AddFiles(0, fakeUploads(5))
	require.NoError(t, err)
	assert.Equal(t, 2, added)
	assert.NotEmpty(t, warn)
	assert.Equal(t, 3, f.Entries[0].ImageCount())

	_, _, err = f.AddFiles(0, fakeUploads(1))
	assert.ErrorIs(t, err, ErrImagesFull)
	assert.ErrorIs(t, f.AddURL(0, "https://example.com/b.jpg"), ErrImagesFull)
	assert.Equal(t, 3, f.Entries[0].ImageCount())

	// removing frees a slot
	assert.True(t, f.RemoveFile(0, 0))
	require.NoError(t, f.AddURL(0, "https://example.com/b.jpg"))
	assert.Equal(t, 3, f.Entries[0].ImageCount())

	assert.ErrorIs(t, f.AddURL(0, "   "), ErrEmptyURL)
}

func TestRemoveURLFreesASlot(t *testing.T) {
	f := NewCustomerForm()
	for _, u := range []string{"https://example.com/a.jpg", "https://example.com/b.jpg", "https://example.com/c.jpg"} {
		require.NoError(t, f.AddURL(0, u))
	}
	assert.ErrorIs(t, f.AddURL(0, "https://example.com/d.jpg"), ErrImagesFull)

	assert.True(t, f.RemoveURL(0, 1))
	assert.Equal(t, []string{"https://example.com/a.jpg", "https://example.com/c.jpg"}, f.Entries[0].URLs)
	require.NoError(t, f.AddURL(0, "https://example.com/d.jpg"))

	assert.False(t, f.RemoveURL(0, 3))
	assert.False(t, f.RemoveURL(2, 0))
	f.ReadOnly = true
	assert.False(t, f.RemoveURL(0, 0))
}

func TestParseProductFormDropsMarkedURLs(t *testing.T) {
	values := map[string][]string{
		"products[0][service_type]": {string(domain.ServiceWholesale)},
		"products[0][name]":         {"Mug"},
		"products[0][quantity]":     {"10"},
		"products[0][image_urls]":   {"https://example.com/a.jpg\nhttps://example.com/b.jpg\nhttps://example.com/c.jpg"},
		"products[0][remove_url]":   {"2", "0", "0", "x"},
	}
	f, warnings := ParseProductForm(values, nil)
	assert.Empty(t, warnings)
	assert.Equal(t, []string{"https://example.com/b.jpg"}, f.Entries[0].URLs)
}

func TestValidateReportsOneBasedIndex(t *testing.T) {
	f := NewCustomerForm()
	validEntry(f, 0)
	f.AddEntry()
	_ = f.UpdateField(1, "name", "Mug")
	_ = f.UpdateField(1, "quantity", "5")

	err := f.Validate()
	var ve *ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, 2, ve.Index)
	assert.Equal(t, "ServiceType", ve.Field)
	assert.Contains(t, ve.Error(), "Product 2")
}

func TestValidateOrderServiceThenNameThenQuantity(t *testing.T) {
	f := NewCustomerForm()
	_ = f.UpdateField(0, "quantity", "0")
	_ = f.UpdateField(0, "name", "   ")

	var ve *ValidationError
	require.True(t, errors.As(f.Validate(), &ve))
	assert.Equal(t, "ServiceType", ve.Field)
	assert.Equal(t, "select a service type", ve.Message)

	_ = f.UpdateField(0, "service_type", "courier")
	require.True(t, errors.As(f.Validate(), &ve))
	assert.Equal(t, "ServiceType", ve.Field)
	assert.Equal(t, "service type must be one of: dropshipping amazon-fba amazon-fbm wholesale", ve.Message)

	_ = f.UpdateField(0, "service_type", "wholesale")
	require.True(t, errors.As(f.Validate(), &ve))
	assert.Equal(t, "Name", ve.Field)
	assert.Equal(t, "enter a product name", ve.Message)

	_ = f.UpdateField(0, "name", "Lamp")
	require.True(t, errors.As(f.Validate(), &ve))
	assert.Equal(t, "Quantity", ve.Field)
	assert.Equal(t, "quantity must be at least 1", ve.Message)

	_ = f.UpdateField(0, "quantity", "1")
	assert.NoError(t, f.Validate())
}

func TestValidateRejectsUnknownServiceType(t *testing.T) {
	f := NewCustomerForm()
	validEntry(f, 0)
	_ = f.UpdateField(0, "service_type", "teleport")
	var ve *ValidationError
	require.True(t, errors.As(f.Validate(), &ve))
	assert.Equal(t, 1, ve.Index)
}

func TestResetAndReadOnly(t *testing.T) {
	f := NewCustomerForm()
	validEntry(f, 0)
	f.AddEntry()
	f.Reset()
	require.Len(t, f.Entries, 1)
	assert.Equal(t, domain.ServiceType(""), f.Entries[0].ServiceType)

	ro := NewCustomerForm()
	validEntry(ro, 0)
	ro.ReadOnly = true
	ro.Reset()
	assert.Equal(t, "Phone Case", ro.Entries[0].Name)
	assert.ErrorIs(t, ro.UpdateField(0, "name", "x"), ErrReadOnly)
	ro.AddEntry()
	assert.Len(t, ro.Entries, 1)
}

func TestUpdateFieldErrors(t *testing.T) {
	f := NewCustomerForm()
	assert.ErrorIs(t, f.UpdateField(3, "name", "x"), ErrNoEntry)
	assert.ErrorIs(t, f.UpdateField(0, "colour", "x"), ErrBadField)
	require.NoError(t, f.UpdateField(0, "quantity", "abc"))
	assert.Equal(t, 0, f.Entries[0].Quantity)
}

func TestParseProductForm(t *testing.T) {
	values := map[string][]string{
		"products[1][service_type]": {"amazon-fba"},
		"products[1][name]":         {"Lamp"},
		"products[1][quantity]":     {"3"},
		"products[0][service_type]": {"dropshipping"},
		"products[0][name]":         {"Phone Case"},
		"products[0][quantity]":     {"100"},
		"products[0][image_urls]":   {"https://a/1.jpg\nhttps://a/2.jpg\n\nhttps://a/3.jpg\nhttps://a/4.jpg"},
		"csrf":                      {"tok"},
	}
	f, warnings := ParseProductForm(values, nil)
	require.Len(t, f.Entries, 2)
	assert.Equal(t, "Phone Case", f.Entries[0].Name)
	assert.Equal(t, "Lamp", f.Entries[1].Name)
	assert.Len(t, f.Entries[0].URLs, 3)
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "Product 1")
	assert.NoError(t, f.Validate())
}

func TestParseProductFieldsIsLenient(t *testing.T) {
	vals := map[string]string{
		"product_width": "12.5",
		"box_units":     "abc",
		"box_count":     "4",
		"unit_price":    "",
		"currency":      "",
		"extra_notes":   "  fragile ",
	}
	pf := ParseProductFields(func(k string) string { return vals[k] })
	require.NotNil(t, pf.ProductWidth)
	assert.Equal(t, 12.5, *pf.ProductWidth)
	assert.Nil(t, pf.BoxUnits)
	require.NotNil(t, pf.BoxCount)
	assert.Equal(t, 4, *pf.BoxCount)
	assert.Nil(t, pf.UnitPrice)
	assert.Empty(t, pf.Currency)
	assert.Equal(t, "fragile", pf.ExtraNotes)
}
