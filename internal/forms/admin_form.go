package forms

import (
	"mime/multipart"
	"strconv"
	"strings"

	"chinasource/internal/domain"
)

type RowMode string

const (
	RowNew      RowMode = "new"
	RowExisting RowMode = "existing"
)

// DefaultAdminCount is the quantity a new admin row gets when no count is
// entered.
const DefaultAdminCount = 250

// OfferRow is one line of an admin-created offer: either a new product or an
// existing product of the same customer moved onto the new offer.
type OfferRow struct {
	Mode      RowMode
	ProductID string
	Entry     ProductEntry
	Fields    domain.ProductFields
	// CountSet reports whether Entry.Quantity was entered rather than
	// defaulted. An attach row without it keeps the stored count.
	CountSet bool
	// ExistingImages are the already resolved URLs of an attached product.
	ExistingImages []string
}

// OfferForm is the admin "create offer for customer" form. Rows may be
// removed down to zero; submission requires at least one.
type OfferForm struct {
	Rows      []OfferRow
	MaxImages int
}

func blankRow() OfferRow {
	return OfferRow{
		Mode:  RowNew,
		Entry: ProductEntry{Quantity: DefaultAdminCount},
	}
}

func NewOfferForm() *OfferForm {
	return &OfferForm{Rows: []OfferRow{blankRow()}, MaxImages: MaxAdminImages}
}

func (f *OfferForm) AddRow() { f.Rows = append(f.Rows, blankRow()) }

func (f *OfferForm) RemoveRow(i int) bool {
	if i < 0 || i >= len(f.Rows) {
		return false
	}
	f.Rows = append(f.Rows[:i], f.Rows[i+1:]...)
	return true
}

// Attach switches row i to an existing product and replaces its fields with
// the stored ones.
func (f *OfferForm) Attach(i int, p domain.Product) bool {
	if i < 0 || i >= len(f.Rows) {
		return false
	}
	f.Rows[i] = attachedRow(p)
	return true
}

func attachedRow(p domain.Product) OfferRow {
	return OfferRow{
		Mode:      RowExisting,
		ProductID: p.ID,
		Entry: ProductEntry{
			ServiceType: p.ServiceType,
			Name:        p.Name,
			Description: p.Explanation,
			Quantity:    p.Count,
		},
		Fields:         p.Fields,
		CountSet:       true,
		ExistingImages: p.ImageURLs(),
	}
}

// AttachProducts replaces the rows with one attach row per id found in
// products, in id order. Unknown ids are ignored; when none match the form
// is left as it was.
func (f *OfferForm) AttachProducts(products []domain.Product, ids []string) {
	byID := make(map[string]domain.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}
	var rows []OfferRow
	for _, id := range ids {
		p, ok := byID[id]
		if !ok {
			continue
		}
		rows = append(rows, attachedRow(p))
	}
	if len(rows) > 0 {
		f.Rows = rows
	}
}

// Detach turns row i back into a blank new-product row.
func (f *OfferForm) Detach(i int) bool {
	if i < 0 || i >= len(f.Rows) {
		return false
	}
	f.Rows[i] = blankRow()
	return true
}

// AddFiles stages files on a new-product row, truncating to the free slots.
func (f *OfferForm) AddFiles(i int, files []Upload) (int, string, error) {
	if i < 0 || i >= len(f.Rows) {
		return 0, "", ErrNoEntry
	}
	pf := ProductForm{Entries: []ProductEntry{f.Rows[i].Entry}, MaxImages: f.MaxImages}
	n, warn, err := pf.AddFiles(0, files)
	f.Rows[i].Entry = pf.Entries[0]
	return n, warn, err
}

// Validate requires at least one row, a selected product on attach rows and
// a name on new rows.
func (f *OfferForm) Validate() error {
	if len(f.Rows) == 0 {
		return &ValidationError{Index: 1, Field: "Rows", Message: "add at least one product"}
	}
	for i, r := range f.Rows {
		switch r.Mode {
		case RowExisting:
			if r.ProductID == "" {
				return &ValidationError{Index: i + 1, Field: "ProductID", Message: "select a product"}
			}
		default:
			if strings.TrimSpace(r.Entry.Name) == "" {
				return &ValidationError{Index: i + 1, Field: "Name", Message: "enter a product name"}
			}
		}
		if r.CountSet && r.Entry.Quantity < 1 {
			return &ValidationError{Index: i + 1, Field: "Quantity", Message: "quantity must be at least 1"}
		}
	}
	return nil
}

// ParseOfferForm rebuilds the admin form from rows[i][field] keys.
func ParseOfferForm(values map[string][]string, files map[string][]*multipart.FileHeader) (*OfferForm, []string) {
	f := &OfferForm{MaxImages: MaxAdminImages}
	vals, fh := collect("rows", values, files)
	var warnings []string
	for _, idx := range sortedKeys(vals) {
		v := vals[idx]
		row := blankRow()
		if RowMode(first(v, "mode")) == RowExisting {
			row.Mode = RowExisting
			row.ProductID = strings.TrimSpace(first(v, "product_id"))
		}
		row.Entry.ServiceType = domain.ServiceType(strings.TrimSpace(first(v, "service_type")))
		row.Entry.Name = strings.TrimSpace(first(v, "name"))
		row.Entry.Description = first(v, "explanation")
		if c := strings.TrimSpace(first(v, "count")); c != "" {
			n, err := strconv.Atoi(c)
			if err != nil {
				n = 0
			}
			row.Entry.Quantity = n
			row.CountSet = true
		}
		row.Fields = ParseProductFields(func(k string) string { return first(v, k) })
		f.Rows = append(f.Rows, row)

		i := len(f.Rows) - 1
		if row.Mode == RowNew {
			if ups := uploadsOf(fh[idx]); len(ups) > 0 {
				if _, warn, err := f.AddFiles(i, ups); err != nil {
					warnings = append(warnings, "Row "+strconv.Itoa(i+1)+": "+err.Error())
				} else if warn != "" {
					warnings = append(warnings, "Row "+strconv.Itoa(i+1)+": "+warn)
				}
			}
		}
	}
	return f, warnings
}
