package forms

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"chinasource/internal/domain"
	"chinasource/internal/validate"
)

const (
	MaxCustomerImages = 3
	MaxAdminImages    = 5
)

var (
	ErrImagesFull = errors.New("image limit reached")
	ErrEmptyURL   = errors.New("image url is empty")
	ErrNoEntry    = errors.New("no such product entry")
	ErrReadOnly   = errors.New("form is read-only")
	ErrBadField   = errors.New("unknown field")
)

// Upload is a locally selected file waiting to be stored.
type Upload struct {
	Name        string
	ContentType string
	Size        int64
	Open        func() (io.ReadCloser, error)
}

type ProductEntry struct {
	ServiceType domain.ServiceType `validate:"required,oneof=dropshipping amazon-fba amazon-fbm wholesale"`
	Name        string             `validate:"required"`
	Description string
	Quantity    int      `validate:"gte=1"`
	Files       []Upload `validate:"-"`
	URLs        []string `validate:"-"`
}

func (e ProductEntry) ImageCount() int { return len(e.Files) + len(e.URLs) }

func blankEntry() ProductEntry { return ProductEntry{Quantity: 1} }

// ValidationError reports the first invalid entry, 1-based.
type ValidationError struct {
	Index   int
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("Product %d: %s", e.Index, e.Message)
}

// ProductForm is the ordered list of product entries of one submission.
type ProductForm struct {
	Entries    []ProductEntry
	MaxImages  int
	MinEntries int
	ReadOnly   bool
}

func NewCustomerForm() *ProductForm {
	return &ProductForm{
		Entries:    []ProductEntry{blankEntry()},
		MaxImages:  MaxCustomerImages,
		MinEntries: 1,
	}
}

func (f *ProductForm) entry(i int) (*ProductEntry, error) {
	if i < 0 || i >= len(f.Entries) {
		return nil, ErrNoEntry
	}
	return &f.Entries[i], nil
}

func (f *ProductForm) AddEntry() {
	if f.ReadOnly {
		return
	}
	f.Entries = append(f.Entries, blankEntry())
}

// RemoveEntry reports whether an entry was removed. It keeps at least
// MinEntries entries.
func (f *ProductForm) RemoveEntry(i int) bool {
	if f.ReadOnly || len(f.Entries) <= f.MinEntries || i < 0 || i >= len(f.Entries) {
		return false
	}
	f.Entries = append(f.Entries[:i], f.Entries[i+1:]...)
	return true
}

func (f *ProductForm) UpdateField(i int, field, value string) error {
	if f.ReadOnly {
		return ErrReadOnly
	}
	e, err := f.entry(i)
	if err != nil {
		return err
	}
	switch field {
	case "service_type":
		e.ServiceType = domain.ServiceType(strings.TrimSpace(value))
	case "name":
		e.Name = value
	case "description":
		e.Description = value
	case "quantity":
		n, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil {
			n = 0
		}
		e.Quantity = n
	default:
		return fmt.Errorf("%w: %s", ErrBadField, field)
	}
	return nil
}

// AddFiles appends files up to the free image slots. A batch larger than the
// free space is truncated and a warning is returned.
func (f *ProductForm) AddFiles(i int, files []Upload) (int, string, error) {
	if f.ReadOnly {
		return 0, "", ErrReadOnly
	}
	e, err := f.entry(i)
	if err != nil {
		return 0, "", err
	}
	free := f.MaxImages - e.ImageCount()
	if free <= 0 {
		return 0, "", ErrImagesFull
	}
	var warning string
	if len(files) > free {
		warning = fmt.Sprintf("Only %d more image(s) can be added; the rest were ignored.", free)
		files = files[:free]
	}
	e.Files = append(e.Files, files...)
	return len(files), warning, nil
}

func (f *ProductForm) AddURL(i int, raw string) error {
	if f.ReadOnly {
		return ErrReadOnly
	}
	e, err := f.entry(i)
	if err != nil {
		return err
	}
	u := strings.TrimSpace(raw)
	if u == "" {
		return ErrEmptyURL
	}
	if e.ImageCount() >= f.MaxImages {
		return ErrImagesFull
	}
	e.URLs = append(e.URLs, u)
	return nil
}

func (f *ProductForm) RemoveFile(i, j int) bool {
	e, err := f.entry(i)
	if err != nil || f.ReadOnly || j < 0 || j >= len(e.Files) {
		return false
	}
	e.Files = append(e.Files[:j], e.Files[j+1:]...)
	return true
}

func (f *ProductForm) RemoveURL(i, j int) bool {
	e, err := f.entry(i)
	if err != nil || f.ReadOnly || j < 0 || j >= len(e.URLs) {
		return false
	}
	e.URLs = append(e.URLs[:j], e.URLs[j+1:]...)
	return true
}

// requiredMessages word the missing-value failures; other rule failures are
// spelled out by validate.FormatValidationError.
var requiredMessages = map[string]string{
	"ServiceType": "select a service type",
	"Name":        "enter a product name",
}

var fieldLabels = map[string]string{
	"ServiceType": "service type",
	"Name":        "name",
	"Quantity":    "quantity",
}

// Validate checks entries in order: service type, then name, then quantity.
// It returns the first failure as a *ValidationError.
func (f *ProductForm) Validate() error {
	if len(f.Entries) == 0 {
		return &ValidationError{Index: 1, Field: "Entries", Message: "add at least one product"}
	}
	for i, e := range f.Entries {
		check := e
		check.Name = strings.TrimSpace(e.Name)
		err := validate.V.Struct(check)
		if err == nil {
			continue
		}
		var ve validator.ValidationErrors
		if !errors.As(err, &ve) || len(ve) == 0 {
			return err
		}
		field := ve[0].Field()
		msg, ok := requiredMessages[field]
		if !ok || ve[0].Tag() != "required" {
			msg = fieldLabels[field] + " " + validate.FormatValidationError(ve[:1])[field]
		}
		return &ValidationError{Index: i + 1, Field: field, Message: msg}
	}
	return nil
}

// Reset returns the form to one blank entry.
func (f *ProductForm) Reset() {
	if f.ReadOnly {
		return
	}
	f.Entries = []ProductEntry{blankEntry()}
}
