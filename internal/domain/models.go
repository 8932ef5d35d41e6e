package domain

import (
	"strings"
	"time"
)

type ServiceType string

const (
	ServiceDropshipping ServiceType = "dropshipping"
	ServiceAmazonFBA    ServiceType = "amazon-fba"
	ServiceAmazonFBM    ServiceType = "amazon-fbm"
	ServiceWholesale    ServiceType = "wholesale"
)

var ServiceTypes = []ServiceType{ServiceDropshipping, ServiceAmazonFBA, ServiceAmazonFBM, ServiceWholesale}

func (s ServiceType) Valid() bool {
	for _, st := range ServiceTypes {
		if s == st {
			return true
		}
	}
	return false
}

func (s ServiceType) Label() string {
	switch s {
	case ServiceDropshipping:
		return "Dropshipping"
	case ServiceAmazonFBA:
		return "Amazon FBA"
	case ServiceAmazonFBM:
		return "Amazon FBM"
	case ServiceWholesale:
		return "Wholesale"
	}
	return string(s)
}

const DefaultCurrency = "USD"

// NormalizeCurrency upper-cases a currency code and defaults it to USD.
func NormalizeCurrency(c string) string {
	c = strings.ToUpper(strings.TrimSpace(c))
	if c == "" {
		return DefaultCurrency
	}
	return c
}

type ImageSource string

const (
	SourceUpload ImageSource = "upload"
	SourceURL    ImageSource = "url"
)

type ProductImage struct {
	ID         string
	ProductID  string
	CustomerID string
	Path       string
	SortOrder  int
	Source     ImageSource
	// URL is the viewable address: Path itself for external links, or a signed URL.
	URL string
}

// ProductFields is the admin-editable measurement and pricing set. Every
// value is independently optional.
type ProductFields struct {
	ProductWidth        *float64
	ProductLength       *float64
	ProductHeight       *float64
	ProductWeight       *float64
	ProductPackage      string
	BoxWidth            *float64
	BoxLength           *float64
	BoxHeight           *float64
	BoxWeight           *float64
	BoxVolumetricWeight *float64
	BoxUnits            *int
	BoxCount            *int
	UnitPrice           *float64
	PickupFee           *float64
	Currency            string
	ExtraNotes          string
}

// Overlay returns f with every field that is set in o taken from o.
func (f ProductFields) Overlay(o ProductFields) ProductFields {
	pickF := func(dst **float64, v *float64) {
		if v != nil {
			*dst = v
		}
	}
	pickS := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	pickF(&f.ProductWidth, o.ProductWidth)
	pickF(&f.ProductLength, o.ProductLength)
	pickF(&f.ProductHeight, o.ProductHeight)
	pickF(&f.ProductWeight, o.ProductWeight)
	pickS(&f.ProductPackage, o.ProductPackage)
	pickF(&f.BoxWidth, o.BoxWidth)
	pickF(&f.BoxLength, o.BoxLength)
	pickF(&f.BoxHeight, o.BoxHeight)
	pickF(&f.BoxWeight, o.BoxWeight)
	pickF(&f.BoxVolumetricWeight, o.BoxVolumetricWeight)
	if o.BoxUnits != nil {
		f.BoxUnits = o.BoxUnits
	}
	if o.BoxCount != nil {
		f.BoxCount = o.BoxCount
	}
	pickF(&f.UnitPrice, o.UnitPrice)
	pickF(&f.PickupFee, o.PickupFee)
	pickS(&f.Currency, o.Currency)
	pickS(&f.ExtraNotes, o.ExtraNotes)
	return f
}

type Product struct {
	ID          string
	OfferID     string
	CustomerID  string
	Name        string
	Explanation string
	Count       int
	ServiceType ServiceType
	// Position is the row order within the offer.
	Position  int
	Fields    ProductFields
	CreatedAt time.Time
	Images    []ProductImage
}

// ImageURLs returns the resolved URLs in sort order.
func (p Product) ImageURLs() []string {
	out := make([]string, 0, len(p.Images))
	for _, im := range p.Images {
		if im.URL != "" {
			out = append(out, im.URL)
		}
	}
	return out
}

type Offer struct {
	ID         string
	CustomerID string
	CreatedBy  string
	Title      string
	OwnerName  string
	OwnerEmail string
	OwnerPhone string
	Status     string
	Currency   string
	PickupFee  *float64
	CreatedAt  time.Time
	Products   []Product
}

func (o Offer) Bucket() Bucket { return BucketFor(o.Status) }

// EffectivePickupFee is charged once per offer. The first product's fee wins
// over the offer-level value.
func (o Offer) EffectivePickupFee() *float64 {
	if len(o.Products) > 0 && o.Products[0].Fields.PickupFee != nil {
		return o.Products[0].Fields.PickupFee
	}
	return o.PickupFee
}

// LineTotal is count*unit price for product i, plus the pickup fee on the
// first line only.
func (o Offer) LineTotal(i int) float64 {
	if i < 0 || i >= len(o.Products) {
		return 0
	}
	p := o.Products[i]
	var total float64
	if p.Fields.UnitPrice != nil {
		total = float64(p.Count) * *p.Fields.UnitPrice
	}
	if i == 0 {
		if fee := o.EffectivePickupFee(); fee != nil {
			total += *fee
		}
	}
	return total
}

func (o Offer) Total() float64 {
	var sum float64
	for i := range o.Products {
		sum += o.LineTotal(i)
	}
	return sum
}

type NotificationType string

const (
	NotifyInfo    NotificationType = "info"
	NotifySuccess NotificationType = "success"
	NotifyWarning NotificationType = "warning"
	NotifyError   NotificationType = "error"
)

// ParseNotificationType maps unknown tags to info.
func ParseNotificationType(s string) NotificationType {
	switch t := NotificationType(strings.ToLower(strings.TrimSpace(s))); t {
	case NotifyInfo, NotifySuccess, NotifyWarning, NotifyError:
		return t
	}
	return NotifyInfo
}

type Notification struct {
	ID         string
	CustomerID string
	OfferID    string
	Title      string
	Message    string
	Type       NotificationType
	IsRead     bool
	CreatedAt  time.Time
	ReadAt     *time.Time
}
