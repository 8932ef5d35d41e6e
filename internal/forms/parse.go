package forms

import (
	"io"
	"mime/multipart"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"chinasource/internal/domain"
	"chinasource/internal/validate"
)

// maxEntries bounds indexed keys accepted from a posted form.
const maxEntries = 50

var reIndexed = regexp.MustCompile(`^(products|rows)\[(\d+)\]\[([a-z_]+)\]$`)

type indexed map[int]map[string][]string

func collect(prefix string, values map[string][]string, files map[string][]*multipart.FileHeader) (indexed, map[int][]*multipart.FileHeader) {
	vals := indexed{}
	for k, v := range values {
		m := reIndexed.FindStringSubmatch(k)
		if m == nil || m[1] != prefix {
			continue
		}
		i, err := strconv.Atoi(m[2])
		if err != nil || i >= maxEntries {
			continue
		}
		if vals[i] == nil {
			vals[i] = map[string][]string{}
		}
		vals[i][m[3]] = v
	}
	fh := map[int][]*multipart.FileHeader{}
	for k, v := range files {
		m := reIndexed.FindStringSubmatch(k)
		if m == nil || m[1] != prefix || m[3] != "images" {
			continue
		}
		i, err := strconv.Atoi(m[2])
		if err != nil || i >= maxEntries {
			continue
		}
		fh[i] = v
		if vals[i] == nil {
			vals[i] = map[string][]string{}
		}
	}
	return vals, fh
}

func sortedKeys(m indexed) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}

func first(v map[string][]string, key string) string {
	if xs := v[key]; len(xs) > 0 {
		return xs[0]
	}
	return ""
}

// urlsOf accepts repeated fields as well as one newline-separated textarea.
func urlsOf(v map[string][]string) []string {
	var out []string
	for _, raw := range v["image_urls"] {
		for _, line := range strings.Split(raw, "\n") {
			if s := strings.TrimSpace(line); s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}

// indexesDesc parses posted positions, dropping junk and duplicates, highest
// first so that removing one does not shift the rest.
func indexesDesc(raw []string) []int {
	seen := map[int]bool{}
	var out []int
	for _, r := range raw {
		j, err := strconv.Atoi(strings.TrimSpace(r))
		if err != nil || j < 0 || seen[j] {
			continue
		}
		seen[j] = true
		out = append(out, j)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(out)))
	return out
}

func uploadsOf(headers []*multipart.FileHeader) []Upload {
	out := make([]Upload, 0, len(headers))
	for _, h := range headers {
		h := h
		if h == nil || h.Filename == "" || h.Size == 0 {
			continue
		}
		out = append(out, Upload{
			Name:        h.Filename,
			ContentType: h.Header.Get("Content-Type"),
			Size:        h.Size,
			Open:        func() (io.ReadCloser, error) { return h.Open() },
		})
	}
	return out
}

// ParseProductForm rebuilds a customer form from posted
// products[i][field] keys. Images go through the same cap as interactive
// edits; the returned warnings describe truncated batches. Positions posted
// as remove_url drop links from the entry.
func ParseProductForm(values map[string][]string, files map[string][]*multipart.FileHeader) (*ProductForm, []string) {
	f := &ProductForm{MaxImages: MaxCustomerImages, MinEntries: 1}
	vals, fh := collect("products", values, files)
	var warnings []string
	for _, idx := range sortedKeys(vals) {
		v := vals[idx]
		f.Entries = append(f.Entries, blankEntry())
		i := len(f.Entries) - 1
		_ = f.UpdateField(i, "service_type", first(v, "service_type"))
		_ = f.UpdateField(i, "name", first(v, "name"))
		_ = f.UpdateField(i, "description", first(v, "description"))
		_ = f.UpdateField(i, "quantity", first(v, "quantity"))
		if ups := uploadsOf(fh[idx]); len(ups) > 0 {
			if _, warn, err := f.AddFiles(i, ups); err != nil {
				warnings = append(warnings, "Product "+strconv.Itoa(i+1)+": "+err.Error())
			} else if warn != "" {
				warnings = append(warnings, "Product "+strconv.Itoa(i+1)+": "+warn)
			}
		}
		for _, u := range urlsOf(v) {
			if err := f.AddURL(i, u); err != nil {
				warnings = append(warnings, "Product "+strconv.Itoa(i+1)+": "+err.Error())
				break
			}
		}
		for _, j := range indexesDesc(v["remove_url"]) {
			f.RemoveURL(i, j)
		}
	}
	if len(f.Entries) == 0 {
		f.Entries = []ProductEntry{blankEntry()}
	}
	return f, warnings
}

// ParseProductFields reads the admin measurement and pricing inputs.
// Numbers are parsed leniently: empty or invalid input becomes nil. A blank
// currency stays empty and the store defaults it.
func ParseProductFields(get func(key string) string) domain.ProductFields {
	return domain.ProductFields{
		ProductWidth:        validate.LenientFloat(get("product_width")),
		ProductLength:       validate.LenientFloat(get("product_length")),
		ProductHeight:       validate.LenientFloat(get("product_height")),
		ProductWeight:       validate.LenientFloat(get("product_weight")),
		ProductPackage:      strings.TrimSpace(get("product_package")),
		BoxWidth:            validate.LenientFloat(get("box_width")),
		BoxLength:           validate.LenientFloat(get("box_length")),
		BoxHeight:           validate.LenientFloat(get("box_height")),
		BoxWeight:           validate.LenientFloat(get("box_weight")),
		BoxVolumetricWeight: validate.LenientFloat(get("box_volumetric_weight")),
		BoxUnits:            validate.LenientInt(get("box_units")),
		BoxCount:            validate.LenientInt(get("box_count")),
		UnitPrice:           validate.LenientFloat(get("unit_price")),
		PickupFee:           validate.LenientFloat(get("pickup_fee")),
		Currency:            strings.ToUpper(strings.TrimSpace(get("currency"))),
		ExtraNotes:          strings.TrimSpace(get("extra_notes")),
	}
}
