package validate

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
)

var (
	reEmail  = regexp.MustCompile(`^[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}$`)
	reID     = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)
	reDigits = regexp.MustCompile(`\D`)
)

// V is the shared struct validator. validator.Validate caches struct
// metadata and is safe for concurrent use.
var V = validator.New(validator.WithRequiredStructEnabled())

func Email(s string) (string, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if len(s) == 0 || len(s) > 254 {
		return "", false
	}
	return s, reEmail.MatchString(s)
}

// ID validates a resource identifier taken from the URL.
func ID(s string) (string, bool) {
	s = strings.TrimSpace(s)
	return s, s != "" && reID.MatchString(s)
}

// Name validates a displayable name with a reasonable max length.
func Name(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if s == "" || len(s) > 120 {
		return "", false
	}
	return s, true
}

// Password is the identity provider's minimum: 6 characters.
func Password(s string) bool {
	return len(s) >= 6 && len(s) <= 72
}

// NormalizePhone keeps digits and strips a leading 90 country code or a
// leading trunk 0.
func NormalizePhone(s string) string {
	d := reDigits.ReplaceAllString(s, "")
	switch {
	case strings.HasPrefix(d, "90"):
		d = d[2:]
	case strings.HasPrefix(d, "0"):
		d = d[1:]
	}
	return d
}

// Phone normalizes and accepts exactly 10 digits.
func Phone(s string) (string, bool) {
	d := NormalizePhone(s)
	return d, len(d) == 10
}

// LenientFloat parses admin numeric inputs. Empty, non-numeric and
// non-finite values are nil.
func LenientFloat(s string) *float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	f, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", "."), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}

// LenientInt is LenientFloat restricted to whole numbers.
func LenientInt(s string) *int {
	f := LenientFloat(s)
	if f == nil || *f != math.Trunc(*f) || math.Abs(*f) > math.MaxInt32 {
		return nil
	}
	n := int(*f)
	return &n
}

// FormatValidationError turns validator errors into one message per field.
func FormatValidationError(err error) map[string]string {
	out := map[string]string{}
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		out["_"] = err.Error()
		return out
	}
	for _, fe := range ve {
		switch fe.Tag() {
		case "required":
			out[fe.Field()] = "is required"
		case "email":
			out[fe.Field()] = "must be a valid email"
		case "min", "gte":
			out[fe.Field()] = fmt.Sprintf("must be at least %s", fe.Param())
		case "max", "lte":
			out[fe.Field()] = fmt.Sprintf("must be at most %s", fe.Param())
		case "oneof":
			out[fe.Field()] = "must be one of: " + fe.Param()
		case "eqfield":
			out[fe.Field()] = "must match " + fe.Param()
		case "len":
			out[fe.Field()] = fmt.Sprintf("must be exactly %s characters", fe.Param())
		default:
			out[fe.Field()] = "is invalid"
		}
	}
	return out
}
