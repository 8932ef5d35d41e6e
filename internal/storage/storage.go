package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	// The message text is matched by callers that only see the error string.
	ErrBucketNotFound = errors.New("Bucket not found")
	ErrInvalidPath    = errors.New("invalid object path")
	ErrBadSignature   = errors.New("invalid or expired signature")
	ErrObjectNotFound = errors.New("object not found")
)

// Bucket is the object storage contract used by the offer workflows.
type Bucket interface {
	Name() string
	Upload(ctx context.Context, objectPath string, r io.Reader, contentType string) error
	SignedURL(objectPath string, ttl time.Duration) (string, error)
}

// IsAbsoluteURL reports whether a stored image reference is already a URL.
func IsAbsoluteURL(s string) bool {
	l := strings.ToLower(s)
	return strings.HasPrefix(l, "http://") || strings.HasPrefix(l, "https://")
}

// CleanPath rejects traversal, absolute paths and NUL bytes.
func CleanPath(p string) (string, error) {
	lower := strings.ToLower(p)
	if p == "" || strings.Contains(lower, "..") || strings.Contains(lower, "%2e") || strings.Contains(p, "\x00") {
		return "", ErrInvalidPath
	}
	clean := path.Clean(strings.ReplaceAll(p, "\\", "/"))
	if clean == "." || strings.HasPrefix(clean, "/") || filepath.IsAbs(clean) {
		return "", ErrInvalidPath
	}
	return clean, nil
}

var (
	reNonWord = regexp.MustCompile(`[^A-Za-z0-9_.]+`)
	reDashes  = regexp.MustCompile(`-{2,}`)
)

// SanitizeName folds accents away (NFKD minus combining marks) and replaces
// everything outside [A-Za-z0-9_.] with dashes.
func SanitizeName(name string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, name)
	if err != nil {
		folded = name
	}
	s := reNonWord.ReplaceAllString(folded, "-")
	s = reDashes.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-")
	if s == "" {
		return "file"
	}
	return s
}

// CustomerUploadPath places customer uploads under customer/product with a
// millisecond stamp and the selection index.
func CustomerUploadPath(customerID, productID string, idx int, name string, now time.Time) string {
	return fmt.Sprintf("%s/%s/%d-%d-%s", customerID, productID, now.UnixMilli(), idx, SanitizeName(name))
}

// AdminUploadPath keeps only the extension of the original file name.
func AdminUploadPath(customerID, productID string, idx int, name string, now time.Time) string {
	ext := strings.ToLower(path.Ext(SanitizeName(name)))
	if ext == "" {
		ext = ".jpg"
	}
	return fmt.Sprintf("%s/%s_%d_%d%s", customerID, productID, idx, now.UnixMilli(), ext)
}
