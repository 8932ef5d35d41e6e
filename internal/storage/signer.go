package storage

import (
	"fmt"
	"net/url"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type urlClaims struct {
	Bucket string `json:"bkt"`
	Path   string `json:"path"`
	jwt.RegisteredClaims
}

// Signer issues and checks time-limited object URLs.
type Signer struct {
	Key []byte
	// Prefix is the public URL the storage route is mounted at, e.g.
	// https://host/base/storage.
	Prefix string
	now    func() time.Time
}

func NewSigner(key, prefix string) *Signer {
	return &Signer{Key: []byte(key), Prefix: prefix, now: time.Now}
}

func (s *Signer) Sign(bucket, objectPath string, ttl time.Duration) (string, error) {
	now := s.now()
	claims := urlClaims{
		Bucket: bucket,
		Path:   objectPath,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.Key)
	if err != nil {
		return "", fmt.Errorf("sign url: %w", err)
	}
	u := s.Prefix + "/" + url.PathEscape(bucket) + "/" + (&url.URL{Path: objectPath}).EscapedPath()
	return u + "?token=" + url.QueryEscape(tok), nil
}

// Verify checks that token grants access to bucket/objectPath now.
func (s *Signer) Verify(token, bucket, objectPath string) error {
	claims := &urlClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method")
		}
		return s.Key, nil
	}, jwt.WithTimeFunc(s.now), jwt.WithExpirationRequired())
	if err != nil || !parsed.Valid {
		return ErrBadSignature
	}
	if claims.Bucket != bucket || claims.Path != objectPath {
		return ErrBadSignature
	}
	return nil
}
