package services

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Token types carried in the typ claim.
const (
	TokenRecovery = "recovery"
	TokenConfirm  = "confirm"
)

var ErrInvalidToken = errors.New("invalid token")

type Claims struct {
	UserID string `json:"user_id"`
	Type   string `json:"typ"`
	jwt.RegisteredClaims
}

// Tokens issues the HS256 tokens carried by mailed links.
type Tokens struct {
	Key         []byte
	RecoveryTTL time.Duration
	ConfirmTTL  time.Duration
	now         func() time.Time
}

func NewTokens(key string) *Tokens {
	return &Tokens{Key: []byte(key), RecoveryTTL: time.Hour, ConfirmTTL: 7 * 24 * time.Hour, now: time.Now}
}

func (t *Tokens) sign(userID, typ string, ttl time.Duration) (string, error) {
	now := t.now()
	claims := Claims{
		UserID: userID,
		Type:   typ,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        uuid.New().String(),
		},
	}
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.Key)
	if err != nil {
		return "", fmt.Errorf("sign %s token: %w", typ, err)
	}
	return s, nil
}

// Recovery returns the token of a password reset link.
func (t *Tokens) Recovery(userID string) (string, error) {
	return t.sign(userID, TokenRecovery, t.RecoveryTTL)
}

func (t *Tokens) Confirmation(userID string) (string, error) {
	return t.sign(userID, TokenConfirm, t.ConfirmTTL)
}

func (t *Tokens) Validate(token string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(tok *jwt.Token) (interface{}, error) {
		if _, ok := tok.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method")
		}
		return t.Key, nil
	}, jwt.WithTimeFunc(t.now), jwt.WithExpirationRequired())
	if err != nil {
		return nil, ErrInvalidToken
	}
	if claims, ok := parsed.Claims.(*Claims); ok && parsed.Valid && claims.UserID != "" {
		return claims, nil
	}
	return nil, ErrInvalidToken
}
