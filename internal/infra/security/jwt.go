package security

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// ErrSecretTooShort indicates the HMAC secret is empty or shorter than the minimum.
var ErrSecretTooShort = errors.New("jwt: signing secret too short")

const minHMACSecretLength = 16

// HMACSigner signs and parses HS256 tokens with a shared secret.
type HMACSigner struct {
	secret []byte
}

// NewHMACSigner constructs a signer for the supplied secret.
func NewHMACSigner(secret string) (*HMACSigner, error) {
	if len(secret) < minHMACSecretLength {
		return nil, ErrSecretTooShort
	}
	return &HMACSigner{secret: []byte(secret)}, nil
}

// Sign serialises claims into a compact HS256 token.
func (s *HMACSigner) Sign(claims jwt.Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Parse validates signature, algorithm and registered time claims and fills claims.
func (s *HMACSigner) Parse(raw string, claims jwt.Claims, opts ...jwt.ParserOption) error {
	opts = append([]jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
	}, opts...)

	_, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (any, error) {
		return s.secret, nil
	}, opts...)
	if err != nil {
		return fmt.Errorf("parse token: %w", err)
	}
	return nil
}
