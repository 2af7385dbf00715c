// Package session issues and validates the service's own stateless session
// tokens. A token is a compact HS256-signed JWT carrying the subject (user
// ID), issue time and expiry. Validity is fully determined by the token's
// contents and the shared signing secret; the server keeps no session state.
package session

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultTTL bounds token validity when the caller does not specify one.
const DefaultTTL = time.Hour

// Codec signs and verifies session tokens with a symmetric secret.
// The secret is read once at construction; rotation is out of scope.
type Codec struct {
	secret []byte
	ttl    time.Duration
}

// Option configures a Codec.
type Option func(*Codec)

// WithTTL sets the default token lifetime used by Issue when ttl <= 0.
func WithTTL(ttl time.Duration) Option {
	return func(c *Codec) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// NewCodec creates a Codec from the signing secret. An empty secret is a
// fatal configuration error and fails construction.
func NewCodec(secret string, opts ...Option) (*Codec, error) {
	if secret == "" {
		return nil, ErrMissingSecret
	}

	c := &Codec{
		secret: []byte(secret),
		ttl:    DefaultTTL,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Issue creates a signed token for subject expiring after ttl. A
// non-positive ttl falls back to the codec default.
func (c *Codec) Issue(subject string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = c.ttl
	}

	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	})

	return token.SignedString(c.secret)
}

// Validate verifies the token's signature and expiry and returns its
// subject. Any failure on attacker-controlled input is reported as
// ErrInvalidToken without further detail.
func (c *Codec) Validate(tokenString string) (string, error) {
	claims := &jwt.RegisteredClaims{}

	_, err := jwt.ParseWithClaims(tokenString, claims,
		func(t *jwt.Token) (any, error) { return c.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return "", errors.Join(ErrInvalidToken, err)
	}

	if claims.Subject == "" {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}
