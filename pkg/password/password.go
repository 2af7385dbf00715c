// Package password provides one-way hashing and verification of user
// passwords using bcrypt.
//
// Hashing embeds a random salt and a tunable work factor into the digest.
// Verification is constant-time with respect to the position of a mismatch
// and never fails with an error: a malformed or foreign digest simply does
// not verify.
package password

import "golang.org/x/crypto/bcrypt"

// Hasher hashes and verifies passwords with a fixed bcrypt cost.
type Hasher struct {
	cost int
}

// Option configures a Hasher.
type Option func(*Hasher)

// WithCost overrides the bcrypt cost factor. Values outside the range
// supported by bcrypt are ignored and the default is kept.
func WithCost(cost int) Option {
	return func(h *Hasher) {
		if cost >= bcrypt.MinCost && cost <= bcrypt.MaxCost {
			h.cost = cost
		}
	}
}

// New creates a Hasher with bcrypt's default cost (10) unless overridden.
func New(opts ...Option) *Hasher {
	h := &Hasher{cost: bcrypt.DefaultCost}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Hash returns a salted bcrypt digest of plaintext. The digest is safe to
// persist; the plaintext must never be stored.
func (h *Hasher) Hash(plaintext string) ([]byte, error) {
	return bcrypt.GenerateFromPassword([]byte(plaintext), h.cost)
}

// Verify reports whether plaintext matches the stored digest. It returns
// false for any malformed digest instead of an error, so callers cannot
// accidentally treat a parse failure as a successful match.
func (h *Hasher) Verify(plaintext string, digest []byte) bool {
	return bcrypt.CompareHashAndPassword(digest, []byte(plaintext)) == nil
}
