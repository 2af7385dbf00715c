package auth

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/authd/pkg/oidc"
)

// User is one authenticated principal. A record always has at least one of
// PasswordHash or ProviderSubject set; Email is unique across all records.
type User struct {
	ID              uuid.UUID
	Email           string
	Name            string
	PasswordHash    []byte
	ProviderSubject string
	CreatedAt       time.Time
}

// UserStore persists user records. Email uniqueness is the store's
// responsibility: Insert must fail with ErrEmailTaken on a duplicate email
// atomically, not by a read-then-write check in the caller.
type UserStore interface {
	FindByEmail(ctx context.Context, email string) (*User, error)
	FindByID(ctx context.Context, id uuid.UUID) (*User, error)
	Insert(ctx context.Context, user *User) error
	Update(ctx context.Context, user *User) error
}

// TokenCodec mints and validates the service's stateless session tokens.
type TokenCodec interface {
	Issue(subject string, ttl time.Duration) (string, error)
	Validate(token string) (string, error)
}

// IdentityProvider runs the authorization-code exchange and returns only
// cryptographically verified identities.
type IdentityProvider interface {
	AuthCodeURL(state string) string
	ExchangeAndVerify(ctx context.Context, code string) (*oidc.Identity, error)
}
