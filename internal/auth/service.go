// Package auth implements the authentication flows: local registration,
// local login, federated login through the identity provider, and session
// introspection. The service itself is stateless; every cross-request
// invariant lives in the user store or inside the session token.
package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/authd/pkg/logger"
	"github.com/dmitrymomot/authd/pkg/oidc"
	"github.com/dmitrymomot/authd/pkg/password"
	"github.com/dmitrymomot/authd/pkg/statestore"
)

// decoyDigest is compared against on Login paths that have no stored hash,
// so a lookup miss costs as much bcrypt work as a wrong password.
var decoyDigest = []byte("$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy")

// Service orchestrates the hasher, token codec, identity provider and user
// store. All collaborators are injected at construction so each flow is
// testable with substitutes.
type Service struct {
	store    UserStore
	codec    TokenCodec
	provider IdentityProvider
	states   statestore.Store
	hasher   *password.Hasher

	tokenTTL        time.Duration
	stateTTL        time.Duration
	requireVerified bool
	log             *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the service logger.
func WithLogger(log *slog.Logger) Option {
	return func(s *Service) { s.log = log }
}

// WithHasher replaces the default password hasher.
func WithHasher(h *password.Hasher) Option {
	return func(s *Service) { s.hasher = h }
}

// WithTokenTTL sets the session token lifetime.
func WithTokenTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.tokenTTL = ttl
		}
	}
}

// WithStateTTL bounds how long an issued OAuth state stays consumable.
func WithStateTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.stateTTL = ttl
		}
	}
}

// WithUnverifiedEmails accepts provider identities whose email the provider
// has not verified. Off by default: an unverified email must not take over
// an existing local account.
func WithUnverifiedEmails() Option {
	return func(s *Service) { s.requireVerified = false }
}

// New creates the authentication service.
func New(store UserStore, codec TokenCodec, provider IdentityProvider, states statestore.Store, opts ...Option) *Service {
	s := &Service{
		store:           store,
		codec:           codec,
		provider:        provider,
		states:          states,
		hasher:          password.New(),
		tokenTTL:        time.Hour,
		stateTTL:        10 * time.Minute,
		requireVerified: true,
		log:             logger.NewDiscard(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register creates a local account and returns a session token for it.
func (s *Service) Register(ctx context.Context, email, pass, name string) (string, error) {
	email = normalizeEmail(email)
	if err := required(map[string]string{"email": email, "password": pass, "name": name}); err != nil {
		return "", err
	}

	hash, err := s.hasher.Hash(pass)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}

	user := &User{
		ID:           uuid.New(),
		Email:        email,
		Name:         name,
		PasswordHash: hash,
		CreatedAt:    time.Now(),
	}

	// Uniqueness is enforced by the store's constraint, so two concurrent
	// registrations for one email cannot both succeed.
	if err := s.store.Insert(ctx, user); err != nil {
		if errors.Is(err, ErrEmailTaken) {
			return "", ErrEmailTaken
		}
		return "", fmt.Errorf("create user: %w", err)
	}

	return s.codec.Issue(user.ID.String(), s.tokenTTL)
}

// Login authenticates a local account. A missing user, an account without a
// password and a wrong password are indistinguishable to the caller.
func (s *Service) Login(ctx context.Context, email, pass string) (string, error) {
	email = normalizeEmail(email)
	if err := required(map[string]string{"email": email, "password": pass}); err != nil {
		return "", err
	}

	user, err := s.store.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			s.hasher.Verify(pass, decoyDigest)
			return "", ErrInvalidCredentials
		}
		return "", fmt.Errorf("find user: %w", err)
	}
	if len(user.PasswordHash) == 0 {
		// Federated-only account. The decoy comparison keeps this path as
		// slow as a real password check, same as the missing-user path.
		s.hasher.Verify(pass, decoyDigest)
		return "", ErrInvalidCredentials
	}
	if !s.hasher.Verify(pass, user.PasswordHash) {
		return "", ErrInvalidCredentials
	}

	return s.codec.Issue(user.ID.String(), s.tokenTTL)
}

// AuthURL issues a one-time anti-forgery state and returns the provider's
// authorization URL carrying it.
func (s *Service) AuthURL(ctx context.Context) (string, error) {
	state, err := generateState()
	if err != nil {
		return "", fmt.Errorf("generate state: %w", err)
	}
	if err := s.states.Save(ctx, state, s.stateTTL); err != nil {
		return "", fmt.Errorf("save state: %w", err)
	}
	return s.provider.AuthCodeURL(state), nil
}

// FederatedLogin completes the provider callback: it consumes the state,
// exchanges and verifies the code, then materializes or links the user
// record and returns a session token.
func (s *Service) FederatedLogin(ctx context.Context, code, state string) (string, error) {
	if code == "" {
		return "", fmt.Errorf("%w: code is required", ErrValidation)
	}

	if err := s.states.Consume(ctx, state); err != nil {
		if errors.Is(err, statestore.ErrNotFound) {
			return "", ErrInvalidState
		}
		return "", fmt.Errorf("consume state: %w", err)
	}

	ident, err := s.provider.ExchangeAndVerify(ctx, code)
	if err != nil {
		// Verification failures are logged loudly server-side; the caller
		// only learns that authentication failed.
		s.log.ErrorContext(ctx, "identity provider verification failed",
			logger.Error(err),
			logger.Component("auth"),
		)
		return "", fmt.Errorf("%w: %w", ErrAuthenticationFailed, err)
	}

	if s.requireVerified && !ident.EmailVerified {
		return "", fmt.Errorf("%w: provider email not verified", ErrAuthenticationFailed)
	}

	user, err := s.resolveFederated(ctx, ident)
	if err != nil {
		return "", err
	}

	return s.codec.Issue(user.ID.String(), s.tokenTTL)
}

// resolveFederated finds the record for a verified identity, creating it or
// attaching the provider subject to an email-matched local account.
func (s *Service) resolveFederated(ctx context.Context, ident *oidc.Identity) (*User, error) {
	email := normalizeEmail(ident.Email)

	user, err := s.store.FindByEmail(ctx, email)
	switch {
	case err == nil:
		return s.linkFederated(ctx, user, ident)
	case errors.Is(err, ErrUserNotFound):
		// First federated login for this email.
	default:
		return nil, fmt.Errorf("find user: %w", err)
	}

	user = &User{
		ID:              uuid.New(),
		Email:           email,
		Name:            ident.Name,
		ProviderSubject: ident.Subject,
		CreatedAt:       time.Now(),
	}
	if err := s.store.Insert(ctx, user); err != nil {
		if errors.Is(err, ErrEmailTaken) {
			// Lost a race with a concurrent signup for the same email;
			// fall back to linking against the record that won.
			existing, findErr := s.store.FindByEmail(ctx, email)
			if findErr != nil {
				return nil, fmt.Errorf("find user after insert race: %w", findErr)
			}
			return s.linkFederated(ctx, existing, ident)
		}
		return nil, fmt.Errorf("create user: %w", err)
	}

	return user, nil
}

func (s *Service) linkFederated(ctx context.Context, user *User, ident *oidc.Identity) (*User, error) {
	if user.ProviderSubject == ident.Subject {
		return user, nil
	}
	if user.ProviderSubject != "" {
		// The record is already bound to a different provider subject.
		// Trusting the email claim here would let one identity hijack
		// another, so the login is refused.
		s.log.WarnContext(ctx, "provider subject mismatch for email-matched account",
			logger.UserID(user.ID.String()),
			logger.Component("auth"),
		)
		return nil, fmt.Errorf("%w: account already linked to another identity", ErrAuthenticationFailed)
	}

	user.ProviderSubject = ident.Subject
	if user.Name == "" {
		user.Name = ident.Name
	}
	if err := s.store.Update(ctx, user); err != nil {
		return nil, fmt.Errorf("link provider subject: %w", err)
	}
	return user, nil
}

// Introspect validates a session token and loads its subject's record with
// the password hash stripped.
func (s *Service) Introspect(ctx context.Context, token string) (*User, error) {
	subject, err := s.codec.Validate(token)
	if err != nil {
		return nil, ErrUnauthenticated
	}

	id, err := uuid.Parse(subject)
	if err != nil {
		return nil, ErrUnauthenticated
	}

	user, err := s.store.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrUnauthenticated
		}
		return nil, fmt.Errorf("find user: %w", err)
	}

	// Never hand the hash back, even to internal callers.
	sanitized := *user
	sanitized.PasswordHash = nil
	return &sanitized, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func required(fields map[string]string) error {
	for _, name := range []string{"email", "password", "name"} {
		if v, ok := fields[name]; ok && v == "" {
			return fmt.Errorf("%w: %s is required", ErrValidation, name)
		}
	}
	return nil
}

func generateState() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
