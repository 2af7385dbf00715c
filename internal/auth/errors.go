package auth

import "errors"

var (
	// ErrValidation flags missing or malformed caller input.
	ErrValidation = errors.New("invalid input")

	// ErrEmailTaken means a record with the email already exists.
	ErrEmailTaken = errors.New("email already in use")

	// ErrInvalidCredentials is returned for a missing user, a user without
	// a password and a wrong password alike, so a caller cannot probe which
	// accounts exist.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrUnauthenticated means the presented session token is missing,
	// invalid or expired, or its subject no longer resolves to a user.
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrAuthenticationFailed means the identity provider flow did not
	// produce a trusted identity.
	ErrAuthenticationFailed = errors.New("provider authentication failed")

	// ErrInvalidState means the OAuth callback carried a state this
	// service never issued, or one already consumed or expired.
	ErrInvalidState = errors.New("invalid or expired oauth state")

	// ErrUserNotFound is the store-level miss for lookups by email or ID.
	ErrUserNotFound = errors.New("user not found")
)
