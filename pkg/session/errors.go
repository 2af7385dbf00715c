package session

import "errors"

var (
	// ErrMissingSecret is returned by NewCodec when no signing secret is
	// provided. This is a boot-time misconfiguration, not a runtime failure.
	ErrMissingSecret = errors.New("session: missing signing secret")

	// ErrInvalidToken covers every way an untrusted token can fail:
	// tampered signature, expiry, wrong secret, structural garbage.
	ErrInvalidToken = errors.New("session: invalid token")
)
