package oidc

import "errors"

var (
	// ErrUntrustedAssertion means the provider's identity assertion failed
	// cryptographic or policy verification: the signing key named by the
	// assertion is not in the provider's key set, the signature does not
	// verify, or issuer/audience/expiry are out of policy. No claim from
	// such an assertion may be trusted.
	ErrUntrustedAssertion = errors.New("oidc: untrusted identity assertion")

	// ErrProvider means the provider itself misbehaved: a transport
	// failure, a non-2xx response, or a response missing the ID token.
	// The caller may retry the whole flow.
	ErrProvider = errors.New("oidc: identity provider request failed")
)
