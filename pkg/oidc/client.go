// Package oidc implements the relying-party side of the OAuth2
// authorization-code grant with OpenID Connect identity verification.
//
// The client exchanges an authorization code for tokens at the provider's
// token endpoint, then independently verifies the returned ID token before
// trusting any claim inside it: decode the untrusted header, look up the
// named signing key in the provider's published key set, cryptographically
// verify the signature with that key only, and check issuer, audience and
// expiry. Claims become readable only through the Identity value returned
// after the whole pipeline succeeds.
package oidc

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
)

// Config holds the provider settings read once at startup.
type Config struct {
	ClientID     string        `env:"OIDC_CLIENT_ID,required"`
	ClientSecret string        `env:"OIDC_CLIENT_SECRET,required"`
	RedirectURL  string        `env:"OIDC_REDIRECT_URL,required"`
	Issuer       string        `env:"OIDC_ISSUER" envDefault:"https://accounts.google.com"`
	AuthURL      string        `env:"OIDC_AUTH_URL" envDefault:"https://accounts.google.com/o/oauth2/v2/auth"`
	TokenURL     string        `env:"OIDC_TOKEN_URL" envDefault:"https://oauth2.googleapis.com/token"`
	JWKSURL      string        `env:"OIDC_JWKS_URL" envDefault:"https://www.googleapis.com/oauth2/v3/certs"`
	Scopes       []string      `env:"OIDC_SCOPES" envSeparator:" " envDefault:"openid profile email"`
	Timeout      time.Duration `env:"OIDC_HTTP_TIMEOUT" envDefault:"10s"`
	JWKSCacheTTL time.Duration `env:"OIDC_JWKS_CACHE_TTL" envDefault:"1h"`
}

// Identity carries the verified claims of an identity assertion. A value of
// this type exists only after signature and policy verification succeeded.
type Identity struct {
	Subject       string
	Email         string
	EmailVerified bool
	Name          string
}

// idClaims is the untrusted decoded form of an ID token. It is internal to
// the package so no caller can read claims before verification.
type idClaims struct {
	jwt.RegisteredClaims
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
}

// Client performs the code exchange and assertion verification for a single
// OIDC provider.
type Client struct {
	conf       *oauth2.Config
	issuer     string
	httpClient *http.Client
	jwks       *keyCache
}

// New creates a provider client from the configuration. Endpoint URLs and
// credentials are required; missing values fail construction.
func New(cfg Config) (*Client, error) {
	switch {
	case cfg.ClientID == "":
		return nil, errors.New("oidc: client id is required")
	case cfg.ClientSecret == "":
		return nil, errors.New("oidc: client secret is required")
	case cfg.RedirectURL == "":
		return nil, errors.New("oidc: redirect url is required")
	case cfg.Issuer == "" || cfg.AuthURL == "" || cfg.TokenURL == "" || cfg.JWKSURL == "":
		return nil, errors.New("oidc: provider endpoints are required")
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.JWKSCacheTTL <= 0 {
		cfg.JWKSCacheTTL = time.Hour
	}
	if len(cfg.Scopes) == 0 {
		cfg.Scopes = []string{"openid", "profile", "email"}
	}

	httpClient := &http.Client{Timeout: cfg.Timeout}

	return &Client{
		conf: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       cfg.Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:  cfg.AuthURL,
				TokenURL: cfg.TokenURL,
			},
		},
		issuer:     cfg.Issuer,
		httpClient: httpClient,
		jwks:       newKeyCache(cfg.JWKSURL, httpClient, cfg.JWKSCacheTTL),
	}, nil
}

// AuthCodeURL builds the provider's authorization endpoint URL carrying the
// client ID, redirect URI, scopes and the given anti-forgery state. Pure
// construction, no network call.
func (c *Client) AuthCodeURL(state string) string {
	return c.conf.AuthCodeURL(state)
}

// ExchangeAndVerify trades the authorization code for tokens and verifies
// the identity assertion contained in the response. Transport and malformed
// response failures wrap ErrProvider; any verification failure wraps
// ErrUntrustedAssertion. Nothing is retried internally.
func (c *Client) ExchangeAndVerify(ctx context.Context, code string) (*Identity, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)

	tok, err := c.conf.Exchange(ctx, code)
	if err != nil {
		return nil, errors.Join(ErrProvider, err)
	}

	rawIDToken, ok := tok.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		return nil, fmt.Errorf("%w: token response missing id_token", ErrProvider)
	}

	return c.verify(ctx, rawIDToken)
}

// verify runs the trust pipeline on a raw assertion. The key is always
// looked up by the assertion's key ID in the provider's key set, never
// supplied by a caller, and the accepted algorithm is pinned to RS256.
func (c *Client) verify(ctx context.Context, rawIDToken string) (*Identity, error) {
	claims := &idClaims{}

	_, err := jwt.ParseWithClaims(rawIDToken, claims,
		func(t *jwt.Token) (any, error) {
			kid, ok := t.Header["kid"].(string)
			if !ok || kid == "" {
				return nil, fmt.Errorf("%w: assertion header missing key id", ErrUntrustedAssertion)
			}
			return c.jwks.key(ctx, kid)
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithIssuer(c.issuer),
		jwt.WithAudience(c.conf.ClientID),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		// A key-set fetch failure is a provider problem, not proof of forgery.
		if errors.Is(err, ErrProvider) {
			return nil, err
		}
		return nil, errors.Join(ErrUntrustedAssertion, err)
	}

	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: assertion missing subject", ErrUntrustedAssertion)
	}
	if claims.Email == "" {
		return nil, fmt.Errorf("%w: assertion missing email", ErrUntrustedAssertion)
	}

	return &Identity{
		Subject:       claims.Subject,
		Email:         claims.Email,
		EmailVerified: claims.EmailVerified,
		Name:          claims.Name,
	}, nil
}
