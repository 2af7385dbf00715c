package oidc_test

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/authd/pkg/oidc"
)

const (
	testClientID = "client-123"
	testIssuer   = "https://accounts.example.com"
	testKid      = "key-1"
)

// provider simulates the identity provider's token and key set endpoints.
type provider struct {
	key *rsa.PrivateKey
	srv *httptest.Server

	idToken     string
	omitIDToken bool
	tokenStatus int
	jwksStatus  int
	jwksKid     string
}

func newProvider(t *testing.T) *provider {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	p := &provider{
		key:         key,
		tokenStatus: http.StatusOK,
		jwksStatus:  http.StatusOK,
		jwksKid:     testKid,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		if p.tokenStatus != http.StatusOK {
			w.WriteHeader(p.tokenStatus)
			return
		}
		resp := map[string]any{
			"access_token": "provider-access-token",
			"token_type":   "Bearer",
			"expires_in":   3600,
		}
		if !p.omitIDToken {
			resp["id_token"] = p.idToken
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	})
	mux.HandleFunc("/jwks", func(w http.ResponseWriter, r *http.Request) {
		if p.jwksStatus != http.StatusOK {
			w.WriteHeader(p.jwksStatus)
			return
		}
		pub := p.key.Public().(*rsa.PublicKey)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"keys": []map[string]string{{
				"kty": "RSA",
				"use": "sig",
				"alg": "RS256",
				"kid": p.jwksKid,
				"n":   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
				"e":   base64.RawURLEncoding.EncodeToString([]byte{1, 0, 1}),
			}},
		})
	})

	p.srv = httptest.NewServer(mux)
	t.Cleanup(p.srv.Close)
	return p
}

func (p *provider) config() oidc.Config {
	return oidc.Config{
		ClientID:     testClientID,
		ClientSecret: "client-secret",
		RedirectURL:  "https://app.example.com/auth/google/callback",
		Issuer:       testIssuer,
		AuthURL:      p.srv.URL + "/auth",
		TokenURL:     p.srv.URL + "/token",
		JWKSURL:      p.srv.URL + "/jwks",
	}
}

func (p *provider) client(t *testing.T) *oidc.Client {
	t.Helper()
	c, err := oidc.New(p.config())
	require.NoError(t, err)
	return c
}

func validClaims() jwt.MapClaims {
	now := time.Now()
	return jwt.MapClaims{
		"iss":            testIssuer,
		"aud":            testClientID,
		"sub":            "provider-subject-1",
		"email":          "jane@example.com",
		"email_verified": true,
		"name":           "Jane Doe",
		"iat":            now.Unix(),
		"exp":            now.Add(time.Hour).Unix(),
	}
}

func signIDToken(t *testing.T, key *rsa.PrivateKey, kid string, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	if kid != "" {
		token.Header["kid"] = kid
	}
	signed, err := token.SignedString(key)
	require.NoError(t, err)
	return signed
}

func TestNew(t *testing.T) {
	t.Parallel()

	t.Run("requires credentials", func(t *testing.T) {
		t.Parallel()
		_, err := oidc.New(oidc.Config{})
		require.Error(t, err)
	})
}

func TestClient_AuthCodeURL(t *testing.T) {
	t.Parallel()

	p := newProvider(t)
	c := p.client(t)

	raw := c.AuthCodeURL("anti-forgery-state")
	u, err := url.Parse(raw)
	require.NoError(t, err)

	q := u.Query()
	assert.Equal(t, testClientID, q.Get("client_id"))
	assert.Equal(t, "code", q.Get("response_type"))
	assert.Equal(t, "https://app.example.com/auth/google/callback", q.Get("redirect_uri"))
	assert.Equal(t, "openid profile email", q.Get("scope"))
	assert.Equal(t, "anti-forgery-state", q.Get("state"))
}

func TestClient_ExchangeAndVerify(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("returns verified identity", func(t *testing.T) {
		t.Parallel()

		p := newProvider(t)
		p.idToken = signIDToken(t, p.key, testKid, validClaims())

		ident, err := p.client(t).ExchangeAndVerify(ctx, "auth-code")
		require.NoError(t, err)
		assert.Equal(t, "provider-subject-1", ident.Subject)
		assert.Equal(t, "jane@example.com", ident.Email)
		assert.Equal(t, "Jane Doe", ident.Name)
		assert.True(t, ident.EmailVerified)
	})

	t.Run("rejects assertion signed by unknown key", func(t *testing.T) {
		t.Parallel()

		p := newProvider(t)
		p.idToken = signIDToken(t, p.key, "rotated-away-kid", validClaims())

		_, err := p.client(t).ExchangeAndVerify(ctx, "auth-code")
		assert.ErrorIs(t, err, oidc.ErrUntrustedAssertion)
	})

	t.Run("rejects assertion without key id", func(t *testing.T) {
		t.Parallel()

		p := newProvider(t)
		p.idToken = signIDToken(t, p.key, "", validClaims())

		_, err := p.client(t).ExchangeAndVerify(ctx, "auth-code")
		assert.ErrorIs(t, err, oidc.ErrUntrustedAssertion)
	})

	t.Run("rejects forged signature", func(t *testing.T) {
		t.Parallel()

		p := newProvider(t)
		attacker, err := rsa.GenerateKey(rand.Reader, 2048)
		require.NoError(t, err)
		p.idToken = signIDToken(t, attacker, testKid, validClaims())

		_, err = p.client(t).ExchangeAndVerify(ctx, "auth-code")
		assert.ErrorIs(t, err, oidc.ErrUntrustedAssertion)
	})

	t.Run("rejects symmetric-algorithm downgrade", func(t *testing.T) {
		t.Parallel()

		p := newProvider(t)
		token := jwt.NewWithClaims(jwt.SigningMethodHS256, validClaims())
		token.Header["kid"] = testKid
		signed, err := token.SignedString([]byte("guessable"))
		require.NoError(t, err)
		p.idToken = signed

		_, err = p.client(t).ExchangeAndVerify(ctx, "auth-code")
		assert.ErrorIs(t, err, oidc.ErrUntrustedAssertion)
	})

	t.Run("rejects expired assertion", func(t *testing.T) {
		t.Parallel()

		p := newProvider(t)
		claims := validClaims()
		claims["exp"] = time.Now().Add(-time.Minute).Unix()
		p.idToken = signIDToken(t, p.key, testKid, claims)

		_, err := p.client(t).ExchangeAndVerify(ctx, "auth-code")
		assert.ErrorIs(t, err, oidc.ErrUntrustedAssertion)
	})

	t.Run("rejects wrong issuer", func(t *testing.T) {
		t.Parallel()

		p := newProvider(t)
		claims := validClaims()
		claims["iss"] = "https://evil.example.com"
		p.idToken = signIDToken(t, p.key, testKid, claims)

		_, err := p.client(t).ExchangeAndVerify(ctx, "auth-code")
		assert.ErrorIs(t, err, oidc.ErrUntrustedAssertion)
	})

	t.Run("rejects wrong audience", func(t *testing.T) {
		t.Parallel()

		p := newProvider(t)
		claims := validClaims()
		claims["aud"] = "some-other-client"
		p.idToken = signIDToken(t, p.key, testKid, claims)

		_, err := p.client(t).ExchangeAndVerify(ctx, "auth-code")
		assert.ErrorIs(t, err, oidc.ErrUntrustedAssertion)
	})

	t.Run("rejects assertion without email", func(t *testing.T) {
		t.Parallel()

		p := newProvider(t)
		claims := validClaims()
		delete(claims, "email")
		p.idToken = signIDToken(t, p.key, testKid, claims)

		_, err := p.client(t).ExchangeAndVerify(ctx, "auth-code")
		assert.ErrorIs(t, err, oidc.ErrUntrustedAssertion)
	})

	t.Run("reports failed code exchange as provider error", func(t *testing.T) {
		t.Parallel()

		p := newProvider(t)
		p.tokenStatus = http.StatusBadRequest

		_, err := p.client(t).ExchangeAndVerify(ctx, "bad-code")
		assert.ErrorIs(t, err, oidc.ErrProvider)
	})

	t.Run("reports missing id_token as provider error", func(t *testing.T) {
		t.Parallel()

		p := newProvider(t)
		p.omitIDToken = true

		_, err := p.client(t).ExchangeAndVerify(ctx, "auth-code")
		assert.ErrorIs(t, err, oidc.ErrProvider)
	})

	t.Run("reports key set outage as provider error", func(t *testing.T) {
		t.Parallel()

		p := newProvider(t)
		p.idToken = signIDToken(t, p.key, testKid, validClaims())
		p.jwksStatus = http.StatusInternalServerError

		_, err := p.client(t).ExchangeAndVerify(ctx, "auth-code")
		assert.ErrorIs(t, err, oidc.ErrProvider)
	})
}
