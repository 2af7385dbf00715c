package oidc

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"sync"
	"time"
)

// jwk is one entry of the provider's published JSON Web Key Set. Only RSA
// signing keys are kept; the provider's declared ID token algorithm is RS256.
type jwk struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	Use string `json:"use"`
	Alg string `json:"alg"`
	N   string `json:"n"`
	E   string `json:"e"`
}

type jwksDoc struct {
	Keys []jwk `json:"keys"`
}

// keyCache holds the provider's current signing keys indexed by key ID.
// Keys are refreshed when the cache goes stale or a lookup misses, which
// covers routine provider key rotation without restarting the service.
type keyCache struct {
	url    string
	client *http.Client
	ttl    time.Duration

	mu        sync.RWMutex
	keys      map[string]*rsa.PublicKey
	fetchedAt time.Time
}

func newKeyCache(url string, client *http.Client, ttl time.Duration) *keyCache {
	return &keyCache{
		url:    url,
		client: client,
		ttl:    ttl,
	}
}

// key returns the verification key with the given key ID. A lookup miss on
// fresh keys triggers one refresh before failing; a key ID absent from the
// provider's current set means the assertion cannot be trusted.
func (kc *keyCache) key(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	if k, ok := kc.lookup(kid); ok && !kc.stale() {
		return k, nil
	}

	if err := kc.refresh(ctx); err != nil {
		return nil, err
	}

	k, ok := kc.lookup(kid)
	if !ok {
		return nil, fmt.Errorf("%w: no signing key with id %q", ErrUntrustedAssertion, kid)
	}
	return k, nil
}

func (kc *keyCache) lookup(kid string) (*rsa.PublicKey, bool) {
	kc.mu.RLock()
	defer kc.mu.RUnlock()
	k, ok := kc.keys[kid]
	return k, ok
}

func (kc *keyCache) stale() bool {
	kc.mu.RLock()
	defer kc.mu.RUnlock()
	return kc.keys == nil || time.Since(kc.fetchedAt) > kc.ttl
}

func (kc *keyCache) refresh(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, kc.url, http.NoBody)
	if err != nil {
		return errors.Join(ErrProvider, err)
	}

	resp, err := kc.client.Do(req)
	if err != nil {
		return errors.Join(ErrProvider, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("%w: key set endpoint returned %d: %s", ErrProvider, resp.StatusCode, body)
	}

	var doc jwksDoc
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return errors.Join(ErrProvider, err)
	}

	keys := make(map[string]*rsa.PublicKey, len(doc.Keys))
	for _, k := range doc.Keys {
		if k.Kty != "RSA" || (k.Use != "" && k.Use != "sig") {
			continue
		}
		pub, err := k.rsaPublicKey()
		if err != nil {
			// A single unparsable key must not poison the whole set.
			continue
		}
		keys[k.Kid] = pub
	}

	kc.mu.Lock()
	kc.keys = keys
	kc.fetchedAt = time.Now()
	kc.mu.Unlock()

	return nil
}

// rsaPublicKey converts the JWK's base64url modulus and exponent into a
// Go verification key.
func (k jwk) rsaPublicKey() (*rsa.PublicKey, error) {
	nBytes, err := base64.RawURLEncoding.DecodeString(k.N)
	if err != nil {
		return nil, fmt.Errorf("decode modulus: %w", err)
	}
	eBytes, err := base64.RawURLEncoding.DecodeString(k.E)
	if err != nil {
		return nil, fmt.Errorf("decode exponent: %w", err)
	}

	return &rsa.PublicKey{
		N: new(big.Int).SetBytes(nBytes),
		E: int(new(big.Int).SetBytes(eBytes).Int64()),
	}, nil
}
