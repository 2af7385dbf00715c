// Package statestore persists one-time OAuth state tokens. A state is
// written before redirecting the user to the identity provider and consumed
// exactly once when the callback returns, which ties the callback to a flow
// this service started and blocks replays.
package statestore

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Consume when the state does not exist, has
// expired, or was already consumed.
var ErrNotFound = errors.New("statestore: state not found or expired")

// Store is the contract shared by the redis-backed and in-memory stores.
type Store interface {
	// Save persists state for ttl.
	Save(ctx context.Context, state string, ttl time.Duration) error
	// Consume atomically removes state, returning ErrNotFound if it was
	// absent. Atomicity is what makes the state single-use under
	// concurrent callbacks.
	Consume(ctx context.Context, state string) error
}
