package storage

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/dmitrymomot/authd/internal/auth"
)

// Memory is a mutex-guarded in-process UserStore with the same uniqueness
// semantics as the database-backed adapters. Used by tests and local runs.
type Memory struct {
	mu      sync.Mutex
	byID    map[uuid.UUID]auth.User
	byEmail map[string]uuid.UUID
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		byID:    make(map[uuid.UUID]auth.User),
		byEmail: make(map[string]uuid.UUID),
	}
}

func (m *Memory) FindByEmail(_ context.Context, email string) (*auth.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id, ok := m.byEmail[email]
	if !ok {
		return nil, auth.ErrUserNotFound
	}
	user := m.byID[id]
	return copyUser(user), nil
}

func (m *Memory) FindByID(_ context.Context, id uuid.UUID) (*auth.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	user, ok := m.byID[id]
	if !ok {
		return nil, auth.ErrUserNotFound
	}
	return copyUser(user), nil
}

func (m *Memory) Insert(_ context.Context, user *auth.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Check-and-insert under one lock mirrors the unique constraint of the
	// database adapters.
	if _, exists := m.byEmail[user.Email]; exists {
		return auth.ErrEmailTaken
	}
	m.byID[user.ID] = *copyUser(*user)
	m.byEmail[user.Email] = user.ID
	return nil
}

func (m *Memory) Update(_ context.Context, user *auth.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.byID[user.ID]
	if !ok {
		return auth.ErrUserNotFound
	}
	if owner, exists := m.byEmail[user.Email]; exists && owner != user.ID {
		return auth.ErrEmailTaken
	}
	delete(m.byEmail, current.Email)
	m.byID[user.ID] = *copyUser(*user)
	m.byEmail[user.Email] = user.ID
	return nil
}

func copyUser(u auth.User) *auth.User {
	c := u
	if u.PasswordHash != nil {
		c.PasswordHash = append([]byte(nil), u.PasswordHash...)
	}
	return &c
}

var _ auth.UserStore = (*Memory)(nil)
