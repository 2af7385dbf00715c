package storage_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/authd/internal/auth"
	"github.com/dmitrymomot/authd/internal/storage"
)

func newUser(email string) *auth.User {
	return &auth.User{
		ID:           uuid.New(),
		Email:        email,
		Name:         "Test User",
		PasswordHash: []byte("$2a$10$digest"),
		CreatedAt:    time.Now(),
	}
}

func TestMemory_Insert(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("stores and retrieves by email and id", func(t *testing.T) {
		t.Parallel()

		store := storage.NewMemory()
		user := newUser("a@example.com")
		require.NoError(t, store.Insert(ctx, user))

		byEmail, err := store.FindByEmail(ctx, "a@example.com")
		require.NoError(t, err)
		assert.Equal(t, user.ID, byEmail.ID)

		byID, err := store.FindByID(ctx, user.ID)
		require.NoError(t, err)
		assert.Equal(t, "a@example.com", byID.Email)
	})

	t.Run("rejects duplicate email", func(t *testing.T) {
		t.Parallel()

		store := storage.NewMemory()
		require.NoError(t, store.Insert(ctx, newUser("dup@example.com")))
		assert.ErrorIs(t, store.Insert(ctx, newUser("dup@example.com")), auth.ErrEmailTaken)
	})

	t.Run("returns copies, not shared references", func(t *testing.T) {
		t.Parallel()

		store := storage.NewMemory()
		user := newUser("copy@example.com")
		require.NoError(t, store.Insert(ctx, user))

		got, err := store.FindByEmail(ctx, "copy@example.com")
		require.NoError(t, err)
		got.Name = "mutated"
		got.PasswordHash[0] = 'X'

		again, err := store.FindByEmail(ctx, "copy@example.com")
		require.NoError(t, err)
		assert.Equal(t, "Test User", again.Name)
		assert.Equal(t, byte('$'), again.PasswordHash[0])
	})
}

func TestMemory_Update(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("persists changes", func(t *testing.T) {
		t.Parallel()

		store := storage.NewMemory()
		user := newUser("u@example.com")
		require.NoError(t, store.Insert(ctx, user))

		user.ProviderSubject = "provider-sub"
		require.NoError(t, store.Update(ctx, user))

		got, err := store.FindByID(ctx, user.ID)
		require.NoError(t, err)
		assert.Equal(t, "provider-sub", got.ProviderSubject)
	})

	t.Run("rejects email change onto an existing account", func(t *testing.T) {
		t.Parallel()

		store := storage.NewMemory()
		first := newUser("first@example.com")
		second := newUser("second@example.com")
		require.NoError(t, store.Insert(ctx, first))
		require.NoError(t, store.Insert(ctx, second))

		second.Email = "first@example.com"
		assert.ErrorIs(t, store.Update(ctx, second), auth.ErrEmailTaken)

		owner, err := store.FindByEmail(ctx, "first@example.com")
		require.NoError(t, err)
		assert.Equal(t, first.ID, owner.ID)
	})

	t.Run("fails for unknown user", func(t *testing.T) {
		t.Parallel()

		store := storage.NewMemory()
		assert.ErrorIs(t, store.Update(ctx, newUser("ghost@example.com")), auth.ErrUserNotFound)
	})
}

func TestMemory_FindMisses(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	store := storage.NewMemory()
	_, err := store.FindByEmail(ctx, "none@example.com")
	assert.ErrorIs(t, err, auth.ErrUserNotFound)

	_, err = store.FindByID(ctx, uuid.New())
	assert.ErrorIs(t, err, auth.ErrUserNotFound)
}
