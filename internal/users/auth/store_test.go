// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taibuivan/authapi/internal/users/auth"
)

func sampleUser(id, email string) *auth.User {
	return &auth.User{
		ID:                 id,
		Username:           email,
		NormalizedUsername: auth.NormalizeKey(email),
		Email:              email,
		NormalizedEmail:    auth.NormalizeKey(email),
		PasswordHash:       "hash",
		SecurityStamp:      "stamp-1",
		LockoutEnabled:     true,
	}
}

// # Memory Store

/*
TestMemoryStore_Uniqueness verifies that normalized email and username are unique.
*/
func TestMemoryStore_Uniqueness(t *testing.T) {
	ctx := context.Background()
	store := auth.NewMemoryStore(nil)

	require.NoError(t, store.Create(ctx, sampleUser("u1", "alice@example.com")))

	err := store.Create(ctx, sampleUser("u2", "ALICE@example.com"))
	assert.ErrorIs(t, err, auth.ErrDuplicateEmail)

	taken := sampleUser("u3", "bob@example.com")
	taken.Username, taken.NormalizedUsername = "Alice@Example.com", auth.NormalizeKey("Alice@Example.com")
	err = store.Create(ctx, taken)
	assert.ErrorIs(t, err, auth.ErrDuplicateUsername)

	_, err = store.FindByID(ctx, "missing")
	assert.ErrorIs(t, err, auth.ErrUserNotFound)
}

/*
TestMemoryStore_ReturnsCopies verifies that callers cannot mutate stored state.
*/
func TestMemoryStore_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	store := auth.NewMemoryStore(nil)
	require.NoError(t, store.Create(ctx, sampleUser("u1", "alice@example.com")))

	user, err := store.FindByID(ctx, "u1")
	require.NoError(t, err)
	user.Email = "changed@example.com"

	again, err := store.FindByID(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", again.Email)
}

/*
TestMemoryStore_Mutations verifies the stamp and lockout side effects of each mutation.
*/
func TestMemoryStore_Mutations(t *testing.T) {
	ctx := context.Background()
	store := auth.NewMemoryStore(nil)
	require.NoError(t, store.Create(ctx, sampleUser("u1", "alice@example.com")))

	end := time.Now().Add(time.Minute)
	require.NoError(t, store.UpdateLockout(ctx, "u1", 0, &end))
	require.NoError(t, store.SetPasswordHash(ctx, "u1", "hash-2", "stamp-2"))

	user, err := store.FindByID(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "hash-2", user.PasswordHash)
	assert.Equal(t, "stamp-2", user.SecurityStamp)
	assert.Nil(t, user.LockoutEnd)

	require.NoError(t, store.ReplaceRecoveryCodes(ctx, "u1", []string{"a", "b"}))
	redeemed, err := store.RedeemRecoveryCode(ctx, "u1", "a")
	require.NoError(t, err)
	assert.True(t, redeemed)
	redeemed, err = store.RedeemRecoveryCode(ctx, "u1", "a")
	require.NoError(t, err)
	assert.False(t, redeemed)

	user, err = store.FindByID(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, user.RecoveryCodes)

	assert.ErrorIs(t, store.ConfirmEmail(ctx, "missing"), auth.ErrUserNotFound)
}

/*
TestMemoryStore_ChangeEmail verifies uniqueness and the optional username rewrite.
*/
func TestMemoryStore_ChangeEmail(t *testing.T) {
	ctx := context.Background()
	store := auth.NewMemoryStore(nil)
	require.NoError(t, store.Create(ctx, sampleUser("u1", "alice@example.com")))
	require.NoError(t, store.Create(ctx, sampleUser("u2", "bob@example.com")))

	err := store.ChangeEmail(ctx, "u1", auth.EmailChange{
		Email: "bob@example.com", NormalizedEmail: auth.NormalizeKey("bob@example.com"), SecurityStamp: "stamp-2",
	})
	assert.ErrorIs(t, err, auth.ErrDuplicateEmail)

	require.NoError(t, store.ChangeEmail(ctx, "u1", auth.EmailChange{
		Email: "carol@example.com", NormalizedEmail: auth.NormalizeKey("carol@example.com"), SecurityStamp: "stamp-2",
	}))

	user, err := store.FindByID(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "carol@example.com", user.Email)
	assert.Equal(t, "alice@example.com", user.Username)
	assert.True(t, user.EmailConfirmed)
	assert.Equal(t, "stamp-2", user.SecurityStamp)
}

// # Redis Stores

func newRedisStores(t *testing.T) (*miniredis.Miniredis, *auth.RedisSessionStore, *auth.RedisDeviceStore) {
	t.Helper()
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return server, auth.NewRedisSessionStore(client), auth.NewRedisDeviceStore(client)
}

/*
TestRedisSessionStore verifies save, load, TTL expiry and delete.
*/
func TestRedisSessionStore(t *testing.T) {
	ctx := context.Background()
	server, sessions, _ := newRedisStores(t)

	record := auth.SessionRecord{
		UserID:     "u1",
		Stamp:      "stamp-1",
		Persistent: true,
		CreatedAt:  time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		ExpiresAt:  time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, sessions.Save(ctx, "hash-1", record, time.Hour))

	loaded, err := sessions.Load(ctx, "hash-1")
	require.NoError(t, err)
	assert.Equal(t, record.UserID, loaded.UserID)
	assert.Equal(t, record.Stamp, loaded.Stamp)
	assert.True(t, record.ExpiresAt.Equal(loaded.ExpiresAt))

	require.NoError(t, sessions.Delete(ctx, "hash-1"))
	_, err = sessions.Load(ctx, "hash-1")
	assert.ErrorIs(t, err, auth.ErrSessionNotFound)

	require.NoError(t, sessions.Save(ctx, "hash-2", record, time.Hour))
	server.FastForward(time.Hour)
	_, err = sessions.Load(ctx, "hash-2")
	assert.ErrorIs(t, err, auth.ErrSessionNotFound)

	// Deleting an absent session is fine.
	require.NoError(t, sessions.Delete(ctx, "hash-3"))
}

/*
TestRedisDeviceStore verifies that markers are owner-bound and expire.
*/
func TestRedisDeviceStore(t *testing.T) {
	ctx := context.Background()
	server, _, devices := newRedisStores(t)

	require.NoError(t, devices.Remember(ctx, "d1", "u1", time.Hour))

	remembered, err := devices.IsRemembered(ctx, "d1", "u1")
	require.NoError(t, err)
	assert.True(t, remembered)

	remembered, err = devices.IsRemembered(ctx, "d1", "u2")
	require.NoError(t, err)
	assert.False(t, remembered)

	require.NoError(t, devices.Forget(ctx, "d1"))
	remembered, err = devices.IsRemembered(ctx, "d1", "u1")
	require.NoError(t, err)
	assert.False(t, remembered)

	require.NoError(t, devices.Remember(ctx, "d2", "u1", time.Minute))
	server.FastForward(time.Minute)
	remembered, err = devices.IsRemembered(ctx, "d2", "u1")
	require.NoError(t, err)
	assert.False(t, remembered)
}

/*
TestRedisSessionStore_Unavailable verifies that connectivity failures are not
reported as missing sessions.
*/
func TestRedisSessionStore_Unavailable(t *testing.T) {
	ctx := context.Background()
	server, sessions, _ := newRedisStores(t)
	server.Close()

	_, err := sessions.Load(ctx, "hash-1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, auth.ErrSessionNotFound)
}
