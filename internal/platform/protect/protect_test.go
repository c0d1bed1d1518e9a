// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package protect_test

import (
	"context"
	"encoding/base64"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taibuivan/authapi/internal/platform/protect"
)

type fakeClock struct{ now time.Time }

func (clock *fakeClock) Now() time.Time { return clock.now }

func newTestRing(t *testing.T, repository protect.KeyRepository, clock *fakeClock) *protect.KeyRing {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ring, err := protect.NewKeyRing(context.Background(), repository, clock.Now, logger)
	require.NoError(t, err)
	return ring
}

func sampleTicket(now time.Time) protect.Ticket {
	return protect.Ticket{
		Subject:   "user-1",
		Purpose:   "Bearer.AccessToken",
		IssuedAt:  now,
		ExpiresAt: now.Add(15 * time.Minute),
		Claims:    map[string]string{"email": "alice@example.com"},
	}
}

/*
TestCodec_RoundTrip verifies that a protected ticket opens under its purpose.
*/
func TestCodec_RoundTrip(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	codec := protect.NewCodec(newTestRing(t, protect.NewMemoryKeyRepository(), clock))

	ticket := sampleTicket(clock.now)
	token, err := codec.Protect(ctx, ticket)
	require.NoError(t, err)

	opened, ok := codec.Unprotect(ctx, token, ticket.Purpose)
	require.True(t, ok)
	assert.Equal(t, ticket.Subject, opened.Subject)
	assert.Equal(t, "alice@example.com", opened.Claim("email"))
	assert.True(t, ticket.ExpiresAt.Equal(opened.ExpiresAt))

	// Same ticket twice produces different tokens (fresh nonce)
	again, err := codec.Protect(ctx, ticket)
	require.NoError(t, err)
	assert.NotEqual(t, token, again)
}

/*
TestCodec_Rejections verifies that every kind of bad input is refused alike.
*/
func TestCodec_Rejections(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	codec := protect.NewCodec(newTestRing(t, protect.NewMemoryKeyRepository(), clock))

	token, err := codec.Protect(ctx, sampleTicket(clock.now))
	require.NoError(t, err)

	raw, err := base64.RawURLEncoding.DecodeString(token)
	require.NoError(t, err)

	flip := func(index int) string {
		tampered := append([]byte(nil), raw...)
		tampered[index] ^= 0x01
		return base64.RawURLEncoding.EncodeToString(tampered)
	}

	tests := []struct {
		name    string
		token   string
		purpose string
	}{
		{"Wrong purpose", token, "Bearer.RefreshToken"},
		{"Empty token", "", "Bearer.AccessToken"},
		{"Not base64", "%%%", "Bearer.AccessToken"},
		{"Truncated", token[:20], "Bearer.AccessToken"},
		{"Version flipped", flip(0), "Bearer.AccessToken"},
		{"Key id flipped", flip(3), "Bearer.AccessToken"},
		{"Nonce flipped", flip(20), "Bearer.AccessToken"},
		{"Ciphertext flipped", flip(len(raw) - 1), "Bearer.AccessToken"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ticket, ok := codec.Unprotect(ctx, tt.token, tt.purpose)
			assert.False(t, ok)
			assert.Nil(t, ticket)
		})
	}
}

/*
TestCodec_RequiresPurpose verifies that a ticket without purpose is refused.
*/
func TestCodec_RequiresPurpose(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	codec := protect.NewCodec(newTestRing(t, protect.NewMemoryKeyRepository(), clock))

	_, err := codec.Protect(context.Background(), protect.Ticket{Subject: "user-1"})
	assert.Error(t, err)
}

/*
TestKeyRing_Rotation verifies successor generation ahead of expiry and that
older keys keep decrypting after the default moves on.
*/
func TestKeyRing_Rotation(t *testing.T) {
	ctx := context.Background()
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := &fakeClock{now: start}
	ring := newTestRing(t, protect.NewMemoryKeyRepository(), clock)
	codec := protect.NewCodec(ring)

	first, err := ring.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, start.Add(protect.DefaultKeyLifetime), first.ExpiresAt)

	oldToken, err := codec.Protect(ctx, sampleTicket(clock.now))
	require.NoError(t, err)

	// 1. Well before the lead: no new key
	clock.now = start.Add(30 * 24 * time.Hour)
	current, err := ring.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, first.ID, current.ID)
	assert.Len(t, ring.Keys(), 1)

	// 2. Inside the lead: a successor appears but the default stays
	clock.now = first.ExpiresAt.Add(-24 * time.Hour)
	current, err = ring.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, first.ID, current.ID)
	require.Len(t, ring.Keys(), 2)

	// Asking again does not generate a third key
	_, err = ring.Current(ctx)
	require.NoError(t, err)
	assert.Len(t, ring.Keys(), 2)

	// 3. After expiry the successor is the default and the old token still opens
	clock.now = first.ExpiresAt.Add(time.Hour)
	current, err = ring.Current(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, current.ID)

	_, ok := codec.Unprotect(ctx, oldToken, "Bearer.AccessToken")
	assert.True(t, ok)

	// 4. Revoking the old key refuses its tokens
	require.NoError(t, ring.Revoke(ctx, first.ID))
	_, ok = codec.Unprotect(ctx, oldToken, "Bearer.AccessToken")
	assert.False(t, ok)
}

/*
TestFileKeyRepository verifies persistence across ring instances and file modes.
*/
func TestFileKeyRepository(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "keys")
	clock := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}

	repository, err := protect.NewFileKeyRepository(dir)
	require.NoError(t, err)

	token, err := protect.NewCodec(newTestRing(t, repository, clock)).Protect(ctx, sampleTicket(clock.now))
	require.NoError(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	info, err := entries[0].Info()
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	// A fresh ring over the same directory opens the token
	reopened, err := protect.NewFileKeyRepository(dir)
	require.NoError(t, err)
	_, ok := protect.NewCodec(newTestRing(t, reopened, clock)).Unprotect(ctx, token, "Bearer.AccessToken")
	assert.True(t, ok)
}
