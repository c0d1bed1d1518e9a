// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package protect

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// # Key Ring Policy

const (
	// DefaultKeyLifetime is how long a generated key stays the encryption default.
	DefaultKeyLifetime = 90 * 24 * time.Hour

	// DefaultRotationLead is how early a successor key is generated before the
	// current default expires.
	DefaultRotationLead = 48 * time.Hour

	// keySize is the length of the master key material (AES-256).
	keySize = 32

	// reloadInterval throttles repository reloads triggered by unknown key ids.
	reloadInterval = time.Minute
)

// Key is a single master key in the ring.
//
// Expired keys still decrypt; only revoked keys are refused.
type Key struct {
	ID          uuid.UUID `json:"id"`
	Material    []byte    `json:"material"`
	CreatedAt   time.Time `json:"createdAt"`
	ActivatesAt time.Time `json:"activatesAt"`
	ExpiresAt   time.Time `json:"expiresAt"`
	Revoked     bool      `json:"revoked"`
}

// activeAt reports whether the key may encrypt at the given instant.
func (key Key) activeAt(now time.Time) bool {
	return !key.Revoked && !now.Before(key.ActivatesAt) && now.Before(key.ExpiresAt)
}

// KeyRepository persists key-ring entries.
type KeyRepository interface {
	LoadAll(ctx context.Context) ([]Key, error)
	Store(ctx context.Context, key Key) error
}

// KeyRing holds the master keys and selects the default encryption key,
// generating and persisting a new one when rotation is due.
type KeyRing struct {
	mu         sync.RWMutex
	keys       map[uuid.UUID]Key
	lastReload time.Time

	repository KeyRepository
	clock      func() time.Time
	lifetime   time.Duration
	lead       time.Duration
	logger     *slog.Logger
}

// NewKeyRing loads every persisted key from the repository.
func NewKeyRing(ctx context.Context, repository KeyRepository, clock func() time.Time, logger *slog.Logger) (*KeyRing, error) {
	if clock == nil {
		clock = time.Now
	}

	ring := &KeyRing{
		keys:       make(map[uuid.UUID]Key),
		repository: repository,
		clock:      clock,
		lifetime:   DefaultKeyLifetime,
		lead:       DefaultRotationLead,
		logger:     logger,
	}

	if err := ring.reload(ctx); err != nil {
		return nil, err
	}

	return ring, nil
}

// Current returns the default encryption key, rotating when needed.
func (ring *KeyRing) Current(ctx context.Context) (Key, error) {
	now := ring.clock()

	ring.mu.RLock()
	current, found := ring.defaultKey(now)
	due := ring.rotationDue(now, current, found)
	ring.mu.RUnlock()

	if !due {
		return current, nil
	}

	ring.mu.Lock()
	defer ring.mu.Unlock()

	// Another request may have rotated while we waited for the write lock.
	current, found = ring.defaultKey(now)
	if !ring.rotationDue(now, current, found) {
		return current, nil
	}

	activatesAt := now
	if found {
		activatesAt = current.ExpiresAt
	}

	generated, err := ring.generate(ctx, now, activatesAt)
	if err != nil {
		return Key{}, err
	}

	if !found {
		return generated, nil
	}
	return current, nil
}

// Lookup returns the key with the given id, excluding revoked keys.
//
// An unknown id triggers a throttled reload so that keys created by other
// instances sharing the repository become visible.
func (ring *KeyRing) Lookup(ctx context.Context, id uuid.UUID) (Key, bool) {
	ring.mu.RLock()
	key, found := ring.keys[id]
	stale := ring.clock().Sub(ring.lastReload) >= reloadInterval
	ring.mu.RUnlock()

	if !found && stale {
		if err := ring.reload(ctx); err != nil {
			ring.logger.WarnContext(ctx, "key_ring_reload_failed", slog.Any("error", err))
			return Key{}, false
		}
		ring.mu.RLock()
		key, found = ring.keys[id]
		ring.mu.RUnlock()
	}

	if !found || key.Revoked {
		return Key{}, false
	}
	return key, true
}

// Revoke marks a key as revoked. Payloads sealed under it no longer open.
func (ring *KeyRing) Revoke(ctx context.Context, id uuid.UUID) error {
	ring.mu.Lock()
	defer ring.mu.Unlock()

	key, found := ring.keys[id]
	if !found {
		return fmt.Errorf("protect: key %s not found", id)
	}

	key.Revoked = true
	if err := ring.repository.Store(ctx, key); err != nil {
		return fmt.Errorf("protect: failed to persist revocation: %w", err)
	}
	ring.keys[id] = key

	ring.logger.InfoContext(ctx, "key_revoked", slog.String("key_id", id.String()))
	return nil
}

// Keys returns a snapshot of the ring ordered by activation time.
func (ring *KeyRing) Keys() []Key {
	ring.mu.RLock()
	defer ring.mu.RUnlock()

	keys := make([]Key, 0, len(ring.keys))
	for _, key := range ring.keys {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].ActivatesAt.Before(keys[j].ActivatesAt) })
	return keys
}

// # Internals (callers hold ring.mu)

// defaultKey picks the most recently activated key that is active now.
func (ring *KeyRing) defaultKey(now time.Time) (Key, bool) {
	var best Key
	found := false
	for _, key := range ring.keys {
		if !key.activeAt(now) {
			continue
		}
		if !found || key.ActivatesAt.After(best.ActivatesAt) ||
			(key.ActivatesAt.Equal(best.ActivatesAt) && key.CreatedAt.After(best.CreatedAt)) {
			best, found = key, true
		}
	}
	return best, found
}

// rotationDue reports whether a key must be generated: none is active, or the
// default expires within the lead and no successor covers its expiry.
func (ring *KeyRing) rotationDue(now time.Time, current Key, found bool) bool {
	if !found {
		return true
	}
	if current.ExpiresAt.Sub(now) > ring.lead {
		return false
	}
	for _, key := range ring.keys {
		if key.Revoked || key.ID == current.ID {
			continue
		}
		if !key.ActivatesAt.After(current.ExpiresAt) && key.ExpiresAt.After(current.ExpiresAt) {
			return false
		}
	}
	return true
}

// generate creates, persists and registers a new key.
func (ring *KeyRing) generate(ctx context.Context, now, activatesAt time.Time) (Key, error) {
	material := make([]byte, keySize)
	if _, err := rand.Read(material); err != nil {
		return Key{}, fmt.Errorf("protect: failed to generate key material: %w", err)
	}

	id, err := uuid.NewV7()
	if err != nil {
		return Key{}, fmt.Errorf("protect: failed to generate key id: %w", err)
	}

	key := Key{
		ID:          id,
		Material:    material,
		CreatedAt:   now.UTC(),
		ActivatesAt: activatesAt.UTC(),
		ExpiresAt:   activatesAt.Add(ring.lifetime).UTC(),
	}

	if err := ring.repository.Store(ctx, key); err != nil {
		return Key{}, fmt.Errorf("protect: failed to persist key: %w", err)
	}
	ring.keys[key.ID] = key

	ring.logger.InfoContext(ctx, "key_generated",
		slog.String("key_id", key.ID.String()),
		slog.Time("activates_at", key.ActivatesAt),
		slog.Time("expires_at", key.ExpiresAt),
	)

	return key, nil
}

// reload replaces the in-memory ring with the repository contents.
func (ring *KeyRing) reload(ctx context.Context) error {
	keys, err := ring.repository.LoadAll(ctx)
	if err != nil {
		return fmt.Errorf("protect: failed to load keys: %w", err)
	}

	ring.mu.Lock()
	defer ring.mu.Unlock()

	for _, key := range keys {
		if len(key.Material) != keySize {
			ring.logger.WarnContext(ctx, "key_skipped_invalid_material", slog.String("key_id", key.ID.String()))
			continue
		}
		ring.keys[key.ID] = key
	}
	ring.lastReload = ring.clock()

	return nil
}
