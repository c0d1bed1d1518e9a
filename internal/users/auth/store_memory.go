// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth

import (
	"context"
	"slices"
	"sync"
	"time"
)

// MemoryStore is an in-process [CredentialStore].
//
// It backs tests and single-node development runs (STORE_DRIVER=memory).
// Every method copies on the way in and out so callers never share state.
type MemoryStore struct {
	mu    sync.Mutex
	users map[string]*User
	clock Clock
}

// NewMemoryStore returns an empty store.
func NewMemoryStore(clock Clock) *MemoryStore {
	if clock == nil {
		clock = time.Now
	}
	return &MemoryStore{users: make(map[string]*User), clock: clock}
}

// FindByID returns the principal with the given ID.
func (store *MemoryStore) FindByID(_ context.Context, id string) (*User, error) {
	store.mu.Lock()
	defer store.mu.Unlock()

	user, found := store.users[id]
	if !found {
		return nil, ErrUserNotFound
	}
	return cloneUser(user), nil
}

// FindByEmail returns the principal with the given normalized email.
func (store *MemoryStore) FindByEmail(_ context.Context, normalizedEmail string) (*User, error) {
	return store.findBy(func(user *User) bool { return user.NormalizedEmail == normalizedEmail })
}

// FindByUsername returns the principal with the given normalized username.
func (store *MemoryStore) FindByUsername(_ context.Context, normalizedUsername string) (*User, error) {
	return store.findBy(func(user *User) bool { return user.NormalizedUsername == normalizedUsername })
}

// Create persists a new principal.
func (store *MemoryStore) Create(_ context.Context, user *User) error {
	store.mu.Lock()
	defer store.mu.Unlock()

	if err := store.checkUnique("", user.NormalizedEmail, user.NormalizedUsername); err != nil {
		return err
	}

	now := store.clock().UTC()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now

	store.users[user.ID] = cloneUser(user)
	return nil
}

// UpdateLockout stores the failure counter and lockout end.
func (store *MemoryStore) UpdateLockout(_ context.Context, id string, accessFailedCount int, lockoutEnd *time.Time) error {
	return store.mutate(id, func(user *User) {
		user.AccessFailedCount = accessFailedCount
		user.LockoutEnd = cloneTime(lockoutEnd)
	})
}

// SetPasswordHash replaces the hash and stamp and clears the lockout state.
func (store *MemoryStore) SetPasswordHash(_ context.Context, id, passwordHash, securityStamp string) error {
	return store.mutate(id, func(user *User) {
		user.PasswordHash = passwordHash
		user.SecurityStamp = securityStamp
		user.AccessFailedCount = 0
		user.LockoutEnd = nil
	})
}

// ConfirmEmail marks the email as confirmed.
func (store *MemoryStore) ConfirmEmail(_ context.Context, id string) error {
	return store.mutate(id, func(user *User) { user.EmailConfirmed = true })
}

// ChangeEmail swaps the email, confirms it and rotates the stamp.
func (store *MemoryStore) ChangeEmail(_ context.Context, id string, change EmailChange) error {
	store.mu.Lock()
	defer store.mu.Unlock()

	user, found := store.users[id]
	if !found {
		return ErrUserNotFound
	}

	if err := store.checkUnique(id, change.NormalizedEmail, change.NormalizedUsername); err != nil {
		return err
	}

	user.Email = change.Email
	user.NormalizedEmail = change.NormalizedEmail
	user.EmailConfirmed = true
	if change.Username != "" {
		user.Username = change.Username
		user.NormalizedUsername = change.NormalizedUsername
	}
	user.SecurityStamp = change.SecurityStamp
	user.UpdatedAt = store.clock().UTC()

	return nil
}

// SetTwoFactorEnabled toggles two-factor sign-in and rotates the stamp.
func (store *MemoryStore) SetTwoFactorEnabled(_ context.Context, id string, enabled bool, securityStamp string) error {
	return store.mutate(id, func(user *User) {
		user.TwoFactorEnabled = enabled
		user.SecurityStamp = securityStamp
	})
}

// SetAuthenticatorKey replaces the shared key and rotates the stamp.
func (store *MemoryStore) SetAuthenticatorKey(_ context.Context, id, key, securityStamp string) error {
	return store.mutate(id, func(user *User) {
		user.AuthenticatorKey = key
		user.SecurityStamp = securityStamp
	})
}

// ReplaceRecoveryCodes overwrites the remaining recovery code hashes.
func (store *MemoryStore) ReplaceRecoveryCodes(_ context.Context, id string, hashes []string) error {
	return store.mutate(id, func(user *User) { user.RecoveryCodes = slices.Clone(hashes) })
}

// RedeemRecoveryCode removes the hash if present.
func (store *MemoryStore) RedeemRecoveryCode(_ context.Context, id, hash string) (bool, error) {
	store.mu.Lock()
	defer store.mu.Unlock()

	user, found := store.users[id]
	if !found {
		return false, ErrUserNotFound
	}

	index := slices.Index(user.RecoveryCodes, hash)
	if index < 0 {
		return false, nil
	}

	user.RecoveryCodes = slices.Delete(user.RecoveryCodes, index, index+1)
	user.UpdatedAt = store.clock().UTC()
	return true, nil
}

// # Helpers

func (store *MemoryStore) findBy(match func(*User) bool) (*User, error) {
	store.mu.Lock()
	defer store.mu.Unlock()

	for _, user := range store.users {
		if match(user) {
			return cloneUser(user), nil
		}
	}
	return nil, ErrUserNotFound
}

func (store *MemoryStore) mutate(id string, apply func(*User)) error {
	store.mu.Lock()
	defer store.mu.Unlock()

	user, found := store.users[id]
	if !found {
		return ErrUserNotFound
	}

	apply(user)
	user.UpdatedAt = store.clock().UTC()
	return nil
}

// checkUnique enforces the unique indexes, ignoring the principal being updated.
func (store *MemoryStore) checkUnique(selfID, normalizedEmail, normalizedUsername string) error {
	for id, other := range store.users {
		if id == selfID {
			continue
		}
		if normalizedEmail != "" && other.NormalizedEmail == normalizedEmail {
			return ErrDuplicateEmail
		}
		if normalizedUsername != "" && other.NormalizedUsername == normalizedUsername {
			return ErrDuplicateUsername
		}
	}
	return nil
}

func cloneUser(user *User) *User {
	clone := *user
	clone.LockoutEnd = cloneTime(user.LockoutEnd)
	clone.RecoveryCodes = slices.Clone(user.RecoveryCodes)
	return &clone
}

func cloneTime(value *time.Time) *time.Time {
	if value == nil {
		return nil
	}
	clone := *value
	return &clone
}
