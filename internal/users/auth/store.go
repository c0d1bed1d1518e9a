// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth

import (
	"context"
	"errors"
	"time"
)

// # Store Errors

var (
	// ErrUserNotFound is returned by lookups that match no principal.
	ErrUserNotFound = errors.New("auth: user not found")

	// ErrDuplicateEmail is returned when a normalized email is already taken.
	ErrDuplicateEmail = errors.New("auth: duplicate email")

	// ErrDuplicateUsername is returned when a normalized username is already taken.
	ErrDuplicateUsername = errors.New("auth: duplicate username")

	// ErrSessionNotFound is returned when a cookie session is absent or expired.
	ErrSessionNotFound = errors.New("auth: session not found")
)

// # Credential Data Access

// CredentialStore is the durable record of principals.
//
// Every mutation is a single atomic operation on one principal, so concurrent
// requests never observe a half-applied change. Failure-counter updates are
// last-writer-wins.
type CredentialStore interface {

	/*
		FindByID returns the principal with the given ID.

		Returns:
		  - *User: Hydrated entity
		  - error: ErrUserNotFound or storage failures
	*/
	FindByID(context context.Context, id string) (*User, error)

	/*
		FindByEmail returns the principal with the given normalized email.
	*/
	FindByEmail(context context.Context, normalizedEmail string) (*User, error)

	/*
		FindByUsername returns the principal with the given normalized username.
	*/
	FindByUsername(context context.Context, normalizedUsername string) (*User, error)

	/*
		Create persists a new principal.

		Returns:
		  - error: ErrDuplicateEmail, ErrDuplicateUsername or storage failures
	*/
	Create(context context.Context, user *User) error

	/*
		UpdateLockout stores the failure counter and lockout end.
	*/
	UpdateLockout(context context.Context, id string, accessFailedCount int, lockoutEnd *time.Time) error

	/*
		SetPasswordHash replaces the password hash and security stamp and clears
		the lockout state.
	*/
	SetPasswordHash(context context.Context, id, passwordHash, securityStamp string) error

	/*
		ConfirmEmail marks the current email as confirmed. The stamp is unchanged.
	*/
	ConfirmEmail(context context.Context, id string) error

	/*
		ChangeEmail replaces the email (and optionally the username), marks it
		confirmed and rotates the stamp.

		Returns:
		  - error: ErrDuplicateEmail, ErrDuplicateUsername or storage failures
	*/
	ChangeEmail(context context.Context, id string, change EmailChange) error

	/*
		SetTwoFactorEnabled toggles two-factor sign-in and rotates the stamp.
	*/
	SetTwoFactorEnabled(context context.Context, id string, enabled bool, securityStamp string) error

	/*
		SetAuthenticatorKey replaces the TOTP shared key and rotates the stamp.
	*/
	SetAuthenticatorKey(context context.Context, id, key, securityStamp string) error

	/*
		ReplaceRecoveryCodes overwrites the remaining recovery code hashes.
	*/
	ReplaceRecoveryCodes(context context.Context, id string, hashes []string) error

	/*
		RedeemRecoveryCode removes the hash if present.

		Returns:
		  - bool: true when the hash was present and is now consumed
		  - error: Storage failures
	*/
	RedeemRecoveryCode(context context.Context, id, hash string) (bool, error)
}

// # Volatile Data Access

// SessionRecord is the server-side state behind a session cookie.
type SessionRecord struct {
	UserID     string    `json:"userId"`
	Stamp      string    `json:"stamp"`
	Persistent bool      `json:"persistent"`
	CreatedAt  time.Time `json:"createdAt"`
	ExpiresAt  time.Time `json:"expiresAt"`
}

// SessionStore keeps cookie sessions keyed by the hash of their opaque id.
type SessionStore interface {
	Save(context context.Context, idHash string, record SessionRecord, ttl time.Duration) error
	Load(context context.Context, idHash string) (*SessionRecord, error)
	Delete(context context.Context, idHash string) error
}

// DeviceStore keeps the server-side marker of remembered two-factor devices.
type DeviceStore interface {
	Remember(context context.Context, deviceID, userID string, ttl time.Duration) error
	IsRemembered(context context.Context, deviceID, userID string) (bool, error)
	Forget(context context.Context, deviceID string) error
}
