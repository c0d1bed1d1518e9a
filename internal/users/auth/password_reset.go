// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/taibuivan/authapi/internal/platform/sec"
)

// # Password Reset Flow

// PasswordResetFlow resets forgotten passwords through a mailed code.
//
// Unknown and unconfirmed emails behave exactly like known ones from the
// caller's point of view.
type PasswordResetFlow struct {
	store    CredentialStore
	codes    *CodeProvider
	hasher   *sec.PasswordHasher
	policy   PasswordPolicy
	notifier *Notifier
	logger   *slog.Logger
}

// NewPasswordResetFlow constructs a [PasswordResetFlow].
func NewPasswordResetFlow(store CredentialStore, codes *CodeProvider, hasher *sec.PasswordHasher, policy PasswordPolicy, notifier *Notifier, logger *slog.Logger) *PasswordResetFlow {
	return &PasswordResetFlow{store: store, codes: codes, hasher: hasher, policy: policy, notifier: notifier, logger: logger}
}

// RequestReset mails a reset code when email belongs to a confirmed principal.
func (flow *PasswordResetFlow) RequestReset(context context.Context, email string) error {
	user, err := flow.store.FindByEmail(context, NormalizeKey(email))
	if errors.Is(err, ErrUserNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("password_reset_lookup_failed: %w", err)
	}
	if !user.EmailConfirmed {
		return nil
	}

	code, err := flow.codes.Generate(context, user, PurposeResetPassword)
	if err != nil {
		return err
	}

	flow.logger.InfoContext(context, "password_reset_requested", slog.String("user_id", user.ID))
	flow.notifier.SendPasswordResetCode(context, user.Email, EncodeCode(code))
	return nil
}

/*
CompleteReset sets a new password using a mailed code.

Description: The code is checked before the password rules, so an attacker
without a code learns nothing about the account. Success rotates the stamp,
which revokes every refresh token and cookie session, and clears lockout.

Returns:
  - error: InvalidToken or password rule failures (400), or storage failures
*/
func (flow *PasswordResetFlow) CompleteReset(context context.Context, email, encodedCode, newPassword string) error {
	user, err := flow.store.FindByEmail(context, NormalizeKey(email))
	if err != nil && !errors.Is(err, ErrUserNotFound) {
		return fmt.Errorf("password_reset_lookup_failed: %w", err)
	}
	if user == nil || !user.EmailConfirmed {
		return invalidTokenError()
	}

	code, ok := DecodeCode(encodedCode)
	if !ok || !flow.codes.Verify(context, user, PurposeResetPassword, code) {
		return invalidTokenError()
	}

	if err := flow.policy.Validate(newPassword); err != nil {
		return err
	}

	if err := setPassword(context, flow.store, flow.hasher, user, newPassword); err != nil {
		return err
	}

	flow.logger.InfoContext(context, "password_reset_completed", slog.String("user_id", user.ID))
	return nil
}

// setPassword hashes password, rotates the stamp and clears lockout.
func setPassword(context context.Context, store CredentialStore, hasher *sec.PasswordHasher, user *User, password string) error {
	hash, err := hasher.Hash(password)
	if err != nil {
		return fmt.Errorf("password_hash_failed: %w", err)
	}
	stamp, err := sec.NewSecurityStamp()
	if err != nil {
		return err
	}
	if err := store.SetPasswordHash(context, user.ID, hash, stamp); err != nil {
		return fmt.Errorf("password_update_failed: %w", err)
	}
	user.PasswordHash, user.SecurityStamp = hash, stamp
	user.AccessFailedCount, user.LockoutEnd = 0, nil
	return nil
}
