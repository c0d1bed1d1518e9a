// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/taibuivan/authapi/internal/platform/apperr"
	"github.com/taibuivan/authapi/internal/platform/sec"
	"github.com/taibuivan/authapi/internal/platform/validate"
)

// # Email Flow

// EmailConfirmation is the outcome of a successful confirm-email call.
type EmailConfirmation struct {
	User         *User
	StampRotated bool
}

// EmailFlow confirms email ownership for new accounts and email changes.
type EmailFlow struct {
	store    CredentialStore
	codes    *CodeProvider
	notifier *Notifier
	logger   *slog.Logger
}

// NewEmailFlow constructs an [EmailFlow].
func NewEmailFlow(store CredentialStore, codes *CodeProvider, notifier *Notifier, logger *slog.Logger) *EmailFlow {
	return &EmailFlow{store: store, codes: codes, notifier: notifier, logger: logger}
}

/*
SendConfirmation mails a confirmation link for the user's email, or for
newEmail when it is not empty (email change).

Returns:
  - error: Code or link failures. Mail delivery errors are only logged.
*/
func (flow *EmailFlow) SendConfirmation(context context.Context, user *User, newEmail string) error {
	purpose, target := PurposeEmailConfirmation, user.Email
	if newEmail != "" {
		purpose, target = ChangeEmailPurpose(NormalizeKey(newEmail)), newEmail
	}

	code, err := flow.codes.Generate(context, user, purpose)
	if err != nil {
		return err
	}

	link, err := flow.notifier.ConfirmationLink(user.ID, EncodeCode(code), newEmail)
	if err != nil {
		return apperr.Internal(err)
	}

	flow.notifier.SendConfirmationLink(context, target, link)
	return nil
}

/*
ConfirmEmail redeems a confirmation code.

Description: Without changedEmail the current email is marked confirmed.
With changedEmail the code must have been minted for that address; the email
is replaced, confirmed, mirrored into the username when the username used to
be the old email, and the stamp rotates.

Returns:
  - *EmailConfirmation: The updated principal
  - error: Unauthorized for any unusable input, or storage failures
*/
func (flow *EmailFlow) ConfirmEmail(context context.Context, userID, encodedCode, changedEmail string) (*EmailConfirmation, error) {
	unauthorized := apperr.Unauthorized("Email confirmation failed")

	user, err := flow.store.FindByID(context, userID)
	if errors.Is(err, ErrUserNotFound) {
		return nil, unauthorized
	}
	if err != nil {
		return nil, fmt.Errorf("confirm_email_lookup_failed: %w", err)
	}

	code, ok := DecodeCode(encodedCode)
	if !ok {
		return nil, unauthorized
	}

	if changedEmail == "" {
		if !flow.codes.Verify(context, user, PurposeEmailConfirmation, code) {
			return nil, unauthorized
		}
		if err := flow.store.ConfirmEmail(context, user.ID); err != nil {
			return nil, fmt.Errorf("confirm_email_failed: %w", err)
		}
		user.EmailConfirmed = true
		flow.logger.InfoContext(context, "email_confirmed", slog.String("user_id", user.ID))
		return &EmailConfirmation{User: user}, nil
	}

	normalized := NormalizeKey(changedEmail)
	if !validate.IsEmail(changedEmail) || !flow.codes.Verify(context, user, ChangeEmailPurpose(normalized), code) {
		return nil, unauthorized
	}

	stamp, err := sec.NewSecurityStamp()
	if err != nil {
		return nil, err
	}

	change := EmailChange{Email: changedEmail, NormalizedEmail: normalized, SecurityStamp: stamp}
	if user.NormalizedUsername == user.NormalizedEmail {
		change.Username, change.NormalizedUsername = changedEmail, normalized
	}

	err = flow.store.ChangeEmail(context, user.ID, change)
	if errors.Is(err, ErrDuplicateEmail) || errors.Is(err, ErrDuplicateUsername) {
		return nil, unauthorized
	}
	if err != nil {
		return nil, fmt.Errorf("change_email_failed: %w", err)
	}

	user.Email, user.NormalizedEmail, user.EmailConfirmed, user.SecurityStamp = changedEmail, normalized, true, stamp
	if change.Username != "" {
		user.Username, user.NormalizedUsername = change.Username, change.NormalizedUsername
	}

	flow.logger.InfoContext(context, "email_changed", slog.String("user_id", user.ID))
	return &EmailConfirmation{User: user, StampRotated: true}, nil
}

// ResendConfirmation mails a new confirmation link when the email belongs to
// a principal. It reports success either way.
func (flow *EmailFlow) ResendConfirmation(context context.Context, email string) error {
	user, err := flow.store.FindByEmail(context, NormalizeKey(email))
	if errors.Is(err, ErrUserNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("resend_confirmation_lookup_failed: %w", err)
	}
	return flow.SendConfirmation(context, user, "")
}

// RequestEmailChange mails a change-email link to newEmail when it differs
// from the current address.
func (flow *EmailFlow) RequestEmailChange(context context.Context, user *User, newEmail string) error {
	if newEmail == user.Email {
		return nil
	}
	if err := CheckEmail(&validate.Validator{}, newEmail).Err(); err != nil {
		return err
	}
	flow.logger.InfoContext(context, "email_change_requested", slog.String("user_id", user.ID))
	return flow.SendConfirmation(context, user, newEmail)
}
