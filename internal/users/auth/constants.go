// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth

import "time"

// # Token Purposes

// Purposes bind sealed payloads to their use; a token minted for one never
// opens as another.
const (
	PurposeAccessToken  = "Bearer.AccessToken"
	PurposeRefreshToken = "Bearer.RefreshToken"

	PurposeEmailConfirmation = "EmailConfirmation"
	PurposeResetPassword     = "ResetPassword"
	purposeChangeEmailPrefix = "ChangeEmail:"

	claimStamp    = "stamp"
	claimUsername = "username"
	claimEmail    = "email"
	claimRole     = "role"
)

// ChangeEmailPurpose returns the code purpose for a change to the given normalized email.
func ChangeEmailPurpose(normalizedEmail string) string {
	return purposeChangeEmailPrefix + normalizedEmail
}

// # Lifetimes and Limits

const (
	// DefaultAccessTokenTTL is the lifetime of a bearer access token.
	DefaultAccessTokenTTL = 15 * time.Minute

	// DefaultRefreshTokenTTL is the lifetime of a bearer refresh token.
	DefaultRefreshTokenTTL = 14 * 24 * time.Hour

	// DefaultCookieSessionTTL is the lifetime of a server-side cookie session.
	DefaultCookieSessionTTL = 14 * 24 * time.Hour

	// RememberedDeviceTTL is how long a device skips the second factor.
	RememberedDeviceTTL = 14 * 24 * time.Hour

	// OneTimeCodeTTL is the lifetime of confirmation, change-email and reset codes.
	OneTimeCodeTTL = 24 * time.Hour

	// DefaultLockoutMaxAttempts is the failure count that triggers a lockout.
	DefaultLockoutMaxAttempts = 5

	// DefaultLockoutDuration is how long a lockout lasts.
	DefaultLockoutDuration = 5 * time.Minute

	// RecoveryCodeCount is the number of codes issued on (re)generation.
	RecoveryCodeCount = 10

	// SessionIDLength is the number of random bytes in a cookie session id.
	SessionIDLength = 32
)

// # Identity Error Codes

// Rule codes returned as validation detail fields.
const (
	CodeDuplicateUserName               = "DuplicateUserName"
	CodeDuplicateEmail                  = "DuplicateEmail"
	CodeInvalidUserName                 = "InvalidUserName"
	CodeInvalidEmail                    = "InvalidEmail"
	CodePasswordTooShort                = "PasswordTooShort"
	CodePasswordTooLong                 = "PasswordTooLong"
	CodePasswordRequiresDigit           = "PasswordRequiresDigit"
	CodePasswordRequiresLower           = "PasswordRequiresLower"
	CodePasswordRequiresUpper           = "PasswordRequiresUpper"
	CodePasswordRequiresNonAlphanumeric = "PasswordRequiresNonAlphanumeric"
	CodePasswordRequiresUniqueChars     = "PasswordRequiresUniqueChars"
	CodePasswordMismatch                = "PasswordMismatch"
	CodeInvalidToken                    = "InvalidToken"
	CodeOldPasswordRequired             = "ChangeMe.OldPasswordRequired"

	CodeCannotResetSharedKeyAndEnable = "TwoFactorRequest.CannotResetSharedKeyAndEnable"
	CodeRequiresTwoFactor             = "TwoFactorRequest.RequiresTwoFactor"
	CodeInvalidTwoFactorCode          = "TwoFactorRequest.InvalidTwoFactorCode"
)

// # Client Messages

const (
	MessageInvalidCredentials = "Invalid email and/or password."
	MessageLockedOut          = "The account is locked out. Try again later."
	MessageEmailConfirmed     = "Thank you for confirming your email."
)
