// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package auth implements the credential and token lifecycle of the service.

It covers registration, the login state machine (password, lockout, two-factor),
bearer and cookie sessions, refresh, email confirmation, password reset and
two-factor management.

# Architecture

  - Entities: User (the principal) and its two-factor state.
  - Engine: The login state machine, independent of transport and session mode.
  - SessionIssuer: Mints bearer token pairs and Redis-backed cookie sessions.
  - Flows: One-time codes for email confirmation, email change and password reset.
  - Stores: CredentialStore (Postgres or memory), SessionStore and DeviceStore (Redis).
*/
package auth

import (
	"time"

	"github.com/taibuivan/authapi/internal/platform/sec"
)

// # Domain Entities

// User is the principal: a registered account with its credentials and
// security state. Records are never hard-deleted.
type User struct {
	ID                 string       `json:"id"`
	Username           string       `json:"username"`
	NormalizedUsername string       `json:"-"`
	Email              string       `json:"email"`
	NormalizedEmail    string       `json:"-"`
	EmailConfirmed     bool         `json:"emailConfirmed"`
	PasswordHash       string       `json:"-"`
	SecurityStamp      string       `json:"-"`
	LockoutEnabled     bool         `json:"-"`
	AccessFailedCount  int          `json:"-"`
	LockoutEnd         *time.Time   `json:"-"`
	TwoFactorEnabled   bool         `json:"twoFactorEnabled"`
	AuthenticatorKey   string       `json:"-"`
	RecoveryCodes      []string     `json:"-"` // Hashes of the remaining single-use codes.
	Role               sec.UserRole `json:"role"`
	CreatedAt          time.Time    `json:"createdAt"`
	UpdatedAt          time.Time    `json:"updatedAt"`
}

// IsLockedOut reports whether the account is inside an active lockout window.
func (user *User) IsLockedOut(now time.Time) bool {
	return user.LockoutEnabled && user.LockoutEnd != nil && user.LockoutEnd.After(now)
}

// Claims returns the identity carried by tokens and sessions for this user.
func (user *User) Claims(scheme string) *sec.AuthClaims {
	return &sec.AuthClaims{
		UserID:   user.ID,
		Username: user.Username,
		Email:    user.Email,
		Role:     user.Role.String(),
		Scheme:   scheme,
	}
}

// EmailChange is the set of columns rewritten when a principal confirms a new email.
type EmailChange struct {
	Email              string
	NormalizedEmail    string
	Username           string // Mirrors the email when the username used to equal the old email.
	NormalizedUsername string
	SecurityStamp      string
}

// Clock returns the current instant. Every expiry comparison goes through it.
type Clock func() time.Time

// # Field Identifiers

// JSON field names used in validation details for request-shape failures.
const (
	FieldUsername              = "username"
	FieldEmail                 = "email"
	FieldPassword              = "password"
	FieldRefreshToken          = "refreshToken"
	FieldUserID                = "userId"
	FieldCode                  = "code"
	FieldResetCode             = "resetCode"
	FieldNewPassword           = "newPassword"
	FieldTwoFactorCode         = "twoFactorCode"
	FieldTwoFactorRecoveryCode = "twoFactorRecoveryCode"
)
