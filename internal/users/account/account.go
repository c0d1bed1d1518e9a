// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package account handles self-service management of the authenticated principal.

It lets callers read their identity claims, change their password or email,
and manage their two-factor settings.

# Architecture

  - Entities: UserInfo and Claim (DTOs).
  - Domain: This package depends on the auth package for the User entity and
    every credential mutation.
*/
package account

import (
	"context"

	"github.com/taibuivan/authapi/internal/platform/sec"
	"github.com/taibuivan/authapi/internal/users/auth"
)

// # Domain Entities

// Claim is one identity claim of the caller.
type Claim struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// Claim types reported by GET /me.
const (
	ClaimTypeName  = "name"
	ClaimTypeEmail = "email"
	ClaimTypeRole  = "role"
)

// UserInfo is the caller's view of their own account.
type UserInfo struct {
	IsEmailConfirmed bool    `json:"isEmailConfirmed"`
	Claims           []Claim `json:"claims"`
}

// ChangeInput is a combined password and email change. Empty fields are skipped.
type ChangeInput struct {
	NewEmail    string
	NewPassword string
	OldPassword string
}

// # Identity Contract

// Identity is the slice of the auth service that account management needs.
type Identity interface {

	/*
		GetUser returns the caller's principal.

		Returns:
		  - *auth.User: Loaded principal
		  - error: apperr.NotFound or storage failures
	*/
	GetUser(context context.Context, userID string) (*auth.User, error)

	/*
		ChangePassword checks the old password and stores the new one.
	*/
	ChangePassword(context context.Context, claims *sec.AuthClaims, oldPassword, newPassword string) error

	/*
		RequestEmailChange mails a change-email link to the new address.
	*/
	RequestEmailChange(context context.Context, userID, newEmail string) error

	/*
		UpdateTwoFactor applies a two-factor request.
	*/
	UpdateTwoFactor(context context.Context, claims *sec.AuthClaims, request auth.TwoFactorRequest, deviceToken string) (*auth.TwoFactorResponse, error)
}
