// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package account

import (
	"context"

	"github.com/taibuivan/authapi/internal/platform/sec"
	"github.com/taibuivan/authapi/internal/users/auth"
)

// Service implements the self-service use cases of the authenticated caller.
type Service struct {
	identity Identity
}

// NewService constructs a new account [Service].
func NewService(identity Identity) *Service {
	return &Service{identity: identity}
}

/*
GetInfo returns the caller's claims and email confirmation state.

Parameters:
  - context: context.Context
  - userID: string (UUID)

Returns:
  - *UserInfo: Claims view of the principal
  - error: NotFound or storage failures
*/
func (service *Service) GetInfo(context context.Context, userID string) (*UserInfo, error) {
	user, err := service.identity.GetUser(context, userID)
	if err != nil {
		return nil, err
	}
	return infoOf(user), nil
}

/*
Change applies a password change and then an email change request.

Description: The password is changed first; a failure there stops the call
before any email is sent. An email change only mails a link, the address
itself changes when the link is followed.

Returns:
  - *UserInfo: The caller's info after the change
  - error: ValidationError, NotFound or storage failures
*/
func (service *Service) Change(context context.Context, claims *sec.AuthClaims, input ChangeInput) (*UserInfo, error) {
	if input.NewPassword != "" {
		if err := service.identity.ChangePassword(context, claims, input.OldPassword, input.NewPassword); err != nil {
			return nil, err
		}
	}

	if input.NewEmail != "" {
		if err := service.identity.RequestEmailChange(context, claims.UserID, input.NewEmail); err != nil {
			return nil, err
		}
	}

	return service.GetInfo(context, claims.UserID)
}

// UpdateTwoFactor applies a two-factor request for the caller.
func (service *Service) UpdateTwoFactor(context context.Context, claims *sec.AuthClaims, request auth.TwoFactorRequest, deviceToken string) (*auth.TwoFactorResponse, error) {
	return service.identity.UpdateTwoFactor(context, claims, request, deviceToken)
}

// infoOf maps a principal to its claims view. The name falls back to the
// email when no username is set.
func infoOf(user *auth.User) *UserInfo {
	name := user.Username
	if name == "" {
		name = user.Email
	}

	return &UserInfo{
		IsEmailConfirmed: user.EmailConfirmed,
		Claims: []Claim{
			{Type: ClaimTypeRole, Value: user.Role.String()},
			{Type: ClaimTypeName, Value: name},
			{Type: ClaimTypeEmail, Value: user.Email},
		},
	}
}
