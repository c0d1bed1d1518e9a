// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/taibuivan/authapi/internal/platform/apperr"
	"github.com/taibuivan/authapi/internal/platform/constants"
	"github.com/taibuivan/authapi/internal/platform/sec"
	"github.com/taibuivan/authapi/internal/platform/validate"
	"github.com/taibuivan/authapi/pkg/uuid"
)

// # Service

// Service implements the identity use cases exposed over HTTP.
//
// # Review Process
//
// This service is critical for security. Any changes to hashing, registration,
// or login logic must be reviewed by the security team.
type Service struct {
	store     CredentialStore
	hasher    *sec.PasswordHasher
	policy    PasswordPolicy
	engine    *Engine
	sessions  *SessionIssuer
	twoFactor *TwoFactorManager
	emails    *EmailFlow
	resets    *PasswordResetFlow
	clock     Clock
	logger    *slog.Logger
}

// ServiceDeps groups the collaborators of [Service].
type ServiceDeps struct {
	Store     CredentialStore
	Hasher    *sec.PasswordHasher
	Policy    PasswordPolicy
	Engine    *Engine
	Sessions  *SessionIssuer
	TwoFactor *TwoFactorManager
	Emails    *EmailFlow
	Resets    *PasswordResetFlow
	Clock     Clock
	Logger    *slog.Logger
}

// NewService constructs a new [Service] with necessary dependencies.
func NewService(deps ServiceDeps) *Service {
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	return &Service{
		store:     deps.Store,
		hasher:    deps.Hasher,
		policy:    deps.Policy,
		engine:    deps.Engine,
		sessions:  deps.Sessions,
		twoFactor: deps.TwoFactor,
		emails:    deps.Emails,
		resets:    deps.Resets,
		clock:     deps.Clock,
		logger:    deps.Logger,
	}
}

// # Registration Flow

// RegisterInput holds the data required to enroll a new principal.
type RegisterInput struct {
	Username string
	Email    string
	Password string
}

/*
Register validates, hashes, and persists a brand new principal, then mails a
confirmation link.

Description: Every broken rule is reported at once, keyed by its rule code,
including duplicate email and username.

Parameters:
  - context: context.Context
  - input: RegisterInput

Returns:
  - *User: Created entity
  - error: ValidationError or storage errors
*/
func (service *Service) Register(context context.Context, input RegisterInput) (*User, error) {
	normalizedEmail := NormalizeKey(input.Email)
	normalizedUsername := NormalizeKey(input.Username)

	validator := &validate.Validator{}
	CheckUsername(validator, input.Username)
	CheckEmail(validator, input.Email)

	if input.Username != "" {
		if _, err := service.store.FindByUsername(context, normalizedUsername); err == nil {
			validator.Add(CodeDuplicateUserName, fmt.Sprintf("Username '%s' is already taken.", input.Username))
		} else if !errors.Is(err, ErrUserNotFound) {
			return nil, fmt.Errorf("register_lookup_username_failed: %w", err)
		}
	}
	if validate.IsEmail(input.Email) {
		if _, err := service.store.FindByEmail(context, normalizedEmail); err == nil {
			validator.Add(CodeDuplicateEmail, fmt.Sprintf("Email '%s' is already taken.", input.Email))
		} else if !errors.Is(err, ErrUserNotFound) {
			return nil, fmt.Errorf("register_lookup_email_failed: %w", err)
		}
	}

	service.policy.Check(validator, input.Password)
	if err := validator.Err(); err != nil {
		return nil, err
	}

	// Prevent storing plain-text passwords.
	hashedPassword, err := service.hasher.Hash(input.Password)
	if err != nil {
		return nil, fmt.Errorf("register_hash_failed: %w", err)
	}

	stamp, err := sec.NewSecurityStamp()
	if err != nil {
		return nil, err
	}

	// Time-sortable ID to prevent PG index fragmentation.
	now := service.clock().UTC()
	user := &User{
		ID:                 uuid.New(),
		Username:           input.Username,
		NormalizedUsername: normalizedUsername,
		Email:              input.Email,
		NormalizedEmail:    normalizedEmail,
		PasswordHash:       hashedPassword,
		SecurityStamp:      stamp,
		LockoutEnabled:     true,
		Role:               sec.RoleMember,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	// A concurrent registration may still win the unique index.
	err = service.store.Create(context, user)
	switch {
	case errors.Is(err, ErrDuplicateEmail):
		return nil, duplicateEmailError(input.Email)
	case errors.Is(err, ErrDuplicateUsername):
		return nil, duplicateUsernameError(input.Username)
	case err != nil:
		return nil, fmt.Errorf("register_create_failed: %w", err)
	}

	service.logger.InfoContext(context, "user_registered", slog.String("user_id", user.ID))

	if err := service.emails.SendConfirmation(context, user, ""); err != nil {
		return nil, err
	}

	return user, nil
}

// # Authentication Flow

// LoginInput defines one sign-in attempt and how its session is carried.
type LoginInput struct {
	LoginRequest

	// UseCookies issues a cookie session instead of a bearer token pair.
	UseCookies bool

	// UseSessionCookies issues a cookie session that expires with the browser
	// session. It implies UseCookies.
	UseSessionCookies bool
}

// CookieMode reports whether the attempt asks for a cookie session.
func (input LoginInput) CookieMode() bool {
	return input.UseCookies || input.UseSessionCookies
}

// Persistent reports whether the attempt asks for a cookie that outlives the browser.
func (input LoginInput) Persistent() bool {
	return input.UseCookies && !input.UseSessionCookies
}

// LoginSession is the transport-ready outcome of a successful sign-in.
type LoginSession struct {
	User *User

	// Exactly one of Tokens or Cookie is set.
	Tokens *TokenPair
	Cookie *CookieSession

	// DeviceToken is set when the client was remembered for two-factor.
	DeviceToken     string
	DeviceExpiresAt time.Time
}

/*
Login runs the sign-in state machine and issues the requested session kind.

Parameters:
  - context: context.Context
  - input: LoginInput

Returns:
  - *LoginSession: Bearer pair or cookie session
  - error: Unauthorized, LockedOut or internal failures
*/
func (service *Service) Login(context context.Context, input LoginInput) (*LoginSession, error) {
	request := input.LoginRequest
	request.RememberDevice = input.Persistent()

	result, err := service.engine.Authenticate(context, request)
	if err != nil {
		return nil, err
	}

	session := &LoginSession{
		User:            result.User,
		DeviceToken:     result.DeviceToken,
		DeviceExpiresAt: result.DeviceExpiresAt,
	}

	if input.CookieMode() {
		session.Cookie, err = service.sessions.IssueCookieSession(context, result.User, input.Persistent())
	} else {
		session.Tokens, err = service.sessions.IssueBearer(context, result.User)
	}
	if err != nil {
		return nil, err
	}

	return session, nil
}

/*
Refresh exchanges a refresh token for a new token pair.

Returns:
  - *TokenPair: The new pair
  - error: Unauthorized or internal failures
*/
func (service *Service) Refresh(context context.Context, refreshToken string) (*TokenPair, error) {
	pair, user, err := service.sessions.Refresh(context, refreshToken)
	if err != nil {
		return nil, err
	}
	service.logger.InfoContext(context, "token_refreshed", slog.String("user_id", user.ID))
	return pair, nil
}

// Logout ends the cookie session, if any. It never fails for unknown sessions.
func (service *Service) Logout(context context.Context, sessionID string) error {
	return service.sessions.EndCookieSession(context, sessionID)
}

// # Email and Password Recovery

// ConfirmEmail redeems a confirmation or change-email code.
func (service *Service) ConfirmEmail(context context.Context, userID, code, changedEmail string) error {
	if !uuid.Valid(userID) {
		return apperr.Unauthorized("Email confirmation failed")
	}
	_, err := service.emails.ConfirmEmail(context, userID, code, changedEmail)
	return err
}

// ResendConfirmation mails a new confirmation link if the email is registered.
func (service *Service) ResendConfirmation(context context.Context, email string) error {
	return service.emails.ResendConfirmation(context, email)
}

// ForgotPassword mails a reset code if the email belongs to a confirmed principal.
func (service *Service) ForgotPassword(context context.Context, email string) error {
	return service.resets.RequestReset(context, email)
}

// ResetPassword sets a new password from a mailed reset code.
func (service *Service) ResetPassword(context context.Context, email, resetCode, newPassword string) error {
	return service.resets.CompleteReset(context, email, resetCode, newPassword)
}

// # Self Service

/*
GetUser returns the authenticated caller's principal.

Returns:
  - *User: The principal
  - error: NotFound when the record disappeared after authentication
*/
func (service *Service) GetUser(context context.Context, userID string) (*User, error) {
	user, err := service.store.FindByID(context, userID)
	if errors.Is(err, ErrUserNotFound) {
		return nil, apperr.NotFound("User")
	}
	if err != nil {
		return nil, fmt.Errorf("get_user_failed: %w", err)
	}
	return user, nil
}

/*
ChangePassword replaces the caller's password after checking the old one.

Description: The stamp rotates, revoking other sessions and refresh tokens;
a cookie caller's own session is re-bound so it stays signed in.

Returns:
  - error: ValidationError (OldPasswordRequired, PasswordMismatch, password
    rules), NotFound or internal failures
*/
func (service *Service) ChangePassword(context context.Context, claims *sec.AuthClaims, oldPassword, newPassword string) error {
	if oldPassword == "" {
		return validate.Fail(CodeOldPasswordRequired,
			"The old password is required to set a new password. If the old password is forgotten, use /resetPassword.")
	}

	user, err := service.GetUser(context, claims.UserID)
	if err != nil {
		return err
	}

	if !service.hasher.Verify(oldPassword, user.PasswordHash) {
		return passwordMismatchError()
	}

	if err := service.policy.Validate(newPassword); err != nil {
		return err
	}

	if err := setPassword(context, service.store, service.hasher, user, newPassword); err != nil {
		return err
	}

	service.logger.InfoContext(context, "password_changed", slog.String("user_id", user.ID))
	return service.keepCookieSession(context, claims, user)
}

// RequestEmailChange mails a change-email link to newEmail.
func (service *Service) RequestEmailChange(context context.Context, userID, newEmail string) error {
	user, err := service.GetUser(context, userID)
	if err != nil {
		return err
	}
	return service.emails.RequestEmailChange(context, user, newEmail)
}

/*
UpdateTwoFactor applies a two-factor request for the caller.

Parameters:
  - context: context.Context
  - claims: *sec.AuthClaims (Authenticated caller)
  - request: TwoFactorRequest
  - deviceToken: string (Remembered-device cookie, may be empty)

Returns:
  - *TwoFactorResponse: New two-factor state
  - error: ValidationError keyed by rule code, NotFound or internal failures
*/
func (service *Service) UpdateTwoFactor(context context.Context, claims *sec.AuthClaims, request TwoFactorRequest, deviceToken string) (*TwoFactorResponse, error) {
	update, err := service.twoFactor.Update(context, claims.UserID, request, deviceToken)
	if err != nil {
		return nil, err
	}

	if update.StampRotated {
		if err := service.keepCookieSession(context, claims, update.User); err != nil {
			return nil, err
		}
	}
	return update.Response, nil
}

// VerifyBearer resolves an access token for the authentication middleware.
func (service *Service) VerifyBearer(context context.Context, token string) (*sec.AuthClaims, error) {
	return service.sessions.VerifyBearer(context, token)
}

// VerifyCookie resolves a session cookie for the authentication middleware.
func (service *Service) VerifyCookie(context context.Context, sessionID string) (*sec.AuthClaims, error) {
	return service.sessions.VerifyCookie(context, sessionID)
}

// keepCookieSession re-binds the caller's own cookie session after a stamp rotation.
func (service *Service) keepCookieSession(context context.Context, claims *sec.AuthClaims, user *User) error {
	if claims.Scheme != constants.SchemeCookie || claims.SessionID == "" {
		return nil
	}
	if err := service.sessions.RefreshCookieSession(context, claims.SessionID, user); err != nil {
		service.logger.WarnContext(context, "cookie_session_rebind_failed",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
		)
	}
	return nil
}
