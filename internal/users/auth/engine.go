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
	"github.com/taibuivan/authapi/internal/platform/sec"
)

// # Login State Machine

// LoginState is a stage of a single sign-in attempt.
type LoginState int

const (
	StateAwaitingCredentials LoginState = iota
	StatePasswordVerified
	StateTwoFactorRequired
	StateAuthenticated
	StateRejected
)

// String returns the log label of the state.
func (state LoginState) String() string {
	switch state {
	case StateAwaitingCredentials:
		return "awaiting_credentials"
	case StatePasswordVerified:
		return "password_verified"
	case StateTwoFactorRequired:
		return "two_factor_required"
	case StateAuthenticated:
		return "authenticated"
	default:
		return "rejected"
	}
}

// LockoutPolicy bounds consecutive failed sign-ins.
type LockoutPolicy struct {
	MaxAttempts int
	Duration    time.Duration
}

// DefaultLockoutPolicy returns five attempts followed by a five minute lockout.
func DefaultLockoutPolicy() LockoutPolicy {
	return LockoutPolicy{MaxAttempts: DefaultLockoutMaxAttempts, Duration: DefaultLockoutDuration}
}

// LoginRequest is one sign-in attempt, independent of how the session will be carried.
type LoginRequest struct {
	Email                 string
	Password              string
	TwoFactorCode         string
	TwoFactorRecoveryCode string

	// DeviceToken is the remembered-device cookie, if the client sent one.
	DeviceToken string

	// RememberDevice asks the engine to remember the client after a successful TOTP.
	RememberDevice bool
}

// LoginResult is the outcome of an authenticated attempt.
type LoginResult struct {
	User *User

	// DeviceToken is set when the client was remembered during this attempt.
	DeviceToken     string
	DeviceExpiresAt time.Time
}

// Engine runs the sign-in state machine.
//
// It is stateless between calls; every counter it touches lives on the
// principal record and is persisted before the attempt is answered.
type Engine struct {
	store                 CredentialStore
	hasher                *sec.PasswordHasher
	authenticator         *sec.Authenticator
	devices               *DeviceRegistry
	clock                 Clock
	lockout               LockoutPolicy
	requireConfirmedEmail bool
	logger                *slog.Logger
}

// EngineOptions tunes the policy checks of the [Engine].
type EngineOptions struct {
	Lockout               LockoutPolicy
	RequireConfirmedEmail bool
}

// NewEngine constructs the sign-in state machine.
func NewEngine(
	store CredentialStore,
	hasher *sec.PasswordHasher,
	authenticator *sec.Authenticator,
	devices *DeviceRegistry,
	clock Clock,
	options EngineOptions,
	logger *slog.Logger,
) *Engine {
	if options.Lockout.MaxAttempts <= 0 {
		options.Lockout = DefaultLockoutPolicy()
	}
	return &Engine{
		store:                 store,
		hasher:                hasher,
		authenticator:         authenticator,
		devices:               devices,
		clock:                 clock,
		lockout:               options.Lockout,
		requireConfirmedEmail: options.RequireConfirmedEmail,
		logger:                logger,
	}
}

/*
Authenticate drives one attempt from credentials to a terminal state.

Description: Every rejection except lockout yields the same client error so
that callers cannot tell an unknown email from a wrong password or a wrong
second factor.

Parameters:
  - context: context.Context
  - request: LoginRequest

Returns:
  - *LoginResult: The authenticated principal
  - error: Unauthorized, LockedOut or storage failures
*/
func (engine *Engine) Authenticate(context context.Context, request LoginRequest) (*LoginResult, error) {
	state := StateAwaitingCredentials
	now := engine.clock()

	// 1. Lookup. An unknown email still pays for one hash comparison.
	user, err := engine.store.FindByEmail(context, NormalizeKey(request.Email))
	if errors.Is(err, ErrUserNotFound) {
		engine.hasher.Burn(request.Password)
		return nil, engine.reject(context, state, "", "unknown_email")
	}
	if err != nil {
		return nil, fmt.Errorf("login_lookup_failed: %w", err)
	}

	// 2. An active lockout short-circuits without touching the counters.
	if user.IsLockedOut(now) {
		engine.logger.WarnContext(context, "login_locked_out", slog.String("user_id", user.ID))
		return nil, apperr.LockedOut(MessageLockedOut)
	}

	// 3. Password.
	if !engine.hasher.Verify(request.Password, user.PasswordHash) {
		lockedOut, err := engine.accessFailed(context, user, now)
		if err != nil {
			return nil, err
		}
		if lockedOut {
			engine.logger.WarnContext(context, "login_lockout_started", slog.String("user_id", user.ID))
			return nil, apperr.LockedOut(MessageLockedOut)
		}
		return nil, engine.reject(context, state, user.ID, "wrong_password")
	}
	state = StatePasswordVerified

	// 4. Optional confirmed-email policy.
	if engine.requireConfirmedEmail && !user.EmailConfirmed {
		return nil, engine.reject(context, state, user.ID, "email_not_confirmed")
	}

	// 5. Single factor.
	if !user.TwoFactorEnabled {
		return engine.authenticated(context, user, nil)
	}

	// 6. Second factor.
	if engine.devices.Recognize(context, user, request.DeviceToken) {
		return engine.authenticated(context, user, nil)
	}
	state = StateTwoFactorRequired

	switch {
	case request.TwoFactorCode != "":
		if !engine.authenticator.Validate(user.AuthenticatorKey, request.TwoFactorCode, now) {
			lockedOut, err := engine.accessFailed(context, user, now)
			if err != nil {
				return nil, err
			}
			if lockedOut {
				engine.logger.WarnContext(context, "login_lockout_started", slog.String("user_id", user.ID))
			}
			return nil, engine.reject(context, state, user.ID, "invalid_two_factor_code")
		}

		result := &LoginResult{User: user}
		if request.RememberDevice {
			token, expiresAt, err := engine.devices.Remember(context, user)
			if err != nil {
				return nil, err
			}
			result.DeviceToken, result.DeviceExpiresAt = token, expiresAt
		}
		return engine.authenticated(context, user, result)

	case request.TwoFactorRecoveryCode != "":
		redeemed, err := engine.store.RedeemRecoveryCode(context, user.ID, hashRecoveryCode(user.ID, request.TwoFactorRecoveryCode))
		if err != nil {
			return nil, fmt.Errorf("login_redeem_recovery_code_failed: %w", err)
		}
		if !redeemed {
			return nil, engine.reject(context, state, user.ID, "invalid_recovery_code")
		}
		engine.logger.InfoContext(context, "recovery_code_redeemed", slog.String("user_id", user.ID))
		return engine.authenticated(context, user, nil)

	default:
		return nil, engine.reject(context, state, user.ID, "two_factor_required")
	}
}

// # Transitions

// accessFailed records a failure and reports whether it started a lockout.
func (engine *Engine) accessFailed(context context.Context, user *User, now time.Time) (bool, error) {
	if !user.LockoutEnabled {
		return false, nil
	}

	count := user.AccessFailedCount + 1
	var lockoutEnd *time.Time
	if count >= engine.lockout.MaxAttempts {
		end := now.Add(engine.lockout.Duration)
		lockoutEnd, count = &end, 0
	}

	if err := engine.store.UpdateLockout(context, user.ID, count, lockoutEnd); err != nil {
		return false, fmt.Errorf("login_record_failure_failed: %w", err)
	}

	user.AccessFailedCount, user.LockoutEnd = count, lockoutEnd
	return lockoutEnd != nil, nil
}

// authenticated clears the failure state and completes the attempt.
func (engine *Engine) authenticated(context context.Context, user *User, result *LoginResult) (*LoginResult, error) {
	if user.AccessFailedCount != 0 || user.LockoutEnd != nil {
		if err := engine.store.UpdateLockout(context, user.ID, 0, nil); err != nil {
			return nil, fmt.Errorf("login_reset_lockout_failed: %w", err)
		}
		user.AccessFailedCount, user.LockoutEnd = 0, nil
	}

	if result == nil {
		result = &LoginResult{User: user}
	}

	engine.logger.InfoContext(context, "login_succeeded",
		slog.String("user_id", user.ID),
		slog.String("state", StateAuthenticated.String()),
	)
	return result, nil
}

// reject logs the internal reason and returns the uniform client error.
func (engine *Engine) reject(context context.Context, from LoginState, userID, reason string) error {
	engine.logger.InfoContext(context, "login_rejected",
		slog.String("user_id", userID),
		slog.String("from_state", from.String()),
		slog.String("reason", reason),
	)
	return apperr.Unauthorized(MessageInvalidCredentials)
}
