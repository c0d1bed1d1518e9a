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
	"github.com/taibuivan/authapi/pkg/pointer"
)

// # Two-Factor Management

// TwoFactorRequest is a self-service change to the caller's two-factor state.
type TwoFactorRequest struct {
	Enable             *bool  `json:"enable"`
	TwoFactorCode      string `json:"twoFactorCode"`
	ResetSharedKey     bool   `json:"resetSharedKey"`
	ResetRecoveryCodes bool   `json:"resetRecoveryCodes"`
	ForgetMachine      bool   `json:"forgetMachine"`
}

// TwoFactorResponse is the caller's two-factor state after an update.
//
// RecoveryCodes is only populated when new codes were generated by this call;
// they are never retrievable again.
type TwoFactorResponse struct {
	SharedKey           string   `json:"sharedKey"`
	AuthenticatorURI    string   `json:"authenticatorUri"`
	RecoveryCodes       []string `json:"recoveryCodes"`
	RecoveryCodesLeft   int      `json:"recoveryCodesLeft"`
	IsTwoFactorEnabled  bool     `json:"isTwoFactorEnabled"`
	IsMachineRemembered bool     `json:"isMachineRemembered"`
}

// TwoFactorUpdate is the manager's outcome, including whether the stamp rotated.
type TwoFactorUpdate struct {
	Response     *TwoFactorResponse
	User         *User
	StampRotated bool
}

// TwoFactorManager applies two-factor changes for an authenticated principal.
type TwoFactorManager struct {
	store         CredentialStore
	authenticator *sec.Authenticator
	devices       *DeviceRegistry
	clock         Clock
	logger        *slog.Logger
}

// NewTwoFactorManager constructs a [TwoFactorManager].
func NewTwoFactorManager(store CredentialStore, authenticator *sec.Authenticator, devices *DeviceRegistry, clock Clock, logger *slog.Logger) *TwoFactorManager {
	return &TwoFactorManager{store: store, authenticator: authenticator, devices: devices, clock: clock, logger: logger}
}

/*
Update validates and applies a two-factor request.

Description: Enabling requires a valid code from the current shared key.
Resetting the shared key always disables two-factor until the new key is
confirmed with a code.

Parameters:
  - context: context.Context
  - userID: string (Authenticated caller)
  - request: TwoFactorRequest
  - deviceToken: string (Remembered-device cookie, may be empty)

Returns:
  - *TwoFactorUpdate: New state for the response body
  - error: NotFound, ValidationError keyed by rule code, or internal failures
*/
func (manager *TwoFactorManager) Update(context context.Context, userID string, request TwoFactorRequest, deviceToken string) (*TwoFactorUpdate, error) {
	user, err := manager.store.FindByID(context, userID)
	if errors.Is(err, ErrUserNotFound) {
		return nil, apperr.NotFound("User")
	}
	if err != nil {
		return nil, fmt.Errorf("two_factor_lookup_failed: %w", err)
	}

	update := &TwoFactorUpdate{User: user}
	enable := pointer.Val(request.Enable)
	disable := request.Enable != nil && !enable

	if enable {
		if request.ResetSharedKey {
			return nil, twoFactorError(CodeCannotResetSharedKeyAndEnable,
				"Resetting the 2fa shared key must disable 2fa until a 2fa token based on the new shared key is validated.")
		}
		if request.TwoFactorCode == "" {
			return nil, twoFactorError(CodeRequiresTwoFactor,
				"No 2fa token was provided by the request. A valid 2fa token is required to enable 2fa.")
		}
		if !manager.authenticator.Validate(user.AuthenticatorKey, request.TwoFactorCode, manager.clock()) {
			return nil, twoFactorError(CodeInvalidTwoFactorCode,
				"The 2fa token provided by the request was invalid. A valid 2fa token is required to enable 2fa.")
		}
		if err := manager.setEnabled(context, user, true); err != nil {
			return nil, err
		}
		update.StampRotated = true
	} else if disable || request.ResetSharedKey {
		if err := manager.setEnabled(context, user, false); err != nil {
			return nil, err
		}
		update.StampRotated = true
	}

	if request.ResetSharedKey {
		if err := manager.resetKey(context, user); err != nil {
			return nil, err
		}
		update.StampRotated = true
	}

	var recoveryCodes []string
	if request.ResetRecoveryCodes || (enable && len(user.RecoveryCodes) == 0) {
		codes, hashes, err := generateRecoveryCodes(user.ID, RecoveryCodeCount)
		if err != nil {
			return nil, err
		}
		if err := manager.store.ReplaceRecoveryCodes(context, user.ID, hashes); err != nil {
			return nil, fmt.Errorf("two_factor_replace_recovery_codes_failed: %w", err)
		}
		user.RecoveryCodes, recoveryCodes = hashes, codes
		manager.logger.InfoContext(context, "recovery_codes_generated", slog.String("user_id", user.ID))
	}

	if request.ForgetMachine {
		if err := manager.devices.Forget(context, deviceToken); err != nil {
			return nil, err
		}
	}

	if user.AuthenticatorKey == "" {
		if err := manager.resetKey(context, user); err != nil {
			return nil, err
		}
		update.StampRotated = true
		if user.AuthenticatorKey == "" {
			return nil, apperr.Internal(errors.New("two_factor_key_missing_after_reset"))
		}
	}

	update.Response = &TwoFactorResponse{
		SharedKey:           user.AuthenticatorKey,
		AuthenticatorURI:    manager.authenticator.URI(user.Email, user.AuthenticatorKey),
		RecoveryCodes:       recoveryCodes,
		RecoveryCodesLeft:   len(user.RecoveryCodes),
		IsTwoFactorEnabled:  user.TwoFactorEnabled,
		IsMachineRemembered: !request.ForgetMachine && manager.devices.Recognize(context, user, deviceToken),
	}
	return update, nil
}

// setEnabled toggles two-factor sign-in and rotates the stamp.
func (manager *TwoFactorManager) setEnabled(context context.Context, user *User, enabled bool) error {
	stamp, err := sec.NewSecurityStamp()
	if err != nil {
		return err
	}
	if err := manager.store.SetTwoFactorEnabled(context, user.ID, enabled, stamp); err != nil {
		return fmt.Errorf("two_factor_set_enabled_failed: %w", err)
	}
	user.TwoFactorEnabled, user.SecurityStamp = enabled, stamp
	manager.logger.InfoContext(context, "two_factor_toggled",
		slog.String("user_id", user.ID),
		slog.Bool("enabled", enabled),
	)
	return nil
}

// resetKey replaces the shared key and rotates the stamp.
func (manager *TwoFactorManager) resetKey(context context.Context, user *User) error {
	key, err := manager.authenticator.GenerateKey()
	if err != nil {
		return err
	}
	stamp, err := sec.NewSecurityStamp()
	if err != nil {
		return err
	}
	if err := manager.store.SetAuthenticatorKey(context, user.ID, key, stamp); err != nil {
		return fmt.Errorf("two_factor_set_key_failed: %w", err)
	}
	user.AuthenticatorKey, user.SecurityStamp = key, stamp
	return nil
}

func twoFactorError(code, message string) error {
	return validate.Fail(code, message)
}
