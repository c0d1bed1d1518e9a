// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/taibuivan/authapi/internal/platform/sec"
)

// # Remembered Devices

// DeviceRegistry remembers clients that completed a second factor so later
// sign-ins from them skip it.
//
// A device is recognized only while both the signed token and the Redis marker
// are valid and the user's stamp has not changed since it was remembered.
type DeviceRegistry struct {
	tokens *sec.DeviceTokenService
	store  DeviceStore
	clock  Clock
}

// NewDeviceRegistry creates a registry over the given token service and store.
func NewDeviceRegistry(tokens *sec.DeviceTokenService, store DeviceStore, clock Clock) *DeviceRegistry {
	return &DeviceRegistry{tokens: tokens, store: store, clock: clock}
}

/*
Remember marks a new device for the user.

Returns:
  - string: Signed token for the remember-me cookie
  - time.Time: Expiry of the token and its marker
  - error: Signing or store failures
*/
func (registry *DeviceRegistry) Remember(context context.Context, user *User) (string, time.Time, error) {
	deviceID := uuid.NewString()
	now := registry.clock()

	token, err := registry.tokens.Sign(user.ID, deviceID, user.SecurityStamp, now, RememberedDeviceTTL)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("device_sign_failed: %w", err)
	}

	if err := registry.store.Remember(context, deviceID, user.ID, RememberedDeviceTTL); err != nil {
		return "", time.Time{}, fmt.Errorf("device_remember_failed: %w", err)
	}

	return token, now.Add(RememberedDeviceTTL), nil
}

// Recognize reports whether token identifies a remembered device of user.
func (registry *DeviceRegistry) Recognize(context context.Context, user *User, token string) bool {
	if token == "" {
		return false
	}

	claims, err := registry.tokens.Verify(token, registry.clock())
	if err != nil || claims.Subject != user.ID || claims.Stamp != user.SecurityStamp {
		return false
	}

	remembered, err := registry.store.IsRemembered(context, claims.ID, user.ID)
	return err == nil && remembered
}

// Forget removes the marker behind token. Unknown or invalid tokens are ignored.
func (registry *DeviceRegistry) Forget(context context.Context, token string) error {
	if token == "" {
		return nil
	}

	claims, err := registry.tokens.Verify(token, registry.clock())
	if err != nil {
		return nil
	}

	if err := registry.store.Forget(context, claims.ID); err != nil {
		return fmt.Errorf("device_forget_failed: %w", err)
	}
	return nil
}
