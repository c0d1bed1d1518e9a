// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/taibuivan/authapi/internal/platform/protect"
)

// # One-Time Codes

// CodeProvider mints and verifies purpose-bound one-time codes.
//
// A code is a sealed ticket carrying the principal id and its security stamp,
// so any stamp rotation (password reset, email change) invalidates every
// outstanding code at once.
type CodeProvider struct {
	codec      *protect.Codec
	clock      Clock
	timeToLive time.Duration
}

// NewCodeProvider creates a provider issuing codes valid for [OneTimeCodeTTL].
func NewCodeProvider(codec *protect.Codec, clock Clock) *CodeProvider {
	return &CodeProvider{codec: codec, clock: clock, timeToLive: OneTimeCodeTTL}
}

/*
Generate mints a code for the user bound to purpose.

Returns:
  - string: The sealed code (already URL safe)
  - error: Codec failures
*/
func (provider *CodeProvider) Generate(context context.Context, user *User, purpose string) (string, error) {
	now := provider.clock()
	code, err := provider.codec.Protect(context, protect.Ticket{
		Subject:   user.ID,
		Purpose:   purpose,
		IssuedAt:  now,
		ExpiresAt: now.Add(provider.timeToLive),
		Claims:    map[string]string{claimStamp: user.SecurityStamp},
	})
	if err != nil {
		return "", fmt.Errorf("code_generate_failed: %w", err)
	}
	return code, nil
}

// Verify reports whether code was minted for this user and purpose, is not
// expired and still carries the user's current security stamp.
func (provider *CodeProvider) Verify(context context.Context, user *User, purpose, code string) bool {
	ticket, ok := provider.codec.Unprotect(context, code, purpose)
	if !ok {
		return false
	}
	if ticket.Subject != user.ID || ticket.Claim(claimStamp) != user.SecurityStamp {
		return false
	}
	return provider.clock().Before(ticket.ExpiresAt)
}

// # Transport Encoding

// EncodeCode wraps a code for delivery in links and emails.
func EncodeCode(code string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(code))
}

// DecodeCode reverses [EncodeCode].
func DecodeCode(encoded string) (string, bool) {
	raw, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil || len(raw) == 0 {
		return "", false
	}
	return string(raw), true
}
