// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package sec

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

// # Authenticator (TOTP)

// totpSecretSize is the number of random bytes in a shared key (32 base32 chars).
const totpSecretSize = 20

var totpOptions = totp.ValidateOpts{
	Period:    30,
	Skew:      1,
	Digits:    otp.DigitsSix,
	Algorithm: otp.AlgorithmSHA1,
}

// Authenticator generates shared keys and validates RFC 6238 codes.
type Authenticator struct {
	issuer string
}

// NewAuthenticator creates an authenticator whose URIs carry the given issuer label.
func NewAuthenticator(issuer string) *Authenticator {
	return &Authenticator{issuer: issuer}
}

// GenerateKey returns a new base32 shared key.
func (authenticator *Authenticator) GenerateKey() (string, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      authenticator.issuer,
		AccountName: "pending",
		SecretSize:  totpSecretSize,
		Algorithm:   otp.AlgorithmSHA1,
		Digits:      otp.DigitsSix,
	})
	if err != nil {
		return "", fmt.Errorf("sec: failed to generate authenticator key: %w", err)
	}
	return key.Secret(), nil
}

// Validate reports whether code is valid for key at the given instant,
// tolerating one period of clock drift either way. Spaces and dashes in the
// code are ignored.
func (authenticator *Authenticator) Validate(key, code string, at time.Time) bool {
	if key == "" {
		return false
	}
	code = strings.NewReplacer(" ", "", "-", "").Replace(code)
	if code == "" {
		return false
	}
	valid, err := totp.ValidateCustom(code, key, at, totpOptions)
	return err == nil && valid
}

// URI builds the otpauth:// provisioning URI shown as a QR code to the user.
func (authenticator *Authenticator) URI(accountName, key string) string {
	issuer := url.PathEscape(authenticator.issuer)
	return fmt.Sprintf("otpauth://totp/%s:%s?secret=%s&issuer=%s&digits=6",
		issuer, url.PathEscape(accountName), key, issuer)
}
