// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/taibuivan/authapi/internal/platform/sec"
	"github.com/taibuivan/authapi/pkg/slice"
)

// # Recovery Codes

// recoveryCodeAlphabet omits the characters users confuse (0/O, 1/I).
const recoveryCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const recoveryCodeLength = 10

// generateRecoveryCodes returns count plaintext codes formatted as XXXXX-XXXXX
// and the hashes that are stored for the user.
func generateRecoveryCodes(userID string, count int) (codes, hashes []string, err error) {
	seen := make(map[string]struct{}, count)
	for len(codes) < count {
		raw, err := sec.RandomString(recoveryCodeAlphabet, recoveryCodeLength)
		if err != nil {
			return nil, nil, fmt.Errorf("recovery_code_generate_failed: %w", err)
		}
		if _, duplicate := seen[raw]; duplicate {
			continue
		}
		seen[raw] = struct{}{}

		half := recoveryCodeLength / 2
		codes = append(codes, raw[:half]+"-"+raw[half:])
	}

	hashes = slice.Map(codes, func(code string) string { return hashRecoveryCode(userID, code) })
	return codes, hashes, nil
}

// canonicalRecoveryCode upper-cases the code and strips separators.
func canonicalRecoveryCode(code string) string {
	return strings.NewReplacer("-", "", " ", "").Replace(strings.ToUpper(strings.TrimSpace(code)))
}

// hashRecoveryCode binds a code to its owner so equal codes of two users never collide.
func hashRecoveryCode(userID, code string) string {
	digest := sha256.New()
	digest.Write([]byte(userID))
	digest.Write([]byte{0})
	digest.Write([]byte(canonicalRecoveryCode(code)))
	return hex.EncodeToString(digest.Sum(nil))
}
