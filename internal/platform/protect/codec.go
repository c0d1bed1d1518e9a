// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package protect seals short-lived payloads (access tokens, refresh tokens,
one-time codes) so that only this service can read or forge them.

Wire Format:

	base64url( version(1) | keyID(16) | nonce(12) | AES-256-GCM ciphertext )

The additional authenticated data binds the version, the key id and the
purpose string, and the AES key itself is derived per purpose with
HKDF-SHA256, so a payload sealed for one purpose never opens under another.

Key Management:

  - KeyRing: Chooses the default key and rotates ahead of expiry.
  - KeyRepository: Persists the ring (one JSON file per key, or in memory).
*/
package protect

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/hkdf"
)

// # Format

const (
	formatVersion byte = 1
	keyIDSize          = 16
	nonceSize          = 12
	headerSize         = 1 + keyIDSize + nonceSize

	subkeyInfoPrefix = "authapi.protect.v1:"
)

// Ticket is the sealed payload.
//
// The codec does not interpret expiry; callers compare ExpiresAt against
// their own clock.
type Ticket struct {
	Subject   string            `json:"sub"`
	Purpose   string            `json:"pur"`
	IssuedAt  time.Time         `json:"iat"`
	ExpiresAt time.Time         `json:"exp"`
	Claims    map[string]string `json:"clm,omitempty"`
}

// Claim returns a claim value, or "" when absent.
func (ticket *Ticket) Claim(name string) string {
	if ticket == nil || ticket.Claims == nil {
		return ""
	}
	return ticket.Claims[name]
}

// Codec protects and unprotects tickets with keys from a [KeyRing].
type Codec struct {
	ring *KeyRing
}

// NewCodec creates a codec backed by the given key ring.
func NewCodec(ring *KeyRing) *Codec {
	return &Codec{ring: ring}
}

/*
Protect serialises and seals a ticket under the current default key.

Returns:
  - string: The opaque base64url token
  - error: Only on serialisation, randomness or key-ring failure
*/
func (codec *Codec) Protect(ctx context.Context, ticket Ticket) (string, error) {
	if ticket.Purpose == "" {
		return "", fmt.Errorf("protect: ticket purpose is required")
	}

	plaintext, err := json.Marshal(ticket)
	if err != nil {
		return "", fmt.Errorf("protect: failed to serialise ticket: %w", err)
	}

	key, err := codec.ring.Current(ctx)
	if err != nil {
		return "", err
	}

	aead, err := newAEAD(key.Material, ticket.Purpose)
	if err != nil {
		return "", err
	}

	header := make([]byte, headerSize, headerSize+len(plaintext)+aead.Overhead())
	header[0] = formatVersion
	copy(header[1:1+keyIDSize], key.ID[:])
	if _, err := io.ReadFull(rand.Reader, header[1+keyIDSize:]); err != nil {
		return "", fmt.Errorf("protect: failed to generate nonce: %w", err)
	}

	nonce := header[1+keyIDSize:]
	sealed := aead.Seal(header, nonce, plaintext, additionalData(header[:1+keyIDSize], ticket.Purpose))

	return base64.RawURLEncoding.EncodeToString(sealed), nil
}

/*
Unprotect opens a token sealed for the given purpose.

It returns (nil, false) for malformed, tampered, unknown-key, revoked-key or
wrong-purpose input and never says which.
*/
func (codec *Codec) Unprotect(ctx context.Context, token, purpose string) (*Ticket, bool) {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil || len(raw) < headerSize || raw[0] != formatVersion {
		return nil, false
	}

	keyID, err := uuid.FromBytes(raw[1 : 1+keyIDSize])
	if err != nil {
		return nil, false
	}

	key, found := codec.ring.Lookup(ctx, keyID)
	if !found {
		return nil, false
	}

	aead, err := newAEAD(key.Material, purpose)
	if err != nil {
		return nil, false
	}

	nonce := raw[1+keyIDSize : headerSize]
	plaintext, err := aead.Open(nil, nonce, raw[headerSize:], additionalData(raw[:1+keyIDSize], purpose))
	if err != nil {
		return nil, false
	}

	var ticket Ticket
	if err := json.Unmarshal(plaintext, &ticket); err != nil || ticket.Purpose != purpose {
		return nil, false
	}

	return &ticket, true
}

// newAEAD derives the purpose subkey and builds an AES-GCM instance.
func newAEAD(material []byte, purpose string) (cipher.AEAD, error) {
	subkey := make([]byte, 32)
	reader := hkdf.New(sha256.New, material, nil, []byte(subkeyInfoPrefix+purpose))
	if _, err := io.ReadFull(reader, subkey); err != nil {
		return nil, fmt.Errorf("protect: failed to derive subkey: %w", err)
	}

	block, err := aes.NewCipher(subkey)
	if err != nil {
		return nil, fmt.Errorf("protect: failed to create cipher: %w", err)
	}

	return cipher.NewGCM(block)
}

// additionalData binds the version, key id and purpose to the ciphertext.
func additionalData(versionAndKeyID []byte, purpose string) []byte {
	aad := make([]byte, 0, len(versionAndKeyID)+len(purpose))
	aad = append(aad, versionAndKeyID...)
	return append(aad, purpose...)
}
