// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

// Package sec provides cryptographic primitives shared by the identity services.
//
// # Architecture
//
// This package isolates security-sensitive code (password hashing, random
// secrets, TOTP, remembered-device signing) from the domain logic. It never
// touches storage or HTTP.
package sec

// AuthClaims represents the identity reconstructed for an authenticated request.
//
// It is built either from a decrypted bearer access token or from a server-side
// cookie session, so downstream handlers never need to know which scheme was used.
type AuthClaims struct {
	UserID    string `json:"uid"`
	Username  string `json:"unm"`
	Email     string `json:"eml"`
	Role      string `json:"rol"`
	Scheme    string `json:"-"`
	SessionID string `json:"-"`
}
