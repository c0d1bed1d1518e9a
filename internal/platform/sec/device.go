// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package sec

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DeviceClaims is the payload of a remembered two-factor device token.
//
// The device id (jti) is the lookup key for the server-side marker; the stamp
// ties the token to the principal's security stamp at the time it was issued.
type DeviceClaims struct {
	jwt.RegisteredClaims

	Stamp string `json:"stp"`
}

// DeviceTokenService signs and verifies remembered-device tokens using HS256.
type DeviceTokenService struct {
	secret []byte
	issuer string
}

// NewDeviceTokenService creates a service keyed by the session secret.
func NewDeviceTokenService(secret, issuer string) (*DeviceTokenService, error) {
	if len(secret) < 32 {
		return nil, errors.New("sec: session secret must be at least 32 bytes")
	}
	return &DeviceTokenService{secret: []byte(secret), issuer: issuer}, nil
}

// Sign creates a device token for the user.
func (service *DeviceTokenService) Sign(userID, deviceID, stamp string, issuedAt time.Time, timeToLive time.Duration) (string, error) {
	claims := DeviceClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ID:        deviceID,
			Issuer:    service.issuer,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(timeToLive)),
		},
		Stamp: stamp,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signedToken, err := token.SignedString(service.secret)
	if err != nil {
		return "", fmt.Errorf("sec: failed to sign device token: %w", err)
	}

	return signedToken, nil
}

// Verify checks the signature and expiry of a device token at the given instant.
func (service *DeviceTokenService) Verify(tokenString string, at time.Time) (*DeviceClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &DeviceClaims{}, func(token *jwt.Token) (interface{}, error) {
		return service.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(service.issuer),
		jwt.WithTimeFunc(func() time.Time { return at }),
	)
	if err != nil {
		return nil, fmt.Errorf("sec: invalid device token: %w", err)
	}

	claims, ok := token.Claims.(*DeviceClaims)
	if !ok || !token.Valid {
		return nil, errors.New("sec: invalid device token claims")
	}

	return claims, nil
}
