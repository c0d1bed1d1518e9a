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
	"github.com/taibuivan/authapi/internal/platform/protect"
	"github.com/taibuivan/authapi/internal/platform/sec"
)

// # Session Types

// TokenPair is the bearer response body.
type TokenPair struct {
	TokenType    string `json:"tokenType"`
	AccessToken  string `json:"accessToken"`
	ExpiresIn    int64  `json:"expiresIn"`
	RefreshToken string `json:"refreshToken"`
}

// CookieSession is a freshly issued server-side session.
type CookieSession struct {
	ID         string
	Persistent bool
	ExpiresAt  time.Time
}

// SessionOptions sets the lifetimes of issued credentials.
type SessionOptions struct {
	AccessTokenTTL   time.Duration
	RefreshTokenTTL  time.Duration
	CookieSessionTTL time.Duration
}

// DefaultSessionOptions returns 15 minute access tokens and 14 day refresh
// tokens and cookie sessions.
func DefaultSessionOptions() SessionOptions {
	return SessionOptions{
		AccessTokenTTL:   DefaultAccessTokenTTL,
		RefreshTokenTTL:  DefaultRefreshTokenTTL,
		CookieSessionTTL: DefaultCookieSessionTTL,
	}
}

// errChallenge is the single answer to any unusable credential.
func errChallenge() error {
	return apperr.Unauthorized("Authentication is required")
}

// # Session Issuer

// SessionIssuer mints bearer token pairs and cookie sessions and validates them
// on later requests.
type SessionIssuer struct {
	codec    *protect.Codec
	users    CredentialStore
	sessions SessionStore
	clock    Clock
	options  SessionOptions
	logger   *slog.Logger
}

// NewSessionIssuer constructs a [SessionIssuer]. Zero lifetimes fall back to the defaults.
func NewSessionIssuer(codec *protect.Codec, users CredentialStore, sessions SessionStore, clock Clock, options SessionOptions, logger *slog.Logger) *SessionIssuer {
	defaults := DefaultSessionOptions()
	if options.AccessTokenTTL <= 0 {
		options.AccessTokenTTL = defaults.AccessTokenTTL
	}
	if options.RefreshTokenTTL <= 0 {
		options.RefreshTokenTTL = defaults.RefreshTokenTTL
	}
	if options.CookieSessionTTL <= 0 {
		options.CookieSessionTTL = defaults.CookieSessionTTL
	}
	return &SessionIssuer{codec: codec, users: users, sessions: sessions, clock: clock, options: options, logger: logger}
}

/*
IssueBearer mints an access token and a refresh token for the user.

Description: The refresh token embeds the security stamp, so any stamp
rotation revokes every refresh token issued before it.

Returns:
  - *TokenPair: Transport-ready bearer credentials
  - error: Codec failures
*/
func (issuer *SessionIssuer) IssueBearer(context context.Context, user *User) (*TokenPair, error) {
	now := issuer.clock()

	accessToken, err := issuer.codec.Protect(context, protect.Ticket{
		Subject:   user.ID,
		Purpose:   PurposeAccessToken,
		IssuedAt:  now,
		ExpiresAt: now.Add(issuer.options.AccessTokenTTL),
		Claims: map[string]string{
			claimUsername: user.Username,
			claimEmail:    user.Email,
			claimRole:     user.Role.String(),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("session_access_token_failed: %w", err)
	}

	refreshToken, err := issuer.codec.Protect(context, protect.Ticket{
		Subject:   user.ID,
		Purpose:   PurposeRefreshToken,
		IssuedAt:  now,
		ExpiresAt: now.Add(issuer.options.RefreshTokenTTL),
		Claims:    map[string]string{claimStamp: user.SecurityStamp},
	})
	if err != nil {
		return nil, fmt.Errorf("session_refresh_token_failed: %w", err)
	}

	return &TokenPair{
		TokenType:    constants.SchemeBearer,
		AccessToken:  accessToken,
		ExpiresIn:    int64(issuer.options.AccessTokenTTL / time.Second),
		RefreshToken: refreshToken,
	}, nil
}

/*
Refresh exchanges a refresh token for a new pair.

Description: The stamp is not rotated, so the presented refresh token stays
usable until it expires or the stamp changes for another reason.

Returns:
  - *TokenPair: The new pair
  - *User: The principal the pair was issued to
  - error: Unauthorized for any unusable token, or storage failures
*/
func (issuer *SessionIssuer) Refresh(context context.Context, refreshToken string) (*TokenPair, *User, error) {
	ticket, ok := issuer.codec.Unprotect(context, refreshToken, PurposeRefreshToken)
	if !ok || !issuer.clock().Before(ticket.ExpiresAt) {
		return nil, nil, errChallenge()
	}

	user, err := issuer.users.FindByID(context, ticket.Subject)
	if errors.Is(err, ErrUserNotFound) {
		return nil, nil, errChallenge()
	}
	if err != nil {
		return nil, nil, fmt.Errorf("session_refresh_lookup_failed: %w", err)
	}

	if ticket.Claim(claimStamp) != user.SecurityStamp {
		issuer.logger.InfoContext(context, "refresh_rejected_stale_stamp", slog.String("user_id", user.ID))
		return nil, nil, errChallenge()
	}

	pair, err := issuer.IssueBearer(context, user)
	if err != nil {
		return nil, nil, err
	}
	return pair, user, nil
}

// VerifyBearer opens an access token and returns the identity it carries.
func (issuer *SessionIssuer) VerifyBearer(context context.Context, accessToken string) (*sec.AuthClaims, error) {
	ticket, ok := issuer.codec.Unprotect(context, accessToken, PurposeAccessToken)
	if !ok || !issuer.clock().Before(ticket.ExpiresAt) {
		return nil, errChallenge()
	}

	return &sec.AuthClaims{
		UserID:   ticket.Subject,
		Username: ticket.Claim(claimUsername),
		Email:    ticket.Claim(claimEmail),
		Role:     ticket.Claim(claimRole),
		Scheme:   constants.SchemeBearer,
	}, nil
}

// # Cookie Sessions

/*
IssueCookieSession creates a server-side session for the user.

Description: Only the hash of the random id is stored, the id itself goes
into the cookie. Session-only cookies share the same server lifetime; the
browser drops them on close.

Returns:
  - *CookieSession: Session id and cookie expiry
  - error: Random source or store failures
*/
func (issuer *SessionIssuer) IssueCookieSession(context context.Context, user *User, persistent bool) (*CookieSession, error) {
	id, err := sec.GenerateSecureToken(SessionIDLength)
	if err != nil {
		return nil, fmt.Errorf("session_id_failed: %w", err)
	}

	now := issuer.clock()
	record := SessionRecord{
		UserID:     user.ID,
		Stamp:      user.SecurityStamp,
		Persistent: persistent,
		CreatedAt:  now,
		ExpiresAt:  now.Add(issuer.options.CookieSessionTTL),
	}

	if err := issuer.sessions.Save(context, sec.HashToken(id), record, issuer.options.CookieSessionTTL); err != nil {
		return nil, fmt.Errorf("session_save_failed: %w", err)
	}

	return &CookieSession{ID: id, Persistent: persistent, ExpiresAt: record.ExpiresAt}, nil
}

// VerifyCookie resolves a session id to the identity behind it. Sessions whose
// stamp no longer matches the principal are deleted and rejected.
func (issuer *SessionIssuer) VerifyCookie(context context.Context, sessionID string) (*sec.AuthClaims, error) {
	if sessionID == "" {
		return nil, errChallenge()
	}

	idHash := sec.HashToken(sessionID)
	record, err := issuer.sessions.Load(context, idHash)
	if errors.Is(err, ErrSessionNotFound) {
		return nil, errChallenge()
	}
	if err != nil {
		return nil, fmt.Errorf("session_load_failed: %w", err)
	}
	if !issuer.clock().Before(record.ExpiresAt) {
		return nil, errChallenge()
	}

	user, err := issuer.users.FindByID(context, record.UserID)
	if errors.Is(err, ErrUserNotFound) {
		return nil, errChallenge()
	}
	if err != nil {
		return nil, fmt.Errorf("session_user_lookup_failed: %w", err)
	}

	if user.SecurityStamp != record.Stamp {
		_ = issuer.sessions.Delete(context, idHash)
		return nil, errChallenge()
	}

	claims := user.Claims(constants.SchemeCookie)
	claims.SessionID = sessionID
	return claims, nil
}

// RefreshCookieSession re-binds an existing session to the user's current
// stamp, keeping the caller signed in after an action that rotated it.
func (issuer *SessionIssuer) RefreshCookieSession(context context.Context, sessionID string, user *User) error {
	idHash := sec.HashToken(sessionID)
	record, err := issuer.sessions.Load(context, idHash)
	if err != nil {
		return fmt.Errorf("session_refresh_load_failed: %w", err)
	}
	if record.UserID != user.ID {
		return errChallenge()
	}

	remaining := record.ExpiresAt.Sub(issuer.clock())
	if remaining <= 0 {
		return errChallenge()
	}

	record.Stamp = user.SecurityStamp
	if err := issuer.sessions.Save(context, idHash, *record, remaining); err != nil {
		return fmt.Errorf("session_refresh_save_failed: %w", err)
	}
	return nil
}

// EndCookieSession deletes the session. Ending an unknown session succeeds.
func (issuer *SessionIssuer) EndCookieSession(context context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}
	if err := issuer.sessions.Delete(context, sec.HashToken(sessionID)); err != nil {
		return fmt.Errorf("session_end_failed: %w", err)
	}
	return nil
}
