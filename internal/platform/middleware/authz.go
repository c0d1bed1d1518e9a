// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/taibuivan/authapi/internal/platform/apperr"
	"github.com/taibuivan/authapi/internal/platform/constants"
	"github.com/taibuivan/authapi/internal/platform/ctxutil"
	"github.com/taibuivan/authapi/internal/platform/respond"
	"github.com/taibuivan/authapi/internal/platform/sec"
)

// CredentialVerifier resolves presented credentials to an identity.
//
// The auth service satisfies it; the middleware never imports that package.
type CredentialVerifier interface {
	VerifyBearer(context context.Context, token string) (*sec.AuthClaims, error)
	VerifyCookie(context context.Context, sessionID string) (*sec.AuthClaims, error)
}

// Authenticate resolves the caller from a bearer token or a session cookie.
//
// # Flow
//  1. 'Authorization: Bearer <token>' wins when present; a bad token is a 401.
//  2. Otherwise the session cookie is tried; an unusable cookie means anonymous.
//  3. With neither, the request proceeds as anonymous.
//  4. On success [*sec.AuthClaims] is injected into the request context.
func Authenticate(verifier CredentialVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			ctx := request.Context()

			// 1. Bearer
			if authHeader := request.Header.Get(constants.HeaderAuthorization); authHeader != "" {
				scheme, token, found := strings.Cut(authHeader, " ")
				if !found || !strings.EqualFold(scheme, constants.SchemeBearer) || strings.TrimSpace(token) == "" {
					respond.Error(writer, request, apperr.Unauthorized("Invalid authorization format"))
					return
				}

				claims, err := verifier.VerifyBearer(ctx, strings.TrimSpace(token))
				if err != nil {
					respond.Error(writer, request, apperr.Unauthorized("Invalid or expired token"))
					return
				}

				reportIdentity(ctx, claims.UserID, claims.Scheme)
				next.ServeHTTP(writer, request.WithContext(ctxutil.WithAuthUser(ctx, claims)))
				return
			}

			// 2. Cookie
			if cookie, err := request.Cookie(constants.SessionCookieName); err == nil && cookie.Value != "" {
				claims, err := verifier.VerifyCookie(ctx, cookie.Value)
				if err == nil {
					reportIdentity(ctx, claims.UserID, claims.Scheme)
					next.ServeHTTP(writer, request.WithContext(ctxutil.WithAuthUser(ctx, claims)))
					return
				}
				if !apperr.IsAppError(err) {
					ctxutil.GetLogger(ctx).WarnContext(ctx, "session_cookie_check_failed", "error", err.Error())
				}
			}

			// 3. Anonymous
			next.ServeHTTP(writer, request)
		})
	}
}

// RequireAuth blocks requests that are not authenticated.
//
// # Usage
//
// Must be registered in the router AFTER [Authenticate].
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		if ctxutil.GetAuthUser(request.Context()) == nil {
			respond.Error(writer, request, apperr.Unauthorized("Authentication required"))
			return
		}
		next.ServeHTTP(writer, request)
	})
}
