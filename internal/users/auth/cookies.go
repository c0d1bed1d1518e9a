// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth

import (
	"net/http"
	"time"

	"github.com/taibuivan/authapi/internal/platform/constants"
)

// # Cookies

// CookieWriter sets and clears the authentication cookies.
//
// Every cookie is HttpOnly and SameSite=Strict.
type CookieWriter struct {
	domain string
	secure bool
}

// NewCookieWriter creates a writer scoping cookies to domain.
func NewCookieWriter(domain string, secure bool) *CookieWriter {
	return &CookieWriter{domain: domain, secure: secure}
}

// SetSession writes the session cookie. Session-only cookies carry no Expires.
func (writer *CookieWriter) SetSession(response http.ResponseWriter, session *CookieSession) {
	cookie := writer.base(constants.SessionCookieName, session.ID)
	if session.Persistent {
		cookie.Expires = session.ExpiresAt
	}
	http.SetCookie(response, cookie)
}

// ClearSession expires the session cookie.
func (writer *CookieWriter) ClearSession(response http.ResponseWriter) {
	cookie := writer.base(constants.SessionCookieName, "")
	cookie.MaxAge = -1
	http.SetCookie(response, cookie)
}

// SetDevice writes the remembered-device cookie.
func (writer *CookieWriter) SetDevice(response http.ResponseWriter, token string, expiresAt time.Time) {
	cookie := writer.base(constants.TwoFactorRememberCookieName, token)
	cookie.Expires = expiresAt
	http.SetCookie(response, cookie)
}

// ClearDevice expires the remembered-device cookie.
func (writer *CookieWriter) ClearDevice(response http.ResponseWriter) {
	cookie := writer.base(constants.TwoFactorRememberCookieName, "")
	cookie.MaxAge = -1
	http.SetCookie(response, cookie)
}

// DeviceToken returns the remembered-device cookie value, or "".
func (writer *CookieWriter) DeviceToken(request *http.Request) string {
	cookie, err := request.Cookie(constants.TwoFactorRememberCookieName)
	if err != nil {
		return ""
	}
	return cookie.Value
}

func (writer *CookieWriter) base(name, value string) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     constants.CookiePath,
		Domain:   writer.domain,
		Secure:   writer.secure,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	}
}
