// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taibuivan/authapi/internal/platform/constants"
	"github.com/taibuivan/authapi/internal/platform/respond"
	"github.com/taibuivan/authapi/internal/users/auth"
)

type httpHarness struct {
	*harness
	router http.Handler
}

func newHTTPHarness(t *testing.T) *httpHarness {
	t.Helper()
	h := newHarness(t)
	handler := auth.NewHandler(h.service, auth.NewCookieWriter("", true))
	return &httpHarness{harness: h, router: handler.Routes()}
}

func (h *httpHarness) do(method, target, body string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	request := httptest.NewRequest(method, target, strings.NewReader(body))
	request.Header.Set("Content-Type", "application/json")
	for _, cookie := range cookies {
		request.AddCookie(cookie)
	}
	recorder := httptest.NewRecorder()
	h.router.ServeHTTP(recorder, request)
	return recorder
}

func findCookie(recorder *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, cookie := range recorder.Result().Cookies() {
		if cookie.Name == name {
			return cookie
		}
	}
	return nil
}

func decodeError(t *testing.T, recorder *httptest.ResponseRecorder) respond.ErrorEnvelope {
	t.Helper()
	var envelope respond.ErrorEnvelope
	require.NoError(t, json.NewDecoder(recorder.Body).Decode(&envelope))
	return envelope
}

/*
TestHTTP_RegisterAndConfirm verifies the anonymous onboarding endpoints.
*/
func TestHTTP_RegisterAndConfirm(t *testing.T) {
	h := newHTTPHarness(t)

	recorder := h.do(http.MethodPost, "/register", `{"username":" alice ","email":"alice@example.com","password":"Passw0rd!"}`)
	require.Equal(t, http.StatusOK, recorder.Code)
	assert.Empty(t, recorder.Body.String())

	user, err := h.store.FindByEmail(h.ctx, auth.NormalizeKey("alice@example.com"))
	require.NoError(t, err)
	assert.Equal(t, "alice", user.Username)

	query := h.mail.lastLink(t)
	recorder = h.do(http.MethodGet, "/confirmEmail?"+query.Encode(), "")
	require.Equal(t, http.StatusOK, recorder.Code)
	assert.Equal(t, auth.MessageEmailConfirmed, recorder.Body.String())
	assert.Contains(t, recorder.Header().Get("Content-Type"), "text/plain")

	recorder = h.do(http.MethodGet, "/confirmEmail?userId="+user.ID, "")
	assert.Equal(t, http.StatusBadRequest, recorder.Code)

	recorder = h.do(http.MethodGet, "/confirmEmail?userId="+user.ID+"&code=bogus", "")
	assert.Equal(t, http.StatusUnauthorized, recorder.Code)
}

/*
TestHTTP_RegisterValidation verifies that rule codes are returned as details.
*/
func TestHTTP_RegisterValidation(t *testing.T) {
	h := newHTTPHarness(t)

	recorder := h.do(http.MethodPost, "/register", `{"username":"bob","email":"bob@example.com","password":"short"}`)
	require.Equal(t, http.StatusBadRequest, recorder.Code)

	envelope := decodeError(t, recorder)
	assert.Equal(t, "VALIDATION_ERROR", envelope.Code)
	fields := make([]string, 0, len(envelope.Details))
	for _, detail := range envelope.Details {
		fields = append(fields, detail.Field)
	}
	assert.Contains(t, fields, auth.CodePasswordTooShort)

	recorder = h.do(http.MethodPost, "/register", `{not json`)
	assert.Equal(t, http.StatusBadRequest, recorder.Code)
}

/*
TestHTTP_LoginBearerAndRefresh verifies the bearer body and the refresh endpoint.
*/
func TestHTTP_LoginBearerAndRefresh(t *testing.T) {
	h := newHTTPHarness(t)
	h.registerConfirmed(t, "alice@example.com")

	recorder := h.do(http.MethodPost, "/login", `{"email":"alice@example.com","password":"Passw0rd!"}`)
	require.Equal(t, http.StatusOK, recorder.Code)
	assert.Nil(t, findCookie(recorder, constants.SessionCookieName))

	var body struct {
		Data auth.TokenPair `json:"data"`
	}
	require.NoError(t, json.NewDecoder(recorder.Body).Decode(&body))
	assert.Equal(t, "Bearer", body.Data.TokenType)
	assert.EqualValues(t, 900, body.Data.ExpiresIn)

	recorder = h.do(http.MethodPost, "/refresh", `{"refreshToken":"`+body.Data.RefreshToken+`"}`)
	require.Equal(t, http.StatusOK, recorder.Code)

	recorder = h.do(http.MethodPost, "/refresh", `{"refreshToken":"nope"}`)
	assert.Equal(t, http.StatusUnauthorized, recorder.Code)
}

/*
TestHTTP_LoginFailures verifies the generic and lockout answers.
*/
func TestHTTP_LoginFailures(t *testing.T) {
	h := newHTTPHarness(t)
	h.registerConfirmed(t, "alice@example.com")

	recorder := h.do(http.MethodPost, "/login", `{"email":"alice@example.com","password":"wrong"}`)
	require.Equal(t, http.StatusUnauthorized, recorder.Code)
	envelope := decodeError(t, recorder)
	assert.Equal(t, "UNAUTHORIZED", envelope.Code)
	assert.Equal(t, auth.MessageInvalidCredentials, envelope.Error)

	for range auth.DefaultLockoutMaxAttempts - 1 {
		h.do(http.MethodPost, "/login", `{"email":"alice@example.com","password":"wrong"}`)
	}

	recorder = h.do(http.MethodPost, "/login", `{"email":"alice@example.com","password":"Passw0rd!"}`)
	require.Equal(t, http.StatusUnauthorized, recorder.Code)
	assert.Equal(t, "LOCKED_OUT", decodeError(t, recorder).Code)
}

/*
TestHTTP_LoginCookies verifies the session cookie attributes and logout.
*/
func TestHTTP_LoginCookies(t *testing.T) {
	h := newHTTPHarness(t)
	h.registerConfirmed(t, "alice@example.com")

	recorder := h.do(http.MethodPost, "/login?useCookies=true", `{"email":"alice@example.com","password":"Passw0rd!"}`)
	require.Equal(t, http.StatusOK, recorder.Code)
	assert.Empty(t, recorder.Body.String())

	session := findCookie(recorder, constants.SessionCookieName)
	require.NotNil(t, session)
	assert.True(t, session.HttpOnly)
	assert.True(t, session.Secure)
	assert.Equal(t, http.SameSiteStrictMode, session.SameSite)
	assert.Equal(t, "/", session.Path)
	assert.False(t, session.Expires.IsZero())

	_, err := h.service.VerifyCookie(h.ctx, session.Value)
	require.NoError(t, err)

	recorder = h.do(http.MethodPost, "/logout", "", session)
	require.Equal(t, http.StatusNoContent, recorder.Code)
	cleared := findCookie(recorder, constants.SessionCookieName)
	require.NotNil(t, cleared)
	assert.Equal(t, -1, cleared.MaxAge)

	_, err = h.service.VerifyCookie(h.ctx, session.Value)
	require.Error(t, err)
}

/*
TestHTTP_LoginSessionCookie verifies that session-only cookies carry no expiry.
*/
func TestHTTP_LoginSessionCookie(t *testing.T) {
	h := newHTTPHarness(t)
	h.registerConfirmed(t, "alice@example.com")

	recorder := h.do(http.MethodPost, "/login?useCookies=true&useSessionCookies=true", `{"email":"alice@example.com","password":"Passw0rd!"}`)
	require.Equal(t, http.StatusOK, recorder.Code)

	session := findCookie(recorder, constants.SessionCookieName)
	require.NotNil(t, session)
	assert.True(t, session.Expires.IsZero())
	assert.Zero(t, session.MaxAge)
}

/*
TestHTTP_LoginSessionCookieAlone verifies that useSessionCookies by itself
selects a browser-scoped cookie instead of a token pair.
*/
func TestHTTP_LoginSessionCookieAlone(t *testing.T) {
	h := newHTTPHarness(t)
	h.registerConfirmed(t, "alice@example.com")

	recorder := h.do(http.MethodPost, "/login?useSessionCookies=true", `{"email":"alice@example.com","password":"Passw0rd!"}`)
	require.Equal(t, http.StatusOK, recorder.Code)
	assert.NotContains(t, recorder.Body.String(), "accessToken")

	session := findCookie(recorder, constants.SessionCookieName)
	require.NotNil(t, session)
	assert.True(t, session.Expires.IsZero())
	assert.Zero(t, session.MaxAge)
}

/*
TestHTTP_RememberedDeviceCookie verifies that a persistent two-factor login sets
the device cookie and that the cookie skips the code next time.
*/
func TestHTTP_RememberedDeviceCookie(t *testing.T) {
	h := newHTTPHarness(t)
	user := h.registerConfirmed(t, "alice@example.com")
	h.enableTwoFactor(t, user.Claims(constants.SchemeBearer))

	code := h.totpCode(t, h.reload(t, user.ID))
	recorder := h.do(http.MethodPost, "/login?useCookies=true", `{"email":"alice@example.com","password":"Passw0rd!","twoFactorCode":"`+code+`"}`)
	require.Equal(t, http.StatusOK, recorder.Code)

	device := findCookie(recorder, constants.TwoFactorRememberCookieName)
	require.NotNil(t, device)
	assert.True(t, device.HttpOnly)

	recorder = h.do(http.MethodPost, "/login", `{"email":"alice@example.com","password":"Passw0rd!"}`, device)
	assert.Equal(t, http.StatusOK, recorder.Code)

	recorder = h.do(http.MethodPost, "/login", `{"email":"alice@example.com","password":"Passw0rd!"}`)
	assert.Equal(t, http.StatusUnauthorized, recorder.Code)
}

/*
TestHTTP_PasswordRecovery verifies the forgot and reset endpoints.
*/
func TestHTTP_PasswordRecovery(t *testing.T) {
	h := newHTTPHarness(t)
	h.registerConfirmed(t, "alice@example.com")

	recorder := h.do(http.MethodPost, "/forgotPassword", "")
	assert.Equal(t, http.StatusBadRequest, recorder.Code)

	recorder = h.do(http.MethodPost, "/forgotPassword?email=not-an-email", "")
	assert.Equal(t, http.StatusBadRequest, recorder.Code)

	recorder = h.do(http.MethodPost, "/forgotPassword?email="+url.QueryEscape("nobody@example.com"), "")
	assert.Equal(t, http.StatusOK, recorder.Code)

	recorder = h.do(http.MethodPost, "/forgotPassword?email="+url.QueryEscape("alice@example.com"), "")
	require.Equal(t, http.StatusOK, recorder.Code)
	code := h.mail.lastResetCode(t)

	recorder = h.do(http.MethodPost, "/resetPassword", `{"email":"alice@example.com","resetCode":"bogus","newPassword":"N3w-Passw0rd!"}`)
	require.Equal(t, http.StatusBadRequest, recorder.Code)
	assert.Equal(t, auth.CodeInvalidToken, decodeError(t, recorder).Details[0].Field)

	recorder = h.do(http.MethodPost, "/resetPassword", `{"email":"alice@example.com","resetCode":"`+code+`","newPassword":"N3w-Passw0rd!"}`)
	require.Equal(t, http.StatusOK, recorder.Code)

	_, err := h.login("alice@example.com", "N3w-Passw0rd!")
	require.NoError(t, err)
}

/*
TestHTTP_ResendConfirmationEmail verifies the resend endpoint.
*/
func TestHTTP_ResendConfirmationEmail(t *testing.T) {
	h := newHTTPHarness(t)
	h.register(t, "alice@example.com")
	sent := h.mail.count()

	recorder := h.do(http.MethodPost, "/resendConfirmationEmail?email="+url.QueryEscape("alice@example.com"), "")
	require.Equal(t, http.StatusOK, recorder.Code)
	assert.Equal(t, sent+1, h.mail.count())

	recorder = h.do(http.MethodPost, "/resendConfirmationEmail", "")
	assert.Equal(t, http.StatusBadRequest, recorder.Code)
}
