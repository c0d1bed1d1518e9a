// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package middleware_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taibuivan/authapi/internal/platform/apperr"
	"github.com/taibuivan/authapi/internal/platform/constants"
	"github.com/taibuivan/authapi/internal/platform/ctxutil"
	"github.com/taibuivan/authapi/internal/platform/middleware"
	"github.com/taibuivan/authapi/internal/platform/respond"
	"github.com/taibuivan/authapi/internal/platform/sec"
)

// fakeVerifier accepts exactly one bearer token and one session id.
type fakeVerifier struct {
	cookieErr error
}

func (verifier fakeVerifier) VerifyBearer(_ context.Context, token string) (*sec.AuthClaims, error) {
	if token != "good-token" {
		return nil, apperr.Unauthorized("bad token")
	}
	return &sec.AuthClaims{UserID: "u1", Scheme: constants.SchemeBearer}, nil
}

func (verifier fakeVerifier) VerifyCookie(_ context.Context, sessionID string) (*sec.AuthClaims, error) {
	if verifier.cookieErr != nil {
		return nil, verifier.cookieErr
	}
	if sessionID != "good-session" {
		return nil, apperr.Unauthorized("bad session")
	}
	return &sec.AuthClaims{UserID: "u2", Scheme: constants.SchemeCookie}, nil
}

// whoami echoes the resolved user id, or "anonymous".
var whoami = http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
	if claims := ctxutil.GetAuthUser(request.Context()); claims != nil {
		_, _ = writer.Write([]byte(claims.UserID + "/" + claims.Scheme))
		return
	}
	_, _ = writer.Write([]byte("anonymous"))
})

func decodeError(t *testing.T, recorder *httptest.ResponseRecorder) respond.ErrorEnvelope {
	t.Helper()
	var envelope respond.ErrorEnvelope
	require.NoError(t, json.NewDecoder(recorder.Body).Decode(&envelope))
	return envelope
}

// # Authentication

/*
TestAuthenticate verifies how bearer headers and session cookies resolve the caller.
*/
func TestAuthenticate(t *testing.T) {
	tests := []struct {
		name     string
		header   string
		cookie   string
		verifier fakeVerifier
		status   int
		body     string
		message  string
	}{
		{name: "anonymous", status: http.StatusOK, body: "anonymous"},
		{name: "valid bearer", header: "Bearer good-token", status: http.StatusOK, body: "u1/Bearer"},
		{name: "scheme is case insensitive", header: "bearer good-token", status: http.StatusOK, body: "u1/Bearer"},
		{name: "wrong scheme", header: "Basic abc", status: http.StatusUnauthorized, message: "Invalid authorization format"},
		{name: "missing token", header: "Bearer ", status: http.StatusUnauthorized, message: "Invalid authorization format"},
		{name: "invalid bearer", header: "Bearer bad-token", status: http.StatusUnauthorized, message: "Invalid or expired token"},
		{name: "valid cookie", cookie: "good-session", status: http.StatusOK, body: "u2/Identity.Application"},
		{name: "invalid cookie is anonymous", cookie: "stale-session", status: http.StatusOK, body: "anonymous"},
		{
			name:     "cookie store failure is anonymous",
			cookie:   "good-session",
			verifier: fakeVerifier{cookieErr: errors.New("redis down")},
			status:   http.StatusOK,
			body:     "anonymous",
		},
		{name: "bearer wins over cookie", header: "Bearer good-token", cookie: "good-session", status: http.StatusOK, body: "u1/Bearer"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			request := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				request.Header.Set(constants.HeaderAuthorization, tt.header)
			}
			if tt.cookie != "" {
				request.AddCookie(&http.Cookie{Name: constants.SessionCookieName, Value: tt.cookie})
			}

			recorder := httptest.NewRecorder()
			middleware.Authenticate(tt.verifier)(whoami).ServeHTTP(recorder, request)

			require.Equal(t, tt.status, recorder.Code)
			if tt.message != "" {
				envelope := decodeError(t, recorder)
				assert.Equal(t, "UNAUTHORIZED", envelope.Code)
				assert.Equal(t, tt.message, envelope.Error)
				return
			}
			assert.Equal(t, tt.body, recorder.Body.String())
		})
	}
}

/*
TestRequireAuth verifies that anonymous callers are rejected.
*/
func TestRequireAuth(t *testing.T) {
	handler := middleware.Authenticate(fakeVerifier{})(middleware.RequireAuth(whoami))

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusUnauthorized, recorder.Code)
	assert.Equal(t, "Authentication required", decodeError(t, recorder).Error)

	request := httptest.NewRequest(http.MethodGet, "/", nil)
	request.AddCookie(&http.Cookie{Name: constants.SessionCookieName, Value: "good-session"})
	recorder = httptest.NewRecorder()
	handler.ServeHTTP(recorder, request)
	assert.Equal(t, http.StatusOK, recorder.Code)
}

// # Guards

/*
TestRateLimit verifies the 429 answer once a client exhausts its burst.
*/
func TestRateLimit(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	handler := middleware.RateLimit(ctx, 0.001, 2)(whoami)
	send := func(ip string) *httptest.ResponseRecorder {
		request := httptest.NewRequest(http.MethodGet, "/", nil)
		request.RemoteAddr = ip + ":40000"
		recorder := httptest.NewRecorder()
		handler.ServeHTTP(recorder, request)
		return recorder
	}

	assert.Equal(t, http.StatusOK, send("10.0.0.1").Code)
	assert.Equal(t, http.StatusOK, send("10.0.0.1").Code)

	limited := send("10.0.0.1")
	require.Equal(t, http.StatusTooManyRequests, limited.Code)
	retryAfter, err := strconv.Atoi(limited.Header().Get("Retry-After"))
	require.NoError(t, err)
	assert.Greater(t, retryAfter, 1, "one token per 1000s leaves a long wait")
	assert.Equal(t, "RATE_LIMITED", decodeError(t, limited).Code)

	// Buckets are per client.
	assert.Equal(t, http.StatusOK, send("10.0.0.2").Code)
}

/*
TestRateLimit_IgnoresForwardingHeaders verifies that rotating X-Forwarded-For
or X-Real-IP does not open a fresh bucket.
*/
func TestRateLimit_IgnoresForwardingHeaders(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	handler := middleware.RateLimit(ctx, 0.001, 1)(whoami)
	send := func(forwarded string) int {
		request := httptest.NewRequest(http.MethodGet, "/", nil)
		request.RemoteAddr = "10.0.0.1:40000"
		request.Header.Set(constants.HeaderXForwardedFor, forwarded)
		request.Header.Set(constants.HeaderXRealIP, forwarded)
		recorder := httptest.NewRecorder()
		handler.ServeHTTP(recorder, request)
		return recorder.Code
	}

	assert.Equal(t, http.StatusOK, send("198.51.100.1"))
	assert.Equal(t, http.StatusTooManyRequests, send("198.51.100.2"))
	assert.Equal(t, http.StatusTooManyRequests, send("198.51.100.3"))
}

type corsConfig struct {
	development bool
	origins     []string
}

func (cfg corsConfig) IsDevelopment() bool      { return cfg.development }
func (cfg corsConfig) AllowedOrigins() []string { return cfg.origins }

/*
TestCORS verifies origin echoing and pre-flight handling.
*/
func TestCORS(t *testing.T) {
	handler := middleware.CORS(corsConfig{origins: []string{"https://app.example.com"}})(whoami)

	request := httptest.NewRequest(http.MethodGet, "/", nil)
	request.Header.Set(constants.HeaderOrigin, "https://app.example.com")
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, request)
	assert.Equal(t, "https://app.example.com", recorder.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", recorder.Header().Get("Access-Control-Allow-Credentials"))

	request = httptest.NewRequest(http.MethodGet, "/", nil)
	request.Header.Set(constants.HeaderOrigin, "https://evil.example.com")
	recorder = httptest.NewRecorder()
	handler.ServeHTTP(recorder, request)
	assert.Empty(t, recorder.Header().Get("Access-Control-Allow-Origin"))

	request = httptest.NewRequest(http.MethodOptions, "/", nil)
	request.Header.Set(constants.HeaderOrigin, "https://app.example.com")
	recorder = httptest.NewRecorder()
	handler.ServeHTTP(recorder, request)
	assert.Equal(t, http.StatusNoContent, recorder.Code)

	development := middleware.CORS(corsConfig{development: true})(whoami)
	request = httptest.NewRequest(http.MethodGet, "/", nil)
	request.Header.Set(constants.HeaderOrigin, "http://localhost:5173")
	recorder = httptest.NewRecorder()
	development.ServeHTTP(recorder, request)
	assert.Equal(t, "http://localhost:5173", recorder.Header().Get("Access-Control-Allow-Origin"))
}

// # Safety

/*
TestPanicRecovery verifies that a panicking handler yields a generic 500.
*/
func TestPanicRecovery(t *testing.T) {
	handler := middleware.PanicRecovery(slog.New(slog.NewTextHandler(io.Discard, nil)))(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, http.StatusInternalServerError, recorder.Code)
	assert.Equal(t, "INTERNAL_ERROR", decodeError(t, recorder).Code)
}

/*
TestRequestID verifies that a client id is kept and a missing one is generated.
*/
func TestRequestID(t *testing.T) {
	var seen string
	handler := middleware.RequestID()(http.HandlerFunc(func(_ http.ResponseWriter, request *http.Request) {
		seen = ctxutil.GetRequestID(request.Context())
	}))

	request := httptest.NewRequest(http.MethodGet, "/", nil)
	request.Header.Set(constants.HeaderXRequestID, "client-id")
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, request)
	assert.Equal(t, "client-id", seen)
	assert.Equal(t, "client-id", recorder.Header().Get(constants.HeaderXRequestID))

	recorder = httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.NotEmpty(t, seen)
	assert.NotEqual(t, "client-id", seen)
}

/*
TestRealIP verifies that only the connection address identifies the client.
*/
func TestRealIP(t *testing.T) {
	request := httptest.NewRequest(http.MethodGet, "/", nil)
	request.RemoteAddr = "192.0.2.1:1234"
	assert.Equal(t, "192.0.2.1", middleware.RealIP(request))

	request.Header.Set(constants.HeaderXForwardedFor, "198.51.100.7, 10.0.0.1")
	request.Header.Set(constants.HeaderXRealIP, "203.0.113.9")
	assert.Equal(t, "192.0.2.1", middleware.RealIP(request))

	// chimw.RealIP leaves a bare address without a port.
	request.RemoteAddr = "203.0.113.9"
	assert.Equal(t, "203.0.113.9", middleware.RealIP(request))
}

/*
TestStructuredLogger verifies that the request line carries the caller
resolved further down the chain.
*/
func TestStructuredLogger(t *testing.T) {
	var output strings.Builder
	logger := slog.New(slog.NewJSONHandler(&output, nil))

	handler := middleware.RequestID()(
		middleware.StructuredLogger(logger)(
			middleware.Authenticate(fakeVerifier{})(whoami)))

	request := httptest.NewRequest(http.MethodGet, "/api/v1/me", nil)
	request.Header.Set(constants.HeaderAuthorization, "Bearer good-token")
	request.Header.Set(constants.HeaderXRequestID, "trace-1")
	handler.ServeHTTP(httptest.NewRecorder(), request)

	var line map[string]any
	require.NoError(t, json.Unmarshal([]byte(output.String()), &line))
	assert.Equal(t, "http_request_finished", line["msg"])
	assert.Equal(t, "trace-1", line["request_id"])
	assert.Equal(t, "u1", line["user_id"])
	assert.Equal(t, "Bearer", line["scheme"])
	assert.EqualValues(t, 200, line["status"])
}
