// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth_test

import (
	"context"
	"html"
	"io"
	"log/slog"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/pquerna/otp/totp"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/taibuivan/authapi/internal/platform/apperr"
	"github.com/taibuivan/authapi/internal/platform/mail"
	"github.com/taibuivan/authapi/internal/platform/protect"
	"github.com/taibuivan/authapi/internal/platform/sec"
	"github.com/taibuivan/authapi/internal/users/auth"
)

const (
	testPassword      = "Passw0rd!"
	testSessionSecret = "0123456789abcdef0123456789abcdef"
	testBaseURL       = "https://auth.example.com"
)

// # Clock

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (clock *testClock) Now() time.Time {
	clock.mu.Lock()
	defer clock.mu.Unlock()
	return clock.now
}

func (clock *testClock) Advance(duration time.Duration) {
	clock.mu.Lock()
	defer clock.mu.Unlock()
	clock.now = clock.now.Add(duration)
}

// # Mail

type recordingSender struct {
	mu       sync.Mutex
	messages []mail.Message
}

func (sender *recordingSender) Send(_ context.Context, message mail.Message) error {
	sender.mu.Lock()
	defer sender.mu.Unlock()
	sender.messages = append(sender.messages, message)
	return nil
}

func (sender *recordingSender) count() int {
	sender.mu.Lock()
	defer sender.mu.Unlock()
	return len(sender.messages)
}

func (sender *recordingSender) last(t *testing.T) mail.Message {
	t.Helper()
	sender.mu.Lock()
	defer sender.mu.Unlock()
	require.NotEmpty(t, sender.messages, "no mail was sent")
	return sender.messages[len(sender.messages)-1]
}

var hrefPattern = regexp.MustCompile(`href='([^']+)'`)

// lastLink returns the query of the confirmation link in the last message.
func (sender *recordingSender) lastLink(t *testing.T) url.Values {
	t.Helper()
	match := hrefPattern.FindStringSubmatch(sender.last(t).HTMLBody)
	require.Len(t, match, 2)

	link, err := url.Parse(html.UnescapeString(match[1]))
	require.NoError(t, err)
	require.Equal(t, "/api/v1/auth/confirmEmail", link.Path)
	return link.Query()
}

// lastResetCode returns the code in the last password reset message.
func (sender *recordingSender) lastResetCode(t *testing.T) string {
	t.Helper()
	body := sender.last(t).HTMLBody
	index := strings.LastIndex(body, ": ")
	require.GreaterOrEqual(t, index, 0)
	return html.UnescapeString(body[index+2:])
}

// # Harness

type harness struct {
	ctx           context.Context
	clock         *testClock
	store         *auth.MemoryStore
	redis         *miniredis.Miniredis
	mail          *recordingSender
	authenticator *sec.Authenticator
	sessions      *auth.SessionIssuer
	devices       *auth.DeviceRegistry
	service       *auth.Service
}

type harnessOptions struct {
	engine auth.EngineOptions
	policy auth.PasswordPolicy
}

func newHarness(t *testing.T, configure ...func(*harnessOptions)) *harness {
	t.Helper()

	options := harnessOptions{
		engine: auth.EngineOptions{Lockout: auth.DefaultLockoutPolicy()},
		policy: auth.DefaultPasswordPolicy(),
	}
	for _, apply := range configure {
		apply(&options)
	}

	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	clock := &testClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}

	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	ring, err := protect.NewKeyRing(ctx, protect.NewMemoryKeyRepository(), clock.Now, logger)
	require.NoError(t, err)
	codec := protect.NewCodec(ring)

	deviceTokens, err := sec.NewDeviceTokenService(testSessionSecret, "authapi")
	require.NoError(t, err)

	store := auth.NewMemoryStore(clock.Now)
	sender := &recordingSender{}
	hasher := sec.NewPasswordHasher(bcrypt.MinCost)
	authenticator := sec.NewAuthenticator("authapi-test")
	devices := auth.NewDeviceRegistry(deviceTokens, auth.NewRedisDeviceStore(client), clock.Now)
	codes := auth.NewCodeProvider(codec, clock.Now)
	notifier := auth.NewNotifier(sender, testBaseURL, logger)
	sessions := auth.NewSessionIssuer(codec, store, auth.NewRedisSessionStore(client), clock.Now, auth.DefaultSessionOptions(), logger)

	service := auth.NewService(auth.ServiceDeps{
		Store:     store,
		Hasher:    hasher,
		Policy:    options.policy,
		Engine:    auth.NewEngine(store, hasher, authenticator, devices, clock.Now, options.engine, logger),
		Sessions:  sessions,
		TwoFactor: auth.NewTwoFactorManager(store, authenticator, devices, clock.Now, logger),
		Emails:    auth.NewEmailFlow(store, codes, notifier, logger),
		Resets:    auth.NewPasswordResetFlow(store, codes, hasher, options.policy, notifier, logger),
		Clock:     clock.Now,
		Logger:    logger,
	})

	return &harness{
		ctx:           ctx,
		clock:         clock,
		store:         store,
		redis:         server,
		mail:          sender,
		authenticator: authenticator,
		sessions:      sessions,
		devices:       devices,
		service:       service,
	}
}

// register creates an account whose username equals its email.
func (h *harness) register(t *testing.T, email string) *auth.User {
	t.Helper()
	user, err := h.service.Register(h.ctx, auth.RegisterInput{Username: email, Email: email, Password: testPassword})
	require.NoError(t, err)
	return user
}

// registerConfirmed registers an account and follows its confirmation link.
func (h *harness) registerConfirmed(t *testing.T, email string) *auth.User {
	t.Helper()
	user := h.register(t, email)

	query := h.mail.lastLink(t)
	require.NoError(t, h.service.ConfirmEmail(h.ctx, query.Get("userId"), query.Get("code"), ""))
	return h.reload(t, user.ID)
}

func (h *harness) reload(t *testing.T, id string) *auth.User {
	t.Helper()
	user, err := h.store.FindByID(h.ctx, id)
	require.NoError(t, err)
	return user
}

func (h *harness) login(email, password string) (*auth.LoginSession, error) {
	return h.service.Login(h.ctx, auth.LoginInput{LoginRequest: auth.LoginRequest{Email: email, Password: password}})
}

// totpCode returns the current code for the user's shared key.
func (h *harness) totpCode(t *testing.T, user *auth.User) string {
	t.Helper()
	code, err := totp.GenerateCode(user.AuthenticatorKey, h.clock.Now())
	require.NoError(t, err)
	return code
}

// enableTwoFactor provisions a key, enables two-factor and returns the recovery codes.
func (h *harness) enableTwoFactor(t *testing.T, claims *sec.AuthClaims) []string {
	t.Helper()
	_, err := h.service.UpdateTwoFactor(h.ctx, claims, auth.TwoFactorRequest{}, "")
	require.NoError(t, err)

	enable := true
	state, err := h.service.UpdateTwoFactor(h.ctx, claims, auth.TwoFactorRequest{
		Enable:        &enable,
		TwoFactorCode: h.totpCode(t, h.reload(t, claims.UserID)),
	}, "")
	require.NoError(t, err)
	require.True(t, state.IsTwoFactorEnabled)
	return state.RecoveryCodes
}

// requireAppError asserts err is an AppError with the given status and code.
func requireAppError(t *testing.T, err error, status int, code string) *apperr.AppError {
	t.Helper()
	require.Error(t, err)
	appError := apperr.As(err)
	require.NotNil(t, appError, "expected an AppError, got %v", err)
	require.Equal(t, status, appError.HTTPStatus)
	require.Equal(t, code, appError.Code)
	return appError
}
