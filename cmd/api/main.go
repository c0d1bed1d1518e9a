// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

// Command api is the entry point for the authentication API server.
//
// # Startup Sequence
//
//  1. Initialize structured logger.
//  2. Load configuration from environment variables.
//  3. Open the credential store (PostgreSQL with migrations, or memory).
//  4. Connect to Redis.
//  5. Load the data-protection key ring.
//  6. Wire identity services and HTTP handlers.
//  7. Start HTTP server with graceful shutdown.
//
// No business logic lives here. All wiring is explicit constructor injection.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/taibuivan/authapi/internal/api"
	"github.com/taibuivan/authapi/internal/platform/config"
	"github.com/taibuivan/authapi/internal/platform/constants"
	"github.com/taibuivan/authapi/internal/platform/mail"
	"github.com/taibuivan/authapi/internal/platform/migration"
	pgstore "github.com/taibuivan/authapi/internal/platform/postgres"
	"github.com/taibuivan/authapi/internal/platform/protect"
	redisstore "github.com/taibuivan/authapi/internal/platform/redis"
	"github.com/taibuivan/authapi/internal/platform/sec"
	"github.com/taibuivan/authapi/internal/users/account"
	"github.com/taibuivan/authapi/internal/users/auth"
)

func main() {
	// 1. Logger
	// Initialize first so that subsequent startup errors are structured JSON.
	log := newLogger(slog.LevelInfo)
	slog.SetDefault(log)

	log.Info("service_initializing")

	// 2. Configuration
	cfg, err := config.Load()
	must(log, err, "load configuration")

	if cfg.Debug {
		log = newLogger(slog.LevelDebug)
		slog.SetDefault(log)
		log.Debug("debug_logging_enabled")
	}

	log.Info("configuration_loaded",
		slog.String("environment", cfg.Environment),
		slog.String("port", cfg.ServerPort),
		slog.String("store_driver", cfg.StoreDriver),
		slog.Bool("trust_proxy_headers", cfg.TrustProxyHeaders),
	)

	// Root context for startup. Use a 30s deadline so misconfiguration is
	// caught quickly rather than hanging indefinitely.
	startupCtx, startupCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer startupCancel()

	// 3. Credential store
	var (
		store         auth.CredentialStore
		checkDatabase api.HealthCheck
	)

	switch cfg.StoreDriver {
	case "postgres":
		must(log, migration.RunUp(cfg.DatabaseURL, cfg.MigrationPath, log), "run migrations")

		pool, err := pgstore.NewPool(startupCtx, cfg.DatabaseURL, log)
		must(log, err, "connect to postgres")
		defer func() {
			log.Info("closing_postgres_pool")
			pool.Close()
		}()

		store = auth.NewPostgresUserStore(pool, time.Now)
		checkDatabase = func(ctx context.Context) error { return pgstore.Ping(ctx, pool) }

	case "memory":
		log.Warn("memory_store_enabled", slog.String("reason", "accounts are lost on restart"))
		store = auth.NewMemoryStore(time.Now)

	default:
		must(log, errors.New("unknown STORE_DRIVER "+cfg.StoreDriver), "select credential store")
	}

	// 4. Redis
	rdb, err := redisstore.NewClient(startupCtx, cfg.RedisURL, log)
	must(log, err, "connect to redis")
	defer func() {
		log.Info("closing_redis_client")
		if cerr := rdb.Close(); cerr != nil {
			log.Error("redis_close_error", slog.Any("error", cerr))
		}
	}()

	// 5. Data protection
	keyRepository, err := protect.NewFileKeyRepository(cfg.KeyPath)
	must(log, err, "open key directory")

	keyRing, err := protect.NewKeyRing(startupCtx, keyRepository, time.Now, log)
	must(log, err, "load key ring")
	codec := protect.NewCodec(keyRing)

	deviceTokens, err := sec.NewDeviceTokenService(cfg.SessionSecret, constants.AppName)
	must(log, err, "initialize device token service")

	// 6. Mail
	var sender mail.Sender = mail.NewLogSender(log)
	if cfg.MailHost != "" {
		sender = mail.NewSMTPSender(mail.SMTPConfig{
			Host:     cfg.MailHost,
			Port:     cfg.MailPort,
			Username: cfg.MailUsername,
			Password: cfg.MailPassword,
			From:     cfg.MailFrom,
		})
	} else {
		log.Warn("mail_host_not_configured", slog.String("fallback", "log_metadata_only"))
	}

	// 7. Domain wiring
	clock := auth.Clock(time.Now)
	hasher := sec.NewPasswordHasher(bcrypt.DefaultCost)
	authenticator := sec.NewAuthenticator(cfg.TOTPIssuer)
	policy := auth.PasswordPolicy{
		MinLength:              cfg.PasswordMinLength,
		RequireDigit:           cfg.PasswordRequireDigit,
		RequireLowercase:       cfg.PasswordRequireLowercase,
		RequireUppercase:       cfg.PasswordRequireUppercase,
		RequireNonAlphanumeric: cfg.PasswordRequireNonAlphanumeric,
		RequiredUniqueChars:    cfg.PasswordRequiredUniqueChars,
	}

	devices := auth.NewDeviceRegistry(deviceTokens, auth.NewRedisDeviceStore(rdb), clock)
	codes := auth.NewCodeProvider(codec, clock)
	notifier := auth.NewNotifier(sender, cfg.PublicBaseURL, log)

	engine := auth.NewEngine(store, hasher, authenticator, devices, clock, auth.EngineOptions{
		Lockout:               auth.LockoutPolicy{MaxAttempts: cfg.LockoutMaxAttempts, Duration: cfg.LockoutDuration},
		RequireConfirmedEmail: cfg.RequireConfirmedEmail,
	}, log)

	sessions := auth.NewSessionIssuer(codec, store, auth.NewRedisSessionStore(rdb), clock, auth.SessionOptions{
		AccessTokenTTL:   cfg.AccessTokenTTL,
		RefreshTokenTTL:  cfg.RefreshTokenTTL,
		CookieSessionTTL: cfg.CookieSessionTTL,
	}, log)

	authService := auth.NewService(auth.ServiceDeps{
		Store:     store,
		Hasher:    hasher,
		Policy:    policy,
		Engine:    engine,
		Sessions:  sessions,
		TwoFactor: auth.NewTwoFactorManager(store, authenticator, devices, clock, log),
		Emails:    auth.NewEmailFlow(store, codes, notifier, log),
		Resets:    auth.NewPasswordResetFlow(store, codes, hasher, policy, notifier, log),
		Clock:     clock,
		Logger:    log,
	})

	cookies := auth.NewCookieWriter(cfg.CookieDomain, cfg.CookieSecure)

	// 8. Health handlers (wired with real dependency checkers)
	liveness, readiness := api.NewHealthHandlers(api.HealthDependencies{
		CheckDatabase: checkDatabase,
		CheckCache: func(ctx context.Context) error {
			return redisstore.Ping(ctx, rdb)
		},
	}, log)

	// 9. HTTP Server
	serverCtx, serverCancel := context.WithCancel(context.Background())
	defer serverCancel()

	server := api.NewServer(serverCtx, cfg, log, authService, api.Handlers{
		Liveness:  liveness,
		Readiness: readiness,
		Auth:      auth.NewHandler(authService, cookies),
		Account:   account.NewHandler(account.NewService(authService), cookies),
	})

	// 10. Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGTERM, syscall.SIGINT)

	serverErr := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Block until OS signal or server error.
	select {
	case sig := <-quit:
		log.Info("shutdown_signal_received", slog.String("signal", sig.String()))
	case err := <-serverErr:
		log.Error("server_startup_error", slog.Any("error", err))
	}

	// Give in-flight requests enough time to complete.
	log.Info("shutting_down_server", slog.Duration("timeout", constants.ShutdownTimeout))

	if err := server.Shutdown(constants.ShutdownTimeout); err != nil {
		log.Error("shutdown_error", slog.Any("error", err))
		os.Exit(1)
	}

	log.Info("server_stopped_cleanly")
}

// newLogger builds the JSON logger with the global app attribute.
func newLogger(level slog.Level) *slog.Logger {
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	return slog.New(handler).With(slog.String("app", constants.AppName))
}

// must logs a structured fatal error and terminates the process if err is non-nil.
//
// It is intentionally limited to startup wiring. After startup, all errors
// must be returned and handled explicitly (never panic).
func must(log *slog.Logger, err error, context string) {
	if err != nil {
		log.Error("startup_failure",
			slog.String("context", context),
			slog.Any("error", err),
		)
		os.Exit(1)
	}
}
