// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taibuivan/authapi/internal/platform/config"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("SESSION_SECRET", "0123456789abcdef0123456789abcdef")
	t.Setenv("STORE_DRIVER", "memory")
}

/*
TestLoad_Defaults verifies the identity defaults.
*/
func TestLoad_Defaults(t *testing.T) {
	setRequired(t)

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.ServerPort)
	assert.True(t, cfg.IsDevelopment())
	assert.False(t, cfg.IsProduction())
	assert.Equal(t, 15*time.Minute, cfg.AccessTokenTTL)
	assert.Equal(t, 14*24*time.Hour, cfg.RefreshTokenTTL)
	assert.Equal(t, 5, cfg.LockoutMaxAttempts)
	assert.Equal(t, 5*time.Minute, cfg.LockoutDuration)
	assert.Equal(t, 6, cfg.PasswordMinLength)
	assert.True(t, cfg.PasswordRequireDigit)
	assert.False(t, cfg.PasswordRequireNonAlphanumeric)
	assert.False(t, cfg.RequireConfirmedEmail)
	assert.True(t, cfg.CookieSecure)
	assert.False(t, cfg.TrustProxyHeaders)
}

/*
TestLoad_Required verifies the missing-variable failures.
*/
func TestLoad_Required(t *testing.T) {
	t.Setenv("REDIS_URL", "")
	t.Setenv("SESSION_SECRET", "secret")

	_, err := config.Load()
	require.Error(t, err)

	setRequired(t)
	t.Setenv("STORE_DRIVER", "postgres")
	t.Setenv("DATABASE_URL", "")

	_, err = config.Load()
	assert.ErrorContains(t, err, "DATABASE_URL")
}

/*
TestLoad_ProductionRequiresMailHost verifies that production never falls back
to logging mail.
*/
func TestLoad_ProductionRequiresMailHost(t *testing.T) {
	setRequired(t)
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("MAIL_HOST", "")

	_, err := config.Load()
	assert.ErrorContains(t, err, "MAIL_HOST")

	t.Setenv("MAIL_HOST", "smtp.example.com")
	cfg, err := config.Load()
	require.NoError(t, err)
	assert.True(t, cfg.IsProduction())
	assert.Equal(t, "smtp.example.com", cfg.MailHost)

	t.Setenv("ENVIRONMENT", "staging")
	t.Setenv("MAIL_HOST", "")
	_, err = config.Load()
	assert.NoError(t, err)
}

/*
TestAllowedOrigins verifies the comma list parsing.
*/
func TestAllowedOrigins(t *testing.T) {
	cfg := &config.Config{ExtraOrigins: " https://a.example.com, ,https://b.example.com "}
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.AllowedOrigins())

	assert.Empty(t, (&config.Config{}).AllowedOrigins())
}
