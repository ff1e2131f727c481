package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("ADMIN_ID", "42")

	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "development", cfg.Env)
	assert.Equal(t, int64(42), cfg.AdminID)
	assert.Equal(t, 720*time.Hour, cfg.JWTExpiry)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 32, cfg.BotWorkers)
	assert.False(t, cfg.IsProduction())
}

func TestLoad_InvalidAdminID(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("ADMIN_ID", "not-a-number")

	_, err := Load()

	assert.Error(t, err)
}

func TestLoad_InvalidExpiryFallsBack(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("ADMIN_ID", "1")
	t.Setenv("JWT_EXPIRY", "soon")

	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, 720*time.Hour, cfg.JWTExpiry)
}

func TestLoad_BotWorkers(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("ADMIN_ID", "1")

	for input, want := range map[string]int{"4": 4, "0": 32, "-3": 32, "many": 32} {
		t.Run(input, func(t *testing.T) {
			t.Setenv("BOT_WORKERS", input)
			cfg, err := Load()
			require.NoError(t, err)
			assert.Equal(t, want, cfg.BotWorkers)
		})
	}
}

func TestLoad_MissingSecretPanics(t *testing.T) {
	t.Setenv("JWT_SECRET", "")

	assert.Panics(t, func() { _, _ = Load() })
}

func TestIsProduction(t *testing.T) {
	cfg := &Config{Env: "production"}
	assert.True(t, cfg.IsProduction())
}
