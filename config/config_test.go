package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("ENVIRONMENT", "test")
	t.Setenv("RECENT_DRAW_LIMIT", "")
	t.Setenv("REVEAL_DELAY_MS", "")
	t.Setenv("CORS_ORIGINS", "")

	cfg, err := load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.ServerPort)
	assert.Equal(t, 20, cfg.RecentDrawLimit)
	assert.Equal(t, 500*time.Millisecond, cfg.RevealDelay)
	assert.Equal(t, []string{"*"}, cfg.CORSOrigins)
	assert.Equal(t, "@every 5m", cfg.ReconcileSchedule)
	assert.Empty(t, cfg.NATSServers)
	assert.Empty(t, cfg.RedisURL)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("ENVIRONMENT", "test")
	t.Setenv("RECENT_DRAW_LIMIT", "50")
	t.Setenv("REVEAL_DELAY_MS", "750")
	t.Setenv("CORS_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("JWT_EXPIRY_HOURS", "not-a-number")

	cfg, err := load()
	require.NoError(t, err)

	assert.Equal(t, 50, cfg.RecentDrawLimit)
	assert.Equal(t, 750*time.Millisecond, cfg.RevealDelay)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSOrigins)
	assert.Equal(t, 24, cfg.JWTExpiryHours)
}

func TestLoad_RequiresDatabaseAndSecretOutsideTest(t *testing.T) {
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("JWT_SECRET", "")

	_, err := load()
	assert.ErrorContains(t, err, "DATABASE_URL is required")

	t.Setenv("DATABASE_URL", "postgres://localhost:5432")
	_, err = load()
	assert.ErrorContains(t, err, "JWT_SECRET is required")
}

func TestLoad_RejectsNonPositiveDrawLimit(t *testing.T) {
	t.Setenv("ENVIRONMENT", "test")
	t.Setenv("RECENT_DRAW_LIMIT", "0")

	_, err := load()
	assert.Error(t, err)
}

func TestSetTestConfig(t *testing.T) {
	t.Cleanup(ResetConfig)

	cfg := NewTestConfig()
	cfg.RecentDrawLimit = 3
	SetTestConfig(cfg)

	assert.Same(t, cfg, Get())
}

func TestGetDatabaseURL(t *testing.T) {
	cfg := &Config{DatabaseURL: "postgres://u:p@localhost:5432", DatabaseName: "kuji"}
	assert.Equal(t, "postgres://u:p@localhost:5432/kuji?sslmode=disable", cfg.GetDatabaseURL())
}
