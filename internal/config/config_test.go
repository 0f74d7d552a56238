package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testKey  = "0x59c6995e998f97a5a0044966f0945389dc9e86dae88c7a8412f4603b6b78690d"
	testAddr = "0x70997970C51812dc3A010C7d01b50e0d17dc79C8"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("SCORE_SIGNER_PK", testKey)
	t.Setenv("SCORE_SIGNER_ADDR", testAddr)
}

func TestLoadConfig_Defaults(t *testing.T) {
	setRequired(t)

	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, DefaultPort, cfg.Port)
	assert.True(t, cfg.AllowAllOrigins)
	assert.Equal(t, DefaultGlobalRateLimit, cfg.GlobalRateLimit)
	assert.Equal(t, DefaultSignRateLimit, cfg.SignRateLimit)
	assert.Equal(t, DefaultSignRateWindow, cfg.SignRateWindow)
	assert.Empty(t, cfg.RedisURL)
}

func TestLoadConfig_RequiresSignerKeyAndAddress(t *testing.T) {
	t.Setenv("SCORE_SIGNER_PK", "")
	t.Setenv("SCORE_SIGNER_ADDR", "")

	_, err := LoadConfig(t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SCORE_SIGNER_PK")

	t.Setenv("SCORE_SIGNER_PK", testKey)
	_, err = LoadConfig(t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SCORE_SIGNER_ADDR")
}

func TestLoadConfig_RejectsMalformedSignerAddress(t *testing.T) {
	t.Setenv("SCORE_SIGNER_PK", testKey)
	t.Setenv("SCORE_SIGNER_ADDR", "not-an-address")

	_, err := LoadConfig(t.TempDir())
	require.Error(t, err)
}

func TestLoadConfig_ParsesOriginsAndLimits(t *testing.T) {
	setRequired(t)
	t.Setenv("ALLOWED_ORIGINS", "https://pinball.example, https://staging.pinball.example")
	t.Setenv("RATE_LIMIT", "60")
	t.Setenv("SIGN_RATE_LIMIT", "5")
	t.Setenv("SIGN_RATE_WINDOW_MS", "60000")

	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)

	assert.False(t, cfg.AllowAllOrigins)
	assert.Equal(t, []string{"https://pinball.example", "https://staging.pinball.example"}, cfg.AllowedOrigins)
	assert.Equal(t, 60, cfg.GlobalRateLimit)
	assert.Equal(t, 5, cfg.SignRateLimit)
	assert.Equal(t, time.Minute, cfg.SignRateWindow)
}

func TestLoadConfig_RejectsNonPositiveLimits(t *testing.T) {
	setRequired(t)
	t.Setenv("RATE_LIMIT", "0")

	_, err := LoadConfig(t.TempDir())
	require.Error(t, err)
}
