package services

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	viper.Reset()

	config := LoadConfig()

	assert.Equal(t, "8080", config.Server.Port)
	assert.Empty(t, config.Database.URL)
	assert.True(t, config.Database.Seed)
	assert.Equal(t, "silent", config.Database.LogLevel)
	assert.Equal(t, 10, config.Database.MaxIdleConns)
	assert.Equal(t, 100, config.Database.MaxOpenConns)
	assert.Equal(t, 3, config.Store.RetryMaxAttempts)
	assert.Equal(t, 100*time.Millisecond, config.Store.RetryInitialBackoff)
	assert.Equal(t, 2*time.Second, config.Store.RetryMaxBackoff)
	assert.Equal(t, 2.0, config.Store.RetryMultiplier)
	assert.Empty(t, config.AI.GeminiAPIKey)
	assert.Equal(t, 30*time.Second, config.AI.RequestTimeout)
	assert.Equal(t, 0.7, config.AI.Temperature)
	assert.EqualValues(t, 2048, config.AI.MaxOutputTokens)
	assert.Empty(t, config.JWT.Secret)
	assert.Equal(t, "./media", config.Media.Root)
	assert.Equal(t, 30*time.Minute, config.Sessions.IdleTimeout)
	assert.Equal(t, time.Minute, config.Sessions.ReapInterval)
}

func TestLoadConfigFromEnvironment(t *testing.T) {
	viper.Reset()
	t.Setenv("SERVER_PORT", "9999")
	t.Setenv("GEMINI_API_KEY", "test-key")
	t.Setenv("DATABASE_SEED", "false")
	t.Setenv("STORE_RETRY_MAX_ATTEMPTS", "5")
	t.Setenv("SESSION_IDLE_TIMEOUT", "45m")
	t.Setenv("MEDIA_ROOT", "/var/lib/rehearsal/media")

	config := LoadConfig()

	assert.Equal(t, "9999", config.Server.Port)
	assert.Equal(t, "test-key", config.AI.GeminiAPIKey)
	assert.False(t, config.Database.Seed)
	assert.Equal(t, 5, config.Store.RetryMaxAttempts)
	assert.Equal(t, 45*time.Minute, config.Sessions.IdleTimeout)
	assert.Equal(t, "/var/lib/rehearsal/media", config.Media.Root)
}

func TestStoreConfigRetryPolicy(t *testing.T) {
	sc := StoreConfig{
		RetryMaxAttempts:    4,
		RetryInitialBackoff: 50 * time.Millisecond,
		RetryMaxBackoff:     time.Second,
		RetryMultiplier:     3.0,
	}
	policy := sc.RetryPolicy()
	require.Equal(t, 4, policy.MaxAttempts)
	assert.Equal(t, 50*time.Millisecond, policy.InitialBackoff)
	assert.Equal(t, time.Second, policy.MaxBackoff)
	assert.Equal(t, 3.0, policy.Multiplier)
}
