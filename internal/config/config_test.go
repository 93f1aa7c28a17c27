package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:5000", cfg.Addr())
	assert.Equal(t, "./data/lanchat.db", cfg.Database)
	assert.Equal(t, 1000, cfg.MaxMessageLength)
	assert.Equal(t, 50, cfg.HistoryLimit)
	assert.Equal(t, 3*time.Second, cfg.TypingTimeout)
	assert.Equal(t, 60*time.Second, cfg.ReadTimeout)
	assert.Equal(t, 30*time.Second, cfg.PingInterval)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("LANCHAT_HOST", "127.0.0.1")
	t.Setenv("LANCHAT_PORT", "8080")
	t.Setenv("LANCHAT_TYPING_TIMEOUT", "5s")
	t.Setenv("LANCHAT_LOG_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:8080", cfg.Addr())
	assert.Equal(t, 5*time.Second, cfg.TypingTimeout)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := map[string]string{
		"LANCHAT_PORT":               "70000",
		"LANCHAT_MAX_MESSAGE_LENGTH": "0",
		"LANCHAT_HISTORY_LIMIT":      "-1",
		"LANCHAT_TYPING_TIMEOUT":     "0s",
	}
	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, value)
			_, err := Load()
			require.Error(t, err)
		})
	}
}
