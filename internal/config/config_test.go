package config

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{
		"PORT", "LOG_LEVEL", "AI_PROVIDER", "AI_MODEL", "AI_TEMPERATURE", "AI_MAX_RETRIES",
		"AI_RETRY_BASE_DELAY", "AI_RETRY_MAX_DELAY", "AI_STREAM_IDLE_TIMEOUT", "ALERT_STORE",
		"VOICE_DEBOUNCE", "VOICE_CHAT_URL",
	} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, slog.LevelInfo, cfg.Log.Level)
	assert.Equal(t, ProviderGateway, cfg.AI.Provider)
	assert.Equal(t, "google/gemini-2.5-flash-lite", cfg.AI.Model)
	assert.InDelta(t, 0.7, cfg.AI.Temperature, 1e-9)
	assert.Equal(t, 3, cfg.AI.MaxRetries)
	assert.Equal(t, 2*time.Second, cfg.AI.RetryBaseDelay)
	assert.Equal(t, 15*time.Second, cfg.AI.RetryMaxDelay)
	assert.Equal(t, 60*time.Second, cfg.AI.StreamIdleTimeout)
	assert.Equal(t, AlertStoreMemory, cfg.Alert.Store)
	assert.Equal(t, 3*time.Second, cfg.Voice.Debounce)
	assert.Equal(t, "http://127.0.0.1:8080/api/chat", cfg.Voice.ChatURL)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("AI_MAX_RETRIES", "5")
	t.Setenv("AI_STREAM_IDLE_TIMEOUT", "0s")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("ALERT_STORE", "sqlite")
	t.Setenv("ALERT_DB_DSN", "file::memory:")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, 5, cfg.AI.MaxRetries)
	assert.Zero(t, cfg.AI.StreamIdleTimeout)
	assert.Equal(t, slog.LevelDebug, cfg.Log.Level)
	assert.Equal(t, AlertStoreSQLite, cfg.Alert.Store)
	assert.Equal(t, "file::memory:", cfg.Alert.DSN)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string]string{
		"AI_RETRY_BASE_DELAY": "soon",
		"AI_TEMPERATURE":      "warm",
		"AI_PROVIDER":         "carrier-pigeon",
		"ALERT_STORE":         "clay-tablet",
		"LOG_LEVEL":           "chatty",
	}
	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, value)
			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), key)
		})
	}
}

func TestMySQLStoreRequiresDSN(t *testing.T) {
	t.Setenv("ALERT_STORE", "mysql")
	t.Setenv("ALERT_DB_DSN", "")

	_, err := Load()
	require.Error(t, err)
}

func TestGatewayEnabledNeedsKey(t *testing.T) {
	cfg := AIConfig{Provider: ProviderGateway, GatewayURL: "http://x"}
	assert.False(t, cfg.Enabled())
	cfg.GatewayAPIKey = "k"
	assert.True(t, cfg.Enabled())
}

func TestSetupLoggerWithWritersFansOut(t *testing.T) {
	var stderr, file bytes.Buffer
	logger := SetupLoggerWithWriters(&stderr, &file, slog.LevelInfo)

	logger.Info("alert recorded", "risk", "high")

	assert.Contains(t, stderr.String(), "alert recorded")
	assert.True(t, strings.HasPrefix(file.String(), "{"))
	assert.Contains(t, file.String(), `"risk":"high"`)
}
