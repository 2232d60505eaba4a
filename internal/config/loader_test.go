package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("DATABASE_URL", "postgres://duewatch:pw@localhost:5432/duewatch")
	t.Setenv("TELEGRAM_BOT_TOKEN", "123:abc")
	t.Setenv("EMAIL_API_KEY", "sk-test")
	t.Setenv("EMAIL_FROM_ADDRESS", "noreply@duewatch.io")
	t.Setenv("ALERT_TELEGRAM_CHAT_ID", "ops-chat")
}

func TestLoad_DefaultsApplied(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "local", cfg.Environment)
	assert.Equal(t, "UTC", cfg.Timezone)
	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, 50, cfg.Worker.BatchSize)
	assert.Equal(t, 3, cfg.Worker.MaxRetries)
	assert.Equal(t, "telegram", cfg.Alerts.Channel)
	assert.Equal(t, "DueWatch/Engine", cfg.Metrics.Namespace)
}

func TestLoad_MissingDatabaseURLFails(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("DATABASE_URL", "")

	_, err := Load()
	require.Error(t, err)
}

func TestLoad_InvalidTimezoneFails(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("TIMEZONE", "Mars/Olympus")

	_, err := Load()
	require.Error(t, err)
}

func TestLoad_AlertChannelNeedsDestination(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("ALERT_CHANNEL", "email")
	// ALERT_EMAIL_TO intentionally unset.

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "alert channel")
}

func TestLoad_SecretsAreRedacted(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "[REDACTED]", cfg.Database.URL.String())
	assert.Equal(t, "postgres://duewatch:pw@localhost:5432/duewatch", cfg.Database.URL.Unmask())
}

func TestSystemDestinations(t *testing.T) {
	a := AlertsConfig{Channel: "telegram", TelegramChatID: "ops", EmailTo: ""}
	dests := a.SystemDestinations()

	assert.Equal(t, "ops", dests[a.AlertChannel()])
	_, hasEmail := dests["email"]
	assert.False(t, hasEmail)
}
