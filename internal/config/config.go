// Package config defines the engine's configuration, loaded once at process
// start and immutable thereafter. Values come from the OS environment, with
// a .env file as a development convenience. A missing required value or an
// invalid format fails startup immediately.
package config

import (
	"time"

	"duewatch/internal/types"
)

// SecretString aliases types.SecretString, the redacted secret type used for
// credentials so they never land in logs or JSON.
type SecretString = types.SecretString

// Config is the top-level configuration for the notification engine.
// Sub-components receive only the subsets they need.
type Config struct {
	Environment string `envconfig:"APP_ENV" default:"local" validate:"oneof=local dev staging prod"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`

	// Timezone is the operational zone for daily triggers and summary day
	// windows. Tenant daily times are interpreted in this zone.
	Timezone string `envconfig:"TIMEZONE" default:"UTC"`

	Server   ServerConfig
	Database DatabaseConfig
	Telegram TelegramConfig
	Email    EmailConfig
	Alerts   AlertsConfig
	Worker   WorkerConfig
	Metrics  MetricsConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            string        `envconfig:"PORT" default:"8080"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"15s"`
}

// DatabaseConfig holds connection and pool tuning parameters.
type DatabaseConfig struct {
	URL SecretString `envconfig:"DATABASE_URL" validate:"required"`

	MaxConns        int           `envconfig:"DB_MAX_CONNS" default:"10"`
	MinConns        int           `envconfig:"DB_MIN_CONNS" default:"2"`
	MaxConnLifetime time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
}

// TelegramConfig holds the bot credentials.
type TelegramConfig struct {
	BotToken SecretString `envconfig:"TELEGRAM_BOT_TOKEN" validate:"required"`
}

// EmailConfig holds the mail provider credentials and sender identity.
type EmailConfig struct {
	APIKey      SecretString `envconfig:"EMAIL_API_KEY" validate:"required"`
	BaseURL     string       `envconfig:"EMAIL_API_BASE_URL"`
	FromAddress string       `envconfig:"EMAIL_FROM_ADDRESS" validate:"required,email"`
	FromName    string       `envconfig:"EMAIL_FROM_NAME" default:"DueWatch"`
	SendTimeout time.Duration `envconfig:"EMAIL_SEND_TIMEOUT" default:"10s"`
}

// AlertsConfig holds the operator destinations for system alerts. At least
// the channel named in Channel must have a destination configured.
type AlertsConfig struct {
	// Channel is the delivery channel for system alerts.
	Channel string `envconfig:"ALERT_CHANNEL" default:"telegram" validate:"oneof=telegram email"`

	TelegramChatID string `envconfig:"ALERT_TELEGRAM_CHAT_ID"`
	EmailTo        string `envconfig:"ALERT_EMAIL_TO"`
}

// WorkerConfig holds delivery worker tuning.
type WorkerConfig struct {
	BatchSize   int           `envconfig:"WORKER_BATCH_SIZE" default:"50"`
	SendTimeout time.Duration `envconfig:"WORKER_SEND_TIMEOUT" default:"30s"`
	MaxRetries  int           `envconfig:"WORKER_MAX_RETRIES" default:"3"`
	Interval    time.Duration `envconfig:"WORKER_INTERVAL" default:"1m"`
}

// MetricsConfig holds CloudWatch settings. Metrics are disabled when
// Enabled is false, typically in local development.
type MetricsConfig struct {
	Enabled   bool   `envconfig:"METRICS_ENABLED" default:"false"`
	Namespace string `envconfig:"METRICS_NAMESPACE" default:"DueWatch/Engine"`
	Region    string `envconfig:"AWS_REGION" default:"us-east-1"`
}

// AlertChannel returns the configured system alert channel as a ChannelType.
func (c AlertsConfig) AlertChannel() types.ChannelType {
	return types.ChannelType(c.Channel)
}

// SystemDestinations maps each channel to its operator destination,
// omitting channels with no destination configured.
func (c AlertsConfig) SystemDestinations() map[types.ChannelType]string {
	dests := make(map[types.ChannelType]string)
	if c.TelegramChatID != "" {
		dests[types.ChannelTelegram] = c.TelegramChatID
	}
	if c.EmailTo != "" {
		dests[types.ChannelEmail] = c.EmailTo
	}
	return dests
}
