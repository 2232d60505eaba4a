package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Load resolves the configuration from the environment.
//
// The loading sequence is:
//  1. Load a .env file via godotenv (non-fatal if absent).
//  2. Process envconfig struct tags into the Config struct.
//  3. Validate with go-playground/validator.
//  4. Cross-field checks that tags cannot express.
func Load() (*Config, error) {
	// Silently a no-op when no .env file exists; the OS environment always
	// wins over file values.
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("processing environment config: %w", err)
	}

	validate := validator.New()
	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	if _, err := time.LoadLocation(cfg.Timezone); err != nil {
		return nil, fmt.Errorf("invalid TIMEZONE %q: %w", cfg.Timezone, err)
	}

	// The system alert channel must have a destination, or every alert the
	// engine raises about itself would fail terminally.
	dests := cfg.Alerts.SystemDestinations()
	if _, ok := dests[cfg.Alerts.AlertChannel()]; !ok {
		return nil, fmt.Errorf("no destination configured for alert channel %q", cfg.Alerts.Channel)
	}

	return &cfg, nil
}

// Location returns the operational time zone. Load has already verified it
// parses, so this never fails after a successful Load.
func (c *Config) Location() (*time.Location, error) {
	return time.LoadLocation(c.Timezone)
}
