package config

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// ErrValidation wraps every configuration validation failure.
var ErrValidation = errors.New("invalid configuration")

// Validate checks struct tags and the rules that span several sections.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("%w: %w", ErrValidation, err)
	}

	if c.Ingestion.Enabled && len(c.Ingestion.Artifacts) == 0 {
		return fmt.Errorf("%w: ingestion is enabled but no artifacts are configured", ErrValidation)
	}
	if c.Ingestion.Enabled && c.Ingestion.Provider == "s3" && c.S3.Bucket == "" {
		return fmt.Errorf("%w: s3.bucket is required for the s3 ingestion provider", ErrValidation)
	}
	if c.Ingestion.Backoff == "exponential" && c.Ingestion.MaxPollInterval > 0 &&
		c.Ingestion.MaxPollInterval < c.Ingestion.PollInterval {
		return fmt.Errorf("%w: ingestion.max_poll_interval (%s) is shorter than ingestion.poll_interval (%s)",
			ErrValidation, c.Ingestion.MaxPollInterval, c.Ingestion.PollInterval)
	}

	if c.Ingestion.Jitter > 0 && c.Ingestion.Jitter >= c.Ingestion.PollInterval {
		return fmt.Errorf("%w: ingestion.jitter (%s) must be shorter than ingestion.poll_interval (%s)",
			ErrValidation, c.Ingestion.Jitter, c.Ingestion.PollInterval)
	}

	return nil
}

// IsAdmin reports whether userID is the configured administrator.
func (c *Config) IsAdmin(userID int64) bool {
	return userID != 0 && userID == c.Telegram.AdminUserID
}
