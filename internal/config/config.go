// Package config loads, defaults and validates the bot configuration.
package config

import (
	"time"

	"github.com/go-telegram/bot/models"
)

// Config is the full application configuration. Values come from the YAML
// file, then BOT_* environment variables (dots become underscores).
type Config struct {
	Logger    LoggerConfig    `mapstructure:"logger"`
	Telegram  TelegramConfig  `mapstructure:"telegram"`
	Gemini    GeminiConfig    `mapstructure:"gemini"`
	Persona   PersonaConfig   `mapstructure:"persona"`
	Dataset   DatasetConfig   `mapstructure:"dataset"`
	Ingestion IngestionConfig `mapstructure:"ingestion"`
	S3        S3Config        `mapstructure:"s3"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Messages  MessagesConfig  `mapstructure:"messages"`
}

type LoggerConfig struct {
	Level string `mapstructure:"level" validate:"oneof=debug info warn error"`
	JSON  bool   `mapstructure:"json"`
}

type TelegramConfig struct {
	Token       string `mapstructure:"token"         validate:"required"`
	AdminUserID int64  `mapstructure:"admin_user_id" validate:"required,gt=0"`

	// BotInfo is filled at startup from getMe.
	BotInfo *models.User `mapstructure:"-"`
}

type GeminiConfig struct {
	APIKey           string        `mapstructure:"api_key"            validate:"required"`
	BaseURL          string        `mapstructure:"base_url"           validate:"omitempty,url"`
	Model            string        `mapstructure:"model"              validate:"required"`
	Temperature      float32       `mapstructure:"temperature"        validate:"min=0,max=2"`
	TopP             float32       `mapstructure:"top_p"              validate:"min=0,max=1"`
	TopK             float32       `mapstructure:"top_k"              validate:"min=0"`
	MaxOutputTokens  int32         `mapstructure:"max_output_tokens"  validate:"gt=0"`
	ResponseMIMEType string        `mapstructure:"response_mime_type" validate:"required"`
	MaxRetries       int           `mapstructure:"max_retries"        validate:"min=0,max=10"`
	RetryDelay       time.Duration `mapstructure:"retry_delay"        validate:"min=100ms"`
	RequestTimeout   time.Duration `mapstructure:"request_timeout"    validate:"min=1s,max=10m"`
	// HistoryTokenBudget caps the estimated prompt size; 0 disables it.
	HistoryTokenBudget int `mapstructure:"history_token_budget" validate:"min=0"`
}

type PersonaConfig struct {
	// Path to a persona YAML file; empty selects the built-in persona.
	Path string `mapstructure:"path"`
}

type DatasetConfig struct {
	// Path to an .xlsx venue workbook; empty disables the dataset.
	Path            string `mapstructure:"path"`
	MaxRowsPerSheet int    `mapstructure:"max_rows_per_sheet" validate:"min=0"`
}

type IngestionConfig struct {
	Enabled         bool             `mapstructure:"enabled"`
	Provider        string           `mapstructure:"provider"          validate:"oneof=gemini s3"`
	PollInterval    time.Duration    `mapstructure:"poll_interval"     validate:"min=100ms"`
	Backoff         string           `mapstructure:"backoff"           validate:"oneof=constant exponential"`
	MaxPollInterval time.Duration    `mapstructure:"max_poll_interval" validate:"min=0"`
	Jitter          time.Duration    `mapstructure:"jitter"            validate:"min=0"`
	MaxWait         time.Duration    `mapstructure:"max_wait"          validate:"min=0"`
	NoTimeout       bool             `mapstructure:"no_timeout"`
	Artifacts       []ArtifactConfig `mapstructure:"artifacts"         validate:"dive"`
}

type ArtifactConfig struct {
	Path     string `mapstructure:"path"     validate:"required"`
	Kind     string `mapstructure:"kind"`
	Label    string `mapstructure:"label"`
	Optional bool   `mapstructure:"optional"`
}

type S3Config struct {
	Bucket          string        `mapstructure:"bucket"`
	Region          string        `mapstructure:"region"`
	Endpoint        string        `mapstructure:"endpoint"          validate:"omitempty,url"`
	Prefix          string        `mapstructure:"prefix"`
	AccessKeyID     string        `mapstructure:"access_key_id"`
	SecretAccessKey string        `mapstructure:"secret_access_key"`
	UsePathStyle    bool          `mapstructure:"use_path_style"`
	PresignTTL      time.Duration `mapstructure:"presign_ttl"       validate:"min=0"`
}

type DatabaseConfig struct {
	Path               string        `mapstructure:"path"                 validate:"required"`
	MaxHistoryMessages int           `mapstructure:"max_history_messages" validate:"min=0,max=1000"`
	HistoryRetention   time.Duration `mapstructure:"history_retention"    validate:"min=0"`
}

type SchedulerConfig struct {
	Tasks map[string]TaskConfig `mapstructure:"tasks" validate:"dive"`
}

type TaskConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Schedule string `mapstructure:"schedule"`
}

type HTTPConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr" validate:"required_if=Enabled true"`
}

type MessagesConfig struct {
	Welcome               string `mapstructure:"welcome"                  validate:"required"`
	Help                  string `mapstructure:"help"                     validate:"required"`
	WarmingUpMsg          string `mapstructure:"warming_up_msg"           validate:"required"`
	ErrorGeneralMsg       string `mapstructure:"error_general_msg"        validate:"required"`
	ErrorUnauthorizedMsg  string `mapstructure:"error_unauthorized_msg"   validate:"required"`
	EmptyReplyFallbackMsg string `mapstructure:"empty_reply_fallback_msg" validate:"required"`
	ResetConfirmMsg       string `mapstructure:"reset_confirm_msg"        validate:"required"`
	ResetErrorMsg         string `mapstructure:"reset_error_msg"          validate:"required"`
	ResetTimeoutMsg       string `mapstructure:"reset_timeout_msg"        validate:"required"`
	NoArtifactsMsg        string `mapstructure:"no_artifacts_msg"         validate:"required"`
	ArtifactsHeader       string `mapstructure:"artifacts_header"         validate:"required"`
	RefreshProgressMsg    string `mapstructure:"refresh_progress_msg"     validate:"required"`
	RefreshDoneMsg        string `mapstructure:"refresh_done_msg"         validate:"required"`
	RefreshErrorMsg       string `mapstructure:"refresh_error_msg"        validate:"required"`
}
