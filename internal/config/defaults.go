package config

import (
	"time"

	"github.com/spf13/viper"
)

const (
	DefaultModel            = "gemini-1.5-flash"
	DefaultTemperature      = 1.0
	DefaultTopP             = 0.95
	DefaultTopK             = 64
	DefaultMaxOutputTokens  = 8192
	DefaultResponseMIMEType = "text/plain"

	DefaultPollInterval = 10 * time.Second
	DefaultMaxWait      = 10 * time.Minute
)

var defaults = map[string]any{
	"logger.level": "info",
	"logger.json":  false,

	"telegram.admin_user_id": 0,

	"gemini.base_url":           "",
	"gemini.model":              DefaultModel,
	"gemini.temperature":        DefaultTemperature,
	"gemini.top_p":              DefaultTopP,
	"gemini.top_k":              DefaultTopK,
	"gemini.max_output_tokens":  DefaultMaxOutputTokens,
	"gemini.response_mime_type": DefaultResponseMIMEType,
	"gemini.max_retries":        3,
	"gemini.retry_delay":        2 * time.Second,
	"gemini.request_timeout":    2 * time.Minute,

	"gemini.history_token_budget": 0,

	"persona.path": "",

	"dataset.path":               "",
	"dataset.max_rows_per_sheet": 40,

	"ingestion.enabled":           false,
	"ingestion.provider":          "gemini",
	"ingestion.poll_interval":     DefaultPollInterval,
	"ingestion.backoff":           "constant",
	"ingestion.max_poll_interval": time.Duration(0),
	"ingestion.jitter":            time.Duration(0),
	"ingestion.max_wait":          DefaultMaxWait,
	"ingestion.no_timeout":        false,

	"s3.bucket":            "",
	"s3.region":            "us-east-1",
	"s3.endpoint":          "",
	"s3.prefix":            "nightguide",
	"s3.access_key_id":     "",
	"s3.secret_access_key": "",
	"s3.use_path_style":    false,
	"s3.presign_ttl":       24 * time.Hour,

	"database.path":                 "storage.db",
	"database.max_history_messages": 30,
	"database.history_retention":    30 * 24 * time.Hour,

	"scheduler.tasks.sql_maintenance.enabled":   true,
	"scheduler.tasks.sql_maintenance.schedule":  "0 0 4 * * *",
	"scheduler.tasks.history_cleanup.enabled":   true,
	"scheduler.tasks.history_cleanup.schedule":  "0 30 4 * * *",
	"scheduler.tasks.artifact_refresh.enabled":  true,
	"scheduler.tasks.artifact_refresh.schedule": "0 0 */12 * * *",

	"http.enabled": true,
	"http.addr":    ":8080",

	"messages.welcome":                  "🌙 Hi! I'm @botname, your guide to the city's nightlife. Tell me where you are and what you're in the mood for.",
	"messages.help":                     "Just send me a message and I'll suggest bars, clubs and late-night spots.\n\n/reset clears our conversation.\n/help shows this message.",
	"messages.warming_up_msg":           "⏳ I'm still reading up on tonight's venues. Please try again in a minute.",
	"messages.error_general_msg":        "❌ Something went wrong. Please try again later.",
	"messages.error_unauthorized_msg":   "🚫 You are not authorized to use this command.",
	"messages.empty_reply_fallback_msg": "I don't have a suggestion right now. Try asking in a different way.",
	"messages.reset_confirm_msg":        "🔄 Our conversation has been cleared.",
	"messages.reset_error_msg":          "❌ Could not clear the conversation. Please try again later.",
	"messages.reset_timeout_msg":        "⏱️ Clearing the conversation timed out. Please try again.",
	"messages.no_artifacts_msg":         "No reference documents are loaded.",
	"messages.artifacts_header":         "Reference documents:",
	"messages.refresh_progress_msg":     "🔄 Re-ingesting reference documents...",
	"messages.refresh_done_msg":         "✅ Reference documents refreshed.",
	"messages.refresh_error_msg":        "❌ Refresh failed, the previous documents stay in use.",
}

func setDefaults(v *viper.Viper) {
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
}
