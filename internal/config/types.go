package config

// Config is the root of the bot configuration file (JSON or YAML).
type Config struct {
	Telegram  TelegramConfig  `json:"telegram"`
	Logging   LoggingConfig   `json:"logging"`
	Reminders RemindersConfig `json:"reminders"`

	// Notifier defaults to enabled when the section is omitted.
	Notifier *NotifierConfig `json:"notifier,omitempty"`
	Storage  *StorageConfig  `json:"storage,omitempty"`
	HTTP     HTTPConfig      `json:"http"`
}

type TelegramConfig struct {
	// Token falls back to the BOT_TOKEN environment variable when empty.
	Token          string   `json:"token"`
	OwnerUserIDs   []int64  `json:"owner_user_ids"`
	AdminUsernames []string `json:"admin_usernames,omitempty"`
	GroupLog       string   `json:"group_log"`
	// PollTimeout is a Go duration string (e.g. "10s", "2m").
	PollTimeout string `json:"poll_timeout"`
	// CommandTimeout bounds a single command handler. Default "15s".
	CommandTimeout string `json:"command_timeout,omitempty"`
	// WizardTimeout expires an idle creation wizard. Default "5m".
	WizardTimeout string `json:"wizard_timeout,omitempty"`
}

type LoggingConfig struct {
	Level    string          `json:"level"`
	Console  bool            `json:"console"`
	File     LoggingFile     `json:"file"`
	Telegram LoggingTelegram `json:"telegram"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	ThreadID   int    `json:"thread_id"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// RemindersConfig tunes the reminder scheduler. Durations are Go duration strings.
//
// Defaults (when fields are omitted/zero):
//   - tick: "30s"
//   - retention: "2h"
//   - start_window: "1m"
//   - long_horizon: "24h" ("0s" disables the days notice)
//   - default_alerts: [10, 60, 300, 720, 1440]
//   - display_timezone: "Europe/Moscow", display_label: "МСК"
//   - on_duplicate: "replace" (or "reject")
type RemindersConfig struct {
	Tick            string `json:"tick,omitempty"`
	Retention       string `json:"retention,omitempty"`
	StartWindow     string `json:"start_window,omitempty"`
	LongHorizon     string `json:"long_horizon,omitempty"`
	DefaultAlerts   []int  `json:"default_alerts,omitempty"`
	DisplayTimezone string `json:"display_timezone,omitempty"`
	DisplayLabel    string `json:"display_label,omitempty"`
	OnDuplicate     string `json:"on_duplicate,omitempty"`
}

// NotifierConfig controls the async notification pipeline.
type NotifierConfig struct {
	Enabled       bool   `json:"enabled"`
	Workers       int    `json:"workers"`
	QueueSize     int    `json:"queue_size"`
	RatePerSec    int    `json:"rate_per_sec"`
	RetryMax      int    `json:"retry_max"`
	RetryBase     string `json:"retry_base"`
	RetryMaxDelay string `json:"retry_max_delay"`
	HistorySize   int    `json:"history_size,omitempty"`
}

// StorageConfig controls persistence of group rosters and the audit log.
//
// Example:
//
//	"storage": { "driver": "file", "path": "./remindbot_store" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

// HTTPConfig controls the keep-alive endpoint. An empty Addr falls back to
// ":$PORT" and then ":8080".
type HTTPConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty"`
}
