package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// MaxAlertMinutes caps a single lead-time threshold at 30 days.
const MaxAlertMinutes = 30 * 24 * 60

// NotifierOrDefault returns the notifier section, or the runtime defaults when omitted.
func NotifierOrDefault(n *NotifierConfig) NotifierConfig {
	if n == nil {
		return NotifierConfig{
			Enabled:       true,
			Workers:       2,
			QueueSize:     256,
			RatePerSec:    20,
			RetryBase:     "500ms",
			RetryMaxDelay: "10s",
			HistorySize:   100,
		}
	}
	return *n
}

// Validate checks values that strict decoding cannot catch. It is used both at
// startup and as the hot-reload validator.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	var errs []error

	if strings.TrimSpace(cfg.Telegram.Token) == "" {
		errs = append(errs, fmt.Errorf("telegram.token is empty (and %s is not set)", EnvToken))
	}
	durs := map[string]string{
		"telegram.poll_timeout":    cfg.Telegram.PollTimeout,
		"telegram.command_timeout": cfg.Telegram.CommandTimeout,
		"telegram.wizard_timeout":  cfg.Telegram.WizardTimeout,
		"reminders.tick":           cfg.Reminders.Tick,
		"reminders.retention":      cfg.Reminders.Retention,
		"reminders.start_window":   cfg.Reminders.StartWindow,
		"reminders.long_horizon":   cfg.Reminders.LongHorizon,
	}
	for path, raw := range durs {
		if _, err := ParseDurationField(path, raw); err != nil {
			errs = append(errs, err)
		}
	}
	if d, err := ParseDurationField("reminders.tick", cfg.Reminders.Tick); err == nil && d > 0 && d < time.Second {
		errs = append(errs, errors.New("reminders.tick: must be at least 1s"))
	}
	for _, a := range cfg.Reminders.DefaultAlerts {
		if a <= 0 || a > MaxAlertMinutes {
			errs = append(errs, fmt.Errorf("reminders.default_alerts: %d out of range (1..%d)", a, MaxAlertMinutes))
		}
	}
	if tz := strings.TrimSpace(cfg.Reminders.DisplayTimezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			errs = append(errs, fmt.Errorf("reminders.display_timezone: %w", err))
		}
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Reminders.OnDuplicate)) {
	case "", "replace", "reject":
	default:
		errs = append(errs, fmt.Errorf("reminders.on_duplicate: unknown policy %q", cfg.Reminders.OnDuplicate))
	}

	n := NotifierOrDefault(cfg.Notifier)
	if n.Workers < 0 || n.QueueSize < 0 || n.RatePerSec < 0 || n.RetryMax < 0 {
		errs = append(errs, errors.New("notifier: negative values are not allowed"))
	}
	if _, err := ParseDurationField("notifier.retry_base", n.RetryBase); err != nil {
		errs = append(errs, err)
	}
	if _, err := ParseDurationField("notifier.retry_max_delay", n.RetryMaxDelay); err != nil {
		errs = append(errs, err)
	}

	if cfg.Storage != nil {
		switch strings.ToLower(strings.TrimSpace(cfg.Storage.Driver)) {
		case "", "none", "memory", "file", "sqlite", "sqlite3":
		default:
			errs = append(errs, fmt.Errorf("storage.driver: unknown driver %q", cfg.Storage.Driver))
		}
		if _, err := ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
