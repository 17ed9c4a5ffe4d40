package app

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata" // display zones resolve on hosts without zoneinfo

	"remindbot/internal/bot"
	"remindbot/internal/config"
	"remindbot/internal/keepalive"
	"remindbot/internal/notifier"
	"remindbot/internal/reminder"
	"remindbot/internal/storage"
	"remindbot/pkg/logx"
)

const (
	defaultZone  = "Europe/Moscow"
	defaultLabel = "МСК"
)

// displayZone resolves the zone user-facing times are parsed and printed in.
func displayZone(cfg *config.Config) (*time.Location, string, error) {
	name := strings.TrimSpace(cfg.Reminders.DisplayTimezone)
	label := strings.TrimSpace(cfg.Reminders.DisplayLabel)
	if name == "" {
		name = defaultZone
		if label == "" {
			label = defaultLabel
		}
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, "", fmt.Errorf("reminders.display_timezone: %w", err)
	}
	return loc, label, nil
}

func mapSchedulerConfig(cfg *config.Config) (reminder.SchedulerConfig, error) {
	r := cfg.Reminders
	tick, err := config.ParseDurationField("reminders.tick", r.Tick)
	if err != nil {
		return reminder.SchedulerConfig{}, err
	}
	retention, err := config.ParseDurationField("reminders.retention", r.Retention)
	if err != nil {
		return reminder.SchedulerConfig{}, err
	}
	window, err := config.ParseDurationField("reminders.start_window", r.StartWindow)
	if err != nil {
		return reminder.SchedulerConfig{}, err
	}
	horizon, err := config.ParseDurationField("reminders.long_horizon", r.LongHorizon)
	if err != nil {
		return reminder.SchedulerConfig{}, err
	}
	// An explicit "0s" switches the days notice off; omitted keeps the default.
	if strings.TrimSpace(r.LongHorizon) != "" && horizon == 0 {
		horizon = -1
	}
	loc, label, err := displayZone(cfg)
	if err != nil {
		return reminder.SchedulerConfig{}, err
	}
	return reminder.SchedulerConfig{
		Tick:        tick,
		Retention:   retention,
		StartWindow: window,
		LongHorizon: horizon,
		Location:    loc,
		ZoneLabel:   label,
	}.Normalize(), nil
}

func mapBotConfig(cfg *config.Config) (bot.Config, error) {
	cmdTimeout, err := config.ParseDurationOrDefault("telegram.command_timeout", cfg.Telegram.CommandTimeout, 15*time.Second)
	if err != nil {
		return bot.Config{}, err
	}
	wizTimeout, err := config.ParseDurationOrDefault("telegram.wizard_timeout", cfg.Telegram.WizardTimeout, 5*time.Minute)
	if err != nil {
		return bot.Config{}, err
	}
	loc, label, err := displayZone(cfg)
	if err != nil {
		return bot.Config{}, err
	}
	return bot.Config{
		OwnerIDs:       cfg.Telegram.OwnerUserIDs,
		AdminUsernames: cfg.Telegram.AdminUsernames,
		CommandTimeout: cmdTimeout,
		WizardTimeout:  wizTimeout,
		Location:       loc,
		ZoneLabel:      label,
	}, nil
}

func mapNotifierConfig(cfg *config.Config) (notifier.Config, error) {
	n := config.NotifierOrDefault(cfg.Notifier)
	base, err := config.ParseDurationOrDefault("notifier.retry_base", n.RetryBase, 500*time.Millisecond)
	if err != nil {
		return notifier.Config{}, err
	}
	maxDelay, err := config.ParseDurationOrDefault("notifier.retry_max_delay", n.RetryMaxDelay, 10*time.Second)
	if err != nil {
		return notifier.Config{}, err
	}
	if n.Workers < 0 || n.QueueSize < 0 || n.RatePerSec < 0 || n.RetryMax < 0 {
		return notifier.Config{}, fmt.Errorf("notifier: negative values are not allowed")
	}
	return notifier.Config{
		Enabled:       n.Enabled,
		Workers:       n.Workers,
		QueueSize:     n.QueueSize,
		RatePerSec:    n.RatePerSec,
		RetryMax:      n.RetryMax,
		RetryBase:     base,
		RetryMaxDelay: maxDelay,
		HistorySize:   n.HistorySize,
	}, nil
}

// mapStorageConfig returns the store settings; a missing section means the
// in-memory store.
func mapStorageConfig(cfg *config.Config) (storage.Config, error) {
	if cfg.Storage == nil {
		return storage.Config{Driver: "memory"}, nil
	}
	busy, err := config.ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout)
	if err != nil {
		return storage.Config{}, err
	}
	return storage.Config{
		Driver:      strings.ToLower(strings.TrimSpace(cfg.Storage.Driver)),
		Path:        strings.TrimSpace(cfg.Storage.Path),
		BusyTimeout: busy,
	}, nil
}

func mapLogConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Telegram: logx.TelegramConfig{
			Enabled:    cfg.Logging.Telegram.Enabled,
			ThreadID:   cfg.Logging.Telegram.ThreadID,
			MinLevel:   cfg.Logging.Telegram.MinLevel,
			RatePerSec: cfg.Logging.Telegram.RatePerSec,
		},
	}
}

// logChat parses telegram.group_log; 0 clears the log target.
func logChat(cfg *config.Config) int64 {
	s := strings.TrimSpace(cfg.Telegram.GroupLog)
	if s == "" {
		return 0
	}
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return id
}

func httpAddr(cfg *config.Config) string {
	return keepalive.ResolveAddr(cfg.HTTP.Addr)
}
