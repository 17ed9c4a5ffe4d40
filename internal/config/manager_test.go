package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDecodeYAMLStrict(t *testing.T) {
	t.Setenv(EnvToken, "")
	yml := `
telegram:
  token: "abc"
  owner_user_ids: [42]
  admin_usernames: ["MrWarminster"]
reminders:
  tick: 30s
  default_alerts: [10, 60]
  on_duplicate: reject
http:
  enabled: true
`
	cfg, err := Decode("bot.yaml", []byte(yml))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if cfg.Telegram.Token != "abc" || len(cfg.Telegram.OwnerUserIDs) != 1 || cfg.Telegram.OwnerUserIDs[0] != 42 {
		t.Fatalf("unexpected telegram section: %+v", cfg.Telegram)
	}
	if got := cfg.Reminders.DefaultAlerts; len(got) != 2 || got[1] != 60 {
		t.Fatalf("default_alerts = %v", got)
	}
	if err := Validate(cfg); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	if _, err := Decode("bot.yaml", []byte("telegram:\n  tokn: x\n")); err == nil {
		t.Fatal("expected unknown field error")
	}
	if _, err := Decode("bot.json", []byte(`{"telegram":{}} {}`)); err == nil {
		t.Fatal("expected trailing data error")
	}
}

func TestDecodeTokenFallsBackToEnv(t *testing.T) {
	t.Setenv(EnvToken, "from-env")
	cfg, err := Decode("bot.json", []byte(`{"telegram":{"token":""}}`))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if cfg.Telegram.Token != "from-env" {
		t.Fatalf("token = %q", cfg.Telegram.Token)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cfg := &Config{
		Telegram:  TelegramConfig{Token: "x"},
		Reminders: RemindersConfig{Tick: "fast", DefaultAlerts: []int{0}, OnDuplicate: "merge"},
		Storage:   &StorageConfig{Driver: "mongo"},
	}
	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"reminders.tick", "default_alerts", "on_duplicate", "storage.driver"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("error %q does not mention %s", err, want)
		}
	}
}

func TestParseDurationOrDefault(t *testing.T) {
	t.Parallel()
	d, err := ParseDurationOrDefault("x", "", 30*time.Second)
	if err != nil || d != 30*time.Second {
		t.Fatalf("got %v, %v", d, err)
	}
	if _, err := ParseDurationField("x", "-1s"); err == nil {
		t.Fatal("negative duration should fail")
	}
	if d, err := ParseDurationField("x", "2d"); err != nil || d != 48*time.Hour {
		t.Fatalf("2d = %v, %v", d, err)
	}
	if _, err := ParseDurationField("x", "xd"); err == nil {
		t.Fatal("bad day count should fail")
	}
}

func TestDecodeEmptyYAML(t *testing.T) {
	t.Setenv(EnvToken, "tok")
	cfg, err := Decode("bot.yml", []byte("# nothing yet\n"))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if cfg.Telegram.Token != "tok" {
		t.Fatalf("token = %q", cfg.Telegram.Token)
	}
}

func TestWatchPublishesChangedConfig(t *testing.T) {
	t.Setenv(EnvToken, "")
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, []byte(`{"telegram":{"token":"a"}}`), 0o644); err != nil {
		t.Fatal(err)
	}
	m := NewConfigManager(path)
	m.debounce = 20 * time.Millisecond
	if _, err := m.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	ch := m.Subscribe(1)
	defer m.Unsubscribe(ch)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = m.Watch(ctx) }()
	time.Sleep(100 * time.Millisecond)

	if err := os.WriteFile(path, []byte(`{"telegram":{"token":"b"}}`), 0o644); err != nil {
		t.Fatal(err)
	}
	select {
	case cfg := <-ch:
		if cfg.Telegram.Token != "b" {
			t.Fatalf("token = %q", cfg.Telegram.Token)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no config published")
	}
}

func TestSummarizeConfigChangeHidesToken(t *testing.T) {
	t.Parallel()
	oldCfg := &Config{Telegram: TelegramConfig{Token: "secret-1"}}
	newCfg := &Config{Telegram: TelegramConfig{Token: "secret-2"}, HTTP: HTTPConfig{Enabled: true}}
	changed, _ := SummarizeConfigChange(oldCfg, newCfg)
	if strings.Join(changed, ",") != "http,telegram" {
		t.Fatalf("changed = %v", changed)
	}
}
