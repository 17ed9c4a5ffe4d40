package reminder

import (
	"errors"
	"reflect"
	"testing"
	"time"
)

func TestParseTarget(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 3, 10, 18, 0, 0, 0, time.UTC) // 21:00 MSK

	cases := []struct {
		in   string
		want time.Time
	}{
		{"22:30", time.Date(2026, 3, 10, 19, 30, 0, 0, time.UTC)},
		{"20:00", time.Date(2026, 3, 11, 17, 0, 0, 0, time.UTC)},
		{"21:00", time.Date(2026, 3, 11, 18, 0, 0, 0, time.UTC)},
		{"15.03 19:00", time.Date(2026, 3, 15, 16, 0, 0, 0, time.UTC)},
		{"5.3 09:05", time.Date(2026, 3, 5, 6, 5, 0, 0, time.UTC)},
		{"01.01 10:00", time.Date(2027, 1, 1, 7, 0, 0, 0, time.UTC)},
		{"15.03.2027 19:00", time.Date(2027, 3, 15, 16, 0, 0, 0, time.UTC)},
		{"2026-04-01 09:15", time.Date(2026, 4, 1, 6, 15, 0, 0, time.UTC)},
		{"+90m", time.Date(2026, 3, 10, 19, 30, 0, 0, time.UTC)},
		{"+1h30m", time.Date(2026, 3, 10, 19, 30, 0, 0, time.UTC)},
		{"+01:30", time.Date(2026, 3, 10, 19, 30, 0, 0, time.UTC)},
	}
	for _, tc := range cases {
		got, err := ParseTarget(tc.in, now, msk)
		if err != nil {
			t.Fatalf("ParseTarget(%q): %v", tc.in, err)
		}
		if !got.Equal(tc.want) {
			t.Fatalf("ParseTarget(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestParseTargetErrors(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 3, 10, 18, 0, 0, 0, time.UTC)
	for _, in := range []string{"", "25:00", "12:60", "31.02 10:00", "tomorrow", "+0m", "+abc", "15.03", "15.03 25:00", "22:30 extra"} {
		if _, err := ParseTarget(in, now, msk); !errors.Is(err, ErrInvalidSchedule) {
			t.Fatalf("ParseTarget(%q) err = %v, want ErrInvalidSchedule", in, err)
		}
	}
}

func TestParseTargetTokensConsumed(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 3, 10, 18, 0, 0, 0, time.UTC)
	_, n, err := ParseTargetTokens([]string{"15.03", "19:00", "@a"}, now, msk)
	if err != nil || n != 2 {
		t.Fatalf("consumed %d, err %v", n, err)
	}
	_, n, err = ParseTargetTokens([]string{"19:00", "@a"}, now, msk)
	if err != nil || n != 1 {
		t.Fatalf("consumed %d, err %v", n, err)
	}
}

func TestParseAlerts(t *testing.T) {
	t.Parallel()
	cases := map[string][]int{
		"10,60":      {60, 10},
		"10m 1h 24h": {1440, 60, 10},
		"5;5;15":     {15, 5},
		"":           nil,
		"-":          nil,
		"Default":    nil,
	}
	for in, want := range cases {
		got, err := ParseAlerts(in)
		if err != nil {
			t.Fatalf("ParseAlerts(%q): %v", in, err)
		}
		if !reflect.DeepEqual(got, want) {
			t.Fatalf("ParseAlerts(%q) = %v, want %v", in, got, want)
		}
	}
	for _, in := range []string{"0", "-5", "90s", "abc", "1h30s"} {
		if _, err := ParseAlerts(in); !errors.Is(err, ErrInvalidSchedule) {
			t.Fatalf("ParseAlerts(%q) err = %v", in, err)
		}
	}
}

func TestFormatHelpers(t *testing.T) {
	t.Parallel()
	for n, want := range map[int]string{1: "день", 2: "дня", 5: "дней", 11: "дней", 12: "дней", 21: "день", 22: "дня", 0: "дней"} {
		if got := plural(n, "день", "дня", "дней"); got != want {
			t.Fatalf("plural(%d) = %s, want %s", n, got, want)
		}
	}
	if got := Remaining(90 * time.Minute); got != "1 ч 30 мин" {
		t.Fatalf("Remaining = %q", got)
	}
	if got := Remaining(26*time.Hour + 5*time.Minute); got != "1 д 2 ч 5 мин" {
		t.Fatalf("Remaining = %q", got)
	}
	if got := Remaining(-time.Second); got != "уже начался" {
		t.Fatalf("Remaining = %q", got)
	}
	if got := AlertsLabel(DefaultAlerts); got != "10м 1ч 5ч 12ч 1д" {
		t.Fatalf("AlertsLabel = %q", got)
	}
	n, u := magnitude(89*time.Minute + 59*time.Second)
	if n != 1 || u != unitHours {
		t.Fatalf("magnitude = %d %v", n, u)
	}
	n, u = magnitude(59*time.Minute + 59*time.Second)
	if n != 59 || u != unitMinutes {
		t.Fatalf("magnitude = %d %v", n, u)
	}
}
