package reminder

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	reClock    = regexp.MustCompile(`^(\d{1,2}):(\d{2})$`)
	reDayMonth = regexp.MustCompile(`^(\d{1,2})\.(\d{1,2})(?:\.(\d{4}))?$`)
	reISODate  = regexp.MustCompile(`^(\d{4})-(\d{2})-(\d{2})$`)
)

// A bare "DD.MM" date that lies further than this in the past means next year.
const yearRollover = 30 * 24 * time.Hour

// ParseTarget parses a user supplied start time, interpreted in loc:
//
//	HH:MM              next occurrence of that wall clock time
//	DD.MM HH:MM        this year (next year if long past)
//	DD.MM.YYYY HH:MM
//	YYYY-MM-DD HH:MM
//	+90m, +1h30m       relative to now
//	+01:30             relative hours:minutes
//
// The result is in UTC.
func ParseTarget(raw string, now time.Time, loc *time.Location) (time.Time, error) {
	t, n, err := ParseTargetTokens(strings.Fields(raw), now, loc)
	if err != nil {
		return time.Time{}, err
	}
	if n != len(strings.Fields(raw)) {
		return time.Time{}, fmt.Errorf("%w: unexpected trailing input in %q", ErrInvalidSchedule, raw)
	}
	return t, nil
}

// ParseTargetTokens parses a start time from the head of tokens and reports
// how many tokens it consumed.
func ParseTargetTokens(tokens []string, now time.Time, loc *time.Location) (time.Time, int, error) {
	if loc == nil {
		loc = time.UTC
	}
	if len(tokens) == 0 {
		return time.Time{}, 0, fmt.Errorf("%w: empty time", ErrInvalidSchedule)
	}
	first := strings.TrimSpace(tokens[0])

	if strings.HasPrefix(first, "+") {
		d, err := parseRelative(first[1:])
		if err != nil {
			return time.Time{}, 0, err
		}
		return now.Add(d).UTC().Truncate(time.Second), 1, nil
	}

	if h, m, ok := parseClock(first); ok {
		lnow := now.In(loc)
		t := time.Date(lnow.Year(), lnow.Month(), lnow.Day(), h, m, 0, 0, loc)
		if !t.After(lnow) {
			t = t.AddDate(0, 0, 1)
		}
		return t.UTC(), 1, nil
	}

	if len(tokens) < 2 {
		return time.Time{}, 0, fmt.Errorf("%w: unrecognized time %q (use HH:MM, DD.MM HH:MM or +90m)", ErrInvalidSchedule, first)
	}
	h, m, ok := parseClock(tokens[1])
	if !ok {
		return time.Time{}, 0, fmt.Errorf("%w: bad clock time %q", ErrInvalidSchedule, tokens[1])
	}

	if sub := reISODate.FindStringSubmatch(first); sub != nil {
		y, mo, d := atoi(sub[1]), atoi(sub[2]), atoi(sub[3])
		t, err := dateIn(y, mo, d, h, m, loc)
		return t, 2, err
	}
	if sub := reDayMonth.FindStringSubmatch(first); sub != nil {
		d, mo := atoi(sub[1]), atoi(sub[2])
		if sub[3] != "" {
			t, err := dateIn(atoi(sub[3]), mo, d, h, m, loc)
			return t, 2, err
		}
		y := now.In(loc).Year()
		t, err := dateIn(y, mo, d, h, m, loc)
		if err == nil && now.Sub(t) > yearRollover {
			t, err = dateIn(y+1, mo, d, h, m, loc)
		}
		return t, 2, err
	}
	return time.Time{}, 0, fmt.Errorf("%w: unrecognized date %q", ErrInvalidSchedule, first)
}

func parseRelative(s string) (time.Duration, error) {
	var d time.Duration
	if h, m, ok := parseHourMinute(s); ok {
		d = time.Duration(h)*time.Hour + time.Duration(m)*time.Minute
	} else {
		var err error
		d, err = time.ParseDuration(s)
		if err != nil {
			return 0, fmt.Errorf("%w: bad relative time %q", ErrInvalidSchedule, "+"+s)
		}
	}
	if d <= 0 {
		return 0, fmt.Errorf("%w: relative time must be positive", ErrInvalidSchedule)
	}
	return d, nil
}

// parseClock accepts a wall clock time 00:00..23:59.
func parseClock(s string) (int, int, bool) {
	h, m, ok := parseHourMinute(s)
	if !ok || h > 23 {
		return 0, 0, false
	}
	return h, m, true
}

func parseHourMinute(s string) (int, int, bool) {
	sub := reClock.FindStringSubmatch(strings.TrimSpace(s))
	if sub == nil {
		return 0, 0, false
	}
	h, m := atoi(sub[1]), atoi(sub[2])
	if m > 59 {
		return 0, 0, false
	}
	return h, m, true
}

// dateIn builds a local time and rejects dates time.Date would normalize
// (e.g. 31.02).
func dateIn(y, mo, d, h, m int, loc *time.Location) (time.Time, error) {
	t := time.Date(y, time.Month(mo), d, h, m, 0, 0, loc)
	if t.Year() != y || int(t.Month()) != mo || t.Day() != d {
		return time.Time{}, fmt.Errorf("%w: no such date %02d.%02d.%d", ErrInvalidSchedule, d, mo, y)
	}
	return t.UTC(), nil
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

// ParseAlerts parses lead times such as "10,60,300" or "10m 1h 24h". Empty
// input, "-" and "default" return nil, meaning the configured default.
func ParseAlerts(raw string) ([]int, error) {
	raw = strings.TrimSpace(raw)
	switch strings.ToLower(raw) {
	case "", "-", "default", "по умолчанию":
		return nil, nil
	}
	fields := strings.FieldsFunc(raw, func(r rune) bool { return r == ',' || r == ';' || r == ' ' })
	out := make([]int, 0, len(fields))
	for _, f := range fields {
		n, err := parseAlert(f)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	if len(out) == 0 {
		return nil, nil
	}
	return NormalizeAlerts(out), nil
}

func parseAlert(f string) (int, error) {
	if n, err := strconv.Atoi(f); err == nil {
		if n <= 0 {
			return 0, fmt.Errorf("%w: alert %q must be positive", ErrInvalidSchedule, f)
		}
		return n, nil
	}
	d, err := time.ParseDuration(f)
	if err != nil {
		return 0, fmt.Errorf("%w: bad alert %q", ErrInvalidSchedule, f)
	}
	if d < time.Minute || d%time.Minute != 0 {
		return 0, fmt.Errorf("%w: alert %q must be a whole number of minutes", ErrInvalidSchedule, f)
	}
	return int(d / time.Minute), nil
}
