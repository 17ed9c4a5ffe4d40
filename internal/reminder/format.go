package reminder

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// Formatter renders user-facing messages. Times are shown in Location and
// suffixed with ZoneLabel; the stored instants stay in UTC.
type Formatter struct {
	Location  *time.Location
	ZoneLabel string
}

func (f Formatter) loc() *time.Location {
	if f.Location == nil {
		return time.UTC
	}
	return f.Location
}

func (f Formatter) clock(t time.Time) string {
	s := t.In(f.loc()).Format("15:04")
	if f.ZoneLabel != "" {
		s += " " + f.ZoneLabel
	}
	return s
}

// Stamp renders an instant as "02.01 15:04 МСК" (the year is added when it is
// not the current one).
func (f Formatter) Stamp(t, now time.Time) string {
	lt := t.In(f.loc())
	layout := "02.01 15:04"
	if lt.Year() != now.In(f.loc()).Year() {
		layout = "02.01.2006 15:04"
	}
	s := lt.Format(layout)
	if f.ZoneLabel != "" {
		s += " " + f.ZoneLabel
	}
	return s
}

type unit uint8

const (
	unitMinutes unit = iota
	unitHours
	unitDays
)

// magnitude picks the display unit for a remaining duration: days and hours
// are rounded, minutes truncated and clamped at zero.
func magnitude(delta time.Duration) (int, unit) {
	mins := delta.Minutes()
	switch {
	case mins >= 24*60:
		return int(math.Round(mins / (24 * 60))), unitDays
	case mins >= 60:
		return int(math.Round(mins / 60)), unitHours
	case mins <= 0:
		return 0, unitMinutes
	default:
		return int(mins), unitMinutes
	}
}

// Threshold renders a lead-time reminder for ev, delta before its target.
func (f Formatter) Threshold(ev Event, delta time.Duration) string {
	n, u := magnitude(delta)
	var msg string
	switch u {
	case unitDays:
		return f.Days(ev, delta)
	case unitHours:
		msg = fmt.Sprintf("⚔️ До '%s' осталось %d %s!", ev.Name, n, plural(n, "час", "часа", "часов"))
	default:
		msg = fmt.Sprintf("⚔️ До '%s' осталось %d %s!", ev.Name, n, plural(n, "минута", "минуты", "минут"))
	}
	return msg + participantsSuffix(ev.Participants)
}

// Days renders the long-horizon "starts in N days" notice.
func (f Formatter) Days(ev Event, delta time.Duration) string {
	n := int(math.Round(delta.Hours() / 24))
	msg := fmt.Sprintf("⚔️ Событие '%s' стартует через %d %s в %s!",
		ev.Name, n, plural(n, "день", "дня", "дней"), f.clock(ev.Target))
	return msg + participantsSuffix(ev.Participants)
}

func (f Formatter) Start(ev Event) string {
	who := ""
	if len(ev.Participants) > 0 {
		who = " " + strings.Join(ev.Participants, " ")
	}
	return fmt.Sprintf("🔥 '%s' НАЧАЛСЯ!%s Аминь! (Время: %s)", ev.Name, who, f.clock(ev.Target))
}

// Remaining renders a time-remaining answer such as "1 д 2 ч 5 мин".
func Remaining(d time.Duration) string {
	if d <= 0 {
		return "уже начался"
	}
	total := int(d.Round(time.Minute).Minutes())
	if total == 0 {
		return "меньше минуты"
	}
	days, hours, mins := total/(24*60), total/60%24, total%60
	parts := make([]string, 0, 3)
	if days > 0 {
		parts = append(parts, fmt.Sprintf("%d д", days))
	}
	if hours > 0 {
		parts = append(parts, fmt.Sprintf("%d ч", hours))
	}
	if mins > 0 {
		parts = append(parts, fmt.Sprintf("%d мин", mins))
	}
	return strings.Join(parts, " ")
}

// AlertsLabel renders thresholds as "1д 12ч 5ч 1ч 10м".
func AlertsLabel(alerts []int) string {
	parts := make([]string, 0, len(alerts))
	for _, a := range alerts {
		switch {
		case a%(24*60) == 0:
			parts = append(parts, fmt.Sprintf("%dд", a/(24*60)))
		case a%60 == 0:
			parts = append(parts, fmt.Sprintf("%dч", a/60))
		default:
			parts = append(parts, fmt.Sprintf("%dм", a))
		}
	}
	return strings.Join(parts, " ")
}

func participantsSuffix(p []string) string {
	if len(p) == 0 {
		return ""
	}
	return " " + strings.Join(p, " ")
}

// plural picks the Russian noun form for n.
func plural(n int, one, few, many string) string {
	if n < 0 {
		n = -n
	}
	switch {
	case n%10 == 1 && n%100 != 11:
		return one
	case n%10 >= 2 && n%10 <= 4 && (n%100 < 12 || n%100 > 14):
		return few
	default:
		return many
	}
}
