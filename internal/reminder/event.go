package reminder

import (
	"slices"
	"strconv"
	"strings"
	"time"

	"remindbot/internal/transport"
)

// DefaultAlerts are the lead times, in minutes, used when a caller supplies none.
var DefaultAlerts = []int{10, 60, 300, 720, 1440}

// Event is a named occurrence with a target time and lead-time thresholds.
// Values returned by the Store are detached copies.
type Event struct {
	ID           string
	Name         string
	Target       time.Time
	Destination  transport.ChatTarget
	Participants []string
	// Alerts are positive minute thresholds, unique and sorted coarsest first.
	Alerts    []int
	CreatedAt time.Time
	CreatedBy int64

	state firedState
}

// firedState records dispatched markers. Markers are only ever added.
type firedState struct {
	thresholds  map[int]bool
	start       bool
	longHorizon bool
}

// Key is the normalized name events are unique by.
func (e Event) Key() string { return NormalizeName(e.Name) }

func NormalizeName(name string) string { return strings.ToLower(strings.TrimSpace(name)) }

// Fired lists the markers dispatched so far: coarsest threshold first, then
// "days" and "start".
func (e Event) Fired() []Marker {
	out := make([]Marker, 0, len(e.state.thresholds)+2)
	for _, a := range e.Alerts {
		if e.state.thresholds[a] {
			out = append(out, Marker{Kind: MarkerThreshold, Minutes: a})
		}
	}
	if e.state.longHorizon {
		out = append(out, Marker{Kind: MarkerDays})
	}
	if e.state.start {
		out = append(out, Marker{Kind: MarkerStart})
	}
	return out
}

func (e Event) clone() Event {
	cp := e
	cp.Participants = slices.Clone(e.Participants)
	cp.Alerts = slices.Clone(e.Alerts)
	cp.state.thresholds = make(map[int]bool, len(e.state.thresholds))
	for k, v := range e.state.thresholds {
		cp.state.thresholds[k] = v
	}
	return cp
}

type MarkerKind uint8

const (
	MarkerThreshold MarkerKind = iota + 1
	MarkerDays
	MarkerStart
)

// Marker identifies one notification of an event.
type Marker struct {
	Kind    MarkerKind
	Minutes int // MarkerThreshold only
}

func (m Marker) String() string {
	switch m.Kind {
	case MarkerThreshold:
		return strconv.Itoa(m.Minutes) + "m"
	case MarkerDays:
		return "days"
	case MarkerStart:
		return "start"
	default:
		return "unknown"
	}
}

// NormalizeAlerts drops non-positive values and duplicates and sorts
// the rest in descending order.
func NormalizeAlerts(in []int) []int {
	out := make([]int, 0, len(in))
	for _, a := range in {
		if a > 0 && !slices.Contains(out, a) {
			out = append(out, a)
		}
	}
	slices.SortFunc(out, func(a, b int) int { return b - a })
	return out
}
