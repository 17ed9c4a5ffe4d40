package reminder

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"remindbot/internal/eventbus"
	"remindbot/internal/transport"
	"remindbot/pkg/logx"
)

const (
	MaxNameRunes    = 64
	MaxAlertMinutes = 30 * 24 * 60
)

type DuplicatePolicy string

const (
	DuplicateReplace DuplicatePolicy = "replace"
	DuplicateReject  DuplicatePolicy = "reject"
)

// CreateRequest carries the fields of a new event. Participants should already
// be flattened (group names resolved to members).
type CreateRequest struct {
	Name         string
	Target       time.Time
	Destination  transport.ChatTarget
	Participants []string
	// Alerts nil or empty means the configured default.
	Alerts    []int
	CreatedBy int64
}

// Service is the facade the command layer talks to.
type Service struct {
	store *Store
	clock Clock
	bus   eventbus.Bus
	log   logx.Logger

	mu            sync.RWMutex
	defaultAlerts []int
	policy        DuplicatePolicy
}

type ServiceOptions struct {
	Clock         Clock
	Bus           eventbus.Bus
	Log           logx.Logger
	DefaultAlerts []int
	OnDuplicate   DuplicatePolicy
}

func NewService(store *Store, opt ServiceOptions) *Service {
	s := &Service{store: store, clock: opt.Clock, bus: opt.Bus, log: opt.Log}
	if s.clock == nil {
		s.clock = SystemClock()
	}
	if s.log.IsZero() {
		s.log = logx.Nop()
	}
	s.log = s.log.With(logx.String("comp", "reminder.service"))
	s.SetDefaults(opt.DefaultAlerts, opt.OnDuplicate)
	return s
}

// SetDefaults swaps the default alert set and duplicate policy (hot reload).
func (s *Service) SetDefaults(alerts []int, policy DuplicatePolicy) {
	alerts = NormalizeAlerts(alerts)
	if len(alerts) == 0 {
		alerts = slices.Clone(DefaultAlerts)
	}
	policy = DuplicatePolicy(strings.ToLower(strings.TrimSpace(string(policy))))
	if policy != DuplicateReject {
		policy = DuplicateReplace
	}
	s.mu.Lock()
	s.defaultAlerts = alerts
	s.policy = policy
	s.mu.Unlock()
}

func (s *Service) DefaultAlerts() []int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.defaultAlerts)
}

func (s *Service) Now() time.Time { return s.clock.Now() }

func (s *Service) CreateEvent(ctx context.Context, req CreateRequest) (Event, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return Event{}, fmt.Errorf("%w: event name is empty", ErrInvalidSchedule)
	}
	if utf8.RuneCountInString(name) > MaxNameRunes {
		return Event{}, fmt.Errorf("%w: event name longer than %d characters", ErrInvalidSchedule, MaxNameRunes)
	}
	if req.Target.IsZero() {
		return Event{}, fmt.Errorf("%w: target time is missing", ErrInvalidSchedule)
	}
	for _, a := range req.Alerts {
		if a <= 0 || a > MaxAlertMinutes {
			return Event{}, fmt.Errorf("%w: alert %d minutes out of range", ErrInvalidSchedule, a)
		}
	}

	s.mu.RLock()
	alerts := req.Alerts
	if len(alerts) == 0 {
		alerts = s.defaultAlerts
	}
	policy := s.policy
	s.mu.RUnlock()

	ev := Event{
		ID:           uuid.NewString(),
		Name:         name,
		Target:       req.Target.UTC(),
		Destination:  req.Destination,
		Participants: compactParticipants(req.Participants),
		Alerts:       NormalizeAlerts(alerts),
		CreatedAt:    s.clock.Now().UTC(),
		CreatedBy:    req.CreatedBy,
	}

	var replaced bool
	if policy == DuplicateReject {
		if !s.store.CreateNew(ev) {
			return Event{}, fmt.Errorf("%w: %q", ErrEventExists, name)
		}
	} else {
		replaced = s.store.Create(ev)
	}

	typ := eventbus.TypeReminderCreated
	if replaced {
		typ = eventbus.TypeReminderReplaced
	}
	s.log.Info("event created",
		logx.String("event", ev.Name), logx.String("id", ev.ID),
		logx.Time("target", ev.Target), logx.Bool("replaced", replaced),
	)
	s.publish(typ, map[string]any{
		"name": ev.Name, "id": ev.ID, "target": ev.Target,
		"chat_id": ev.Destination.ChatID, "thread_id": ev.Destination.ThreadID, "actor_id": ev.CreatedBy,
	})

	stored, _ := s.store.Get(ev.Name)
	return stored, nil
}

// CancelEvent removes the named event. An unknown or blank name reports false
// without an error.
func (s *Service) CancelEvent(ctx context.Context, name string) (bool, error) {
	if strings.TrimSpace(name) == "" {
		return false, nil
	}
	existed := s.store.Cancel(name)
	if existed {
		s.log.Info("event cancelled", logx.String("event", name))
		s.publish(eventbus.TypeReminderCancelled, map[string]any{"name": name})
	}
	return existed, nil
}

// TimeRemaining returns the time until the event starts. A negative duration
// means the event already started and is waiting to be reaped.
func (s *Service) TimeRemaining(name string) (time.Duration, error) {
	ev, ok := s.store.Get(name)
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrNotFound, strings.TrimSpace(name))
	}
	return ev.Target.Sub(s.clock.Now()), nil
}

func (s *Service) GetEvent(name string) (Event, error) {
	ev, ok := s.store.Get(name)
	if !ok {
		return Event{}, fmt.Errorf("%w: %q", ErrNotFound, strings.TrimSpace(name))
	}
	return ev, nil
}

func (s *Service) ListEvents() []Event { return s.store.List() }

func (s *Service) ClearEvents(ctx context.Context) int {
	n := s.store.Clear()
	s.log.Info("events cleared", logx.Int("count", n))
	s.publish(eventbus.TypeReminderCleared, map[string]any{"count": n})
	return n
}

func (s *Service) publish(typ string, data map[string]any) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(eventbus.Event{Type: typ, Data: data})
}

// compactParticipants trims tags and drops empties and duplicates, keeping order.
func compactParticipants(in []string) []string {
	out := make([]string, 0, len(in))
	for _, p := range in {
		p = strings.TrimSpace(p)
		if p != "" && !slices.Contains(out, p) {
			out = append(out, p)
		}
	}
	return out
}
