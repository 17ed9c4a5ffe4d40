package reminder

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"remindbot/internal/eventbus"
	"remindbot/internal/transport"
	"remindbot/pkg/logx"
)

// Sink delivers a rendered notification to a destination.
type Sink interface {
	Send(ctx context.Context, to transport.ChatTarget, text string) error
}

// SchedulerConfig holds the scheduler tunables. Zero values take defaults
// through Normalize, except LongHorizon where a negative value disables the
// days notice.
type SchedulerConfig struct {
	Tick        time.Duration
	Retention   time.Duration
	StartWindow time.Duration
	LongHorizon time.Duration
	Location    *time.Location
	ZoneLabel   string
}

// DefaultSchedulerConfig returns the tunables with every default applied.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{}.Normalize()
}

func (c SchedulerConfig) Normalize() SchedulerConfig {
	if c.Tick <= 0 {
		c.Tick = 30 * time.Second
	}
	if c.Retention <= 0 {
		c.Retention = 2 * time.Hour
	}
	if c.StartWindow <= 0 {
		c.StartWindow = time.Minute
	}
	if c.LongHorizon == 0 {
		c.LongHorizon = 24 * time.Hour
	}
	if c.Location == nil {
		c.Location = time.UTC
	}
	return c
}

// Notification is one rendered message produced by a pass.
type Notification struct {
	EventID string
	Name    string
	Marker  Marker
	To      transport.ChatTarget
	Text    string
}

// TickReport summarizes one pass.
type TickReport struct {
	At            time.Time
	Notifications []Notification
	Failed        int
	Reaped        []string
}

type Scheduler struct {
	store *Store
	sink  Sink
	clock Clock
	bus   eventbus.Bus
	log   logx.Logger

	mu      sync.Mutex
	cfg     SchedulerConfig
	c       *cron.Cron
	entry   cron.EntryID
	baseCtx context.Context
}

type SchedulerOption func(*Scheduler)

func WithClock(c Clock) SchedulerOption { return func(s *Scheduler) { s.clock = c } }

func WithBus(b eventbus.Bus) SchedulerOption { return func(s *Scheduler) { s.bus = b } }

func WithLogger(log logx.Logger) SchedulerOption { return func(s *Scheduler) { s.log = log } }

// NewScheduler builds a scheduler over store that delivers through sink. It
// does not tick until Start.
func NewScheduler(store *Store, sink Sink, cfg SchedulerConfig, opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{store: store, sink: sink, cfg: cfg.Normalize(), clock: SystemClock()}
	for _, o := range opts {
		o(s)
	}
	if s.log.IsZero() {
		s.log = logx.Nop()
	}
	s.log = s.log.With(logx.String("comp", "reminder.scheduler"))
	return s
}

func (s *Scheduler) Config() SchedulerConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// Start registers the periodic pass with cron. Passes never overlap: a tick
// that arrives while the previous pass is still delivering is skipped.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return nil
	}
	s.baseCtx = ctx
	s.c = cron.New(
		cron.WithLocation(time.UTC),
		cron.WithChain(cron.Recover(cronLogger{s.log}), cron.SkipIfStillRunning(cronLogger{s.log})),
	)
	if err := s.registerLocked(); err != nil {
		s.c = nil
		return err
	}
	s.c.Start()
	s.log.Info("scheduler started", logx.Duration("tick", s.cfg.Tick), logx.Duration("retention", s.cfg.Retention))
	return nil
}

func (s *Scheduler) registerLocked() error {
	ctx := s.baseCtx
	id, err := s.c.AddFunc(fmt.Sprintf("@every %s", s.cfg.Tick), func() {
		if ctx.Err() != nil {
			return
		}
		s.Tick(ctx)
	})
	if err != nil {
		return fmt.Errorf("register tick: %w", err)
	}
	s.entry = id
	return nil
}

// Stop halts the cron loop and waits for a running pass, bounded by ctx.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	c := s.c
	s.c = nil
	s.mu.Unlock()
	if c == nil {
		return nil
	}
	select {
	case <-c.Stop().Done():
		s.log.Info("scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Apply swaps the tunables at runtime. A changed tick re-registers the cron entry.
func (s *Scheduler) Apply(cfg SchedulerConfig) {
	cfg = cfg.Normalize()
	s.mu.Lock()
	defer s.mu.Unlock()
	oldTick := s.cfg.Tick
	s.cfg = cfg
	if s.c == nil || oldTick == cfg.Tick {
		return
	}
	s.c.Remove(s.entry)
	if err := s.registerLocked(); err != nil {
		s.log.Error("tick re-register failed", logx.Err(err))
		return
	}
	s.log.Info("scheduler tick changed", logx.Duration("tick", cfg.Tick))
}

// Tick runs one evaluation pass at the clock's current time: markers are
// recorded under the store lock, messages are delivered after it is released.
func (s *Scheduler) Tick(ctx context.Context) TickReport {
	cfg := s.Config()
	f := Formatter{Location: cfg.Location, ZoneLabel: cfg.ZoneLabel}
	now := s.clock.Now().UTC()
	rep := TickReport{At: now}

	s.store.pass(func(ev *Event) bool {
		out, reap := s.evaluateSafe(ev, now, cfg, f)
		rep.Notifications = append(rep.Notifications, out...)
		if reap {
			rep.Reaped = append(rep.Reaped, ev.Name)
		}
		return reap
	})

	for _, n := range rep.Notifications {
		if err := s.deliver(ctx, n); err != nil {
			rep.Failed++
		}
	}
	for _, name := range rep.Reaped {
		s.log.Debug("event reaped", logx.String("event", name))
		s.publish(eventbus.TypeReminderReaped, map[string]any{"name": name})
	}
	return rep
}

func (s *Scheduler) evaluateSafe(ev *Event, now time.Time, cfg SchedulerConfig, f Formatter) (out []Notification, reap bool) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("event evaluation panicked; skipping", logx.String("event", ev.Name), logx.Any("panic", r))
			out, reap = nil, false
		}
	}()
	return evaluate(ev, now, cfg, f)
}

// evaluate decides the due markers of one event, records them and renders
// their messages. It reports whether the event should be reaped instead.
func evaluate(ev *Event, now time.Time, cfg SchedulerConfig, f Formatter) ([]Notification, bool) {
	if ev.Target.IsZero() || now.After(ev.Target.Add(cfg.Retention)) {
		return nil, true
	}
	if ev.state.thresholds == nil {
		ev.state.thresholds = map[int]bool{}
	}

	delta := ev.Target.Sub(now)
	var out []Notification
	emit := func(m Marker, text string) {
		out = append(out, Notification{EventID: ev.ID, Name: ev.Name, Marker: m, To: ev.Destination, Text: text})
	}

	var due []int
	for _, t := range ev.Alerts {
		if !ev.state.thresholds[t] && delta <= time.Duration(t)*time.Minute {
			due = append(due, t)
		}
	}

	// A threshold crossing above the horizon carries its own days-form message
	// and stands in for the days notice.
	if cfg.LongHorizon > 0 && delta > cfg.LongHorizon && !ev.state.longHorizon {
		ev.state.longHorizon = true
		if len(due) == 0 {
			emit(Marker{Kind: MarkerDays}, f.Days(*ev, delta))
		}
	}

	for _, t := range due {
		ev.state.thresholds[t] = true
		emit(Marker{Kind: MarkerThreshold, Minutes: t}, f.Threshold(*ev, delta))
	}

	if !ev.state.start && !now.Before(ev.Target) {
		inWindow := now.Before(ev.Target.Add(cfg.StartWindow))
		// An event created at or after its target has no window to miss.
		createdLate := !ev.CreatedAt.IsZero() && !ev.CreatedAt.Before(ev.Target)
		if inWindow || createdLate {
			ev.state.start = true
			emit(Marker{Kind: MarkerStart}, f.Start(*ev))
		}
	}
	return out, false
}

func (s *Scheduler) deliver(ctx context.Context, n Notification) error {
	err := s.sink.Send(ctx, n.To, n.Text)
	if err == nil {
		s.log.Debug("reminder sent", logx.String("event", n.Name), logx.String("marker", n.Marker.String()))
		s.publish(eventbus.TypeReminderFired, map[string]any{"name": n.Name, "id": n.EventID, "marker": n.Marker.String()})
		return nil
	}
	err = fmt.Errorf("%w: %s/%s: %w", ErrDeliveryFailed, n.Name, n.Marker, err)
	level := s.log.Warn
	if errors.Is(err, context.Canceled) {
		level = s.log.Debug
	}
	level("reminder delivery failed", logx.String("event", n.Name), logx.Int64("chat_id", n.To.ChatID), logx.Err(err))
	s.publish(eventbus.TypeDeliveryFailed, map[string]any{
		"name": n.Name, "id": n.EventID, "marker": n.Marker.String(), "chat_id": n.To.ChatID, "err": err.Error(),
	})
	return err
}

func (s *Scheduler) publish(typ string, data map[string]any) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(eventbus.Event{Type: typ, Data: data})
}

// cronLogger routes robfig/cron diagnostics into logx.
type cronLogger struct{ log logx.Logger }

func (l cronLogger) Info(msg string, kv ...any) {
	l.log.Debug("cron: "+msg, kvFields(kv)...)
}

func (l cronLogger) Error(err error, msg string, kv ...any) {
	l.log.Error("cron: "+msg, append(kvFields(kv), logx.Err(err))...)
}

func kvFields(kv []any) []logx.Field {
	out := make([]logx.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		out = append(out, logx.Any(fmt.Sprint(kv[i]), kv[i+1]))
	}
	return out
}
