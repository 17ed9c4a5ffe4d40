package reminder

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"remindbot/internal/eventbus"
	"remindbot/internal/transport"
)

var msk = time.FixedZone("MSK", 3*60*60)

type sentMsg struct {
	to   transport.ChatTarget
	text string
}

type recordingSink struct {
	mu   sync.Mutex
	sent []sentMsg
	err  error
}

func (r *recordingSink) Send(ctx context.Context, to transport.ChatTarget, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, sentMsg{to: to, text: text})
	return r.err
}

func (r *recordingSink) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sent)
}

type harness struct {
	clock *ManualClock
	store *Store
	sink  *recordingSink
	svc   *Service
	sched *Scheduler
	bus   eventbus.Bus
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		clock: NewManualClock(time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)),
		store: NewStore(),
		sink:  &recordingSink{},
		bus:   eventbus.New(),
	}
	h.svc = NewService(h.store, ServiceOptions{Clock: h.clock, Bus: h.bus})
	h.sched = NewScheduler(h.store, h.sink, SchedulerConfig{Location: msk, ZoneLabel: "МСК"},
		WithClock(h.clock), WithBus(h.bus))
	return h
}

func (h *harness) create(t *testing.T, name string, in time.Duration, alerts []int, participants ...string) Event {
	t.Helper()
	ev, err := h.svc.CreateEvent(context.Background(), CreateRequest{
		Name:         name,
		Target:       h.clock.Now().Add(in),
		Destination:  transport.ChatTarget{ChatID: -100, ThreadID: 7},
		Participants: participants,
		Alerts:       alerts,
	})
	if err != nil {
		t.Fatalf("CreateEvent(%s): %v", name, err)
	}
	return ev
}

type firing struct {
	marker string
	at     time.Duration
	text   string
}

// run ticks every step for the given span and collects notifications with
// their offset from the start of the run.
func (h *harness) run(span, step time.Duration) []firing {
	start := h.clock.Now()
	var out []firing
	for off := time.Duration(0); off <= span; off += step {
		h.clock.Set(start.Add(off))
		rep := h.sched.Tick(context.Background())
		for _, n := range rep.Notifications {
			out = append(out, firing{marker: n.Marker.String(), at: off, text: n.Text})
		}
	}
	return out
}

func markers(fs []firing) string {
	parts := make([]string, len(fs))
	for i, f := range fs {
		parts[i] = f.marker
	}
	return strings.Join(parts, ",")
}

func TestThresholdsFireOnceInDescendingOrder(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.create(t, "Raid", 70*time.Minute, []int{5, 15, 60}, "@a", "@b")

	got := h.run(4*time.Hour, 30*time.Second)
	if m := markers(got); m != "60m,15m,5m,start" {
		t.Fatalf("markers = %s", m)
	}
	wantAt := []time.Duration{10 * time.Minute, 55 * time.Minute, 65 * time.Minute, 70 * time.Minute}
	for i, f := range got {
		if f.at != wantAt[i] {
			t.Fatalf("%s fired at +%v, want +%v", f.marker, f.at, wantAt[i])
		}
	}
	if got[0].text != "⚔️ До 'Raid' осталось 1 час! @a @b" {
		t.Fatalf("60m text = %q", got[0].text)
	}
	if got[1].text != "⚔️ До 'Raid' осталось 15 минут! @a @b" {
		t.Fatalf("15m text = %q", got[1].text)
	}
	if got[3].text != "🔥 'Raid' НАЧАЛСЯ! @a @b Аминь! (Время: 16:10 МСК)" {
		t.Fatalf("start text = %q", got[3].text)
	}
	if h.store.Len() != 0 {
		t.Fatalf("event not reaped, store has %d", h.store.Len())
	}
	if h.sink.count() != 4 {
		t.Fatalf("sink got %d messages", h.sink.count())
	}
	if to := h.sink.sent[0].to; to.ChatID != -100 || to.ThreadID != 7 {
		t.Fatalf("destination = %+v", to)
	}
}

func TestReapBoundary(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ev := h.create(t, "x", time.Minute, []int{1})

	h.clock.Set(ev.Target.Add(2 * time.Hour))
	h.sched.Tick(context.Background())
	if len(h.svc.ListEvents()) != 1 {
		t.Fatal("event must stay listed until now > target+retention")
	}
	h.clock.Advance(time.Second)
	rep := h.sched.Tick(context.Background())
	if len(rep.Reaped) != 1 || len(h.svc.ListEvents()) != 0 {
		t.Fatalf("event not reaped: %+v", rep)
	}
	rep = h.sched.Tick(context.Background())
	if len(rep.Reaped) != 0 || len(rep.Notifications) != 0 {
		t.Fatalf("second reap pass not idempotent: %+v", rep)
	}
}

func TestRaidOneMinuteThresholdAndStart(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.create(t, "raid", 90*time.Second, []int{1})

	got := h.run(10*time.Minute, 30*time.Second)
	if m := markers(got); m != "1m,start" {
		t.Fatalf("markers = %s", m)
	}
	if got[0].at != 30*time.Second || got[1].at != 90*time.Second {
		t.Fatalf("unexpected firing times: %+v", got)
	}
	if got[0].text != "⚔️ До 'raid' осталось 1 минута!" {
		t.Fatalf("text = %q", got[0].text)
	}
}

func TestBossCreatedInThePast(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.create(t, "boss", -10*time.Minute, nil)

	rep := h.sched.Tick(context.Background())
	var ms []string
	for _, n := range rep.Notifications {
		ms = append(ms, n.Marker.String())
	}
	if got := strings.Join(ms, ","); got != "1440m,720m,300m,60m,10m,start" {
		t.Fatalf("first tick markers = %s", got)
	}
	if !strings.Contains(rep.Notifications[0].Text, "осталось 0 минут") {
		t.Fatalf("elapsed threshold text = %q", rep.Notifications[0].Text)
	}

	rest := h.run(3*time.Hour, 30*time.Second)
	if len(rest) != 0 {
		t.Fatalf("markers fired again: %s", markers(rest))
	}
	if h.store.Len() != 0 {
		t.Fatal("boss should be reaped after the retention window")
	}
}

func TestMissedStartWindowDoesNotFireRetroactively(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.create(t, "late", time.Minute, []int{10})
	h.sched.Tick(context.Background()) // 10m fires

	h.clock.Advance(5 * time.Minute)
	rep := h.sched.Tick(context.Background())
	if len(rep.Notifications) != 0 {
		t.Fatalf("unexpected notifications after missed window: %+v", rep.Notifications)
	}
	ev, _ := h.store.Get("late")
	for _, m := range ev.Fired() {
		if m.Kind == MarkerStart {
			t.Fatal("start marker recorded outside its window")
		}
	}
}

func TestLongHorizonNotice(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.create(t, "siege", 73*time.Hour, nil)

	rep := h.sched.Tick(context.Background())
	if len(rep.Notifications) != 1 || rep.Notifications[0].Marker.Kind != MarkerDays {
		t.Fatalf("want a single days notice, got %+v", rep.Notifications)
	}
	if want := "⚔️ Событие 'siege' стартует через 3 дня в 16:00 МСК!"; rep.Notifications[0].Text != want {
		t.Fatalf("text = %q, want %q", rep.Notifications[0].Text, want)
	}

	h.clock.Advance(49 * time.Hour) // 24h left
	rep = h.sched.Tick(context.Background())
	if len(rep.Notifications) != 1 || rep.Notifications[0].Marker.String() != "1440m" {
		t.Fatalf("want 1440m, got %+v", rep.Notifications)
	}
	if !strings.Contains(rep.Notifications[0].Text, "через 1 день") {
		t.Fatalf("text = %q", rep.Notifications[0].Text)
	}
}

func TestThresholdAboveHorizonFiresInDaysForm(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.create(t, "war", 30*time.Hour, []int{2880, 60})

	rep := h.sched.Tick(context.Background())
	if len(rep.Notifications) != 1 || rep.Notifications[0].Marker.String() != "2880m" {
		t.Fatalf("want only the 2880m notice, got %+v", rep.Notifications)
	}
	if want := "⚔️ Событие 'war' стартует через 1 день в 21:00 МСК!"; rep.Notifications[0].Text != want {
		t.Fatalf("text = %q, want %q", rep.Notifications[0].Text, want)
	}
	ev, _ := h.store.Get("war")
	var fired []string
	for _, m := range ev.Fired() {
		fired = append(fired, m.String())
	}
	if got := strings.Join(fired, ","); got != "2880m,days" {
		t.Fatalf("fired = %s", got)
	}
	if later := h.run(40*time.Hour, 30*time.Second); markers(later) != "60m,start" {
		t.Fatalf("later markers = %s", markers(later))
	}
}

func TestSinkFailureKeepsMarker(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.sink.err = errors.New("telegram down")
	failures, unsub := h.bus.Subscribe(4, eventbus.TypeDeliveryFailed)
	defer unsub()

	h.create(t, "x", 5*time.Minute, []int{10})
	rep := h.sched.Tick(context.Background())
	if rep.Failed != 1 {
		t.Fatalf("failed = %d", rep.Failed)
	}
	h.sched.Tick(context.Background())
	if h.sink.count() != 1 {
		t.Fatalf("delivery retried: %d sends", h.sink.count())
	}
	select {
	case e := <-failures:
		data := e.Data.(map[string]any)
		if data["marker"] != "10m" || !strings.Contains(fmt.Sprint(data["err"]), ErrDeliveryFailed.Error()) {
			t.Fatalf("failure event = %+v", data)
		}
	default:
		t.Fatal("no delivery failure published")
	}
}

func TestMalformedEventIsReapedOthersContinue(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.store.Create(Event{Name: "broken"})
	h.create(t, "ok", 5*time.Minute, []int{10})

	rep := h.sched.Tick(context.Background())
	if len(rep.Reaped) != 1 || rep.Reaped[0] != "broken" {
		t.Fatalf("reaped = %v", rep.Reaped)
	}
	if len(rep.Notifications) != 1 || rep.Notifications[0].Name != "ok" {
		t.Fatalf("notifications = %+v", rep.Notifications)
	}
}

func TestReplaceResetsMarkers(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.create(t, "Raid", 5*time.Minute, []int{10})
	h.sched.Tick(context.Background())

	h.create(t, "  RAID ", 5*time.Minute, []int{10})
	if n := len(h.svc.ListEvents()); n != 1 {
		t.Fatalf("events = %d", n)
	}
	rep := h.sched.Tick(context.Background())
	if len(rep.Notifications) != 1 {
		t.Fatalf("replaced event should fire again, got %+v", rep.Notifications)
	}
}

func TestConcurrentCommandsAndTicks(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				name := fmt.Sprintf("ev-%d-%d", w, i%5)
				_, _ = h.svc.CreateEvent(ctx, CreateRequest{Name: name, Target: h.clock.Now().Add(time.Minute), Alerts: []int{1, 2}})
				_ = h.svc.ListEvents()
				_, _ = h.svc.CancelEvent(ctx, name)
			}
		}(w)
	}
	for i := 0; i < 50; i++ {
		h.sched.Tick(ctx)
	}
	wg.Wait()
	h.sched.Tick(ctx)
}

func TestSchedulerStartStop(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.sched.Apply(SchedulerConfig{Tick: time.Second, Location: msk})
	if err := h.sched.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	h.sched.Apply(SchedulerConfig{Tick: 2 * time.Second, Location: msk})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := h.sched.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if got := h.sched.Config().Tick; got != 2*time.Second {
		t.Fatalf("tick = %v", got)
	}
}
