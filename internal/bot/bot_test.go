package bot

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	tele "gopkg.in/telebot.v4"

	"remindbot/internal/groups"
	"remindbot/internal/reminder"
	"remindbot/internal/storage"
	"remindbot/internal/transport"
	"remindbot/pkg/logx"
)

const (
	adminID = 100
	userID  = 200
	chatID  = -1001
)

var msk = time.FixedZone("MSK", 3*60*60)

type sent struct {
	to   transport.ChatTarget
	text string
	kb   *tele.ReplyMarkup
}

type fakeAdapter struct {
	mu       sync.Mutex
	sent     []sent
	edits    []sent
	deleted  []transport.MessageRef
	answered []string
	menu     []transport.BotCommand
}

func (f *fakeAdapter) Start(ctx context.Context, out chan<- transport.Update) error { return nil }
func (f *fakeAdapter) Stop(ctx context.Context) error                              { return nil }

func (f *fakeAdapter) SendText(ctx context.Context, to transport.ChatTarget, text string, opt *transport.SendOptions) (transport.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := sent{to: to, text: text}
	if opt != nil {
		s.kb, _ = opt.ReplyMarkupAdapter.(*tele.ReplyMarkup)
	}
	f.sent = append(f.sent, s)
	return transport.MessageRef{ChatID: to.ChatID, ThreadID: to.ThreadID, MessageID: len(f.sent)}, nil
}

func (f *fakeAdapter) EditText(ctx context.Context, ref transport.MessageRef, text string, opt *transport.SendOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := sent{to: transport.ChatTarget{ChatID: ref.ChatID, ThreadID: ref.ThreadID}, text: text}
	if opt != nil {
		s.kb, _ = opt.ReplyMarkupAdapter.(*tele.ReplyMarkup)
	}
	f.edits = append(f.edits, s)
	return nil
}

func (f *fakeAdapter) DeleteMessage(ctx context.Context, ref transport.MessageRef) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, ref)
	return nil
}

func (f *fakeAdapter) AnswerCallback(ctx context.Context, id, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.answered = append(f.answered, id)
	return nil
}

func (f *fakeAdapter) UpdateMenuCommands(ctx context.Context, cmds []transport.BotCommand) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.menu = cmds
	return nil
}

func (f *fakeAdapter) last(t *testing.T) sent {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		t.Fatal("nothing sent")
	}
	return f.sent[len(f.sent)-1]
}

func (f *fakeAdapter) lastEdit(t *testing.T) sent {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.edits) == 0 {
		t.Fatal("nothing edited")
	}
	return f.edits[len(f.edits)-1]
}

func (f *fakeAdapter) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

type harness struct {
	bot    *Bot
	ad     *fakeAdapter
	clock  *reminder.ManualClock
	svc    *reminder.Service
	roster *groups.Roster
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	clock := reminder.NewManualClock(time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)) // 18:00 MSK
	svc := reminder.NewService(reminder.NewStore(), reminder.ServiceOptions{Clock: clock})
	st, err := storage.Open(storage.Config{Driver: "memory"}, logx.Nop())
	if err != nil {
		t.Fatalf("storage: %v", err)
	}
	roster := groups.New(st, nil, logx.Nop())
	ad := &fakeAdapter{}
	b := New(Config{
		OwnerIDs:       []int64{adminID},
		AdminUsernames: []string{"@Warlord"},
		WizardTimeout:  time.Minute,
		Location:       msk,
		ZoneLabel:      "МСК",
	}, Deps{Adapter: ad, Reminders: svc, Groups: roster, Log: logx.Nop()})
	return &harness{bot: b, ad: ad, clock: clock, svc: svc, roster: roster}
}

func (h *harness) say(from int64, username, text string) {
	h.bot.Handle(context.Background(), transport.Update{
		Kind:    transport.UpdateMessage,
		Message: &transport.Message{ID: 1, ChatID: chatID, FromID: from, FromUsername: username, Text: text},
	})
}

func (h *harness) press(from int64, data string) {
	h.bot.Handle(context.Background(), transport.Update{
		Kind:     transport.UpdateCallback,
		Callback: &transport.Callback{ID: "cb1", ChatID: chatID, FromID: from, MessageID: 42, Data: data},
	})
}

func TestEventCommandCreatesAndReplaces(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	if err := h.roster.Load(context.Background()); err != nil {
		t.Fatal(err)
	}
	if _, err := h.roster.Set(context.Background(), "tanks", []string{"@a", "@b"}); err != nil {
		t.Fatal(err)
	}

	h.say(adminID, "", `/event "Бой с боссом" 20:30 --alerts 10,60 tanks @c`)
	got := h.ad.last(t).text
	if !strings.HasPrefix(got, "✅ Ивент 'Бой с боссом' создан: 10.03 20:30 МСК (через 2 ч 30 мин)") {
		t.Fatalf("reply = %q", got)
	}
	if !strings.Contains(got, "1ч 10м") || !strings.Contains(got, "@a @b @c") {
		t.Fatalf("reply = %q", got)
	}
	ev, err := h.svc.GetEvent("бой с боссом")
	if err != nil {
		t.Fatalf("GetEvent: %v", err)
	}
	if ev.Destination.ChatID != chatID || ev.CreatedBy != adminID {
		t.Fatalf("event = %+v", ev)
	}

	h.say(adminID, "", `/event "бой с боссом" +1h`)
	if got := h.ad.last(t).text; !strings.HasPrefix(got, "♻️ Ивент 'бой с боссом' обновлён") {
		t.Fatalf("replace reply = %q", got)
	}
}

func TestAdminByUsername(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.say(userID, "warlord", "/event raid 21:00")
	if got := h.ad.last(t).text; !strings.HasPrefix(got, "✅") {
		t.Fatalf("username admin denied: %q", got)
	}
}

func TestNonAdminDenied(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	for _, cmd := range []string{"/event raid 21:00", "/clear", "/group tanks @a", "/cancel raid"} {
		h.say(userID, "peasant", cmd)
		if got := h.ad.last(t).text; !strings.Contains(got, "обратитесь к @warlord") {
			t.Fatalf("%s: reply = %q", cmd, got)
		}
	}
	if len(h.svc.ListEvents()) != 0 {
		t.Fatal("denied command created an event")
	}
}

func TestBadInputReplies(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	cases := map[string]string{
		"/event raid":                 "Использование:",
		"/event raid 25:99":           "Не понял время",
		"/event raid 20:00 --alerts x": "Не понял напоминания",
		"/left nope":                  "не найден",
		"/ungroup nope":               "не найдена",
	}
	for in, want := range cases {
		h.say(adminID, "", in)
		if got := h.ad.last(t).text; !strings.Contains(got, want) {
			t.Fatalf("%s: reply = %q, want %q", in, got, want)
		}
	}
}

func TestEventsLeftCancelClear(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.say(adminID, "", "/events")
	if got := h.ad.last(t).text; got != "📭 Нет активных ивентов." {
		t.Fatalf("empty list = %q", got)
	}
	h.say(adminID, "", "/event raid +90m")
	h.say(userID, "", "/events")
	if got := h.ad.last(t).text; !strings.Contains(got, "• raid: 10.03 19:30 МСК (через 1 ч 30 мин)") {
		t.Fatalf("list = %q", got)
	}
	h.say(userID, "", "/left RAID")
	if got := h.ad.last(t).text; got != "⏳ До 'raid' осталось 1 ч 30 мин (10.03 19:30 МСК)." {
		t.Fatalf("left = %q", got)
	}
	h.clock.Advance(2 * time.Hour)
	h.say(userID, "", "/left raid")
	if got := h.ad.last(t).text; got != "🔥 'raid' уже начался." {
		t.Fatalf("left after start = %q", got)
	}

	h.say(adminID, "", "/cancel raid")
	if got := h.ad.last(t).text; got != "🗑 Ивент 'raid' отменён." {
		t.Fatalf("cancel = %q", got)
	}
	h.say(adminID, "", "/cancel raid")
	if got := h.ad.last(t).text; got != "⚠️ Ивент 'raid' не найден." {
		t.Fatalf("second cancel = %q", got)
	}

	h.say(adminID, "", "/event a +1h")
	h.say(adminID, "", "/event b +2h")
	h.say(adminID, "", "/clear")
	if len(h.svc.ListEvents()) != 0 || h.ad.last(t).text != "✅ Все активные ивенты удалены." {
		t.Fatal("clear did not empty the store")
	}
}

func TestGroupsAndGeneralCall(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.say(userID, "", "/call")
	if got := h.ad.last(t).text; got != "⚠️ Нет участников для общего сбора." {
		t.Fatalf("empty call = %q", got)
	}
	h.say(adminID, "", "/group Tanks a @b")
	if got := h.ad.last(t).text; got != "✅ Группа 'tanks' сохранена: @a @b" {
		t.Fatalf("group = %q", got)
	}
	h.say(adminID, "", "/group heal @b @c")
	h.say(userID, "", "/groups")
	if got := h.ad.last(t).text; got != "Список групп:\n- heal: @b @c\n- tanks: @a @b" {
		t.Fatalf("groups = %q", got)
	}
	h.say(userID, "", "/call")
	if got := h.ad.last(t).text; !strings.HasPrefix(got, "⚔️ Общий сбор!") || strings.Count(got, "@b") != 1 {
		t.Fatalf("call = %q", got)
	}
	h.say(adminID, "", "/ungroup heal")
	if _, ok := h.roster.Get("heal"); ok {
		t.Fatal("group not deleted")
	}
}

func TestUnknownAndPlainTextIgnored(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.say(userID, "", "/other_bot_command")
	h.say(userID, "", "hello")
	if n := h.ad.count(); n != 0 {
		t.Fatalf("sent %d messages", n)
	}
}

func TestMenuCallbacks(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.say(userID, "", "/start")
	start := h.ad.last(t)
	if start.text != menuText || start.kb == nil || len(start.kb.InlineKeyboard) != 6 {
		t.Fatalf("menu = %+v", start)
	}

	h.press(userID, "menu:events")
	if got := h.ad.lastEdit(t).text; got != "📭 Нет активных ивентов." {
		t.Fatalf("events = %q", got)
	}

	h.say(adminID, "", "/event raid +1h")
	ev, _ := h.svc.GetEvent("raid")
	h.press(userID, "menu:events")
	kb := h.ad.lastEdit(t).kb
	if kb == nil || kb.InlineKeyboard[0][0].Data != "ev:show:"+ev.ID {
		t.Fatalf("events keyboard = %+v", kb)
	}

	h.press(userID, "ev:show:"+ev.ID)
	if e := h.ad.lastEdit(t); !strings.HasPrefix(e.text, "📌 raid\n") || len(e.kb.InlineKeyboard) != 2 {
		t.Fatalf("show for user = %+v", e)
	}
	h.press(adminID, "ev:show:"+ev.ID)
	if e := h.ad.lastEdit(t); e.kb.InlineKeyboard[0][0].Data != "ev:cancel:"+ev.ID {
		t.Fatalf("show for admin = %+v", e.kb.InlineKeyboard)
	}

	h.press(userID, "ev:cancel:"+ev.ID)
	if !strings.Contains(h.ad.last(t).text, "обратитесь к") {
		t.Fatal("user cancelled through button")
	}
	h.press(adminID, "ev:cancel:"+ev.ID)
	if got := h.ad.lastEdit(t).text; got != "🗑 Ивент 'raid' отменён." {
		t.Fatalf("cancel = %q", got)
	}

	h.press(userID, "menu:close")
	h.ad.mu.Lock()
	deleted, answered := len(h.ad.deleted), len(h.ad.answered)
	h.ad.mu.Unlock()
	if deleted != 1 || answered == 0 {
		t.Fatalf("deleted=%d answered=%d", deleted, answered)
	}
}

func TestEventWizard(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	if _, err := h.roster.Set(context.Background(), "tanks", []string{"@a"}); err != nil {
		t.Fatal(err)
	}

	h.press(userID, "menu:create_event")
	if !strings.Contains(h.ad.last(t).text, "обратитесь к") {
		t.Fatal("wizard started for non-admin")
	}

	h.press(adminID, "menu:create_event")
	if got := h.ad.last(t).text; got != promptEventName {
		t.Fatalf("prompt = %q", got)
	}
	h.say(adminID, "", "Осада")
	h.say(adminID, "", "когда-нибудь")
	if got := h.ad.last(t).text; !strings.Contains(got, "Не понял время") {
		t.Fatalf("bad time = %q", got)
	}
	h.say(adminID, "", "21:00")
	h.say(adminID, "", "15,5")
	// Another user's chatter is not captured by the admin's wizard.
	h.say(userID, "", "привет")
	h.say(adminID, "", "tanks @z")

	ev, err := h.svc.GetEvent("осада")
	if err != nil {
		t.Fatalf("wizard did not create the event: %v", err)
	}
	if !ev.Target.Equal(time.Date(2026, 3, 10, 18, 0, 0, 0, time.UTC)) {
		t.Fatalf("target = %v", ev.Target)
	}
	if strings.Join(ev.Participants, " ") != "@a @z" || len(ev.Alerts) != 2 || ev.Alerts[0] != 15 {
		t.Fatalf("event = %+v", ev)
	}
	if h.bot.wizards.len() != 0 {
		t.Fatal("wizard still active")
	}
}

func TestGroupWizardAndCancel(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.press(adminID, "menu:create_group")
	h.say(adminID, "", "dps")
	h.say(adminID, "", "@x, y")
	if g, ok := h.roster.Get("dps"); !ok || strings.Join(g.Members, " ") != "@x @y" {
		t.Fatalf("group = %+v %v", g, ok)
	}

	h.press(adminID, "menu:create_group")
	h.say(userID, "", "/cancel")
	if got := h.ad.last(t).text; !strings.HasPrefix(got, "Использование") {
		t.Fatalf("other user's cancel = %q", got)
	}
	h.say(adminID, "", "/cancel")
	if got := h.ad.last(t).text; got != "❎ Создание отменено." {
		t.Fatalf("cancel = %q", got)
	}
}

func TestWizardExpires(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.press(adminID, "menu:create_event")
	h.clock.Advance(2 * time.Minute)
	before := h.ad.count()
	h.say(adminID, "", "late name")
	if h.ad.count() != before {
		t.Fatal("expired wizard still answered")
	}

	h.press(adminID, "menu:create_group")
	h.clock.Advance(2 * time.Minute)
	h.bot.expireWizards(context.Background())
	if got := h.ad.last(t).text; !strings.HasPrefix(got, "⌛") {
		t.Fatalf("expiry notice = %q", got)
	}
}

func TestRunDispatchesAndPublishesMenu(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	updates := make(chan transport.Update, 4)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.bot.Run(ctx, updates) }()

	updates <- transport.Update{Kind: transport.UpdateMessage, Message: &transport.Message{ChatID: chatID, FromID: userID, Text: "/help"}}
	deadline := time.Now().Add(2 * time.Second)
	for h.ad.count() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("update not dispatched")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if !strings.HasPrefix(h.ad.last(t).text, "📖 Команды:") {
		t.Fatalf("help = %q", h.ad.last(t).text)
	}
	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return")
	}
	h.ad.mu.Lock()
	menu := len(h.ad.menu)
	h.ad.mu.Unlock()
	if menu != len(h.bot.ordered) {
		t.Fatalf("menu commands = %d", menu)
	}
}
