package bot

import (
	"context"
	"strings"
	"sync"
	"time"

	"remindbot/internal/reminder"
	"remindbot/internal/transport"
	"remindbot/pkg/logx"
)

const (
	promptEventName    = "Введите название нового ивента:"
	promptEventTime    = "Когда начало? Например: 20:30, 15.03 19:00 или +90m"
	promptEventAlerts  = "За сколько минут напомнить? Например: 10,60,300. Отправьте «-» для стандартных."
	promptEventMembers = "Кого позвать? Участники (@ник) и группы через пробел, или «-»."
	promptGroupName    = "Введите название группы:"
	promptGroupMembers = "Введите участников группы через пробел (@ник1 @ник2):"
)

type wizardKind uint8

const (
	wizardEvent wizardKind = iota + 1
	wizardGroup
)

type wizStep uint8

const (
	stepName wizStep = iota
	stepTime
	stepAlerts
	stepMembers
)

type wizardKey struct {
	chat int64
	user int64
}

type wizardSession struct {
	mu sync.Mutex

	key  wizardKey
	chat transport.ChatTarget
	kind wizardKind
	step wizStep
	seen time.Time

	name   string
	target time.Time
	alerts []int
	done   bool
}

// wizards holds at most one conversation per (chat, user). A new start
// replaces the previous one.
type wizards struct {
	mu sync.Mutex
	m  map[wizardKey]*wizardSession
}

func newWizards() *wizards { return &wizards{m: map[wizardKey]*wizardSession{}} }

func (w *wizards) put(s *wizardSession) {
	w.mu.Lock()
	w.m[s.key] = s
	w.mu.Unlock()
}

// get returns the live session for key; an expired one is dropped.
func (w *wizards) get(key wizardKey, now time.Time, ttl time.Duration) (*wizardSession, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	s, ok := w.m[key]
	if !ok {
		return nil, false
	}
	s.mu.Lock()
	expired := now.Sub(s.seen) > ttl
	s.mu.Unlock()
	if expired {
		delete(w.m, key)
		return nil, false
	}
	return s, true
}

func (w *wizards) active(key wizardKey, now time.Time, ttl time.Duration) bool {
	_, ok := w.get(key, now, ttl)
	return ok
}

func (w *wizards) drop(key wizardKey) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	s, ok := w.m[key]
	if ok {
		delete(w.m, key)
		s.mu.Lock()
		s.done = true
		s.mu.Unlock()
	}
	return ok
}

// finish removes s only if it is still the registered session for its key.
func (w *wizards) finish(s *wizardSession) {
	w.mu.Lock()
	if w.m[s.key] == s {
		delete(w.m, s.key)
	}
	w.mu.Unlock()
}

// expire removes and returns sessions idle for longer than ttl.
func (w *wizards) expire(now time.Time, ttl time.Duration) []*wizardSession {
	w.mu.Lock()
	defer w.mu.Unlock()
	var out []*wizardSession
	for k, s := range w.m {
		s.mu.Lock()
		if now.Sub(s.seen) > ttl {
			s.done = true
			out = append(out, s)
			delete(w.m, k)
		}
		s.mu.Unlock()
	}
	return out
}

func (w *wizards) len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.m)
}

func (b *Bot) startWizard(req *Request, kind wizardKind) {
	b.wizards.put(&wizardSession{
		key:  wizardKey{chat: req.Chat.ChatID, user: req.FromID},
		chat: req.Chat,
		kind: kind,
		step: stepName,
		seen: b.reminders.Now(),
	})
}

func (b *Bot) sweepWizards(ctx context.Context) {
	t := time.NewTicker(30 * time.Second)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			b.expireWizards(ctx)
		}
	}
}

func (b *Bot) expireWizards(ctx context.Context) {
	for _, s := range b.wizards.expire(b.reminders.Now(), b.config().WizardTimeout) {
		b.log.Debug("wizard expired", logx.Int64("chat_id", s.key.chat), logx.Int64("from_id", s.key.user))
		_, _ = b.adapter.SendText(ctx, s.chat, "⌛ Время ожидания истекло, создание отменено.", nil)
	}
}

// wizardStep consumes one plain-text reply. Invalid input re-prompts and
// keeps the step. Lock order is wizards.mu before session.mu, so the session
// is unregistered only after its lock is released.
func (b *Bot) wizardStep(ctx context.Context, req *Request) error {
	key := wizardKey{chat: req.Chat.ChatID, user: req.FromID}
	s, ok := b.wizards.get(key, b.reminders.Now(), b.config().WizardTimeout)
	if !ok {
		return nil
	}
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return nil
	}

	s.mu.Lock()
	if s.done {
		s.mu.Unlock()
		return nil
	}
	s.seen = b.reminders.Now()
	var err error
	switch s.kind {
	case wizardEvent:
		err = b.eventWizard(ctx, req, s, text)
	case wizardGroup:
		err = b.groupWizard(ctx, req, s, text)
	}
	finished := s.done
	s.mu.Unlock()

	if finished {
		b.wizards.finish(s)
	}
	return err
}

func (b *Bot) eventWizard(ctx context.Context, req *Request, s *wizardSession, text string) error {
	switch s.step {
	case stepName:
		s.name = text
		s.step = stepTime
		return b.reply(ctx, req, promptEventTime, nil)
	case stepTime:
		t, err := reminder.ParseTarget(text, b.reminders.Now(), b.config().Location)
		if err != nil {
			return b.reply(ctx, req, badTimeText(text), nil)
		}
		s.target = t
		s.step = stepAlerts
		return b.reply(ctx, req, promptEventAlerts+"\nСтандартные: "+reminder.AlertsLabel(b.reminders.DefaultAlerts()), nil)
	case stepAlerts:
		alerts, err := reminder.ParseAlerts(text)
		if err != nil {
			return b.reply(ctx, req, badAlertsText(text), nil)
		}
		s.alerts = alerts
		s.step = stepMembers
		return b.reply(ctx, req, promptEventMembers, nil)
	case stepMembers:
		s.done = true
		return b.createEvent(ctx, req, s.name, s.target, s.alerts, memberTokens(text))
	}
	return nil
}

func (b *Bot) groupWizard(ctx context.Context, req *Request, s *wizardSession, text string) error {
	switch s.step {
	case stepName:
		s.name = text
		s.step = stepMembers
		return b.reply(ctx, req, promptGroupMembers, nil)
	case stepMembers:
		s.done = true
		return b.saveGroup(ctx, req, s.name, memberTokens(text))
	}
	return nil
}

// memberTokens splits a members reply; "-" alone means nobody.
func memberTokens(text string) []string {
	if strings.TrimSpace(text) == "-" {
		return nil
	}
	return strings.FieldsFunc(text, func(r rune) bool { return r == ' ' || r == ',' || r == '\n' || r == '\t' })
}
