package bot

import (
	"context"
	"fmt"

	tele "gopkg.in/telebot.v4"

	"remindbot/internal/reminder"
	"remindbot/internal/transport"
	"remindbot/pkg/tgui"
)

const menuText = "🤖 Бот для управления ивентами и группами.\nВыберите действие:"

const (
	scopeMenu  = "menu"
	scopeEvent = "ev"
)

type callbackRoute struct {
	key    string
	admin  bool
	denied string
	handle HandlerFunc
}

func mainMenu() *tele.ReplyMarkup {
	return tgui.NewInline().
		Row(tgui.Btn("Все ивенты", tgui.Data(scopeMenu, "events", ""))).
		Row(tgui.Btn("Создать ивент", tgui.Data(scopeMenu, "create_event", ""))).
		Row(tgui.Btn("Создать группу", tgui.Data(scopeMenu, "create_group", ""))).
		Row(tgui.Btn("Все группы", tgui.Data(scopeMenu, "groups", ""))).
		Row(tgui.Btn("Общий сбор", tgui.Data(scopeMenu, "call", ""))).
		Row(tgui.Btn("Закрыть", tgui.Data(scopeMenu, "close", ""))).
		Markup()
}

func backRows(kb *tgui.Inline) *tele.ReplyMarkup {
	return kb.
		Row(tgui.Btn("Назад", tgui.Data(scopeMenu, "back", ""))).
		Row(tgui.Btn("Закрыть", tgui.Data(scopeMenu, "close", ""))).
		Markup()
}

func backMenu() *tele.ReplyMarkup { return backRows(tgui.NewInline()) }

// callbackRoute resolves "scope:action[:payload]" button data.
func (b *Bot) callbackRoute(data string) (callbackRoute, string, bool) {
	scope, action, payload, ok := tgui.ParseData(data)
	if !ok {
		return callbackRoute{}, "", false
	}
	key := scope + ":" + action
	var r callbackRoute
	switch key {
	case "menu:events":
		r = callbackRoute{handle: b.cbEvents}
	case "menu:create_event":
		r = callbackRoute{admin: true, denied: deniedEvents, handle: b.cbCreateEvent}
	case "menu:create_group":
		r = callbackRoute{admin: true, denied: deniedGroups, handle: b.cbCreateGroup}
	case "menu:groups":
		r = callbackRoute{handle: b.cbGroups}
	case "menu:call":
		r = callbackRoute{handle: b.cbCall}
	case "menu:back":
		r = callbackRoute{handle: b.cbBack}
	case "menu:close":
		r = callbackRoute{handle: b.cbClose}
	case "ev:show":
		r = callbackRoute{handle: b.cbShowEvent}
	case "ev:cancel":
		r = callbackRoute{admin: true, denied: deniedEvents, handle: b.cbCancelEvent}
	default:
		return callbackRoute{}, "", false
	}
	r.key = key
	return r, payload, true
}

func (b *Bot) messageRef(req *Request) transport.MessageRef {
	return transport.MessageRef{ChatID: req.Chat.ChatID, ThreadID: req.Chat.ThreadID, MessageID: req.MessageID}
}

// edit replaces the pressed message in place and falls back to a new one.
func (b *Bot) edit(ctx context.Context, req *Request, text string, kb *tele.ReplyMarkup) error {
	opt := &transport.SendOptions{DisablePreview: true}
	if kb != nil {
		opt.ReplyMarkupAdapter = kb
	}
	if req.MessageID != 0 {
		if err := b.adapter.EditText(ctx, b.messageRef(req), text, opt); err == nil {
			return nil
		}
	}
	return b.reply(ctx, req, text, kb)
}

func (b *Bot) cbEvents(ctx context.Context, req *Request) error {
	evs := b.reminders.ListEvents()
	if len(evs) == 0 {
		return b.edit(ctx, req, "📭 Нет активных ивентов.", backMenu())
	}
	kb := tgui.NewInline()
	for _, ev := range evs {
		kb.Row(tgui.Btn(ev.Name, tgui.Data(scopeEvent, "show", ev.ID)))
	}
	return b.edit(ctx, req, "Выберите ивент:", backRows(kb))
}

// findEvent looks up an event by id; button data carries ids because names
// can exceed the callback data limit.
func (b *Bot) findEvent(id string) (reminder.Event, bool) {
	for _, ev := range b.reminders.ListEvents() {
		if ev.ID == id {
			return ev, true
		}
	}
	return reminder.Event{}, false
}

func (b *Bot) cbShowEvent(ctx context.Context, req *Request) error {
	ev, ok := b.findEvent(req.Payload)
	if !ok {
		return b.edit(ctx, req, "⚠️ Ивент уже завершён или отменён.", backMenu())
	}
	kb := tgui.NewInline()
	if b.isAdmin(req.FromID, req.FromUsername) {
		kb.Row(tgui.Btn("🗑 Отменить", tgui.Data(scopeEvent, "cancel", ev.ID)))
	}
	return b.edit(ctx, req, "📌 "+ev.Name+"\n"+b.eventSummary(ev), backRows(kb))
}

func (b *Bot) cbCancelEvent(ctx context.Context, req *Request) error {
	ev, ok := b.findEvent(req.Payload)
	if !ok {
		return b.edit(ctx, req, "⚠️ Ивент уже завершён или отменён.", backMenu())
	}
	if _, err := b.reminders.CancelEvent(ctx, ev.Name); err != nil {
		return err
	}
	return b.edit(ctx, req, fmt.Sprintf("🗑 Ивент '%s' отменён.", ev.Name), backMenu())
}

func (b *Bot) cbCreateEvent(ctx context.Context, req *Request) error {
	b.startWizard(req, wizardEvent)
	return b.reply(ctx, req, promptEventName, nil)
}

func (b *Bot) cbCreateGroup(ctx context.Context, req *Request) error {
	b.startWizard(req, wizardGroup)
	return b.reply(ctx, req, promptGroupName, nil)
}

func (b *Bot) cbGroups(ctx context.Context, req *Request) error {
	return b.edit(ctx, req, b.groupsText(), backMenu())
}

func (b *Bot) cbCall(ctx context.Context, req *Request) error {
	return b.reply(ctx, req, b.callText(), nil)
}

func (b *Bot) cbBack(ctx context.Context, req *Request) error {
	return b.edit(ctx, req, menuText, mainMenu())
}

func (b *Bot) cbClose(ctx context.Context, req *Request) error {
	if req.MessageID == 0 {
		return nil
	}
	// The message may already be gone or too old to delete.
	_ = b.adapter.DeleteMessage(ctx, b.messageRef(req))
	return nil
}
