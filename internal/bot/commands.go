package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"remindbot/internal/groups"
	"remindbot/internal/reminder"
	"remindbot/internal/transport"
	"remindbot/pkg/logx"
)

type command struct {
	name    string
	aliases []string
	usage   string
	desc    string
	admin   bool
	denied  string // completes "Для ... обратитесь к @admin"
	handle  HandlerFunc
}

const (
	deniedEvents = "создания или изменения ивентов"
	deniedGroups = "создания или изменения групп"
	deniedClear  = "очистки ивентов"
)

func (b *Bot) registerCommands() {
	b.ordered = []*command{
		{name: "start", aliases: []string{"menu"}, usage: "/start", desc: "главное меню", handle: b.cmdStart},
		{name: "event", aliases: []string{"ev"}, usage: "/event <название> <время> [--alerts 10,60] [@участники или группы]", desc: "создать или перезаписать ивент", admin: true, denied: deniedEvents, handle: b.cmdEvent},
		{name: "cancel", usage: "/cancel <название>", desc: "отменить ивент (без аргумента: прервать диалог)", handle: b.cmdCancel},
		{name: "clear", usage: "/clear", desc: "удалить все ивенты", admin: true, denied: deniedClear, handle: b.cmdClear},
		{name: "events", usage: "/events", desc: "список активных ивентов", handle: b.cmdEvents},
		{name: "left", aliases: []string{"time"}, usage: "/left <название>", desc: "сколько осталось до ивента", handle: b.cmdLeft},
		{name: "group", usage: "/group <название> <@участники...>", desc: "создать или изменить группу", admin: true, denied: deniedGroups, handle: b.cmdGroup},
		{name: "ungroup", usage: "/ungroup <название>", desc: "удалить группу", admin: true, denied: deniedGroups, handle: b.cmdUngroup},
		{name: "groups", usage: "/groups", desc: "список групп", handle: b.cmdGroups},
		{name: "call", usage: "/call", desc: "общий сбор всех участников групп", handle: b.cmdCall},
		{name: "help", aliases: []string{"h"}, usage: "/help", desc: "справка", handle: b.cmdHelp},
	}
	b.commands = make(map[string]*command, len(b.ordered)*2)
	for _, c := range b.ordered {
		b.commands[c.name] = c
		for _, a := range c.aliases {
			b.commands[a] = c
		}
	}
}

func (b *Bot) menuCommands() []transport.BotCommand {
	out := make([]transport.BotCommand, 0, len(b.ordered))
	for _, c := range b.ordered {
		out = append(out, transport.BotCommand{Command: c.name, Description: c.desc})
	}
	return out
}

func (b *Bot) cmdStart(ctx context.Context, req *Request) error {
	return b.reply(ctx, req, menuText, mainMenu())
}

func (b *Bot) cmdHelp(ctx context.Context, req *Request) error {
	var sb strings.Builder
	sb.WriteString("📖 Команды:\n")
	for _, c := range b.ordered {
		lock := ""
		if c.admin {
			lock = " 🔒"
		}
		fmt.Fprintf(&sb, "%s — %s%s\n", c.usage, c.desc, lock)
	}
	sb.WriteString("\nВремя: 20:30, 15.03 19:00, 15.03.2027 19:00, +90m, +1h30m (")
	sb.WriteString(b.zoneName())
	sb.WriteString(").\nГруппы в списке участников разворачиваются в их состав.")
	return b.reply(ctx, req, sb.String(), nil)
}

func (b *Bot) zoneName() string {
	c := b.config()
	if c.ZoneLabel != "" {
		return c.ZoneLabel
	}
	return c.Location.String()
}

func (b *Bot) cmdEvent(ctx context.Context, req *Request) error {
	usage := "Использование: " + b.commands["event"].usage
	if len(req.Args) < 2 {
		return b.reply(ctx, req, usage, nil)
	}
	name := req.Args[0]
	target, n, err := reminder.ParseTargetTokens(req.Args[1:], b.reminders.Now(), b.config().Location)
	if err != nil {
		return b.reply(ctx, req, badTimeText(strings.Join(req.Args[1:], " ")), nil)
	}
	raw, ok := req.Flags["alerts"]
	if !ok {
		raw = req.Flags["a"]
	}
	alerts, err := reminder.ParseAlerts(raw)
	if err != nil {
		return b.reply(ctx, req, badAlertsText(raw), nil)
	}
	return b.createEvent(ctx, req, name, target, alerts, req.Args[1+n:])
}

// createEvent is shared by /event and the creation wizard. Group names among
// members are flattened here, once.
func (b *Bot) createEvent(ctx context.Context, req *Request, name string, target time.Time, alerts []int, members []string) error {
	_, getErr := b.reminders.GetEvent(name)
	existed := getErr == nil

	var participants []string
	if b.groups != nil {
		participants = b.groups.Resolve(members)
	} else {
		participants = members
	}
	ev, err := b.reminders.CreateEvent(ctx, reminder.CreateRequest{
		Name:         name,
		Target:       target,
		Destination:  req.Chat,
		Participants: participants,
		Alerts:       alerts,
		CreatedBy:    req.FromID,
	})
	switch {
	case errors.Is(err, reminder.ErrEventExists):
		return b.reply(ctx, req, fmt.Sprintf("⚠️ Ивент '%s' уже существует. Сначала отмените его: /cancel %s", name, name), nil)
	case errors.Is(err, reminder.ErrInvalidSchedule):
		req.Logger.Debug("event rejected", logx.Err(err))
		return b.reply(ctx, req, fmt.Sprintf("⚠️ Ивент не создан: название до %d символов, время и напоминания от 1 минуты до 30 дней.", reminder.MaxNameRunes), nil)
	case err != nil:
		return err
	}

	head := "✅ Ивент '%s' создан"
	if existed {
		head = "♻️ Ивент '%s' обновлён"
	}
	return b.reply(ctx, req, fmt.Sprintf(head, ev.Name)+": "+b.eventSummary(ev), nil)
}

// eventSummary renders when, which alerts and who, without the name.
func (b *Bot) eventSummary(ev reminder.Event) string {
	now := b.reminders.Now()
	f := b.formatter()
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s (%s)", f.Stamp(ev.Target, now), leftText(ev.Target.Sub(now)))
	fmt.Fprintf(&sb, "\n🔔 Напоминания: %s", reminder.AlertsLabel(ev.Alerts))
	if len(ev.Participants) > 0 {
		fmt.Fprintf(&sb, "\n👥 Участники: %s", strings.Join(ev.Participants, " "))
	}
	return sb.String()
}

func leftText(d time.Duration) string {
	if d <= 0 {
		return "уже начался"
	}
	return "через " + reminder.Remaining(d)
}

func badTimeText(raw string) string {
	return fmt.Sprintf("⚠️ Не понял время «%s». Примеры: 20:30, 15.03 19:00, +90m, +1h30m", raw)
}

func badAlertsText(raw string) string {
	return fmt.Sprintf("⚠️ Не понял напоминания «%s». Пример: 10,60,300 или 10m 1h 12h", raw)
}

func (b *Bot) cmdCancel(ctx context.Context, req *Request) error {
	name := strings.Join(req.Args, " ")
	if name == "" {
		if b.wizards.drop(wizardKey{chat: req.Chat.ChatID, user: req.FromID}) {
			return b.reply(ctx, req, "❎ Создание отменено.", nil)
		}
		return b.reply(ctx, req, "Использование: "+b.commands["cancel"].usage, nil)
	}
	if !b.isAdmin(req.FromID, req.FromUsername) {
		b.deny(ctx, req.Chat, deniedEvents)
		return nil
	}
	return b.cancelEvent(ctx, req, name)
}

func (b *Bot) cancelEvent(ctx context.Context, req *Request, name string) error {
	existed, err := b.reminders.CancelEvent(ctx, name)
	if err != nil {
		return err
	}
	if !existed {
		return b.reply(ctx, req, fmt.Sprintf("⚠️ Ивент '%s' не найден.", name), nil)
	}
	return b.reply(ctx, req, fmt.Sprintf("🗑 Ивент '%s' отменён.", name), nil)
}

func (b *Bot) cmdClear(ctx context.Context, req *Request) error {
	b.reminders.ClearEvents(ctx)
	return b.reply(ctx, req, "✅ Все активные ивенты удалены.", nil)
}

func (b *Bot) cmdEvents(ctx context.Context, req *Request) error {
	return b.reply(ctx, req, b.eventsText(), nil)
}

func (b *Bot) eventsText() string {
	evs := b.reminders.ListEvents()
	if len(evs) == 0 {
		return "📭 Нет активных ивентов."
	}
	now := b.reminders.Now()
	f := b.formatter()
	var sb strings.Builder
	sb.WriteString("📅 Активные ивенты:")
	for _, ev := range evs {
		fmt.Fprintf(&sb, "\n• %s: %s (%s)", ev.Name, f.Stamp(ev.Target, now), leftText(ev.Target.Sub(now)))
	}
	return sb.String()
}

func (b *Bot) cmdLeft(ctx context.Context, req *Request) error {
	name := strings.Join(req.Args, " ")
	if name == "" {
		return b.reply(ctx, req, "Использование: "+b.commands["left"].usage, nil)
	}
	d, err := b.reminders.TimeRemaining(name)
	if err == nil {
		var ev reminder.Event
		if ev, err = b.reminders.GetEvent(name); err == nil {
			return b.leftReply(ctx, req, ev, d)
		}
	}
	if errors.Is(err, reminder.ErrNotFound) {
		return b.reply(ctx, req, fmt.Sprintf("⚠️ Ивент '%s' не найден.", name), nil)
	}
	return err
}

func (b *Bot) leftReply(ctx context.Context, req *Request, ev reminder.Event, d time.Duration) error {
	if d <= 0 {
		return b.reply(ctx, req, fmt.Sprintf("🔥 '%s' уже начался.", ev.Name), nil)
	}
	text := fmt.Sprintf("⏳ До '%s' осталось %s (%s).", ev.Name, reminder.Remaining(d), b.formatter().Stamp(ev.Target, b.reminders.Now()))
	return b.reply(ctx, req, text, nil)
}

func (b *Bot) cmdGroup(ctx context.Context, req *Request) error {
	if len(req.Args) < 1 {
		return b.reply(ctx, req, "Использование: "+b.commands["group"].usage, nil)
	}
	return b.saveGroup(ctx, req, req.Args[0], req.Args[1:])
}

func (b *Bot) saveGroup(ctx context.Context, req *Request, name string, members []string) error {
	g, err := b.groups.Set(ctx, name, members)
	if errors.Is(err, groups.ErrInvalidName) {
		return b.reply(ctx, req, "⚠️ Некорректное название группы.", nil)
	}
	if err != nil {
		return err
	}
	return b.reply(ctx, req, fmt.Sprintf("✅ Группа '%s' сохранена: %s", g.Name, membersText(g.Members)), nil)
}

func membersText(m []string) string {
	if len(m) == 0 {
		return "Нет участников"
	}
	return strings.Join(m, " ")
}

func (b *Bot) cmdUngroup(ctx context.Context, req *Request) error {
	if len(req.Args) < 1 {
		return b.reply(ctx, req, "Использование: "+b.commands["ungroup"].usage, nil)
	}
	name := req.Args[0]
	err := b.groups.Delete(ctx, name)
	if errors.Is(err, groups.ErrNotFound) {
		return b.reply(ctx, req, fmt.Sprintf("⚠️ Группа '%s' не найдена.", name), nil)
	}
	if err != nil {
		return err
	}
	return b.reply(ctx, req, fmt.Sprintf("🗑 Группа '%s' удалена.", name), nil)
}

func (b *Bot) cmdGroups(ctx context.Context, req *Request) error {
	return b.reply(ctx, req, b.groupsText(), nil)
}

func (b *Bot) groupsText() string {
	list := b.groups.List()
	if len(list) == 0 {
		return "📭 Нет созданных групп."
	}
	var sb strings.Builder
	sb.WriteString("Список групп:")
	for _, g := range list {
		fmt.Fprintf(&sb, "\n- %s: %s", g.Name, membersText(g.Members))
	}
	return sb.String()
}

func (b *Bot) cmdCall(ctx context.Context, req *Request) error {
	return b.reply(ctx, req, b.callText(), nil)
}

func (b *Bot) callText() string {
	all := b.groups.All()
	if len(all) == 0 {
		return "⚠️ Нет участников для общего сбора."
	}
	return fmt.Sprintf("⚔️ Общий сбор! %s, все на старт! ⏳", strings.Join(all, " "))
}
