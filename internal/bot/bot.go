// Package bot is the Telegram command layer: it routes updates to command,
// button and wizard handlers, enforces admin access and talks to the reminder
// service and the group roster.
package bot

import (
	"context"
	"runtime"
	"runtime/debug"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	tele "gopkg.in/telebot.v4"

	"remindbot/internal/groups"
	"remindbot/internal/reminder"
	rtsup "remindbot/internal/runtime/supervisor"
	"remindbot/internal/transport"
	"remindbot/pkg/logx"
)

type Config struct {
	OwnerIDs       []int64
	AdminUsernames []string
	CommandTimeout time.Duration
	WizardTimeout  time.Duration
	Workers        int
	Location       *time.Location
	ZoneLabel      string
}

func (c Config) normalize() Config {
	if c.CommandTimeout <= 0 {
		c.CommandTimeout = 15 * time.Second
	}
	if c.WizardTimeout <= 0 {
		c.WizardTimeout = 5 * time.Minute
	}
	if c.Workers <= 0 {
		c.Workers = max(2, runtime.NumCPU())
	}
	if c.Location == nil {
		c.Location = time.UTC
	}
	c.OwnerIDs = slices.Clone(c.OwnerIDs)
	names := make([]string, 0, len(c.AdminUsernames))
	for _, n := range c.AdminUsernames {
		if n = normUsername(n); n != "" {
			names = append(names, n)
		}
	}
	c.AdminUsernames = names
	return c
}

type Deps struct {
	Adapter   transport.Adapter
	Reminders *reminder.Service
	Groups    *groups.Roster
	Log       logx.Logger
}

type Bot struct {
	adapter   transport.Adapter
	reminders *reminder.Service
	groups    *groups.Roster
	log       logx.Logger

	cfgMu sync.RWMutex
	cfg   Config

	commands map[string]*command
	ordered  []*command

	wizards *wizards

	runMu   sync.Mutex
	running bool
	jobs    chan func()
}

func New(cfg Config, d Deps) *Bot {
	log := d.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	b := &Bot{
		adapter:   d.Adapter,
		reminders: d.Reminders,
		groups:    d.Groups,
		log:       log.With(logx.String("comp", "bot")),
		cfg:       cfg.normalize(),
		wizards:   newWizards(),
	}
	b.registerCommands()
	return b
}

// Apply swaps admins, timeouts and display zone (hot reload). Workers take
// effect on the next Run.
func (b *Bot) Apply(cfg Config) {
	cfg = cfg.normalize()
	b.cfgMu.Lock()
	b.cfg = cfg
	b.cfgMu.Unlock()
	if len(cfg.OwnerIDs) == 0 && len(cfg.AdminUsernames) == 0 {
		b.log.Warn("no admins configured; every user may manage events and groups")
	}
}

func (b *Bot) config() Config {
	b.cfgMu.RLock()
	defer b.cfgMu.RUnlock()
	return b.cfg
}

func (b *Bot) formatter() reminder.Formatter {
	c := b.config()
	return reminder.Formatter{Location: c.Location, ZoneLabel: c.ZoneLabel}
}

// isAdmin matches the sender against the configured user ids and usernames.
// With no admins configured every user is an admin.
func (b *Bot) isAdmin(id int64, username string) bool {
	c := b.config()
	if len(c.OwnerIDs) == 0 && len(c.AdminUsernames) == 0 {
		return true
	}
	if id != 0 && slices.Contains(c.OwnerIDs, id) {
		return true
	}
	u := normUsername(username)
	return u != "" && slices.Contains(c.AdminUsernames, u)
}

// adminContact is the username shown in access-denied replies.
func (b *Bot) adminContact() string {
	if c := b.config(); len(c.AdminUsernames) > 0 {
		return "@" + c.AdminUsernames[0]
	}
	return "@admin"
}

func normUsername(s string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(s), "@"))
}

// Run dispatches updates to a bounded worker pool until ctx is done or the
// channel is closed. Command menu publication happens once at start.
func (b *Bot) Run(ctx context.Context, updates <-chan transport.Update) error {
	cfg := b.config()
	sup := rtsup.New(ctx, rtsup.WithLogger(b.log), rtsup.WithCancelOnError(false))
	jobs := make(chan func(), 256)

	b.runMu.Lock()
	b.running, b.jobs = true, jobs
	b.runMu.Unlock()

	for i := 0; i < cfg.Workers; i++ {
		idx := i
		sup.GoRestart("command.worker."+strconv.Itoa(idx), func(c context.Context) error {
			for {
				select {
				case <-c.Done():
					return nil
				case job, ok := <-jobs:
					if !ok {
						return nil
					}
					b.runJob(idx, job)
				}
			}
		},
			rtsup.WithRestartBackoff(200*time.Millisecond, 5*time.Second),
			rtsup.WithPublishFirstError(true),
		)
	}
	sup.Go0("wizard.janitor", func(c context.Context) { b.sweepWizards(c) })
	if up, ok := b.adapter.(transport.CommandMenuUpdater); ok {
		sup.Go("telegram.menu.update", func(c context.Context) error {
			mctx, cancel := context.WithTimeout(c, 5*time.Second)
			defer cancel()
			if err := up.UpdateMenuCommands(mctx, b.menuCommands()); err != nil {
				b.log.Warn("menu commands update failed", logx.Err(err))
			}
			return nil
		})
	}
	b.log.Info("command dispatcher started", logx.Int("workers", cfg.Workers), logx.Int("job_queue_cap", cap(jobs)))

	defer func() {
		b.runMu.Lock()
		b.running = false
		close(jobs)
		b.runMu.Unlock()
		wctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		_ = sup.Wait(wctx)
		cancel()
		sup.Cancel()
		b.log.Info("command dispatcher stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case up, ok := <-updates:
			if !ok {
				return nil
			}
			if job := b.route(ctx, up); job != nil && !b.enqueue(job) {
				b.busy(ctx, up)
			}
		}
	}
}

func (b *Bot) runJob(worker int, job func()) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("panic in command job", logx.Int("worker", worker), logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
		}
	}()
	job()
}

func (b *Bot) enqueue(job func()) bool {
	b.runMu.Lock()
	defer b.runMu.Unlock()
	if !b.running {
		return false
	}
	select {
	case b.jobs <- job:
		return true
	default:
		return false
	}
}

func (b *Bot) busy(ctx context.Context, up transport.Update) {
	switch {
	case up.Message != nil:
		_, _ = b.adapter.SendText(ctx, transport.ChatTarget{ChatID: up.Message.ChatID, ThreadID: up.Message.ThreadID}, "⏳ Бот занят, попробуйте ещё раз.", nil)
	case up.Callback != nil:
		_ = b.adapter.AnswerCallback(ctx, up.Callback.ID, "⏳ Бот занят")
	}
}

// Handle routes and runs a single update on the calling goroutine.
func (b *Bot) Handle(ctx context.Context, up transport.Update) {
	if job := b.route(ctx, up); job != nil {
		job()
	}
}

// route turns an update into a job, or nil when there is nothing to do.
func (b *Bot) route(ctx context.Context, up transport.Update) func() {
	switch up.Kind {
	case transport.UpdateMessage:
		if up.Message != nil {
			return b.routeMessage(ctx, up)
		}
	case transport.UpdateCallback:
		if up.Callback != nil {
			return b.routeCallback(ctx, up)
		}
	}
	return nil
}

func (b *Bot) newRequest(up transport.Update, chat transport.ChatTarget, fromID int64, username, cmd string) *Request {
	rid := newReqID()
	return &Request{
		Update:       up,
		Chat:         chat,
		FromID:       fromID,
		FromUsername: username,
		Command:      cmd,
		ReqID:        rid,
		Logger: b.log.With(
			logx.String("rid", rid),
			logx.Int64("chat_id", chat.ChatID),
			logx.Int("thread_id", chat.ThreadID),
			logx.Int64("from_id", fromID),
			logx.String("cmd", cmd),
		),
	}
}

func (b *Bot) wrap(h HandlerFunc) HandlerFunc {
	return Chain(h,
		MWPanicRecover(b.log),
		MWRequestLog(b.log),
		MWTimeout(b.config().CommandTimeout),
	)
}

func (b *Bot) routeMessage(ctx context.Context, up transport.Update) func() {
	msg := up.Message
	chat := transport.ChatTarget{ChatID: msg.ChatID, ThreadID: msg.ThreadID}
	text := strings.TrimSpace(msg.Text)

	parts := tokenize(text)
	word, isCmd := "", false
	if len(parts) > 0 {
		word, isCmd = commandWord(parts[0])
	}
	if !isCmd {
		key := wizardKey{chat: msg.ChatID, user: msg.FromID}
		if !b.wizards.active(key, b.reminders.Now(), b.config().WizardTimeout) {
			return nil
		}
		req := b.newRequest(up, chat, msg.FromID, msg.FromUsername, "wizard")
		req.Text, req.MessageID = text, msg.ID
		h := b.wrap(b.wizardStep)
		return func() { _ = h(ctx, req) }
	}

	cmd, ok := b.commands[word]
	if !ok {
		// Commands of other bots in the same group are not ours to answer.
		return nil
	}
	req := b.newRequest(up, chat, msg.FromID, msg.FromUsername, cmd.name)
	req.MessageID = msg.ID
	req.Args, req.Flags, req.Bools = parseFlags(parts[1:])

	if cmd.admin && !b.isAdmin(msg.FromID, msg.FromUsername) {
		return func() { b.deny(ctx, chat, cmd.denied) }
	}
	h := b.wrap(cmd.handle)
	return func() { _ = h(ctx, req) }
}

func (b *Bot) routeCallback(ctx context.Context, up transport.Update) func() {
	cb := up.Callback
	chat := transport.ChatTarget{ChatID: cb.ChatID, ThreadID: cb.ThreadID}
	route, payload, ok := b.callbackRoute(cb.Data)
	if !ok {
		return func() { _ = b.adapter.AnswerCallback(ctx, cb.ID, "") }
	}
	req := b.newRequest(up, chat, cb.FromID, cb.FromUsername, "cb:"+route.key)
	req.MessageID, req.Payload = cb.MessageID, payload

	if route.admin && !b.isAdmin(cb.FromID, cb.FromUsername) {
		return func() {
			_ = b.adapter.AnswerCallback(ctx, cb.ID, "")
			b.deny(ctx, chat, route.denied)
		}
	}
	h := b.wrap(route.handle)
	return func() {
		_ = h(ctx, req)
		// Stops the loading spinner on the button.
		_ = b.adapter.AnswerCallback(ctx, cb.ID, "")
	}
}

func (b *Bot) deny(ctx context.Context, chat transport.ChatTarget, what string) {
	if what == "" {
		what = "этой команды"
	}
	_, _ = b.adapter.SendText(ctx, chat, "⚠️ Для "+what+" обратитесь к "+b.adminContact(), nil)
}

func (b *Bot) reply(ctx context.Context, req *Request, text string, kb *tele.ReplyMarkup) error {
	opt := &transport.SendOptions{DisablePreview: true}
	if kb != nil {
		opt.ReplyMarkupAdapter = kb
	}
	_, err := b.adapter.SendText(ctx, req.Chat, text, opt)
	return err
}
