package app

import (
	"context"
	"fmt"
	"time"

	"remindbot/internal/eventbus"
	"remindbot/internal/notifier"
	"remindbot/internal/storage"
	"remindbot/pkg/logx"
)

// auditPrefixes selects the bus events that are persisted.
var auditPrefixes = []string{"reminder.", "group.", eventbus.TypeNotifyFailed}

// runAudit copies lifecycle events from the bus into the store until ctx is
// done. Write failures are logged and never block the publishers.
func runAudit(ctx context.Context, bus eventbus.Bus, st storage.Store, log logx.Logger) {
	events, unsub := bus.Subscribe(256, auditPrefixes...)
	defer unsub()
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			wctx, cancel := context.WithTimeout(ctx, 2*time.Second)
			err := st.AppendAudit(wctx, auditEntry(e))
			cancel()
			if err != nil {
				log.Debug("audit append failed", logx.String("type", e.Type), logx.Err(err))
			}
		}
	}
}

func auditEntry(e eventbus.Event) storage.AuditEntry {
	ae := storage.AuditEntry{At: e.Time.UTC(), Kind: e.Type}
	switch d := e.Data.(type) {
	case map[string]any:
		ae.Subject = str(d["name"])
		ae.EventID = str(d["id"])
		ae.ActorID = i64(d["actor_id"])
		ae.ChatID = i64(d["chat_id"])
		if v, ok := d["thread_id"].(int); ok {
			ae.ThreadID = v
		}
		ae.Error = str(d["err"])
		switch {
		case d["marker"] != nil:
			ae.Detail = "marker=" + str(d["marker"])
		case d["members"] != nil:
			ae.Detail = "members=" + str(d["members"])
		case d["count"] != nil:
			ae.Detail = "count=" + str(d["count"])
		}
	case notifier.NotificationEvent:
		ae.ChatID = d.ChatID
		ae.ThreadID = d.ThreadID
		ae.Error = d.Error
		ae.Detail = fmt.Sprintf("attempts=%d", d.Attempts)
	}
	return ae
}

func str(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

func i64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	}
	return 0
}
