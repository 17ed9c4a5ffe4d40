package bot

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"remindbot/internal/transport"
	"remindbot/pkg/logx"
)

// Request is one routed update: a command, a wizard reply or a button press.
type Request struct {
	Update       transport.Update
	Chat         transport.ChatTarget
	FromID       int64
	FromUsername string
	MessageID    int

	Command string   // "event", "cb:menu:close", "wizard:event"
	Args    []string // positionals after flag parsing
	Flags   map[string]string
	Bools   map[string]bool
	Text    string // raw text for wizard steps
	Payload string // callback payload

	ReqID  string
	Logger logx.Logger
}

type HandlerFunc func(ctx context.Context, req *Request) error

type Middleware func(next HandlerFunc) HandlerFunc

// Chain wraps h so that m[0] is the outermost middleware.
func Chain(h HandlerFunc, m ...Middleware) HandlerFunc {
	for i := len(m) - 1; i >= 0; i-- {
		h = m[i](h)
	}
	return h
}

func MWTimeout(d time.Duration) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) error {
			if d <= 0 {
				return next(ctx, req)
			}
			cctx, cancel := context.WithTimeout(ctx, d)
			defer cancel()
			return next(cctx, req)
		}
	}
}

func MWPanicRecover(log logx.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) (err error) {
			defer func() {
				if r := recover(); r != nil {
					reqLog(log, req).Error("panic recovered",
						logx.Any("panic", r),
						logx.String("stack", string(debug.Stack())),
					)
					err = fmt.Errorf("panic: %v", r)
				}
			}()
			return next(ctx, req)
		}
	}
}

func MWRequestLog(log logx.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) error {
			start := time.Now()
			err := next(ctx, req)
			d := time.Since(start)

			fields := []logx.Field{
				logx.String("kind", string(req.Update.Kind)),
				logx.String("cmd", req.Command),
				logx.Duration("dur", d),
			}
			l := reqLog(log, req)
			switch {
			case err != nil:
				l.Warn("request failed", append(fields, logx.Err(err))...)
			case d >= 750*time.Millisecond:
				l.Info("request ok", fields...)
			default:
				l.Debug("request ok", fields...)
			}
			return err
		}
	}
}

func reqLog(def logx.Logger, req *Request) logx.Logger {
	if req != nil && !req.Logger.IsZero() {
		return req.Logger
	}
	return def
}
