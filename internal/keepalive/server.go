// Package keepalive serves a tiny HTTP endpoint so hosting platforms that
// probe a port (Render, Railway, ...) keep the bot process alive.
package keepalive

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	rtsup "remindbot/internal/runtime/supervisor"
	"remindbot/pkg/logx"
)

var ginMode sync.Once

// Stats reports the number of active reminders for /health.
type Stats interface {
	Len() int
}

type Server struct {
	log     logx.Logger
	stats   Stats
	started time.Time

	mu   sync.Mutex
	srv  *http.Server
	ln   net.Listener
	sup  *rtsup.Supervisor
	addr string
}

func New(stats Stats, log logx.Logger) *Server {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Server{log: log.With(logx.String("comp", "keepalive")), stats: stats, started: time.Now()}
}

// ResolveAddr picks the listen address: explicit addr, then ":$PORT", then ":8080".
func ResolveAddr(addr string) string {
	if addr = strings.TrimSpace(addr); addr != "" {
		return addr
	}
	if p := strings.TrimSpace(os.Getenv("PORT")); p != "" {
		return ":" + p
	}
	return ":8080"
}

// Handler returns the gin router.
func (s *Server) Handler() http.Handler {
	ginMode.Do(func() { gin.SetMode(gin.ReleaseMode) })
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, "Бот живой!")
	})
	r.GET("/health", func(c *gin.Context) {
		events := 0
		if s.stats != nil {
			events = s.stats.Len()
		}
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
			"events": events,
			"uptime": time.Since(s.started).Round(time.Second).String(),
		})
	})
	return r
}

// Start binds the listener synchronously so a busy port fails fast, then
// serves under a supervisor bound to ctx.
func (s *Server) Start(ctx context.Context, addr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.srv != nil {
		return nil
	}
	addr = ResolveAddr(addr)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	sup := rtsup.New(ctx, rtsup.WithLogger(s.log), rtsup.WithCancelOnError(false))
	s.srv, s.ln, s.sup, s.addr = srv, ln, sup, ln.Addr().String()

	sup.Go("keepalive.serve", func(c context.Context) error {
		go func() {
			<-c.Done()
			sctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			_ = srv.Shutdown(sctx)
			cancel()
		}()
		err := srv.Serve(ln)
		if err == nil || errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})
	s.log.Info("keep-alive listening", logx.String("addr", s.addr))
	return nil
}

// Addr is the bound address, empty before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv, sup := s.srv, s.sup
	s.srv, s.ln, s.sup, s.addr = nil, nil, nil, ""
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	err := srv.Shutdown(ctx)
	sup.Cancel()
	_ = sup.Wait(ctx)
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
