package keepalive

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"remindbot/pkg/logx"
)

type fixedStats int

func (f fixedStats) Len() int { return int(f) }

func TestRootAndHealth(t *testing.T) {
	t.Parallel()
	h := New(fixedStats(3), logx.Nop()).Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusOK || rec.Body.String() != "Бот живой!" {
		t.Fatalf("GET / = %d %q", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	var body struct {
		Status string `json:"status"`
		Events int    `json:"events"`
		Uptime string `json:"uptime"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Status != "ok" || body.Events != 3 || body.Uptime == "" {
		t.Fatalf("health = %+v", body)
	}
}

func TestResolveAddr(t *testing.T) {
	t.Setenv("PORT", "")
	if got := ResolveAddr(""); got != ":8080" {
		t.Fatalf("default = %q", got)
	}
	t.Setenv("PORT", "10000")
	if got := ResolveAddr(" "); got != ":10000" {
		t.Fatalf("PORT = %q", got)
	}
	if got := ResolveAddr("127.0.0.1:9000"); got != "127.0.0.1:9000" {
		t.Fatalf("explicit = %q", got)
	}
}

func TestStartServeStop(t *testing.T) {
	t.Parallel()
	s := New(fixedStats(0), logx.Nop())
	if err := s.Start(context.Background(), "127.0.0.1:0"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	resp, err := http.Get("http://" + s.Addr() + "/")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	b, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if string(b) != "Бот живой!" {
		t.Fatalf("body = %q", b)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if s.Addr() != "" {
		t.Fatal("addr kept after stop")
	}
}
