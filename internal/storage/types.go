package storage

import (
	"context"
	"errors"
	"time"
)

var ErrClosed = errors.New("storage closed")

// Config configures storage.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Store is the persistence API used by the roster and the audit recorder.
type Store interface {
	// LoadGroups returns every stored group keyed by name.
	LoadGroups(ctx context.Context) (map[string][]string, error)
	SaveGroup(ctx context.Context, name string, members []string) error
	DeleteGroup(ctx context.Context, name string) error
	AppendAudit(ctx context.Context, e AuditEntry) error
	Close() error
}

// AuditEntry records a lifecycle event (creation, cancel, delivery failure...).
// Keep it compact and schema-stable.
type AuditEntry struct {
	At            time.Time `json:"at"`
	Kind          string    `json:"kind"`
	Subject       string    `json:"subject,omitempty"`
	EventID       string    `json:"event_id,omitempty"`
	ActorID       int64     `json:"actor_id,omitempty"`
	ActorUsername string    `json:"actor_username,omitempty"`
	ChatID        int64     `json:"chat_id,omitempty"`
	ThreadID      int       `json:"thread_id,omitempty"`
	Detail        string    `json:"detail,omitempty"`
	Error         string    `json:"error,omitempty"`
}
