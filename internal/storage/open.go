package storage

import (
	"errors"
	"strings"

	"remindbot/pkg/logx"
)

// Open initializes the configured store. An empty driver or "none" yields the
// in-memory store.
func Open(cfg Config, log logx.Logger) (Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	switch driver {
	case "", "none", "memory":
		return newMemStore(), nil
	case "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}

func copyMembers(in []string) []string {
	out := make([]string, len(in))
	copy(out, in)
	return out
}
