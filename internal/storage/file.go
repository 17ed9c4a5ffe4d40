package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"remindbot/pkg/logx"
)

// fileStore keeps rosters in a flat JSON object and the audit log as JSON Lines.
//
// Files:
//   - <path> when it ends in .json, otherwise <prefix>.groups.json
//   - <prefix>.audit.jsonl (append-only)
type fileStore struct {
	log logx.Logger

	mu sync.Mutex

	groupsPath string
	groups     map[string][]string
	auditFile  *os.File
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}

	dir := filepath.Dir(path)
	base := filepath.Base(path)
	ext := filepath.Ext(base)
	prefix := filepath.Join(dir, strings.TrimSuffix(base, ext))

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	groupsPath := prefix + ".groups.json"
	if strings.EqualFold(ext, ".json") {
		groupsPath = path
	}
	groups, err := readGroupsFile(groupsPath)
	if err != nil {
		return nil, err
	}

	af, err := os.OpenFile(prefix+".audit.jsonl", os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}
	log.Debug("file storage opened", logx.String("groups", groupsPath), logx.Int("group_count", len(groups)))

	return &fileStore{
		log:        log,
		groupsPath: groupsPath,
		groups:     groups,
		auditFile:  af,
	}, nil
}

func readGroupsFile(path string) (map[string][]string, error) {
	groups := map[string][]string{}
	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return groups, nil
	}
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(b)) == 0 {
		return groups, nil
	}
	if err := json.Unmarshal(b, &groups); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return groups, nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.auditFile == nil {
		return nil
	}
	err := s.auditFile.Close()
	s.auditFile = nil
	return err
}

func (s *fileStore) LoadGroups(ctx context.Context) (map[string][]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string][]string, len(s.groups))
	for k, v := range s.groups {
		out[k] = copyMembers(v)
	}
	return out, nil
}

func (s *fileStore) SaveGroup(ctx context.Context, name string, members []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.auditFile == nil {
		return ErrClosed
	}
	prev, had := s.groups[name]
	s.groups[name] = copyMembers(members)
	if err := s.flushGroupsLocked(); err != nil {
		if had {
			s.groups[name] = prev
		} else {
			delete(s.groups, name)
		}
		return err
	}
	return nil
}

func (s *fileStore) DeleteGroup(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.auditFile == nil {
		return ErrClosed
	}
	prev, had := s.groups[name]
	if !had {
		return nil
	}
	delete(s.groups, name)
	if err := s.flushGroupsLocked(); err != nil {
		s.groups[name] = prev
		return err
	}
	return nil
}

// flushGroupsLocked rewrites the groups file via tmp + rename so a crash never
// leaves a truncated roster behind.
func (s *fileStore) flushGroupsLocked() error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(s.groups); err != nil {
		return err
	}

	tmp := s.groupsPath + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, s.groupsPath); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}

func (s *fileStore) AppendAudit(ctx context.Context, e AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.auditFile == nil {
		return ErrClosed
	}
	enc := json.NewEncoder(s.auditFile)
	enc.SetEscapeHTML(false)
	return enc.Encode(e)
}
