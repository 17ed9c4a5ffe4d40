package storage

import (
	"context"
	"sync"
)

type memStore struct {
	mu     sync.Mutex
	groups map[string][]string
	audit  []AuditEntry
}

func newMemStore() *memStore { return &memStore{groups: map[string][]string{}} }

func (s *memStore) LoadGroups(ctx context.Context) (map[string][]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string][]string, len(s.groups))
	for k, v := range s.groups {
		out[k] = copyMembers(v)
	}
	return out, nil
}

func (s *memStore) SaveGroup(ctx context.Context, name string, members []string) error {
	s.mu.Lock()
	s.groups[name] = copyMembers(members)
	s.mu.Unlock()
	return nil
}

func (s *memStore) DeleteGroup(ctx context.Context, name string) error {
	s.mu.Lock()
	delete(s.groups, name)
	s.mu.Unlock()
	return nil
}

// AppendAudit keeps only the most recent entries.
func (s *memStore) AppendAudit(ctx context.Context, e AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audit = append(s.audit, e)
	if len(s.audit) > 500 {
		s.audit = append(s.audit[:0:0], s.audit[len(s.audit)-500:]...)
	}
	return nil
}

func (s *memStore) Close() error { return nil }
