// Package groups keeps named member lists ("tanks" -> @a @b) used to address
// reminders. Group references are flattened when an event is created.
package groups

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"
	"unicode/utf8"

	"remindbot/internal/eventbus"
	"remindbot/internal/storage"
	"remindbot/pkg/logx"
)

var (
	ErrNotFound    = errors.New("group not found")
	ErrInvalidName = errors.New("invalid group name")
)

const maxNameRunes = 32

type Group struct {
	Name    string
	Members []string
}

// Roster is a concurrency-safe cache of groups with write-through to storage.
type Roster struct {
	st  storage.Store
	bus eventbus.Bus
	log logx.Logger

	mu     sync.RWMutex
	groups map[string][]string
}

func New(st storage.Store, bus eventbus.Bus, log logx.Logger) *Roster {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Roster{st: st, bus: bus, log: log.With(logx.String("comp", "groups")), groups: map[string][]string{}}
}

// Load replaces the cache with the stored groups.
func (r *Roster) Load(ctx context.Context) error {
	if r.st == nil {
		return nil
	}
	stored, err := r.st.LoadGroups(ctx)
	if err != nil {
		return fmt.Errorf("load groups: %w", err)
	}
	m := make(map[string][]string, len(stored))
	for name, members := range stored {
		m[normalize(name)] = cleanMembers(members)
	}
	r.mu.Lock()
	r.groups = m
	r.mu.Unlock()
	r.log.Info("groups loaded", logx.Int("count", len(m)))
	return nil
}

func normalize(name string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(name), "#"))
}

// cleanMembers trims, drops empties and duplicates and adds a missing "@".
func cleanMembers(in []string) []string {
	out := make([]string, 0, len(in))
	for _, m := range in {
		m = strings.TrimSpace(m)
		if m == "" {
			continue
		}
		if !strings.HasPrefix(m, "@") {
			m = "@" + m
		}
		if !slices.Contains(out, m) {
			out = append(out, m)
		}
	}
	return out
}

// Set creates or replaces a group.
func (r *Roster) Set(ctx context.Context, name string, members []string) (Group, error) {
	key := normalize(name)
	if key == "" || utf8.RuneCountInString(key) > maxNameRunes || strings.ContainsAny(key, " \t\n") {
		return Group{}, fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	clean := cleanMembers(members)
	if r.st != nil {
		if err := r.st.SaveGroup(ctx, key, clean); err != nil {
			return Group{}, fmt.Errorf("save group %s: %w", key, err)
		}
	}
	r.mu.Lock()
	r.groups[key] = clean
	r.mu.Unlock()

	r.log.Info("group saved", logx.String("group", key), logx.Int("members", len(clean)))
	r.publish(eventbus.TypeGroupSaved, map[string]any{"name": key, "members": len(clean)})
	return Group{Name: key, Members: slices.Clone(clean)}, nil
}

func (r *Roster) Delete(ctx context.Context, name string) error {
	key := normalize(name)
	r.mu.RLock()
	_, ok := r.groups[key]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	if r.st != nil {
		if err := r.st.DeleteGroup(ctx, key); err != nil {
			return fmt.Errorf("delete group %s: %w", key, err)
		}
	}
	r.mu.Lock()
	delete(r.groups, key)
	r.mu.Unlock()

	r.log.Info("group deleted", logx.String("group", key))
	r.publish(eventbus.TypeGroupDeleted, map[string]any{"name": key})
	return nil
}

func (r *Roster) Get(name string) (Group, bool) {
	key := normalize(name)
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.groups[key]
	if !ok {
		return Group{}, false
	}
	return Group{Name: key, Members: slices.Clone(m)}, true
}

// List returns all groups sorted by name.
func (r *Roster) List() []Group {
	r.mu.RLock()
	out := make([]Group, 0, len(r.groups))
	for name, m := range r.groups {
		out = append(out, Group{Name: name, Members: slices.Clone(m)})
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// All returns every member of every group once, in group name order.
func (r *Roster) All() []string {
	var out []string
	for _, g := range r.List() {
		for _, m := range g.Members {
			if !slices.Contains(out, m) {
				out = append(out, m)
			}
		}
	}
	return out
}

// Resolve replaces every token naming a known group (optionally "#name") with
// its members. Other tokens pass through; duplicates are dropped in order.
func (r *Roster) Resolve(tokens []string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(tokens))
	add := func(s string) {
		if s != "" && !slices.Contains(out, s) {
			out = append(out, s)
		}
	}
	for _, tok := range tokens {
		tok = strings.TrimSpace(tok)
		if !strings.HasPrefix(tok, "@") {
			if members, ok := r.groups[normalize(tok)]; ok {
				for _, m := range members {
					add(m)
				}
				continue
			}
		}
		add(tok)
	}
	return out
}

func (r *Roster) publish(typ string, data map[string]any) {
	if r.bus == nil {
		return
	}
	r.bus.Publish(eventbus.Event{Type: typ, Data: data})
}
