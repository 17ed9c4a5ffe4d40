package reminder

import (
	"slices"
	"sync"
)

// Store is the in-memory registry of active events. Every operation, and every
// scheduler pass, runs under a single mutex.
type Store struct {
	mu     sync.Mutex
	events map[string]*Event
	order  []string // keys in insertion order
}

// NewStore returns an empty event store.
func NewStore() *Store {
	return &Store{events: map[string]*Event{}}
}

// Create inserts ev or replaces the event with the same key, resetting its
// fired markers. A replaced event moves to the end of the listing order.
func (s *Store) Create(ev Event) (replaced bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.putLocked(ev)
}

// CreateNew inserts ev only when no event with the same key exists.
func (s *Store) CreateNew(ev Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.events[ev.Key()]; ok {
		return false
	}
	s.putLocked(ev)
	return true
}

func (s *Store) putLocked(ev Event) bool {
	key := ev.Key()
	cp := ev.clone()
	cp.Alerts = NormalizeAlerts(cp.Alerts)
	cp.Target = cp.Target.UTC()
	cp.state = firedState{thresholds: map[int]bool{}}

	_, existed := s.events[key]
	if existed {
		s.dropOrderLocked(key)
	}
	s.events[key] = &cp
	s.order = append(s.order, key)
	return existed
}

// Cancel removes the named event and reports whether it existed.
func (s *Store) Cancel(name string) bool { return s.Remove(name) }

// Remove is Cancel under the name the scheduler uses for reaping.
func (s *Store) Remove(name string) bool {
	key := NormalizeName(name)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.events[key]; !ok {
		return false
	}
	delete(s.events, key)
	s.dropOrderLocked(key)
	return true
}

func (s *Store) dropOrderLocked(key string) {
	if i := slices.Index(s.order, key); i >= 0 {
		s.order = slices.Delete(s.order, i, i+1)
	}
}

// Get returns a copy of the event stored under the normalized name.
func (s *Store) Get(name string) (Event, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ev, ok := s.events[NormalizeName(name)]
	if !ok {
		return Event{}, false
	}
	return ev.clone(), true
}

// List returns copies of all events in insertion order.
func (s *Store) List() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, 0, len(s.order))
	for _, key := range s.order {
		out = append(out, s.events[key].clone())
	}
	return out
}

// Clear removes every event and returns how many there were.
func (s *Store) Clear() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.events)
	s.events = map[string]*Event{}
	s.order = nil
	return n
}

// Len reports the number of live events.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

// pass runs fn over every live event under the lock. Events for which fn
// returns true are removed after the iteration.
func (s *Store) pass(fn func(ev *Event) (remove bool)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var reap []string
	for _, key := range s.order {
		if fn(s.events[key]) {
			reap = append(reap, key)
		}
	}
	for _, key := range reap {
		delete(s.events, key)
		s.dropOrderLocked(key)
	}
}
