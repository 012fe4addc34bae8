// Package alerts keeps the bounded window of recent alerts the dashboard
// and SOAR engine read from.
package alerts

import (
	"sync"

	"github.com/shadowhunt/backend/internal/core"
)

// DefaultCapacity is the alert window size.
const DefaultCapacity = 100

// Store is a thread-safe bounded ring: when full, the oldest alert is
// dropped first.
type Store struct {
	mu    sync.RWMutex
	ring  []core.Alert
	start int // index of the oldest alert
	count int
	byID  map[string]int // alert id -> ring slot
}

// NewStore returns a ring of the given capacity (DefaultCapacity if <= 0).
func NewStore(capacity int) *Store {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Store{
		ring: make([]core.Alert, capacity),
		byID: make(map[string]int),
	}
}

// Add appends an alert, evicting the oldest when the window is full.
func (s *Store) Add(a core.Alert) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.count == len(s.ring) {
		evicted := s.ring[s.start]
		delete(s.byID, evicted.ID)
		s.start = (s.start + 1) % len(s.ring)
		s.count--
	}
	slot := (s.start + s.count) % len(s.ring)
	s.ring[slot] = a
	s.byID[a.ID] = slot
	s.count++
}

// List returns a snapshot in insertion order, oldest first.
func (s *Store) List() []core.Alert {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]core.Alert, s.count)
	for i := 0; i < s.count; i++ {
		out[i] = s.ring[(s.start+i)%len(s.ring)]
	}
	return out
}

// Get returns the alert with the given id, if still in the window.
func (s *Store) Get(id string) (core.Alert, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	slot, ok := s.byID[id]
	if !ok {
		return core.Alert{}, false
	}
	return s.ring[slot], true
}

// Len returns the number of alerts currently held.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.count
}
