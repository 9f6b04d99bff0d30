package projection

import (
	"sync"

	"conductor-console/internal/auth/models"
)

// maxHistory bounds the event kinds kept for inspection.
const maxHistory = 64

// Listener receives every state change together with the event causing it.
type Listener func(ev models.Event, state State)

// Store is the single writer of a projected session. Each Dispatch is
// reduced and delivered to listeners before the next one is accepted.
type Store struct {
	mu        sync.Mutex
	state     State
	listeners map[int]Listener
	nextID    int
	history   []models.EventKind
}

func NewStore() *Store {
	return &Store{state: Initial(), listeners: make(map[int]Listener)}
}

// Dispatch applies ev and notifies listeners. Listeners run under the
// store's lock and must not dispatch.
func (s *Store) Dispatch(ev models.Event) State {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state = Reduce(s.state, ev)
	s.history = append(s.history, ev.Kind())
	if len(s.history) > maxHistory {
		s.history = s.history[len(s.history)-maxHistory:]
	}
	snapshot := s.state.Clone()
	for _, l := range s.listeners {
		l(ev, snapshot.Clone())
	}
	return snapshot
}

// Snapshot returns a copy of the current state.
func (s *Store) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone()
}

// History lists the kinds of the most recent dispatched events.
func (s *Store) History() []models.EventKind {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.EventKind(nil), s.history...)
}

// Subscribe registers l and returns a function removing it.
func (s *Store) Subscribe(l Listener) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = l
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.listeners, id)
	}
}
