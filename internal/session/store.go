package session

import (
	"sync"

	"go.uber.org/zap"
)

// Store serialises transitions of a single session.
type Store struct {
	mu     sync.Mutex
	state  State
	logger *zap.Logger
}

// NewStore creates a store holding the initial session state.
func NewStore(logger *zap.Logger) *Store {
	return &Store{state: New(), logger: logger.Named("session")}
}

// Dispatch applies ev and returns the resulting state.
func (s *Store) Dispatch(ev Event) State {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.state
	s.state = Reduce(prev, ev)
	if s.state.Status != prev.Status {
		s.logger.Debug("status changed",
			zap.Stringer("from", prev.Status),
			zap.Stringer("to", s.state.Status),
			zap.Uint64("generation", s.state.Generation),
		)
	}
	return s.state
}

// Snapshot returns the current state.
func (s *Store) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}
