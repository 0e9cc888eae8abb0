package app

import (
	"sync"

	"algoTradeBot/internal/domain"
)

// SwingPositionStore tracks open swing positions by instrument token. The
// portfolio engine reads it for exposure checks while scan workers add and
// remove entries concurrently.
type SwingPositionStore struct {
	mu        sync.Mutex
	positions map[string]domain.SwingPosition
}

// NewSwingPositionStore creates an empty store.
func NewSwingPositionStore() *SwingPositionStore {
	return &SwingPositionStore{positions: make(map[string]domain.SwingPosition)}
}

// Set records the open position for its token, replacing any previous entry.
func (s *SwingPositionStore) Set(pos domain.SwingPosition) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.positions[pos.Token] = pos
}

// Remove deletes the position for the token, reporting whether it existed.
func (s *SwingPositionStore) Remove(token string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.positions[token]
	delete(s.positions, token)
	return ok
}

// Get returns the position for the token.
func (s *SwingPositionStore) Get(token string) (domain.SwingPosition, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pos, ok := s.positions[token]
	return pos, ok
}

// All returns a copy of the open positions in no particular order.
func (s *SwingPositionStore) All() []domain.SwingPosition {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.SwingPosition, 0, len(s.positions))
	for _, pos := range s.positions {
		out = append(out, pos)
	}
	return out
}

// Count returns the number of open positions.
func (s *SwingPositionStore) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.positions)
}
