// Package session keeps the in-memory log of conversation turns for one
// editor session. The log does not survive a daemon restart; only the
// disk cache does.
package session

import (
	"sync"
	"time"

	inkling "github.com/greyfriar/inkling"
)

// DefaultMaxTurns is used when the store is created with a non-positive cap.
const DefaultMaxTurns = 10

// Turn is one prompt/response pair. Immutable once appended.
type Turn struct {
	Prompt    string
	Response  string
	Mode      inkling.Mode
	Timestamp time.Time
}

// Store is a bounded FIFO log of turns. All methods are safe for
// concurrent use; a single mutex serializes mutation (one editor session,
// no request pipeline).
type Store struct {
	mu       sync.Mutex
	maxTurns int
	turns    []Turn
}

// NewStore creates a store capped at maxTurns turns.
func NewStore(maxTurns int) *Store {
	if maxTurns <= 0 {
		maxTurns = DefaultMaxTurns
	}
	return &Store{maxTurns: maxTurns}
}

// Append adds a turn, evicting the oldest turns beyond the cap.
// It always succeeds.
func (s *Store) Append(t Turn) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.turns = append(s.turns, t)
	if over := len(s.turns) - s.maxTurns; over > 0 {
		s.turns = append(s.turns[:0:0], s.turns[over:]...)
	}
}

// History returns the most recent limit turns in chronological order
// (oldest first). If limit exceeds the available turns, all turns are
// returned. The result is a copy; iterating it does not consume the store.
func (s *Store) History(limit int) []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()

	if limit <= 0 || len(s.turns) == 0 {
		return nil
	}
	start := len(s.turns) - limit
	if start < 0 {
		start = 0
	}
	out := make([]Turn, len(s.turns)-start)
	copy(out, s.turns[start:])
	return out
}

// Len returns the number of turns currently held.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.turns)
}

// Clear removes all turns. Idempotent.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns = nil
}
