// Package memory implements the append-only conversation log. Turns are keyed
// by (user, session) and handed to the planner/responder as an explicit
// bounded window, never held as ambient state.
package memory

import (
	"context"
	"fmt"
	"sync"

	contractx "github.com/pitchaya-w/coachflow/agent/contract"
)

// InMemoryStore keeps turns per session key in process memory.
type InMemoryStore struct {
	mu    sync.RWMutex
	turns map[contractx.SessionKey][]contractx.Turn
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{turns: make(map[contractx.SessionKey][]contractx.Turn)}
}

func (s *InMemoryStore) Append(ctx context.Context, key contractx.SessionKey, turn contractx.Turn) error {
	if key.UserID == "" || key.SessionID == "" {
		return fmt.Errorf("%w: session key is incomplete", contractx.ErrValidation)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns[key] = append(s.turns[key], turn)
	return nil
}

func (s *InMemoryStore) Recent(ctx context.Context, key contractx.SessionKey, limit int) ([]contractx.Turn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	turns := s.turns[key]
	if limit > 0 && len(turns) > limit {
		turns = turns[len(turns)-limit:]
	}
	out := make([]contractx.Turn, len(turns))
	copy(out, turns)
	return out, nil
}
