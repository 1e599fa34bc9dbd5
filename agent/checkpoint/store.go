// Package checkpoint persists suspended RunStates so an approval can be
// resolved by a different goroutine or process than the one that started the
// run. The orchestrator is the only writer per run id.
package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	contractx "github.com/pitchaya-w/coachflow/agent/contract"
)

var ErrNotFound = errors.New("checkpoint not found")

// Store is the durable run-state contract.
type Store interface {
	Put(ctx context.Context, runID string, rs *contractx.RunState) error
	Get(ctx context.Context, runID string) (*contractx.RunState, error)
	Delete(ctx context.Context, runID string) error
}

// MemoryStore keeps serialized checkpoints in process memory. Entries hold
// JSON rather than pointers so a Get always reconstructs a fresh RunState,
// the same way the durable stores behave.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string][]byte)}
}

func (s *MemoryStore) Put(ctx context.Context, runID string, rs *contractx.RunState) error {
	if runID == "" {
		return fmt.Errorf("%w: run id is empty", contractx.ErrValidation)
	}
	payload, err := json.Marshal(rs)
	if err != nil {
		return fmt.Errorf("marshal run state: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[runID] = payload
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, runID string) (*contractx.RunState, error) {
	s.mu.RLock()
	payload, ok := s.entries[runID]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	var rs contractx.RunState
	if err := json.Unmarshal(payload, &rs); err != nil {
		return nil, fmt.Errorf("unmarshal run state: %w", err)
	}
	return &rs, nil
}

func (s *MemoryStore) Delete(ctx context.Context, runID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, runID)
	return nil
}
