package session

import (
	"context"
	"sync"

	"github.com/promptly-chat/promptly/internal/conversation"
)

// MemoryStore keeps the set in process memory. It is used when history is
// disabled and in tests. Saves are deep copies, so later mutation of the
// caller's set is not visible until the next Save.
type MemoryStore struct {
	mu    sync.Mutex
	set   *conversation.Set
	saves int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Load(ctx context.Context) (*conversation.Set, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.set == nil {
		return conversation.NewSet(), nil
	}
	return s.set.Clone(), nil
}

func (s *MemoryStore) Save(ctx context.Context, set *conversation.Set) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.set = set.Clone()
	s.saves++
	return nil
}

// Saves returns how many times Save has been called.
func (s *MemoryStore) Saves() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}

func (s *MemoryStore) Close() error {
	return nil
}
