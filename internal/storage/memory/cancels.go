package memory

import (
	"context"
	"sync"

	"github.com/animus-labs/flowq/internal/repo"
)

// CancelStore records cancellation requests in process memory.
type CancelStore struct {
	mu       sync.RWMutex
	canceled map[string]struct{}
}

var _ repo.CancelRepository = (*CancelStore)(nil)

func NewCancelStore() *CancelStore {
	return &CancelStore{canceled: make(map[string]struct{})}
}

func (s *CancelStore) Cancel(_ context.Context, messageIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range messageIDs {
		if id != "" {
			s.canceled[id] = struct{}{}
		}
	}
	return nil
}

func (s *CancelStore) IsCanceled(_ context.Context, messageID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.canceled[messageID]
	return ok, nil
}
