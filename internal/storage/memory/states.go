package memory

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/animus-labs/flowq/internal/domain"
	"github.com/animus-labs/flowq/internal/repo"
)

type stateEntry struct {
	state     domain.State
	expiresAt time.Time
}

// StateStore is a process-local repo.StateRepository.
type StateStore struct {
	mu      sync.Mutex
	entries map[string]stateEntry
	now     func() time.Time
}

var _ repo.StateRepository = (*StateStore)(nil)

func NewStateStore() *StateStore {
	return &StateStore{entries: make(map[string]stateEntry), now: time.Now}
}

// SetState merges state into the stored record. A non-positive ttl never expires.
func (s *StateStore) SetState(_ context.Context, state domain.State, ttl time.Duration) error {
	id := strings.TrimSpace(state.MessageID)
	if id == "" {
		return errors.New("message_id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if prev, ok := s.entries[id]; ok && !prev.expired(now) {
		state = state.Merge(prev.state)
	}
	entry := stateEntry{state: state}
	if ttl > 0 {
		entry.expiresAt = now.Add(ttl)
	}
	s.entries[id] = entry
	return nil
}

func (s *StateStore) GetState(_ context.Context, messageID string) (domain.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[messageID]
	if !ok || entry.expired(s.now()) {
		return domain.State{}, repo.ErrNotFound
	}
	return entry.state, nil
}

// GetStates returns every live record ordered by message id.
func (s *StateStore) GetStates(_ context.Context) ([]domain.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	out := make([]domain.State, 0, len(s.entries))
	for _, entry := range s.entries {
		if !entry.expired(now) {
			out = append(out, entry.state)
		}
	}
	slices.SortFunc(out, func(a, b domain.State) int {
		return strings.Compare(a.MessageID, b.MessageID)
	})
	return out, nil
}

// PurgeExpired drops expired records and reports how many were removed.
func (s *StateStore) PurgeExpired(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	var removed int64
	for id, entry := range s.entries {
		if entry.expired(now) {
			delete(s.entries, id)
			removed++
		}
	}
	return removed, nil
}

func (e stateEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}
