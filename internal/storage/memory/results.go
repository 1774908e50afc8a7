package memory

import (
	"context"
	"sync"
	"time"

	"github.com/animus-labs/flowq/internal/collection"
)

// ResultStore keeps outcomes in process memory. Blocking reads wake up on
// every write instead of polling.
type ResultStore struct {
	mu       sync.Mutex
	outcomes map[string]collection.Outcome
	changed  chan struct{}
	now      func() time.Time
}

var (
	_ collection.Backend = (*ResultStore)(nil)
	_ collection.Storer  = (*ResultStore)(nil)
)

func NewResultStore() *ResultStore {
	return &ResultStore{
		outcomes: make(map[string]collection.Outcome),
		changed:  make(chan struct{}),
		now:      time.Now,
	}
}

func (s *ResultStore) StoreResult(_ context.Context, messageID string, value any) error {
	s.put(collection.ValueOutcome(messageID, value))
	return nil
}

func (s *ResultStore) StoreError(_ context.Context, messageID string, stored collection.ErrorStored) error {
	s.put(collection.ErrorOutcome(messageID, stored))
	return nil
}

func (s *ResultStore) put(outcome collection.Outcome) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outcomes[outcome.MessageID] = outcome
	close(s.changed)
	s.changed = make(chan struct{})
}

func (s *ResultStore) GetStatus(_ context.Context, ids []string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, id := range ids {
		if _, ok := s.outcomes[id]; ok {
			count++
		}
	}
	return count, nil
}

// GetResults returns every outcome at once or none: a missing id, a timeout or
// a raised stored error leaves the store untouched. With RaiseOnError the
// first stored error in id order fails the call as soon as it is present,
// even while other ids are still missing.
func (s *ResultStore) GetResults(ctx context.Context, ids []string, opts collection.FetchOptions) ([]collection.Outcome, error) {
	deadline := s.now().Add(opts.Timeout)
	for {
		s.mu.Lock()
		if opts.RaiseOnError {
			if stored := s.firstError(ids); stored != nil {
				s.mu.Unlock()
				return nil, stored
			}
		}
		out, ok := s.collect(ids)
		if ok {
			if opts.Forget {
				for _, id := range ids {
					delete(s.outcomes, id)
				}
			}
			s.mu.Unlock()
			return out, nil
		}
		changed := s.changed
		s.mu.Unlock()

		if !opts.Block {
			return nil, collection.ErrResultMissing
		}
		remaining := deadline.Sub(s.now())
		if remaining <= 0 {
			return nil, collection.ErrResultTimeout
		}
		timer := time.NewTimer(remaining)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
			return nil, collection.ErrResultTimeout
		case <-changed:
			timer.Stop()
		}
	}
}

func (s *ResultStore) collect(ids []string) ([]collection.Outcome, bool) {
	out := make([]collection.Outcome, 0, len(ids))
	for _, id := range ids {
		outcome, ok := s.outcomes[id]
		if !ok {
			return nil, false
		}
		out = append(out, outcome)
	}
	return out, true
}

func (s *ResultStore) firstError(ids []string) *collection.ErrorStored {
	for _, id := range ids {
		if outcome, ok := s.outcomes[id]; ok && outcome.Err != nil {
			return outcome.Err
		}
	}
	return nil
}
