package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/animus-labs/flowq/internal/repo"
)

type CancelStore struct {
	db  DB
	now func() time.Time
}

var _ repo.CancelRepository = (*CancelStore)(nil)

const (
	insertCancellationQuery = `INSERT INTO message_cancellations (message_id, canceled_at)
	 VALUES ($1, $2)
	 ON CONFLICT (message_id) DO NOTHING`

	selectCancellationQuery = `SELECT EXISTS (
		SELECT 1 FROM message_cancellations WHERE message_id = $1
	)`
)

func NewCancelStore(db DB) *CancelStore {
	if db == nil {
		return nil
	}
	return &CancelStore{db: db, now: time.Now}
}

// Cancel records a cancellation request for every id. Repeated requests keep
// the first timestamp.
func (s *CancelStore) Cancel(ctx context.Context, messageIDs []string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("cancel store not initialized")
	}
	canceledAt := s.now().UTC()
	for _, id := range messageIDs {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, err := s.db.ExecContext(ctx, insertCancellationQuery, id, canceledAt); err != nil {
			return fmt.Errorf("insert cancellation %s: %w", id, err)
		}
	}
	return nil
}

func (s *CancelStore) IsCanceled(ctx context.Context, messageID string) (bool, error) {
	if s == nil || s.db == nil {
		return false, fmt.Errorf("cancel store not initialized")
	}
	var canceled bool
	if err := s.db.QueryRowContext(ctx, selectCancellationQuery, strings.TrimSpace(messageID)).Scan(&canceled); err != nil {
		return false, fmt.Errorf("select cancellation: %w", err)
	}
	return canceled, nil
}
