package repo

import (
	"context"
	"errors"
	"time"

	"github.com/animus-labs/flowq/internal/domain"
)

var ErrNotFound = errors.New("not found")

// StateRepository persists message lifecycle snapshots. SetState is an upsert
// keyed by message id that keeps stored fields the new state leaves unset;
// the record expires ttl after the write.
type StateRepository interface {
	SetState(ctx context.Context, state domain.State, ttl time.Duration) error
	GetState(ctx context.Context, messageID string) (domain.State, error)
	GetStates(ctx context.Context) ([]domain.State, error)
}

// CancelRepository records cancellation requests for workers to observe.
type CancelRepository interface {
	Cancel(ctx context.Context, messageIDs []string) error
	IsCanceled(ctx context.Context, messageID string) (bool, error)
}

// Purger drops expired state records.
type Purger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}
