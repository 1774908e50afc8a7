package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/animus-labs/flowq/internal/domain"
	"github.com/animus-labs/flowq/internal/repo"
)

type StateStore struct {
	db  DB
	now func() time.Time
}

var _ repo.StateRepository = (*StateStore)(nil)

const (
	// Columns the new write leaves NULL keep their stored value unless the
	// stored row has already expired.
	upsertStateQuery = `INSERT INTO message_states (
		message_id,
		state_name,
		actor_name,
		args,
		kwargs,
		priority,
		group_id,
		pipeline_id,
		enqueued_at,
		started_at,
		end_at,
		expires_at
	) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
	ON CONFLICT (message_id) DO UPDATE SET
		state_name = CASE WHEN message_states.expires_at <= now() THEN EXCLUDED.state_name ELSE COALESCE(EXCLUDED.state_name, message_states.state_name) END,
		actor_name = CASE WHEN message_states.expires_at <= now() THEN EXCLUDED.actor_name ELSE COALESCE(EXCLUDED.actor_name, message_states.actor_name) END,
		args = CASE WHEN message_states.expires_at <= now() THEN EXCLUDED.args ELSE COALESCE(EXCLUDED.args, message_states.args) END,
		kwargs = CASE WHEN message_states.expires_at <= now() THEN EXCLUDED.kwargs ELSE COALESCE(EXCLUDED.kwargs, message_states.kwargs) END,
		priority = CASE WHEN message_states.expires_at <= now() THEN EXCLUDED.priority ELSE COALESCE(EXCLUDED.priority, message_states.priority) END,
		group_id = CASE WHEN message_states.expires_at <= now() THEN EXCLUDED.group_id ELSE COALESCE(EXCLUDED.group_id, message_states.group_id) END,
		pipeline_id = CASE WHEN message_states.expires_at <= now() THEN EXCLUDED.pipeline_id ELSE COALESCE(EXCLUDED.pipeline_id, message_states.pipeline_id) END,
		enqueued_at = CASE WHEN message_states.expires_at <= now() THEN EXCLUDED.enqueued_at ELSE COALESCE(EXCLUDED.enqueued_at, message_states.enqueued_at) END,
		started_at = CASE WHEN message_states.expires_at <= now() THEN EXCLUDED.started_at ELSE COALESCE(EXCLUDED.started_at, message_states.started_at) END,
		end_at = CASE WHEN message_states.expires_at <= now() THEN EXCLUDED.end_at ELSE COALESCE(EXCLUDED.end_at, message_states.end_at) END,
		expires_at = EXCLUDED.expires_at`

	selectStateQuery = `SELECT message_id, state_name, actor_name, args, kwargs, priority, group_id, pipeline_id, enqueued_at, started_at, end_at
	 FROM message_states
	 WHERE message_id = $1 AND (expires_at IS NULL OR expires_at > now())`

	listStatesQuery = `SELECT message_id, state_name, actor_name, args, kwargs, priority, group_id, pipeline_id, enqueued_at, started_at, end_at
	 FROM message_states
	 WHERE expires_at IS NULL OR expires_at > now()
	 ORDER BY message_id ASC`

	purgeExpiredStatesQuery = `DELETE FROM message_states
	 WHERE expires_at IS NOT NULL AND expires_at <= now()`
)

func NewStateStore(db DB) *StateStore {
	if db == nil {
		return nil
	}
	return &StateStore{db: db, now: time.Now}
}

// SetState upserts state. A non-positive ttl stores a record that never expires.
func (s *StateStore) SetState(ctx context.Context, state domain.State, ttl time.Duration) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("state store not initialized")
	}
	args, err := stateArgs(state, ttl, s.now())
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, upsertStateQuery, args...); err != nil {
		return fmt.Errorf("upsert message state: %w", err)
	}
	return nil
}

func (s *StateStore) GetState(ctx context.Context, messageID string) (domain.State, error) {
	if s == nil || s.db == nil {
		return domain.State{}, fmt.Errorf("state store not initialized")
	}
	messageID = strings.TrimSpace(messageID)
	if messageID == "" {
		return domain.State{}, fmt.Errorf("message id is required")
	}
	state, err := scanState(s.db.QueryRowContext(ctx, selectStateQuery, messageID))
	if err != nil {
		return domain.State{}, handleNotFound(err)
	}
	return state, nil
}

func (s *StateStore) GetStates(ctx context.Context) ([]domain.State, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("state store not initialized")
	}
	rows, err := s.db.QueryContext(ctx, listStatesQuery)
	if err != nil {
		return nil, fmt.Errorf("list message states: %w", err)
	}
	defer rows.Close()

	out := make([]domain.State, 0)
	for rows.Next() {
		state, err := scanState(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message state: %w", err)
		}
		out = append(out, state)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate message states: %w", err)
	}
	return out, nil
}

// PurgeExpired deletes expired records and reports how many were removed.
func (s *StateStore) PurgeExpired(ctx context.Context) (int64, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("state store not initialized")
	}
	res, err := s.db.ExecContext(ctx, purgeExpiredStatesQuery)
	if err != nil {
		return 0, fmt.Errorf("purge message states: %w", err)
	}
	return res.RowsAffected()
}

func stateArgs(state domain.State, ttl time.Duration, now time.Time) ([]any, error) {
	messageID := strings.TrimSpace(state.MessageID)
	if messageID == "" {
		return nil, fmt.Errorf("message id is required")
	}
	args, err := encodeJSON(state.Args, state.Args == nil)
	if err != nil {
		return nil, fmt.Errorf("encode args: %w", err)
	}
	kwargs, err := encodeJSON(state.Kwargs, state.Kwargs == nil)
	if err != nil {
		return nil, fmt.Errorf("encode kwargs: %w", err)
	}
	var priority sql.NullInt64
	if state.Priority != nil {
		priority = sql.NullInt64{Int64: int64(*state.Priority), Valid: true}
	}
	var expiresAt sql.NullTime
	if ttl > 0 {
		expiresAt = sql.NullTime{Time: now.Add(ttl).UTC(), Valid: true}
	}
	return []any{
		messageID,
		nullIfEmpty(string(state.Name)),
		nullIfEmpty(state.ActorName),
		args,
		kwargs,
		priority,
		nullIfEmpty(state.GroupID),
		nullIfEmpty(state.PipelineID),
		nullTime(state.EnqueuedAt),
		nullTime(state.StartedAt),
		nullTime(state.EndAt),
		expiresAt,
	}, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanState(row rowScanner) (domain.State, error) {
	var (
		state                            domain.State
		name, actor, groupID, pipelineID sql.NullString
		args, kwargs                     []byte
		priority                         sql.NullInt64
		enqueuedAt, startedAt, endAt     sql.NullTime
	)
	if err := row.Scan(
		&state.MessageID,
		&name,
		&actor,
		&args,
		&kwargs,
		&priority,
		&groupID,
		&pipelineID,
		&enqueuedAt,
		&startedAt,
		&endAt,
	); err != nil {
		return domain.State{}, err
	}

	var err error
	if state.Args, err = decodeArgs(args); err != nil {
		return domain.State{}, fmt.Errorf("decode args: %w", err)
	}
	if state.Kwargs, err = decodeKwargs(kwargs); err != nil {
		return domain.State{}, fmt.Errorf("decode kwargs: %w", err)
	}
	state.Name = domain.StateName(name.String)
	state.ActorName = actor.String
	state.GroupID = groupID.String
	state.PipelineID = pipelineID.String
	if priority.Valid {
		p := int(priority.Int64)
		state.Priority = &p
	}
	state.EnqueuedAt = timePtr(enqueuedAt)
	state.StartedAt = timePtr(startedAt)
	state.EndAt = timePtr(endAt)
	return state, nil
}
