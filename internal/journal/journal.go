package journal

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/animus-labs/flowq/internal/broker"
)

// Entry is one appended lifecycle event.
type Entry struct {
	OccurredAt time.Time
	Kind       broker.EventKind
	SubjectID  string
	ActorName  string
	Payload    map[string]any
}

type QueryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

const insertEntryQuery = `INSERT INTO lifecycle_events (
		occurred_at,
		kind,
		subject_id,
		actor_name,
		payload,
		integrity_sha256
	) VALUES ($1,$2,$3,$4,$5,$6)
	RETURNING event_id`

func (e Entry) Validate() error {
	if e.OccurredAt.IsZero() {
		return errors.New("OccurredAt is required")
	}
	if strings.TrimSpace(string(e.Kind)) == "" {
		return errors.New("Kind is required")
	}
	if strings.TrimSpace(e.SubjectID) == "" {
		return errors.New("SubjectID is required")
	}
	return nil
}

// FromEvent maps a broker event to its journal entry. The subject is the
// message id, or the pipeline or group id for build events.
func FromEvent(ev broker.Event) Entry {
	entry := Entry{
		OccurredAt: ev.OccurredAt,
		Kind:       ev.Kind,
		SubjectID:  ev.Message.ID,
		ActorName:  ev.Message.ActorName,
		Payload:    map[string]any{},
	}
	switch ev.Kind {
	case broker.EventBeforeBuildPipeline:
		entry.SubjectID = ev.PipelineID
		ids := make([]string, 0, len(ev.Messages))
		for _, msg := range ev.Messages {
			ids = append(ids, msg.ID)
		}
		entry.Payload["message_ids"] = ids
	case broker.EventBeforeBuildGroup:
		entry.SubjectID = ev.GroupID
		entry.Payload["message_ids"] = ev.MessageIDs
	case broker.EventAfterEnqueue:
		entry.Payload["queue_name"] = ev.Message.QueueName
		if ev.Delay > 0 {
			entry.Payload["delay_ms"] = ev.Delay.Milliseconds()
		}
	case broker.EventAfterProcess:
		if ev.Err != nil {
			entry.Payload["error"] = ev.Err.Error()
		}
	}
	return entry
}

func Insert(ctx context.Context, q QueryRower, entry Entry) (int64, error) {
	if q == nil {
		return 0, errors.New("queryer is required")
	}
	if entry.OccurredAt.IsZero() {
		entry.OccurredAt = time.Now().UTC()
	}
	if err := entry.Validate(); err != nil {
		return 0, err
	}

	payload := entry.Payload
	if payload == nil {
		payload = map[string]any{}
	}
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return 0, fmt.Errorf("marshal payload: %w", err)
	}
	integrity, err := ComputeIntegritySHA256(entry, payloadJSON)
	if err != nil {
		return 0, err
	}

	var actorName sql.NullString
	if strings.TrimSpace(entry.ActorName) != "" {
		actorName = sql.NullString{String: strings.TrimSpace(entry.ActorName), Valid: true}
	}

	var id int64
	err = q.QueryRowContext(
		ctx,
		insertEntryQuery,
		entry.OccurredAt.UTC(),
		string(entry.Kind),
		strings.TrimSpace(entry.SubjectID),
		actorName,
		payloadJSON,
		integrity,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert lifecycle event: %w", err)
	}
	return id, nil
}

func ComputeIntegritySHA256(entry Entry, payloadJSON []byte) (string, error) {
	type integrityInput struct {
		OccurredAt time.Time       `json:"occurred_at"`
		Kind       string          `json:"kind"`
		SubjectID  string          `json:"subject_id"`
		ActorName  string          `json:"actor_name,omitempty"`
		Payload    json.RawMessage `json:"payload"`
	}

	in := integrityInput{
		OccurredAt: entry.OccurredAt.UTC(),
		Kind:       strings.TrimSpace(string(entry.Kind)),
		SubjectID:  strings.TrimSpace(entry.SubjectID),
		ActorName:  strings.TrimSpace(entry.ActorName),
		Payload:    payloadJSON,
	}

	blob, err := json.Marshal(in)
	if err != nil {
		return "", fmt.Errorf("marshal integrity: %w", err)
	}
	sum := sha256.Sum256(blob)
	return hex.EncodeToString(sum[:]), nil
}

// Observer appends every broker event to the journal.
type Observer struct {
	q QueryRower
}

var _ broker.Observer = (*Observer)(nil)

func NewObserver(q QueryRower) *Observer {
	return &Observer{q: q}
}

func (o *Observer) Observe(ctx context.Context, ev broker.Event) error {
	_, err := Insert(ctx, o.q, FromEvent(ev))
	return err
}
