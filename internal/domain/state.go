package domain

import (
	"strings"
	"time"
)

// StateName is the lifecycle state of a single message.
type StateName string

const (
	StatePending  StateName = "Pending"
	StateStarted  StateName = "Started"
	StateSuccess  StateName = "Success"
	StateFailure  StateName = "Failure"
	StateSkipped  StateName = "Skipped"
	StateCanceled StateName = "Canceled"
)

// NormalizeStateName maps free-form values to canonical state names.
func NormalizeStateName(value string) StateName {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "pending", "enqueued":
		return StatePending
	case "started", "running":
		return StateStarted
	case "success", "succeeded":
		return StateSuccess
	case "failure", "failed":
		return StateFailure
	case "skipped":
		return StateSkipped
	case "canceled", "cancelled":
		return StateCanceled
	default:
		return ""
	}
}

// IsTerminal reports whether no further lifecycle event is expected for the state.
func (s StateName) IsTerminal() bool {
	switch s {
	case StateSuccess, StateFailure, StateSkipped, StateCanceled:
		return true
	default:
		return false
	}
}

// State is the persisted lifecycle snapshot of one message.
type State struct {
	MessageID  string
	Name       StateName
	ActorName  string
	Args       []any
	Kwargs     map[string]any
	Priority   *int
	GroupID    string
	PipelineID string
	EnqueuedAt *time.Time
	StartedAt  *time.Time
	EndAt      *time.Time
}

// Merge fills every field left unset in s from prev. Name follows the same
// rule, so a write that carries no state name keeps the stored one.
func (s State) Merge(prev State) State {
	out := s
	if out.MessageID == "" {
		out.MessageID = prev.MessageID
	}
	if out.Name == "" {
		out.Name = prev.Name
	}
	if out.ActorName == "" {
		out.ActorName = prev.ActorName
	}
	if out.Args == nil {
		out.Args = prev.Args
	}
	if out.Kwargs == nil {
		out.Kwargs = prev.Kwargs
	}
	if out.Priority == nil {
		out.Priority = prev.Priority
	}
	if out.GroupID == "" {
		out.GroupID = prev.GroupID
	}
	if out.PipelineID == "" {
		out.PipelineID = prev.PipelineID
	}
	if out.EnqueuedAt == nil {
		out.EnqueuedAt = prev.EnqueuedAt
	}
	if out.StartedAt == nil {
		out.StartedAt = prev.StartedAt
	}
	if out.EndAt == nil {
		out.EndAt = prev.EndAt
	}
	return out
}

// AsMap renders the state with the field names used by the inspection tooling.
// Unset optional fields are omitted.
func (s State) AsMap(excludeKeys ...string) map[string]any {
	out := map[string]any{
		"message_id": s.MessageID,
		"actor_name": s.ActorName,
	}
	if s.Name != "" {
		out["name"] = string(s.Name)
	}
	if s.Args != nil {
		out["args"] = s.Args
	}
	if s.Kwargs != nil {
		out["kwargs"] = s.Kwargs
	}
	if s.Priority != nil {
		out["priority"] = *s.Priority
	}
	if s.GroupID != "" {
		out["group_id"] = s.GroupID
	}
	if s.PipelineID != "" {
		out["pipeline_id"] = s.PipelineID
	}
	if s.EnqueuedAt != nil {
		out["enqueued_datetime"] = s.EnqueuedAt.UTC()
	}
	if s.StartedAt != nil {
		out["started_datetime"] = s.StartedAt.UTC()
	}
	if s.EndAt != nil {
		out["end_datetime"] = s.EndAt.UTC()
	}
	for _, key := range excludeKeys {
		delete(out, key)
	}
	return out
}
