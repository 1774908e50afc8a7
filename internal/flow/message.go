package flow

import (
	"fmt"
	"maps"
	"slices"

	"github.com/animus-labs/flowq/internal/domain"
)

// Option keys written by the builder.
const (
	OptionPipeTarget = "pipe_target"
	OptionPipelineID = "pipeline_id"
	OptionGroupInfo  = "group_info"
)

// Message is one schedulable unit of work bound to an actor.
type Message struct {
	ID        string
	QueueName string
	ActorName string
	Args      []any
	Kwargs    map[string]any
	Options   domain.Options
}

func (Message) isNode() {}

// Copy returns a message that shares no slice or map with m.
func (m Message) Copy() Message {
	out := m
	out.Args = slices.Clone(m.Args)
	if m.Kwargs != nil {
		out.Kwargs = maps.Clone(m.Kwargs)
	}
	out.Options = m.Options.Clone()
	return out
}

// Build returns a copy of m with options written over its own.
func (m Message) Build(options domain.Options) Message {
	out := m.Copy()
	out.Options = out.Options.Merge(options)
	return out
}

// GroupInfo returns the group linkage stamped on m, if any.
func (m Message) GroupInfo() (GroupInfo, bool) {
	return GroupInfoFromOptions(m.Options)
}

// PipeTarget decodes the messages m routes its result to.
func (m Message) PipeTarget() ([]Message, error) {
	raw, ok := m.Options[OptionPipeTarget]
	if !ok || raw == nil {
		return nil, nil
	}
	var entries []map[string]any
	switch v := raw.(type) {
	case []map[string]any:
		entries = v
	case []any:
		entries = make([]map[string]any, 0, len(v))
		for i, item := range v {
			entry, ok := item.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("pipe_target[%d]: expected object, got %T", i, item)
			}
			entries = append(entries, entry)
		}
	default:
		return nil, fmt.Errorf("pipe_target: expected list, got %T", raw)
	}
	out := make([]Message, 0, len(entries))
	for i, entry := range entries {
		msg, err := MessageFromMap(entry)
		if err != nil {
			return nil, fmt.Errorf("pipe_target[%d]: %w", i, err)
		}
		out = append(out, msg)
	}
	return out, nil
}

// AsMap is the serialized form embedded in an upstream step's pipe_target.
func (m Message) AsMap() map[string]any {
	args := m.Args
	if args == nil {
		args = []any{}
	}
	kwargs := m.Kwargs
	if kwargs == nil {
		kwargs = map[string]any{}
	}
	return map[string]any{
		"message_id": m.ID,
		"queue_name": m.QueueName,
		"actor_name": m.ActorName,
		"args":       args,
		"kwargs":     kwargs,
		"options":    map[string]any(m.Options.Clone()),
	}
}

// MessageFromMap decodes the form produced by AsMap.
func MessageFromMap(raw map[string]any) (Message, error) {
	id, _ := raw["message_id"].(string)
	actor, _ := raw["actor_name"].(string)
	if id == "" {
		return Message{}, fmt.Errorf("message_id is required")
	}
	if actor == "" {
		return Message{}, fmt.Errorf("actor_name is required")
	}
	queue, _ := raw["queue_name"].(string)

	msg := Message{ID: id, QueueName: queue, ActorName: actor}
	switch args := raw["args"].(type) {
	case nil:
	case []any:
		msg.Args = slices.Clone(args)
	default:
		return Message{}, fmt.Errorf("args: expected list, got %T", args)
	}
	switch kwargs := raw["kwargs"].(type) {
	case nil:
	case map[string]any:
		msg.Kwargs = maps.Clone(kwargs)
	default:
		return Message{}, fmt.Errorf("kwargs: expected object, got %T", kwargs)
	}
	switch options := raw["options"].(type) {
	case nil:
		msg.Options = domain.Options{}
	case map[string]any:
		msg.Options = domain.Options(options).Clone()
	case domain.Options:
		msg.Options = options.Clone()
	default:
		return Message{}, fmt.Errorf("options: expected object, got %T", options)
	}
	return msg, nil
}

func serialize(messages []Message) []map[string]any {
	out := make([]map[string]any, 0, len(messages))
	for _, msg := range messages {
		out = append(out, msg.AsMap())
	}
	return out
}
