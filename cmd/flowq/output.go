package main

import (
	"context"
	"encoding/json"
	"io"

	"github.com/animus-labs/flowq/internal/collection"
	"github.com/animus-labs/flowq/internal/flow"
)

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

type outcomeView struct {
	MessageID string                  `json:"message_id,omitempty"`
	Value     any                     `json:"value,omitempty"`
	Error     *collection.ErrorStored `json:"error,omitempty"`
	Children  []outcomeView           `json:"children,omitempty"`
}

func outcomeViews(outcomes []collection.Outcome) []outcomeView {
	out := make([]outcomeView, 0, len(outcomes))
	for _, o := range outcomes {
		v := outcomeView{MessageID: o.MessageID, Value: o.Value, Error: o.Err}
		if o.IsNested() {
			v.Children = outcomeViews(o.Children)
		}
		out = append(out, v)
	}
	return out
}

type simulationView struct {
	Processed int           `json:"processed"`
	Results   []outcomeView `json:"results"`
}

type plan struct {
	Kind       string              `json:"kind"`
	ID         string              `json:"id"`
	MessageIDs []collection.IDNode `json:"message_ids"`
	Enqueue    []map[string]any    `json:"enqueue"`
}

// buildPlan builds root and reports the messages a run would enqueue first.
func buildPlan(ctx context.Context, root flow.Node) (plan, error) {
	var (
		p     plan
		entry []flow.Message
		err   error
	)
	switch node := root.(type) {
	case flow.Message:
		p = plan{Kind: "message", ID: node.ID, MessageIDs: []collection.IDNode{collection.LeafID(node.ID)}}
		entry = []flow.Message{node}
	case *flow.Pipeline:
		p = plan{Kind: "pipeline", ID: node.ID, MessageIDs: node.MessageIDs()}
		entry, err = node.Build(ctx, nil)
	case *flow.Group:
		p = plan{Kind: "group", ID: node.ID, MessageIDs: node.MessageIDs()}
		entry, err = node.Build(ctx, nil)
	}
	if err != nil {
		return plan{}, err
	}
	p.Enqueue = make([]map[string]any, 0, len(entry))
	for _, msg := range entry {
		p.Enqueue = append(p.Enqueue, msg.AsMap())
	}
	return p, nil
}
