package flow

import (
	"context"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/animus-labs/flowq/internal/domain"
)

const DocumentSchemaV1 = "flowq.composition.v1"

// Document declares a composition tree. Exactly one of Message, Pipeline or
// Group is set on every node.
type Document struct {
	Schema   string            `json:"schema,omitempty" yaml:"schema,omitempty"`
	Message  *MessageDocument  `json:"message,omitempty" yaml:"message,omitempty"`
	Pipeline *PipelineDocument `json:"pipeline,omitempty" yaml:"pipeline,omitempty"`
	Group    *GroupDocument    `json:"group,omitempty" yaml:"group,omitempty"`
}

type MessageDocument struct {
	ID      string         `json:"id,omitempty" yaml:"id,omitempty"`
	Actor   string         `json:"actor" yaml:"actor"`
	Queue   string         `json:"queue,omitempty" yaml:"queue,omitempty"`
	Args    []any          `json:"args,omitempty" yaml:"args,omitempty"`
	Kwargs  map[string]any `json:"kwargs,omitempty" yaml:"kwargs,omitempty"`
	Options map[string]any `json:"options,omitempty" yaml:"options,omitempty"`
}

type PipelineDocument struct {
	ID    string     `json:"id,omitempty" yaml:"id,omitempty"`
	Steps []Document `json:"steps" yaml:"steps"`
}

type GroupDocument struct {
	ID            string     `json:"id,omitempty" yaml:"id,omitempty"`
	CancelOnError bool       `json:"cancel_on_error,omitempty" yaml:"cancel_on_error,omitempty"`
	Children      []Document `json:"children" yaml:"children"`
}

// ParseDocument decodes a YAML (or JSON) composition document and validates it.
func ParseDocument(input []byte) (Document, error) {
	var doc Document
	if err := yaml.Unmarshal(input, &doc); err != nil {
		return Document{}, fmt.Errorf("decode composition: %w", err)
	}
	if err := doc.Validate(); err != nil {
		return Document{}, err
	}
	return doc, nil
}

// Validate reports every structural issue at once.
func (d Document) Validate() error {
	issues := &ValidationError{}
	if schema := strings.TrimSpace(d.Schema); schema != "" && schema != DocumentSchemaV1 {
		issues.Add(fmt.Sprintf("schema must be %q", DocumentSchemaV1))
	}
	d.validate("root", "", issues)
	return issues.OrNil()
}

func (d Document) validate(path, parent string, issues *ValidationError) {
	set := 0
	for _, present := range []bool{d.Message != nil, d.Pipeline != nil, d.Group != nil} {
		if present {
			set++
		}
	}
	if set != 1 {
		issues.Add(fmt.Sprintf("%s must set exactly one of message, pipeline, group", path))
		return
	}

	switch {
	case d.Message != nil:
		if strings.TrimSpace(d.Message.Actor) == "" {
			issues.Add(fmt.Sprintf("%s.message.actor is required", path))
		}
	case d.Pipeline != nil:
		if len(d.Pipeline.Steps) == 0 {
			issues.Add(fmt.Sprintf("%s.pipeline.steps must be non-empty", path))
		}
		for i, step := range d.Pipeline.Steps {
			step.validate(fmt.Sprintf("%s.pipeline.steps[%d]", path, i), "pipeline", issues)
		}
	case d.Group != nil:
		if parent == "group" {
			issues.Add(fmt.Sprintf("%s: groups of groups are not supported", path))
		}
		for i, child := range d.Group.Children {
			child.validate(fmt.Sprintf("%s.group.children[%d]", path, i), "group", issues)
		}
	}
}

// Compose turns a validated document into a composition tree.
func (c *Composer) Compose(ctx context.Context, d Document) (Node, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}
	node, err := c.compose(ctx, d)
	if err != nil {
		return nil, err
	}
	if msg, ok := node.(Message); ok {
		return c.adopt(msg), nil
	}
	return node, nil
}

func (c *Composer) compose(ctx context.Context, d Document) (Node, error) {
	switch {
	case d.Message != nil:
		m := d.Message
		return Message{
			ID:        m.ID,
			QueueName: m.Queue,
			ActorName: m.Actor,
			Args:      m.Args,
			Kwargs:    m.Kwargs,
			Options:   domain.Options(m.Options).Clone(),
		}, nil
	case d.Pipeline != nil:
		steps, err := c.composeAll(ctx, d.Pipeline.Steps)
		if err != nil {
			return nil, err
		}
		return c.Pipeline(ctx, steps, WithPipelineID(d.Pipeline.ID))
	case d.Group != nil:
		children, err := c.composeAll(ctx, d.Group.Children)
		if err != nil {
			return nil, err
		}
		opts := []GroupOption{WithGroupID(d.Group.ID)}
		if d.Group.CancelOnError {
			opts = append(opts, CancelOnError())
		}
		return c.Group(ctx, children, opts...)
	}
	return nil, fmt.Errorf("%w: empty document node", ErrInvalidComposition)
}

func (c *Composer) composeAll(ctx context.Context, docs []Document) ([]Node, error) {
	out := make([]Node, 0, len(docs))
	for _, doc := range docs {
		node, err := c.compose(ctx, doc)
		if err != nil {
			return nil, err
		}
		out = append(out, node)
	}
	return out, nil
}
