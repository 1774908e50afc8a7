package flow

import (
	"context"
	"fmt"
	"time"

	"github.com/animus-labs/flowq/internal/collection"
	"github.com/animus-labs/flowq/internal/domain"
)

// Pipeline runs its steps in series; each step's result is routed to the next
// through the pipe_target option. Steps are messages or groups, never
// pipelines: nested pipelines are flattened at construction.
type Pipeline struct {
	ID string

	composer *Composer
	children []Node
	built    bool
}

func (*Pipeline) isNode() {}

type PipelineOption func(*Pipeline)

// WithPipelineID overrides the generated pipeline id.
func WithPipelineID(id string) PipelineOption {
	return func(p *Pipeline) {
		if id != "" {
			p.ID = id
		}
	}
}

// Pipeline composes children into a pipeline and notifies the broker before
// any of its messages is enqueued.
func (c *Composer) Pipeline(ctx context.Context, children []Node, opts ...PipelineOption) (*Pipeline, error) {
	p := &Pipeline{
		ID:       c.newID(),
		composer: c,
		children: make([]Node, 0, len(children)),
	}
	for _, opt := range opts {
		opt(p)
	}

	for i, child := range children {
		switch node := child.(type) {
		case Message:
			p.children = append(p.children, c.adopt(node))
		case *Group:
			if node == nil {
				return nil, fmt.Errorf("%w: pipeline child %d is nil", ErrInvalidComposition, i)
			}
			p.children = append(p.children, node.detach())
		case *Pipeline:
			if node == nil {
				return nil, fmt.Errorf("%w: pipeline child %d is nil", ErrInvalidComposition, i)
			}
			p.children = append(p.children, detachAll(node.children)...)
		default:
			return nil, fmt.Errorf("%w: pipeline child %d has unsupported type %T", ErrInvalidComposition, i, child)
		}
	}
	if len(p.children) == 0 {
		return nil, fmt.Errorf("%w: pipeline must contain at least one step", ErrInvalidComposition)
	}

	if c.broker != nil {
		c.broker.BeforeBuildPipeline(ctx, p.ID, p.stepMessages())
	}
	return p, nil
}

// Len is the number of steps.
func (p *Pipeline) Len() int {
	return len(p.children)
}

// Steps returns the steps in order; each is a Message or a *Group.
func (p *Pipeline) Steps() []Node {
	out := make([]Node, len(p.children))
	copy(out, p.children)
	return out
}

// Then returns a new pipeline with node appended. Unbuilt groups are copied
// into it, so p and the result build independently.
func (p *Pipeline) Then(ctx context.Context, node Node) (*Pipeline, error) {
	children := make([]Node, 0, len(p.children)+1)
	children = append(children, p.children...)
	children = append(children, node)
	return p.composer.Pipeline(ctx, children)
}

// Build turns the pipeline into its entry messages. Steps are resolved from
// the last one backwards, since every step embeds the built form of its
// successor in pipe_target. lastOptions are given to the final step when the
// pipeline is itself embedded in an outer composition. A pipeline builds once.
func (p *Pipeline) Build(ctx context.Context, lastOptions domain.Options) ([]Message, error) {
	if p.built {
		return nil, fmt.Errorf("pipeline %s: %w", p.ID, ErrAlreadyBuilt)
	}
	p.built = true

	var next []Message
	for i := len(p.children) - 1; i >= 0; i-- {
		var options domain.Options
		if len(next) > 0 {
			options = domain.Options{OptionPipeTarget: serialize(next)}
		} else {
			options = lastOptions.Clone()
		}
		options[OptionPipelineID] = p.ID

		switch step := p.children[i].(type) {
		case Message:
			next = []Message{step.Build(options)}
		case *Group:
			built, err := step.Build(ctx, options)
			if err != nil {
				return nil, fmt.Errorf("pipeline %s step %d: %w", p.ID, i, err)
			}
			next = built
		}
	}
	return next, nil
}

// Run builds the pipeline and enqueues its entry messages.
func (p *Pipeline) Run(ctx context.Context, delay time.Duration) error {
	first, err := p.Build(ctx, nil)
	if err != nil {
		return err
	}
	return p.composer.enqueue(ctx, first, delay)
}

// MessageIDs returns one entry per step: a message id, or a list for a group.
func (p *Pipeline) MessageIDs() []collection.IDNode {
	out := make([]collection.IDNode, 0, len(p.children))
	for _, child := range p.children {
		switch step := child.(type) {
		case Message:
			out = append(out, collection.LeafID(step.ID))
		case *Group:
			out = append(out, collection.IDList(step.MessageIDs()...))
		}
	}
	return out
}

// Messages returns every message of the tree in traversal order.
func (p *Pipeline) Messages() []Message {
	out := make([]Message, 0, len(p.children))
	for _, child := range p.children {
		switch step := child.(type) {
		case Message:
			out = append(out, step)
		case *Group:
			out = append(out, step.Messages()...)
		}
	}
	return out
}

// Results returns a view with one handle per step.
func (p *Pipeline) Results() *collection.Results {
	handles := make([]collection.Handle, 0, len(p.children))
	for _, child := range p.children {
		switch step := child.(type) {
		case Message:
			handles = append(handles, collection.Result{MessageID: step.ID})
		case *Group:
			handles = append(handles, step.Results())
		}
	}
	return collection.New(p.composer.resultBackend(), handles...)
}

// Result is the handle of the last step.
func (p *Pipeline) Result() collection.Handle {
	switch step := p.children[len(p.children)-1].(type) {
	case *Group:
		return step.Results()
	case Message:
		return collection.Result{MessageID: step.ID}
	}
	return nil
}

// Cancel marks every message of the tree as canceled.
func (p *Pipeline) Cancel(ctx context.Context) error {
	return p.composer.cancel(ctx, p.MessageIDs())
}

// stepMessages are the messages that receive this pipeline's id at build:
// message steps and the message members of group steps.
func (p *Pipeline) stepMessages() []Message {
	out := make([]Message, 0, len(p.children))
	for _, child := range p.children {
		switch step := child.(type) {
		case Message:
			out = append(out, step)
		case *Group:
			for _, member := range step.children {
				if msg, ok := member.(Message); ok {
					out = append(out, msg)
				}
			}
		}
	}
	return out
}

// detach returns an unbuilt copy of p with the same ids, or p itself once built.
func (p *Pipeline) detach() *Pipeline {
	if p.built {
		return p
	}
	return &Pipeline{ID: p.ID, composer: p.composer, children: detachAll(p.children)}
}

// detachAll copies steps or members so that no build-once flag is shared
// between compositions.
func detachAll(nodes []Node) []Node {
	out := make([]Node, 0, len(nodes))
	for _, node := range nodes {
		switch n := node.(type) {
		case Message:
			out = append(out, n.Copy())
		case *Group:
			out = append(out, n.detach())
		case *Pipeline:
			out = append(out, n.detach())
		}
	}
	return out
}
