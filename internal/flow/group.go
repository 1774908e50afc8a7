package flow

import (
	"context"
	"fmt"
	"time"

	"github.com/animus-labs/flowq/internal/collection"
	"github.com/animus-labs/flowq/internal/domain"
)

// Group runs its members without ordering between them and is tracked as one
// batch. Members are messages or pipelines; a group never contains a group.
type Group struct {
	ID            string
	CancelOnError bool

	composer *Composer
	children []Node
	built    bool
}

func (*Group) isNode() {}

type GroupOption func(*Group)

// WithGroupID overrides the generated group id.
func WithGroupID(id string) GroupOption {
	return func(g *Group) {
		if id != "" {
			g.ID = id
		}
	}
}

// CancelOnError asks workers to cancel the remaining members once one fails.
// It needs a cancel backend.
func CancelOnError() GroupOption {
	return func(g *Group) {
		g.CancelOnError = true
	}
}

// Group composes children into a group.
func (c *Composer) Group(ctx context.Context, children []Node, opts ...GroupOption) (*Group, error) {
	g := &Group{
		ID:       c.newID(),
		composer: c,
		children: make([]Node, 0, len(children)),
	}
	for _, opt := range opts {
		opt(g)
	}

	for i, child := range children {
		switch node := child.(type) {
		case Message:
			g.children = append(g.children, c.adopt(node))
		case *Pipeline:
			if node == nil {
				return nil, fmt.Errorf("%w: group child %d is nil", ErrInvalidComposition, i)
			}
			g.children = append(g.children, node.detach())
		case *Group:
			return nil, fmt.Errorf("%w: groups of groups are not supported", ErrInvalidComposition)
		default:
			return nil, fmt.Errorf("%w: group child %d has unsupported type %T", ErrInvalidComposition, i, child)
		}
	}

	if g.CancelOnError {
		if c.broker == nil {
			return nil, ErrNoBroker
		}
		if _, err := c.broker.CancelBackend(); err != nil {
			return nil, err
		}
	}

	if c.broker != nil {
		c.broker.BeforeBuildGroup(ctx, g.ID, g.MessageIDs())
	}
	return g, nil
}

// Info is the metadata stamped on the group's messages.
func (g *Group) Info() GroupInfo {
	return GroupInfo{
		GroupID:       g.ID,
		ChildrenCount: len(g.children),
		CancelOnError: g.CancelOnError,
	}
}

// Len is the number of members.
func (g *Group) Len() int {
	return len(g.children)
}

// Members returns the members in order; each is a Message or a *Pipeline.
func (g *Group) Members() []Node {
	out := make([]Node, len(g.children))
	copy(out, g.children)
	return out
}

// Then returns a pipeline running the group, then node. The pipeline holds
// its own copy of an unbuilt g, so either can be built first.
func (g *Group) Then(ctx context.Context, node Node) (*Pipeline, error) {
	return g.composer.Pipeline(ctx, []Node{g, node})
}

// Build returns the entry message of every member, all of which must be
// enqueued. group_info is set under the inherited options; inherited keys win.
// A group builds once.
func (g *Group) Build(ctx context.Context, options domain.Options) ([]Message, error) {
	if g.built {
		return nil, fmt.Errorf("group %s: %w", g.ID, ErrAlreadyBuilt)
	}
	g.built = true

	merged := domain.Options{OptionGroupInfo: g.Info().AsMap()}.Merge(options)
	out := make([]Message, 0, len(g.children))
	for i, child := range g.children {
		switch member := child.(type) {
		case Message:
			out = append(out, member.Build(merged))
		case *Pipeline:
			built, err := member.Build(ctx, merged)
			if err != nil {
				return nil, fmt.Errorf("group %s member %d: %w", g.ID, i, err)
			}
			out = append(out, built...)
		}
	}
	return out, nil
}

// Run builds the group and enqueues every member.
func (g *Group) Run(ctx context.Context, delay time.Duration) error {
	messages, err := g.Build(ctx, nil)
	if err != nil {
		return err
	}
	return g.composer.enqueue(ctx, messages, delay)
}

// MessageIDs returns one entry per member: a message id, or a list for a pipeline.
func (g *Group) MessageIDs() []collection.IDNode {
	out := make([]collection.IDNode, 0, len(g.children))
	for _, child := range g.children {
		switch member := child.(type) {
		case Message:
			out = append(out, collection.LeafID(member.ID))
		case *Pipeline:
			out = append(out, collection.IDList(member.MessageIDs()...))
		}
	}
	return out
}

// Messages returns every message of the tree in traversal order.
func (g *Group) Messages() []Message {
	out := make([]Message, 0, len(g.children))
	for _, child := range g.children {
		switch member := child.(type) {
		case Message:
			out = append(out, member)
		case *Pipeline:
			out = append(out, member.Messages()...)
		}
	}
	return out
}

// Results returns a view with one handle per member; a pipeline member
// contributes the handle of its last step.
func (g *Group) Results() *collection.Results {
	handles := make([]collection.Handle, 0, len(g.children))
	for _, child := range g.children {
		switch member := child.(type) {
		case Message:
			handles = append(handles, collection.Result{MessageID: member.ID})
		case *Pipeline:
			handles = append(handles, member.Result())
		}
	}
	return collection.New(g.composer.resultBackend(), handles...)
}

// Cancel marks every message of the tree as canceled.
func (g *Group) Cancel(ctx context.Context) error {
	return g.composer.cancel(ctx, g.MessageIDs())
}

// detach returns an unbuilt copy of g with the same ids, or g itself once built.
func (g *Group) detach() *Group {
	if g.built {
		return g
	}
	return &Group{
		ID:            g.ID,
		CancelOnError: g.CancelOnError,
		composer:      g.composer,
		children:      detachAll(g.children),
	}
}
