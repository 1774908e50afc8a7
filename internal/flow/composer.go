package flow

import (
	"context"
	"time"

	"github.com/animus-labs/flowq/internal/collection"
	"github.com/animus-labs/flowq/internal/platform/idgen"
	"github.com/animus-labs/flowq/internal/repo"
)

// Node is a member of a composition tree: a Message, a *Pipeline or a *Group.
type Node interface {
	isNode()
}

// Broker is what compositions need from the broker.
type Broker interface {
	Enqueue(ctx context.Context, msg Message, delay time.Duration) error
	BeforeBuildPipeline(ctx context.Context, pipelineID string, messages []Message)
	BeforeBuildGroup(ctx context.Context, groupID string, ids []collection.IDNode)
	ResultBackend() (collection.Backend, error)
	CancelBackend() (repo.CancelRepository, error)
}

// Composer creates pipelines and groups bound to one broker and id source.
type Composer struct {
	broker Broker
	newID  idgen.Generator
}

// NewComposer returns a composer. A nil generator defaults to UUIDs. A nil
// broker is accepted for building plans only; Run, Cancel and notifications
// then do nothing or fail with ErrNoBroker.
func NewComposer(broker Broker, newID idgen.Generator) *Composer {
	if newID == nil {
		newID = idgen.UUID
	}
	return &Composer{broker: broker, newID: newID}
}

// Message creates a message with a fresh id.
func (c *Composer) Message(actorName string, args []any, kwargs map[string]any) Message {
	return Message{
		ID:        c.newID(),
		ActorName: actorName,
		Args:      args,
		Kwargs:    kwargs,
	}
}

// adopt copies msg so the composition owns it, assigning an id when missing.
func (c *Composer) adopt(msg Message) Message {
	out := msg.Copy()
	if out.ID == "" {
		out.ID = c.newID()
	}
	return out
}

func (c *Composer) resultBackend() collection.Backend {
	if c.broker == nil {
		return nil
	}
	backend, err := c.broker.ResultBackend()
	if err != nil {
		return nil
	}
	return backend
}

func (c *Composer) cancel(ctx context.Context, ids []collection.IDNode) error {
	if c.broker == nil {
		return ErrNoBroker
	}
	backend, err := c.broker.CancelBackend()
	if err != nil {
		return err
	}
	return backend.Cancel(ctx, collection.IDList(ids...).Flatten())
}

func (c *Composer) enqueue(ctx context.Context, messages []Message, delay time.Duration) error {
	if c.broker == nil {
		return ErrNoBroker
	}
	for _, msg := range messages {
		if err := c.broker.Enqueue(ctx, msg, delay); err != nil {
			return err
		}
	}
	return nil
}
