package app

import (
	"context"
	"fmt"

	"github.com/animus-labs/flowq/internal/broker"
	"github.com/animus-labs/flowq/internal/collection"
	"github.com/animus-labs/flowq/internal/flow"
)

// Simulation is the outcome of running one composition through the local
// broker.
type Simulation struct {
	Root      flow.Node
	Processed int
	Outcomes  []collection.Outcome
}

// Echo is the default simulation handler: a single argument is returned as
// is, several are returned as a list, and a message without arguments
// returns its keyword arguments.
func Echo(_ context.Context, msg flow.Message) (any, error) {
	switch len(msg.Args) {
	case 0:
		if len(msg.Kwargs) == 0 {
			return nil, nil
		}
		return msg.Kwargs, nil
	case 1:
		return msg.Args[0], nil
	default:
		return msg.Args, nil
	}
}

// Simulate composes doc, declares every actor it names, enqueues it and drains
// the queue with handlers. Actors missing from handlers use fallback. The
// root's results are then collected with opts.
func (a *App) Simulate(ctx context.Context, doc flow.Document, handlers map[string]broker.Handler, fallback broker.Handler, opts collection.GetOptions) (Simulation, error) {
	root, err := a.Composer.Compose(ctx, doc)
	if err != nil {
		return Simulation{}, err
	}

	resolved := make(map[string]broker.Handler)
	for _, msg := range messagesOf(root) {
		if _, err := a.Broker.GetActor(msg.ActorName); err != nil {
			if err := a.Broker.Declare(broker.Actor{Name: msg.ActorName, QueueName: msg.QueueName}); err != nil {
				return Simulation{}, err
			}
		}
		if h, ok := handlers[msg.ActorName]; ok {
			resolved[msg.ActorName] = h
		} else if fallback != nil {
			resolved[msg.ActorName] = fallback
		}
	}

	var view *collection.Results
	switch node := root.(type) {
	case flow.Message:
		if err := a.Broker.Enqueue(ctx, node, 0); err != nil {
			return Simulation{}, err
		}
		view = collection.New(a.Results, collection.Result{MessageID: node.ID})
	case *flow.Pipeline:
		if err := node.Run(ctx, 0); err != nil {
			return Simulation{}, err
		}
		view = node.Results()
	case *flow.Group:
		if err := node.Run(ctx, 0); err != nil {
			return Simulation{}, err
		}
		view = node.Results()
	default:
		return Simulation{}, fmt.Errorf("unsupported root %T", root)
	}

	processed, err := a.Broker.Drain(ctx, resolved)
	if err != nil {
		return Simulation{Root: root, Processed: processed}, err
	}
	outcomes, err := view.Collect(ctx, opts)
	return Simulation{Root: root, Processed: processed, Outcomes: outcomes}, err
}

func messagesOf(node flow.Node) []flow.Message {
	switch n := node.(type) {
	case flow.Message:
		return []flow.Message{n}
	case *flow.Pipeline:
		return n.Messages()
	case *flow.Group:
		return n.Messages()
	}
	return nil
}
