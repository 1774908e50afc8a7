package broker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/animus-labs/flowq/internal/collection"
	"github.com/animus-labs/flowq/internal/domain"
	"github.com/animus-labs/flowq/internal/flow"
	"github.com/animus-labs/flowq/internal/repo"
)

// ErrMessageCanceled is returned by Process for a message whose cancellation
// was requested before it started.
var ErrMessageCanceled = errors.New("message canceled")

// Enqueued is a message waiting in the local queue.
type Enqueued struct {
	Message flow.Message
	Delay   time.Duration
}

// Local is an in-process broker. It keeps a FIFO queue, runs handlers on
// demand and follows pipe_target routing the way a worker would, which makes
// it the broker of the CLI and of tests.
type Local struct {
	mu      sync.Mutex
	actors  map[string]Actor
	queue   []Enqueued
	values  map[string]any
	members map[string][]collection.IDNode
	done    map[string][]any

	results collection.Backend
	store   collection.Storer
	states  repo.StateRepository
	cancels repo.CancelRepository
	events  *Dispatcher
	logger  *slog.Logger
}

var _ flow.Broker = (*Local)(nil)

type Option func(*Local)

// WithResultBackend sets the result backend. Backends that also accept writes
// receive the outcome of every processed message.
func WithResultBackend(backend collection.Backend) Option {
	return func(b *Local) {
		b.results = backend
		if store, ok := backend.(collection.Storer); ok {
			b.store = store
		}
	}
}

func WithStateBackend(states repo.StateRepository) Option {
	return func(b *Local) { b.states = states }
}

func WithCancelBackend(cancels repo.CancelRepository) Option {
	return func(b *Local) { b.cancels = cancels }
}

func WithLogger(logger *slog.Logger) Option {
	return func(b *Local) {
		if logger != nil {
			b.logger = logger
		}
	}
}

func WithObservers(observers ...Observer) Option {
	return func(b *Local) {
		for _, obs := range observers {
			b.events.Register(obs)
		}
	}
}

func NewLocal(opts ...Option) *Local {
	b := &Local{
		actors:  make(map[string]Actor),
		values:  make(map[string]any),
		members: make(map[string][]collection.IDNode),
		done:    make(map[string][]any),
		logger:  slog.Default(),
	}
	b.events = NewDispatcher(nil)
	for _, opt := range opts {
		opt(b)
	}
	b.events.logger = b.logger
	return b
}

// Declare registers actor, replacing any actor with the same name.
func (b *Local) Declare(actor Actor) error {
	name := strings.TrimSpace(actor.Name)
	if name == "" {
		return errors.New("actor name is required")
	}
	if actor.QueueName == "" {
		actor.QueueName = "default"
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.actors[name] = actor
	return nil
}

func (b *Local) GetActor(name string) (Actor, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	actor, ok := b.actors[name]
	if !ok {
		return Actor{}, fmt.Errorf("%w: %s", ErrActorNotFound, name)
	}
	return actor, nil
}

// Observe registers an additional observer.
func (b *Local) Observe(obs Observer) {
	b.events.Register(obs)
}

func (b *Local) Enqueue(ctx context.Context, msg flow.Message, delay time.Duration) error {
	actor, err := b.GetActor(msg.ActorName)
	if err != nil {
		return err
	}
	if msg.QueueName == "" {
		msg.QueueName = actor.QueueName
	}

	b.mu.Lock()
	b.queue = append(b.queue, Enqueued{Message: msg, Delay: delay})
	b.mu.Unlock()

	b.events.Emit(ctx, Event{Kind: EventAfterEnqueue, Message: msg, Delay: delay})
	return nil
}

// Enqueued returns a snapshot of the pending queue.
func (b *Local) Enqueued() []Enqueued {
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.Clone(b.queue)
}

func (b *Local) BeforeBuildPipeline(ctx context.Context, pipelineID string, messages []flow.Message) {
	b.events.Emit(ctx, Event{Kind: EventBeforeBuildPipeline, PipelineID: pipelineID, Messages: messages})
}

func (b *Local) BeforeBuildGroup(ctx context.Context, groupID string, ids []collection.IDNode) {
	b.mu.Lock()
	b.members[groupID] = ids
	b.mu.Unlock()
	b.events.Emit(ctx, Event{Kind: EventBeforeBuildGroup, GroupID: groupID, MessageIDs: ids})
}

func (b *Local) ResultBackend() (collection.Backend, error) {
	if b.results == nil {
		return nil, domain.ErrNoResultBackend
	}
	return b.results, nil
}

func (b *Local) CancelBackend() (repo.CancelRepository, error) {
	if b.cancels == nil {
		return nil, domain.ErrNoCancelBackend
	}
	return b.cancels, nil
}

func (b *Local) StateBackend() (repo.StateRepository, error) {
	if b.states == nil {
		return nil, domain.ErrNoStateBackend
	}
	return b.states, nil
}

// Skip records that msg will not run.
func (b *Local) Skip(ctx context.Context, msg flow.Message) {
	b.events.Emit(ctx, Event{Kind: EventAfterSkip, Message: msg})
}

// Process runs handler for msg and routes its result. A handler failure is
// reported in the returned outcome; the error return is reserved for
// cancellation and broker failures.
func (b *Local) Process(ctx context.Context, msg flow.Message, handler Handler) (collection.Outcome, error) {
	if handler == nil {
		return collection.Outcome{}, ErrNoHandler
	}
	canceled, err := b.isCanceled(ctx, msg)
	if err != nil {
		return collection.Outcome{}, err
	}
	if canceled {
		b.events.Emit(ctx, Event{Kind: EventAfterCancel, Message: msg})
		return collection.Outcome{}, fmt.Errorf("%s: %w", msg.ID, ErrMessageCanceled)
	}

	b.events.Emit(ctx, Event{Kind: EventBeforeProcess, Message: msg})
	result, runErr := handler(ctx, msg)
	if runErr != nil {
		stored := collection.ErrorStored{Type: errorType(runErr), Message: runErr.Error()}
		if b.store != nil {
			if err := b.store.StoreError(ctx, msg.ID, stored); err != nil {
				return collection.Outcome{}, fmt.Errorf("store error of %s: %w", msg.ID, err)
			}
		}
		b.events.Emit(ctx, Event{Kind: EventAfterProcess, Message: msg, Err: runErr})
		if info, ok := msg.GroupInfo(); ok && info.CancelOnError && b.cancels != nil {
			if err := b.cancels.Cancel(ctx, []string{info.GroupID}); err != nil {
				return collection.Outcome{}, fmt.Errorf("cancel group %s: %w", info.GroupID, err)
			}
		}
		return collection.ErrorOutcome(msg.ID, stored), nil
	}

	if b.store != nil {
		if err := b.store.StoreResult(ctx, msg.ID, result); err != nil {
			return collection.Outcome{}, fmt.Errorf("store result of %s: %w", msg.ID, err)
		}
	}
	b.mu.Lock()
	b.values[msg.ID] = result
	b.mu.Unlock()
	b.events.Emit(ctx, Event{Kind: EventAfterProcess, Message: msg, Result: result})

	if err := b.continuePipeline(ctx, msg, result); err != nil {
		return collection.ValueOutcome(msg.ID, result), err
	}
	return collection.ValueOutcome(msg.ID, result), nil
}

// Drain processes the queue in FIFO order, including messages enqueued while
// draining, until it is empty. Canceled messages are dropped.
func (b *Local) Drain(ctx context.Context, handlers map[string]Handler) (int, error) {
	processed := 0
	for {
		if err := ctx.Err(); err != nil {
			return processed, err
		}
		b.mu.Lock()
		if len(b.queue) == 0 {
			b.mu.Unlock()
			return processed, nil
		}
		next := b.queue[0]
		b.queue = b.queue[1:]
		b.mu.Unlock()

		handler, ok := handlers[next.Message.ActorName]
		if !ok {
			return processed, fmt.Errorf("%w: no handler for %s", ErrActorNotFound, next.Message.ActorName)
		}
		if _, err := b.Process(ctx, next.Message, handler); err != nil {
			if errors.Is(err, ErrMessageCanceled) {
				continue
			}
			return processed, err
		}
		processed++
	}
}

func (b *Local) isCanceled(ctx context.Context, msg flow.Message) (bool, error) {
	if b.cancels == nil {
		return false, nil
	}
	ids := []string{msg.ID}
	if info, ok := msg.GroupInfo(); ok {
		ids = append(ids, info.GroupID)
	}
	for _, id := range ids {
		canceled, err := b.cancels.IsCanceled(ctx, id)
		if err != nil {
			return false, fmt.Errorf("check cancel of %s: %w", id, err)
		}
		if canceled {
			return true, nil
		}
	}
	return false, nil
}

// continuePipeline enqueues the pipe targets of msg with result appended to
// their arguments. A group member only counts towards completion; the last
// member to finish forwards the results of the whole group.
func (b *Local) continuePipeline(ctx context.Context, msg flow.Message, result any) error {
	targets, err := msg.PipeTarget()
	if err != nil {
		return fmt.Errorf("decode pipe target of %s: %w", msg.ID, err)
	}
	if len(targets) == 0 {
		return nil
	}

	arg := result
	if info, ok := msg.GroupInfo(); ok {
		values, complete := b.completeMember(info, result)
		if !complete {
			return nil
		}
		arg = values
	}

	for _, next := range targets {
		next.Args = append(slices.Clone(next.Args), arg)
		if err := b.Enqueue(ctx, next, 0); err != nil {
			return fmt.Errorf("enqueue pipe target %s: %w", next.ID, err)
		}
	}
	return nil
}

func (b *Local) completeMember(info flow.GroupInfo, result any) ([]any, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.done[info.GroupID] = append(b.done[info.GroupID], result)
	if len(b.done[info.GroupID]) < info.ChildrenCount {
		return nil, false
	}
	completed := b.done[info.GroupID]
	delete(b.done, info.GroupID)

	ids, ok := b.members[info.GroupID]
	if !ok {
		return completed, true
	}
	values := make([]any, 0, len(ids))
	for _, handle := range collection.FromMessageIDs(nil, ids).Children() {
		switch h := handle.(type) {
		case collection.Result:
			values = append(values, b.values[h.MessageID])
		case *collection.Results:
			nested := make([]any, 0, h.Len())
			for _, id := range h.MessageIDs() {
				nested = append(nested, b.values[id])
			}
			values = append(values, nested)
		}
	}
	return values, true
}

// errorType names the failure recorded in the result store.
func errorType(err error) string {
	var typed interface{ ErrorType() string }
	if errors.As(err, &typed) {
		return typed.ErrorType()
	}
	return strings.TrimPrefix(fmt.Sprintf("%T", err), "*")
}
