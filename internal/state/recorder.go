package state

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/animus-labs/flowq/internal/broker"
	"github.com/animus-labs/flowq/internal/domain"
	"github.com/animus-labs/flowq/internal/flow"
	"github.com/animus-labs/flowq/internal/repo"
)

const DefaultTTL = time.Hour

// Recorder keeps one state record per message up to date from broker
// lifecycle events. It only writes: the state store owns expiry.
type Recorder struct {
	states repo.StateRepository
	actors broker.ActorLookup
	ttl    time.Duration
	now    func() time.Time
	logger *slog.Logger
}

var _ broker.Observer = (*Recorder)(nil)

// NewRecorder returns a recorder writing to states. actors may be nil, in
// which case priorities are not recorded. A non-positive ttl means DefaultTTL.
func NewRecorder(states repo.StateRepository, actors broker.ActorLookup, ttl time.Duration, logger *slog.Logger) (*Recorder, error) {
	if states == nil {
		return nil, domain.ErrNoStateBackend
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{
		states: states,
		actors: actors,
		ttl:    ttl,
		now:    time.Now,
		logger: logger,
	}, nil
}

func (r *Recorder) Observe(ctx context.Context, ev broker.Event) error {
	switch ev.Kind {
	case broker.EventAfterEnqueue:
		state := r.snapshot(ev.Message, domain.StatePending)
		now := r.timestamp()
		state.EnqueuedAt = &now
		state.Priority = r.priority(ev.Message.ActorName)
		if info, ok := ev.Message.GroupInfo(); ok {
			state.GroupID = info.GroupID
		}
		return r.save(ctx, state)
	case broker.EventBeforeProcess:
		state := r.snapshot(ev.Message, domain.StateStarted)
		now := r.timestamp()
		state.StartedAt = &now
		return r.save(ctx, state)
	case broker.EventAfterProcess:
		name := domain.StateSuccess
		if ev.Err != nil {
			name = domain.StateFailure
		}
		state := r.snapshot(ev.Message, name)
		now := r.timestamp()
		state.EndAt = &now
		return r.save(ctx, state)
	case broker.EventAfterSkip:
		return r.save(ctx, r.snapshot(ev.Message, domain.StateSkipped))
	case broker.EventAfterCancel:
		return r.save(ctx, r.snapshot(ev.Message, domain.StateCanceled))
	case broker.EventBeforeBuildPipeline:
		var errs []error
		for _, msg := range ev.Messages {
			state := r.snapshot(msg, "")
			state.PipelineID = ev.PipelineID
			if err := r.save(ctx, state); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	default:
		return nil
	}
}

func (r *Recorder) snapshot(msg flow.Message, name domain.StateName) domain.State {
	return domain.State{
		MessageID: msg.ID,
		Name:      name,
		ActorName: msg.ActorName,
		Args:      msg.Args,
		Kwargs:    msg.Kwargs,
	}
}

func (r *Recorder) priority(actorName string) *int {
	if r.actors == nil {
		return nil
	}
	actor, err := r.actors.GetActor(actorName)
	if err != nil {
		r.logger.Warn("actor lookup failed", slog.String("actor", actorName), slog.Any("error", err))
		return nil
	}
	priority := actor.Priority
	return &priority
}

func (r *Recorder) save(ctx context.Context, state domain.State) error {
	if err := r.states.SetState(ctx, state, r.ttl); err != nil {
		stateWriteFailuresCounter.Inc()
		return fmt.Errorf("set state of %s: %w", state.MessageID, err)
	}
	label := string(state.Name)
	if label == "" {
		label = "unchanged"
	}
	stateWritesCounter.WithLabelValues(label).Inc()
	return nil
}

func (r *Recorder) timestamp() time.Time {
	return r.now().UTC()
}
