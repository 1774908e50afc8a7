package broker

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Dispatcher fans events out to observers. An observer error is logged and
// does not stop delivery to the others.
type Dispatcher struct {
	mu        sync.RWMutex
	observers []Observer
	logger    *slog.Logger
	now       func() time.Time
}

func NewDispatcher(logger *slog.Logger, observers ...Observer) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{observers: observers, logger: logger, now: time.Now}
}

func (d *Dispatcher) Register(obs Observer) {
	if obs == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.observers = append(d.observers, obs)
}

func (d *Dispatcher) Emit(ctx context.Context, ev Event) {
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = d.now().UTC()
	}
	d.mu.RLock()
	observers := append([]Observer(nil), d.observers...)
	d.mu.RUnlock()

	for _, obs := range observers {
		if err := obs.Observe(ctx, ev); err != nil {
			d.logger.Warn("observer failed",
				slog.String("event", string(ev.Kind)),
				slog.String("message_id", ev.Message.ID),
				slog.Any("error", err),
			)
		}
	}
}
