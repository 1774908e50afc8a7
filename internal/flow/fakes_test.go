package flow

import (
	"context"
	"fmt"
	"time"

	"github.com/animus-labs/flowq/internal/collection"
	"github.com/animus-labs/flowq/internal/domain"
	"github.com/animus-labs/flowq/internal/repo"
)

type pipelineEvent struct {
	id       string
	messages []string
}

type groupEvent struct {
	id  string
	ids []collection.IDNode
}

type fakeBroker struct {
	enqueued  []Message
	delays    []time.Duration
	pipelines []pipelineEvent
	groups    []groupEvent
	results   collection.Backend
	cancels   *fakeCancels
}

func (b *fakeBroker) Enqueue(_ context.Context, msg Message, delay time.Duration) error {
	b.enqueued = append(b.enqueued, msg)
	b.delays = append(b.delays, delay)
	return nil
}

func (b *fakeBroker) BeforeBuildPipeline(_ context.Context, pipelineID string, messages []Message) {
	ids := make([]string, 0, len(messages))
	for _, msg := range messages {
		ids = append(ids, msg.ID)
	}
	b.pipelines = append(b.pipelines, pipelineEvent{id: pipelineID, messages: ids})
}

func (b *fakeBroker) BeforeBuildGroup(_ context.Context, groupID string, ids []collection.IDNode) {
	b.groups = append(b.groups, groupEvent{id: groupID, ids: ids})
}

func (b *fakeBroker) ResultBackend() (collection.Backend, error) {
	if b.results == nil {
		return nil, domain.ErrNoResultBackend
	}
	return b.results, nil
}

func (b *fakeBroker) CancelBackend() (repo.CancelRepository, error) {
	if b.cancels == nil {
		return nil, domain.ErrNoCancelBackend
	}
	return b.cancels, nil
}

type fakeCancels struct {
	canceled []string
}

func (f *fakeCancels) Cancel(_ context.Context, ids []string) error {
	f.canceled = append(f.canceled, ids...)
	return nil
}

func (f *fakeCancels) IsCanceled(_ context.Context, id string) (bool, error) {
	for _, canceled := range f.canceled {
		if canceled == id {
			return true, nil
		}
	}
	return false, nil
}

type nopBackend struct{}

func (nopBackend) GetStatus(context.Context, []string) (int, error) { return 0, nil }

func (nopBackend) GetResults(context.Context, []string, collection.FetchOptions) ([]collection.Outcome, error) {
	return nil, nil
}

// sequence returns ids "id-1", "id-2", ... in call order.
func sequence() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("id-%d", n)
	}
}

func newTestComposer() (*Composer, *fakeBroker) {
	broker := &fakeBroker{cancels: &fakeCancels{}, results: nopBackend{}}
	return NewComposer(broker, sequence()), broker
}
