package collection

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/animus-labs/flowq/internal/domain"
)

type fakeBackend struct {
	results     map[string]Outcome
	calls       [][]string
	timeouts    []time.Duration
	statusCalls [][]string
	onFetch     func()
}

func newFakeBackend(values map[string]any) *fakeBackend {
	results := make(map[string]Outcome, len(values))
	for id, value := range values {
		results[id] = ValueOutcome(id, value)
	}
	return &fakeBackend{results: results}
}

func (f *fakeBackend) GetStatus(_ context.Context, ids []string) (int, error) {
	f.statusCalls = append(f.statusCalls, append([]string(nil), ids...))
	count := 0
	for _, id := range ids {
		if _, ok := f.results[id]; ok {
			count++
		}
	}
	return count, nil
}

func (f *fakeBackend) GetResults(_ context.Context, ids []string, opts FetchOptions) ([]Outcome, error) {
	f.calls = append(f.calls, append([]string(nil), ids...))
	f.timeouts = append(f.timeouts, opts.Timeout)
	if f.onFetch != nil {
		f.onFetch()
	}
	out := make([]Outcome, 0, len(ids))
	for _, id := range ids {
		outcome, ok := f.results[id]
		if !ok {
			if opts.Block {
				return nil, ErrResultTimeout
			}
			return nil, ErrResultMissing
		}
		if outcome.Err != nil && opts.RaiseOnError {
			return nil, outcome.Err
		}
		out = append(out, outcome)
	}
	return out, nil
}

var outcomeCmp = cmp.AllowUnexported(Outcome{})

func TestGetNestedViewYieldsOneElementPerChild(t *testing.T) {
	backend := newFakeBackend(map[string]any{"id1": 1, "id2": 2, "id3": 3})
	view := New(backend,
		Result{MessageID: "id1"},
		New(backend, Result{MessageID: "id2"}, Result{MessageID: "id3"}),
	)

	got, err := view.Collect(context.Background(), GetOptions{})
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	want := []Outcome{
		ValueOutcome("id1", 1),
		NestedOutcome([]Outcome{ValueOutcome("id2", 2), ValueOutcome("id3", 3)}),
	}
	if diff := cmp.Diff(want, got, outcomeCmp); diff != "" {
		t.Fatalf("unexpected outcomes (-want +got):\n%s", diff)
	}
}

func TestGetBatchesLeavesAndFlushesBeforeNested(t *testing.T) {
	backend := newFakeBackend(map[string]any{"a": 1, "b": 2, "c": 3, "d": 4, "e": 5})
	view := New(backend,
		Result{MessageID: "a"},
		Result{MessageID: "b"},
		New(backend, Result{MessageID: "c"}, Result{MessageID: "d"}),
		Result{MessageID: "e"},
	)

	if _, err := view.Collect(context.Background(), GetOptions{}); err != nil {
		t.Fatalf("collect: %v", err)
	}
	want := [][]string{{"a", "b"}, {"c", "d"}, {"e"}}
	if diff := cmp.Diff(want, backend.calls); diff != "" {
		t.Fatalf("unexpected fetch batches (-want +got):\n%s", diff)
	}
}

func TestGetPassesRemainingTimeoutToEveryFetch(t *testing.T) {
	backend := newFakeBackend(map[string]any{"a": 1, "b": 2, "c": 3, "d": 4})
	clock := time.Date(2026, 1, 31, 10, 0, 0, 0, time.UTC)
	backend.onFetch = func() { clock = clock.Add(4 * time.Second) }

	view := New(backend,
		Result{MessageID: "a"},
		New(backend, Result{MessageID: "b"}, New(backend, Result{MessageID: "c"})),
		Result{MessageID: "d"},
	)
	view.now = func() time.Time { return clock }

	if _, err := view.Collect(context.Background(), GetOptions{Block: true, Timeout: 10 * time.Second}); err != nil {
		t.Fatalf("collect: %v", err)
	}
	want := []time.Duration{10 * time.Second, 6 * time.Second, 2 * time.Second, 0}
	if diff := cmp.Diff(want, backend.timeouts); diff != "" {
		t.Fatalf("unexpected timeouts (-want +got):\n%s", diff)
	}
}

func TestGetDefaultTimeout(t *testing.T) {
	backend := newFakeBackend(map[string]any{"a": 1})
	view := New(backend, Result{MessageID: "a"})
	clock := time.Date(2026, 1, 31, 10, 0, 0, 0, time.UTC)
	view.now = func() time.Time { return clock }

	if _, err := view.Collect(context.Background(), GetOptions{Block: true}); err != nil {
		t.Fatalf("collect: %v", err)
	}
	if backend.timeouts[0] != DefaultTimeout {
		t.Fatalf("expected default timeout %s, got %s", DefaultTimeout, backend.timeouts[0])
	}
}

func TestWaitTimesOutWhenALeafNeverCompletes(t *testing.T) {
	backend := newFakeBackend(map[string]any{"a": 1, "b": 2})
	view := New(backend,
		Result{MessageID: "a"},
		New(backend, Result{MessageID: "b"}, Result{MessageID: "never"}),
	)

	err := view.Wait(context.Background(), GetOptions{Timeout: 50 * time.Millisecond})
	if !errors.Is(err, ErrResultTimeout) {
		t.Fatalf("expected timeout, got %v", err)
	}
}

func TestGetNonBlockingMissing(t *testing.T) {
	backend := newFakeBackend(map[string]any{"a": 1})
	view := New(backend, Result{MessageID: "a"}, Result{MessageID: "b"})

	got, err := view.Collect(context.Background(), GetOptions{})
	if !errors.Is(err, ErrResultMissing) {
		t.Fatalf("expected missing, got %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected the failing batch to yield nothing, got %d outcomes", len(got))
	}
}

func TestGetRaiseOnError(t *testing.T) {
	backend := newFakeBackend(map[string]any{"a": 1})
	backend.results["b"] = ErrorOutcome("b", ErrorStored{Type: "ValueError", Message: "boom"})
	view := New(backend,
		Result{MessageID: "a"},
		New(backend, Result{MessageID: "b"}),
	)

	got, err := view.Collect(context.Background(), GetOptions{RaiseOnError: true})
	var stored *ErrorStored
	if !errors.As(err, &stored) {
		t.Fatalf("expected stored error, got %v", err)
	}
	if stored.Message != "boom" {
		t.Fatalf("unexpected stored error %+v", stored)
	}
	if len(got) != 1 || got[0].Value != 1 {
		t.Fatalf("expected outcome before the failure to be kept, got %+v", got)
	}
}

func TestGetWithoutRaiseYieldsErrorValue(t *testing.T) {
	backend := newFakeBackend(nil)
	backend.results["b"] = ErrorOutcome("b", ErrorStored{Message: "boom"})
	view := New(backend, Result{MessageID: "b"})

	got, err := view.Collect(context.Background(), GetOptions{})
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if len(got) != 1 || !got[0].Failed() {
		t.Fatalf("expected an error outcome, got %+v", got)
	}
}

func TestGetStopsFetchingWhenConsumerBreaks(t *testing.T) {
	backend := newFakeBackend(map[string]any{"a": 1, "b": 2})
	view := New(backend,
		Result{MessageID: "a"},
		New(backend, Result{MessageID: "b"}),
	)
	for range view.Get(context.Background(), GetOptions{}) {
		break
	}
	if len(backend.calls) != 1 {
		t.Fatalf("expected a single fetch, got %v", backend.calls)
	}
}

func TestOperationsWithoutBackend(t *testing.T) {
	view := New(nil, Result{MessageID: "a"})
	if _, err := view.CompletedCount(context.Background()); !errors.Is(err, domain.ErrNoResultBackend) {
		t.Fatalf("expected ErrNoResultBackend, got %v", err)
	}
	if err := view.Wait(context.Background(), GetOptions{}); !errors.Is(err, domain.ErrNoResultBackend) {
		t.Fatalf("expected ErrNoResultBackend, got %v", err)
	}
}

func TestCompletedCountSingleCallAndShapeInvariant(t *testing.T) {
	backend := newFakeBackend(map[string]any{"a": 1, "c": 3})
	flat := New(backend, Result{MessageID: "a"}, Result{MessageID: "b"}, Result{MessageID: "c"})
	nested := New(backend, Result{MessageID: "a"}, New(backend, Result{MessageID: "b"}, New(backend, Result{MessageID: "c"})))

	for _, view := range []*Results{flat, nested} {
		backend.statusCalls = nil
		count, err := view.CompletedCount(context.Background())
		if err != nil {
			t.Fatalf("completed count: %v", err)
		}
		if count != 2 {
			t.Fatalf("expected 2 completed, got %d", count)
		}
		if len(backend.statusCalls) != 1 {
			t.Fatalf("expected one status call, got %d", len(backend.statusCalls))
		}
		done, err := view.Completed(context.Background())
		if err != nil || done {
			t.Fatalf("expected incomplete, got %v %v", done, err)
		}
	}
}

func TestFromMessageIDs(t *testing.T) {
	ids := []IDNode{
		LeafID("m1"),
		IDList(LeafID("p1"), LeafID("p2")),
		IDList(LeafID("p3"), IDList(LeafID("g1"), IDList(LeafID("q1"), LeafID("q2")))),
	}
	view := FromMessageIDs(nil, ids)

	want := []string{"m1", "p2", "g1", "q2"}
	if diff := cmp.Diff(want, view.MessageIDs()); diff != "" {
		t.Fatalf("unexpected ids (-want +got):\n%s", diff)
	}
	children := view.Children()
	if len(children) != 3 {
		t.Fatalf("expected 3 children, got %d", len(children))
	}
	if _, ok := children[2].(*Results); !ok {
		t.Fatalf("expected pipeline ending in a group to nest, got %T", children[2])
	}
}

func TestIDNodeJSON(t *testing.T) {
	raw := `["a",["b",["c","d"]],"e"]`
	var ids []IDNode
	if err := json.Unmarshal([]byte(raw), &ids); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !ids[1].IsList() || ids[0].IsList() {
		t.Fatalf("unexpected shape: %+v", ids)
	}
	out, err := json.Marshal(ids)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(out) != raw {
		t.Fatalf("expected %s, got %s", raw, out)
	}
	if diff := cmp.Diff([]string{"a", "b", "c", "d", "e"}, IDList(ids...).Flatten()); diff != "" {
		t.Fatalf("unexpected flatten (-want +got):\n%s", diff)
	}
}
