package inspect

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/animus-labs/flowq/internal/domain"
	"github.com/animus-labs/flowq/internal/repo"
	"github.com/animus-labs/flowq/internal/storage/memory"
)

func at(minute int) *time.Time {
	t := time.Date(2026, 2, 1, 10, minute, 0, 0, time.UTC)
	return &t
}

func seed(t *testing.T) *memory.StateStore {
	t.Helper()
	store := memory.NewStateStore()
	ctx := context.Background()
	states := []domain.State{
		{MessageID: "m1", Name: domain.StateSuccess, ActorName: "resize", Args: []any{"cat.png"}, GroupID: "g-old", EnqueuedAt: at(1)},
		{MessageID: "m2", Name: domain.StateFailure, ActorName: "resize", Args: []any{"dog.png"}, GroupID: "g-old", EnqueuedAt: at(2)},
		{MessageID: "m3", Name: domain.StatePending, ActorName: "notify", Kwargs: map[string]any{"to": "ops"}, GroupID: "g-new", EnqueuedAt: at(5)},
		{MessageID: "m4", Name: domain.StateStarted, ActorName: "report"},
	}
	for _, s := range states {
		if err := store.SetState(ctx, s, time.Hour); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	return store
}

func ids(items []map[string]any) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		out = append(out, item["message_id"].(string))
	}
	return out
}

func TestStatesSearch(t *testing.T) {
	store := seed(t)
	cases := []struct {
		search string
		want   []string
	}{
		{search: "", want: []string{"m1", "m2", "m3", "m4"}},
		{search: "RESIZE", want: []string{"m1", "m2"}},
		{search: "dog", want: []string{"m2"}},
		{search: "ops", want: []string{"m3"}},
		{search: "failure", want: []string{"m2"}},
		{search: "nothing", want: []string{}},
	}
	for _, tc := range cases {
		page, err := States(context.Background(), store, Page{SearchValue: tc.search})
		if err != nil {
			t.Fatalf("States(%q): %v", tc.search, err)
		}
		if diff := cmp.Diff(tc.want, ids(page.Data)); diff != "" {
			t.Fatalf("States(%q) mismatch (-want +got):\n%s", tc.search, diff)
		}
		if page.Count != len(tc.want) {
			t.Fatalf("States(%q) count=%d", tc.search, page.Count)
		}
	}
}

func TestStatesSortKeepsMissingLast(t *testing.T) {
	store := seed(t)
	asc, err := States(context.Background(), store, Page{SortColumn: "enqueued_datetime"})
	if err != nil {
		t.Fatalf("States: %v", err)
	}
	if diff := cmp.Diff([]string{"m1", "m2", "m3", "m4"}, ids(asc.Data)); diff != "" {
		t.Fatalf("asc mismatch (-want +got):\n%s", diff)
	}
	desc, err := States(context.Background(), store, Page{SortColumn: "enqueued_datetime", SortDirection: "desc"})
	if err != nil {
		t.Fatalf("States: %v", err)
	}
	if diff := cmp.Diff([]string{"m3", "m2", "m1", "m4"}, ids(desc.Data)); diff != "" {
		t.Fatalf("desc mismatch (-want +got):\n%s", diff)
	}
}

func TestStatesPaging(t *testing.T) {
	store := seed(t)
	page, err := States(context.Background(), store, Page{Offset: 1, Size: 2})
	if err != nil {
		t.Fatalf("States: %v", err)
	}
	if diff := cmp.Diff([]string{"m2", "m3"}, ids(page.Data)); diff != "" {
		t.Fatalf("page mismatch (-want +got):\n%s", diff)
	}
	if page.Count != 4 {
		t.Fatalf("expected count before paging, got %d", page.Count)
	}
	beyond, err := States(context.Background(), store, Page{Offset: 10})
	if err != nil || len(beyond.Data) != 0 {
		t.Fatalf("expected empty page, got %v (%v)", beyond.Data, err)
	}
}

func TestPageValidate(t *testing.T) {
	bad := []Page{
		{Offset: -1},
		{Size: MaxPageSize + 1},
		{SortColumn: "args"},
		{SortDirection: "up"},
	}
	for _, p := range bad {
		if err := p.Validate(); err == nil {
			t.Fatalf("expected error for %+v", p)
		}
	}
}

func TestGroupsNewestFirstWithoutPayload(t *testing.T) {
	store := seed(t)
	page, err := Groups(context.Background(), store, Page{})
	if err != nil {
		t.Fatalf("Groups: %v", err)
	}
	if page.Count != 2 || page.Data[0].GroupID != "g-new" || page.Data[1].GroupID != "g-old" {
		t.Fatalf("unexpected groups %+v", page.Data)
	}
	if len(page.Data[1].Messages) != 2 {
		t.Fatalf("expected two messages in g-old")
	}
	for _, msg := range page.Data[1].Messages {
		if _, ok := msg["args"]; ok {
			t.Fatalf("group messages must not carry args")
		}
	}

	filtered, err := Groups(context.Background(), store, Page{SearchValue: "g-old"})
	if err != nil || filtered.Count != 1 {
		t.Fatalf("expected one group for search, got %+v (%v)", filtered, err)
	}
}

func TestStateNotFound(t *testing.T) {
	_, err := State(context.Background(), memory.NewStateStore(), "missing")
	if !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := States(context.Background(), nil, Page{}); !errors.Is(err, domain.ErrNoStateBackend) {
		t.Fatalf("expected ErrNoStateBackend, got %v", err)
	}
}
