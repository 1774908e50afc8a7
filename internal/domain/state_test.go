package domain

import (
	"testing"
	"time"
)

func TestStateMergeKeepsUnsetFields(t *testing.T) {
	enqueued := time.Date(2026, 1, 31, 10, 0, 0, 0, time.UTC)
	priority := 3
	prev := State{
		MessageID:  "m-1",
		Name:       StatePending,
		ActorName:  "add",
		Args:       []any{1, 2},
		Priority:   &priority,
		GroupID:    "g-1",
		EnqueuedAt: &enqueued,
	}

	started := enqueued.Add(time.Second)
	next := State{MessageID: "m-1", Name: StateStarted, StartedAt: &started}.Merge(prev)

	if next.Name != StateStarted {
		t.Fatalf("expected state %s, got %s", StateStarted, next.Name)
	}
	if next.ActorName != "add" || next.GroupID != "g-1" {
		t.Fatalf("expected previous fields kept, got %+v", next)
	}
	if next.EnqueuedAt == nil || !next.EnqueuedAt.Equal(enqueued) {
		t.Fatalf("expected enqueued time kept, got %v", next.EnqueuedAt)
	}
	if next.Priority == nil || *next.Priority != 3 {
		t.Fatalf("expected priority kept, got %v", next.Priority)
	}
}

func TestStateMergeWithoutNameKeepsStoredName(t *testing.T) {
	prev := State{MessageID: "m-1", Name: StateSuccess}
	next := State{MessageID: "m-1", PipelineID: "p-1"}.Merge(prev)
	if next.Name != StateSuccess {
		t.Fatalf("expected %s, got %s", StateSuccess, next.Name)
	}
	if next.PipelineID != "p-1" {
		t.Fatalf("expected pipeline id set, got %q", next.PipelineID)
	}
}

func TestNormalizeStateName(t *testing.T) {
	tests := []struct {
		in   string
		want StateName
	}{
		{in: "pending", want: StatePending},
		{in: " Started ", want: StateStarted},
		{in: "SUCCESS", want: StateSuccess},
		{in: "failed", want: StateFailure},
		{in: "skipped", want: StateSkipped},
		{in: "cancelled", want: StateCanceled},
		{in: "unknown", want: ""},
	}
	for _, tc := range tests {
		if got := NormalizeStateName(tc.in); got != tc.want {
			t.Fatalf("%q: expected %q got %q", tc.in, tc.want, got)
		}
	}
}

func TestTerminalStates(t *testing.T) {
	for _, name := range []StateName{StateSuccess, StateFailure, StateSkipped, StateCanceled} {
		if !name.IsTerminal() {
			t.Fatalf("expected %s terminal", name)
		}
	}
	for _, name := range []StateName{StatePending, StateStarted} {
		if name.IsTerminal() {
			t.Fatalf("expected %s not terminal", name)
		}
	}
}

func TestOptionsMergeDoesNotMutate(t *testing.T) {
	base := Options{"a": 1}
	merged := base.Merge(Options{"b": 2})
	if _, ok := base["b"]; ok {
		t.Fatalf("expected base untouched")
	}
	if merged["a"] != 1 || merged["b"] != 2 {
		t.Fatalf("unexpected merge result: %v", merged)
	}
}
