package idgen

import (
	"testing"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

func TestUUID(t *testing.T) {
	id := UUID()
	if _, err := uuid.Parse(id); err != nil {
		t.Fatalf("expected uuid, got %q: %v", id, err)
	}
	if id == UUID() {
		t.Fatalf("expected unique ids")
	}
}

func TestULIDMonotonic(t *testing.T) {
	prev := ULID()
	for i := 0; i < 100; i++ {
		next := ULID()
		if _, err := ulid.ParseStrict(next); err != nil {
			t.Fatalf("expected ulid, got %q: %v", next, err)
		}
		if next <= prev {
			t.Fatalf("expected increasing ids, got %s after %s", next, prev)
		}
		prev = next
	}
}

func TestFromName(t *testing.T) {
	for _, name := range []string{"", "uuid", "ULID"} {
		if _, err := FromName(name); err != nil {
			t.Fatalf("%q: unexpected error %v", name, err)
		}
	}
	if _, err := FromName("snowflake"); err == nil {
		t.Fatalf("expected error for unknown format")
	}
}
