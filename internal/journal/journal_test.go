package journal

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/animus-labs/flowq/internal/broker"
	"github.com/animus-labs/flowq/internal/flow"
)

func TestComputeIntegritySHA256_Deterministic(t *testing.T) {
	entry := Entry{
		OccurredAt: time.Unix(1700000000, 0).UTC(),
		Kind:       broker.EventAfterEnqueue,
		SubjectID:  "m1",
		ActorName:  "add",
	}
	payload := []byte(`{"queue_name":"default"}`)

	a, err := ComputeIntegritySHA256(entry, payload)
	if err != nil {
		t.Fatalf("ComputeIntegritySHA256() err=%v", err)
	}
	b, err := ComputeIntegritySHA256(entry, payload)
	if err != nil {
		t.Fatalf("ComputeIntegritySHA256() err=%v", err)
	}
	if a != b {
		t.Fatalf("integrity mismatch: %q vs %q", a, b)
	}
	c, err := ComputeIntegritySHA256(entry, []byte(`{"queue_name":"other"}`))
	if err != nil {
		t.Fatalf("ComputeIntegritySHA256() err=%v", err)
	}
	if a == c {
		t.Fatalf("expected integrity to differ")
	}
}

func TestFromEventSubjects(t *testing.T) {
	msg := flow.Message{ID: "m1", ActorName: "add", QueueName: "q"}
	cases := []struct {
		name    string
		ev      broker.Event
		subject string
	}{
		{name: "enqueue", ev: broker.Event{Kind: broker.EventAfterEnqueue, Message: msg, Delay: time.Second}, subject: "m1"},
		{name: "pipeline", ev: broker.Event{Kind: broker.EventBeforeBuildPipeline, PipelineID: "p", Messages: []flow.Message{msg}}, subject: "p"},
		{name: "group", ev: broker.Event{Kind: broker.EventBeforeBuildGroup, GroupID: "g"}, subject: "g"},
		{name: "failure", ev: broker.Event{Kind: broker.EventAfterProcess, Message: msg, Err: errors.New("boom")}, subject: "m1"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			entry := FromEvent(tc.ev)
			if entry.SubjectID != tc.subject {
				t.Fatalf("expected subject %s, got %s", tc.subject, entry.SubjectID)
			}
		})
	}

	enqueued := FromEvent(cases[0].ev)
	if enqueued.Payload["delay_ms"] != int64(1000) || enqueued.Payload["queue_name"] != "q" {
		t.Fatalf("unexpected enqueue payload %+v", enqueued.Payload)
	}
	failed := FromEvent(cases[3].ev)
	if failed.Payload["error"] != "boom" {
		t.Fatalf("expected error in payload, got %+v", failed.Payload)
	}
}

func TestEntryValidate(t *testing.T) {
	if err := (Entry{}).Validate(); err == nil {
		t.Fatalf("expected validation error")
	}
	ok := Entry{OccurredAt: time.Now(), Kind: broker.EventAfterSkip, SubjectID: "m"}
	if err := ok.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestInsertRequiresQueryer(t *testing.T) {
	if _, err := Insert(t.Context(), nil, Entry{}); err == nil {
		t.Fatalf("expected error")
	}
}

// recordingConnector is a database/sql connector whose connections record
// every query and answer it with a single event_id row.
type recordingConnector struct {
	mu      sync.Mutex
	queries []string
	args    [][]driver.Value
	nextID  int64
}

func (c *recordingConnector) Connect(context.Context) (driver.Conn, error) {
	return &recordingConn{c: c}, nil
}

func (c *recordingConnector) Driver() driver.Driver { return recordingDriver{c: c} }

type recordingDriver struct{ c *recordingConnector }

func (d recordingDriver) Open(string) (driver.Conn, error) { return &recordingConn{c: d.c}, nil }

type recordingConn struct{ c *recordingConnector }

func (*recordingConn) Prepare(string) (driver.Stmt, error) {
	return nil, errors.New("prepare not supported")
}
func (*recordingConn) Close() error              { return nil }
func (*recordingConn) Begin() (driver.Tx, error) { return nil, errors.New("tx not supported") }

func (conn *recordingConn) QueryContext(_ context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	values := make([]driver.Value, len(args))
	for i, arg := range args {
		values[i] = arg.Value
	}
	conn.c.mu.Lock()
	defer conn.c.mu.Unlock()
	conn.c.queries = append(conn.c.queries, query)
	conn.c.args = append(conn.c.args, values)
	conn.c.nextID++
	return &idRows{id: conn.c.nextID}, nil
}

type idRows struct {
	id   int64
	done bool
}

func (*idRows) Columns() []string { return []string{"event_id"} }
func (*idRows) Close() error      { return nil }

func (r *idRows) Next(dest []driver.Value) error {
	if r.done {
		return io.EOF
	}
	r.done = true
	dest[0] = r.id
	return nil
}

func newRecordingDB(t *testing.T) (*sql.DB, *recordingConnector) {
	t.Helper()
	rec := &recordingConnector{}
	db := sql.OpenDB(rec)
	t.Cleanup(func() { _ = db.Close() })
	return db, rec
}

func TestInsertBindsEntry(t *testing.T) {
	db, rec := newRecordingDB(t)
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.FixedZone("x", 3600))
	entry := Entry{
		OccurredAt: at,
		Kind:       broker.EventAfterEnqueue,
		SubjectID:  " m1 ",
		ActorName:  " add ",
		Payload:    map[string]any{"queue_name": "default"},
	}

	id, err := Insert(t.Context(), db, entry)
	if err != nil {
		t.Fatalf("Insert() err=%v", err)
	}
	if id != 1 {
		t.Fatalf("expected event id 1, got %d", id)
	}

	if len(rec.queries) != 1 {
		t.Fatalf("expected one query, got %d", len(rec.queries))
	}
	query := rec.queries[0]
	for _, part := range []string{"INSERT INTO lifecycle_events", "integrity_sha256", "RETURNING event_id"} {
		if !strings.Contains(query, part) {
			t.Fatalf("query %q missing %q", query, part)
		}
	}

	payloadJSON := []byte(`{"queue_name":"default"}`)
	integrity, err := ComputeIntegritySHA256(entry, payloadJSON)
	if err != nil {
		t.Fatalf("ComputeIntegritySHA256() err=%v", err)
	}
	want := []driver.Value{at.UTC(), "after_enqueue", "m1", "add", payloadJSON, integrity}
	if diff := cmp.Diff(want, rec.args[0]); diff != "" {
		t.Fatalf("bound args mismatch (-want +got):\n%s", diff)
	}
}

func TestInsertBindsNullActor(t *testing.T) {
	db, rec := newRecordingDB(t)
	entry := Entry{OccurredAt: time.Unix(1700000000, 0).UTC(), Kind: broker.EventBeforeBuildGroup, SubjectID: "g"}
	if _, err := Insert(t.Context(), db, entry); err != nil {
		t.Fatalf("Insert() err=%v", err)
	}
	if got := rec.args[0][3]; got != nil {
		t.Fatalf("expected NULL actor, got %#v", got)
	}
	if got := string(rec.args[0][4].([]byte)); got != "{}" {
		t.Fatalf("expected empty payload object, got %s", got)
	}
}

func TestObserverAppendsEvent(t *testing.T) {
	db, rec := newRecordingDB(t)
	obs := NewObserver(db)
	at := time.Unix(1700000000, 0).UTC()
	ev := broker.Event{
		Kind:       broker.EventBeforeBuildPipeline,
		OccurredAt: at,
		PipelineID: "p",
		Messages:   []flow.Message{{ID: "a"}, {ID: "b"}},
	}
	if err := obs.Observe(t.Context(), ev); err != nil {
		t.Fatalf("Observe() err=%v", err)
	}

	if len(rec.args) != 1 {
		t.Fatalf("expected one insert, got %d", len(rec.args))
	}
	args := rec.args[0]
	if args[1] != "before_build_pipeline" || args[2] != "p" || args[3] != nil {
		t.Fatalf("unexpected bound args %#v", args[:4])
	}
	var payload map[string][]string
	if err := json.Unmarshal(args[4].([]byte), &payload); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if diff := cmp.Diff(map[string][]string{"message_ids": {"a", "b"}}, payload); diff != "" {
		t.Fatalf("payload mismatch (-want +got):\n%s", diff)
	}
}
