package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

const pipelineDocument = `
pipeline:
  id: p
  steps:
    - message: {id: a, actor: echo, args: [5]}
    - group:
        id: g
        cancel_on_error: true
        children:
          - message: {id: b, actor: echo}
          - message: {id: c, actor: echo}
`

func writeDocument(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "flow.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	return path
}

func isolate(t *testing.T) {
	t.Helper()
	for _, name := range []string{"FLOWQ_CONFIG", "FLOWQ_DATABASE_URL", "FLOWQ_MINIO_ENDPOINT", "FLOWQ_LOG_FILE"} {
		t.Setenv(name, "")
	}
}

func TestPlanPrintsEntryMessages(t *testing.T) {
	isolate(t)
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"plan", writeDocument(t, pipelineDocument)}, &stdout, &stderr)
	if code != 0 {
		t.Fatalf("exit %d: %s", code, stderr.String())
	}

	var got struct {
		Kind       string           `json:"kind"`
		ID         string           `json:"id"`
		MessageIDs []any            `json:"message_ids"`
		Enqueue    []map[string]any `json:"enqueue"`
	}
	if err := json.Unmarshal(stdout.Bytes(), &got); err != nil {
		t.Fatalf("decode %q: %v", stdout.String(), err)
	}
	if got.Kind != "pipeline" || got.ID != "p" {
		t.Fatalf("unexpected plan %+v", got)
	}
	if diff := cmp.Diff([]any{"a", []any{"b", "c"}}, got.MessageIDs); diff != "" {
		t.Fatalf("message ids mismatch (-want +got):\n%s", diff)
	}
	if len(got.Enqueue) != 1 || got.Enqueue[0]["message_id"] != "a" {
		t.Fatalf("expected only the first step to be enqueued, got %+v", got.Enqueue)
	}
}

func TestSimulateEchoesThroughPipeline(t *testing.T) {
	isolate(t)
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"simulate", "--log-level=error", writeDocument(t, pipelineDocument)}, &stdout, &stderr)
	if code != 0 {
		t.Fatalf("exit %d: %s", code, stderr.String())
	}
	var got struct {
		Processed int              `json:"processed"`
		Results   []map[string]any `json:"results"`
	}
	if err := json.Unmarshal(stdout.Bytes(), &got); err != nil {
		t.Fatalf("decode %q: %v", stdout.String(), err)
	}
	if got.Processed != 3 || len(got.Results) != 2 {
		t.Fatalf("unexpected simulation %+v", got)
	}
	if got.Results[0]["value"] != float64(5) {
		t.Fatalf("expected first step to echo 5, got %+v", got.Results[0])
	}
	children, _ := got.Results[1]["children"].([]any)
	if len(children) != 2 {
		t.Fatalf("expected nested group results, got %+v", got.Results[1])
	}
}

func TestInvalidDocumentFails(t *testing.T) {
	isolate(t)
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"plan", writeDocument(t, "pipeline: {steps: []}\n")}, &stdout, &stderr)
	if code != 1 || !strings.Contains(stderr.String(), "pipeline.steps must be non-empty") {
		t.Fatalf("exit %d: %s", code, stderr.String())
	}
}

func TestDurableCommandsNeedDatabase(t *testing.T) {
	isolate(t)
	var stdout, stderr bytes.Buffer
	if code := run(context.Background(), []string{"states"}, &stdout, &stderr); code != 2 {
		t.Fatalf("expected config exit, got %d: %s", code, stderr.String())
	}
	if code := run(context.Background(), []string{"results", "m1"}, &stdout, &stderr); code != 2 {
		t.Fatalf("expected config exit, got %d: %s", code, stderr.String())
	}
}

func TestInvalidConfigExitsWithTwo(t *testing.T) {
	isolate(t)
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"plan", "--id-format=snowflake", "x.yaml"}, &stdout, &stderr)
	if code != 2 {
		t.Fatalf("expected exit 2, got %d: %s", code, stderr.String())
	}
}
