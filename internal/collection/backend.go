package collection

import (
	"context"
	"errors"
	"time"
)

// DefaultTimeout bounds a blocking collection when the caller supplies none.
const DefaultTimeout = 10 * time.Second

var (
	// ErrResultMissing is returned by a non-blocking read of a result that is not stored yet.
	ErrResultMissing = errors.New("result missing")
	// ErrResultTimeout is returned when the deadline passes before every result is stored.
	ErrResultTimeout = errors.New("result timeout")
)

// ErrorStored is the outcome of a message whose actor failed.
type ErrorStored struct {
	Type    string `json:"type,omitempty"`
	Message string `json:"message"`
}

func (e *ErrorStored) Error() string {
	if e.Type == "" {
		return "error stored: " + e.Message
	}
	return "error stored: " + e.Type + ": " + e.Message
}

// FetchOptions drive a single result store read.
type FetchOptions struct {
	Block        bool
	Timeout      time.Duration
	RaiseOnError bool
	Forget       bool
}

// Backend is the result store contract consumed by Results.
type Backend interface {
	// GetStatus returns how many of ids have a stored result.
	GetStatus(ctx context.Context, ids []string) (int, error)
	// GetResults returns one outcome per id, in the order of ids. With
	// RaiseOnError a stored error fails the whole call with *ErrorStored.
	GetResults(ctx context.Context, ids []string, opts FetchOptions) ([]Outcome, error)
}

// Storer is implemented by result stores that accept writes from workers.
type Storer interface {
	StoreResult(ctx context.Context, messageID string, value any) error
	StoreError(ctx context.Context, messageID string, stored ErrorStored) error
}

// Outcome is one collected result. A leaf outcome carries either Value or Err;
// a nested outcome carries the fully collected children of a nested view.
type Outcome struct {
	MessageID string
	Value     any
	Err       *ErrorStored
	Children  []Outcome
	nested    bool
}

// ValueOutcome builds the outcome of a successful message.
func ValueOutcome(messageID string, value any) Outcome {
	return Outcome{MessageID: messageID, Value: value}
}

// ErrorOutcome builds the outcome of a failed message.
func ErrorOutcome(messageID string, stored ErrorStored) Outcome {
	return Outcome{MessageID: messageID, Err: &stored}
}

// NestedOutcome wraps the outcomes of a nested view.
func NestedOutcome(children []Outcome) Outcome {
	if children == nil {
		children = []Outcome{}
	}
	return Outcome{Children: children, nested: true}
}

func (o Outcome) IsNested() bool {
	return o.nested
}

func (o Outcome) Failed() bool {
	return o.Err != nil
}
