package collection

import (
	"context"
	"time"

	"github.com/animus-labs/flowq/internal/domain"
)

// Handle is a node of a result view: a Result bound to one message id, or a
// nested *Results standing for a group.
type Handle interface {
	isHandle()
}

// Result is the handle of a single message.
type Result struct {
	MessageID string
}

func (Result) isHandle() {}

// Results mirrors the shape of a group or pipeline for status queries and
// blocking retrieval. One nesting level exists per group.
type Results struct {
	backend  Backend
	children []Handle
	now      func() time.Time
}

func (*Results) isHandle() {}

// New returns a view over children. A nil backend is accepted; every operation
// that needs it then fails with domain.ErrNoResultBackend.
func New(backend Backend, children ...Handle) *Results {
	kept := make([]Handle, 0, len(children))
	for _, child := range children {
		if child != nil {
			kept = append(kept, child)
		}
	}
	return &Results{backend: backend, children: kept, now: time.Now}
}

// FromMessageIDs rebuilds the view of a group from its nested id structure. A
// plain id is a message; a list is a pipeline whose last step carries the
// outcome; a pipeline ending in a list ends in a group, which nests.
func FromMessageIDs(backend Backend, ids []IDNode) *Results {
	children := make([]Handle, 0, len(ids))
	for _, id := range ids {
		if !id.IsList() {
			children = append(children, Result{MessageID: id.ID})
			continue
		}
		if len(id.Children) == 0 {
			continue
		}
		last := id.Children[len(id.Children)-1]
		if last.IsList() {
			children = append(children, FromMessageIDs(backend, last.Children))
		} else {
			children = append(children, Result{MessageID: last.ID})
		}
	}
	return New(backend, children...)
}

// Children returns the top-level handles in order.
func (r *Results) Children() []Handle {
	out := make([]Handle, len(r.children))
	copy(out, r.children)
	return out
}

// MessageIDs flattens the view into its leaf ids in traversal order.
func (r *Results) MessageIDs() []string {
	out := make([]string, 0, len(r.children))
	for _, child := range r.children {
		switch h := child.(type) {
		case Result:
			out = append(out, h.MessageID)
		case *Results:
			out = append(out, h.MessageIDs()...)
		}
	}
	return out
}

// Len is the number of leaves.
func (r *Results) Len() int {
	return len(r.MessageIDs())
}

// CompletedCount asks the result store once for the whole flattened id list.
func (r *Results) CompletedCount(ctx context.Context) (int, error) {
	if r.backend == nil {
		return 0, domain.ErrNoResultBackend
	}
	return r.backend.GetStatus(ctx, r.MessageIDs())
}

// Completed reports whether every leaf has a stored result.
func (r *Results) Completed(ctx context.Context) (bool, error) {
	count, err := r.CompletedCount(ctx)
	if err != nil {
		return false, err
	}
	return count == r.Len(), nil
}

func (r *Results) clock() func() time.Time {
	if r.now == nil {
		return time.Now
	}
	return r.now
}
