package collection

import (
	"context"
	"fmt"
	"iter"
	"time"

	"github.com/animus-labs/flowq/internal/domain"
)

// GetOptions control a collection. A zero Timeout means DefaultTimeout.
type GetOptions struct {
	Block        bool
	Timeout      time.Duration
	RaiseOnError bool
	Forget       bool
}

func (o GetOptions) timeout() time.Duration {
	if o.Timeout <= 0 {
		return DefaultTimeout
	}
	return o.Timeout
}

// Get yields one outcome per top-level child in child order. A nested view
// yields a single nested outcome holding its collected children. Consecutive
// leaves are fetched in one batch, and a pending batch is flushed before a
// nested view is entered.
//
// One deadline is fixed when iteration starts; every fetch receives the time
// remaining until it. The first error ends the sequence; outcomes yielded
// before it stay valid.
func (r *Results) Get(ctx context.Context, opts GetOptions) iter.Seq2[Outcome, error] {
	return func(yield func(Outcome, error) bool) {
		if r.backend == nil {
			yield(Outcome{}, domain.ErrNoResultBackend)
			return
		}
		c := &collector{
			backend: r.backend,
			opts:    opts,
			now:     r.clock(),
		}
		c.deadline = c.now().Add(opts.timeout())
		c.walk(ctx, r, yield)
	}
}

// Wait blocks until every result is stored, the deadline passes, or (with
// RaiseOnError) a stored error is found. Values are discarded.
func (r *Results) Wait(ctx context.Context, opts GetOptions) error {
	opts.Block = true
	for _, err := range r.Get(ctx, opts) {
		if err != nil {
			return err
		}
	}
	return nil
}

// Collect drains Get into a slice.
func (r *Results) Collect(ctx context.Context, opts GetOptions) ([]Outcome, error) {
	out := make([]Outcome, 0, len(r.children))
	for outcome, err := range r.Get(ctx, opts) {
		if err != nil {
			return out, err
		}
		out = append(out, outcome)
	}
	return out, nil
}

type collector struct {
	backend  Backend
	opts     GetOptions
	now      func() time.Time
	deadline time.Time
}

func (c *collector) walk(ctx context.Context, r *Results, yield func(Outcome, error) bool) bool {
	var pending []string
	for _, child := range r.children {
		switch h := child.(type) {
		case Result:
			pending = append(pending, h.MessageID)
		case *Results:
			if !c.flush(ctx, pending, yield) {
				return false
			}
			pending = nil

			nested, err := c.materialize(ctx, h)
			if err != nil {
				yield(Outcome{}, err)
				return false
			}
			if !yield(NestedOutcome(nested), nil) {
				return false
			}
		}
	}
	return c.flush(ctx, pending, yield)
}

func (c *collector) materialize(ctx context.Context, r *Results) ([]Outcome, error) {
	out := make([]Outcome, 0, len(r.children))
	var failed error
	c.walk(ctx, r, func(outcome Outcome, err error) bool {
		if err != nil {
			failed = err
			return false
		}
		out = append(out, outcome)
		return true
	})
	return out, failed
}

func (c *collector) flush(ctx context.Context, ids []string, yield func(Outcome, error) bool) bool {
	if len(ids) == 0 {
		return true
	}
	if err := ctx.Err(); err != nil {
		yield(Outcome{}, err)
		return false
	}
	outcomes, err := c.backend.GetResults(ctx, ids, FetchOptions{
		Block:        c.opts.Block,
		Timeout:      c.remaining(),
		RaiseOnError: c.opts.RaiseOnError,
		Forget:       c.opts.Forget,
	})
	if err != nil {
		yield(Outcome{}, err)
		return false
	}
	if len(outcomes) != len(ids) {
		yield(Outcome{}, fmt.Errorf("result store returned %d outcomes for %d ids", len(outcomes), len(ids)))
		return false
	}
	for _, outcome := range outcomes {
		if !yield(outcome, nil) {
			return false
		}
	}
	return true
}

func (c *collector) remaining() time.Duration {
	return max(0, c.deadline.Sub(c.now()))
}
