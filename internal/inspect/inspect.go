// Package inspect answers the read-side queries of operators: paged state
// listings with search and sort, and the same states grouped by group id.
package inspect

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/animus-labs/flowq/internal/domain"
	"github.com/animus-labs/flowq/internal/repo"
)

const (
	DefaultPageSize = 100
	MaxPageSize     = 1000
)

var sortColumns = map[string]bool{
	"message_id":        true,
	"name":              true,
	"actor_name":        true,
	"priority":          true,
	"group_id":          true,
	"pipeline_id":       true,
	"enqueued_datetime": true,
	"started_datetime":  true,
	"end_datetime":      true,
}

// Page selects a window of a listing. A zero Size means DefaultPageSize.
type Page struct {
	Offset        int
	Size          int
	SearchValue   string
	SortColumn    string
	SortDirection string
}

func (p Page) Validate() error {
	var errs []error
	if p.Offset < 0 {
		errs = append(errs, errors.New("offset must be >= 0"))
	}
	if p.Size < 0 || p.Size > MaxPageSize {
		errs = append(errs, fmt.Errorf("size must be between 1 and %d", MaxPageSize))
	}
	if p.SortColumn != "" && !sortColumns[p.SortColumn] {
		errs = append(errs, fmt.Errorf("unknown sort column %q", p.SortColumn))
	}
	switch p.SortDirection {
	case "", "asc", "desc":
	default:
		errs = append(errs, fmt.Errorf("sort direction must be asc or desc, got %q", p.SortDirection))
	}
	return errors.Join(errs...)
}

func (p Page) window(n int) (int, int) {
	size := p.Size
	if size == 0 {
		size = DefaultPageSize
	}
	start := min(p.Offset, n)
	return start, min(start+size, n)
}

type StatesPage struct {
	Data  []map[string]any `json:"data"`
	Count int              `json:"count"`
}

type GroupSummary struct {
	GroupID  string           `json:"group_id"`
	Messages []map[string]any `json:"messages"`
}

type GroupsPage struct {
	Data  []GroupSummary `json:"data"`
	Count int            `json:"count"`
}

// State returns one record, or repo.ErrNotFound.
func State(ctx context.Context, states repo.StateRepository, messageID string) (map[string]any, error) {
	if states == nil {
		return nil, domain.ErrNoStateBackend
	}
	state, err := states.GetState(ctx, messageID)
	if err != nil {
		return nil, fmt.Errorf("message_id = %s: %w", messageID, err)
	}
	return state.AsMap(), nil
}

// States lists records matching SearchValue across message_id, name,
// actor_name, args and kwargs. Records without a value in SortColumn sort last
// in either direction. Count is the number of matches before paging.
func States(ctx context.Context, states repo.StateRepository, page Page) (StatesPage, error) {
	if states == nil {
		return StatesPage{}, domain.ErrNoStateBackend
	}
	if err := page.Validate(); err != nil {
		return StatesPage{}, err
	}
	all, err := states.GetStates(ctx)
	if err != nil {
		return StatesPage{}, fmt.Errorf("get states: %w", err)
	}

	data := make([]map[string]any, 0, len(all))
	search := strings.ToLower(page.SearchValue)
	for _, state := range all {
		item := state.AsMap()
		if search != "" && !matches(item, []string{"message_id", "name", "actor_name", "args", "kwargs"}, search) {
			continue
		}
		data = append(data, item)
	}
	if page.SortColumn != "" {
		data = sortItems(data, page.SortColumn, page.SortDirection == "desc")
	}

	start, end := page.window(len(data))
	return StatesPage{Data: data[start:end], Count: len(data)}, nil
}

// Groups gathers the states that belong to a group, newest group first by
// the enqueue time of its first recorded message. Search covers message_id,
// name, actor_name and group_id.
func Groups(ctx context.Context, states repo.StateRepository, page Page) (GroupsPage, error) {
	if states == nil {
		return GroupsPage{}, domain.ErrNoStateBackend
	}
	if err := page.Validate(); err != nil {
		return GroupsPage{}, err
	}
	all, err := states.GetStates(ctx)
	if err != nil {
		return GroupsPage{}, fmt.Errorf("get states: %w", err)
	}

	search := strings.ToLower(page.SearchValue)
	index := make(map[string]int)
	var groups []GroupSummary
	var firstEnqueued []time.Time
	for _, state := range all {
		if state.GroupID == "" {
			continue
		}
		if search != "" && !matches(state.AsMap(), []string{"message_id", "name", "actor_name", "group_id"}, search) {
			continue
		}
		i, ok := index[state.GroupID]
		if !ok {
			i = len(groups)
			index[state.GroupID] = i
			groups = append(groups, GroupSummary{GroupID: state.GroupID})
			var enqueued time.Time
			if state.EnqueuedAt != nil {
				enqueued = *state.EnqueuedAt
			}
			firstEnqueued = append(firstEnqueued, enqueued)
		}
		groups[i].Messages = append(groups[i].Messages, state.AsMap("args", "kwargs"))
	}

	order := make([]int, len(groups))
	for i := range order {
		order[i] = i
	}
	slices.SortStableFunc(order, func(a, b int) int {
		return firstEnqueued[b].Compare(firstEnqueued[a])
	})
	sorted := make([]GroupSummary, 0, len(groups))
	for _, i := range order {
		sorted = append(sorted, groups[i])
	}

	start, end := page.window(len(sorted))
	return GroupsPage{Data: sorted[start:end], Count: len(sorted)}, nil
}

func matches(item map[string]any, keys []string, value string) bool {
	parts := make([]string, 0, len(keys))
	for _, key := range keys {
		if v, ok := item[key]; ok && !isEmpty(v) {
			parts = append(parts, text(v))
		}
	}
	return strings.Contains(strings.ToLower(strings.Join(parts, "\x00")), value)
}

func text(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case time.Time:
		return t.Format(time.RFC3339Nano)
	default:
		blob, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(blob)
	}
}

func isEmpty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	case int:
		return t == 0
	case []any:
		return len(t) == 0
	case map[string]any:
		return len(t) == 0
	case time.Time:
		return t.IsZero()
	default:
		return false
	}
}

func sortItems(data []map[string]any, column string, desc bool) []map[string]any {
	present := make([]map[string]any, 0, len(data))
	var missing []map[string]any
	for _, item := range data {
		if isEmpty(item[column]) {
			missing = append(missing, item)
			continue
		}
		present = append(present, item)
	}
	slices.SortStableFunc(present, func(a, b map[string]any) int {
		c := compareValues(a[column], b[column])
		if desc {
			return -c
		}
		return c
	})
	return append(present, missing...)
}

func compareValues(a, b any) int {
	switch x := a.(type) {
	case string:
		if y, ok := b.(string); ok {
			return cmp.Compare(x, y)
		}
	case int:
		if y, ok := b.(int); ok {
			return cmp.Compare(x, y)
		}
	case time.Time:
		if y, ok := b.(time.Time); ok {
			return x.Compare(y)
		}
	}
	return cmp.Compare(text(a), text(b))
}
