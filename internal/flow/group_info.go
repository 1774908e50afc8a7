package flow

import "github.com/animus-labs/flowq/internal/domain"

// GroupInfo is stamped on every message of a group so consumers can track
// group completion without a separate index.
type GroupInfo struct {
	GroupID       string
	ChildrenCount int
	CancelOnError bool
}

func (g GroupInfo) AsMap() map[string]any {
	return map[string]any{
		"group_id":        g.GroupID,
		"children_count":  g.ChildrenCount,
		"cancel_on_error": g.CancelOnError,
	}
}

// GroupInfoFromOptions reads the group_info option. Counts decoded from JSON
// arrive as float64 and are accepted.
func GroupInfoFromOptions(options domain.Options) (GroupInfo, bool) {
	raw, ok := options.Map(OptionGroupInfo)
	if !ok {
		return GroupInfo{}, false
	}
	id, _ := raw["group_id"].(string)
	if id == "" {
		return GroupInfo{}, false
	}
	info := GroupInfo{GroupID: id}
	switch n := raw["children_count"].(type) {
	case int:
		info.ChildrenCount = n
	case int64:
		info.ChildrenCount = int(n)
	case uint64:
		info.ChildrenCount = int(n)
	case float64:
		info.ChildrenCount = int(n)
	}
	info.CancelOnError, _ = raw["cancel_on_error"].(bool)
	return info, true
}
