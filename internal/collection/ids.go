package collection

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// IDNode is one entry of a nested message id structure: either a single
// message id or a list of entries. Lists stand for pipelines (one entry per
// step) and groups (one entry per member).
type IDNode struct {
	ID       string
	Children []IDNode
	list     bool
}

// LeafID wraps a single message id.
func LeafID(id string) IDNode {
	return IDNode{ID: id}
}

// IDList wraps a nested list of entries.
func IDList(children ...IDNode) IDNode {
	if children == nil {
		children = []IDNode{}
	}
	return IDNode{Children: children, list: true}
}

func (n IDNode) IsList() bool {
	return n.list
}

// Flatten returns every message id under n in traversal order.
func (n IDNode) Flatten() []string {
	if !n.list {
		return []string{n.ID}
	}
	out := make([]string, 0, len(n.Children))
	stack := []IDNode{n}
	for len(stack) > 0 {
		top := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if !top.list {
			out = append(out, top.ID)
			continue
		}
		for i := len(top.Children) - 1; i >= 0; i-- {
			stack = append(stack, top.Children[i])
		}
	}
	return out
}

func (n IDNode) MarshalJSON() ([]byte, error) {
	if n.list {
		children := n.Children
		if children == nil {
			children = []IDNode{}
		}
		return json.Marshal(children)
	}
	return json.Marshal(n.ID)
}

func (n *IDNode) UnmarshalJSON(raw []byte) error {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return fmt.Errorf("empty message id")
	}
	if raw[0] == '[' {
		var children []IDNode
		if err := json.Unmarshal(raw, &children); err != nil {
			return err
		}
		*n = IDList(children...)
		return nil
	}
	var id string
	if err := json.Unmarshal(raw, &id); err != nil {
		return fmt.Errorf("message id must be a string or a list: %w", err)
	}
	*n = LeafID(id)
	return nil
}
