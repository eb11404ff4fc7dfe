package core

import (
	"context"
	"fmt"
	"sort"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

// TemplateTree is a payload shape stored as an arena: nodes live in one slice
// and reference their children by index. It is built once per webhook and
// reused for every record.
type TemplateTree struct {
	nodes    []TemplateNode
	children [][]int
	roots    []int
}

// NewTemplateTree accepts nodes either nested through Children or flat and
// linked through ParentID. Siblings are ordered by Position, then by
// declaration order.
func NewTemplateTree(nodes []TemplateNode) (*TemplateTree, error) {
	tree := &TemplateTree{}
	for _, node := range nodes {
		tree.add(node, -1)
	}

	byID := make(map[string]int, len(tree.nodes))
	for idx, node := range tree.nodes {
		if id := strings.TrimSpace(node.ID); id != "" {
			byID[id] = idx
		}
	}
	linked := make([]bool, len(tree.nodes))
	for idx := range tree.nodes {
		for _, child := range tree.children[idx] {
			linked[child] = true
		}
	}
	for idx, node := range tree.nodes {
		if linked[idx] {
			continue
		}
		parentID := strings.TrimSpace(node.ParentID)
		if parentID == "" {
			tree.roots = append(tree.roots, idx)
			continue
		}
		parent, ok := byID[parentID]
		if !ok {
			return nil, fmt.Errorf("core: template node %q references unknown parent %q", node.ID, parentID)
		}
		if parent == idx {
			return nil, fmt.Errorf("core: template node %q is its own parent", node.ID)
		}
		tree.children[parent] = append(tree.children[parent], idx)
	}
	if err := tree.checkAcyclic(); err != nil {
		return nil, err
	}

	tree.sortSiblings(tree.roots)
	for idx := range tree.children {
		tree.sortSiblings(tree.children[idx])
	}
	return tree, nil
}

func (t *TemplateTree) add(node TemplateNode, parent int) int {
	children := node.Children
	node.Children = nil
	idx := len(t.nodes)
	t.nodes = append(t.nodes, node)
	t.children = append(t.children, nil)
	if parent >= 0 {
		t.children[parent] = append(t.children[parent], idx)
	}
	for _, child := range children {
		t.add(child, idx)
	}
	return idx
}

func (t *TemplateTree) checkAcyclic() error {
	reachable := 0
	seen := make([]bool, len(t.nodes))
	stack := append([]int(nil), t.roots...)
	for len(stack) > 0 {
		idx := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[idx] {
			continue
		}
		seen[idx] = true
		reachable++
		stack = append(stack, t.children[idx]...)
	}
	if reachable != len(t.nodes) {
		return fmt.Errorf("core: template nodes contain a parent cycle")
	}
	return nil
}

func (t *TemplateTree) sortSiblings(indexes []int) {
	sort.SliceStable(indexes, func(i, j int) bool {
		return t.nodes[indexes[i]].Position < t.nodes[indexes[j]].Position
	})
}

func (t *TemplateTree) Len() int {
	if t == nil {
		return 0
	}
	return len(t.nodes)
}

// Build resolves the tree against record. Named leaves become object keys,
// unnamed leaves become positional values and a level that produced any
// positional value returns the positional list instead of the object.
// A resolution failure aborts the whole build.
func (t *TemplateTree) Build(ctx context.Context, resolver *ValueResolver, record Record) (any, error) {
	if t == nil {
		return map[string]any{}, nil
	}
	if resolver == nil {
		return nil, fmt.Errorf("core: value resolver is required")
	}
	value, err := t.buildLevel(ctx, resolver, t.roots, record)
	if err != nil {
		return nil, wrapRecordError(err, record)
	}
	return value, nil
}

// buildLevel handles the group siblings before the leaf siblings, each in
// declaration order. A leaf therefore wins a name shared with a group, and
// group values come first in a positional list.
func (t *TemplateTree) buildLevel(ctx context.Context, resolver *ValueResolver, indexes []int, record Record) (any, error) {
	object := map[string]any{}
	var positional []any
	place := func(node TemplateNode, value any) {
		if name := strings.TrimSpace(node.Name); name != "" {
			object[name] = value
			return
		}
		positional = append(positional, value)
	}

	groups, leaves := t.partition(indexes)
	for _, idx := range groups {
		node := t.nodes[idx]
		built, err := t.buildLevel(ctx, resolver, t.children[idx], record)
		if err != nil {
			return nil, err
		}
		value := built
		if node.IsArray {
			if list, ok := built.([]any); ok {
				value = list
			} else {
				value = []any{built}
			}
		}
		place(node, value)
	}
	for _, idx := range leaves {
		node := t.nodes[idx]
		resolved, err := resolver.Resolve(ctx, node.ValueSource, record)
		if err != nil {
			return nil, err
		}
		place(node, resolved)
	}

	if len(positional) > 0 {
		return positional, nil
	}
	return object, nil
}

func (t *TemplateTree) partition(indexes []int) (groups []int, leaves []int) {
	for _, idx := range indexes {
		if t.nodes[idx].IsGroup {
			groups = append(groups, idx)
			continue
		}
		leaves = append(leaves, idx)
	}
	return groups, leaves
}

// wrapRecordError names the record in the outer error while keeping the
// category and text code of the underlying failure.
func wrapRecordError(err error, record Record) error {
	message := fmt.Sprintf("core: resolve template for %s", record.DisplayID())
	metadata := map[string]any{"record": record.DisplayID(), "table": record.Table, "record_id": record.ID}
	var rich *goerrors.Error
	if goerrors.As(err, &rich) {
		return goerrors.Wrap(err, rich.Category, message).
			WithCode(rich.Code).
			WithTextCode(rich.TextCode).
			WithMetadata(metadata)
	}
	return WrapError(err, goerrors.CategoryInternal, ErrorInternal, message, metadata)
}
