// Package collector walks a document subtree into ordered descriptors.
package collector

import (
	"context"
	"fmt"
	"strings"

	"canvasbridge/engine/internal/doctree"
)

// Descriptor is an immutable record of one visited node.
type Descriptor struct {
	Node  doctree.Node
	Path  []string
	Depth int
}

// PathString joins the path the way scan results present it.
func (d Descriptor) PathString() string {
	return strings.Join(d.Path, " > ")
}

type frame struct {
	id     string
	parent []string
}

// Collect returns rootID and its visible descendants in depth-first
// pre-order. A node with Visible=false is skipped together with its whole
// subtree. The walk keeps no state between calls.
func Collect(ctx context.Context, host doctree.Host, rootID string) ([]Descriptor, error) {
	root, err := host.Node(ctx, rootID)
	if err != nil {
		return nil, err
	}
	var out []Descriptor
	stack := []frame{}
	visit := func(n doctree.Node, parent []string) {
		if !n.Visible {
			return
		}
		path := make([]string, len(parent)+1)
		copy(path, parent)
		path[len(parent)] = n.DisplayName()
		out = append(out, Descriptor{Node: n, Path: path, Depth: len(path) - 1})
		for i := len(n.Children) - 1; i >= 0; i-- {
			stack = append(stack, frame{id: n.Children[i], parent: path})
		}
	}
	visit(root, nil)
	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		top := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		child, err := host.Node(ctx, top.id)
		if err != nil {
			return nil, fmt.Errorf("collect %s: %w", top.id, err)
		}
		visit(child, top.parent)
	}
	return out, nil
}

// FilterTypes keeps descriptors whose node type is in types, preserving order.
func FilterTypes(descriptors []Descriptor, types []string) []Descriptor {
	want := make(map[string]bool, len(types))
	for _, t := range types {
		want[t] = true
	}
	var out []Descriptor
	for _, d := range descriptors {
		if want[d.Node.Type] {
			out = append(out, d)
		}
	}
	return out
}
