// Package relationships implements declarative relation expansion: dotted
// expand paths parsed into a tree, and a batch loader that resolves each tree
// node with a single IN query per relation and stitches the children onto
// their parents in memory.
package relationships

import (
	"sort"
	"strings"

	"github.com/fennec-api/fennec/internal/orm/sqlb"
)

// Constraint narrows the query issued for one expand node.
type Constraint func(*sqlb.Builder)

// Node is one level of the expand tree. The zero depth node is the root and
// carries no relation itself.
type Node struct {
	children map[string]*Node
	callback Constraint
}

// NewTree returns an empty expand tree root.
func NewTree() *Node {
	return &Node{children: make(map[string]*Node)}
}

// Add registers a dotted relation path, creating intermediate nodes as
// needed. The constraint, when given, attaches to the path's final node;
// nil leaves any previously set constraint in place.
func (n *Node) Add(path string, cb Constraint) *Node {
	node := n
	for _, segment := range strings.Split(path, ".") {
		if segment == "" {
			continue
		}
		child, ok := node.children[segment]
		if !ok {
			child = NewTree()
			node.children[segment] = child
		}
		node = child
	}
	if cb != nil {
		node.callback = cb
	}
	return n
}

// ParsePaths builds an expand tree from dotted paths.
func ParsePaths(paths []string) *Node {
	tree := NewTree()
	for _, p := range paths {
		tree.Add(p, nil)
	}
	return tree
}

// Empty reports whether the tree requests no expansion at all.
func (n *Node) Empty() bool {
	return len(n.children) == 0
}

// Names returns the relation names at this level in sorted order.
func (n *Node) Names() []string {
	names := make([]string, 0, len(n.children))
	for name := range n.children {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Child returns the subtree for a relation name, or nil.
func (n *Node) Child(name string) *Node {
	return n.children[name]
}
