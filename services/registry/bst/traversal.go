// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package bst

import (
	"fmt"

	"github.com/AleutianAI/CivicLedger/services/registry/record"
)

// =============================================================================
// Traversal Orders
// =============================================================================

// Order selects a traversal order. Every order visits each node exactly
// once; an empty tree yields an empty sequence.
type Order int

const (
	// PreOrder visits node, left subtree, right subtree. Root-first,
	// not key-ordered; the natural order for serializing structure.
	PreOrder Order = iota

	// InOrder visits left subtree, node, right subtree, yielding
	// records sorted ascending by identifier. This is the canonical way
	// to recover a sorted view of the index.
	InOrder

	// PostOrder visits left subtree, right subtree, node. Children
	// before parents; the order for bottom-up teardown or rebuild.
	PostOrder

	// BreadthFirst visits level by level, left-to-right within a
	// level, via a FIFO queue seeded with the root.
	BreadthFirst
)

// orderNames maps orders to their canonical names.
var orderNames = map[Order]string{
	PreOrder:     "pre",
	InOrder:      "in",
	PostOrder:    "post",
	BreadthFirst: "breadth",
}

// String returns the canonical order name ("pre", "in", "post",
// "breadth"), or "unknown" for an invalid value.
func (o Order) String() string {
	if name, ok := orderNames[o]; ok {
		return name
	}
	return "unknown"
}

// ParseOrder maps an order name to its Order. Accepts the canonical
// names plus the long aliases "preorder", "inorder", "postorder",
// "level", and "bfs". Returns ErrUnknownOrder for anything else.
func ParseOrder(s string) (Order, error) {
	switch s {
	case "pre", "preorder":
		return PreOrder, nil
	case "in", "inorder":
		return InOrder, nil
	case "post", "postorder":
		return PostOrder, nil
	case "breadth", "level", "bfs":
		return BreadthFirst, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownOrder, s)
	}
}

// =============================================================================
// Traversals
// =============================================================================

// Entry pairs a traversed record with its position in the external
// list, for callers that resolve content against the list rather than
// the tree's record copies.
type Entry struct {
	Record   record.Record `json:"record"`
	Position int           `json:"position"`
}

// Traverse returns the tree's records in the given order. The slice is
// freshly allocated; the tree is not modified.
func (t *Tree) Traverse(order Order) []record.Record {
	out := make([]record.Record, 0, t.size)
	t.walk(order, func(n *Node) {
		out = append(out, n.Record)
	})
	recordTraversal(order, len(out))
	return out
}

// Entries returns (record, position) pairs in the given order. The
// query helpers use the InOrder form to materialize sorted views
// resolved against the external list.
func (t *Tree) Entries(order Order) []Entry {
	out := make([]Entry, 0, t.size)
	t.walk(order, func(n *Node) {
		out = append(out, Entry{Record: n.Record, Position: n.Position})
	})
	recordTraversal(order, len(out))
	return out
}

// Keys returns the indexed identifiers in the given order.
func (t *Tree) Keys(order Order) []string {
	out := make([]string, 0, t.size)
	t.walk(order, func(n *Node) {
		out = append(out, n.Record.CPF)
	})
	recordTraversal(order, len(out))
	return out
}

// walk dispatches to the order's visitor. Unknown orders visit nothing.
func (t *Tree) walk(order Order, visit func(*Node)) {
	switch order {
	case PreOrder:
		preOrder(t.root, visit)
	case InOrder:
		inOrder(t.root, visit)
	case PostOrder:
		postOrder(t.root, visit)
	case BreadthFirst:
		breadthFirst(t.root, visit)
	}
}

func preOrder(n *Node, visit func(*Node)) {
	if n == nil {
		return
	}
	visit(n)
	preOrder(n.left, visit)
	preOrder(n.right, visit)
}

func inOrder(n *Node, visit func(*Node)) {
	if n == nil {
		return
	}
	inOrder(n.left, visit)
	visit(n)
	inOrder(n.right, visit)
}

func postOrder(n *Node, visit func(*Node)) {
	if n == nil {
		return
	}
	postOrder(n.left, visit)
	postOrder(n.right, visit)
	visit(n)
}

// breadthFirst emits nodes level by level. Each dequeued node is
// visited and its non-nil children enqueued left-then-right, which
// yields left-to-right order within every level.
func breadthFirst(root *Node, visit func(*Node)) {
	if root == nil {
		return
	}
	queue := []*Node{root}
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		visit(n)
		if n.left != nil {
			queue = append(queue, n.left)
		}
		if n.right != nil {
			queue = append(queue, n.right)
		}
	}
}
