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
	"strings"
	"time"

	"github.com/AleutianAI/CivicLedger/services/registry/record"
)

// =============================================================================
// Tree
// =============================================================================

// Tree is the identifier index over the external record list.
//
// The zero value is not usable; construct with New or NewFromRecords.
// See the package documentation for the ownership and concurrency
// contract.
type Tree struct {
	root *Node
	size int
}

// New returns an empty tree.
func New() *Tree {
	return &Tree{}
}

// NewFromRecords builds a tree over records already resident in an
// external list, where each record's position equals its slice index.
// Records with duplicate identifiers after the first are skipped, same
// as Insert.
func NewFromRecords(recs []record.Record) *Tree {
	t := New()
	for i, rec := range recs {
		t.Insert(rec, i)
	}
	return t
}

// =============================================================================
// Core Operations
// =============================================================================

// Insert links a new node for rec at the first empty slot on the search
// path for its identifier, recording position as the record's offset in
// the external list.
//
// Inserting an identifier already present is a silent no-op: no update,
// no duplicate, no error. Callers that need to know whether the key was
// new must Search first.
func (t *Tree) Insert(rec record.Record, position int) {
	start := time.Now()

	var inserted bool
	t.root, inserted = insertNode(t.root, rec, position)
	if inserted {
		t.size++
	}

	recordMutation("insert", start, inserted)
	recordTreeSize(t.size)
}

// insertNode descends recursively and returns the (possibly new)
// subtree root plus whether a node was created.
func insertNode(n *Node, rec record.Record, position int) (*Node, bool) {
	if n == nil {
		return &Node{Record: rec, Position: position}, true
	}

	var inserted bool
	switch cmp := strings.Compare(rec.CPF, n.Record.CPF); {
	case cmp < 0:
		n.left, inserted = insertNode(n.left, rec, position)
	case cmp > 0:
		n.right, inserted = insertNode(n.right, rec, position)
	default:
		// Duplicate key: keep the existing node untouched.
		return n, false
	}
	return n, inserted
}

// Search descends from the root comparing key against each node's
// identifier and returns the matching node, or (nil, false) when a leaf
// boundary is passed with no match. O(height) comparisons; absence is a
// normal outcome, not an error.
func (t *Tree) Search(key string) (*Node, bool) {
	n := t.root
	for n != nil {
		switch cmp := strings.Compare(key, n.Record.CPF); {
		case cmp < 0:
			n = n.left
		case cmp > 0:
			n = n.right
		default:
			return n, true
		}
	}
	return nil, false
}

// Contains reports whether key is indexed.
func (t *Tree) Contains(key string) bool {
	_, ok := t.Search(key)
	return ok
}

// Remove unlinks the node with the given key.
//
// A node with at most one child is replaced by that child. A node with
// two children has its in-order successor's Record and position copied
// into it, then the successor's original node is removed from the right
// subtree; the successor has no left child by construction, so that
// removal falls into the simple cases. No rebalancing is performed.
//
// Removing an absent key is a no-op; the tree is left unchanged.
func (t *Tree) Remove(key string) {
	start := time.Now()

	var removed bool
	t.root, removed = removeNode(t.root, key)
	if removed {
		t.size--
	}

	recordMutation("remove", start, removed)
	recordTreeSize(t.size)
}

// removeNode descends recursively and returns the new subtree root plus
// whether a node was removed.
func removeNode(n *Node, key string) (*Node, bool) {
	if n == nil {
		return nil, false
	}

	var removed bool
	switch cmp := strings.Compare(key, n.Record.CPF); {
	case cmp < 0:
		n.left, removed = removeNode(n.left, key)
		return n, removed
	case cmp > 0:
		n.right, removed = removeNode(n.right, key)
		return n, removed
	}

	// Found the node to remove.
	if n.left == nil {
		return n.right, true
	}
	if n.right == nil {
		return n.left, true
	}

	// Two children: promote the in-order successor's payload into this
	// node, then remove the successor from the right subtree. The node
	// object itself stays linked; only Record and Position change.
	succ := minNode(n.right)
	n.Record = succ.Record
	n.Position = succ.Position
	n.right, _ = removeNode(n.right, succ.Record.CPF) // present by construction
	return n, true
}

// minNode returns the leftmost node of the subtree rooted at n.
// n must be non-nil.
func minNode(n *Node) *Node {
	for n.left != nil {
		n = n.left
	}
	return n
}

// maxNode returns the rightmost node of the subtree rooted at n.
// n must be non-nil.
func maxNode(n *Node) *Node {
	for n.right != nil {
		n = n.right
	}
	return n
}

// Copy returns a fully independent deep copy: a new tree whose nodes
// and Records share nothing with the original. Mutating either tree,
// including payload mutation through a Search handle, never affects the
// other.
func (t *Tree) Copy() *Tree {
	start := time.Now()

	cp := &Tree{
		root: t.root.clone(),
		size: t.size,
	}

	recordMutation("copy", start, true)
	return cp
}

// Clear removes every node, leaving the tree empty. Node ownership is
// tree-structured with no external aliasing of links, so releasing the
// root releases the whole graph.
func (t *Tree) Clear() {
	start := time.Now()

	t.root = nil
	t.size = 0

	recordMutation("clear", start, true)
	recordTreeSize(0)
}

// =============================================================================
// Inspection
// =============================================================================

// Len returns the number of indexed keys.
func (t *Tree) Len() int {
	return t.size
}

// IsEmpty reports whether the tree has no nodes.
func (t *Tree) IsEmpty() bool {
	return t.root == nil
}

// Height returns the number of nodes on the longest root-to-leaf path:
// 0 for an empty tree, 1 for a single node, N for a degenerate chain of
// N sequential keys.
func (t *Tree) Height() int {
	return height(t.root)
}

func height(n *Node) int {
	if n == nil {
		return 0
	}
	lh, rh := height(n.left), height(n.right)
	if lh > rh {
		return lh + 1
	}
	return rh + 1
}

// MemoryUsage estimates the heap bytes held by the tree: node structs
// plus record string backing arrays.
func (t *Tree) MemoryUsage() int64 {
	return t.root.approxBytes()
}

// TreeStats summarizes the tree's shape for stats endpoints and logs.
type TreeStats struct {
	// Size is the number of indexed keys.
	Size int `json:"size"`

	// Height is the longest root-to-leaf path in nodes.
	Height int `json:"height"`

	// MinKey and MaxKey are the smallest and largest indexed
	// identifiers, empty when the tree is empty.
	MinKey string `json:"min_key"`
	MaxKey string `json:"max_key"`

	// ApproxBytes estimates the tree's heap footprint.
	ApproxBytes int64 `json:"approx_bytes"`
}

// Stats returns current shape statistics. O(n) over the tree.
func (t *Tree) Stats() TreeStats {
	stats := TreeStats{
		Size:        t.size,
		Height:      t.Height(),
		ApproxBytes: t.MemoryUsage(),
	}
	if t.root != nil {
		stats.MinKey = minNode(t.root).Record.CPF
		stats.MaxKey = maxNode(t.root).Record.CPF
	}
	return stats
}

// =============================================================================
// Invariant Checking
// =============================================================================

// Validate walks the whole tree and verifies the ordering invariant
// (every node's key strictly between its ancestors' bounds) and that
// the tracked size matches the node count. Returns nil on a healthy
// tree, or ErrInvariantViolated wrapped with the failing detail.
//
// Intended for tests and debug endpoints; O(n).
func (t *Tree) Validate() error {
	count := 0
	if err := validateNode(t.root, nil, nil, &count); err != nil {
		return err
	}
	if count != t.size {
		return fmt.Errorf("%w: tracked size %d, counted %d nodes", ErrInvariantViolated, t.size, count)
	}
	return nil
}

// validateNode checks n against the open interval (lo, hi); nil bounds
// are unbounded.
func validateNode(n *Node, lo, hi *string, count *int) error {
	if n == nil {
		return nil
	}
	key := n.Record.CPF
	if lo != nil && key <= *lo {
		return fmt.Errorf("%w: key %q not greater than ancestor bound %q", ErrInvariantViolated, key, *lo)
	}
	if hi != nil && key >= *hi {
		return fmt.Errorf("%w: key %q not less than ancestor bound %q", ErrInvariantViolated, key, *hi)
	}
	*count++
	if err := validateNode(n.left, lo, &key, count); err != nil {
		return err
	}
	return validateNode(n.right, &key, hi, count)
}
