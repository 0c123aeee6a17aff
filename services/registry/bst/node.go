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
	"unsafe"

	"github.com/AleutianAI/CivicLedger/services/registry/record"
)

// Node is one index node: a Record copy used for key comparison, the
// record's position in the external list, and two exclusively owned
// children.
//
// Record and Position are exported so a Search handle can read them and
// so the record store's owner can patch payload fields in place. The
// child links are unexported: tree structure changes only through Tree
// operations, which is what keeps the ordering invariant enforceable.
type Node struct {
	// Record is the indexed record copy. Only its CPF participates in
	// ordering; the remaining fields are payload.
	Record record.Record

	// Position is the zero-based offset of the authoritative record in
	// the external list, assigned at insertion time.
	Position int

	left  *Node
	right *Node
}

// Key returns the identifier this node is ordered by.
func (n *Node) Key() string {
	return n.Record.CPF
}

// Left returns the left child, or nil. Read-only structural access.
func (n *Node) Left() *Node {
	return n.left
}

// Right returns the right child, or nil. Read-only structural access.
func (n *Node) Right() *Node {
	return n.right
}

// clone deep-copies the subtree rooted at n. Record is a value of
// immutable strings plus a bool, so copying the struct copies the data;
// no allocation is shared between original and clone.
func (n *Node) clone() *Node {
	if n == nil {
		return nil
	}
	return &Node{
		Record:   n.Record,
		Position: n.Position,
		left:     n.left.clone(),
		right:    n.right.clone(),
	}
}

// approxBytes estimates the heap footprint of the subtree rooted at n:
// the node struct itself plus the backing arrays of the record's string
// fields.
func (n *Node) approxBytes() int64 {
	if n == nil {
		return 0
	}
	own := int64(unsafe.Sizeof(*n)) +
		int64(len(n.Record.CPF)) +
		int64(len(n.Record.Name)) +
		int64(len(n.Record.BirthDate))
	return own + n.left.approxBytes() + n.right.approxBytes()
}
