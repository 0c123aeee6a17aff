// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package bst implements the binary search tree that indexes the external
// record list by identifier.
//
// Each node stores a Record copy (for key comparison) and the position of
// the authoritative record in the external list. The tree orders nodes
// lexicographically by identifier; for every node, all keys in its left
// subtree are strictly less than its key and all keys in its right subtree
// are strictly greater. Duplicate keys are never stored: inserting an
// existing key is a silent no-op.
//
// Removal uses successor promotion: a node with two children has the
// leftmost node of its right subtree copied into it (Record and position),
// then that successor node is removed from the right subtree. No
// rebalancing is performed, so tree height is a function of insertion
// order and degrades to linear on sorted input. Callers that may face
// adversarial key sequences must bound them; the tree does not.
//
// # Ownership Model
//
// A Tree exclusively owns its node graph. Search returns a *Node handle
// through which the caller may read, and deliberately may mutate, the
// node's Record payload; the structural links are unexported and can only
// change through Tree operations. Copy produces a fully independent tree:
// no node or Record is shared, and mutating either side never affects the
// other.
//
// # Positions
//
// A node's position is a zero-based offset into the external list, valid
// as assigned at insertion time. The tree never re-validates positions; if
// the external list compacts or reorders, the index must be rebuilt by the
// caller.
//
// # Thread Safety
//
// Not safe for concurrent use. All operations assume a single logical
// owner performing them sequentially; concurrent callers must serialize
// externally (the registry service does this with a per-dataset lock).
package bst
