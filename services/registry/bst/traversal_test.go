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
	"errors"
	"testing"
)

// The fixture tree used throughout, inserted as 50, 30, 70, 20, 40:
//
//	        50
//	      /    \
//	    30      70
//	   /  \
//	  20    40
func fixtureTree() *Tree {
	return buildTree("50", "30", "70", "20", "40")
}

// =============================================================================
// Traversal Orders
// =============================================================================

func TestTraverse_Orders(t *testing.T) {
	tree := fixtureTree()

	cases := []struct {
		order Order
		want  []string
	}{
		{PreOrder, []string{"50", "30", "20", "40", "70"}},
		{InOrder, []string{"20", "30", "40", "50", "70"}},
		{PostOrder, []string{"20", "40", "30", "70", "50"}},
		{BreadthFirst, []string{"50", "30", "70", "20", "40"}},
	}
	for _, tc := range cases {
		t.Run(tc.order.String(), func(t *testing.T) {
			assertKeys(t, tree.Keys(tc.order), tc.want)
		})
	}
}

func TestTraverse_RecordsCarryPayload(t *testing.T) {
	tree := fixtureTree()

	records := tree.Traverse(InOrder)
	if len(records) != 5 {
		t.Fatalf("record count = %d, want 5", len(records))
	}
	if records[0].CPF != "20" {
		t.Fatalf("first in-order key = %q, want %q", records[0].CPF, "20")
	}
	if records[0].Name != "holder of 20" {
		t.Fatalf("payload not carried: %q", records[0].Name)
	}
}

func TestTraverse_EntriesCarryPositions(t *testing.T) {
	tree := fixtureTree()

	// Positions follow insertion order: 50->0, 30->1, 70->2, 20->3, 40->4.
	wantPos := map[string]int{"50": 0, "30": 1, "70": 2, "20": 3, "40": 4}

	for _, order := range []Order{PreOrder, InOrder, PostOrder, BreadthFirst} {
		for _, entry := range tree.Entries(order) {
			if wantPos[entry.Record.CPF] != entry.Position {
				t.Fatalf("order %s: position for %q = %d, want %d",
					order, entry.Record.CPF, entry.Position, wantPos[entry.Record.CPF])
			}
		}
	}
}

func TestTraverse_BreadthFirstLevelByLevel(t *testing.T) {
	// A deeper tree: each level must drain fully before the next.
	//
	//	      40
	//	    /    \
	//	  20      60
	//	 /  \    /  \
	//	10  30  50  70
	tree := buildTree("40", "20", "60", "10", "30", "50", "70")
	assertKeys(t, tree.Keys(BreadthFirst), []string{"40", "20", "60", "10", "30", "50", "70"})
}

func TestTraverse_SingleNode(t *testing.T) {
	tree := buildTree("42")
	for _, order := range []Order{PreOrder, InOrder, PostOrder, BreadthFirst} {
		assertKeys(t, tree.Keys(order), []string{"42"})
	}
}

func TestTraverse_Empty(t *testing.T) {
	tree := New()
	for _, order := range []Order{PreOrder, InOrder, PostOrder, BreadthFirst} {
		if got := tree.Keys(order); len(got) != 0 {
			t.Fatalf("order %s on empty tree yielded %v", order, got)
		}
		if got := tree.Traverse(order); len(got) != 0 {
			t.Fatalf("order %s on empty tree yielded %d records", order, len(got))
		}
	}
}

// =============================================================================
// Count Conservation
// =============================================================================

// Every order visits every node exactly once; the orders differ only in
// sequence, never in membership.
func TestTraverse_CountConservation(t *testing.T) {
	tree := fixtureTree()

	inOrder := tree.Keys(InOrder)
	for _, order := range []Order{PreOrder, PostOrder, BreadthFirst} {
		got := tree.Keys(order)
		if len(got) != tree.Len() {
			t.Fatalf("order %s yielded %d keys, want %d", order, len(got), tree.Len())
		}
		seen := make(map[string]bool, len(got))
		for _, k := range got {
			if seen[k] {
				t.Fatalf("order %s visited %q twice", order, k)
			}
			seen[k] = true
		}
		for _, k := range inOrder {
			if !seen[k] {
				t.Fatalf("order %s missed key %q", order, k)
			}
		}
	}
}

func TestTraverse_AfterRemoval(t *testing.T) {
	tree := fixtureTree()
	tree.Remove("30") // two children: successor 40 is promoted

	assertKeys(t, tree.Keys(InOrder), []string{"20", "40", "50", "70"})
	assertKeys(t, tree.Keys(BreadthFirst), []string{"50", "40", "70", "20"})

	for _, order := range []Order{PreOrder, InOrder, PostOrder, BreadthFirst} {
		if got := len(tree.Keys(order)); got != 4 {
			t.Fatalf("order %s yielded %d keys after removal, want 4", order, got)
		}
	}
}

// =============================================================================
// Order Parsing
// =============================================================================

func TestParseOrder(t *testing.T) {
	cases := map[string]Order{
		"pre":       PreOrder,
		"preorder":  PreOrder,
		"in":        InOrder,
		"inorder":   InOrder,
		"post":      PostOrder,
		"postorder": PostOrder,
		"breadth":   BreadthFirst,
		"level":     BreadthFirst,
		"bfs":       BreadthFirst,
	}
	for name, want := range cases {
		got, err := ParseOrder(name)
		if err != nil {
			t.Fatalf("ParseOrder(%q) error: %v", name, err)
		}
		if got != want {
			t.Fatalf("ParseOrder(%q) = %v, want %v", name, got, want)
		}
	}
}

func TestParseOrder_Unknown(t *testing.T) {
	_, err := ParseOrder("sideways")
	if !errors.Is(err, ErrUnknownOrder) {
		t.Fatalf("expected ErrUnknownOrder, got %v", err)
	}
}

func TestOrder_StringRoundTrip(t *testing.T) {
	for _, order := range []Order{PreOrder, InOrder, PostOrder, BreadthFirst} {
		parsed, err := ParseOrder(order.String())
		if err != nil {
			t.Fatalf("round trip %v: %v", order, err)
		}
		if parsed != order {
			t.Fatalf("round trip %v came back as %v", order, parsed)
		}
	}
	if Order(99).String() != "unknown" {
		t.Fatalf("invalid order should render as unknown")
	}
}
