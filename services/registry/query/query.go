// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package query resolves index hits against the external record list.
//
// The index answers "which position holds this key"; the list is the
// authoritative source of record content and deletion state. The helpers
// here compose the two: a lookup is a tree search followed by a list
// fetch, and a sorted materialization is an in-order walk with every
// position resolved against the list. Deletion state is read, never
// written: the index is not pruned when a record is logically deleted,
// which is exactly what lets a lookup tell "never existed" apart from
// "existed and was deleted".
//
// The helpers take no locks; the caller owns serialization (the service
// layer holds the dataset lock around them).
package query

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/CivicLedger/services/registry/bst"
	"github.com/AleutianAI/CivicLedger/services/registry/edl"
	"github.com/AleutianAI/CivicLedger/services/registry/record"
	"github.com/AleutianAI/CivicLedger/services/registry/telemetry"
)

// tracer for query operations.
var tracer = otel.Tracer("civicledger.query")

// Lookup resolves a key through the index and the external list.
//
// # Description
//
// Two-stage resolution. Stage one searches the index: an absent key is
// ErrRecordNotFound. Stage two fetches the node's position from the list
// and reads the deletion flag there (the node's own Record copy is stale
// by design once the list marks deletion): a set flag is ErrRecordDeleted,
// otherwise the authoritative record is returned.
//
// # Inputs
//
//   - ctx: Context for cancellation and tracing.
//   - tree: The index. Must not be nil.
//   - list: The external record list the tree's positions point into.
//   - key: Identifier to resolve.
//
// # Outputs
//
//   - record.Record: The authoritative record, when found and live.
//   - error: ErrRecordNotFound, ErrRecordDeleted, or a list access failure.
//
// # Example
//
//	rec, err := query.Lookup(ctx, ds.Index, ds.List, "12345678909")
//	switch {
//	case errors.Is(err, query.ErrRecordNotFound):
//	    // never indexed
//	case errors.Is(err, query.ErrRecordDeleted):
//	    // indexed, logically deleted in the list
//	case err != nil:
//	    // storage failure
//	}
func Lookup(ctx context.Context, tree *bst.Tree, list edl.List, key string) (record.Record, error) {
	ctx, span := tracer.Start(ctx, "query.lookup",
		trace.WithAttributes(attribute.Int("tree_size", tree.Len())))
	defer span.End()

	node, ok := tree.Search(key)
	if !ok {
		span.SetAttributes(attribute.String("outcome", "not_found"))
		return record.Record{}, fmt.Errorf("key %q: %w", key, ErrRecordNotFound)
	}

	rec, err := list.Get(ctx, node.Position)
	if err != nil {
		span.SetAttributes(attribute.String("outcome", "error"))
		return record.Record{}, fmt.Errorf("resolve position %d for key %q: %w", node.Position, key, err)
	}

	if rec.Deleted {
		span.SetAttributes(attribute.String("outcome", "deleted"))
		return record.Record{}, fmt.Errorf("key %q at position %d: %w", key, node.Position, ErrRecordDeleted)
	}

	span.SetAttributes(attribute.String("outcome", "found"))
	return rec, nil
}

// MaterializeSorted builds a key-ordered view of the list through the index.
//
// # Description
//
// Walks the index in-order (ascending key order) and resolves every
// position against the external list, so the returned records carry the
// list's authoritative content and deletion flags, not the index's
// comparison copies. Deleted records are included, flagged; filtering is a
// caller decision. The result is freshly allocated and nothing is mutated.
//
// # Inputs
//
//   - ctx: Context for cancellation and tracing.
//   - tree: The index. Must not be nil.
//   - list: The external record list the tree's positions point into.
//
// # Outputs
//
//   - []record.Record: Records ascending by identifier. Empty slice for an
//     empty tree.
//   - error: First list access failure, wrapped with the failing position.
func MaterializeSorted(ctx context.Context, tree *bst.Tree, list edl.List) ([]record.Record, error) {
	ctx, span := tracer.Start(ctx, "query.materialize_sorted",
		trace.WithAttributes(attribute.Int("tree_size", tree.Len())))
	defer span.End()

	entries := tree.Entries(bst.InOrder)
	out := make([]record.Record, 0, len(entries))
	for _, entry := range entries {
		rec, err := list.Get(ctx, entry.Position)
		if err != nil {
			span.SetAttributes(attribute.String("outcome", "error"))
			return nil, fmt.Errorf("resolve position %d for key %q: %w", entry.Position, entry.Record.CPF, err)
		}
		out = append(out, rec)
	}

	span.SetAttributes(attribute.Int("records", len(out)))
	telemetry.LoggerWithTrace(ctx, slog.Default()).Debug("materialize_sorted: view built",
		slog.Int("records", len(out)))
	return out, nil
}
