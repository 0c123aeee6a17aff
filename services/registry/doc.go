// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package registry provides the CivicLedger registry HTTP service.
//
// The service manages named datasets. Each dataset pairs an append-only
// record list (the authoritative store, in memory or on Badger) with an
// in-memory binary search tree index keyed by CPF. The service exposes
// endpoints for:
//   - Creating, listing, inspecting, cloning, and dropping datasets
//   - Appending records and bulk-loading seed data
//   - Two-stage lookups that distinguish "never stored" from
//     "logically deleted"
//   - Index maintenance (physical key removal) independent of the list
//   - Tree traversals in pre, in, post, and breadth-first order
//   - Cached sorted snapshots resolved against the live list
//
// # Ownership and thread safety
//
// The tree index is single-owner by design: it performs no internal
// locking. Every dataset carries its own RWMutex, and all index and
// list access flows through that lock, so Service methods are safe for
// concurrent use. The sorted-view cache keys entries by (dataset,
// version); every mutation bumps the dataset version, which makes stale
// views unreachable without explicit invalidation.
//
// # Logical versus physical deletion
//
// MarkDeleted flips the record's deletion flag in the list and leaves
// the index untouched, so a subsequent lookup reports the tombstone
// rather than absence. RemoveFromIndex removes only the key from the
// tree; the record stays in the list and is no longer reachable by key.
// The two operations are deliberately independent.
package registry
