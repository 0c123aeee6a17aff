// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package edl provides the external record list: the append-only,
// position-addressable sequence that is the authoritative store of record
// content and deletion state.
//
// The index tree never owns record truth; it stores positions into a List.
// A List assigns zero-based positions in append order and keeps them stable
// forever: slots are never reclaimed, reordered, or compacted. Deleting a
// record is a logical mark (the Deleted flag flips in place, the slot
// stays), which is how a lookup can distinguish "never existed" from
// "existed and was deleted". Get on a deleted position succeeds and returns
// the record with Deleted=true; interpreting that flag is the query layer's
// job, not the store's.
//
// Two implementations ship: MemoryList (a slice under a RWMutex) for
// ephemeral datasets, and BadgerList (BadgerDB-backed) for datasets that
// must survive restarts. Both are safe for concurrent use.
package edl
