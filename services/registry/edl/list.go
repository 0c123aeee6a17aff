// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package edl

import (
	"context"

	"github.com/AleutianAI/CivicLedger/services/registry/record"
)

// List is the append-only external record list.
//
// # Description
//
// Positions are assigned sequentially from zero in append order and remain
// valid forever. Deletion never removes a slot; it flips the record's
// Deleted flag in place. Implementations must be safe for concurrent use.
//
// # Thread Safety
//
// All methods are safe for concurrent use.
type List interface {
	// Append stores a record at the next position and returns that
	// position. The stored record is a copy; later mutation of the
	// caller's value does not affect the list.
	Append(ctx context.Context, rec record.Record) (int, error)

	// Get returns the record at a position. Deleted records are
	// returned with Deleted=true, never filtered. Returns
	// ErrPositionOutOfRange for positions never assigned by Append.
	Get(ctx context.Context, position int) (record.Record, error)

	// MarkDeleted sets the Deleted flag on the record at a position.
	// Idempotent: marking an already-deleted record succeeds. Returns
	// ErrPositionOutOfRange for positions never assigned by Append.
	MarkDeleted(ctx context.Context, position int) error

	// Len returns the number of appended records, deleted ones
	// included. Equal to the next position Append will assign.
	Len() int

	// Close releases backing resources. Operations after Close return
	// ErrListClosed where the backend can detect it.
	Close() error
}

// Snapshotter is implemented by lists that can produce a deep copy of
// their contents in one pass. The service layer uses it for dataset
// cloning, falling back to per-position Get when unavailable.
type Snapshotter interface {
	// Snapshot returns copies of all records in position order,
	// deleted ones included.
	Snapshot(ctx context.Context) ([]record.Record, error)
}
