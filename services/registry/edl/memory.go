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
	"fmt"
	"sync"

	"github.com/AleutianAI/CivicLedger/services/registry/record"
)

// MemoryList is an in-memory List backed by a slice.
//
// # Description
//
// The default backend for ephemeral datasets. Append is amortized O(1),
// Get and MarkDeleted are O(1). Contents are lost when the process exits.
//
// # Thread Safety
//
// Safe for concurrent use. Reads take a shared lock, mutations an
// exclusive one.
type MemoryList struct {
	mu      sync.RWMutex
	records []record.Record
}

// NewMemoryList creates an empty in-memory record list.
//
// Outputs:
//
//	*MemoryList - Ready for use.
func NewMemoryList() *MemoryList {
	return &MemoryList{}
}

// NewMemoryListFrom creates a list pre-populated with copies of the given
// records, assigned positions 0..len-1 in order. Used by dataset cloning
// and seed import.
func NewMemoryListFrom(records []record.Record) *MemoryList {
	l := &MemoryList{records: make([]record.Record, len(records))}
	copy(l.records, records)
	return l
}

// Append stores a record at the next position.
//
// Outputs:
//
//	int - The assigned position (previous length).
//	error - Context cancellation only.
func (l *MemoryList) Append(ctx context.Context, rec record.Record) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, fmt.Errorf("context cancelled: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.records = append(l.records, rec)
	return len(l.records) - 1, nil
}

// Get returns the record at a position, deleted or not.
//
// Outputs:
//
//	record.Record - Copy of the stored record.
//	error - ErrPositionOutOfRange if the position was never assigned.
func (l *MemoryList) Get(ctx context.Context, position int) (record.Record, error) {
	if err := ctx.Err(); err != nil {
		return record.Record{}, fmt.Errorf("context cancelled: %w", err)
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	if position < 0 || position >= len(l.records) {
		return record.Record{}, fmt.Errorf("%w: %d (list length %d)", ErrPositionOutOfRange, position, len(l.records))
	}
	return l.records[position], nil
}

// MarkDeleted sets the Deleted flag in place. Idempotent.
//
// Outputs:
//
//	error - ErrPositionOutOfRange if the position was never assigned.
func (l *MemoryList) MarkDeleted(ctx context.Context, position int) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if position < 0 || position >= len(l.records) {
		return fmt.Errorf("%w: %d (list length %d)", ErrPositionOutOfRange, position, len(l.records))
	}
	l.records[position].Deleted = true
	return nil
}

// Len returns the number of appended records, deleted ones included.
func (l *MemoryList) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.records)
}

// Snapshot returns copies of all records in position order.
func (l *MemoryList) Snapshot(ctx context.Context) ([]record.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context cancelled: %w", err)
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]record.Record, len(l.records))
	copy(out, l.records)
	return out, nil
}

// Close is a no-op; an in-memory list holds no external resources.
func (l *MemoryList) Close() error {
	return nil
}
