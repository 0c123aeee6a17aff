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
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	badgerdb "github.com/dgraph-io/badger/v4"

	"github.com/AleutianAI/CivicLedger/services/registry/record"
	storage "github.com/AleutianAI/CivicLedger/services/registry/storage/badger"
)

// Key layout. Record keys embed the position big-endian so that the
// byte-wise key order badger iterates in is also position order.
const recKeyPrefix = "rec/"

// metaNextKey stores the next position to assign, as 8 big-endian bytes.
// Written in the same transaction as the record it accounts for.
var metaNextKey = []byte("meta/next")

// recKey builds the storage key for a position.
func recKey(position int) []byte {
	key := make([]byte, len(recKeyPrefix)+8)
	copy(key, recKeyPrefix)
	binary.BigEndian.PutUint64(key[len(recKeyPrefix):], uint64(position))
	return key
}

// BadgerList is a List persisted in BadgerDB.
//
// # Description
//
// The backend for datasets created with backend "badger". One record per
// key under the "rec/" prefix, JSON-encoded, plus a next-position counter
// under "meta/next" committed atomically with every append. The counter is
// what makes Len cheap after reopen: the list is append-only and positions
// are never reclaimed, so Len always equals the counter.
//
// The list owns the database handle it is opened with and closes it on
// Close.
//
// # Thread Safety
//
// Safe for concurrent use. Appends are serialized so position assignment
// stays gapless; reads run on badger's snapshot transactions.
type BadgerList struct {
	db     *storage.DB
	mu     sync.RWMutex
	next   int
	closed bool
}

// OpenBadgerList opens a record list over a badger database.
//
// # Description
//
// Restores the next-position counter from "meta/next" (zero for a fresh
// database) and takes ownership of the handle. A database previously
// written by another BadgerList resumes exactly where it left off.
//
// # Inputs
//
//   - db: Open badger database. Must not be nil. Owned by the list after
//     this call; do not close it separately.
//
// # Outputs
//
//   - *BadgerList: Ready for use.
//   - error: Non-nil if the counter cannot be read or is corrupt.
func OpenBadgerList(db *storage.DB) (*BadgerList, error) {
	if db == nil {
		return nil, errors.New("db must not be nil")
	}

	l := &BadgerList{db: db}
	err := db.WithReadTxn(context.Background(), func(txn *badgerdb.Txn) error {
		item, err := txn.Get(metaNextKey)
		if errors.Is(err, badgerdb.ErrKeyNotFound) {
			return nil // fresh database, counter stays zero
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			if len(val) != 8 {
				return fmt.Errorf("counter has %d bytes, want 8", len(val))
			}
			l.next = int(binary.BigEndian.Uint64(val))
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("restore next-position counter: %w", err)
	}
	return l, nil
}

// Append stores a record at the next position.
//
// # Description
//
// Writes the JSON-encoded record and the bumped counter in one
// transaction, so a crash never leaves the counter pointing past a
// missing record.
//
// # Outputs
//
//   - int: The assigned position.
//   - error: ErrListClosed after Close; otherwise encoding or storage
//     failures.
func (l *BadgerList) Append(ctx context.Context, rec record.Record) (int, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return 0, fmt.Errorf("encode record: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return 0, ErrListClosed
	}

	pos := l.next
	err = l.db.WithTxn(ctx, func(txn *badgerdb.Txn) error {
		if err := txn.Set(recKey(pos), data); err != nil {
			return err
		}
		var counter [8]byte
		binary.BigEndian.PutUint64(counter[:], uint64(pos+1))
		return txn.Set(metaNextKey, counter[:])
	})
	if err != nil {
		return 0, fmt.Errorf("append record at position %d: %w", pos, err)
	}

	l.next = pos + 1
	return pos, nil
}

// Get returns the record at a position, deleted or not.
func (l *BadgerList) Get(ctx context.Context, position int) (record.Record, error) {
	if err := l.checkPosition(position); err != nil {
		return record.Record{}, err
	}

	var rec record.Record
	err := l.db.WithReadTxn(ctx, func(txn *badgerdb.Txn) error {
		item, err := txn.Get(recKey(position))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &rec)
		})
	})
	if err != nil {
		return record.Record{}, fmt.Errorf("get record at position %d: %w", position, err)
	}
	return rec, nil
}

// MarkDeleted sets the Deleted flag on the record at a position.
//
// # Description
//
// Read-modify-write in a single transaction. Idempotent: a record that is
// already deleted is rewritten unchanged.
func (l *BadgerList) MarkDeleted(ctx context.Context, position int) error {
	if err := l.checkPosition(position); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return ErrListClosed
	}

	err := l.db.WithTxn(ctx, func(txn *badgerdb.Txn) error {
		item, err := txn.Get(recKey(position))
		if err != nil {
			return err
		}

		var rec record.Record
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &rec)
		}); err != nil {
			return err
		}

		rec.Deleted = true
		data, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		return txn.Set(recKey(position), data)
	})
	if err != nil {
		return fmt.Errorf("mark position %d deleted: %w", position, err)
	}
	return nil
}

// Len returns the number of appended records, deleted ones included.
func (l *BadgerList) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.next
}

// Snapshot returns copies of all records in position order.
//
// # Description
//
// Single prefix scan over "rec/". Keys embed positions big-endian, so
// iteration order is position order and no sort is needed.
func (l *BadgerList) Snapshot(ctx context.Context) ([]record.Record, error) {
	l.mu.RLock()
	if l.closed {
		l.mu.RUnlock()
		return nil, ErrListClosed
	}
	length := l.next
	l.mu.RUnlock()

	out := make([]record.Record, 0, length)
	err := l.db.WithReadTxn(ctx, func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.Prefix = []byte(recKeyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var rec record.Record
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			}); err != nil {
				return err
			}
			out = append(out, rec)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("snapshot record list: %w", err)
	}
	return out, nil
}

// Close closes the backing database. Idempotent.
func (l *BadgerList) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil
	}
	l.closed = true
	return l.db.Close()
}

// checkPosition validates a position against the current length.
func (l *BadgerList) checkPosition(position int) error {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if l.closed {
		return ErrListClosed
	}
	if position < 0 || position >= l.next {
		return fmt.Errorf("%w: %d (list length %d)", ErrPositionOutOfRange, position, l.next)
	}
	return nil
}
