// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package query

import (
	"container/list"
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/AleutianAI/CivicLedger/services/registry/record"
)

// DefaultMaxCachedViews bounds the cache when no limit is configured.
const DefaultMaxCachedViews = 64

// BuildFunc builds a sorted view when the cache has no entry for a key.
type BuildFunc func(ctx context.Context) ([]record.Record, error)

// ViewKey identifies one materialized view. Version is the dataset's
// mutation counter: any append, deletion mark, or index removal bumps it,
// so a key is valid forever once built. Stale versions simply stop being
// asked for and age out of the LRU.
type ViewKey struct {
	DatasetID string
	Version   uint64
}

func (k ViewKey) String() string {
	return fmt.Sprintf("%s@%d", k.DatasetID, k.Version)
}

// viewEntry is one cached sorted view.
type viewEntry struct {
	key        ViewKey
	records    []record.Record
	builtAt    time.Time
	lruElement *list.Element
}

// CacheStats reports cache behavior counters.
type CacheStats struct {
	Entries    int   `json:"entries"`
	MaxEntries int   `json:"max_entries"`
	Hits       int64 `json:"hits"`
	Misses     int64 `json:"misses"`
	Builds     int64 `json:"builds"`
	Evictions  int64 `json:"evictions"`
}

// SortedViewCache caches materialized sorted views per dataset version.
//
// # Description
//
// Version-keyed LRU with build deduplication. Because the key embeds the
// dataset's mutation version, entries never go stale and need no
// invalidation on writes; a write simply moves lookups to a new key.
// Concurrent requests for a missing key share one build via singleflight
// instead of materializing the same view in parallel.
//
// # Thread Safety
//
// Safe for concurrent use. Returned slices are shared with other callers
// of the same key and must be treated as read-only.
type SortedViewCache struct {
	mu         sync.Mutex
	entries    map[ViewKey]*viewEntry
	lru        *list.List
	flight     singleflight.Group
	maxEntries int

	// Stats
	hits      int64
	misses    int64
	builds    int64
	evictions int64
}

// NewSortedViewCache creates a cache bounded to maxEntries views.
//
// Inputs:
//
//	maxEntries - Entry cap. Values < 1 fall back to DefaultMaxCachedViews.
//
// Outputs:
//
//	*SortedViewCache - Ready for use.
func NewSortedViewCache(maxEntries int) *SortedViewCache {
	if maxEntries < 1 {
		maxEntries = DefaultMaxCachedViews
	}
	return &SortedViewCache{
		entries:    make(map[ViewKey]*viewEntry),
		lru:        list.New(),
		maxEntries: maxEntries,
	}
}

// Get returns the cached view for key, building it on miss.
//
// # Description
//
// Fast path is a map hit under the lock. On miss, concurrent callers for
// the same key are collapsed into a single build; the winner's result is
// cached and handed to all of them. Build errors are returned to every
// waiter and nothing is cached, so the next request retries.
//
// # Outputs
//
//   - []record.Record: The sorted view. Read-only for the caller.
//   - error: The build's error, unmodified, on miss-and-fail.
func (c *SortedViewCache) Get(ctx context.Context, key ViewKey, build BuildFunc) ([]record.Record, error) {
	if records, ok := c.lookup(key); ok {
		atomic.AddInt64(&c.hits, 1)
		return records, nil
	}
	atomic.AddInt64(&c.misses, 1)

	result, err, _ := c.flight.Do(key.String(), func() (interface{}, error) {
		// A racing caller may have populated the key between our miss
		// and the flight winning the slot.
		if records, ok := c.lookup(key); ok {
			return records, nil
		}

		records, err := build(ctx)
		if err != nil {
			return nil, err
		}
		atomic.AddInt64(&c.builds, 1)
		c.store(key, records)
		return records, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]record.Record), nil
}

// InvalidateDataset drops every cached view of one dataset.
//
// Used when a dataset is deleted; per-write invalidation is unnecessary
// because writes change the version and therefore the key.
func (c *SortedViewCache) InvalidateDataset(datasetID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key, entry := range c.entries {
		if key.DatasetID == datasetID {
			c.removeEntryLocked(entry)
		}
	}
}

// Purge removes all cached views.
func (c *SortedViewCache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[ViewKey]*viewEntry)
	c.lru.Init()
}

// Stats returns current cache statistics.
func (c *SortedViewCache) Stats() CacheStats {
	c.mu.Lock()
	entryCount := len(c.entries)
	c.mu.Unlock()

	return CacheStats{
		Entries:    entryCount,
		MaxEntries: c.maxEntries,
		Hits:       atomic.LoadInt64(&c.hits),
		Misses:     atomic.LoadInt64(&c.misses),
		Builds:     atomic.LoadInt64(&c.builds),
		Evictions:  atomic.LoadInt64(&c.evictions),
	}
}

// lookup returns the entry for key and refreshes its LRU position.
func (c *SortedViewCache) lookup(key ViewKey) ([]record.Record, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	c.lru.MoveToFront(entry.lruElement)
	return entry.records, true
}

// store inserts a built view, evicting from the LRU tail if at capacity.
func (c *SortedViewCache) store(key ViewKey, records []record.Record) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries[key]; ok {
		return // racing build already stored it
	}

	for len(c.entries) >= c.maxEntries {
		oldest := c.lru.Back()
		if oldest == nil {
			break
		}
		c.removeEntryLocked(oldest.Value.(*viewEntry))
		atomic.AddInt64(&c.evictions, 1)
	}

	entry := &viewEntry{
		key:     key,
		records: records,
		builtAt: time.Now(),
	}
	entry.lruElement = c.lru.PushFront(entry)
	c.entries[key] = entry
}

// removeEntryLocked removes an entry (must hold c.mu).
func (c *SortedViewCache) removeEntryLocked(entry *viewEntry) {
	if entry.lruElement != nil {
		c.lru.Remove(entry.lruElement)
		entry.lruElement = nil
	}
	delete(c.entries, entry.key)
}
