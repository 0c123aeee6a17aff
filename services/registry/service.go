// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package registry

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/AleutianAI/CivicLedger/services/registry/bst"
	"github.com/AleutianAI/CivicLedger/services/registry/edl"
	"github.com/AleutianAI/CivicLedger/services/registry/query"
	"github.com/AleutianAI/CivicLedger/services/registry/record"
	storage "github.com/AleutianAI/CivicLedger/services/registry/storage/badger"
)

// Storage backend names accepted by CreateDataset.
const (
	BackendMemory = "memory"
	BackendBadger = "badger"
)

// MaxDatasetNameBytes caps dataset names.
const MaxDatasetNameBytes = 128

// ServiceConfig configures the registry service.
type ServiceConfig struct {
	// MaxDatasets is the maximum number of live datasets.
	// Default: 64
	MaxDatasets int

	// DatasetTTL is how long a dataset may idle before it is dropped.
	// Default: 0 (no expiry)
	DatasetTTL time.Duration

	// OperationTimeout bounds individual service operations.
	// Default: 10s
	OperationTimeout time.Duration

	// DefaultBackend is used when a create request omits the backend.
	// Default: "memory"
	DefaultBackend string

	// DataDir is the root directory for Badger-backed datasets.
	// Default: "./data"
	DataDir string

	// StrictIdentifiers enables CPF check-digit validation on append.
	// Default: false (structural validation only)
	StrictIdentifiers bool

	// MaxCachedViews is the sorted-view cache capacity.
	// Default: query.DefaultMaxCachedViews
	MaxCachedViews int

	// SyncWrites forces fsync on every Badger commit.
	// Default: true
	SyncWrites bool

	// GCInterval overrides the Badger value-log GC cadence.
	// Default: 0 (use the storage package default)
	GCInterval time.Duration

	// GCDiscardRatio overrides the Badger GC rewrite threshold.
	// Default: 0 (use the storage package default)
	GCDiscardRatio float64
}

// DefaultServiceConfig returns sensible defaults.
func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		MaxDatasets:      64,
		DatasetTTL:       0, // no expiry
		OperationTimeout: 10 * time.Second,
		DefaultBackend:   BackendMemory,
		DataDir:          "./data",
		MaxCachedViews:   query.DefaultMaxCachedViews,
		SyncWrites:       true,
	}
}

// dataset is one registered dataset: an append-only record list plus
// its in-memory tree index. mu serializes all index and list access;
// the tree itself does no locking.
type dataset struct {
	id        string
	name      string
	backend   string
	createdAt time.Time

	mu      sync.RWMutex
	list    edl.List
	index   *bst.Tree
	store   *storage.DB // nil for memory-backed datasets
	version uint64      // guarded by mu

	lastAccessMilli atomic.Int64
}

// touch records an access for TTL accounting.
func (d *dataset) touch() {
	d.lastAccessMilli.Store(time.Now().UnixMilli())
}

// expired reports whether the dataset idled past ttl.
func (d *dataset) expired(ttl time.Duration, nowMilli int64) bool {
	if ttl <= 0 {
		return false
	}
	return nowMilli-d.lastAccessMilli.Load() > ttl.Milliseconds()
}

// close releases the dataset's resources. Safe to call once.
func (d *dataset) close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	var firstErr error
	if d.list != nil {
		if err := d.list.Close(); err != nil {
			firstErr = err
		}
	}
	if d.store != nil {
		if err := d.store.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Service is the CivicLedger registry service.
//
// Thread Safety:
//
//	Service is safe for concurrent use. The service map is guarded by
//	its own RWMutex; each dataset serializes index and list access
//	behind a per-dataset RWMutex.
type Service struct {
	config   ServiceConfig
	mu       sync.RWMutex
	datasets map[string]*dataset // dataset ID -> dataset
	views    *query.SortedViewCache
	closed   bool
}

// NewService creates a new registry service.
//
// Description:
//
//	Creates a service with the given configuration and an empty
//	dataset map. Zero-valued config fields fall back to the defaults
//	from DefaultServiceConfig.
//
// Inputs:
//
//	config - Service configuration
//
// Outputs:
//
//	*Service - The configured service
func NewService(config ServiceConfig) *Service {
	def := DefaultServiceConfig()
	if config.MaxDatasets <= 0 {
		config.MaxDatasets = def.MaxDatasets
	}
	if config.OperationTimeout <= 0 {
		config.OperationTimeout = def.OperationTimeout
	}
	if config.DefaultBackend == "" {
		config.DefaultBackend = def.DefaultBackend
	}
	if config.DataDir == "" {
		config.DataDir = def.DataDir
	}
	if config.MaxCachedViews <= 0 {
		config.MaxCachedViews = def.MaxCachedViews
	}

	if err := initMetrics(); err != nil {
		slog.Warn("registry metrics init failed", "error", err)
	}

	return &Service{
		config:   config,
		datasets: make(map[string]*dataset),
		views:    query.NewSortedViewCache(config.MaxCachedViews),
	}
}

// =============================================================================
// Dataset Lifecycle
// =============================================================================

// CreateDataset registers a new dataset.
//
// Description:
//
//	Creates an empty dataset with the given name and backend. The
//	dataset ID is derived deterministically from the name, so a
//	Badger-backed dataset re-created after a restart reopens its
//	on-disk list and rebuilds the tree index from it. Expired
//	datasets are swept first; the service never evicts a live
//	dataset to make room.
//
// Inputs:
//
//	ctx - Context for cancellation
//	name - Dataset name (unique, max 128 bytes)
//	backend - "memory", "badger", or "" for the configured default
//
// Outputs:
//
//	*DatasetInfo - The created dataset
//	error - Non-nil if validation fails or the service is at capacity
//
// Errors:
//
//	ErrInvalidDatasetName - Name is empty or too long
//	ErrUnknownBackend - Backend is not "memory" or "badger"
//	ErrDatasetExists - A dataset with this name is already registered
//	ErrTooManyDatasets - MaxDatasets reached and nothing expired
//	ErrServiceClosed - Service has been shut down
func (s *Service) CreateDataset(ctx context.Context, name, backend string) (*DatasetInfo, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	name = strings.TrimSpace(name)
	if err := validateDatasetName(name); err != nil {
		return nil, err
	}
	backend, err := s.resolveBackend(backend)
	if err != nil {
		return nil, err
	}

	id := datasetID(name)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrServiceClosed
	}
	if _, ok := s.datasets[id]; ok {
		return nil, fmt.Errorf("%w: %q", ErrDatasetExists, name)
	}
	s.sweepExpiredLocked()
	if len(s.datasets) >= s.config.MaxDatasets {
		return nil, fmt.Errorf("%w: limit %d", ErrTooManyDatasets, s.config.MaxDatasets)
	}

	ds, err := s.openDataset(ctx, id, name, backend)
	if err != nil {
		return nil, err
	}
	s.datasets[id] = ds
	recordDatasetOpen(ctx, 1)

	info := s.datasetInfo(ds)
	slog.Info("dataset created",
		"dataset_id", id,
		"name", name,
		"backend", backend,
		"records", info.Records,
		"indexed_keys", info.IndexedKeys)
	return &info, nil
}

// openDataset builds the list and index for a new dataset entry.
func (s *Service) openDataset(ctx context.Context, id, name, backend string) (*dataset, error) {
	ds := &dataset{
		id:        id,
		name:      name,
		backend:   backend,
		createdAt: time.Now(),
		index:     bst.New(),
	}
	ds.touch()

	switch backend {
	case BackendMemory:
		ds.list = edl.NewMemoryList()

	case BackendBadger:
		cfg := storage.DefaultConfig()
		cfg.Path = filepath.Join(s.config.DataDir, "datasets", id)
		cfg.SyncWrites = s.config.SyncWrites
		if s.config.GCInterval > 0 {
			cfg.GCInterval = s.config.GCInterval
		}
		if s.config.GCDiscardRatio > 0 {
			cfg.GCDiscardRatio = s.config.GCDiscardRatio
		}
		db, err := storage.OpenDB(cfg)
		if err != nil {
			return nil, fmt.Errorf("open badger store for %q: %w", name, err)
		}
		list, err := edl.OpenBadgerList(db)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("open badger list for %q: %w", name, err)
		}
		ds.store = db
		ds.list = list

		// A reopened store already holds records; the index is
		// in-memory only and is always rebuilt from the list.
		if list.Len() > 0 {
			records, err := list.Snapshot(ctx)
			if err != nil {
				list.Close()
				db.Close()
				return nil, fmt.Errorf("rebuild index for %q: %w", name, err)
			}
			ds.index = bst.NewFromRecords(records)
			slog.Info("index rebuilt from stored list",
				"dataset_id", id,
				"records", len(records),
				"indexed_keys", ds.index.Len())
		}

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, backend)
	}

	return ds, nil
}

// GetDataset returns statistics for one dataset.
//
// Description:
//
//	Resolves the dataset by ID or name and reports list, index, and
//	lifecycle statistics. Resolving touches the dataset for TTL
//	accounting.
//
// Inputs:
//
//	ctx - Context for cancellation
//	ref - Dataset ID or name
//
// Outputs:
//
//	*DatasetStatsResponse - Dataset statistics
//	error - ErrDatasetNotFound if no such dataset
func (s *Service) GetDataset(ctx context.Context, ref string) (*DatasetStatsResponse, error) {
	ds, err := s.resolveDataset(ref)
	if err != nil {
		return nil, err
	}

	ds.mu.RLock()
	defer ds.mu.RUnlock()

	resp := &DatasetStatsResponse{
		DatasetInfo: s.datasetInfoLocked(ds),
		Index:       ds.index.Stats(),
		LastAccess:  time.UnixMilli(ds.lastAccessMilli.Load()),
	}
	return resp, nil
}

// ListDatasets returns all live datasets sorted by name.
func (s *Service) ListDatasets(ctx context.Context) (*ListDatasetsResponse, error) {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return nil, ErrServiceClosed
	}
	all := make([]*dataset, 0, len(s.datasets))
	nowMilli := time.Now().UnixMilli()
	for _, ds := range s.datasets {
		if ds.expired(s.config.DatasetTTL, nowMilli) {
			continue
		}
		all = append(all, ds)
	}
	s.mu.RUnlock()

	infos := make([]DatasetInfo, 0, len(all))
	for _, ds := range all {
		infos = append(infos, s.datasetInfo(ds))
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })

	return &ListDatasetsResponse{Datasets: infos, Count: len(infos)}, nil
}

// DeleteDataset drops a dataset and releases its resources.
//
// Description:
//
//	Removes the dataset from the registry, closes its list, and for
//	Badger-backed datasets removes the on-disk store. Cached sorted
//	views for the dataset are invalidated.
//
// Inputs:
//
//	ctx - Context for cancellation
//	ref - Dataset ID or name
//
// Outputs:
//
//	error - ErrDatasetNotFound if no such dataset
func (s *Service) DeleteDataset(ctx context.Context, ref string) error {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrServiceClosed
	}
	ds, ok := s.lookupLocked(ref)
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrDatasetNotFound, ref)
	}
	delete(s.datasets, ds.id)
	s.mu.Unlock()

	s.views.InvalidateDataset(ds.id)
	recordDatasetOpen(ctx, -1)

	if err := ds.close(); err != nil {
		slog.Warn("dataset close failed", "dataset_id", ds.id, "error", err)
	}
	if ds.backend == BackendBadger && ds.store != nil && !ds.store.InMemory() {
		if err := os.RemoveAll(ds.store.Path()); err != nil {
			slog.Warn("dataset store removal failed", "dataset_id", ds.id, "error", err)
		}
	}

	slog.Info("dataset deleted", "dataset_id", ds.id, "name", ds.name, "backend", ds.backend)
	return nil
}

// CloneDataset deep-copies a dataset under a new name.
//
// Description:
//
//	Copies the source tree node by node and snapshots the source list
//	into a fresh in-memory list, so the clone shares no mutable state
//	with the original. The clone is always memory-backed regardless
//	of the source backend. The source is read-locked for the duration
//	of the copy.
//
// Inputs:
//
//	ctx - Context for cancellation
//	ref - Source dataset ID or name
//	name - Name for the clone (unique)
//
// Outputs:
//
//	*DatasetInfo - The cloned dataset
//	error - Non-nil on unknown source, name conflict, or capacity
//
// Errors:
//
//	ErrDatasetNotFound - Source does not exist
//	ErrInvalidDatasetName - Clone name is empty or too long
//	ErrDatasetExists - Clone name is taken
//	ErrTooManyDatasets - MaxDatasets reached and nothing expired
func (s *Service) CloneDataset(ctx context.Context, ref, name string) (*DatasetInfo, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	name = strings.TrimSpace(name)
	if err := validateDatasetName(name); err != nil {
		return nil, err
	}

	src, err := s.resolveDataset(ref)
	if err != nil {
		return nil, err
	}

	src.mu.RLock()
	treeCopy := src.index.Copy()
	records, err := snapshotList(ctx, src.list)
	version := src.version
	src.mu.RUnlock()
	if err != nil {
		return nil, fmt.Errorf("snapshot source list: %w", err)
	}

	id := datasetID(name)
	clone := &dataset{
		id:        id,
		name:      name,
		backend:   BackendMemory,
		createdAt: time.Now(),
		list:      edl.NewMemoryListFrom(records),
		index:     treeCopy,
		version:   version,
	}
	clone.touch()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrServiceClosed
	}
	if _, ok := s.datasets[id]; ok {
		return nil, fmt.Errorf("%w: %q", ErrDatasetExists, name)
	}
	s.sweepExpiredLocked()
	if len(s.datasets) >= s.config.MaxDatasets {
		return nil, fmt.Errorf("%w: limit %d", ErrTooManyDatasets, s.config.MaxDatasets)
	}
	s.datasets[id] = clone
	recordDatasetOpen(ctx, 1)

	info := s.datasetInfo(clone)
	slog.Info("dataset cloned",
		"source_id", src.id,
		"dataset_id", id,
		"name", name,
		"records", info.Records,
		"indexed_keys", info.IndexedKeys)
	return &info, nil
}

// =============================================================================
// Record Operations
// =============================================================================

// AppendRecord validates and appends one record.
//
// Description:
//
//	Validates the record, appends it to the dataset's list, and
//	inserts its key into the tree index. When the key is already
//	indexed the dataset is left untouched: the response carries the
//	position the index already points at and Indexed is false.
//
// Inputs:
//
//	ctx - Context for cancellation
//	ref - Dataset ID or name
//	req - Record fields
//
// Outputs:
//
//	*AppendRecordResponse - Position and whether a new key was indexed
//	error - Non-nil on validation failure or unknown dataset
//
// Errors:
//
//	record.ErrInvalidRecord - Record fields failed validation
//	ErrDatasetNotFound - Dataset does not exist
func (s *Service) AppendRecord(ctx context.Context, ref string, req AppendRecordRequest) (*AppendRecordResponse, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	rec := record.Record{CPF: req.CPF, Name: req.Name, BirthDate: req.BirthDate}
	if err := s.validateRecord(rec); err != nil {
		return nil, err
	}

	ds, err := s.resolveDataset(ref)
	if err != nil {
		return nil, err
	}

	ds.mu.Lock()
	defer ds.mu.Unlock()

	resp, err := appendLocked(ctx, ds, rec)
	if err != nil {
		return nil, err
	}
	if resp.Indexed {
		recordAppend(ctx, ds.backend)
	}
	return resp, nil
}

// appendLocked performs the duplicate check, list append, and index
// insert. Caller must hold the dataset write lock.
func appendLocked(ctx context.Context, ds *dataset, rec record.Record) (*AppendRecordResponse, error) {
	if node, ok := ds.index.Search(rec.Key()); ok {
		slog.Debug("duplicate key ignored",
			"dataset_id", ds.id,
			"key", rec.Key(),
			"position", node.Position)
		return &AppendRecordResponse{Position: node.Position, Indexed: false}, nil
	}

	pos, err := ds.list.Append(ctx, rec)
	if err != nil {
		return nil, fmt.Errorf("append record: %w", err)
	}
	ds.index.Insert(rec, pos)
	ds.version++

	return &AppendRecordResponse{Position: pos, Indexed: true}, nil
}

// BulkLoad appends a batch of records under one lock acquisition.
//
// Description:
//
//	Processes records in input order. Validation failures are
//	reported per record and do not abort the batch; duplicate keys
//	are skipped. The dataset lock is held for the whole batch, so a
//	bulk load is atomic with respect to concurrent readers.
//
// Inputs:
//
//	ctx - Context for cancellation
//	ref - Dataset ID or name
//	reqs - Records to load, in order
//
// Outputs:
//
//	*BulkLoadResponse - Per-record outcomes plus counters
//	error - ErrDatasetNotFound if no such dataset
func (s *Service) BulkLoad(ctx context.Context, ref string, reqs []AppendRecordRequest) (*BulkLoadResponse, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	ds, err := s.resolveDataset(ref)
	if err != nil {
		return nil, err
	}

	resp := &BulkLoadResponse{Outcomes: make([]LoadOutcome, 0, len(reqs))}

	ds.mu.Lock()
	defer ds.mu.Unlock()

	for _, req := range reqs {
		rec := record.Record{CPF: req.CPF, Name: req.Name, BirthDate: req.BirthDate}
		if err := s.validateRecord(rec); err != nil {
			resp.Outcomes = append(resp.Outcomes, LoadOutcome{
				CPF:      req.CPF,
				Position: -1,
				Error:    err.Error(),
			})
			resp.Failed++
			continue
		}

		out, err := appendLocked(ctx, ds, rec)
		if err != nil {
			resp.Outcomes = append(resp.Outcomes, LoadOutcome{
				CPF:      req.CPF,
				Position: -1,
				Error:    err.Error(),
			})
			resp.Failed++
			continue
		}
		resp.Outcomes = append(resp.Outcomes, LoadOutcome{
			CPF:      rec.Key(),
			Position: out.Position,
			Indexed:  out.Indexed,
		})
		if out.Indexed {
			resp.Indexed++
			recordAppend(ctx, ds.backend)
		} else {
			resp.Skipped++
		}
	}

	slog.Info("bulk load finished",
		"dataset_id", ds.id,
		"total", len(reqs),
		"indexed", resp.Indexed,
		"skipped", resp.Skipped,
		"failed", resp.Failed)
	return resp, nil
}

// Lookup resolves a key through the index against the live list.
//
// Description:
//
//	Two-stage lookup: the tree resolves the key to a list position,
//	then the list yields the authoritative record. A key missing from
//	the index and a record carrying a deletion mark are distinct
//	outcomes.
//
// Inputs:
//
//	ctx - Context for cancellation
//	ref - Dataset ID or name
//	key - Record identifier (CPF)
//
// Outputs:
//
//	*LookupResponse - The live record and its list position
//	error - Non-nil when the key is absent or the record is deleted
//
// Errors:
//
//	ErrDatasetNotFound - Dataset does not exist
//	query.ErrRecordNotFound - Key is not in the index
//	query.ErrRecordDeleted - Record carries a deletion mark
func (s *Service) Lookup(ctx context.Context, ref, key string) (*LookupResponse, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	ds, err := s.resolveDataset(ref)
	if err != nil {
		return nil, err
	}

	ds.mu.RLock()
	defer ds.mu.RUnlock()

	rec, err := query.Lookup(ctx, ds.index, ds.list, key)
	if err != nil {
		return nil, err
	}
	node, _ := ds.index.Search(key)
	return &LookupResponse{Record: rec, Position: node.Position}, nil
}

// MarkDeleted flips a record's deletion mark in the list.
//
// Description:
//
//	Resolves the key through the index and marks the record deleted
//	in the list. The index keeps the key: later lookups report the
//	tombstone rather than absence. Marking an already-deleted record
//	is a no-op that still succeeds.
//
// Inputs:
//
//	ctx - Context for cancellation
//	ref - Dataset ID or name
//	key - Record identifier (CPF)
//
// Outputs:
//
//	error - Non-nil when the dataset or key is unknown
//
// Errors:
//
//	ErrDatasetNotFound - Dataset does not exist
//	query.ErrRecordNotFound - Key is not in the index
func (s *Service) MarkDeleted(ctx context.Context, ref, key string) error {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	ds, err := s.resolveDataset(ref)
	if err != nil {
		return err
	}

	ds.mu.Lock()
	defer ds.mu.Unlock()

	node, ok := ds.index.Search(key)
	if !ok {
		return fmt.Errorf("key %q: %w", key, query.ErrRecordNotFound)
	}
	if err := ds.list.MarkDeleted(ctx, node.Position); err != nil {
		return fmt.Errorf("mark deleted: %w", err)
	}
	ds.version++

	slog.Info("record marked deleted",
		"dataset_id", ds.id,
		"key", key,
		"position", node.Position)
	return nil
}

// RemoveFromIndex removes a key from the tree index only.
//
// Description:
//
//	Physically removes the key from the tree; the record stays in the
//	list and is no longer reachable by key. Removing an absent key is
//	a no-op reported through Removed.
//
// Inputs:
//
//	ctx - Context for cancellation
//	ref - Dataset ID or name
//	key - Record identifier (CPF)
//
// Outputs:
//
//	bool - Whether the key was present
//	error - ErrDatasetNotFound if no such dataset
func (s *Service) RemoveFromIndex(ctx context.Context, ref, key string) (bool, error) {
	ds, err := s.resolveDataset(ref)
	if err != nil {
		return false, err
	}

	ds.mu.Lock()
	defer ds.mu.Unlock()

	_, found := ds.index.Search(key)
	if found {
		ds.index.Remove(key)
		ds.version++
		slog.Info("key removed from index", "dataset_id", ds.id, "key", key)
	}
	return found, nil
}

// =============================================================================
// Views
// =============================================================================

// Traverse walks the tree index in the requested order.
//
// Description:
//
//	Returns the index's own record copies in traversal order. The
//	copies reflect insertion-time state; deletion marks applied after
//	insertion are visible only through Lookup and SortedSnapshot.
//
// Inputs:
//
//	ctx - Context for cancellation
//	ref - Dataset ID or name
//	order - Traversal order
//
// Outputs:
//
//	*TraversalResponse - Records in traversal order
//	error - ErrDatasetNotFound if no such dataset
func (s *Service) Traverse(ctx context.Context, ref string, order bst.Order) (*TraversalResponse, error) {
	ds, err := s.resolveDataset(ref)
	if err != nil {
		return nil, err
	}

	ds.mu.RLock()
	records := ds.index.Traverse(order)
	ds.mu.RUnlock()

	return &TraversalResponse{
		Order:   order.String(),
		Records: records,
		Count:   len(records),
	}, nil
}

// SortedSnapshot returns the sorted view resolved against the live list.
//
// Description:
//
//	Walks the index in order and resolves every position against the
//	list, so deletion marks are current. Views are cached by
//	(dataset, version); any mutation bumps the version, which makes
//	the next snapshot rebuild instead of invalidating eagerly.
//
// Inputs:
//
//	ctx - Context for cancellation
//	ref - Dataset ID or name
//
// Outputs:
//
//	*SnapshotResponse - Sorted records with live deletion marks
//	error - ErrDatasetNotFound if no such dataset
func (s *Service) SortedSnapshot(ctx context.Context, ref string) (*SnapshotResponse, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	ds, err := s.resolveDataset(ref)
	if err != nil {
		return nil, err
	}

	// The read lock spans the cache call so the version cannot move
	// under a build in flight.
	ds.mu.RLock()
	defer ds.mu.RUnlock()

	key := query.ViewKey{DatasetID: ds.id, Version: ds.version}
	records, err := s.views.Get(ctx, key, func(ctx context.Context) ([]record.Record, error) {
		return query.MaterializeSorted(ctx, ds.index, ds.list)
	})
	if err != nil {
		return nil, err
	}

	return &SnapshotResponse{
		Records: records,
		Count:   len(records),
		Version: ds.version,
	}, nil
}

// ViewCacheStats reports sorted-view cache counters.
func (s *Service) ViewCacheStats() query.CacheStats {
	return s.views.Stats()
}

// =============================================================================
// Service Lifecycle
// =============================================================================

// DatasetCount returns the number of live datasets.
func (s *Service) DatasetCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.datasets)
}

// Close shuts the service down and releases all datasets.
//
// Description:
//
//	Marks the service closed, closes every dataset's list and store,
//	and purges the view cache. On-disk Badger stores are kept so
//	datasets can be reopened after a restart. Safe to call once;
//	subsequent operations return ErrServiceClosed.
//
// Outputs:
//
//	error - The first close error encountered, if any
func (s *Service) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	all := make([]*dataset, 0, len(s.datasets))
	for _, ds := range s.datasets {
		all = append(all, ds)
	}
	s.datasets = make(map[string]*dataset)
	s.mu.Unlock()

	var firstErr error
	for _, ds := range all {
		if err := ds.close(); err != nil {
			slog.Warn("dataset close failed", "dataset_id", ds.id, "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	s.views.Purge()

	slog.Info("registry service closed", "datasets", len(all))
	return firstErr
}

// =============================================================================
// Internal Helpers
// =============================================================================

// opContext bounds an operation by the configured timeout.
func (s *Service) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.config.OperationTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.config.OperationTimeout)
}

// validateRecord applies structural and, when configured, strict
// identifier validation.
func (s *Service) validateRecord(rec record.Record) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	if s.config.StrictIdentifiers {
		return rec.ValidateStrict()
	}
	return nil
}

// resolveBackend maps the request backend to a supported one.
func (s *Service) resolveBackend(backend string) (string, error) {
	switch backend {
	case "":
		return s.config.DefaultBackend, nil
	case BackendMemory, BackendBadger:
		return backend, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownBackend, backend)
	}
}

// lookupLocked resolves a dataset by ID or name. Caller must hold at
// least the service read lock.
func (s *Service) lookupLocked(ref string) (*dataset, bool) {
	if ds, ok := s.datasets[ref]; ok {
		return ds, true
	}
	if ds, ok := s.datasets[datasetID(ref)]; ok {
		return ds, true
	}
	return nil, false
}

// resolveDataset resolves a dataset by ID or name, dropping it first
// if it idled past the TTL. Touches the dataset on success.
func (s *Service) resolveDataset(ref string) (*dataset, error) {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return nil, ErrServiceClosed
	}
	ds, ok := s.lookupLocked(ref)
	s.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrDatasetNotFound, ref)
	}
	if ds.expired(s.config.DatasetTTL, time.Now().UnixMilli()) {
		s.dropExpired(ds)
		return nil, fmt.Errorf("%w: %q", ErrDatasetExpired, ref)
	}
	ds.touch()
	return ds, nil
}

// dropExpired removes one expired dataset, re-checking under the write
// lock in case a concurrent access revived it.
func (s *Service) dropExpired(ds *dataset) {
	s.mu.Lock()
	current, ok := s.datasets[ds.id]
	if !ok || current != ds || !ds.expired(s.config.DatasetTTL, time.Now().UnixMilli()) {
		s.mu.Unlock()
		return
	}
	delete(s.datasets, ds.id)
	s.mu.Unlock()

	s.views.InvalidateDataset(ds.id)
	recordDatasetOpen(context.Background(), -1)
	recordDatasetExpired(context.Background())
	if err := ds.close(); err != nil {
		slog.Warn("expired dataset close failed", "dataset_id", ds.id, "error", err)
	}
	slog.Info("dataset expired", "dataset_id", ds.id, "name", ds.name)
}

// sweepExpiredLocked drops every expired dataset. Caller must hold the
// service write lock.
func (s *Service) sweepExpiredLocked() {
	if s.config.DatasetTTL <= 0 {
		return
	}
	nowMilli := time.Now().UnixMilli()
	for id, ds := range s.datasets {
		if !ds.expired(s.config.DatasetTTL, nowMilli) {
			continue
		}
		delete(s.datasets, id)
		s.views.InvalidateDataset(id)
		recordDatasetOpen(context.Background(), -1)
		recordDatasetExpired(context.Background())
		if err := ds.close(); err != nil {
			slog.Warn("expired dataset close failed", "dataset_id", id, "error", err)
		}
		slog.Info("dataset expired", "dataset_id", id, "name", ds.name)
	}
}

// datasetInfo builds a DatasetInfo, taking the dataset read lock.
func (s *Service) datasetInfo(ds *dataset) DatasetInfo {
	ds.mu.RLock()
	defer ds.mu.RUnlock()
	return s.datasetInfoLocked(ds)
}

// datasetInfoLocked builds a DatasetInfo. Caller must hold the dataset
// lock in at least read mode.
func (s *Service) datasetInfoLocked(ds *dataset) DatasetInfo {
	return DatasetInfo{
		ID:          ds.id,
		Name:        ds.name,
		Backend:     ds.backend,
		Records:     ds.list.Len(),
		IndexedKeys: ds.index.Len(),
		Version:     ds.version,
		CreatedAt:   ds.createdAt,
	}
}

// snapshotList copies every list slot in position order.
func snapshotList(ctx context.Context, list edl.List) ([]record.Record, error) {
	if snap, ok := list.(edl.Snapshotter); ok {
		return snap.Snapshot(ctx)
	}
	records := make([]record.Record, 0, list.Len())
	for pos := 0; pos < list.Len(); pos++ {
		rec, err := list.Get(ctx, pos)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

// datasetID creates a deterministic ID from a dataset name.
func datasetID(name string) string {
	hash := sha256.Sum256([]byte(name))
	return hex.EncodeToString(hash[:])[:16]
}

// validateDatasetName rejects empty and oversized names.
func validateDatasetName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: name is empty", ErrInvalidDatasetName)
	}
	if len(name) > MaxDatasetNameBytes {
		return fmt.Errorf("%w: name exceeds %d bytes", ErrInvalidDatasetName, MaxDatasetNameBytes)
	}
	return nil
}
