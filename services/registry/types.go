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
	"time"

	"github.com/AleutianAI/CivicLedger/services/registry/bst"
	"github.com/AleutianAI/CivicLedger/services/registry/record"
)

// CreateDatasetRequest is the request body for POST /v1/registry/datasets.
type CreateDatasetRequest struct {
	// Name is the human-readable dataset name. Required, unique.
	Name string `json:"name" binding:"required"`

	// Backend selects the list storage: "memory" or "badger".
	// Default: the service's configured default backend.
	Backend string `json:"backend"`
}

// DatasetInfo describes one dataset in list and create responses.
type DatasetInfo struct {
	// ID is the deterministic dataset identifier derived from the name.
	ID string `json:"id"`

	// Name is the dataset name.
	Name string `json:"name"`

	// Backend is the list storage backend ("memory" or "badger").
	Backend string `json:"backend"`

	// Records is the number of slots in the append-only list,
	// including logically deleted ones.
	Records int `json:"records"`

	// IndexedKeys is the number of keys currently in the tree index.
	IndexedKeys int `json:"indexed_keys"`

	// Version increments on every mutation of the dataset.
	Version uint64 `json:"version"`

	// CreatedAt is when the dataset was registered.
	CreatedAt time.Time `json:"created_at"`
}

// ListDatasetsResponse is the response for GET /v1/registry/datasets.
type ListDatasetsResponse struct {
	// Datasets holds one entry per live dataset, sorted by name.
	Datasets []DatasetInfo `json:"datasets"`

	// Count is len(Datasets).
	Count int `json:"count"`
}

// AppendRecordRequest is the request body for POST /v1/registry/datasets/:id/records.
type AppendRecordRequest struct {
	// CPF is the record identifier. Required.
	CPF string `json:"cpf" binding:"required"`

	// Name is the holder's display name. Required.
	Name string `json:"name" binding:"required"`

	// BirthDate is the holder's birth date, ISO 8601 (YYYY-MM-DD).
	BirthDate string `json:"birth_date"`
}

// AppendRecordResponse is the response for a single append.
type AppendRecordResponse struct {
	// Position is the record's slot in the append-only list. For a
	// duplicate key this is the position the index already points at.
	Position int `json:"position"`

	// Indexed is false when the key was already present and the
	// append was ignored.
	Indexed bool `json:"indexed"`
}

// BulkLoadRequest is the request body for POST /v1/registry/datasets/:id/records/bulk.
type BulkLoadRequest struct {
	// Records is the batch to load, in order. Required, non-empty.
	Records []AppendRecordRequest `json:"records" binding:"required"`
}

// LoadOutcome reports the fate of one record in a bulk load.
type LoadOutcome struct {
	// CPF identifies the record this outcome belongs to.
	CPF string `json:"cpf"`

	// Position is the list slot, or -1 when the record was rejected.
	Position int `json:"position"`

	// Indexed is true when a new key was inserted into the tree.
	Indexed bool `json:"indexed"`

	// Error holds the validation failure, empty on success.
	Error string `json:"error,omitempty"`
}

// BulkLoadResponse is the response for POST /v1/registry/datasets/:id/records/bulk.
type BulkLoadResponse struct {
	// Outcomes holds one entry per submitted record, in input order.
	Outcomes []LoadOutcome `json:"outcomes"`

	// Indexed is the number of records that created a new index key.
	Indexed int `json:"indexed"`

	// Skipped is the number of duplicate keys ignored.
	Skipped int `json:"skipped"`

	// Failed is the number of records rejected by validation.
	Failed int `json:"failed"`
}

// LookupResponse is the response for GET /v1/registry/datasets/:id/records/:cpf.
type LookupResponse struct {
	// Record is the live record resolved from the list.
	Record record.Record `json:"record"`

	// Position is the list slot the index resolved to.
	Position int `json:"position"`
}

// TraversalResponse is the response for GET /v1/registry/datasets/:id/traversals/:order.
//
// Records are the index's own copies in traversal order; deletion flags
// here reflect insertion-time state. Use the snapshot endpoint for
// records resolved against the live list.
type TraversalResponse struct {
	// Order is the canonical order name ("pre", "in", "post", "breadth").
	Order string `json:"order"`

	// Records is the traversal sequence.
	Records []record.Record `json:"records"`

	// Count is len(Records).
	Count int `json:"count"`
}

// SnapshotResponse is the response for GET /v1/registry/datasets/:id/snapshot.
type SnapshotResponse struct {
	// Records is the sorted view, resolved against the live list so
	// deletion flags are current. Logically deleted records are
	// included with Deleted set.
	Records []record.Record `json:"records"`

	// Count is len(Records).
	Count int `json:"count"`

	// Version is the dataset version this view was built at.
	Version uint64 `json:"version"`
}

// CloneDatasetRequest is the request body for POST /v1/registry/datasets/:id/clone.
type CloneDatasetRequest struct {
	// Name is the name for the cloned dataset. Required, unique.
	Name string `json:"name" binding:"required"`
}

// DatasetStatsResponse is the response for GET /v1/registry/datasets/:id.
type DatasetStatsResponse struct {
	DatasetInfo

	// Index holds structural statistics for the tree index.
	Index bst.TreeStats `json:"index"`

	// LastAccess is when the dataset was last touched by any operation.
	LastAccess time.Time `json:"last_access"`
}

// HealthResponse is the response for GET /v1/registry/health.
type HealthResponse struct {
	// Status is "ok" when the service is accepting requests.
	Status string `json:"status"`

	// Datasets is the number of live datasets.
	Datasets int `json:"datasets"`

	// Version is the server build version.
	Version string `json:"version"`
}

// ErrorResponse is the uniform error body for all registry endpoints.
type ErrorResponse struct {
	// Error is the human-readable message.
	Error string `json:"error"`

	// Code is a stable machine-readable error code.
	Code string `json:"code,omitempty"`
}
