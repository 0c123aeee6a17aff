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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/CivicLedger/services/registry/bst"
	"github.com/AleutianAI/CivicLedger/services/registry/query"
	"github.com/AleutianAI/CivicLedger/services/registry/record"
)

// newTestService returns a memory-backed service with test-friendly limits.
func newTestService(t *testing.T) *Service {
	t.Helper()
	cfg := DefaultServiceConfig()
	cfg.DataDir = t.TempDir()
	svc := NewService(cfg)
	t.Cleanup(func() { svc.Close() })
	return svc
}

// demoRecords is the canonical three-person fixture used across tests.
func demoRecords() []AppendRecordRequest {
	return []AppendRecordRequest{
		{CPF: "123", Name: "Lucas", BirthDate: "2005-07-10"},
		{CPF: "456", Name: "Ana", BirthDate: "2002-03-15"},
		{CPF: "789", Name: "João", BirthDate: "1999-12-01"},
	}
}

// seedDemo creates a dataset and loads the demo fixture.
func seedDemo(t *testing.T, svc *Service, name string) *DatasetInfo {
	t.Helper()
	info, err := svc.CreateDataset(context.Background(), name, BackendMemory)
	require.NoError(t, err)
	for _, req := range demoRecords() {
		resp, err := svc.AppendRecord(context.Background(), info.ID, req)
		require.NoError(t, err)
		require.True(t, resp.Indexed)
	}
	return info
}

// =============================================================================
// Dataset Lifecycle
// =============================================================================

func TestService_CreateDataset(t *testing.T) {
	svc := newTestService(t)

	info, err := svc.CreateDataset(context.Background(), "civil", BackendMemory)
	require.NoError(t, err)
	assert.Equal(t, "civil", info.Name)
	assert.Equal(t, BackendMemory, info.Backend)
	assert.NotEmpty(t, info.ID)
	assert.Zero(t, info.Records)
	assert.Zero(t, info.IndexedKeys)
}

func TestService_CreateDataset_DuplicateName(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.CreateDataset(context.Background(), "civil", BackendMemory)
	require.NoError(t, err)

	_, err = svc.CreateDataset(context.Background(), "civil", BackendMemory)
	assert.ErrorIs(t, err, ErrDatasetExists)
}

func TestService_CreateDataset_Validation(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.CreateDataset(context.Background(), "   ", BackendMemory)
	assert.ErrorIs(t, err, ErrInvalidDatasetName)

	_, err = svc.CreateDataset(context.Background(), "civil", "mongo")
	assert.ErrorIs(t, err, ErrUnknownBackend)
}

func TestService_CreateDataset_DefaultBackend(t *testing.T) {
	svc := newTestService(t)

	info, err := svc.CreateDataset(context.Background(), "civil", "")
	require.NoError(t, err)
	assert.Equal(t, BackendMemory, info.Backend)
}

func TestService_CreateDataset_Capacity(t *testing.T) {
	cfg := DefaultServiceConfig()
	cfg.MaxDatasets = 2
	cfg.DataDir = t.TempDir()
	svc := NewService(cfg)
	defer svc.Close()

	_, err := svc.CreateDataset(context.Background(), "one", BackendMemory)
	require.NoError(t, err)
	_, err = svc.CreateDataset(context.Background(), "two", BackendMemory)
	require.NoError(t, err)

	_, err = svc.CreateDataset(context.Background(), "three", BackendMemory)
	assert.ErrorIs(t, err, ErrTooManyDatasets)
}

func TestService_ResolveByNameOrID(t *testing.T) {
	svc := newTestService(t)
	info := seedDemo(t, svc, "civil")

	byID, err := svc.GetDataset(context.Background(), info.ID)
	require.NoError(t, err)
	byName, err := svc.GetDataset(context.Background(), "civil")
	require.NoError(t, err)
	assert.Equal(t, byID.ID, byName.ID)
}

func TestService_DeleteDataset(t *testing.T) {
	svc := newTestService(t)
	info := seedDemo(t, svc, "civil")

	require.NoError(t, svc.DeleteDataset(context.Background(), info.ID))

	_, err := svc.GetDataset(context.Background(), info.ID)
	assert.ErrorIs(t, err, ErrDatasetNotFound)

	err = svc.DeleteDataset(context.Background(), info.ID)
	assert.ErrorIs(t, err, ErrDatasetNotFound)
}

func TestService_ListDatasets_SortedByName(t *testing.T) {
	svc := newTestService(t)
	for _, name := range []string{"gamma", "alpha", "beta"} {
		_, err := svc.CreateDataset(context.Background(), name, BackendMemory)
		require.NoError(t, err)
	}

	resp, err := svc.ListDatasets(context.Background())
	require.NoError(t, err)
	require.Equal(t, 3, resp.Count)
	assert.Equal(t, "alpha", resp.Datasets[0].Name)
	assert.Equal(t, "beta", resp.Datasets[1].Name)
	assert.Equal(t, "gamma", resp.Datasets[2].Name)
}

func TestService_DatasetTTL(t *testing.T) {
	cfg := DefaultServiceConfig()
	cfg.DatasetTTL = time.Millisecond
	cfg.DataDir = t.TempDir()
	svc := NewService(cfg)
	defer svc.Close()

	_, err := svc.CreateDataset(context.Background(), "ephemeral", BackendMemory)
	require.NoError(t, err)

	time.Sleep(50 * time.Millisecond)

	_, err = svc.GetDataset(context.Background(), "ephemeral")
	assert.ErrorIs(t, err, ErrDatasetExpired)

	// The drop frees the slot and the name.
	_, err = svc.CreateDataset(context.Background(), "ephemeral", BackendMemory)
	assert.NoError(t, err)
}

func TestService_Close(t *testing.T) {
	svc := newTestService(t)
	seedDemo(t, svc, "civil")

	require.NoError(t, svc.Close())
	require.NoError(t, svc.Close()) // idempotent

	_, err := svc.CreateDataset(context.Background(), "other", BackendMemory)
	assert.ErrorIs(t, err, ErrServiceClosed)
	_, err = svc.GetDataset(context.Background(), "civil")
	assert.ErrorIs(t, err, ErrServiceClosed)
}

// =============================================================================
// Record Operations
// =============================================================================

func TestService_AppendAndLookup(t *testing.T) {
	svc := newTestService(t)
	info := seedDemo(t, svc, "civil")

	resp, err := svc.Lookup(context.Background(), info.ID, "456")
	require.NoError(t, err)
	assert.Equal(t, "Ana", resp.Record.Name)
	assert.Equal(t, "2002-03-15", resp.Record.BirthDate)
	assert.Equal(t, 1, resp.Position)
	assert.False(t, resp.Record.Deleted)
}

func TestService_AppendDuplicateKey(t *testing.T) {
	svc := newTestService(t)
	info := seedDemo(t, svc, "civil")

	resp, err := svc.AppendRecord(context.Background(), info.ID, AppendRecordRequest{
		CPF: "123", Name: "Lucas Again", BirthDate: "2005-07-10",
	})
	require.NoError(t, err)
	assert.False(t, resp.Indexed)
	assert.Equal(t, 0, resp.Position, "duplicate reports the indexed position")

	// Dataset untouched: same record count, original payload wins.
	stats, err := svc.GetDataset(context.Background(), info.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Records)
	assert.Equal(t, 3, stats.IndexedKeys)

	look, err := svc.Lookup(context.Background(), info.ID, "123")
	require.NoError(t, err)
	assert.Equal(t, "Lucas", look.Record.Name)
}

func TestService_AppendRecord_Invalid(t *testing.T) {
	svc := newTestService(t)
	info := seedDemo(t, svc, "civil")

	_, err := svc.AppendRecord(context.Background(), info.ID, AppendRecordRequest{
		CPF: "", Name: "Nobody",
	})
	assert.ErrorIs(t, err, record.ErrInvalidRecord)

	_, err = svc.AppendRecord(context.Background(), info.ID, AppendRecordRequest{
		CPF: "999", Name: "Bad Date", BirthDate: "15/03/2002",
	})
	assert.ErrorIs(t, err, record.ErrInvalidRecord)
}

func TestService_StrictIdentifiers(t *testing.T) {
	cfg := DefaultServiceConfig()
	cfg.StrictIdentifiers = true
	cfg.DataDir = t.TempDir()
	svc := NewService(cfg)
	defer svc.Close()

	info, err := svc.CreateDataset(context.Background(), "strict", BackendMemory)
	require.NoError(t, err)

	// Structurally fine but fails the check digits.
	_, err = svc.AppendRecord(context.Background(), info.ID, AppendRecordRequest{
		CPF: "123", Name: "Lucas",
	})
	assert.ErrorIs(t, err, record.ErrInvalidIdentifier)

	// A checksum-valid CPF is accepted.
	resp, err := svc.AppendRecord(context.Background(), info.ID, AppendRecordRequest{
		CPF: "529.982.247-25", Name: "Valid Holder",
	})
	require.NoError(t, err)
	assert.True(t, resp.Indexed)
}

func TestService_Lookup_NotFoundVersusDeleted(t *testing.T) {
	svc := newTestService(t)
	info := seedDemo(t, svc, "civil")

	// Never stored.
	_, err := svc.Lookup(context.Background(), info.ID, "000")
	assert.ErrorIs(t, err, query.ErrRecordNotFound)

	// Logically deleted: key stays indexed, lookup reports the tombstone.
	require.NoError(t, svc.MarkDeleted(context.Background(), info.ID, "123"))

	_, err = svc.Lookup(context.Background(), info.ID, "123")
	assert.ErrorIs(t, err, query.ErrRecordDeleted)

	stats, err := svc.GetDataset(context.Background(), info.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.IndexedKeys, "logical deletion must not prune the index")
}

func TestService_MarkDeleted_Idempotent(t *testing.T) {
	svc := newTestService(t)
	info := seedDemo(t, svc, "civil")

	require.NoError(t, svc.MarkDeleted(context.Background(), info.ID, "456"))
	require.NoError(t, svc.MarkDeleted(context.Background(), info.ID, "456"))

	err := svc.MarkDeleted(context.Background(), info.ID, "000")
	assert.ErrorIs(t, err, query.ErrRecordNotFound)
}

func TestService_RemoveFromIndex(t *testing.T) {
	svc := newTestService(t)
	info := seedDemo(t, svc, "civil")

	removed, err := svc.RemoveFromIndex(context.Background(), info.ID, "456")
	require.NoError(t, err)
	assert.True(t, removed)

	// Idempotent: absent key reports removed=false without error.
	removed, err = svc.RemoveFromIndex(context.Background(), info.ID, "456")
	require.NoError(t, err)
	assert.False(t, removed)

	// The key is unreachable but the list slot survives.
	_, err = svc.Lookup(context.Background(), info.ID, "456")
	assert.ErrorIs(t, err, query.ErrRecordNotFound)

	stats, err := svc.GetDataset(context.Background(), info.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Records)
	assert.Equal(t, 2, stats.IndexedKeys)
}

func TestService_BulkLoad(t *testing.T) {
	svc := newTestService(t)
	info, err := svc.CreateDataset(context.Background(), "civil", BackendMemory)
	require.NoError(t, err)

	batch := append(demoRecords(),
		AppendRecordRequest{CPF: "123", Name: "Duplicate"},
		AppendRecordRequest{CPF: "", Name: "Invalid"},
	)

	resp, err := svc.BulkLoad(context.Background(), info.ID, batch)
	require.NoError(t, err)
	assert.Equal(t, 3, resp.Indexed)
	assert.Equal(t, 1, resp.Skipped)
	assert.Equal(t, 1, resp.Failed)
	require.Len(t, resp.Outcomes, 5)

	assert.True(t, resp.Outcomes[0].Indexed)
	assert.False(t, resp.Outcomes[3].Indexed)
	assert.Equal(t, 0, resp.Outcomes[3].Position, "duplicate points at the first occurrence")
	assert.Equal(t, -1, resp.Outcomes[4].Position)
	assert.NotEmpty(t, resp.Outcomes[4].Error)
}

// =============================================================================
// Views
// =============================================================================

func TestService_Traverse(t *testing.T) {
	svc := newTestService(t)
	info, err := svc.CreateDataset(context.Background(), "civil", BackendMemory)
	require.NoError(t, err)

	for _, key := range []string{"50", "30", "70", "20", "40"} {
		_, err := svc.AppendRecord(context.Background(), info.ID, AppendRecordRequest{
			CPF: key, Name: "Holder " + key,
		})
		require.NoError(t, err)
	}

	cases := []struct {
		order bst.Order
		want  []string
	}{
		{bst.InOrder, []string{"20", "30", "40", "50", "70"}},
		{bst.PreOrder, []string{"50", "30", "20", "40", "70"}},
		{bst.PostOrder, []string{"20", "40", "30", "70", "50"}},
		{bst.BreadthFirst, []string{"50", "30", "70", "20", "40"}},
	}
	for _, tc := range cases {
		resp, err := svc.Traverse(context.Background(), info.ID, tc.order)
		require.NoError(t, err)
		assert.Equal(t, tc.order.String(), resp.Order)
		require.Equal(t, len(tc.want), resp.Count)

		got := make([]string, 0, len(resp.Records))
		for _, rec := range resp.Records {
			got = append(got, rec.CPF)
		}
		assert.Equal(t, tc.want, got, "order %s", tc.order)
	}
}

func TestService_SortedSnapshot_LiveDeletionMarks(t *testing.T) {
	svc := newTestService(t)
	info := seedDemo(t, svc, "civil")

	snap, err := svc.SortedSnapshot(context.Background(), info.ID)
	require.NoError(t, err)
	require.Equal(t, 3, snap.Count)
	assert.Equal(t, []string{"123", "456", "789"}, snapKeys(snap))
	for _, rec := range snap.Records {
		assert.False(t, rec.Deleted)
	}

	// Deletion bumps the version; the next snapshot sees the tombstone.
	require.NoError(t, svc.MarkDeleted(context.Background(), info.ID, "456"))

	snap2, err := svc.SortedSnapshot(context.Background(), info.ID)
	require.NoError(t, err)
	assert.Greater(t, snap2.Version, snap.Version)
	require.Equal(t, 3, snap2.Count)
	assert.True(t, snap2.Records[1].Deleted)
	assert.False(t, snap2.Records[0].Deleted)
}

func TestService_SortedSnapshot_CacheHits(t *testing.T) {
	svc := newTestService(t)
	info := seedDemo(t, svc, "civil")

	_, err := svc.SortedSnapshot(context.Background(), info.ID)
	require.NoError(t, err)
	before := svc.ViewCacheStats()

	_, err = svc.SortedSnapshot(context.Background(), info.ID)
	require.NoError(t, err)
	after := svc.ViewCacheStats()

	assert.Equal(t, before.Builds, after.Builds, "unchanged version must reuse the cached view")
	assert.Greater(t, after.Hits, before.Hits)
}

// =============================================================================
// Clone
// =============================================================================

func TestService_CloneDataset_Independence(t *testing.T) {
	svc := newTestService(t)
	src := seedDemo(t, svc, "civil")

	clone, err := svc.CloneDataset(context.Background(), src.ID, "civil-copy")
	require.NoError(t, err)
	assert.Equal(t, BackendMemory, clone.Backend)
	assert.Equal(t, 3, clone.Records)
	assert.Equal(t, 3, clone.IndexedKeys)

	// Mutating the source must not leak into the clone.
	require.NoError(t, svc.MarkDeleted(context.Background(), src.ID, "123"))
	_, err = svc.AppendRecord(context.Background(), src.ID, AppendRecordRequest{
		CPF: "999", Name: "Late Arrival",
	})
	require.NoError(t, err)

	look, err := svc.Lookup(context.Background(), clone.ID, "123")
	require.NoError(t, err)
	assert.False(t, look.Record.Deleted)

	_, err = svc.Lookup(context.Background(), clone.ID, "999")
	assert.ErrorIs(t, err, query.ErrRecordNotFound)

	// And the reverse: clone mutations stay in the clone.
	require.NoError(t, svc.MarkDeleted(context.Background(), clone.ID, "789"))
	look, err = svc.Lookup(context.Background(), src.ID, "789")
	require.NoError(t, err)
	assert.False(t, look.Record.Deleted)
}

func TestService_CloneDataset_NameConflict(t *testing.T) {
	svc := newTestService(t)
	src := seedDemo(t, svc, "civil")

	_, err := svc.CloneDataset(context.Background(), src.ID, "civil")
	assert.ErrorIs(t, err, ErrDatasetExists)

	_, err = svc.CloneDataset(context.Background(), "missing", "copy")
	assert.ErrorIs(t, err, ErrDatasetNotFound)
}

// =============================================================================
// Badger Backend
// =============================================================================

func TestService_BadgerBackend(t *testing.T) {
	dataDir := t.TempDir()
	cfg := DefaultServiceConfig()
	cfg.DataDir = dataDir
	svc := NewService(cfg)

	info, err := svc.CreateDataset(context.Background(), "persistent", BackendBadger)
	require.NoError(t, err)
	assert.Equal(t, BackendBadger, info.Backend)

	for _, req := range demoRecords() {
		_, err := svc.AppendRecord(context.Background(), info.ID, req)
		require.NoError(t, err)
	}
	require.NoError(t, svc.MarkDeleted(context.Background(), info.ID, "456"))

	look, err := svc.Lookup(context.Background(), info.ID, "789")
	require.NoError(t, err)
	assert.Equal(t, "João", look.Record.Name)

	// Shut down and bring the dataset back from disk. The index is
	// rebuilt from the stored list, tombstone included.
	require.NoError(t, svc.Close())

	svc2 := NewService(cfg)
	defer svc2.Close()

	reopened, err := svc2.CreateDataset(context.Background(), "persistent", BackendBadger)
	require.NoError(t, err)
	assert.Equal(t, 3, reopened.Records)
	assert.Equal(t, 3, reopened.IndexedKeys)

	_, err = svc2.Lookup(context.Background(), reopened.ID, "456")
	assert.ErrorIs(t, err, query.ErrRecordDeleted)

	look, err = svc2.Lookup(context.Background(), reopened.ID, "123")
	require.NoError(t, err)
	assert.Equal(t, "Lucas", look.Record.Name)
}

// snapKeys extracts the key sequence from a snapshot.
func snapKeys(snap *SnapshotResponse) []string {
	keys := make([]string, 0, len(snap.Records))
	for _, rec := range snap.Records {
		keys = append(keys, rec.CPF)
	}
	return keys
}
