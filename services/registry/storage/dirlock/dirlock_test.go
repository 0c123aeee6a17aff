// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package dirlock

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireRelease(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "data")

	lk, err := Acquire(dir)
	require.NoError(t, err)
	assert.Equal(t, dir, lk.Dir())

	// Directory and lock file were created.
	_, err = os.Stat(dir)
	require.NoError(t, err)
	data, err := os.ReadFile(filepath.Join(dir, LockFileName))
	require.NoError(t, err)

	var info LockInfo
	require.NoError(t, json.Unmarshal(data, &info))
	assert.Equal(t, os.Getpid(), info.PID)
	assert.WithinDuration(t, time.Now(), info.LockedAt, time.Minute)

	require.NoError(t, lk.Release())

	// Lock file is removed on release.
	_, err = os.Stat(filepath.Join(dir, LockFileName))
	assert.True(t, os.IsNotExist(err))
}

func TestAcquireConflict(t *testing.T) {
	dir := t.TempDir()

	lk, err := Acquire(dir)
	require.NoError(t, err)
	defer lk.Release()

	// flock is process-scoped, so the same process can re-lock the same
	// inode. A second handle must come from a second process to observe
	// the conflict; simulate the conflict path through lockConflict
	// directly instead.
	conflictErr := lockConflict(dir, filepath.Join(dir, LockFileName))
	require.Error(t, conflictErr)
	assert.True(t, errors.Is(conflictErr, ErrDirLocked))

	var locked *DirLockedError
	require.True(t, errors.As(conflictErr, &locked))
	require.NotNil(t, locked.Holder)
	assert.Equal(t, os.Getpid(), locked.Holder.PID)
	assert.True(t, locked.HolderAlive, "our own PID should be alive")
	assert.Contains(t, locked.Error(), "running")
}

func TestReleaseIdempotent(t *testing.T) {
	lk, err := Acquire(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, lk.Release())
	assert.ErrorIs(t, lk.Release(), ErrLockReleased)
}

func TestReacquireAfterRelease(t *testing.T) {
	dir := t.TempDir()

	lk, err := Acquire(dir)
	require.NoError(t, err)
	require.NoError(t, lk.Release())

	lk2, err := Acquire(dir)
	require.NoError(t, err)
	require.NoError(t, lk2.Release())
}

func TestLockConflictUnreadableHolder(t *testing.T) {
	dir := t.TempDir()
	lockPath := filepath.Join(dir, LockFileName)
	require.NoError(t, os.WriteFile(lockPath, []byte("not json"), 0644))

	err := lockConflict(dir, lockPath)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDirLocked))

	var locked *DirLockedError
	require.True(t, errors.As(err, &locked))
	assert.Nil(t, locked.Holder)
}

func TestIsProcessAlive(t *testing.T) {
	assert.True(t, IsProcessAlive(os.Getpid()))

	// PIDs wrap below ~4M on Linux; a huge value is never allocated.
	assert.False(t, IsProcessAlive(1 << 30))
}
