// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package dirlock guards the registry data directory against concurrent
// server processes.
//
// Two servers opening the same data directory would corrupt nothing at the
// BadgerDB layer (Badger holds its own lock per database), but they would
// each rebuild independent index trees over datasets the other is mutating.
// The directory lock fails the second process fast, with a message naming
// the holder, instead of letting it limp along on half the datasets.
//
// The lock is advisory: a kernel file lock (flock on Unix, LockFileEx on
// Windows) on a REGISTRY.LOCK file inside the directory. The kernel releases
// it when the holder exits, crashed or not, so there is no TTL and no stale
// lock cleanup. The file body carries holder metadata (PID, hostname, start
// time) purely so a conflicting process can say who is in the way.
package dirlock

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// LockFileName is the name of the lock file inside the data directory.
const LockFileName = "REGISTRY.LOCK"

// =============================================================================
// Types
// =============================================================================

// LockInfo describes the process holding a directory lock.
//
// # Fields
//
//   - PID: Process ID of the holder.
//   - Hostname: Host the holder runs on. Kernel file locks are host-local,
//     so a PID from another host cannot be liveness-checked.
//   - LockedAt: When the lock was acquired.
type LockInfo struct {
	PID      int       `json:"pid"`
	Hostname string    `json:"hostname"`
	LockedAt time.Time `json:"locked_at"`
}

// Lock is a held directory lock. Release it with Release.
//
// # Thread Safety
//
// A Lock is owned by the process that acquired it. Release is safe to call
// multiple times; concurrent calls to Release are not supported.
type Lock struct {
	dir      string
	file     *os.File
	locker   fileLocker
	released bool
}

// =============================================================================
// Acquire / Release
// =============================================================================

// Acquire takes an exclusive advisory lock on a data directory.
//
// # Description
//
// Creates the directory if needed, opens (or creates) the REGISTRY.LOCK file
// inside it, and takes a non-blocking exclusive kernel lock on it. On success
// the holder's metadata is written into the file for visibility. On conflict
// the file is read back so the error can name the current holder.
//
// # Inputs
//
//   - dir: Data directory to lock. Created with 0750 if missing.
//
// # Outputs
//
//   - *Lock: The held lock. Caller must call Release() on shutdown.
//   - error: *DirLockedError (wrapping ErrDirLocked) if another process holds
//     the lock; other errors on filesystem failure.
//
// # Example
//
//	lk, err := dirlock.Acquire(cfg.Storage.DataDir)
//	if err != nil {
//	    var locked *dirlock.DirLockedError
//	    if errors.As(err, &locked) {
//	        log.Error("another registry server owns this data directory",
//	            "holder_pid", locked.Holder.PID)
//	    }
//	    return err
//	}
//	defer lk.Release()
func Acquire(dir string) (*Lock, error) {
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("create data directory %s: %w", dir, err)
	}

	lockPath := filepath.Join(dir, LockFileName)
	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("open lock file %s: %w", lockPath, err)
	}

	locker := newPlatformLocker()
	if err := locker.Lock(f); err != nil {
		f.Close()
		if err == ErrDirLocked {
			return nil, lockConflict(dir, lockPath)
		}
		return nil, fmt.Errorf("lock %s: %w", lockPath, err)
	}

	if err := writeLockInfo(f); err != nil {
		locker.Unlock(f)
		f.Close()
		return nil, fmt.Errorf("write lock info: %w", err)
	}

	return &Lock{dir: dir, file: f, locker: locker}, nil
}

// Release unlocks and removes the lock file.
//
// # Description
//
// Releases the kernel lock, closes the handle, and removes the lock file.
// Idempotent: calling Release twice returns ErrLockReleased the second time.
//
// # Outputs
//
//	error - ErrLockReleased if already released; otherwise the first
//	filesystem error encountered (the kernel lock is still dropped).
func (l *Lock) Release() error {
	if l.released {
		return ErrLockReleased
	}
	l.released = true

	var firstErr error
	if err := l.locker.Unlock(l.file); err != nil {
		firstErr = fmt.Errorf("unlock: %w", err)
	}
	if err := l.file.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("close lock file: %w", err)
	}
	// Removing while briefly unlocked is a benign race: a concurrent
	// Acquire recreates the file before locking it.
	if err := os.Remove(filepath.Join(l.dir, LockFileName)); err != nil && !os.IsNotExist(err) && firstErr == nil {
		firstErr = fmt.Errorf("remove lock file: %w", err)
	}
	return firstErr
}

// Dir returns the locked directory.
func (l *Lock) Dir() string {
	return l.dir
}

// IsProcessAlive checks if a process with the given PID is still running.
//
// # Description
//
// Used to annotate lock conflict errors. On Unix, uses kill -0.
// On Windows, uses OpenProcess.
//
// # Inputs
//
//   - pid: Process ID to check.
//
// # Outputs
//
//   - bool: True if process exists, false otherwise.
//
// # Platform Notes
//
// This function is implemented in platform-specific files.
func IsProcessAlive(pid int) bool {
	return isProcessAlive(pid)
}

// =============================================================================
// Internal helpers
// =============================================================================

// fileLocker abstracts the platform-specific kernel lock calls.
type fileLocker interface {
	// Lock takes a non-blocking exclusive lock, returning ErrDirLocked
	// if another process holds it.
	Lock(f *os.File) error

	// Unlock releases the lock. Safe to call on an unlocked file.
	Unlock(f *os.File) error
}

// writeLockInfo replaces the lock file body with the holder's metadata.
func writeLockInfo(f *os.File) error {
	hostname, _ := os.Hostname()
	info := LockInfo{
		PID:      os.Getpid(),
		Hostname: hostname,
		LockedAt: time.Now().UTC(),
	}

	data, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return err
	}
	if err := f.Truncate(0); err != nil {
		return err
	}
	if _, err := f.WriteAt(data, 0); err != nil {
		return err
	}
	return f.Sync()
}

// lockConflict builds a DirLockedError from whatever holder metadata the
// lock file contains. Advisory locks do not block reads, so the body is
// readable even while another process holds the lock.
func lockConflict(dir, lockPath string) error {
	lockedErr := &DirLockedError{Dir: dir}

	data, err := os.ReadFile(lockPath)
	if err != nil {
		return lockedErr
	}

	var info LockInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return lockedErr
	}

	hostname, _ := os.Hostname()
	lockedErr.Holder = &info
	lockedErr.HolderAlive = info.Hostname == hostname && IsProcessAlive(info.PID)
	return lockedErr
}
