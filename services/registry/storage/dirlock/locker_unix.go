// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

//go:build unix

package dirlock

import (
	"os"

	"golang.org/x/sys/unix"
)

// unixLocker implements fileLocker using flock(2).
//
// # Description
//
// Uses advisory file locking via flock(2). Locks are:
// - Process-scoped (inherited by child processes)
// - Released on file close or process exit
// - Non-blocking when LOCK_NB is specified
type unixLocker struct{}

// Lock acquires an exclusive lock using flock(2).
//
// Uses LOCK_EX|LOCK_NB for a non-blocking exclusive lock and maps
// EWOULDBLOCK to ErrDirLocked.
func (l *unixLocker) Lock(f *os.File) error {
	err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB)
	if err != nil {
		if err == unix.EWOULDBLOCK {
			return ErrDirLocked
		}
		return err
	}
	return nil
}

// Unlock releases the lock using LOCK_UN. Safe to call even if not locked.
func (l *unixLocker) Unlock(f *os.File) error {
	return unix.Flock(int(f.Fd()), unix.LOCK_UN)
}

// isProcessAlive checks if a process exists using kill -0.
//
// Signal 0 checks existence without affecting the process. Returns false
// if the process doesn't exist or we lack permission to signal it.
func isProcessAlive(pid int) bool {
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = process.Signal(unix.Signal(0))
	return err == nil
}

// newPlatformLocker returns a Unix-specific file locker.
func newPlatformLocker() fileLocker {
	return &unixLocker{}
}
