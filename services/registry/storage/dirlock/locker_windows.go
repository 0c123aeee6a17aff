// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

//go:build windows

package dirlock

import (
	"os"

	"golang.org/x/sys/windows"
)

// windowsLocker implements fileLocker using LockFileEx.
//
// # Description
//
// Uses mandatory byte-range locking via LockFileEx over the first byte of
// the file. Locks are released on UnlockFileEx, handle close, or process
// exit.
type windowsLocker struct{}

// Lock acquires an exclusive lock using LockFileEx.
//
// LOCKFILE_FAIL_IMMEDIATELY makes the call non-blocking; ERROR_LOCK_VIOLATION
// maps to ErrDirLocked.
func (l *windowsLocker) Lock(f *os.File) error {
	ol := new(windows.Overlapped)
	err := windows.LockFileEx(windows.Handle(f.Fd()),
		windows.LOCKFILE_EXCLUSIVE_LOCK|windows.LOCKFILE_FAIL_IMMEDIATELY,
		0, 1, 0, ol)
	if err != nil {
		if err == windows.ERROR_LOCK_VIOLATION {
			return ErrDirLocked
		}
		return err
	}
	return nil
}

// Unlock releases the lock using UnlockFileEx. Safe to call even if not locked.
func (l *windowsLocker) Unlock(f *os.File) error {
	ol := new(windows.Overlapped)
	err := windows.UnlockFileEx(windows.Handle(f.Fd()), 0, 1, 0, ol)
	if err == windows.ERROR_NOT_LOCKED {
		return nil
	}
	return err
}

// isProcessAlive checks if a process exists using OpenProcess.
func isProcessAlive(pid int) bool {
	handle, err := windows.OpenProcess(windows.PROCESS_QUERY_LIMITED_INFORMATION, false, uint32(pid))
	if err != nil {
		return false
	}
	defer windows.CloseHandle(handle)

	var code uint32
	if err := windows.GetExitCodeProcess(handle, &code); err != nil {
		return false
	}
	return code == uint32(windows.STATUS_PENDING)
}

// newPlatformLocker returns a Windows-specific file locker.
func newPlatformLocker() fileLocker {
	return &windowsLocker{}
}
