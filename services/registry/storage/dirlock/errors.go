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
	"errors"
	"fmt"
)

// Sentinel errors for lock operations.
var (
	// ErrDirLocked indicates the directory is already locked by another process.
	ErrDirLocked = errors.New("data directory is locked by another process")

	// ErrLockReleased indicates an operation on a lock that was already released.
	ErrLockReleased = errors.New("lock already released")
)

// DirLockedError provides detailed information about a lock conflict.
//
// # Description
//
// Wraps ErrDirLocked with information about the current lock holder,
// allowing the caller to decide how to proceed (abort, pick another
// directory, or remove a leaked lock file by hand).
//
// # Fields
//
//   - Dir: The directory that is locked.
//   - Holder: Information about the current lock holder (nil if unreadable).
//   - HolderAlive: True if the holder PID was confirmed running on this host.
type DirLockedError struct {
	Dir         string
	Holder      *LockInfo
	HolderAlive bool
}

// Error returns a human-readable error message.
func (e *DirLockedError) Error() string {
	if e.Holder != nil {
		state := "not confirmed running"
		if e.HolderAlive {
			state = "running"
		}
		return fmt.Sprintf("data directory %s is locked by PID %d on %s since %s (%s): %v",
			e.Dir, e.Holder.PID, e.Holder.Hostname,
			e.Holder.LockedAt.Format("2006-01-02 15:04:05"), state, ErrDirLocked)
	}
	return fmt.Sprintf("data directory %s is locked: %v", e.Dir, ErrDirLocked)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *DirLockedError) Unwrap() error {
	return ErrDirLocked
}
