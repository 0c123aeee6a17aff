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

import "errors"

var (
	// ErrPositionOutOfRange indicates a position that was never assigned
	// by Append. Positions are append-ordered and never reclaimed, so a
	// valid position stays valid for the lifetime of the list.
	ErrPositionOutOfRange = errors.New("position out of range")

	// ErrListClosed indicates an operation on a closed list.
	ErrListClosed = errors.New("record list is closed")
)
