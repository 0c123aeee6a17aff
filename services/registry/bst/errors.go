// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package bst

import "errors"

var (
	// ErrInvariantViolated indicates Validate found a node breaking the
	// ordering invariant or a size/count mismatch. A tree in this state
	// has a bug upstream; it is never produced by the operations here.
	ErrInvariantViolated = errors.New("bst invariant violated")

	// ErrUnknownOrder indicates an unrecognized traversal order name.
	ErrUnknownOrder = errors.New("unknown traversal order")
)
