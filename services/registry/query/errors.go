// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package query

import "errors"

var (
	// ErrRecordNotFound indicates the key is not in the index. A normal
	// outcome, not a storage failure; callers match with errors.Is.
	ErrRecordNotFound = errors.New("record not found")

	// ErrRecordDeleted indicates the key resolved to a record whose
	// deletion flag is set in the external list. Distinct from both
	// found and not found: the index still holds the key, the list
	// still holds the slot, but the record is logically gone.
	ErrRecordDeleted = errors.New("record is deleted")
)
