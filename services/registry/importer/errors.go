// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package importer

import "errors"

// Sentinel errors for seed-file imports.
var (
	// ErrUnsupportedFormat indicates the seed file extension is not
	// .json, .yaml, or .yml.
	ErrUnsupportedFormat = errors.New("unsupported seed file format")

	// ErrSeedFileTooLarge indicates the seed file exceeds MaxSeedFileBytes.
	ErrSeedFileTooLarge = errors.New("seed file too large")

	// ErrEmptySeedFile indicates the seed file parsed to zero records.
	ErrEmptySeedFile = errors.New("seed file contains no records")
)
