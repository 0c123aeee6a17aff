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

import "errors"

// Sentinel errors for the registry service.
var (
	// ErrDatasetNotFound indicates no dataset exists for the given ID or name.
	ErrDatasetNotFound = errors.New("dataset not found")

	// ErrDatasetExists indicates a dataset with the same name is already registered.
	ErrDatasetExists = errors.New("dataset already exists")

	// ErrTooManyDatasets indicates the service is at capacity even after
	// sweeping expired datasets. Live datasets are never evicted.
	ErrTooManyDatasets = errors.New("too many datasets")

	// ErrDatasetExpired indicates the dataset idled past its TTL and was dropped.
	ErrDatasetExpired = errors.New("dataset expired")

	// ErrInvalidDatasetName indicates the dataset name is empty or malformed.
	ErrInvalidDatasetName = errors.New("invalid dataset name")

	// ErrUnknownBackend indicates the requested storage backend is not supported.
	ErrUnknownBackend = errors.New("unknown storage backend")

	// ErrServiceClosed indicates the service has been shut down.
	ErrServiceClosed = errors.New("registry service closed")
)
