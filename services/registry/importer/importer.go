// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package importer loads seed records from files into a registry
// dataset, either on demand or by watching a directory for changes.
//
// Seed files are flat JSON arrays or YAML sequences of records:
//
//	[{"cpf": "123", "name": "Lucas", "birth_date": "2005-07-10"}]
//
// Imports go through the registry's bulk-load path, so duplicate keys
// are skipped rather than overwritten and a bad record never aborts
// the rest of the file.
package importer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/CivicLedger/services/registry"
	"github.com/AleutianAI/CivicLedger/services/registry/record"
)

// MaxSeedFileBytes caps seed file size. Seed files are configuration,
// not bulk data; anything larger belongs in the HTTP bulk endpoint.
const MaxSeedFileBytes = 1 << 20 // 1 MiB

// Config configures an Importer.
type Config struct {
	// Dataset is the target dataset name. Created on first import if
	// it does not exist yet.
	Dataset string

	// Backend is the backend used when the dataset must be created.
	// Empty selects the service default.
	Backend string
}

// Result reports one completed import.
type Result struct {
	// File is the imported seed file path.
	File string `json:"file"`

	// Total is the number of records parsed from the file.
	Total int `json:"total"`

	// Indexed, Skipped, and Failed partition Total by outcome.
	Indexed int `json:"indexed"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

// Importer loads seed files into one registry dataset.
type Importer struct {
	svc    *registry.Service
	config Config
}

// New creates an importer targeting the configured dataset.
func New(svc *registry.Service, config Config) *Importer {
	return &Importer{svc: svc, config: config}
}

// ParseSeedFile reads and decodes one seed file.
//
// Description:
//
//	Decodes a flat list of records from a .json, .yaml, or .yml file.
//	The file size is capped at MaxSeedFileBytes; a file that parses
//	to zero records is an error so a truncated upload cannot pass as
//	a clean import.
//
// Inputs:
//
//	path - Seed file path
//
// Outputs:
//
//	[]record.Record - Parsed records in file order
//	error - Non-nil on read, size, format, or decode failure
//
// Errors:
//
//	ErrUnsupportedFormat - Extension is not .json/.yaml/.yml
//	ErrSeedFileTooLarge - File exceeds MaxSeedFileBytes
//	ErrEmptySeedFile - File parsed to zero records
func ParseSeedFile(path string) ([]record.Record, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat seed file: %w", err)
	}
	if info.Size() > MaxSeedFileBytes {
		return nil, fmt.Errorf("%w: %s is %d bytes (max %d)",
			ErrSeedFileTooLarge, path, info.Size(), MaxSeedFileBytes)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}

	var records []record.Record
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		if err := json.Unmarshal(data, &records); err != nil {
			return nil, fmt.Errorf("decode %s: %w", path, err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &records); err != nil {
			return nil, fmt.Errorf("decode %s: %w", path, err)
		}
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}

	if len(records) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmptySeedFile, path)
	}
	return records, nil
}

// Import parses one seed file and bulk-loads it into the dataset.
//
// Description:
//
//	Ensures the target dataset exists, then loads the parsed records
//	through the registry bulk path. Per-record failures are counted,
//	not fatal.
//
// Inputs:
//
//	ctx - Context for cancellation
//	path - Seed file path
//
// Outputs:
//
//	*Result - Outcome counters for the file
//	error - Non-nil on parse failure or registry errors
func (i *Importer) Import(ctx context.Context, path string) (*Result, error) {
	records, err := ParseSeedFile(path)
	if err != nil {
		return nil, err
	}

	if err := i.ensureDataset(ctx); err != nil {
		return nil, err
	}

	reqs := make([]registry.AppendRecordRequest, 0, len(records))
	for _, rec := range records {
		reqs = append(reqs, registry.AppendRecordRequest{
			CPF:       rec.CPF,
			Name:      rec.Name,
			BirthDate: rec.BirthDate,
		})
	}

	resp, err := i.svc.BulkLoad(ctx, i.config.Dataset, reqs)
	if err != nil {
		return nil, fmt.Errorf("bulk load %s: %w", path, err)
	}

	result := &Result{
		File:    path,
		Total:   len(records),
		Indexed: resp.Indexed,
		Skipped: resp.Skipped,
		Failed:  resp.Failed,
	}
	slog.Info("seed file imported",
		"file", path,
		"dataset", i.config.Dataset,
		"total", result.Total,
		"indexed", result.Indexed,
		"skipped", result.Skipped,
		"failed", result.Failed)
	return result, nil
}

// ensureDataset creates the target dataset if it does not exist.
func (i *Importer) ensureDataset(ctx context.Context) error {
	_, err := i.svc.CreateDataset(ctx, i.config.Dataset, i.config.Backend)
	if err != nil && !errors.Is(err, registry.ErrDatasetExists) {
		return fmt.Errorf("ensure dataset %q: %w", i.config.Dataset, err)
	}
	return nil
}
