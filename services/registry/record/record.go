// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package record defines the civil-registry record entity indexed by the
// rest of the registry service.
//
// A Record is the leaf data entity of the system: an identifier (CPF), a
// display name, an opaque birth date, and a logical-deletion flag. Ordering
// and equality between records are defined solely by the identifier; every
// other field is payload the index never inspects.
//
// The deletion flag is owned by the record store (the EDL). The index and
// the query helpers only ever read it.
package record

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"

	"github.com/AleutianAI/CivicLedger/pkg/validation"
)

// =============================================================================
// Constants (field size limits)
// =============================================================================

const (
	// MaxIdentifierBytes caps the identifier length. Keys are index and
	// storage keys; an unbounded key is an unbounded allocation.
	MaxIdentifierBytes = 64

	// MaxNameBytes caps the display name length.
	MaxNameBytes = 256
)

// =============================================================================
// Validator
// =============================================================================

// recordValidate is the validator instance for record datatypes.
var recordValidate *validator.Validate

func init() {
	recordValidate = validator.New()

	// Register the identifier shape check used by the `identifier` tag.
	_ = recordValidate.RegisterValidation("identifier", validateIdentifier)

	// Register the byte-length check for the display name. The builtin
	// `max` tag counts runes; storage limits are in bytes.
	_ = recordValidate.RegisterValidation("namebytes", validateNameBytes)
}

// validateNameBytes enforces MaxNameBytes on the raw byte length.
func validateNameBytes(fl validator.FieldLevel) bool {
	return len(fl.Field().String()) <= MaxNameBytes
}

// validateIdentifier accepts 1..MaxIdentifierBytes printable, non-space
// bytes. The index orders identifiers lexicographically as opaque
// strings, so no digit-only or checksum rule is applied here; strict
// CPF validation is a separate, config-gated step (ValidateStrict).
func validateIdentifier(fl validator.FieldLevel) bool {
	id := fl.Field().String()
	if len(id) == 0 || len(id) > MaxIdentifierBytes {
		return false
	}
	for _, r := range id {
		if unicode.IsSpace(r) || !unicode.IsPrint(r) {
			return false
		}
	}
	return true
}

// =============================================================================
// Record
// =============================================================================

// Record is one civil-registry entry.
//
// Lifecycle: created by the caller before indexing; the Deleted flag is
// flipped by the record store on logical deletion; the index never
// destroys a Record, only the node referencing it.
type Record struct {
	// CPF is the unique identifier and the only field that
	// participates in ordering and equality.
	CPF string `json:"cpf" yaml:"cpf" validate:"required,identifier"`

	// Name is the display name.
	Name string `json:"name" yaml:"name" validate:"required,namebytes"`

	// BirthDate is an ISO date string, opaque to the index.
	BirthDate string `json:"birth_date" yaml:"birth_date" validate:"omitempty,datetime=2006-01-02"`

	// Deleted marks the record as logically deleted in the store.
	// Slots are never reclaimed; lookups report this state distinctly.
	Deleted bool `json:"deleted" yaml:"deleted"`
}

// Key returns the identifier the index orders by.
func (r Record) Key() string {
	return r.CPF
}

// Compare orders records lexicographically by identifier alone.
// Returns -1, 0, or 1 in the strings.Compare convention.
func (r Record) Compare(other Record) int {
	return strings.Compare(r.CPF, other.CPF)
}

// Equal reports identifier equality; payload fields are ignored.
func (r Record) Equal(other Record) bool {
	return r.CPF == other.CPF
}

// Validate checks field shapes: identifier present and well-formed, name
// present and bounded, birth date either empty or an ISO calendar date.
// Returns ErrInvalidRecord wrapping the field-level detail.
func (r Record) Validate() error {
	if err := recordValidate.Struct(r); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRecord, err)
	}
	return nil
}

// ValidateStrict runs Validate and additionally requires the identifier
// to be a checksum-valid CPF (bare or formatted). Used when the service
// is configured with strict identifiers.
func (r Record) ValidateStrict() error {
	if err := r.Validate(); err != nil {
		return err
	}
	if err := validation.ValidateCPF(r.CPF); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidIdentifier, err)
	}
	return nil
}

// String renders the record for logs without exposing name or birth
// date. Record payloads are personal data; only the key is shown.
func (r Record) String() string {
	if r.Deleted {
		return fmt.Sprintf("Record(%s, deleted)", validation.FormatCPF(r.CPF))
	}
	return fmt.Sprintf("Record(%s)", validation.FormatCPF(r.CPF))
}

// ValidationErrors unwraps validator field errors from a Validate
// result, for callers that want per-field detail. Returns nil when err
// carries no field errors.
func ValidationErrors(err error) validator.ValidationErrors {
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) {
		return fieldErrs
	}
	return nil
}
