// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package validation provides input validation utilities for security-critical operations.
//
// This package contains validators for user-provided inputs that are used as
// index keys, storage keys, or file paths. Using these validators prevents
// malformed identifiers from entering the record store and the index.
package validation

import (
	"fmt"
	"regexp"
	"strings"
)

// cpfBarePattern matches an unformatted CPF: exactly 11 digits.
var cpfBarePattern = regexp.MustCompile(`^[0-9]{11}$`)

// cpfFormattedPattern matches the conventional display form 000.000.000-00.
var cpfFormattedPattern = regexp.MustCompile(`^[0-9]{3}\.[0-9]{3}\.[0-9]{3}-[0-9]{2}$`)

// ValidateCPF validates a Brazilian CPF taxpayer identifier.
//
// Accepted input forms:
//   - Bare: 11 digits ("52998224725")
//   - Formatted: 000.000.000-00 ("529.982.247-25")
//
// Beyond the shape, both check digits are verified with the standard
// mod-11 algorithm, and identifiers made of a single repeated digit
// (e.g. "11111111111") are rejected even though they satisfy the checksum.
//
// Returns an error describing the first failed rule, or nil if valid.
//
// Example:
//
//	if err := validation.ValidateCPF(cpf); err != nil {
//	    return fmt.Errorf("invalid cpf: %w", err)
//	}
func ValidateCPF(cpf string) error {
	if cpf == "" {
		return fmt.Errorf("cpf cannot be empty")
	}

	digits := cpf
	if cpfFormattedPattern.MatchString(cpf) {
		digits = stripCPFPunctuation(cpf)
	}

	if !cpfBarePattern.MatchString(digits) {
		return fmt.Errorf("invalid cpf format: %q (must be 11 digits, bare or 000.000.000-00)", cpf)
	}

	if allSameDigit(digits) {
		return fmt.Errorf("invalid cpf: %q (repeated-digit sequence)", cpf)
	}

	if !checkDigitsValid(digits) {
		return fmt.Errorf("invalid cpf: %q (check digits do not match)", cpf)
	}

	return nil
}

// ValidateCPFs validates multiple CPF identifiers.
// Returns an error listing all invalid identifiers if any fail validation.
func ValidateCPFs(cpfs []string) error {
	var invalid []string
	for _, c := range cpfs {
		if err := ValidateCPF(c); err != nil {
			invalid = append(invalid, c)
		}
	}

	if len(invalid) > 0 {
		return fmt.Errorf("invalid cpfs: %v", invalid)
	}
	return nil
}

// SanitizeCPF normalizes and validates a CPF identifier.
// Returns the canonical bare 11-digit form if valid, or an error if invalid.
//
// Use this when you need both validation and normalization:
//
//	key, err := validation.SanitizeCPF(userInput)
//	if err != nil {
//	    return err
//	}
//	// key is 11 bare digits, checksum-verified
func SanitizeCPF(cpf string) (string, error) {
	normalized := stripCPFPunctuation(strings.TrimSpace(cpf))
	if err := ValidateCPF(normalized); err != nil {
		return "", err
	}
	return normalized, nil
}

// FormatCPF renders a bare 11-digit CPF in the conventional
// 000.000.000-00 display form. Input that is not 11 bare digits is
// returned unchanged.
func FormatCPF(cpf string) string {
	if !cpfBarePattern.MatchString(cpf) {
		return cpf
	}
	return cpf[0:3] + "." + cpf[3:6] + "." + cpf[6:9] + "-" + cpf[9:11]
}

// stripCPFPunctuation removes the conventional dot and hyphen separators.
func stripCPFPunctuation(cpf string) string {
	cpf = strings.ReplaceAll(cpf, ".", "")
	return strings.ReplaceAll(cpf, "-", "")
}

// allSameDigit reports whether every byte of s equals the first byte.
func allSameDigit(s string) bool {
	for i := 1; i < len(s); i++ {
		if s[i] != s[0] {
			return false
		}
	}
	return true
}

// checkDigitsValid verifies the two CPF check digits (positions 9 and 10)
// against the first nine digits using the standard mod-11 weighting.
func checkDigitsValid(digits string) bool {
	return checkDigit(digits, 9) == int(digits[9]-'0') &&
		checkDigit(digits, 10) == int(digits[10]-'0')
}

// checkDigit computes the expected check digit at position n (9 or 10)
// from the preceding n digits. Weights run from n+1 down to 2; a weighted
// sum remainder below 2 maps to 0, otherwise to 11 minus the remainder.
func checkDigit(digits string, n int) int {
	sum := 0
	for i := 0; i < n; i++ {
		sum += int(digits[i]-'0') * (n + 1 - i)
	}
	rem := sum % 11
	if rem < 2 {
		return 0
	}
	return 11 - rem
}
