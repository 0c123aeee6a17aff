// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"

	"github.com/spf13/cobra"
)

// =============================================================================
// COMMAND FLAGS
// =============================================================================

var (
	lookupDataset string // Dataset name or ID to query
	lookupJSON    bool   // Output the raw response as JSON
)

// Lookup exit codes. Scripts can branch on the three outcomes without
// parsing output.
const (
	exitLookupNotFound = 2
	exitLookupDeleted  = 3
)

// =============================================================================
// COMMAND DEFINITION
// =============================================================================

// lookupCmd resolves one CPF through the two-stage query path.
//
// The exit code carries the outcome: 0 when the record is found and
// live, 2 when the CPF was never indexed, 3 when the record exists but
// is logically deleted.
//
// # Examples
//
//	civic lookup 123 --dataset residents
//	civic lookup 456 --dataset residents --json
var lookupCmd = &cobra.Command{
	Use:   "lookup [cpf]",
	Short: "Look a record up by CPF",
	Long: `Looks a CPF up in a dataset's index and resolves the record from the
underlying list. The three outcomes are distinguished by exit code so
scripts can branch without parsing output:

  0  record found and live
  2  no record with that CPF was ever indexed
  3  record exists but is logically deleted

Examples:
  civic lookup 123 --dataset residents
  civic lookup 456 --dataset residents --json`,
	Args: cobra.ExactArgs(1),
	Run:  runLookupCommand,
}

// =============================================================================
// COMMAND INITIALIZATION
// =============================================================================

func init() {
	lookupCmd.Flags().StringVarP(&lookupDataset, "dataset", "d", "",
		"Dataset name or ID to query (required)")
	lookupCmd.Flags().BoolVar(&lookupJSON, "json", false,
		"Output the raw lookup response as JSON")
	lookupCmd.MarkFlagRequired("dataset")
	rootCmd.AddCommand(lookupCmd)
}

// =============================================================================
// COMMAND IMPLEMENTATION
// =============================================================================

// recordBody mirrors the wire shape of one record.
type recordBody struct {
	CPF       string `json:"cpf"`
	Name      string `json:"name"`
	BirthDate string `json:"birth_date"`
	Deleted   bool   `json:"deleted"`
}

// lookupBody mirrors the lookup response.
type lookupBody struct {
	Record   recordBody `json:"record"`
	Position int        `json:"position"`
}

// runLookupCommand performs the lookup and maps the HTTP status onto
// the documented exit codes.
func runLookupCommand(cmd *cobra.Command, args []string) {
	cpf := args[0]
	client := newClient()

	lookupURL := apiURL("/v1/registry/datasets/" + url.PathEscape(lookupDataset) +
		"/records/" + url.PathEscape(cpf))
	resp, err := client.Get(lookupURL)
	if err != nil {
		log.Fatalf("Registry unreachable at %s: %v", serverURL, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		var result lookupBody
		if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
			log.Fatalf("Failed to parse lookup response: %v", err)
		}
		if lookupJSON {
			printJSON(result)
			return
		}
		if result.Record.BirthDate != "" {
			fmt.Printf("Found %s at position %d: %s (born %s)\n",
				cpf, result.Position, result.Record.Name, result.Record.BirthDate)
		} else {
			fmt.Printf("Found %s at position %d: %s\n",
				cpf, result.Position, result.Record.Name)
		}

	case http.StatusNotFound:
		// A missing dataset and a missing record share the status;
		// the error code tells them apart.
		var body errorBody
		if err := json.NewDecoder(resp.Body).Decode(&body); err == nil &&
			body.Code != "RECORD_NOT_FOUND" {
			log.Fatalf("Lookup failed: %s (%s)", body.Error, body.Code)
		}
		fmt.Printf("No record with CPF %s in dataset %q\n", cpf, lookupDataset)
		os.Exit(exitLookupNotFound)

	case http.StatusGone:
		fmt.Printf("Record %s in dataset %q is logically deleted\n", cpf, lookupDataset)
		os.Exit(exitLookupDeleted)

	default:
		log.Fatalf("Lookup failed: %s", readError(resp))
	}
}
