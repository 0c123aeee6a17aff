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

	"github.com/spf13/cobra"
)

// =============================================================================
// COMMAND FLAGS
// =============================================================================

var (
	traverseDataset string // Dataset name or ID to walk
	traverseOrder   string // Traversal order
	traverseJSON    bool   // Output the raw response as JSON
)

// =============================================================================
// COMMAND DEFINITION
// =============================================================================

// traverseCmd prints a dataset's records in tree-traversal order.
//
// # Examples
//
//	civic traverse --dataset residents --order in
//	civic traverse --dataset residents --order breadth
var traverseCmd = &cobra.Command{
	Use:   "traverse",
	Short: "Print records in index traversal order",
	Long: `Walks a dataset's index tree and prints the records in the requested
order. "in" yields records sorted by CPF; "pre", "post", and "breadth"
expose the tree shape itself.

Records carry their state as of insertion; records deleted after being
indexed are flagged. Use the snapshot endpoint for a live sorted view.

Examples:
  civic traverse --dataset residents --order in
  civic traverse --dataset residents --order breadth
  civic traverse --dataset residents --order pre --json`,
	Run: runTraverseCommand,
}

// =============================================================================
// COMMAND INITIALIZATION
// =============================================================================

func init() {
	traverseCmd.Flags().StringVarP(&traverseDataset, "dataset", "d", "",
		"Dataset name or ID to walk (required)")
	traverseCmd.Flags().StringVarP(&traverseOrder, "order", "o", "in",
		"Traversal order: pre, in, post, or breadth")
	traverseCmd.Flags().BoolVar(&traverseJSON, "json", false,
		"Output the raw traversal response as JSON")
	traverseCmd.MarkFlagRequired("dataset")
	rootCmd.AddCommand(traverseCmd)
}

// =============================================================================
// COMMAND IMPLEMENTATION
// =============================================================================

// traversalBody mirrors the traversal response.
type traversalBody struct {
	Order   string       `json:"order"`
	Records []recordBody `json:"records"`
	Count   int          `json:"count"`
}

// runTraverseCommand fetches and prints one traversal.
func runTraverseCommand(cmd *cobra.Command, args []string) {
	client := newClient()

	traverseURL := apiURL("/v1/registry/datasets/" + url.PathEscape(traverseDataset) +
		"/traversals/" + url.PathEscape(traverseOrder))
	resp, err := client.Get(traverseURL)
	if err != nil {
		log.Fatalf("Registry unreachable at %s: %v", serverURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		log.Fatalf("Traversal failed: %s", readError(resp))
	}

	var result traversalBody
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		log.Fatalf("Failed to parse traversal response: %v", err)
	}

	if traverseJSON {
		printJSON(result)
		return
	}

	fmt.Printf("%s traversal of %q: %d records\n",
		result.Order, traverseDataset, result.Count)
	for i, rec := range result.Records {
		marker := ""
		if rec.Deleted {
			marker = " [deleted]"
		}
		if stdoutIsTerminal() {
			fmt.Printf("  %3d. %-14s %s%s\n", i+1, rec.CPF, rec.Name, marker)
		} else {
			fmt.Printf("%s\t%s\t%t\n", rec.CPF, rec.Name, rec.Deleted)
		}
	}
}
