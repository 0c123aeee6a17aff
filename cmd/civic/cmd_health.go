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
	"time"

	"github.com/spf13/cobra"
)

// =============================================================================
// COMMAND FLAGS
// =============================================================================

var (
	healthJSONOutput bool // Output as JSON
)

// =============================================================================
// COMMAND DEFINITION
// =============================================================================

// healthCmd reports server health and the dataset inventory.
//
// # Examples
//
//	civic health          # Human-readable overview
//	civic health --json   # JSON output for scripting
//
// Exits 1 when the server is unreachable or unhealthy.
var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Display registry server health and dataset overview",
	Long: `Checks the registry server liveness endpoint and lists the datasets
it currently holds, with record and index counts for each.

Examples:
  civic health              # Overview of server and datasets
  civic health --json       # JSON output for automation
  civic health --server http://registry:8093`,
	Run: runHealthCommand,
}

// =============================================================================
// COMMAND INITIALIZATION
// =============================================================================

func init() {
	healthCmd.Flags().BoolVar(&healthJSONOutput, "json", false,
		"Output as JSON for scripting")
	rootCmd.AddCommand(healthCmd)
}

// =============================================================================
// COMMAND IMPLEMENTATION
// =============================================================================

// healthBody mirrors the server health response.
type healthBody struct {
	Status   string `json:"status"`
	Datasets int    `json:"datasets"`
	Version  string `json:"version"`
}

// datasetBody mirrors the per-dataset entry in the list response.
type datasetBody struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Backend     string    `json:"backend"`
	Records     int       `json:"records"`
	IndexedKeys int       `json:"indexed_keys"`
	Version     uint64    `json:"version"`
	CreatedAt   time.Time `json:"created_at"`
}

// datasetListBody mirrors the dataset list response.
type datasetListBody struct {
	Datasets []datasetBody `json:"datasets"`
	Count    int           `json:"count"`
}

// runHealthCommand checks /healthz and lists datasets.
func runHealthCommand(cmd *cobra.Command, args []string) {
	client := newClient()

	resp, err := client.Get(apiURL("/healthz"))
	if err != nil {
		log.Fatalf("Registry unreachable at %s: %v", serverURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		log.Fatalf("Registry unhealthy: %s", readError(resp))
	}

	var health healthBody
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		log.Fatalf("Failed to parse health response: %v", err)
	}

	listResp, err := client.Get(apiURL("/v1/registry/datasets"))
	if err != nil {
		log.Fatalf("Failed to list datasets: %v", err)
	}
	defer listResp.Body.Close()
	if listResp.StatusCode != http.StatusOK {
		log.Fatalf("Failed to list datasets: %s", readError(listResp))
	}

	var list datasetListBody
	if err := json.NewDecoder(listResp.Body).Decode(&list); err != nil {
		log.Fatalf("Failed to parse dataset list: %v", err)
	}

	if healthJSONOutput {
		printJSON(map[string]any{
			"health":   health,
			"datasets": list.Datasets,
		})
		return
	}

	fmt.Printf("Registry %s (version %s) at %s\n", health.Status, health.Version, serverURL)
	fmt.Printf("Datasets: %d\n", list.Count)
	for _, ds := range list.Datasets {
		if stdoutIsTerminal() {
			fmt.Printf("  %-24s %-7s records=%-6d indexed=%-6d id=%s\n",
				ds.Name, ds.Backend, ds.Records, ds.IndexedKeys, ds.ID)
		} else {
			fmt.Printf("%s\t%s\t%d\t%d\t%s\n",
				ds.Name, ds.Backend, ds.Records, ds.IndexedKeys, ds.ID)
		}
	}
}
