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
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/CivicLedger/services/registry/importer"
)

// =============================================================================
// COMMAND FLAGS
// =============================================================================

var (
	seedDataset string // Target dataset name or ID
	seedCreate  bool   // Create the dataset if it does not exist
	seedBackend string // Backend for --create (memory or badger)
	seedJSON    bool   // Output per-record outcomes as JSON
)

// =============================================================================
// COMMAND DEFINITION
// =============================================================================

// seedCmd bulk-loads a seed file into a dataset.
//
// The file is parsed locally (JSON array or YAML sequence of records)
// and sent to the server in one bulk request, so a malformed file is
// rejected before anything is written.
//
// # Examples
//
//	civic seed seed.json --dataset residents --create
//	civic seed backfill.yaml --dataset residents
var seedCmd = &cobra.Command{
	Use:   "seed [file]",
	Short: "Bulk-load records from a JSON or YAML seed file",
	Long: `Parses a seed file (JSON array or YAML sequence of records) and
bulk-loads it into a dataset through the registry API. Each record needs
a "cpf" and "name"; "birth_date" is optional (YYYY-MM-DD).

Duplicate CPFs are skipped, invalid records are reported per record, and
the rest are appended and indexed.

Examples:
  civic seed seed.json --dataset residents --create
  civic seed seed.yaml --dataset residents --create --backend badger
  civic seed more.json --dataset residents`,
	Args: cobra.ExactArgs(1),
	Run:  runSeedCommand,
}

// =============================================================================
// COMMAND INITIALIZATION
// =============================================================================

func init() {
	seedCmd.Flags().StringVarP(&seedDataset, "dataset", "d", "",
		"Target dataset name or ID (required)")
	seedCmd.Flags().BoolVar(&seedCreate, "create", false,
		"Create the dataset first if it does not exist")
	seedCmd.Flags().StringVar(&seedBackend, "backend", "",
		"Backend when creating the dataset: memory or badger (server default if empty)")
	seedCmd.Flags().BoolVar(&seedJSON, "json", false,
		"Output per-record outcomes as JSON")
	seedCmd.MarkFlagRequired("dataset")
	rootCmd.AddCommand(seedCmd)
}

// =============================================================================
// COMMAND IMPLEMENTATION
// =============================================================================

// outcomeBody mirrors one per-record bulk-load outcome.
type outcomeBody struct {
	CPF      string `json:"cpf"`
	Position int    `json:"position"`
	Indexed  bool   `json:"indexed"`
	Error    string `json:"error,omitempty"`
}

// bulkBody mirrors the bulk-load response.
type bulkBody struct {
	Outcomes []outcomeBody `json:"outcomes"`
	Indexed  int           `json:"indexed"`
	Skipped  int           `json:"skipped"`
	Failed   int           `json:"failed"`
}

// runSeedCommand parses the seed file and bulk-loads it via the API.
func runSeedCommand(cmd *cobra.Command, args []string) {
	path := args[0]

	records, err := importer.ParseSeedFile(path)
	if err != nil {
		log.Fatalf("Failed to parse seed file %s: %v", path, err)
	}

	client := newClient()

	if seedCreate {
		createDataset(client)
	}

	items := make([]map[string]string, 0, len(records))
	for _, rec := range records {
		items = append(items, map[string]string{
			"cpf":        rec.CPF,
			"name":       rec.Name,
			"birth_date": rec.BirthDate,
		})
	}
	payload, _ := json.Marshal(map[string]any{"records": items})

	bulkURL := apiURL("/v1/registry/datasets/" + url.PathEscape(seedDataset) + "/records/bulk")
	resp, err := client.Post(bulkURL, "application/json", bytes.NewBuffer(payload))
	if err != nil {
		log.Fatalf("Failed to reach registry at %s: %v", serverURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		log.Fatalf("Bulk load failed: %s", readError(resp))
	}

	var result bulkBody
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		log.Fatalf("Failed to parse bulk load response: %v", err)
	}

	if seedJSON {
		printJSON(result)
	} else {
		printOutcomes(path, result)
	}

	if result.Failed > 0 {
		os.Exit(1)
	}
}

// createDataset creates the target dataset, tolerating one that already
// exists.
func createDataset(client *http.Client) {
	body := map[string]string{"name": seedDataset}
	if seedBackend != "" {
		body["backend"] = seedBackend
	}
	payload, _ := json.Marshal(body)

	resp, err := client.Post(apiURL("/v1/registry/datasets"), "application/json",
		bytes.NewBuffer(payload))
	if err != nil {
		log.Fatalf("Failed to reach registry at %s: %v", serverURL, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusCreated:
		fmt.Printf("Created dataset %q\n", seedDataset)
	case http.StatusConflict:
		fmt.Printf("Dataset %q already exists, loading into it\n", seedDataset)
	default:
		log.Fatalf("Failed to create dataset %q: %s", seedDataset, readError(resp))
	}
}

// printOutcomes renders the per-record outcome table.
func printOutcomes(path string, result bulkBody) {
	fmt.Printf("Loaded %s: %d indexed, %d skipped, %d failed\n",
		path, result.Indexed, result.Skipped, result.Failed)

	for _, out := range result.Outcomes {
		status := "indexed"
		detail := fmt.Sprintf("position=%d", out.Position)
		switch {
		case out.Error != "":
			status = "failed"
			detail = out.Error
		case !out.Indexed:
			status = "skipped"
			detail = fmt.Sprintf("duplicate of position %d", out.Position)
		}

		if stdoutIsTerminal() {
			fmt.Printf("  %-14s %-8s %s\n", out.CPF, status, detail)
		} else {
			fmt.Printf("%s\t%s\t%s\n", out.CPF, status, detail)
		}
	}
}
