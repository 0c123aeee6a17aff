// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command civic is the operational CLI for the CivicLedger record registry.
//
// It talks to a running registry server over HTTP:
//
//	civic health                                  # server + dataset overview
//	civic seed seed.json --dataset residents --create
//	civic lookup 123 --dataset residents          # exit 0 found, 2 absent, 3 deleted
//	civic traverse --dataset residents --order in
//
// The server address defaults to http://localhost:8093 and can be
// overridden with --server or the CIVIC_SERVER environment variable.
package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
)

// --- Global Command Variables ---
var (
	serverURL      string        // Registry base URL
	requestTimeout time.Duration // Per-request HTTP timeout

	rootCmd = &cobra.Command{
		Use:   "civic",
		Short: "A cli to operate the CivicLedger record registry",
		Long: `Civic is a tool for operating a CivicLedger record registry server:
seeding datasets from files, looking records up by CPF, and walking the
index in tree order.`,
	}
)

func main() {
	// Execute the root command. Cobra handles parsing the arguments.
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	defaultServer := "http://localhost:8093"
	if env := os.Getenv("CIVIC_SERVER"); env != "" {
		defaultServer = env
	}

	rootCmd.PersistentFlags().StringVar(&serverURL, "server", defaultServer,
		"Registry server base URL")
	rootCmd.PersistentFlags().DurationVar(&requestTimeout, "timeout", 30*time.Second,
		"HTTP request timeout")
}

// =============================================================================
// Shared HTTP Helpers
// =============================================================================

// newClient returns an HTTP client honoring the --timeout flag.
func newClient() *http.Client {
	return &http.Client{Timeout: requestTimeout}
}

// apiURL joins a path onto the configured server base URL.
func apiURL(path string) string {
	return strings.TrimRight(serverURL, "/") + path
}

// errorBody mirrors the registry's error envelope.
type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// readError extracts a printable message from a non-2xx response body,
// falling back to the HTTP status line.
func readError(resp *http.Response) string {
	var body errorBody
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil || body.Error == "" {
		return resp.Status
	}
	if body.Code != "" {
		return fmt.Sprintf("%s (%s)", body.Error, body.Code)
	}
	return body.Error
}

// stdoutIsTerminal reports whether stdout is an interactive terminal.
// Non-terminal output (pipes, redirects) gets tab-separated lines
// instead of aligned tables.
func stdoutIsTerminal() bool {
	return isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())
}

// printJSON pretty-prints v to stdout.
func printJSON(v any) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to encode output: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(string(out))
}
