// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package logging

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

// =============================================================================
// Level Tests
// =============================================================================

func TestLevel_String(t *testing.T) {
	tests := []struct {
		level Level
		want  string
	}{
		{LevelDebug, "DEBUG"},
		{LevelInfo, "INFO"},
		{LevelWarn, "WARN"},
		{LevelError, "ERROR"},
		{Level(99), "UNKNOWN"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.level.String(); got != tt.want {
				t.Errorf("Level(%d).String() = %q, want %q", tt.level, got, tt.want)
			}
		})
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  Level
	}{
		{"debug", LevelDebug},
		{"DEBUG", LevelDebug},
		{"info", LevelInfo},
		{"warn", LevelWarn},
		{"warning", LevelWarn},
		{"error", LevelError},
		{"ERROR", LevelError},
		{"", LevelInfo},
		{"nonsense", LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := ParseLevel(tt.input); got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestLevel_Ordering(t *testing.T) {
	if !(LevelDebug < LevelInfo && LevelInfo < LevelWarn && LevelWarn < LevelError) {
		t.Error("levels must be ordered Debug < Info < Warn < Error")
	}
}

// =============================================================================
// Constructor Tests
// =============================================================================

func TestNew_ZeroConfig(t *testing.T) {
	logger := New(Config{})
	if logger == nil {
		t.Fatal("New() returned nil")
	}
	if logger.slog == nil {
		t.Error("logger.slog is nil")
	}
	defer logger.Close()
}

func TestNew_AllLevels(t *testing.T) {
	for _, level := range []Level{LevelDebug, LevelInfo, LevelWarn, LevelError} {
		t.Run(level.String(), func(t *testing.T) {
			logger := New(Config{Level: level, Quiet: true})
			if logger == nil {
				t.Fatal("New() returned nil")
			}
			defer logger.Close()
		})
	}
}

func TestNew_WithLogDir(t *testing.T) {
	tmpDir := t.TempDir()
	logger := New(Config{
		LogDir:  tmpDir,
		Service: "registry-test",
		Quiet:   true,
	})
	defer logger.Close()

	if logger.file == nil {
		t.Fatal("expected a log file handle with LogDir set")
	}

	logger.Info("hello")
	logger.Close()

	files, err := os.ReadDir(tmpDir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(files) != 1 {
		t.Fatalf("expected 1 log file, got %d", len(files))
	}
	if !strings.HasPrefix(files[0].Name(), "registry-test_") {
		t.Errorf("log file %q should be prefixed with the service name", files[0].Name())
	}
}

func TestNew_WithLogDir_InvalidPath(t *testing.T) {
	// A file where a directory is needed: MkdirAll fails, file logging
	// silently degrades to stderr-only.
	tmpDir := t.TempDir()
	blocker := filepath.Join(tmpDir, "blocker")
	if err := os.WriteFile(blocker, []byte("x"), 0600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	logger := New(Config{LogDir: filepath.Join(blocker, "logs"), Quiet: true})
	defer logger.Close()

	if logger.file != nil {
		t.Error("expected no file handle when the log dir cannot be created")
	}
}

func TestDefault(t *testing.T) {
	logger := Default()
	defer logger.Close()

	if logger.config.Level != LevelInfo {
		t.Errorf("Default level = %v, want LevelInfo", logger.config.Level)
	}
	if logger.config.Service != "civicledger" {
		t.Errorf("Default service = %q, want civicledger", logger.config.Service)
	}
}

// =============================================================================
// Logging + Export Tests
// =============================================================================

func TestLogger_ExportAllLevels(t *testing.T) {
	exporter := NewBufferedExporter()
	logger := New(Config{
		Level:    LevelDebug,
		Exporter: exporter,
		Quiet:    true,
	})
	defer logger.Close()

	logger.Debug("d", "k", 1)
	logger.Info("i", "k", 2)
	logger.Warn("w", "k", 3)
	logger.Error("e", "k", 4)
	time.Sleep(100 * time.Millisecond)

	entries := exporter.Entries()
	if len(entries) != 4 {
		t.Fatalf("expected 4 exported entries, got %d", len(entries))
	}
}

func TestLogger_LevelFiltering(t *testing.T) {
	exporter := NewBufferedExporter()
	logger := New(Config{
		Level:    LevelWarn,
		Exporter: exporter,
		Quiet:    true,
	})
	defer logger.Close()

	logger.Debug("debug")
	logger.Info("info")
	logger.Warn("warn")
	logger.Error("error")
	time.Sleep(100 * time.Millisecond)

	entries := exporter.Entries()
	if len(entries) != 2 {
		t.Errorf("expected 2 entries (Warn+Error), got %d", len(entries))
	}
}

func TestLogger_With(t *testing.T) {
	exporter := NewBufferedExporter()
	logger := New(Config{
		Level:    LevelInfo,
		Exporter: exporter,
		Quiet:    true,
	})
	defer logger.Close()

	child := logger.With("request_id", "req-1")
	if child == nil {
		t.Fatal("With() returned nil")
	}

	child.Info("lookup started")
	time.Sleep(100 * time.Millisecond)

	entries := exporter.Entries()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if entries[0].Message != "lookup started" {
		t.Errorf("Message = %q, want %q", entries[0].Message, "lookup started")
	}
}

func TestLogger_With_SharesResources(t *testing.T) {
	tmpDir := t.TempDir()
	logger := New(Config{
		LogDir:  tmpDir,
		Service: "registry-test",
		Quiet:   true,
	})
	defer logger.Close()

	child := logger.With("child", true)
	if child.file != logger.file {
		t.Error("child logger should share the file handle")
	}
	if child.exporter != logger.exporter {
		t.Error("child logger should share the exporter")
	}
}

func TestLogger_Slog(t *testing.T) {
	logger := New(Config{Quiet: true})
	defer logger.Close()

	if logger.Slog() == nil {
		t.Error("Slog() returned nil")
	}
}

func TestLogger_FileContent(t *testing.T) {
	tmpDir := t.TempDir()
	logger := New(Config{
		Level:   LevelInfo,
		LogDir:  tmpDir,
		Service: "file-test",
		Quiet:   true,
	})

	logger.Info("append recorded", "position", 7)
	logger.Close()

	files, _ := os.ReadDir(tmpDir)
	if len(files) == 0 {
		t.Fatal("no log file created")
	}

	content, err := os.ReadFile(filepath.Join(tmpDir, files[0].Name()))
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}

	// File output is always JSON.
	if !strings.Contains(string(content), "append recorded") {
		t.Error("log file should contain the message")
	}
	if !strings.Contains(string(content), `"position":7`) {
		t.Error("log file should contain the attribute in JSON form")
	}
	if !strings.Contains(string(content), `"service":"file-test"`) {
		t.Error("log file should carry the service attribute")
	}
}

func TestLogger_ConcurrentUse(t *testing.T) {
	exporter := NewBufferedExporter()
	logger := New(Config{
		Level:    LevelInfo,
		Exporter: exporter,
		Quiet:    true,
	})
	defer logger.Close()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				logger.Info("concurrent", "goroutine", n, "iter", j)
			}
		}(i)
	}
	wg.Wait()
	time.Sleep(200 * time.Millisecond)

	if got := len(exporter.Entries()); got != 200 {
		t.Errorf("expected 200 exported entries, got %d", got)
	}
}

// =============================================================================
// Close Tests
// =============================================================================

// errorExporter returns configurable errors from each method.
type errorExporter struct {
	exportErr error
	flushErr  error
	closeErr  error
}

func (e *errorExporter) Export(ctx context.Context, entry LogEntry) error { return e.exportErr }
func (e *errorExporter) Flush(ctx context.Context) error                  { return e.flushErr }
func (e *errorExporter) Close() error                                     { return e.closeErr }

func TestLogger_Close_NoResources(t *testing.T) {
	logger := New(Config{Quiet: true})
	if err := logger.Close(); err != nil {
		t.Errorf("Close() = %v, want nil", err)
	}
}

func TestLogger_Close_FlushError(t *testing.T) {
	wantErr := errors.New("flush failed")
	logger := New(Config{
		Exporter: &errorExporter{flushErr: wantErr},
		Quiet:    true,
	})

	err := logger.Close()
	if err == nil {
		t.Fatal("Close() should surface the flush error")
	}
	if !errors.Is(err, wantErr) {
		t.Errorf("Close() = %v, want wrapped %v", err, wantErr)
	}
}

func TestLogger_Close_CloseExporterError(t *testing.T) {
	wantErr := errors.New("close failed")
	logger := New(Config{
		Exporter: &errorExporter{closeErr: wantErr},
		Quiet:    true,
	})

	if err := logger.Close(); !errors.Is(err, wantErr) {
		t.Errorf("Close() = %v, want wrapped %v", err, wantErr)
	}
}

func TestLogger_ExportErrorSilentlyDropped(t *testing.T) {
	logger := New(Config{
		Exporter: &errorExporter{exportErr: errors.New("export failed")},
		Quiet:    true,
	})
	defer logger.Close()

	// Must not panic or block.
	logger.Info("message")
	time.Sleep(50 * time.Millisecond)
}

// =============================================================================
// Helper Tests
// =============================================================================

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skipf("no home dir: %v", err)
	}

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"tilde expanded", "~/logs", filepath.Join(home, "logs")},
		{"absolute unchanged", "/var/log/civicledger", "/var/log/civicledger"},
		{"relative unchanged", "relative/path", "relative/path"},
		{"empty unchanged", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := expandPath(tt.input); got != tt.want {
				t.Errorf("expandPath(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestArgsToMap(t *testing.T) {
	got := argsToMap([]any{"key1", "value1", "key2", 123})
	if got["key1"] != "value1" {
		t.Errorf("key1 = %v, want value1", got["key1"])
	}
	if got["key2"] != 123 {
		t.Errorf("key2 = %v, want 123", got["key2"])
	}

	// Odd trailing arg is dropped.
	got = argsToMap([]any{"key1", "value1", "dangling"})
	if len(got) != 1 {
		t.Errorf("expected 1 pair, got %d", len(got))
	}

	// Non-string key is skipped.
	got = argsToMap([]any{42, "value"})
	if len(got) != 0 {
		t.Errorf("expected 0 pairs for non-string key, got %d", len(got))
	}
}

// =============================================================================
// Exporter Tests
// =============================================================================

func TestNopExporter(t *testing.T) {
	e := &NopExporter{}
	ctx := context.Background()

	if err := e.Export(ctx, LogEntry{Message: "m"}); err != nil {
		t.Errorf("Export() = %v, want nil", err)
	}
	if err := e.Flush(ctx); err != nil {
		t.Errorf("Flush() = %v, want nil", err)
	}
	if err := e.Close(); err != nil {
		t.Errorf("Close() = %v, want nil", err)
	}
}

func TestBufferedExporter_Export(t *testing.T) {
	e := NewBufferedExporter()
	ctx := context.Background()

	entry := LogEntry{
		Timestamp: time.Now(),
		Level:     LevelInfo,
		Message:   "buffered",
		Service:   "registry",
		Attrs:     map[string]any{"k": "v"},
	}
	if err := e.Export(ctx, entry); err != nil {
		t.Fatalf("Export() = %v", err)
	}

	entries := e.Entries()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if entries[0].Message != "buffered" {
		t.Errorf("Message = %q, want buffered", entries[0].Message)
	}
	if entries[0].Service != "registry" {
		t.Errorf("Service = %q, want registry", entries[0].Service)
	}
}

func TestBufferedExporter_Entries_ReturnsCopy(t *testing.T) {
	e := NewBufferedExporter()
	_ = e.Export(context.Background(), LogEntry{Message: "original"})

	entries := e.Entries()
	entries[0].Message = "mutated"

	if e.Entries()[0].Message != "original" {
		t.Error("Entries() must return a copy, not the internal buffer")
	}
}

func TestBufferedExporter_ConcurrentAccess(t *testing.T) {
	e := NewBufferedExporter()
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				_ = e.Export(context.Background(), LogEntry{Message: "race"})
				_ = e.Entries()
			}
		}()
	}
	wg.Wait()

	if got := len(e.Entries()); got != 500 {
		t.Errorf("expected 500 entries, got %d", got)
	}
}

func TestWriterExporter_Export(t *testing.T) {
	var buf bytes.Buffer
	e := NewWriterExporter(&buf)

	entry := LogEntry{
		Timestamp: time.Now(),
		Level:     LevelWarn,
		Message:   "written",
		Attrs:     map[string]any{"k": "v"},
	}
	if err := e.Export(context.Background(), entry); err != nil {
		t.Fatalf("Export() = %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, "WARN") {
		t.Errorf("output %q should contain the level", out)
	}
	if !strings.Contains(out, "written") {
		t.Errorf("output %q should contain the message", out)
	}
}

func TestWriterExporter_FlushClose(t *testing.T) {
	e := NewWriterExporter(&bytes.Buffer{})
	if err := e.Flush(context.Background()); err != nil {
		t.Errorf("Flush() = %v, want nil", err)
	}
	if err := e.Close(); err != nil {
		t.Errorf("Close() = %v, want nil", err)
	}
}
