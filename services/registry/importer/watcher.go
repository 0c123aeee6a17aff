// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package importer

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ImportHandler is called after each watched-file import attempt.
// result is nil when err is non-nil.
type ImportHandler func(path string, result *Result, err error)

// Watcher watches a seed directory and imports changed files.
//
// Description:
//
//	Watches one flat directory for created or rewritten seed files.
//	Events are batched behind a debounce window so a file still being
//	written is imported once, after the writes settle, rather than on
//	every write syscall.
//
// Thread Safety:
//
//	Safe for concurrent use. Imports run on a single goroutine, so
//	two watched files never race into the dataset concurrently.
type Watcher struct {
	importer *Importer
	dir      string
	debounce time.Duration
	handler  ImportHandler

	watcher  *fsnotify.Watcher
	changes  chan string
	done     chan struct{}
	stopOnce sync.Once

	mu       sync.RWMutex
	watching bool
}

// WatcherOptions configures a Watcher.
type WatcherOptions struct {
	// Debounce is how long to wait after the last event before
	// importing. Default: 2s
	Debounce time.Duration

	// Handler is an optional callback observing each import outcome.
	Handler ImportHandler

	// BufferSize is the event buffer capacity. Default: 256
	BufferSize int
}

// DefaultWatcherOptions returns sensible defaults.
func DefaultWatcherOptions() WatcherOptions {
	return WatcherOptions{
		Debounce:   2 * time.Second,
		BufferSize: 256,
	}
}

// NewWatcher creates a watcher over the given seed directory.
//
// Inputs:
//
//	imp - Importer the watcher feeds
//	dir - Directory to watch (flat; subdirectories are not followed)
//	opts - Optional configuration (nil uses defaults)
//
// Outputs:
//
//	*Watcher - Ready-to-use watcher (call Start to begin watching)
//	error - Non-nil if the underlying notifier could not be created
func NewWatcher(imp *Importer, dir string, opts *WatcherOptions) (*Watcher, error) {
	if opts == nil {
		defaults := DefaultWatcherOptions()
		opts = &defaults
	}
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultWatcherOptions().Debounce
	}
	if opts.BufferSize <= 0 {
		opts.BufferSize = DefaultWatcherOptions().BufferSize
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &Watcher{
		importer: imp,
		dir:      dir,
		debounce: opts.Debounce,
		handler:  opts.Handler,
		watcher:  fsw,
		changes:  make(chan string, opts.BufferSize),
		done:     make(chan struct{}),
	}, nil
}

// Start begins watching the seed directory.
//
// Spawns two goroutines: an event filter and the debounced import
// loop. Both exit when Stop is called or the context is canceled.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.watching {
		w.mu.Unlock()
		return nil // Already watching
	}
	w.watching = true
	w.mu.Unlock()

	if err := w.watcher.Add(w.dir); err != nil {
		return err
	}

	go w.processEvents(ctx)
	go w.debounceLoop(ctx)

	slog.Info("seed watcher started", "dir", w.dir, "debounce", w.debounce)
	return nil
}

// Stop stops the watcher. Safe to call more than once.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
		w.watcher.Close()

		w.mu.Lock()
		w.watching = false
		w.mu.Unlock()
	})
}

// IsWatching reports whether the watcher is active.
func (w *Watcher) IsWatching() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.watching
}

// isSeedFile reports whether the path has a supported seed extension.
func isSeedFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".yaml", ".yml":
		return true
	}
	return false
}

// processEvents filters raw notifier events down to seed-file paths.
func (w *Watcher) processEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			if !isSeedFile(event.Name) {
				continue
			}

			select {
			case w.changes <- event.Name:
			default:
				// Buffer full; the debouncer will pick the file up
				// on its next event.
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			slog.Warn("seed watcher error", "dir", w.dir, "error", err)
		}
	}
}

// debounceLoop batches changed paths and imports them after the
// debounce window expires.
func (w *Watcher) debounceLoop(ctx context.Context) {
	pending := make(map[string]struct{})
	var timer *time.Timer
	var timerC <-chan time.Time

	flush := func() {
		for path := range pending {
			result, err := w.importer.Import(ctx, path)
			if err != nil {
				slog.Warn("seed import failed", "file", path, "error", err)
			}
			if w.handler != nil {
				w.handler(path, result, err)
			}
		}
		clear(pending)
		if timer != nil {
			timer.Stop()
			timer = nil
			timerC = nil
		}
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case path := <-w.changes:
			pending[path] = struct{}{}

			if timer == nil {
				timer = time.NewTimer(w.debounce)
				timerC = timer.C
			} else {
				timer.Reset(w.debounce)
			}

		case <-timerC:
			flush()
		}
	}
}
