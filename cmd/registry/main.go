// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command registry starts the CivicLedger record registry server.
//
// The registry keeps civic record datasets behind an HTTP API. Each
// dataset pairs an append-only record list (in-memory or Badger-backed)
// with an in-memory binary search tree indexing records by CPF:
//   - Appends go to the end of the list and into the index
//   - Deletions are logical (tombstone flag) and never shrink the index
//   - Lookups resolve the index first, then the list, so a missing key
//     and a deleted record are reported as different outcomes
//
// Usage:
//
//	go run ./cmd/registry
//	go run ./cmd/registry -port 9090
//	go run ./cmd/registry -config ./registry.yaml -debug
//
// Configuration is layered: embedded defaults, then the file named by
// -config (or REGISTRY_CONFIG, or ./registry.yaml if present), then
// REGISTRY_* environment variables.
//
// Example requests:
//
//	# Health check
//	curl http://localhost:8093/v1/registry/health
//
//	# Create a dataset
//	curl -X POST http://localhost:8093/v1/registry/datasets \
//	  -H "Content-Type: application/json" \
//	  -d '{"name": "residents"}'
//
//	# Append a record
//	curl -X POST http://localhost:8093/v1/registry/datasets/residents/records \
//	  -H "Content-Type: application/json" \
//	  -d '{"cpf": "123", "name": "Lucas", "birth_date": "2005-07-10"}'
//
//	# Look a record up by CPF (404 = never existed, 410 = deleted)
//	curl http://localhost:8093/v1/registry/datasets/residents/records/123
//
//	# Walk the index in sorted order
//	curl http://localhost:8093/v1/registry/datasets/residents/traversals/in
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/AleutianAI/CivicLedger/pkg/logging"
	"github.com/AleutianAI/CivicLedger/services/registry"
	"github.com/AleutianAI/CivicLedger/services/registry/config"
	"github.com/AleutianAI/CivicLedger/services/registry/importer"
	"github.com/AleutianAI/CivicLedger/services/registry/storage/dirlock"
	"github.com/AleutianAI/CivicLedger/services/registry/telemetry"
)

func main() {
	configPath := flag.String("config", "", "Path to a registry.yaml overriding the embedded defaults")
	port := flag.Int("port", 0, "Port to listen on (overrides the configured port)")
	debug := flag.Bool("debug", false, "Enable debug mode")
	flag.Parse()

	ctx := context.Background()

	cfg, err := loadConfig(ctx, *configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}
	if *debug {
		cfg.Server.Mode = gin.DebugMode
		cfg.Logging.Level = "debug"
	}

	logger := logging.New(logging.Config{
		Level:   logging.ParseLevel(cfg.Logging.Level),
		LogDir:  cfg.Logging.LogDir,
		Service: "registry",
		JSON:    cfg.Logging.JSON,
		Quiet:   cfg.Logging.Quiet,
	})
	slog.SetDefault(logger.Slog())

	telemetryShutdown, err := initTelemetry(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize telemetry: %v", err)
	}

	// Datasets can be Badger-backed per request regardless of the
	// configured default, so the data directory is locked up front.
	lock, err := dirlock.Acquire(cfg.Storage.DataDir)
	if err != nil {
		var locked *dirlock.DirLockedError
		if errors.As(err, &locked) && locked.Holder != nil {
			slog.Error("another registry server owns this data directory",
				slog.String("dir", cfg.Storage.DataDir),
				slog.Int("holder_pid", locked.Holder.PID),
				slog.String("holder_host", locked.Holder.Hostname))
		}
		log.Fatalf("Failed to lock data directory: %v", err)
	}

	svc := registry.NewService(registry.ServiceConfig{
		MaxDatasets:       cfg.Limits.MaxDatasets,
		DatasetTTL:        cfg.Limits.DatasetTTL.Std(),
		DefaultBackend:    cfg.Storage.Backend,
		DataDir:           cfg.Storage.DataDir,
		StrictIdentifiers: cfg.Validation.StrictIdentifiers,
		SyncWrites:        true,
		GCInterval:        cfg.Storage.GCInterval.Std(),
		GCDiscardRatio:    cfg.Storage.GCDiscardRatio,
	})

	handlers := registry.NewHandlers(svc)

	// Set Gin mode
	gin.SetMode(cfg.Server.Mode)

	// Setup router
	router := gin.New()
	router.Use(gin.Recovery())
	if cfg.Server.Mode == gin.DebugMode {
		router.Use(gin.Logger())
	}
	router.Use(registry.RequestIDMiddleware())
	router.Use(registry.RateLimitMiddleware(cfg.Limits.RateRPS, cfg.Limits.RateBurst))
	router.Use(otelgin.Middleware(cfg.Telemetry.ServiceName))

	// Register routes under /v1/registry
	v1 := router.Group("/v1")
	registry.RegisterRoutes(v1, handlers)

	// Top-level probes: /healthz for liveness, /metrics for Prometheus.
	router.GET("/healthz", handlers.HandleHealth)
	if cfg.Telemetry.MetricExporter == "prometheus" {
		router.GET("/metrics", gin.WrapH(telemetry.MetricsHandler()))
	}

	watcher := startImporter(ctx, cfg, svc)

	// Print startup banner
	printBanner(cfg.Server.Port, cfg.Storage.Backend, watcher != nil)

	// Handle graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		slog.Info("Shutting down registry server")
		if watcher != nil {
			watcher.Stop()
		}
		if err := svc.Close(); err != nil {
			slog.Error("Service close failed", slog.String("error", err.Error()))
		}
		if err := lock.Release(); err != nil {
			slog.Error("Data directory unlock failed", slog.String("error", err.Error()))
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := telemetryShutdown(shutdownCtx); err != nil {
			slog.Error("Telemetry shutdown failed", slog.String("error", err.Error()))
		}
		logger.Close()
		os.Exit(0)
	}()

	// Start server
	addr := cfg.Server.Addr()
	slog.Info("Starting registry server", slog.String("address", addr))
	if err := router.Run(addr); err != nil {
		slog.Error("Failed to start server", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

// loadConfig resolves the configuration, preferring an explicit -config
// path over the usual lookup chain.
func loadConfig(ctx context.Context, path string) (*config.Config, error) {
	if path != "" {
		return config.Load(ctx, path)
	}
	return config.Get(ctx)
}

// initTelemetry maps the file configuration onto the telemetry stack.
func initTelemetry(ctx context.Context, cfg *config.Config) (func(context.Context) error, error) {
	tcfg := telemetry.DefaultConfig()
	tcfg.ServiceName = cfg.Telemetry.ServiceName
	tcfg.ServiceVersion = registry.ServiceVersion
	tcfg.TraceExporter = cfg.Telemetry.TraceExporter
	tcfg.MetricExporter = cfg.Telemetry.MetricExporter
	tcfg.OTLPEndpoint = cfg.Telemetry.OTLPEndpoint
	tcfg.PrometheusPort = cfg.Telemetry.PrometheusPort
	return telemetry.Init(ctx, tcfg)
}

// startImporter starts the seed-file watcher when enabled.
//
// A watcher failure is logged but does not stop the server; the HTTP
// API works without it.
func startImporter(ctx context.Context, cfg *config.Config, svc *registry.Service) *importer.Watcher {
	if !cfg.Importer.Enabled {
		return nil
	}

	imp := importer.New(svc, importer.Config{
		Dataset: cfg.Importer.Dataset,
		Backend: cfg.Storage.Backend,
	})

	opts := importer.DefaultWatcherOptions()
	if d := cfg.Importer.Debounce.Std(); d > 0 {
		opts.Debounce = d
	}

	watcher, err := importer.NewWatcher(imp, cfg.Importer.Dir, &opts)
	if err != nil {
		slog.Error("Seed watcher setup failed",
			slog.String("dir", cfg.Importer.Dir),
			slog.String("error", err.Error()))
		return nil
	}
	if err := watcher.Start(ctx); err != nil {
		slog.Error("Seed watcher start failed",
			slog.String("dir", cfg.Importer.Dir),
			slog.String("error", err.Error()))
		return nil
	}

	slog.Info("Seed watcher started",
		slog.String("dir", cfg.Importer.Dir),
		slog.String("dataset", cfg.Importer.Dataset))
	return watcher
}

func printBanner(port int, backend string, importerOn bool) {
	importerStatus := "DISABLED (set importer.enabled to watch a seed directory)"
	if importerOn {
		importerStatus = "ENABLED (seed files import automatically)"
	}

	banner := `
╔═══════════════════════════════════════════════════════════════════╗
║                   CIVICLEDGER RECORD REGISTRY                     ║
╠═══════════════════════════════════════════════════════════════════╣
║                                                                   ║
║  Append-only civic record datasets with a CPF-keyed BST index.    ║
║  Default backend: %-48s ║
║  Importer: %-55s ║
║                                                                   ║
║  Quick Start:                                                     ║
║  ┌─────────────────────────────────────────────────────────────┐  ║
║  │ # Health check                                              │  ║
║  │ curl http://localhost:%d/v1/registry/health               │  ║
║  │                                                             │  ║
║  │ # Create a dataset                                          │  ║
║  │ curl -X POST http://localhost:%d/v1/registry/datasets \   │  ║
║  │   -H "Content-Type: application/json" \                     │  ║
║  │   -d '{"name": "residents"}'                                │  ║
║  │                                                             │  ║
║  │ # Append a record                                           │  ║
║  │ curl -X POST http://localhost:%d/v1/registry/datasets/\   │  ║
║  │   residents/records -H "Content-Type: application/json" \   │  ║
║  │   -d '{"cpf": "123", "name": "Lucas"}'                      │  ║
║  │                                                             │  ║
║  │ # Two-stage lookup (404 = never existed, 410 = deleted)     │  ║
║  │ curl http://localhost:%d/v1/registry/datasets/\           │  ║
║  │   residents/records/123                                     │  ║
║  └─────────────────────────────────────────────────────────────┘  ║
║                                                                   ║
║  Endpoints:                                                       ║
║  ├── Datasets: POST/GET/DELETE /datasets, /datasets/:id, /clone  ║
║  ├── Records: /records, /records/bulk, /records/:cpf             ║
║  ├── Index: DELETE /index/:cpf (physical index removal)          ║
║  ├── Views: /traversals/:order, /snapshot                        ║
║  └── Ops: /health, /ready, /metrics                              ║
║                                                                   ║
║  Press Ctrl+C to stop                                             ║
╚═══════════════════════════════════════════════════════════════════╝
`
	fmt.Printf(banner, backend, importerStatus, port, port, port, port)
}
