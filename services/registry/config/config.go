// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads and validates the registry service configuration.
//
// Configuration is layered: the embedded default registry.yaml is parsed
// first, an optional external YAML file overrides individual keys, and
// REGISTRY_* environment variables override both. The merged result is
// validated before it is handed to callers.
//
// Thread Safety:
//
//	All exported functions and types are safe for concurrent use.
package config

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gopkg.in/yaml.v3"
)

// =============================================================================
// Constants
// =============================================================================

const (
	// MaxConfigFileSize is the maximum allowed configuration file size (1MB).
	// Prevents memory issues from oversized or hostile files.
	MaxConfigFileSize = 1024 * 1024

	// EnvConfigPath is the environment variable naming an external
	// configuration file.
	EnvConfigPath = "REGISTRY_CONFIG"
)

// =============================================================================
// Embedded Default Configuration
// =============================================================================

//go:embed registry.yaml
var defaultRegistryYAML []byte

// =============================================================================
// Prometheus Metrics
// =============================================================================

var (
	configLoadErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "registry_config_load_errors_total",
		Help: "Total configuration load errors",
	})

	configLoadDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "registry_config_load_duration_seconds",
		Help:    "Duration of configuration loading",
		Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1},
	})
)

// =============================================================================
// OTel Tracer
// =============================================================================

var configTracer = otel.Tracer("civicledger.config")

// =============================================================================
// Duration
// =============================================================================

// Duration wraps time.Duration so configuration files can use duration
// strings ("5m", "24h") as well as plain integer nanosecond values.
type Duration time.Duration

// UnmarshalYAML decodes a YAML scalar into a Duration.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return fmt.Errorf("invalid duration value: %w", err)
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		*d = Duration(time.Duration(n))
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML renders the duration in time.Duration notation ("5m0s").
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// String renders the duration in time.Duration notation.
func (d Duration) String() string {
	return time.Duration(d).String()
}

// =============================================================================
// Types
// =============================================================================

// Config is the root registry service configuration.
//
// Thread Safety: Safe for concurrent reads after loading. Callers must
// not mutate a Config obtained from Get.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Logging    LoggingConfig    `yaml:"logging"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
	Storage    StorageConfig    `yaml:"storage"`
	Limits     LimitsConfig     `yaml:"limits"`
	Validation ValidationConfig `yaml:"validation"`
	Importer   ImporterConfig   `yaml:"importer"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	// Host is the listen address.
	Host string `yaml:"host"`

	// Port is the listen port (1-65535).
	Port int `yaml:"port"`

	// Mode is the gin mode: "debug", "release", or "test".
	Mode string `yaml:"mode"`
}

// Addr returns the host:port listen address.
func (s ServerConfig) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// LoggingConfig controls structured logging output.
type LoggingConfig struct {
	// Level is the minimum level: "debug", "info", "warn", or "error".
	Level string `yaml:"level"`

	// JSON switches stderr output to JSON objects.
	JSON bool `yaml:"json"`

	// Quiet disables stderr output.
	Quiet bool `yaml:"quiet"`

	// LogDir enables file logging when non-empty.
	LogDir string `yaml:"log_dir"`
}

// TelemetryConfig controls trace and metric export.
type TelemetryConfig struct {
	// ServiceName is attached to all exported telemetry.
	ServiceName string `yaml:"service_name"`

	// TraceExporter selects the span exporter: "otlp", "stdout", or "none".
	TraceExporter string `yaml:"trace_exporter"`

	// MetricExporter selects the metric exporter: "prometheus", "stdout",
	// or "none".
	MetricExporter string `yaml:"metric_exporter"`

	// OTLPEndpoint is the gRPC collector endpoint for the otlp exporter.
	OTLPEndpoint string `yaml:"otlp_endpoint"`

	// PrometheusPort is advertised in startup logs for scrape configs.
	PrometheusPort int `yaml:"prometheus_port"`
}

// StorageConfig controls the persistent dataset backend.
type StorageConfig struct {
	// Backend is the default store for new datasets: "memory" or "badger".
	Backend string `yaml:"backend"`

	// DataDir is the root directory for badger-backed datasets.
	DataDir string `yaml:"data_dir"`

	// GCInterval is how often badger value-log GC runs.
	GCInterval Duration `yaml:"gc_interval"`

	// GCDiscardRatio is the badger GC rewrite threshold (0, 1].
	GCDiscardRatio float64 `yaml:"gc_discard_ratio"`
}

// LimitsConfig bounds resource usage.
type LimitsConfig struct {
	// MaxDatasets caps concurrently open datasets.
	MaxDatasets int `yaml:"max_datasets"`

	// DatasetTTL expires datasets unused for this long. 0 disables expiry.
	DatasetTTL Duration `yaml:"dataset_ttl"`

	// RateRPS is the sustained per-client mutation rate.
	RateRPS float64 `yaml:"rate_rps"`

	// RateBurst is the per-client mutation burst allowance.
	RateBurst int `yaml:"rate_burst"`
}

// ValidationConfig controls record validation strictness.
type ValidationConfig struct {
	// StrictIdentifiers requires canonical CPF check digits on record
	// keys instead of accepting any opaque printable identifier.
	StrictIdentifiers bool `yaml:"strict_identifiers"`
}

// ImporterConfig controls the seed-file importer.
type ImporterConfig struct {
	// Enabled turns the directory watcher on.
	Enabled bool `yaml:"enabled"`

	// Dir is the watched seed directory.
	Dir string `yaml:"dir"`

	// Dataset is the target dataset name for imported records.
	Dataset string `yaml:"dataset"`

	// Debounce is how long to wait after the last file event before
	// importing.
	Debounce Duration `yaml:"debounce"`
}

// =============================================================================
// Singleton Configuration
// =============================================================================

var (
	configMu      sync.RWMutex
	configOnce    sync.Once
	cachedConfig  *Config
	configLoadErr error
)

// Get returns the process-wide configuration, loading it on first call.
//
// Description:
//
//	Resolves the configuration file path (REGISTRY_CONFIG, then
//	./registry.yaml, then ./config/registry.yaml; embedded default if
//	none exist), loads it once, and caches the result for subsequent
//	calls.
//
// Inputs:
//
//	ctx - Context for tracing. Must not be nil.
//
// Outputs:
//
//	*Config - The loaded configuration. Never nil on success.
//	error - Non-nil if loading or validation failed.
//
// Thread Safety: Safe for concurrent use via sync.Once.
func Get(ctx context.Context) (*Config, error) {
	if ctx == nil {
		return nil, fmt.Errorf("Get: ctx must not be nil")
	}

	configMu.RLock()
	if cachedConfig != nil || configLoadErr != nil {
		cfg, err := cachedConfig, configLoadErr
		configMu.RUnlock()
		return cfg, err
	}
	configMu.RUnlock()

	configMu.Lock()
	defer configMu.Unlock()

	// Double-check after acquiring write lock
	if cachedConfig != nil || configLoadErr != nil {
		return cachedConfig, configLoadErr
	}

	configOnce.Do(func() {
		cachedConfig, configLoadErr = Load(ctx, resolveConfigPath())
	})

	return cachedConfig, configLoadErr
}

// Reset clears the cached configuration so the next Get reloads it.
//
// WARNING: Intended for testing only. Resetting while other goroutines
// hold a *Config is safe, but they keep seeing the old values.
func Reset() {
	configMu.Lock()
	defer configMu.Unlock()
	configOnce = sync.Once{}
	cachedConfig = nil
	configLoadErr = nil
}

// resolveConfigPath returns the external configuration file path, or
// empty string when only the embedded default should be used.
func resolveConfigPath() string {
	if path := os.Getenv(EnvConfigPath); path != "" {
		return path
	}

	locations := []string{
		"./registry.yaml",
		"./config/registry.yaml",
	}

	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			absPath, _ := filepath.Abs(loc)
			return absPath
		}
	}

	return ""
}

// =============================================================================
// Loading Logic
// =============================================================================

// Load reads, merges, and validates configuration.
//
// Description:
//
//	Parses the embedded default, overlays the external YAML file at path
//	(if non-empty), applies REGISTRY_* environment overrides, and
//	validates the result. An external file only needs the keys it wants
//	to change.
//
// Inputs:
//
//	ctx - Context for tracing. Must not be nil.
//	path - External YAML file path. Empty means embedded default only.
//
// Outputs:
//
//	*Config - The merged configuration. Never nil on success.
//	error - Non-nil if reading, parsing, or validation failed.
//
// Thread Safety: Safe for concurrent use.
//
// Example:
//
//	cfg, err := config.Load(ctx, "/etc/civicledger/registry.yaml")
//	if err != nil {
//	    return fmt.Errorf("loading config: %w", err)
//	}
func Load(ctx context.Context, path string) (*Config, error) {
	ctx, span := configTracer.Start(ctx, "config.Load")
	defer span.End()

	startTime := time.Now()
	defer func() {
		configLoadDuration.Observe(time.Since(startTime).Seconds())
	}()

	cfg := &Config{}
	if err := yaml.Unmarshal(defaultRegistryYAML, cfg); err != nil {
		configLoadErrors.Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "embedded default corrupt")
		return nil, fmt.Errorf("parsing embedded default config: %w", err)
	}
	source := "embedded"

	if path != "" {
		data, err := readConfigFile(ctx, path)
		if err != nil {
			configLoadErrors.Inc()
			span.RecordError(err)
			span.SetStatus(codes.Error, "read failed")
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// Overlay: keys absent from the external file keep their
		// embedded defaults.
		if err := yaml.Unmarshal(data, cfg); err != nil {
			configLoadErrors.Inc()
			span.RecordError(err)
			span.SetStatus(codes.Error, "parse failed")
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
		source = "external"
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		configLoadErrors.Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "validation failed")
		return nil, fmt.Errorf("validating config: %w", err)
	}

	span.SetAttributes(
		attribute.String("source", source),
		attribute.String("storage_backend", cfg.Storage.Backend),
		attribute.Int("server_port", cfg.Server.Port),
	)

	slog.Debug("configuration loaded",
		slog.String("source", source),
		slog.String("backend", cfg.Storage.Backend),
		slog.Int("port", cfg.Server.Port))

	return cfg, nil
}

// readConfigFile loads an external YAML file with path and size checks.
func readConfigFile(ctx context.Context, path string) ([]byte, error) {
	_, span := configTracer.Start(ctx, "config.ReadFile",
		trace.WithAttributes(attribute.String("path", path)),
	)
	defer span.End()

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolving path: %w", err)
	}

	if strings.Contains(absPath, "..") {
		return nil, fmt.Errorf("readConfigFile: path traversal not allowed: %s", absPath)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("stat file: %w", err)
	}

	if info.Size() > MaxConfigFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), MaxConfigFileSize)
	}

	span.SetAttributes(attribute.Int64("file_size", info.Size()))

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("reading file: %w", err)
	}

	return data, nil
}

// applyEnvOverrides applies REGISTRY_* environment variables on top of
// the merged configuration. Unparseable values are ignored.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("REGISTRY_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("REGISTRY_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = p
		}
	}
	if v := os.Getenv("REGISTRY_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("REGISTRY_DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}
	if v := os.Getenv("REGISTRY_BACKEND"); v != "" {
		cfg.Storage.Backend = v
	}
	if v := os.Getenv("REGISTRY_STRICT_IDS"); v != "" {
		cfg.Validation.StrictIdentifiers = v == "true" || v == "1"
	}
}

// =============================================================================
// Validation
// =============================================================================

// Validate checks the configuration for internally consistent, usable
// values. It is called by Load; callers constructing a Config by hand
// should call it themselves.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	switch c.Server.Mode {
	case "debug", "release", "test":
	default:
		return fmt.Errorf("server.mode must be debug, release, or test: %q", c.Server.Mode)
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn, or error: %q", c.Logging.Level)
	}

	switch c.Telemetry.TraceExporter {
	case "otlp", "stdout", "none":
	default:
		return fmt.Errorf("telemetry.trace_exporter must be otlp, stdout, or none: %q", c.Telemetry.TraceExporter)
	}
	switch c.Telemetry.MetricExporter {
	case "prometheus", "stdout", "none":
	default:
		return fmt.Errorf("telemetry.metric_exporter must be prometheus, stdout, or none: %q", c.Telemetry.MetricExporter)
	}

	switch c.Storage.Backend {
	case "memory", "badger":
	default:
		return fmt.Errorf("storage.backend must be memory or badger: %q", c.Storage.Backend)
	}
	if c.Storage.Backend == "badger" && c.Storage.DataDir == "" {
		return fmt.Errorf("storage.data_dir is required for the badger backend")
	}
	if c.Storage.GCInterval.Std() <= 0 {
		return fmt.Errorf("storage.gc_interval must be positive: %s", c.Storage.GCInterval)
	}
	if c.Storage.GCDiscardRatio <= 0 || c.Storage.GCDiscardRatio > 1 {
		return fmt.Errorf("storage.gc_discard_ratio must be in (0, 1]: %f", c.Storage.GCDiscardRatio)
	}

	if c.Limits.MaxDatasets < 1 {
		return fmt.Errorf("limits.max_datasets must be at least 1: %d", c.Limits.MaxDatasets)
	}
	if c.Limits.DatasetTTL.Std() < 0 {
		return fmt.Errorf("limits.dataset_ttl must not be negative: %s", c.Limits.DatasetTTL)
	}
	if c.Limits.RateRPS <= 0 {
		return fmt.Errorf("limits.rate_rps must be positive: %f", c.Limits.RateRPS)
	}
	if c.Limits.RateBurst < 1 {
		return fmt.Errorf("limits.rate_burst must be at least 1: %d", c.Limits.RateBurst)
	}

	if c.Importer.Enabled {
		if c.Importer.Dir == "" {
			return fmt.Errorf("importer.dir is required when the importer is enabled")
		}
		if c.Importer.Dataset == "" {
			return fmt.Errorf("importer.dataset is required when the importer is enabled")
		}
		if c.Importer.Debounce.Std() <= 0 {
			return fmt.Errorf("importer.debounce must be positive: %s", c.Importer.Debounce)
		}
	}

	return nil
}
