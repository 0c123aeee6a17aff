// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestLoadEmbeddedDefault(t *testing.T) {
	cfg, err := Load(context.Background(), "")
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 8093, cfg.Server.Port)
	assert.Equal(t, "release", cfg.Server.Mode)
	assert.Equal(t, "0.0.0.0:8093", cfg.Server.Addr())
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.True(t, cfg.Logging.JSON)
	assert.False(t, cfg.Logging.Quiet)
	assert.Equal(t, "registry", cfg.Telemetry.ServiceName)
	assert.Equal(t, "none", cfg.Telemetry.TraceExporter)
	assert.Equal(t, "prometheus", cfg.Telemetry.MetricExporter)
	assert.Equal(t, "localhost:4317", cfg.Telemetry.OTLPEndpoint)
	assert.Equal(t, "memory", cfg.Storage.Backend)
	assert.Equal(t, 5*time.Minute, cfg.Storage.GCInterval.Std())
	assert.InDelta(t, 0.5, cfg.Storage.GCDiscardRatio, 1e-9)
	assert.Equal(t, 64, cfg.Limits.MaxDatasets)
	assert.Equal(t, 24*time.Hour, cfg.Limits.DatasetTTL.Std())
	assert.InDelta(t, 50, cfg.Limits.RateRPS, 1e-9)
	assert.Equal(t, 100, cfg.Limits.RateBurst)
	assert.False(t, cfg.Validation.StrictIdentifiers)
	assert.False(t, cfg.Importer.Enabled)
	assert.Equal(t, 2*time.Second, cfg.Importer.Debounce.Std())
}

func TestLoadExternalOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "override.yaml")
	body := "server:\n  port: 9999\nstorage:\n  backend: badger\n  data_dir: /var/lib/civic\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	cfg, err := Load(context.Background(), path)
	require.NoError(t, err)

	assert.Equal(t, 9999, cfg.Server.Port)
	assert.Equal(t, "badger", cfg.Storage.Backend)
	assert.Equal(t, "/var/lib/civic", cfg.Storage.DataDir)

	// Keys the overlay does not mention keep their embedded defaults.
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, "release", cfg.Server.Mode)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, 5*time.Minute, cfg.Storage.GCInterval.Std())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(context.Background(), filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reading config file")
}

func TestLoadOversizeFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "big.yaml")
	require.NoError(t, os.WriteFile(path, make([]byte, MaxConfigFileSize+1), 0o600))

	_, err := Load(context.Background(), path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "too large")
}

func TestLoadInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [not, a, map"), 0o600))

	_, err := Load(context.Background(), path)
	require.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("REGISTRY_PORT", "7001")
	t.Setenv("REGISTRY_BACKEND", "badger")
	t.Setenv("REGISTRY_DATA_DIR", t.TempDir())
	t.Setenv("REGISTRY_LOG_LEVEL", "debug")
	t.Setenv("REGISTRY_STRICT_IDS", "1")

	cfg, err := Load(context.Background(), "")
	require.NoError(t, err)

	assert.Equal(t, 7001, cfg.Server.Port)
	assert.Equal(t, "badger", cfg.Storage.Backend)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.True(t, cfg.Validation.StrictIdentifiers)
}

func TestEnvOverridesIgnoreGarbage(t *testing.T) {
	t.Setenv("REGISTRY_PORT", "not-a-port")

	cfg, err := Load(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, 8093, cfg.Server.Port)
}

func TestValidateRejects(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"port zero", func(c *Config) { c.Server.Port = 0 }, "server.port"},
		{"bad mode", func(c *Config) { c.Server.Mode = "turbo" }, "server.mode"},
		{"bad level", func(c *Config) { c.Logging.Level = "loud" }, "logging.level"},
		{"bad trace exporter", func(c *Config) { c.Telemetry.TraceExporter = "jaeger" }, "trace_exporter"},
		{"bad metric exporter", func(c *Config) { c.Telemetry.MetricExporter = "statsd" }, "metric_exporter"},
		{"bad backend", func(c *Config) { c.Storage.Backend = "postgres" }, "storage.backend"},
		{"badger without data dir", func(c *Config) {
			c.Storage.Backend = "badger"
			c.Storage.DataDir = ""
		}, "data_dir"},
		{"zero gc interval", func(c *Config) { c.Storage.GCInterval = 0 }, "gc_interval"},
		{"gc ratio too high", func(c *Config) { c.Storage.GCDiscardRatio = 1.5 }, "gc_discard_ratio"},
		{"zero max datasets", func(c *Config) { c.Limits.MaxDatasets = 0 }, "max_datasets"},
		{"negative ttl", func(c *Config) { c.Limits.DatasetTTL = Duration(-time.Hour) }, "dataset_ttl"},
		{"zero rate", func(c *Config) { c.Limits.RateRPS = 0 }, "rate_rps"},
		{"zero burst", func(c *Config) { c.Limits.RateBurst = 0 }, "rate_burst"},
		{"importer without dir", func(c *Config) {
			c.Importer.Enabled = true
			c.Importer.Dataset = "civil"
		}, "importer.dir"},
		{"importer without dataset", func(c *Config) {
			c.Importer.Enabled = true
			c.Importer.Dir = "seeds"
		}, "importer.dataset"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg, err := Load(context.Background(), "")
			require.NoError(t, err)

			tc.mutate(cfg)
			err = cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestDurationUnmarshal(t *testing.T) {
	var out struct {
		D Duration `yaml:"d"`
	}

	require.NoError(t, yaml.Unmarshal([]byte("d: 90s"), &out))
	assert.Equal(t, 90*time.Second, out.D.Std())

	// Plain integers are nanoseconds.
	require.NoError(t, yaml.Unmarshal([]byte("d: 1000000000"), &out))
	assert.Equal(t, time.Second, out.D.Std())

	assert.Error(t, yaml.Unmarshal([]byte("d: shortly"), &out))
}

func TestDurationMarshal(t *testing.T) {
	data, err := yaml.Marshal(Duration(5 * time.Minute))
	require.NoError(t, err)
	assert.Equal(t, "5m0s\n", string(data))
}

func TestGetCachesConfig(t *testing.T) {
	Reset()
	t.Cleanup(Reset)

	ctx := context.Background()
	first, err := Get(ctx)
	require.NoError(t, err)

	second, err := Get(ctx)
	require.NoError(t, err)
	assert.Same(t, first, second)
}

func TestGetHonorsEnvConfigPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registry.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 7777\n"), 0o600))
	t.Setenv(EnvConfigPath, path)

	Reset()
	t.Cleanup(Reset)

	cfg, err := Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 7777, cfg.Server.Port)
}

func TestGetNilContext(t *testing.T) {
	var ctx context.Context
	_, err := Get(ctx)
	require.Error(t, err)
}
