package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func requireNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "weir.yaml")
	requireNoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	requireNoError(t, err)

	if cfg.Server.Port != 8080 {
		t.Fatalf("expected default port 8080, got %d", cfg.Server.Port)
	}
	if cfg.Engine.SweepInterval != "5s" {
		t.Fatalf("expected default sweep interval 5s, got %q", cfg.Engine.SweepInterval)
	}
	if cfg.Engine.QueueSize != 1024 {
		t.Fatalf("expected default queue size 1024, got %d", cfg.Engine.QueueSize)
	}
	if cfg.Ingestion.PartitionField != "organization_id" {
		t.Fatalf("expected default partition field organization_id, got %q", cfg.Ingestion.PartitionField)
	}
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	cfgPath := writeConfig(t, `
server:
  port: 9090
  host: "127.0.0.1"
  mode: "debug"
engine:
  sweep_interval: "30s"
  queue_size: 64
ingestion:
  partition_field: "tenant_id"
`)

	cfg, err := Load(cfgPath)
	requireNoError(t, err)

	if cfg.Server.Port != 9090 {
		t.Fatalf("expected port 9090, got %d", cfg.Server.Port)
	}
	if cfg.SweepIntervalDuration().Seconds() != 30 {
		t.Fatalf("expected 30s sweep interval, got %v", cfg.SweepIntervalDuration())
	}
	if cfg.Ingestion.PartitionField != "tenant_id" {
		t.Fatalf("expected partition field tenant_id, got %q", cfg.Ingestion.PartitionField)
	}
	// Untouched keys keep their defaults.
	if cfg.Server.MaxBodySizeMB != 1 {
		t.Fatalf("expected default max body size 1, got %d", cfg.Server.MaxBodySizeMB)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	cfgPath := writeConfig(t, `
server:
  port: 9090
`)

	t.Setenv("WEIR_SERVER__PORT", "9191")
	t.Setenv("WEIR_ENGINE__SWEEP_INTERVAL", "1m")

	cfg, err := Load(cfgPath)
	requireNoError(t, err)

	if cfg.Server.Port != 9191 {
		t.Fatalf("expected env override port 9191, got %d", cfg.Server.Port)
	}
	if cfg.Engine.SweepInterval != "1m" {
		t.Fatalf("expected env override sweep interval 1m, got %q", cfg.Engine.SweepInterval)
	}
}

func TestLoad_InvalidSweepIntervalFailsStartup(t *testing.T) {
	cfgPath := writeConfig(t, `
engine:
  sweep_interval: "sometimes"
`)

	_, err := Load(cfgPath)
	if err == nil || !strings.Contains(err.Error(), "sweep_interval") {
		t.Fatalf("expected sweep interval error, got %v", err)
	}
}

func TestLoad_InvalidModeFailsStartup(t *testing.T) {
	cfgPath := writeConfig(t, `
server:
  mode: "verbose"
`)

	_, err := Load(cfgPath)
	if err == nil || !strings.Contains(err.Error(), "server.mode") {
		t.Fatalf("expected mode error, got %v", err)
	}
}

func TestLoad_MissingFileFails(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil {
		t.Fatal("expected error for missing config file")
	}
}
