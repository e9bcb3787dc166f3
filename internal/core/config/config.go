package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config is the top-level application configuration.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Engine    EngineConfig    `koanf:"engine"`
	Ingestion IngestionConfig `koanf:"ingestion"`
}

// ServerConfig holds the HTTP server configuration.
type ServerConfig struct {
	Port          int    `koanf:"port"`
	Host          string `koanf:"host"`
	MaxBodySizeMB int    `koanf:"max_body_size_mb"`
	Mode          string `koanf:"mode"` // debug | release
}

// EngineConfig holds the aggregation engine settings.
type EngineConfig struct {
	DefinitionsDir     string `koanf:"definitions_dir"`
	RequireDefinitions bool   `koanf:"require_definitions"`
	QueueSize          int    `koanf:"queue_size"`     // per-partition-key task queue capacity
	SweepInterval      string `koanf:"sweep_interval"` // parsed and validated on startup
}

// IngestionConfig holds the event-source adapter settings.
type IngestionConfig struct {
	// PartitionField is the payload field the adapter derives the partition
	// key from when the client does not set one explicitly.
	PartitionField string `koanf:"partition_field"`
}

func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port %d (must be 1-65535)", c.Server.Port)
	}
	if strings.TrimSpace(c.Server.Host) == "" {
		return fmt.Errorf("server.host is required")
	}
	if c.Server.MaxBodySizeMB <= 0 {
		return fmt.Errorf("server.max_body_size_mb must be > 0")
	}
	if c.Server.Mode != "debug" && c.Server.Mode != "release" {
		return fmt.Errorf("invalid server.mode %q (must be debug or release)", c.Server.Mode)
	}

	if c.Engine.QueueSize <= 0 {
		return fmt.Errorf("engine.queue_size must be > 0")
	}
	interval, err := time.ParseDuration(c.Engine.SweepInterval)
	if err != nil {
		return fmt.Errorf("invalid engine.sweep_interval %q: %w", c.Engine.SweepInterval, err)
	}
	if interval <= 0 {
		return fmt.Errorf("engine.sweep_interval must be > 0")
	}

	return nil
}

// SweepIntervalDuration returns the parsed sweep interval. Call after
// Validate.
func (c *Config) SweepIntervalDuration() time.Duration {
	d, _ := time.ParseDuration(c.Engine.SweepInterval)
	return d
}

// Load parses config from file + env and validates it.
// WEIR_SERVER__PORT=9090 overrides server.port.
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	defaults := map[string]interface{}{
		"server.port":                8080,
		"server.host":                "0.0.0.0",
		"server.max_body_size_mb":    1,
		"server.mode":                "release",
		"engine.definitions_dir":     "./config/definitions",
		"engine.require_definitions": false,
		"engine.queue_size":          1024,
		"engine.sweep_interval":      "5s",
		"ingestion.partition_field":  "organization_id",
	}
	for key, value := range defaults {
		k.Set(key, value)
	}

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	if err := k.Load(env.Provider("WEIR_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, "WEIR_")), "__", ".", -1)
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}
