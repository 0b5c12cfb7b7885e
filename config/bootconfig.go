// Package config loads the process-level bootstrap configuration a
// jobcore.Engine is constructed from: where Redis lives, what key
// namespace to use, and the pool/heartbeat defaults to start with. This
// is distinct from the store-resident per-queue config spec.md §4.1
// describes (see package queueconfig), which lives inside the store
// itself and is consulted mid-transaction.
package config

import (
	_ "embed"
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig []byte

// RedisConfig configures the connection to the backing Redis instance.
type RedisConfig struct {
	Address  string `toml:"address"`
	TLS      bool   `toml:"tls"`
	PoolSize int    `toml:"pool_size"`
}

// LoggingConfig configures the process's structured logger.
type LoggingConfig struct {
	Level string `toml:"level"`
}

// BootConfig is the full process-level bootstrap configuration.
type BootConfig struct {
	Redis                   RedisConfig   `toml:"redis"`
	Namespace               string        `toml:"namespace"`
	DefaultHeartbeatSeconds int64         `toml:"default_heartbeat_seconds"`
	Logging                 LoggingConfig `toml:"logging"`
}

// Default returns the configuration embedded in sample_config.toml,
// suitable for local development against a Redis instance on localhost.
func Default() (BootConfig, error) {
	var cfg BootConfig
	if err := toml.Unmarshal(sampleConfig, &cfg); err != nil {
		return BootConfig{}, fmt.Errorf("config: decode embedded default: %w", err)
	}
	return cfg, nil
}

// Load reads and parses a BootConfig from a TOML file at path.
func Load(path string) (BootConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return BootConfig{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	cfg, err := Default()
	if err != nil {
		return BootConfig{}, err
	}
	if err := toml.Unmarshal(raw, &cfg); err != nil {
		return BootConfig{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

// CreateSample writes the embedded sample configuration to path,
// failing if a file already exists there.
func CreateSample(path string) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("config: create %s: %w", path, err)
	}
	defer f.Close()
	if _, err := f.Write(sampleConfig); err != nil {
		return fmt.Errorf("config: write %s: %w", path, err)
	}
	return nil
}
