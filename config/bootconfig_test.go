package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/qedge/jobcore/config"
)

func TestDefault(t *testing.T) {
	cfg, err := config.Default()
	if err != nil {
		t.Fatalf("default: %v", err)
	}
	if cfg.Redis.Address != "127.0.0.1:6379" {
		t.Fatalf("address = %q", cfg.Redis.Address)
	}
	if cfg.Namespace != "jobcore:" {
		t.Fatalf("namespace = %q", cfg.Namespace)
	}
	if cfg.DefaultHeartbeatSeconds != 60 {
		t.Fatalf("heartbeat = %d", cfg.DefaultHeartbeatSeconds)
	}
	if cfg.Logging.Level != "info" {
		t.Fatalf("level = %q", cfg.Logging.Level)
	}
}

func TestLoad_OverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "custom.toml")
	err := os.WriteFile(path, []byte(`
namespace = "test:"

[redis]
address = "redis.internal:6380"
`), 0o644)
	if err != nil {
		t.Fatalf("write: %v", err)
	}

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Namespace != "test:" {
		t.Fatalf("namespace = %q, want override", cfg.Namespace)
	}
	if cfg.Redis.Address != "redis.internal:6380" {
		t.Fatalf("address = %q, want override", cfg.Redis.Address)
	}
	// Unspecified fields keep the compiled-in default.
	if cfg.DefaultHeartbeatSeconds != 60 {
		t.Fatalf("heartbeat = %d, want default preserved", cfg.DefaultHeartbeatSeconds)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "missing.toml"))
	if err == nil {
		t.Fatal("expected an error for a missing file")
	}
}

func TestCreateSample_RefusesToOverwrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sample.toml")

	if err := config.CreateSample(path); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := config.CreateSample(path); err == nil {
		t.Fatal("expected an error creating over an existing file")
	}
}
