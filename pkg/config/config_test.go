package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadCreatesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Server.Address != "localhost:1880" {
		t.Errorf("unexpected default address %q", cfg.Server.Address)
	}
	if time.Duration(cfg.Ticker.MissionLoop) != time.Second {
		t.Errorf("unexpected default mission loop %v", cfg.Ticker.MissionLoop)
	}
	if cfg.Ticker.TickSeconds != 1.0 {
		t.Errorf("unexpected default tick seconds %v", cfg.Ticker.TickSeconds)
	}
	if cfg.Bus.BufferSize != 64 {
		t.Errorf("unexpected default buffer size %d", cfg.Bus.BufferSize)
	}

	// The file was written out with the defaults.
	if _, err := os.Stat(path); err != nil {
		t.Errorf("config file not created: %v", err)
	}
}

func TestLoadMergesExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := []byte(`
server:
  address: ":9000"
ticker:
  mission_loop: 250ms
  tick_seconds: 4.0
`)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Server.Address != ":9000" {
		t.Errorf("override lost: address = %q", cfg.Server.Address)
	}
	if time.Duration(cfg.Ticker.MissionLoop) != 250*time.Millisecond {
		t.Errorf("override lost: mission_loop = %v", cfg.Ticker.MissionLoop)
	}
	if cfg.Ticker.TickSeconds != 4.0 {
		t.Errorf("override lost: tick_seconds = %v", cfg.Ticker.TickSeconds)
	}
	// Untouched sections keep their defaults.
	if cfg.DB.Path != "./data/skysurvey.db" {
		t.Errorf("default lost: db path = %q", cfg.DB.Path)
	}
}

func TestGenerateDefaultIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := GenerateDefault(path); err != nil {
		t.Fatalf("GenerateDefault failed: %v", err)
	}

	if err := os.WriteFile(path, []byte("server:\n  address: \":1\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := GenerateDefault(path); err != nil {
		t.Fatalf("second GenerateDefault failed: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Address != ":1" {
		t.Error("GenerateDefault overwrote an existing file")
	}
}
