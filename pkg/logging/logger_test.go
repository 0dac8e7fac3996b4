package logging

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"skysurvey/pkg/config"
)

func TestInit(t *testing.T) {
	tempDir := t.TempDir()
	serverLog := filepath.Join(tempDir, "server.log")
	requestLog := filepath.Join(tempDir, "requests.log")

	cfg := &config.LogConfig{
		Server: config.LogSettings{
			Path:  serverLog,
			Level: "DEBUG",
		},
		Requests: config.LogSettings{
			Path:  requestLog,
			Level: "INFO",
		},
	}

	// Run Init
	cleanup, err := Init(cfg)
	if err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	defer cleanup()

	// Verify Files Created
	if _, err := os.Stat(serverLog); os.IsNotExist(err) {
		t.Error("Server log file not created")
	}
	if _, err := os.Stat(requestLog); os.IsNotExist(err) {
		t.Error("Request log file not created")
	}

	// Verify RequestLogger is set
	if RequestLogger == nil {
		t.Error("RequestLogger was not initialized")
	}
}

func TestRotatePaths(t *testing.T) {
	tempDir := t.TempDir()
	logPath := filepath.Join(tempDir, "server.log")

	if err := os.WriteFile(logPath, []byte("previous run"), 0o644); err != nil {
		t.Fatal(err)
	}

	rotatePaths(logPath)

	data, err := os.ReadFile(logPath + ".old")
	if err != nil {
		t.Fatalf("rotated file missing: %v", err)
	}
	if string(data) != "previous run" {
		t.Errorf("rotated content = %q", data)
	}
	if _, err := os.Stat(logPath); !os.IsNotExist(err) {
		t.Error("original log file still present after rotation")
	}
}

func TestTraceGate(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	SetTrace(false)
	Trace(logger, "tick", "waypoint", 3)
	if buf.Len() != 0 {
		t.Errorf("Trace wrote %q while disabled", buf.String())
	}

	SetTrace(true)
	defer SetTrace(false)
	Trace(logger, "tick", "waypoint", 3)
	if !strings.Contains(buf.String(), "tick") {
		t.Errorf("Trace output missing message, got %q", buf.String())
	}
	if !TraceEnabled() {
		t.Error("TraceEnabled() = false after SetTrace(true)")
	}
}
