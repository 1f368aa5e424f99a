package logging

import (
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/hookyard/hookyard/internal/config"
)

func TestSetup_TextToStdout(t *testing.T) {
	logger, err := Setup(config.LoggingConfig{Level: "info", Format: "text"})
	if err != nil {
		t.Fatalf("Setup() error = %v", err)
	}
	if logger == nil {
		t.Fatal("Setup() returned nil logger")
	}
}

func TestSetup_JSONToFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "hookyard.log")

	logger, err := Setup(config.LoggingConfig{Level: "debug", Format: "json", File: path})
	if err != nil {
		t.Fatalf("Setup() error = %v", err)
	}
	logger.Info("test message", "key", "value")
}

func TestSetup_InvalidFilePath(t *testing.T) {
	_, err := Setup(config.LoggingConfig{Level: "info", File: "/nonexistent/dir/hookyard.log"})
	if err == nil {
		t.Fatal("expected error for unwritable log file path")
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"info", slog.LevelInfo},
		{"", slog.LevelInfo},
		{"bogus", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := parseLevel(tt.in); got != tt.want {
			t.Errorf("parseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
