package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSetupWorker_MissingConfig(t *testing.T) {
	_, _, _, err := setupWorker("/nonexistent/hookyard.yaml")
	if err == nil {
		t.Fatal("expected error for missing config file")
	}
	if !strings.Contains(err.Error(), "load config") {
		t.Errorf("error = %q, want to contain %q", err.Error(), "load config")
	}
}

func TestSetupWorker_ConnectsAndMigrates(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "hookyard.yaml")
	dbPath := filepath.Join(dir, "hookyard.db")

	yaml := "database:\n  driver: sqlite\n  path: " + dbPath + "\n"
	if err := os.WriteFile(configPath, []byte(yaml), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv(envGitHubToken, "test-token")

	cfg, gormDB, gh, err := setupWorker(configPath)
	if err != nil {
		t.Fatalf("setupWorker() error = %v", err)
	}
	if cfg == nil || gormDB == nil || gh == nil {
		t.Fatal("setupWorker() returned a nil component")
	}

	if !gormDB.Migrator().HasTable("review_tasks") {
		t.Error("expected review_tasks table to exist after setupWorker")
	}
}

func TestSetupWorker_DatabasePathEnvOverride(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "hookyard.yaml")
	if err := os.WriteFile(configPath, []byte("database:\n  driver: sqlite\n  path: unused.db\n"), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	overridePath := filepath.Join(dir, "overridden.db")
	t.Setenv(envDatabasePath, overridePath)

	_, gormDB, _, err := setupWorker(configPath)
	if err != nil {
		t.Fatalf("setupWorker() error = %v", err)
	}
	if !gormDB.Migrator().HasTable("score_records") {
		t.Error("expected score_records table on the overridden database path")
	}
}
