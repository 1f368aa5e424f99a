package main

import (
	"bytes"
	"strings"
	"testing"
)

func TestIssueScorerCmd_Help(t *testing.T) {
	cmd := newRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"issue-scorer", "--help"})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("issue-scorer --help failed: %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, "Scores issue") {
		t.Errorf("expected help to mention 'Scores issue', got: %s", out)
	}
}

func TestIssueScorerCmd_MissingConfig(t *testing.T) {
	cmd := newRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"issue-scorer", "--config", "/nonexistent/hookyard.yaml"})

	err := cmd.Execute()
	if err == nil {
		t.Fatal("expected error for missing config file")
	}
	if !strings.Contains(err.Error(), "load config") {
		t.Errorf("error = %q, want to contain %q", err.Error(), "load config")
	}
}
