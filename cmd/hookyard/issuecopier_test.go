package main

import (
	"bytes"
	"strings"
	"testing"
)

func TestIssueCopierCmd_Help(t *testing.T) {
	cmd := newRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"issue-copier", "--help"})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("issue-copier --help failed: %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, "Replicates labeled issues") {
		t.Errorf("expected help to mention 'Replicates labeled issues', got: %s", out)
	}
}

func TestIssueCopierCmd_MissingConfig(t *testing.T) {
	cmd := newRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"issue-copier", "--config", "/nonexistent/hookyard.yaml"})

	err := cmd.Execute()
	if err == nil {
		t.Fatal("expected error for missing config file")
	}
	if !strings.Contains(err.Error(), "load config") {
		t.Errorf("error = %q, want to contain %q", err.Error(), "load config")
	}
}
