package main

import (
	"bytes"
	"strings"
	"testing"
)

func TestPRReviewCmd_Help(t *testing.T) {
	cmd := newRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"pr-review", "--help"})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("pr-review --help failed: %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, "Reviews pull requests") {
		t.Errorf("expected help to mention 'Reviews pull requests', got: %s", out)
	}
}

func TestPRReviewCmd_MissingConfig(t *testing.T) {
	cmd := newRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"pr-review", "--config", "/nonexistent/hookyard.yaml"})

	err := cmd.Execute()
	if err == nil {
		t.Fatal("expected error for missing config file")
	}
	if !strings.Contains(err.Error(), "load config") {
		t.Errorf("error = %q, want to contain %q", err.Error(), "load config")
	}
}

func TestPRReviewCmd_DefaultPortFlag(t *testing.T) {
	cmd := newPRReviewCmd()
	flag := cmd.Flags().Lookup("port")
	if flag == nil {
		t.Fatal("--port flag not found")
	}
	if flag.DefValue != "0" {
		t.Errorf("default port = %q, want %q", flag.DefValue, "0")
	}
}
