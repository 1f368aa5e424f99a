package prreview

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/google/go-github/v68/github"
	"github.com/hookyard/hookyard/internal/config"
	"github.com/hookyard/hookyard/internal/db"
	"github.com/hookyard/hookyard/internal/ghclient"
	"github.com/hookyard/hookyard/internal/models"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	gdb, err := db.Connect(config.DatabaseConfig{Driver: "sqlite", Path: ":memory:"})
	if err != nil {
		t.Fatalf("db.Connect() error = %v", err)
	}
	if err := db.AutoMigrate(gdb); err != nil {
		t.Fatalf("db.AutoMigrate() error = %v", err)
	}
	return gdb
}

// fakeCLIScript writes an executable shell script that echoes fixedOutput
// to stdout and exits with exitCode, standing in for the AI CLI binary.
func fakeCLIScript(t *testing.T, fixedOutput string, exitCode int) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "fake-cli.sh")
	script := "#!/bin/sh\nprintf %s \"" + fixedOutput + "\"\nexit " + strconv.Itoa(exitCode) + "\n"
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("write fake CLI script: %v", err)
	}
	return path
}

func newTestGHServer(t *testing.T, commentSeen chan<- string) (*ghclient.Client, *httptest.Server) {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/backend/pulls/42", func(w http.ResponseWriter, r *http.Request) {
		// PullRequestDiff requests this same URL with a diff media type.
		if strings.Contains(r.Header.Get("Accept"), "diff") {
			w.Write([]byte("diff --git a/foo.go b/foo.go\n+added line\n"))
			return
		}
		json.NewEncoder(w).Encode(&github.PullRequest{
			Number: github.Ptr(42),
			Title:  github.Ptr("Add retries"),
			User:   &github.User{Login: github.Ptr("octocat")},
		})
	})
	mux.HandleFunc("/repos/acme/backend/issues/42/comments", func(w http.ResponseWriter, r *http.Request) {
		var body struct{ Body string }
		json.NewDecoder(r.Body).Decode(&body)
		if commentSeen != nil {
			commentSeen <- body.Body
		}
		json.NewEncoder(w).Encode(&github.IssueComment{ID: github.Ptr(int64(1))})
	})
	mux.HandleFunc("/repos/acme/backend/issues/42/labels", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]*github.Label{})
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	c, err := ghclient.New("fake-token", srv.URL+"/")
	if err != nil {
		t.Fatalf("ghclient.New() error = %v", err)
	}
	return c, srv
}

func TestWorker_HappyPathReview(t *testing.T) {
	gdb := newTestDB(t)
	comments := make(chan string, 1)
	gh, _ := newTestGHServer(t, comments)

	cliPath := fakeCLIScript(t, "LGTM", 0)
	cfg := config.ReviewConfig{CLIPath: cliPath, TimeoutSeconds: 5, DiffBudgetChars: 60000}

	w := NewWorker(gdb, gh, cfg)
	if err := w.Enqueue(context.Background(), "acme/backend", 42, "Add retries", "octocat", "https://github.com/acme/backend/pull/42"); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}

	select {
	case body := <-comments:
		if !strings.Contains(body, "LGTM") {
			t.Errorf("posted comment = %q, want it to contain %q", body, "LGTM")
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no comment was posted within the timeout")
	}

	var task models.ReviewTask
	waitForStatus(t, gdb, models.TaskID("acme/backend", 42), models.ReviewStatusCompleted, &task)
	if task.Progress != 100 {
		t.Errorf("Progress = %d, want 100", task.Progress)
	}
	if !strings.Contains(task.ReviewContent, "LGTM") {
		t.Errorf("ReviewContent = %q, want it to contain %q", task.ReviewContent, "LGTM")
	}
}

func TestWorker_EmptyOutputFails(t *testing.T) {
	gdb := newTestDB(t)
	gh, _ := newTestGHServer(t, nil)

	cliPath := fakeCLIScript(t, "", 0)
	cfg := config.ReviewConfig{CLIPath: cliPath, TimeoutSeconds: 5}

	w := NewWorker(gdb, gh, cfg)
	if err := w.Enqueue(context.Background(), "acme/backend", 42, "t", "a", "u"); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}

	var task models.ReviewTask
	waitForStatus(t, gdb, models.TaskID("acme/backend", 42), models.ReviewStatusFailed, &task)
	if task.ErrorMessage == "" {
		t.Error("ErrorMessage is empty, want a failure reason recorded")
	}
}

func TestWorker_NonZeroExitFails(t *testing.T) {
	gdb := newTestDB(t)
	gh, _ := newTestGHServer(t, nil)

	cliPath := fakeCLIScript(t, "partial output", 1)
	cfg := config.ReviewConfig{CLIPath: cliPath, TimeoutSeconds: 5}

	w := NewWorker(gdb, gh, cfg)
	if err := w.Enqueue(context.Background(), "acme/backend", 42, "t", "a", "u"); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}

	var task models.ReviewTask
	waitForStatus(t, gdb, models.TaskID("acme/backend", 42), models.ReviewStatusFailed, &task)
}

func TestWorker_ReenqueueInFlightIsNoOp(t *testing.T) {
	gdb := newTestDB(t)
	gh, _ := newTestGHServer(t, nil)

	cliPath := fakeCLIScript(t, "LGTM", 0)
	cfg := config.ReviewConfig{CLIPath: cliPath, TimeoutSeconds: 5, PoolSize: 1, QueueSize: 1}

	w := NewWorker(gdb, gh, cfg)
	ctx := context.Background()
	if err := w.Enqueue(ctx, "acme/backend", 42, "t", "a", "u"); err != nil {
		t.Fatalf("first Enqueue() error = %v", err)
	}
	// A second enqueue while the task may already be queued/processing must
	// not error and must not create a second row.
	_ = w.Enqueue(ctx, "acme/backend", 42, "t", "a", "u")

	var count int64
	gdb.Model(&models.ReviewTask{}).Where("task_id = ?", models.TaskID("acme/backend", 42)).Count(&count)
	if count != 1 {
		t.Errorf("task row count = %d, want 1", count)
	}
}

func TestWorker_SweepStale_FailsAbandonedProcessingTask(t *testing.T) {
	gdb := newTestDB(t)
	gh, _ := newTestGHServer(t, nil)

	w := NewWorker(gdb, gh, config.ReviewConfig{})

	stuck := models.ReviewTask{
		ID: models.TaskID("acme/backend", 99), PRNumber: 99, Repo: "acme/backend",
		Status: models.ReviewStatusProcessing, UpdatedAt: time.Now().UTC().Add(-time.Hour),
	}
	if err := gdb.Create(&stuck).Error; err != nil {
		t.Fatalf("seed stuck task: %v", err)
	}
	fresh := models.ReviewTask{
		ID: models.TaskID("acme/backend", 100), PRNumber: 100, Repo: "acme/backend",
		Status: models.ReviewStatusProcessing, UpdatedAt: time.Now().UTC(),
	}
	if err := gdb.Create(&fresh).Error; err != nil {
		t.Fatalf("seed fresh task: %v", err)
	}

	w.sweepStale()

	var reswept models.ReviewTask
	if err := gdb.First(&reswept, "task_id = ?", stuck.ID).Error; err != nil {
		t.Fatalf("reload stuck task: %v", err)
	}
	if reswept.Status != models.ReviewStatusFailed {
		t.Errorf("stuck task status = %q, want %q", reswept.Status, models.ReviewStatusFailed)
	}

	var untouched models.ReviewTask
	if err := gdb.First(&untouched, "task_id = ?", fresh.ID).Error; err != nil {
		t.Fatalf("reload fresh task: %v", err)
	}
	if untouched.Status != models.ReviewStatusProcessing {
		t.Errorf("fresh task status = %q, want unchanged %q", untouched.Status, models.ReviewStatusProcessing)
	}
}

func waitForStatus(t *testing.T, gdb *gorm.DB, taskID, status string, out *models.ReviewTask) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if err := gdb.First(out, "task_id = ?", taskID).Error; err == nil && out.Status == status {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("task %s did not reach status %q within the timeout (last status %q)", taskID, status, out.Status)
}
