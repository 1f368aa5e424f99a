// Package prreview implements the PR-review worker: it turns matching
// pull_request webhook events into queued ReviewTasks, drives them through a
// bounded worker pool that invokes an AI CLI on the PR diff, and posts the
// result back as a PR comment.
package prreview

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hookyard/hookyard/internal/aiagent"
	"github.com/hookyard/hookyard/internal/config"
	"github.com/hookyard/hookyard/internal/cronutil"
	"github.com/hookyard/hookyard/internal/ghclient"
	"github.com/hookyard/hookyard/internal/models"
	"github.com/hookyard/hookyard/internal/workerpool"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// staleAfter is how long a ReviewTask may sit in "processing" before the
// sweep considers its worker dead and fails it out.
const staleAfter = 30 * time.Minute

// staleSweepCron runs the sweep every 10 minutes.
const staleSweepCron = "*/10 * * * *"

// reviewJob identifies one PR to run through the pipeline. The worker
// re-fetches everything it needs from the PR number at process time, so the
// job itself carries no stale data.
type reviewJob struct {
	repo     string
	prNumber int
}

// Worker drives ReviewTasks from enqueue through completion.
type Worker struct {
	db    *gorm.DB
	gh    *ghclient.Client
	cfg   config.ReviewConfig
	pool  *workerpool.Pool[reviewJob]
	locks *workerpool.KeyedLock

	schedCancel context.CancelFunc
	schedDone   chan struct{}
}

// NewWorker builds a Worker, starts its pool, and starts the stale-task
// sweep that reclaims tasks abandoned by a crashed process.
func NewWorker(db *gorm.DB, gh *ghclient.Client, cfg config.ReviewConfig) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	w := &Worker{db: db, gh: gh, cfg: cfg, locks: workerpool.NewKeyedLock(), schedCancel: cancel}
	poolSize := cfg.PoolSize
	if poolSize <= 0 {
		poolSize = 2
	}
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 32
	}
	w.pool = workerpool.New(poolSize, queueSize, w.process)

	w.schedDone = make(chan struct{})
	go func() {
		defer close(w.schedDone)
		cronutil.Run(ctx, staleSweepCron, w.sweepStale)
	}()

	return w
}

// Shutdown stops the stale-task sweep and waits for in-flight tasks to
// finish, up to ctx's deadline.
func (w *Worker) Shutdown(ctx context.Context) error {
	w.schedCancel()
	<-w.schedDone
	return w.pool.Shutdown(ctx)
}

// sweepStale fails out any ReviewTask that has sat in "processing" longer
// than staleAfter, which happens when the process handling it restarted
// mid-flight and the task was never requeued.
func (w *Worker) sweepStale() {
	cutoff := time.Now().UTC().Add(-staleAfter)
	var stuck []models.ReviewTask
	if err := w.db.Where("status = ? AND updated_at < ?", models.ReviewStatusProcessing, cutoff).Find(&stuck).Error; err != nil {
		slog.Error("prreview: stale sweep query failed", "error", err)
		return
	}
	for _, t := range stuck {
		w.fail(t.ID, "stale sweep: task stuck in processing, worker likely restarted")
		slog.Warn("prreview: swept stale review task", "task_id", t.ID)
	}
}

// Enqueue upserts a queued ReviewTask for (repo, prNumber) and submits it to
// the pool. Re-enqueueing a task that is already queued or processing is a
// no-op: the in-flight run will observe the latest PR head on its own fetch.
func (w *Worker) Enqueue(ctx context.Context, repo string, prNumber int, title, author, url string) error {
	taskID := models.TaskID(repo, prNumber)

	var existing models.ReviewTask
	err := w.db.First(&existing, "task_id = ?", taskID).Error
	if err == nil && (existing.Status == models.ReviewStatusQueued || existing.Status == models.ReviewStatusProcessing) {
		return nil
	}

	now := time.Now().UTC()
	task := models.ReviewTask{
		ID:        taskID,
		PRNumber:  prNumber,
		Repo:      repo,
		PRTitle:   title,
		PRAuthor:  author,
		PRURL:     url,
		Status:    models.ReviewStatusQueued,
		Progress:  0,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := w.db.Clauses(clause.OnConflict{UpdateAll: true}).Create(&task).Error; err != nil {
		return fmt.Errorf("prreview: upsert task %s: %w", taskID, err)
	}

	if err := w.pool.Submit(reviewJob{repo: repo, prNumber: prNumber}); err != nil {
		return err
	}
	return nil
}

// process runs the per-task algorithm: fetch diff, build prompt, invoke the
// AI CLI, post a comment, and transition the task to its terminal state.
func (w *Worker) process(ctx context.Context, job reviewJob) {
	taskID := models.TaskID(job.repo, job.prNumber)
	w.locks.Lock(taskID)
	defer w.locks.Unlock(taskID)

	w.setStatus(taskID, models.ReviewStatusProcessing, 10, "")

	pr, err := w.gh.PullRequest(ctx, job.repo, job.prNumber)
	if err != nil {
		w.fail(taskID, fmt.Sprintf("fetch PR: %v", err))
		return
	}

	diff, err := w.gh.PullRequestDiff(ctx, job.repo, job.prNumber)
	if err != nil {
		w.fail(taskID, fmt.Sprintf("fetch diff: %v", err))
		return
	}

	budget := w.cfg.DiffBudgetChars
	if budget <= 0 {
		budget = 60000
	}
	truncated := truncateDiff(splitDiffByFile(diff), budget)

	prompt := buildPrompt(w.cfg, job.repo, job.prNumber, pr.GetTitle(), pr.GetUser().GetLogin(), truncated)

	w.setStatus(taskID, models.ReviewStatusProcessing, 50, "")

	timeout := time.Duration(w.cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	cliPath := w.cfg.CLIPath
	if cliPath == "" {
		cliPath = "claude"
	}

	result, err := aiagent.Run(ctx, aiagent.Options{
		Binary:  cliPath,
		Mode:    aiagent.ArgMode,
		Prompt:  prompt,
		Timeout: timeout,
	})
	if err != nil || result.ExitCode != 0 || strings.TrimSpace(result.Stdout) == "" {
		stderr := ""
		exitCode := 0
		if result != nil {
			stderr = truncateTail(result.Stderr, 2000)
			exitCode = result.ExitCode
		}
		w.fail(taskID, fmt.Sprintf("AI CLI exit=%d: %s", exitCode, stderr))
		return
	}

	w.setStatus(taskID, models.ReviewStatusProcessing, 80, "")

	reviewBody := strings.TrimSpace(result.Stdout) + attributionLine
	if _, err := w.gh.CreateIssueComment(ctx, job.repo, job.prNumber, reviewBody); err != nil {
		w.fail(taskID, fmt.Sprintf("post comment: %v", err))
		return
	}

	if w.cfg.AutoLabel {
		labelName := w.cfg.AutoLabelName
		if labelName == "" {
			labelName = "auto-reviewed"
		}
		if err := w.gh.AddLabels(ctx, job.repo, job.prNumber, []string{labelName}); err != nil {
			slog.Warn("prreview: apply auto-review label failed", "repo", job.repo, "pr", job.prNumber, "error", err)
		}
	}

	w.complete(taskID, strings.TrimSpace(result.Stdout))
}

// setStatus updates status/progress without disturbing other fields.
func (w *Worker) setStatus(taskID, status string, progress int, message string) {
	updates := map[string]interface{}{
		"status":     status,
		"progress":   progress,
		"updated_at": time.Now().UTC(),
	}
	if message != "" {
		updates["message"] = message
	}
	if err := w.db.Model(&models.ReviewTask{}).Where("task_id = ?", taskID).Updates(updates).Error; err != nil {
		slog.Error("prreview: update task status failed", "task_id", taskID, "error", err)
	}
}

// fail transitions a task to failed with the given error message.
func (w *Worker) fail(taskID, errMsg string) {
	now := time.Now().UTC()
	updates := map[string]interface{}{
		"status":        models.ReviewStatusFailed,
		"error_message": errMsg,
		"updated_at":    now,
		"completed_at":  now,
	}
	if err := w.db.Model(&models.ReviewTask{}).Where("task_id = ?", taskID).Updates(updates).Error; err != nil {
		slog.Error("prreview: update task failed-state failed", "task_id", taskID, "error", err)
	}
}

// complete transitions a task to completed, storing the review content.
func (w *Worker) complete(taskID, reviewContent string) {
	now := time.Now().UTC()
	updates := map[string]interface{}{
		"status":         models.ReviewStatusCompleted,
		"progress":       100,
		"review_content": reviewContent,
		"updated_at":     now,
		"completed_at":   now,
	}
	if err := w.db.Model(&models.ReviewTask{}).Where("task_id = ?", taskID).Updates(updates).Error; err != nil {
		slog.Error("prreview: update task completed-state failed", "task_id", taskID, "error", err)
	}
}

// splitDiffByFile splits the PR's unified diff into the per-file filePatch
// slice truncateDiff operates on.
func splitDiffByFile(unifiedDiff string) []filePatch {
	// go-github's GetRaw(Diff) returns one unified diff for the whole PR;
	// split it on "diff --git" boundaries so truncateDiff can drop whole
	// files rather than cutting mid-hunk.
	if unifiedDiff == "" {
		return nil
	}
	parts := strings.Split(unifiedDiff, "diff --git ")
	var patches []filePatch
	for _, part := range parts {
		if strings.TrimSpace(part) == "" {
			continue
		}
		name := part
		if idx := strings.IndexAny(part, "\n"); idx >= 0 {
			name = part[:idx]
		}
		patches = append(patches, filePatch{Filename: strings.TrimSpace(name), Patch: "diff --git " + part})
	}
	return patches
}

func truncateTail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}

// PullRequestPayload is the subset of a pull_request webhook body the
// worker needs for gating and task metadata.
type PullRequestPayload struct {
	Action     string `json:"action"`
	Repository struct {
		FullName string `json:"full_name"`
	} `json:"repository"`
	PullRequest struct {
		Number int    `json:"number"`
		Title  string `json:"title"`
		Draft  bool   `json:"draft"`
		URL    string `json:"html_url"`
		User   struct {
			Login string `json:"login"`
		} `json:"user"`
		Labels []struct {
			Name string `json:"name"`
		} `json:"labels"`
	} `json:"pull_request"`
}

// hasLabel reports whether the payload's PR already carries labelName.
func (p PullRequestPayload) hasLabel(labelName string) bool {
	for _, l := range p.PullRequest.Labels {
		if l.Name == labelName {
			return true
		}
	}
	return false
}
