// Package issuescorer implements the issue-scorer worker: it scores GitHub
// issues and comments for quality against a content-type rubric, posts the
// result back as a comment, and learns from user feedback on those scores
// through a running-mean feedback pattern table.
package issuescorer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/hookyard/hookyard/internal/aiagent"
	"github.com/hookyard/hookyard/internal/config"
	"github.com/hookyard/hookyard/internal/cronutil"
	"github.com/hookyard/hookyard/internal/ghclient"
	"github.com/hookyard/hookyard/internal/models"
	"github.com/hookyard/hookyard/internal/workerpool"
	"gorm.io/gorm"
)

// staleAfter is how long a score record may sit in "processing" before the
// sweep considers its worker dead and fails it out.
const staleAfter = 30 * time.Minute

// staleSweepCron runs the sweep every 10 minutes.
const staleSweepCron = "*/10 * * * *"

// scoreCommentMarker tags every comment the worker posts, so the webhook
// handler can recognize and ignore the bot's own comments and avoid scoring
// loops.
const scoreCommentMarker = "<!-- HOOKYARD_SCORE_COMMENT -->"

type jobKind int

const (
	jobKindScore jobKind = iota
	jobKindFeedback
)

// scorerJob carries either a new scoring request or a feedback-analysis
// request through the same pool.
type scorerJob struct {
	kind jobKind

	repo      string
	issueNum  int
	commentID *int64
	title     string
	body      string
	author    string
	url       string
	labels    []string

	scoreID      string
	feedbackText string
}

// Worker drives issue/comment scoring and the feedback-learning loop.
type Worker struct {
	db    *gorm.DB
	gh    *ghclient.Client
	cfg   config.IssueScoringConfig
	pool  *workerpool.Pool[scorerJob]
	locks *workerpool.KeyedLock

	schedCancel context.CancelFunc
	schedDone   chan struct{}
}

func NewWorker(db *gorm.DB, gh *ghclient.Client, cfg config.IssueScoringConfig) *Worker {
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

	var wg sync.WaitGroup
	if cfg.SnapshotCron != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			cronutil.Run(ctx, w.cfg.SnapshotCron, func() {
				if _, err := computeSnapshot(w.db); err != nil {
					slog.Error("issuescorer: scheduled snapshot failed", "error", err)
				}
			})
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		cronutil.Run(ctx, staleSweepCron, w.sweepStale)
	}()

	w.schedDone = make(chan struct{})
	go func() {
		wg.Wait()
		close(w.schedDone)
	}()

	return w
}

// Shutdown stops the scheduled jobs and waits for in-flight pool tasks to
// finish, up to ctx's deadline.
func (w *Worker) Shutdown(ctx context.Context) error {
	w.schedCancel()
	<-w.schedDone
	return w.pool.Shutdown(ctx)
}

// sweepStale fails out any score record that has sat in "processing" longer
// than staleAfter, which happens when the process handling it restarted
// mid-flight and the job was never requeued.
func (w *Worker) sweepStale() {
	cutoff := time.Now().UTC().Add(-staleAfter)
	var stuck []models.ScoreRecord
	if err := w.db.Where("status = ? AND created_at < ?", models.ScoreStatusProcessing, cutoff).Find(&stuck).Error; err != nil {
		slog.Error("issuescorer: stale sweep query failed", "error", err)
		return
	}
	for _, s := range stuck {
		w.fail(s.ID, "stale sweep: record stuck in processing, worker likely restarted")
		slog.Warn("issuescorer: swept stale score record", "score_id", s.ID)
	}
}

// EnqueueScore submits a scoring job for an issue (commentID nil) or a
// comment on an issue (commentID set).
func (w *Worker) EnqueueScore(repo string, issueNum int, commentID *int64, title, body, author, url string, labels []string) error {
	return w.pool.Submit(scorerJob{
		kind:      jobKindScore,
		repo:      repo,
		issueNum:  issueNum,
		commentID: commentID,
		title:     title,
		body:      body,
		author:    author,
		url:       url,
		labels:    labels,
	})
}

// IngestFeedback appends feedbackText to the ScoreRecord's accumulated
// user_feedback and submits a non-blocking analysis job. Returns an error
// only if the record doesn't exist or the append itself fails. The analysis
// runs asynchronously; when the pool's queue is full it is dropped with a
// warning and only the appended text is kept.
func (w *Worker) IngestFeedback(scoreID, feedbackText string) error {
	w.locks.Lock(scoreID)
	defer w.locks.Unlock(scoreID)

	var score models.ScoreRecord
	if err := w.db.First(&score, "score_id = ?", scoreID).Error; err != nil {
		return fmt.Errorf("issuescorer: load score %s: %w", scoreID, err)
	}

	combined := score.UserFeedback
	if combined != "" {
		combined += "\n---\n"
	}
	combined += feedbackText

	if err := w.db.Model(&models.ScoreRecord{}).Where("score_id = ?", scoreID).
		Update("user_feedback", combined).Error; err != nil {
		return fmt.Errorf("issuescorer: append feedback to %s: %w", scoreID, err)
	}

	if err := w.pool.Submit(scorerJob{kind: jobKindFeedback, scoreID: scoreID, feedbackText: feedbackText}); err != nil {
		slog.Warn("issuescorer: feedback analysis queue full, dropping analysis", "score_id", scoreID)
	}
	return nil
}

// TriggerSnapshot computes a feedback snapshot immediately, for the manual
// API trigger.
func (w *Worker) TriggerSnapshot() (*models.FeedbackSnapshot, error) {
	return computeSnapshot(w.db)
}

func (w *Worker) process(ctx context.Context, job scorerJob) {
	switch job.kind {
	case jobKindScore:
		w.scoreContent(ctx, job)
	case jobKindFeedback:
		w.processFeedback(ctx, job)
	}
}

// scoreContent implements the scoring algorithm: classify content type,
// create the score record (already in processing state: it is first
// written here, when a pool worker picks up the job, and never sits in
// queued), assemble the prompt with recent calibration
// feedback, invoke the AI CLI (one stricter retry if its output doesn't
// parse), clamp and sanity-check the scores, post the comment, and mark the
// record completed.
func (w *Worker) scoreContent(ctx context.Context, job scorerJob) {
	contentType := models.ContentTypeComment
	if job.commentID == nil {
		contentType = classifyIssue(job.title, job.body, job.labels)
	}

	scoreID := buildScoreID(job.repo, job.issueNum, contentType, job.commentID)
	now := time.Now().UTC()
	record := models.ScoreRecord{
		ID:          scoreID,
		Repo:        job.repo,
		IssueNumber: job.issueNum,
		CommentID:   job.commentID,
		ContentType: contentType,
		Title:       job.title,
		Body:        job.body,
		Author:      job.author,
		IssueURL:    job.url,
		Status:      models.ScoreStatusProcessing,
		CreatedAt:   now,
	}
	if err := w.db.Create(&record).Error; err != nil {
		slog.Error("issuescorer: create score record failed", "score_id", scoreID, "error", err)
		return
	}

	patterns, total, err := queryInsights(w.db, w.cfg.FeedbackWindowDays, w.cfg.FeedbackMinOccurrences)
	if err != nil {
		slog.Warn("issuescorer: load feedback insights failed, scoring without calibration", "error", err)
	}
	insightBlock := buildInsightBlock(patterns, total)

	prompt := buildScoringPrompt(w.cfg, contentType, job.title, job.body, job.author, insightBlock)

	cliPath := w.cfg.CLIPath
	if cliPath == "" {
		cliPath = "claude"
	}
	timeout := time.Duration(w.cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 120 * time.Second
	}

	resp, err := w.invokeScoring(ctx, cliPath, prompt, timeout)
	if err != nil {
		w.fail(scoreID, err.Error())
		return
	}

	format := clampScore(resp.Format.Score)
	content := clampScore(resp.Content.Score)
	clarity := clampScore(resp.Clarity.Score)
	actionability := clampScore(resp.Actionability.Score)
	overall := validateOverall(format, content, clarity, actionability, clampScore(resp.OverallScore))

	w.complete(scoreID, scoredResult{
		FormatScore: format, FormatFeedback: resp.Format.Feedback,
		ContentScore: content, ContentFeedback: resp.Content.Feedback,
		ClarityScore: clarity, ClarityFeedback: resp.Clarity.Feedback,
		ActionabilityScore: actionability, ActionabilityFeedback: resp.Actionability.Feedback,
		OverallScore: overall, Suggestions: resp.Suggestions,
	})

	if w.cfg.AutoComment {
		comment := formatScoreComment(contentType, format, content, clarity, actionability, overall, resp.Suggestions)
		if _, err := w.gh.CreateIssueComment(ctx, job.repo, job.issueNum, comment); err != nil {
			slog.Error("issuescorer: post score comment failed", "repo", job.repo, "issue", job.issueNum, "error", err)
		}
	}
}

// scoreResponse mirrors the JSON contract handed to the AI CLI.
type scoreResponse struct {
	Format        scoreDimension `json:"format"`
	Content       scoreDimension `json:"content"`
	Clarity       scoreDimension `json:"clarity"`
	Actionability scoreDimension `json:"actionability"`
	OverallScore  int            `json:"overall_score"`
	Suggestions   string         `json:"suggestions"`
}

type scoreDimension struct {
	Score    int    `json:"score"`
	Feedback string `json:"feedback"`
}

type scoredResult struct {
	FormatScore, ContentScore, ClarityScore, ActionabilityScore, OverallScore int
	FormatFeedback, ContentFeedback, ClarityFeedback, ActionabilityFeedback   string
	Suggestions                                                              string
}

// invokeScoring runs the AI CLI and parses its output, retrying once with a
// stricter "JSON only" prompt if the first response doesn't parse.
func (w *Worker) invokeScoring(ctx context.Context, cliPath, prompt string, timeout time.Duration) (*scoreResponse, error) {
	resp, err := w.runAndParse(ctx, cliPath, prompt, timeout)
	if err == nil {
		return resp, nil
	}
	slog.Warn("issuescorer: scoring response unparseable, retrying with stricter prompt", "error", err)

	strict := prompt + "\n\nYour previous response did not parse as valid JSON. Return ONLY the JSON object, with no markdown fence, no prose before or after it."
	resp, err2 := w.runAndParse(ctx, cliPath, strict, timeout)
	if err2 != nil {
		return nil, fmt.Errorf("issuescorer: scoring failed after retry: %w", err2)
	}
	return resp, nil
}

func (w *Worker) runAndParse(ctx context.Context, cliPath, prompt string, timeout time.Duration) (*scoreResponse, error) {
	result, err := aiagent.Run(ctx, aiagent.Options{
		Binary:  cliPath,
		Mode:    aiagent.ArgMode,
		Prompt:  prompt,
		Timeout: timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("AI CLI invocation: %w", err)
	}
	if result.ExitCode != 0 || strings.TrimSpace(result.Stdout) == "" {
		return nil, fmt.Errorf("AI CLI exit=%d stderr=%s", result.ExitCode, truncateTail(result.Stderr, 500))
	}

	var resp scoreResponse
	if err := json.Unmarshal([]byte(extractFencedJSON(result.Stdout)), &resp); err != nil {
		return nil, fmt.Errorf("parse scoring response: %w", err)
	}
	return &resp, nil
}

func truncateTail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}

// clampScore bounds a dimension score to [0, 100].
func clampScore(n int) int {
	if n < 0 {
		return 0
	}
	if n > 100 {
		return 100
	}
	return n
}

// validateOverall replaces an overall score that strays more than 10 points
// from the mean of the four dimension scores, to catch an AI response that
// contradicts its own per-dimension feedback.
func validateOverall(format, content, clarity, actionability, overall int) int {
	mean := float64(format+content+clarity+actionability) / 4.0
	if math.Abs(float64(overall)-mean) > 10 {
		return int(math.Round(mean))
	}
	return overall
}

// buildScoreID mirrors the "{repo}#{issue}@{content_type}@{comment-<id> or
// issue}@{unix_nanos}" shape, giving every scoring event a unique, sortable
// identifier.
func buildScoreID(repo string, issueNum int, contentType string, commentID *int64) string {
	scope := "issue"
	if commentID != nil {
		scope = fmt.Sprintf("comment-%d", *commentID)
	}
	return fmt.Sprintf("%s#%d@%s@%s@%d", repo, issueNum, contentType, scope, time.Now().UTC().UnixNano())
}

// formatScoreComment renders the posted score as a Markdown table, tagged
// with scoreCommentMarker so the webhook handler can recognize and skip the
// bot's own comments.
func formatScoreComment(contentType string, format, content, clarity, actionability, overall int, suggestions string) string {
	var b strings.Builder
	b.WriteString(scoreCommentMarker)
	b.WriteString("\n## Quality Score\n\n")
	fmt.Fprintf(&b, "| Dimension | Score |\n|---|---|\n")
	fmt.Fprintf(&b, "| Format | %d |\n", format)
	fmt.Fprintf(&b, "| Content | %d |\n", content)
	fmt.Fprintf(&b, "| Clarity | %d |\n", clarity)
	fmt.Fprintf(&b, "| Actionability | %d |\n", actionability)
	fmt.Fprintf(&b, "| **Overall** | **%d** |\n", overall)
	if suggestions != "" {
		b.WriteString("\n**Suggestions:** ")
		b.WriteString(suggestions)
		b.WriteString("\n")
	}
	b.WriteString("\n_Disagree with this score? Reply with feedback and it'll be used to calibrate future scoring._\n")
	return b.String()
}

// fail transitions a score record to failed. No comment is posted for a
// failed scoring attempt.
func (w *Worker) fail(scoreID, errMsg string) {
	now := time.Now().UTC()
	updates := map[string]interface{}{
		"status":        models.ScoreStatusFailed,
		"error_message": errMsg,
		"completed_at":  now,
	}
	if err := w.db.Model(&models.ScoreRecord{}).Where("score_id = ?", scoreID).Updates(updates).Error; err != nil {
		slog.Error("issuescorer: update score failed-state failed", "score_id", scoreID, "error", err)
	}
}

// complete transitions a score record to completed with its final scores.
func (w *Worker) complete(scoreID string, r scoredResult) {
	now := time.Now().UTC()
	updates := map[string]interface{}{
		"status":                 models.ScoreStatusCompleted,
		"format_score":           r.FormatScore,
		"format_feedback":        r.FormatFeedback,
		"content_score":          r.ContentScore,
		"content_feedback":       r.ContentFeedback,
		"clarity_score":          r.ClarityScore,
		"clarity_feedback":       r.ClarityFeedback,
		"actionability_score":    r.ActionabilityScore,
		"actionability_feedback": r.ActionabilityFeedback,
		"overall_score":          r.OverallScore,
		"suggestions":            r.Suggestions,
		"completed_at":           now,
	}
	if err := w.db.Model(&models.ScoreRecord{}).Where("score_id = ?", scoreID).Updates(updates).Error; err != nil {
		slog.Error("issuescorer: update score completed-state failed", "score_id", scoreID, "error", err)
	}
}

// processFeedback runs the feedback-analysis half of the loop: analyze the
// text against the original score, then fold the result into the running
// feedback pattern. Analyzer failures are logged; the raw feedback text
// stays on the ScoreRecord for a future re-analysis pass.
func (w *Worker) processFeedback(ctx context.Context, job scorerJob) {
	var score models.ScoreRecord
	if err := w.db.First(&score, "score_id = ?", job.scoreID).Error; err != nil {
		slog.Error("issuescorer: load score for feedback analysis failed", "score_id", job.scoreID, "error", err)
		return
	}

	analysis := analyzeFeedback(ctx, w.cfg, score, job.feedbackText)
	if err := updateFeedbackPattern(w.db, analysis, job.feedbackText); err != nil {
		slog.Error("issuescorer: update feedback pattern failed", "score_id", job.scoreID, "error", err)
	}
}
