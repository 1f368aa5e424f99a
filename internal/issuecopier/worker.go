// Package issuecopier implements the issue-copier worker: it replicates
// issues from a configured source repo to one or more target repos by
// label, mirrors comments, re-hosts images, and rewrites cross-repo issue
// references.
package issuecopier

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/google/go-github/v68/github"
	"github.com/hookyard/hookyard/internal/config"
	"github.com/hookyard/hookyard/internal/cronutil"
	"github.com/hookyard/hookyard/internal/ghclient"
	"github.com/hookyard/hookyard/internal/models"
	"github.com/hookyard/hookyard/internal/workerpool"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const assetsBranch = "assets"

// staleAfter is how long a CopyRecord may sit in "processing" before the
// sweep considers its worker dead and fails it out so a later enqueue can
// retry the copy.
const staleAfter = 30 * time.Minute

// staleSweepCron runs the sweep every 10 minutes.
const staleSweepCron = "*/10 * * * *"

type jobKind int

const (
	jobKindIssue jobKind = iota
	jobKindComment
)

// copyJob identifies one (source issue, target repo) replication, or one
// comment-mirror pass across all of a source issue's targets.
type copyJob struct {
	kind       jobKind
	sourceRepo string
	issueNum   int
	targetRepo string // only for jobKindIssue
	commentID  int64  // only for jobKindComment
}

// Worker drives issue replication and comment mirroring.
type Worker struct {
	db   *gorm.DB
	gh   *ghclient.Client
	cfg  config.IssueCopyConfig
	pool *workerpool.Pool[copyJob]

	schedCancel context.CancelFunc
	schedDone   chan struct{}
}

// NewWorker builds a Worker, starts its pool, and starts the stale-task
// sweep that reclaims copies abandoned by a crashed process.
func NewWorker(db *gorm.DB, gh *ghclient.Client, cfg config.IssueCopyConfig) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	w := &Worker{db: db, gh: gh, cfg: cfg, schedCancel: cancel}
	poolSize := cfg.PoolSize
	if poolSize <= 0 {
		poolSize = 4
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

// Shutdown stops the stale-task sweep and waits for in-flight jobs to
// finish, up to ctx's deadline.
func (w *Worker) Shutdown(ctx context.Context) error {
	w.schedCancel()
	<-w.schedDone
	return w.pool.Shutdown(ctx)
}

// sweepStale fails out any CopyRecord that has sat in "processing" longer
// than staleAfter, which happens when the process handling it restarted
// mid-flight. A later EnqueueIssueCopy call for the same triple will treat
// a failed record as eligible for retry.
func (w *Worker) sweepStale() {
	cutoff := time.Now().UTC().Add(-staleAfter)
	var stuck []models.CopyRecord
	if err := w.db.Where("status = ? AND created_at < ?", models.CopyStatusProcessing, cutoff).Find(&stuck).Error; err != nil {
		slog.Error("issuecopier: stale sweep query failed", "error", err)
		return
	}
	for _, rec := range stuck {
		updates := map[string]interface{}{
			"status":        models.CopyStatusFailed,
			"error_message": "stale sweep: copy stuck in processing, worker likely restarted",
		}
		if err := w.db.Model(&models.CopyRecord{}).Where("id = ?", rec.ID).Updates(updates).Error; err != nil {
			slog.Error("issuecopier: sweep update failed", "id", rec.ID, "error", err)
			continue
		}
		slog.Warn("issuecopier: swept stale copy record", "source_repo", rec.SourceRepo, "source_issue", rec.SourceIssueNumber, "target_repo", rec.TargetRepo)
	}
}

// EnqueueIssueCopy resolves targets by label and submits one copy job per
// target that has no CopyRecord in success, partial or processing state.
func (w *Worker) EnqueueIssueCopy(sourceRepo string, issueNum int, labels []string) error {
	targets := targetReposForLabels(labels, w.cfg.LabelToRepo, w.cfg.DefaultTargetRepo)
	for _, target := range targets {
		var existing models.CopyRecord
		err := w.db.Where("source_repo = ? AND source_issue_number = ? AND target_repo = ? AND status IN ?",
			sourceRepo, issueNum, target, []string{models.CopyStatusSuccess, models.CopyStatusPartial, models.CopyStatusProcessing}).
			First(&existing).Error
		if err == nil {
			continue
		}
		if err := w.pool.Submit(copyJob{kind: jobKindIssue, sourceRepo: sourceRepo, issueNum: issueNum, targetRepo: target}); err != nil {
			return err
		}
	}
	return nil
}

// EnqueueCommentMirror submits a mirror job covering every target this
// source issue has already been copied to.
func (w *Worker) EnqueueCommentMirror(sourceRepo string, issueNum int, commentID int64) error {
	return w.pool.Submit(copyJob{kind: jobKindComment, sourceRepo: sourceRepo, issueNum: issueNum, commentID: commentID})
}

func (w *Worker) process(ctx context.Context, job copyJob) {
	switch job.kind {
	case jobKindIssue:
		w.copyIssue(ctx, job.sourceRepo, job.issueNum, job.targetRepo)
	case jobKindComment:
		w.mirrorComment(ctx, job.sourceRepo, job.issueNum, job.commentID)
	}
}

// copyIssue implements the per-target replication algorithm: re-host
// images, rewrite issue references, create the target issue, copy labels,
// optionally leave a trail on the source, and record the outcome.
func (w *Worker) copyIssue(ctx context.Context, sourceRepo string, issueNum int, targetRepo string) {
	w.markProcessing(sourceRepo, issueNum, targetRepo)

	source, err := w.gh.Issue(ctx, sourceRepo, issueNum)
	if err != nil {
		slog.Error("issuecopier: fetch source issue failed", "repo", sourceRepo, "issue", issueNum, "error", err)
		return
	}

	status := models.CopyStatusSuccess
	body := source.GetBody()
	var uploaded []reuploadedImage

	if w.cfg.ReuploadImages {
		uploader := &ghImageUploader{ctx: ctx, gh: w.gh, targetRepo: targetRepo}
		body, uploaded = rehostImages(body, uploader)
		if uploader.anyFailed {
			status = models.CopyStatusPartial
		}
	}

	body = rewriteIssueReferences(body, sourceRepo)

	if w.cfg.AddSourceReference {
		body += fmt.Sprintf("\n\n---\n*Copied from %s#%d*", sourceRepo, issueNum)
	}

	var labelNames []string
	if w.cfg.CopyLabels {
		for _, l := range source.Labels {
			labelNames = append(labelNames, l.GetName())
		}
	}

	created, err := w.gh.CreateIssue(ctx, targetRepo, &github.IssueRequest{
		Title:  source.Title,
		Body:   &body,
		Labels: &labelNames,
	})
	if err != nil && len(labelNames) > 0 {
		// The target repo may not have these labels defined; retry bare.
		created, err = w.gh.CreateIssue(ctx, targetRepo, &github.IssueRequest{Title: source.Title, Body: &body})
		if err == nil {
			status = models.CopyStatusPartial
			labelNames = nil
		}
	}
	if err != nil {
		w.recordCopy(sourceRepo, issueNum, targetRepo, nil, models.CopyStatusFailed, nil, err.Error())
		return
	}

	if w.cfg.AddCopyComment {
		comment := fmt.Sprintf("Copied to %s#%d", targetRepo, created.GetNumber())
		if _, err := w.gh.CreateIssueComment(ctx, sourceRepo, issueNum, comment); err != nil {
			slog.Warn("issuecopier: post copy-notice comment failed", "repo", sourceRepo, "issue", issueNum, "error", err)
		}
	}

	w.recordCopy(sourceRepo, issueNum, targetRepo, created, status, uploaded, "")
}

// markProcessing upserts a "processing" placeholder row for the triple so
// the stale sweep has something to reclaim if the process dies mid-copy.
func (w *Worker) markProcessing(sourceRepo string, issueNum int, targetRepo string) {
	rec := models.CopyRecord{
		SourceRepo:        sourceRepo,
		SourceIssueNumber: issueNum,
		TargetRepo:        targetRepo,
		Status:            models.CopyStatusProcessing,
		CreatedAt:         time.Now().UTC(),
	}
	err := w.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "source_repo"}, {Name: "source_issue_number"}, {Name: "target_repo"}},
		DoUpdates: clause.AssignmentColumns([]string{"status", "error_message", "created_at"}),
	}).Create(&rec).Error
	if err != nil {
		slog.Error("issuecopier: mark processing failed", "source", sourceRepo, "issue", issueNum, "target", targetRepo, "error", err)
	}
}

// recordCopy updates the triple's CopyRecord to its terminal status. The row
// already exists from markProcessing, so this is a plain update.
func (w *Worker) recordCopy(sourceRepo string, issueNum int, targetRepo string, created *github.Issue, status string, uploaded []reuploadedImage, errMsg string) {
	updates := map[string]interface{}{
		"status":        status,
		"error_message": errMsg,
	}
	if created != nil {
		updates["target_issue_number"] = created.GetNumber()
	}
	if len(uploaded) > 0 {
		if b, err := json.Marshal(uploaded); err == nil {
			updates["images_reuploaded"] = string(b)
		}
	}
	err := w.db.Model(&models.CopyRecord{}).
		Where("source_repo = ? AND source_issue_number = ? AND target_repo = ?", sourceRepo, issueNum, targetRepo).
		Updates(updates).Error
	if err != nil {
		slog.Error("issuecopier: record copy failed", "source", sourceRepo, "issue", issueNum, "target", targetRepo, "error", err)
	}
}

// mirrorComment replicates one source comment onto every target issue this
// source issue has already been copied to.
func (w *Worker) mirrorComment(ctx context.Context, sourceRepo string, issueNum int, commentID int64) {
	var records []models.CopyRecord
	if err := w.db.Where("source_repo = ? AND source_issue_number = ? AND status IN ?",
		sourceRepo, issueNum, []string{models.CopyStatusSuccess, models.CopyStatusPartial}).Find(&records).Error; err != nil {
		slog.Error("issuecopier: lookup copy records for mirror failed", "repo", sourceRepo, "issue", issueNum, "error", err)
		return
	}
	if len(records) == 0 {
		return
	}

	comments, err := w.gh.IssueComments(ctx, sourceRepo, issueNum)
	if err != nil {
		slog.Error("issuecopier: list source comments failed", "repo", sourceRepo, "issue", issueNum, "error", err)
		return
	}
	var source *github.IssueComment
	for _, c := range comments {
		if c.GetID() == commentID {
			source = c
			break
		}
	}
	if source == nil {
		return
	}

	for _, rec := range records {
		var existing models.CommentSyncRecord
		err := w.db.Where("source_comment_id = ? AND target_repo = ? AND target_issue_number = ?",
			commentID, rec.TargetRepo, rec.TargetIssueNumber).First(&existing).Error
		if err == nil {
			continue
		}

		body := source.GetBody()
		uploader := &ghImageUploader{ctx: ctx, gh: w.gh, targetRepo: rec.TargetRepo}
		body, _ = rehostImages(body, uploader)
		body = rewriteIssueReferences(body, sourceRepo)
		body = fmt.Sprintf("*Comment by @%s on %s#%d:*\n\n%s", source.GetUser().GetLogin(), sourceRepo, issueNum, body)

		targetComment, err := w.gh.CreateIssueComment(ctx, rec.TargetRepo, rec.TargetIssueNumber, body)
		sync := models.CommentSyncRecord{
			SourceCommentID:   commentID,
			SourceRepo:        sourceRepo,
			SourceIssueNumber: issueNum,
			TargetRepo:        rec.TargetRepo,
			TargetIssueNumber: rec.TargetIssueNumber,
			Status:            models.CopyStatusSuccess,
			CreatedAt:         time.Now().UTC(),
		}
		if err != nil {
			sync.Status = models.CopyStatusFailed
			slog.Error("issuecopier: mirror comment failed", "target_repo", rec.TargetRepo, "error", err)
		} else {
			sync.TargetCommentID = targetComment.GetID()
		}
		if err := w.db.Clauses(clause.OnConflict{DoNothing: true}).Create(&sync).Error; err != nil {
			slog.Error("issuecopier: record comment sync failed", "error", err)
		}
	}
}

// ghImageUploader adapts ghclient.Client to the imageUploader interface,
// uploading to the "assets" branch at a path derived from the original
// URL's basename.
type ghImageUploader struct {
	ctx        context.Context
	gh         *ghclient.Client
	targetRepo string
	anyFailed  bool
}

func (u *ghImageUploader) upload(originalURL string) (string, bool) {
	if err := u.gh.EnsureBranch(u.ctx, u.targetRepo, assetsBranch); err != nil {
		slog.Warn("issuecopier: ensure assets branch failed", "repo", u.targetRepo, "error", err)
		u.anyFailed = true
		return "", false
	}

	name := stableImageName(originalURL)
	assetPath := path.Join("images", name)

	content, err := downloadImage(u.ctx, originalURL)
	if err != nil {
		slog.Warn("issuecopier: download image failed", "url", originalURL, "error", err)
		u.anyFailed = true
		return "", false
	}

	if _, err := u.gh.UploadFile(u.ctx, u.targetRepo, assetPath, assetsBranch, "issue-copier: upload image "+name, content); err != nil {
		slog.Warn("issuecopier: upload image failed", "repo", u.targetRepo, "path", assetPath, "error", err)
		u.anyFailed = true
		return "", false
	}

	return fmt.Sprintf("https://github.com/%s/blob/%s/%s?raw=true", u.targetRepo, assetsBranch, assetPath), true
}

// downloadImage fetches the image bytes at url.
func downloadImage(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("issuecopier: build download request: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("issuecopier: download image: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("issuecopier: download image: unexpected status %d", resp.StatusCode)
	}
	content, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("issuecopier: read image body: %w", err)
	}
	return content, nil
}

// stableImageName derives a deterministic file name from a URL so repeated
// copies of the same image land on the same asset path.
func stableImageName(url string) string {
	name := path.Base(url)
	if idx := strings.IndexByte(name, '?'); idx >= 0 {
		name = name[:idx]
	}
	if name == "" || name == "." || name == "/" {
		name = "image.png"
	}
	return name
}
