package prreview

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/hookyard/hookyard/internal/config"
	"github.com/hookyard/hookyard/internal/models"
	"github.com/hookyard/hookyard/internal/workerpool"
	"gorm.io/gorm"
)

// Handler serves the PR-review worker's HTTP surface: the webhook intake
// and a small read-only API backing the dashboard.
type Handler struct {
	db     *gorm.DB
	worker *Worker
	cfg    config.ReviewConfig
}

// NewHandler builds a Handler wired to worker.
func NewHandler(db *gorm.DB, worker *Worker, cfg config.ReviewConfig) *Handler {
	return &Handler{db: db, worker: worker, cfg: cfg}
}

// Register mounts the worker's routes on router.
func (h *Handler) Register(router gin.IRouter) {
	router.POST("/webhook", h.handleWebhook)
	router.GET("/api/tasks", h.handleListTasks)
	// Task IDs ("repo#pr_number") contain "/", so the rest of the path is
	// taken as a catch-all parameter.
	router.GET("/api/tasks/*id", h.handleGetTask)
}

// HandleEvent is the in-process Dispatcher entrypoint: it lets the gateway
// call directly into the worker without an HTTP hop.
func (h *Handler) HandleEvent(ctx context.Context, eventType string, payload []byte) error {
	if eventType != "pull_request" {
		return nil
	}
	var parsed PullRequestPayload
	if err := json.Unmarshal(payload, &parsed); err != nil {
		return err
	}
	return h.handle(ctx, parsed)
}

func (h *Handler) handleWebhook(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot read body"})
		return
	}

	eventType := c.GetHeader("X-GitHub-Event")
	if eventType != "pull_request" {
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
		return
	}

	var parsed PullRequestPayload
	if err := json.Unmarshal(body, &parsed); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot parse payload"})
		return
	}

	if err := h.handle(c.Request.Context(), parsed); err != nil {
		if errors.Is(err, workerpool.ErrQueueFull) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "queue full"})
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"status": "ignored"})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"status":  "accepted",
		"task_id": models.TaskID(parsed.Repository.FullName, parsed.PullRequest.Number),
	})
}

// handle applies the gating rules from the public contract and, if
// accepted, enqueues the task.
func (h *Handler) handle(ctx context.Context, payload PullRequestPayload) error {
	if !containsString(h.cfg.Triggers, payload.Action) {
		return errIgnored
	}
	if h.cfg.SkipDraft && payload.PullRequest.Draft {
		return errIgnored
	}
	autoLabel := h.cfg.AutoLabelName
	if autoLabel == "" {
		autoLabel = "auto-reviewed"
	}
	if payload.Action != "synchronize" && payload.hasLabel(autoLabel) {
		return errIgnored
	}

	return h.worker.Enqueue(
		ctx,
		payload.Repository.FullName,
		payload.PullRequest.Number,
		payload.PullRequest.Title,
		payload.PullRequest.User.Login,
		payload.PullRequest.URL,
	)
}

func (h *Handler) handleListTasks(c *gin.Context) {
	var tasks []models.ReviewTask
	q := h.db.Model(&models.ReviewTask{}).Order("updated_at desc")
	if status := c.Query("status"); status != "" {
		q = q.Where("status = ?", status)
	}
	if err := q.Limit(100).Find(&tasks).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	counts := map[string]int64{}
	for _, s := range []string{models.ReviewStatusQueued, models.ReviewStatusProcessing, models.ReviewStatusCompleted, models.ReviewStatusFailed} {
		var n int64
		h.db.Model(&models.ReviewTask{}).Where("status = ?", s).Count(&n)
		counts[s] = n
	}

	c.JSON(http.StatusOK, gin.H{"tasks": tasks, "counts": counts})
}

func (h *Handler) handleGetTask(c *gin.Context) {
	var task models.ReviewTask
	if err := h.db.First(&task, "task_id = ?", strings.TrimPrefix(c.Param("id"), "/")).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "task not found"})
		return
	}
	c.JSON(http.StatusOK, task)
}

func containsString(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}

var errIgnored = errors.New("prreview: ignored by gating rules")
