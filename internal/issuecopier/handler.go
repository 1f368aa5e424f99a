package issuecopier

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/hookyard/hookyard/internal/config"
	"github.com/hookyard/hookyard/internal/models"
	"github.com/hookyard/hookyard/internal/workerpool"
	"gorm.io/gorm"
)

// Handler serves the issue-copier worker's HTTP surface: the webhook intake
// and a small read-only API backing the dashboard.
type Handler struct {
	db     *gorm.DB
	worker *Worker
	cfg    config.IssueCopyConfig
}

// NewHandler builds a Handler wired to worker.
func NewHandler(db *gorm.DB, worker *Worker, cfg config.IssueCopyConfig) *Handler {
	return &Handler{db: db, worker: worker, cfg: cfg}
}

// Register mounts the worker's routes on router.
func (h *Handler) Register(router gin.IRouter) {
	router.POST("/webhook", h.handleWebhook)
	router.GET("/api/issue-copies", h.handleListCopies)
	router.GET("/api/issue-copies/stats", h.handleCopyStats)
	router.GET("/api/comment-syncs", h.handleListCommentSyncs)
}

// issuePayload captures the fields common to "issues" and "issue_comment"
// webhook deliveries.
type issuePayload struct {
	Action     string `json:"action"`
	Repository struct {
		FullName string `json:"full_name"`
	} `json:"repository"`
	Issue struct {
		Number int `json:"number"`
		Labels []struct {
			Name string `json:"name"`
		} `json:"labels"`
	} `json:"issue"`
	Comment struct {
		ID int64 `json:"id"`
	} `json:"comment"`
}

func (p issuePayload) labelNames() []string {
	var names []string
	for _, l := range p.Issue.Labels {
		names = append(names, l.Name)
	}
	return names
}

// HandleEvent is the in-process Dispatcher entrypoint: it lets the gateway
// call directly into the worker without an HTTP hop.
func (h *Handler) HandleEvent(ctx context.Context, eventType string, payload []byte) error {
	if eventType != "issues" && eventType != "issue_comment" {
		return nil
	}
	var parsed issuePayload
	if err := json.Unmarshal(payload, &parsed); err != nil {
		return err
	}
	return h.handle(eventType, parsed)
}

func (h *Handler) handleWebhook(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot read body"})
		return
	}

	eventType := c.GetHeader("X-GitHub-Event")
	if eventType != "issues" && eventType != "issue_comment" {
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
		return
	}

	var parsed issuePayload
	if err := json.Unmarshal(body, &parsed); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot parse payload"})
		return
	}

	if err := h.handle(eventType, parsed); err != nil {
		if errors.Is(err, workerpool.ErrQueueFull) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "queue full"})
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"status": "ignored"})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"status": "accepted"})
}

// handle applies the gating rules (enabled, source repo match, configured
// triggers) and, if accepted, enqueues work on the worker.
func (h *Handler) handle(eventType string, payload issuePayload) error {
	if !h.cfg.Enabled {
		return errIgnored
	}
	if payload.Repository.FullName != h.cfg.SourceRepo {
		return errIgnored
	}

	switch eventType {
	case "issues":
		if !containsString(h.cfg.Triggers, payload.Action) {
			return errIgnored
		}
		return h.worker.EnqueueIssueCopy(payload.Repository.FullName, payload.Issue.Number, payload.labelNames())
	case "issue_comment":
		if payload.Action != "created" {
			return errIgnored
		}
		return h.worker.EnqueueCommentMirror(payload.Repository.FullName, payload.Issue.Number, payload.Comment.ID)
	default:
		return errIgnored
	}
}

func (h *Handler) handleListCopies(c *gin.Context) {
	var records []models.CopyRecord
	q := h.db.Model(&models.CopyRecord{}).Order("created_at desc")
	if status := c.Query("status"); status != "" {
		q = q.Where("status = ?", status)
	}
	if err := q.Limit(100).Find(&records).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"copies": records})
}

func (h *Handler) handleCopyStats(c *gin.Context) {
	counts := map[string]int64{}
	for _, s := range []string{models.CopyStatusSuccess, models.CopyStatusPartial, models.CopyStatusFailed} {
		var n int64
		h.db.Model(&models.CopyRecord{}).Where("status = ?", s).Count(&n)
		counts[s] = n
	}
	c.JSON(http.StatusOK, gin.H{"counts": counts})
}

func (h *Handler) handleListCommentSyncs(c *gin.Context) {
	var records []models.CommentSyncRecord
	if err := h.db.Model(&models.CommentSyncRecord{}).Order("created_at desc").Limit(100).Find(&records).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"comment_syncs": records})
}

func containsString(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}

var errIgnored = errors.New("issuecopier: ignored by gating rules")
