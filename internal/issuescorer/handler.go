package issuescorer

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

// Handler serves the issue-scorer worker's HTTP surface: the webhook intake
// and the scores/feedback API backing the dashboard.
type Handler struct {
	db     *gorm.DB
	worker *Worker
	cfg    config.IssueScoringConfig
}

func NewHandler(db *gorm.DB, worker *Worker, cfg config.IssueScoringConfig) *Handler {
	return &Handler{db: db, worker: worker, cfg: cfg}
}

func (h *Handler) Register(router gin.IRouter) {
	router.POST("/webhook", h.handleWebhook)
	router.GET("/api/scores", h.handleListScores)
	// Score IDs contain "/" (from the repo name), so the rest of the path is
	// taken as a catch-all parameter.
	router.GET("/api/scores/*id", h.handleGetScore)
	router.POST("/api/scores/*id", h.handlePostFeedback)
	router.POST("/api/feedback/snapshot", h.handleTriggerSnapshot)
}

// scorablePayload captures the fields common to "issues" and "issue_comment"
// webhook deliveries.
type scorablePayload struct {
	Action     string `json:"action"`
	Repository struct {
		FullName string `json:"full_name"`
	} `json:"repository"`
	Issue struct {
		Number int    `json:"number"`
		Title  string `json:"title"`
		Body   string `json:"body"`
		URL    string `json:"html_url"`
		User   struct {
			Login string `json:"login"`
		} `json:"user"`
		Labels []struct {
			Name string `json:"name"`
		} `json:"labels"`
	} `json:"issue"`
	Comment struct {
		ID   int64  `json:"id"`
		Body string `json:"body"`
		User struct {
			Login string `json:"login"`
		} `json:"user"`
	} `json:"comment"`
}

func (p scorablePayload) labelNames() []string {
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
	var parsed scorablePayload
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

	var parsed scorablePayload
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

// handle applies the gating rules (enabled, target-repo membership,
// configured triggers, bot-comment-loop prevention) and, if accepted,
// submits a scoring job.
func (h *Handler) handle(eventType string, payload scorablePayload) error {
	if !h.cfg.Enabled {
		return errIgnored
	}
	if !containsString(h.cfg.TargetRepos, payload.Repository.FullName) {
		return errIgnored
	}

	switch eventType {
	case "issues":
		if !containsString(h.cfg.Triggers, payload.Action) {
			return errIgnored
		}
		return h.worker.EnqueueScore(
			payload.Repository.FullName, payload.Issue.Number, nil,
			payload.Issue.Title, payload.Issue.Body, payload.Issue.User.Login,
			payload.Issue.URL, payload.labelNames(),
		)
	case "issue_comment":
		if payload.Action != "created" {
			return errIgnored
		}
		if strings.Contains(payload.Comment.Body, scoreCommentMarker) {
			return errIgnored
		}
		if len(h.cfg.CommentTriggers) > 0 && !containsSubstringCI(h.cfg.CommentTriggers, payload.Comment.Body) {
			return errIgnored
		}
		commentID := payload.Comment.ID
		return h.worker.EnqueueScore(
			payload.Repository.FullName, payload.Issue.Number, &commentID,
			payload.Issue.Title, payload.Comment.Body, payload.Comment.User.Login,
			payload.Issue.URL, payload.labelNames(),
		)
	default:
		return errIgnored
	}
}

func (h *Handler) handleListScores(c *gin.Context) {
	var scores []models.ScoreRecord
	q := h.db.Model(&models.ScoreRecord{}).Order("created_at desc")
	if status := c.Query("status"); status != "" {
		q = q.Where("status = ?", status)
	}
	if repo := c.Query("repo"); repo != "" {
		q = q.Where("repo = ?", repo)
	}
	if err := q.Limit(100).Find(&scores).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	counts := map[string]int64{}
	for _, s := range []string{models.ScoreStatusQueued, models.ScoreStatusProcessing, models.ScoreStatusCompleted, models.ScoreStatusFailed} {
		var n int64
		h.db.Model(&models.ScoreRecord{}).Where("status = ?", s).Count(&n)
		counts[s] = n
	}

	c.JSON(http.StatusOK, gin.H{"scores": scores, "counts": counts})
}

func (h *Handler) handleGetScore(c *gin.Context) {
	var score models.ScoreRecord
	id := strings.TrimPrefix(c.Param("id"), "/")
	if err := h.db.First(&score, "score_id = ?", id).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "score not found"})
		return
	}
	c.JSON(http.StatusOK, score)
}

type feedbackRequest struct {
	Feedback string `json:"feedback"`
}

func (h *Handler) handlePostFeedback(c *gin.Context) {
	id, ok := strings.CutSuffix(strings.TrimPrefix(c.Param("id"), "/"), "/feedback")
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "score not found"})
		return
	}

	var req feedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Feedback == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "feedback is required"})
		return
	}

	if err := h.worker.IngestFeedback(id, req.Feedback); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "accepted"})
}

func (h *Handler) handleTriggerSnapshot(c *gin.Context) {
	snapshot, err := h.worker.TriggerSnapshot()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, snapshot)
}

func containsString(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}

// containsSubstringCI reports whether body contains any of triggers,
// case-insensitively.
func containsSubstringCI(triggers []string, body string) bool {
	lower := strings.ToLower(body)
	for _, t := range triggers {
		if strings.Contains(lower, strings.ToLower(t)) {
			return true
		}
	}
	return false
}

var errIgnored = errors.New("issuescorer: ignored by gating rules")
