// Package gateway implements the webhook-receiving, signature-verifying,
// event-routing front door in front of the PR-review, issue-copier, and
// issue-scorer workers.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hookyard/hookyard/internal/models"
	"gorm.io/gorm"
)

// Options configures the gateway server.
type Options struct {
	DB             *gorm.DB
	Port           int
	WebhookSecret  string
	WebUsername      string
	WebPassword      string
	DashboardTimeout time.Duration
	Dispatchers      Dispatchers

	// Worker base URLs for the dashboard's read-API fan-out. Empty when a
	// worker runs in-process only and has no separate HTTP surface to poll.
	PRReviewerURL  string
	IssueCopierURL string
	IssueScorerURL string
}

// prReviewerReadURL returns the PR-review worker's task-list endpoint.
func (o Options) prReviewerReadURL() string {
	if o.PRReviewerURL == "" {
		return ""
	}
	return o.PRReviewerURL + "/api/tasks"
}

// issueCopierReadURL returns the issue-copier worker's copy-list endpoint.
func (o Options) issueCopierReadURL() string {
	if o.IssueCopierURL == "" {
		return ""
	}
	return o.IssueCopierURL + "/api/issue-copies"
}

// issueScorerReadURL returns the issue-scorer worker's score-list endpoint.
func (o Options) issueScorerReadURL() string {
	if o.IssueScorerURL == "" {
		return ""
	}
	return o.IssueScorerURL + "/api/scores"
}

// webhookPayload is the subset of a GitHub webhook body the router needs
// to extract routing and audit information, without fully decoding the
// event-specific shape (that's each worker's job).
type webhookPayload struct {
	Action      string `json:"action"`
	Repository  struct {
		FullName string `json:"full_name"`
	} `json:"repository"`
	Sender struct {
		Login string `json:"login"`
	} `json:"sender"`
	PullRequest struct {
		Number int `json:"number"`
	} `json:"pull_request"`
	Issue struct {
		Number int `json:"number"`
	} `json:"issue"`
}

// NewRouter builds the gin.Engine serving the gateway's HTTP surface.
func NewRouter(opts Options) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	authEnabled := opts.WebPassword != ""

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "auth_enabled": authEnabled})
	})

	router.POST("/webhook", handleWebhook(opts))

	api := router.Group("/api")
	if authEnabled {
		username := opts.WebUsername
		if username == "" {
			username = "admin"
		}
		api.Use(gin.BasicAuth(gin.Accounts{username: opts.WebPassword}))
	}
	api.GET("/dashboard", handleDashboard(opts))
	api.GET("/deliveries", handleRecentDeliveries(opts.DB))

	return router
}

// handleWebhook verifies the signature, records the delivery, and fans
// out to the configured worker dispatchers.
func handleWebhook(opts Options) gin.HandlerFunc {
	return func(c *gin.Context) {
		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "cannot read body"})
			return
		}

		sig := c.GetHeader("X-Hub-Signature-256")
		if !VerifySignature(opts.WebhookSecret, body, sig) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid signature"})
			return
		}

		eventType := c.GetHeader("X-GitHub-Event")
		deliveryID := c.GetHeader("X-GitHub-Delivery")

		if eventType == "ping" {
			c.JSON(http.StatusOK, gin.H{"status": "success", "event": "ping"})
			return
		}

		var parsed webhookPayload
		_ = json.Unmarshal(body, &parsed) // best-effort; routing still works without it

		targets := routeFor(eventType, opts.Dispatchers)
		if len(targets) == 0 {
			c.JSON(http.StatusOK, gin.H{"status": "ignored"})
			return
		}

		routedTo := make([]string, 0, len(targets))
		errs := make([]string, 0)
		var dispatchErrs []error

		var wg sync.WaitGroup
		var mu sync.Mutex
		for _, d := range targets {
			wg.Add(1)
			go func(d Dispatcher) {
				defer wg.Done()
				ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
				defer cancel()
				err := d.Dispatch(ctx, eventType, body)

				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					slog.Error("gateway: dispatch failed", "worker", d.Name(), "error", err)
					errs = append(errs, fmt.Sprintf("%s: %v", d.Name(), err))
					dispatchErrs = append(dispatchErrs, err)
				} else {
					routedTo = append(routedTo, d.Name())
				}
			}(d)
		}
		wg.Wait()

		recordDelivery(opts.DB, deliveryID, eventType, parsed.Repository.FullName, routedTo)

		if len(dispatchErrs) == 0 {
			c.JSON(http.StatusOK, gin.H{
				"status":     "processed",
				"event_type": eventType,
				"routed_to":  routedTo,
				"errors":     errs,
			})
			return
		}

		// A downstream worker was unreachable or rejected the delivery; reply
		// with a non-2xx status so GitHub retries the whole delivery. 503
		// specifically when a worker's queue was full, 502 otherwise.
		statusCode := http.StatusBadGateway
		for _, derr := range dispatchErrs {
			var de *DispatchError
			if errors.As(derr, &de) && de.StatusCode == http.StatusServiceUnavailable {
				statusCode = http.StatusServiceUnavailable
				break
			}
		}
		respStatus := "partial"
		if len(routedTo) == 0 {
			respStatus = "failed"
		}
		c.JSON(statusCode, gin.H{
			"status":     respStatus,
			"event_type": eventType,
			"routed_to":  routedTo,
			"errors":     errs,
		})
	}
}

// recordDelivery persists an audit row for this delivery. A failed insert,
// such as a duplicate delivery_id from a GitHub redelivery, is logged as a
// warning and otherwise ignored.
func recordDelivery(db *gorm.DB, deliveryID, eventType, repo string, routedTo []string) {
	if db == nil || deliveryID == "" {
		return
	}
	routedJSON, _ := json.Marshal(routedTo)
	row := models.WebhookDelivery{
		DeliveryID: deliveryID,
		EventType:  eventType,
		Repo:       repo,
		RoutedTo:   string(routedJSON),
		ReceivedAt: time.Now(),
	}
	if err := db.Create(&row).Error; err != nil {
		slog.Warn("gateway: record delivery failed", "delivery_id", deliveryID, "error", err)
	}
}

// handleRecentDeliveries returns the most recent accepted webhook
// deliveries, backing the dashboard's "recent deliveries" panel.
func handleRecentDeliveries(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var rows []models.WebhookDelivery
		if err := db.Order("received_at desc").Limit(50).Find(&rows).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"deliveries": rows})
	}
}

// handleDashboard fans out to each worker's read API concurrently with a
// bounded timeout per call, aggregating whatever responds in time.
func handleDashboard(opts Options) gin.HandlerFunc {
	return func(c *gin.Context) {
		timeout := opts.DashboardTimeout
		if timeout <= 0 {
			timeout = 2 * time.Second
		}
		client := &http.Client{Timeout: timeout}

		result := gin.H{"timestamp": time.Now().UTC()}
		var mu sync.Mutex
		var wg sync.WaitGroup

		fetch := func(key, url string) {
			defer wg.Done()
			if url == "" {
				return
			}
			ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
			defer cancel()

			var data interface{}
			err := dashboardFetch(ctx, client, url, &data)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result[key] = gin.H{"error": err.Error()}
			} else {
				result[key] = data
			}
		}

		wg.Add(3)
		go fetch("pr_review", opts.prReviewerReadURL())
		go fetch("issue_copier", opts.issueCopierReadURL())
		go fetch("issue_scorer", opts.issueScorerReadURL())
		wg.Wait()

		c.JSON(http.StatusOK, result)
	}
}

// Start launches the gateway HTTP server, blocking until ctx is cancelled
// and then shutting down gracefully.
func Start(ctx context.Context, opts Options) error {
	if opts.Port <= 0 {
		opts.Port = 8080
	}
	router := NewRouter(opts)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", opts.Port),
		Handler: router,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("gateway: %w", err)
	}
	return nil
}
