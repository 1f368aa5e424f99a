package issuescorer

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hookyard/hookyard/internal/config"
	"github.com/hookyard/hookyard/internal/ghclient"
	"gorm.io/gorm"
)

// Options configures the standalone HTTP server for the issue-scorer
// worker, used when it runs as its own process rather than in-process
// under the gateway.
type Options struct {
	DB   *gorm.DB
	GH   *ghclient.Client
	Cfg  config.IssueScoringConfig
	Port int
}

func newRouter(worker *Worker, cfg config.IssueScoringConfig, db *gorm.DB) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	NewHandler(db, worker, cfg).Register(router)
	return router
}

// Start runs the issue-scorer worker's HTTP server until ctx is cancelled,
// shutting down both the server and the worker's background scheduler
// gracefully.
func Start(ctx context.Context, opts Options) error {
	if opts.Port <= 0 {
		opts.Port = 8083
	}
	worker := NewWorker(opts.DB, opts.GH, opts.Cfg)
	router := newRouter(worker, opts.Cfg, opts.DB)
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", opts.Port),
		Handler: router,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
		worker.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("issuescorer: %w", err)
	}
	return nil
}
