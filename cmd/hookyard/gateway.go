package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hookyard/hookyard/internal/config"
	"github.com/hookyard/hookyard/internal/db"
	"github.com/hookyard/hookyard/internal/gateway"
	"github.com/hookyard/hookyard/internal/logging"
	"github.com/spf13/cobra"
)

func newGatewayCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "gateway",
		Short: "Run the webhook-receiving gateway",
		Long:  "Verifies GitHub webhook signatures, routes events to the configured workers, and serves the aggregated dashboard API.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGateway(cmd, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "hookyard.yaml", "path to Hookyard config file")
	return cmd
}

func runGateway(cmd *cobra.Command, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if _, err := logging.Setup(cfg.Logging); err != nil {
		return fmt.Errorf("setup logging: %w", err)
	}

	sec := loadSecrets()

	dbCfg := cfg.Database
	if p := os.Getenv(envDatabasePath); p != "" {
		dbCfg.Path = p
	}
	gormDB, err := db.Connect(dbCfg)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	if err := db.AutoMigrate(gormDB); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}

	prURL := envOrDefault(envPRReviewerURL, cfg.Gateway.PRReviewerURL)
	icURL := envOrDefault(envIssueCopierURL, cfg.Gateway.IssueCopierURL)
	isURL := envOrDefault(envIssueScorerURL, cfg.Gateway.IssueScorerURL)

	dispatchTimeout := 10 * time.Second
	var dispatchers gateway.Dispatchers
	if prURL != "" {
		dispatchers.PRReviewer = gateway.NewHTTPDispatcher("pr-reviewer", prURL, dispatchTimeout)
	}
	if icURL != "" {
		dispatchers.IssueCopier = gateway.NewHTTPDispatcher("issue-copier", icURL, dispatchTimeout)
	}
	if isURL != "" {
		dispatchers.IssueScorer = gateway.NewHTTPDispatcher("issue-scorer", isURL, dispatchTimeout)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		fmt.Fprintf(cmd.OutOrStdout(), "\nReceived %s, shutting down...\n", sig)
		cancel()
	}()

	return gateway.Start(ctx, gateway.Options{
		DB:               gormDB,
		Port:             envIntOrDefault(envGatewayPort, cfg.Gateway.Port),
		WebhookSecret:    sec.WebhookSecret,
		WebUsername:      envOrDefault(envWebUsername, cfg.Gateway.WebUsername),
		WebPassword:      sec.WebPassword,
		DashboardTimeout: time.Duration(cfg.Gateway.DashboardTimeoutMS) * time.Millisecond,
		Dispatchers:      dispatchers,
		PRReviewerURL:    prURL,
		IssueCopierURL:   icURL,
		IssueScorerURL:   isURL,
	})
}
