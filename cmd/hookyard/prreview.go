package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/hookyard/hookyard/internal/logging"
	"github.com/hookyard/hookyard/internal/prreview"
	"github.com/spf13/cobra"
)

func newPRReviewCmd() *cobra.Command {
	var (
		configPath string
		port       int
	)

	cmd := &cobra.Command{
		Use:   "pr-review",
		Short: "Run the PR-review worker",
		Long:  "Reviews pull requests with an AI CLI and posts the result as a review comment.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPRReview(cmd, configPath, port)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "hookyard.yaml", "path to Hookyard config file")
	cmd.Flags().IntVarP(&port, "port", "p", 0, "port to listen on (default 8081)")
	return cmd
}

func runPRReview(cmd *cobra.Command, configPath string, port int) error {
	cfg, gormDB, gh, err := setupWorker(configPath)
	if err != nil {
		return err
	}
	if _, err := logging.Setup(cfg.Logging); err != nil {
		return fmt.Errorf("setup logging: %w", err)
	}

	reviewCfg := cfg.Review
	if p := os.Getenv(envCLIPath); p != "" {
		reviewCfg.CLIPath = p
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

	return prreview.Start(ctx, prreview.Options{
		DB:   gormDB,
		GH:   gh,
		Cfg:  reviewCfg,
		Port: port,
	})
}
