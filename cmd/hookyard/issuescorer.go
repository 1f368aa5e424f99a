package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/hookyard/hookyard/internal/issuescorer"
	"github.com/hookyard/hookyard/internal/logging"
	"github.com/spf13/cobra"
)

func newIssueScorerCmd() *cobra.Command {
	var (
		configPath string
		port       int
	)

	cmd := &cobra.Command{
		Use:   "issue-scorer",
		Short: "Run the issue-scorer worker",
		Long:  "Scores issue and comment quality with an AI CLI and learns from submitted feedback.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIssueScorer(cmd, configPath, port)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "hookyard.yaml", "path to Hookyard config file")
	cmd.Flags().IntVarP(&port, "port", "p", 0, "port to listen on (default 8083)")
	return cmd
}

func runIssueScorer(cmd *cobra.Command, configPath string, port int) error {
	cfg, gormDB, gh, err := setupWorker(configPath)
	if err != nil {
		return err
	}
	if _, err := logging.Setup(cfg.Logging); err != nil {
		return fmt.Errorf("setup logging: %w", err)
	}

	scoringCfg := cfg.IssueScoring
	if p := os.Getenv(envCLIPath); p != "" {
		scoringCfg.CLIPath = p
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

	return issuescorer.Start(ctx, issuescorer.Options{
		DB:   gormDB,
		GH:   gh,
		Cfg:  scoringCfg,
		Port: port,
	})
}
