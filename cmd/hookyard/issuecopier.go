package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/hookyard/hookyard/internal/issuecopier"
	"github.com/hookyard/hookyard/internal/logging"
	"github.com/spf13/cobra"
)

func newIssueCopierCmd() *cobra.Command {
	var (
		configPath string
		port       int
	)

	cmd := &cobra.Command{
		Use:   "issue-copier",
		Short: "Run the issue-copier worker",
		Long:  "Replicates labeled issues into target repositories and mirrors follow-up comments.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIssueCopier(cmd, configPath, port)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "hookyard.yaml", "path to Hookyard config file")
	cmd.Flags().IntVarP(&port, "port", "p", 0, "port to listen on (default 8082)")
	return cmd
}

func runIssueCopier(cmd *cobra.Command, configPath string, port int) error {
	cfg, gormDB, gh, err := setupWorker(configPath)
	if err != nil {
		return err
	}
	if _, err := logging.Setup(cfg.Logging); err != nil {
		return fmt.Errorf("setup logging: %w", err)
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

	return issuecopier.Start(ctx, issuecopier.Options{
		DB:   gormDB,
		GH:   gh,
		Cfg:  cfg.IssueCopy,
		Port: port,
	})
}
