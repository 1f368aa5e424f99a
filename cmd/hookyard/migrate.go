package main

import (
	"fmt"
	"os"

	"github.com/hookyard/hookyard/internal/config"
	"github.com/hookyard/hookyard/internal/db"
	"github.com/spf13/cobra"
)

func newMigrateCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the Hookyard database schema",
		Long:  "Connects to the configured database (sqlite by default) and runs AutoMigrate for every model.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate(cmd, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "hookyard.yaml", "path to Hookyard config file")
	return cmd
}

func runMigrate(cmd *cobra.Command, configPath string) error {
	out := cmd.OutOrStdout()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	fmt.Fprintf(out, "Loaded config from %s\n", configPath)

	dbCfg := cfg.Database
	if p := os.Getenv(envDatabasePath); p != "" {
		dbCfg.Path = p
	}

	gormDB, err := db.Connect(dbCfg)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	fmt.Fprintf(out, "Connected to %s database\n", dbCfg.Driver)

	if err := db.AutoMigrate(gormDB); err != nil {
		return err
	}
	fmt.Fprintf(out, "Migrated %d tables\n", len(db.AllModels()))

	fmt.Fprintln(out, "\nHookyard database migrated successfully.")
	return nil
}
