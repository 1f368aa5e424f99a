package main

import (
	"fmt"
	"os"

	"github.com/hookyard/hookyard/internal/config"
	"github.com/hookyard/hookyard/internal/db"
	"github.com/hookyard/hookyard/internal/ghclient"
	"gorm.io/gorm"
)

// setupWorker loads config, connects and migrates the database, and builds
// a GitHub client authenticated with the token from the environment.
// Shared by the three worker subcommands; the gateway needs no GitHub
// client and loads its config and database itself in runGateway.
func setupWorker(configPath string) (*config.Config, *gorm.DB, *ghclient.Client, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load config: %w", err)
	}

	dbCfg := cfg.Database
	if p := os.Getenv(envDatabasePath); p != "" {
		dbCfg.Path = p
	}
	gormDB, err := db.Connect(dbCfg)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("connect database: %w", err)
	}
	if err := db.AutoMigrate(gormDB); err != nil {
		return nil, nil, nil, fmt.Errorf("migrate database: %w", err)
	}

	sec := loadSecrets()
	gh, err := ghclient.New(sec.GitHubToken, cfg.GitHub.APIBaseURL)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("build github client: %w", err)
	}

	return cfg, gormDB, gh, nil
}
