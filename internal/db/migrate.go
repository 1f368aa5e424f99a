package db

import (
	"fmt"

	"github.com/hookyard/hookyard/internal/models"
	"gorm.io/gorm"
)

// AllModels returns every GORM model Hookyard persists.
func AllModels() []interface{} {
	return []interface{}{
		&models.ReviewTask{},
		&models.CopyRecord{},
		&models.CommentSyncRecord{},
		&models.ScoreRecord{},
		&models.FeedbackPattern{},
		&models.FeedbackSnapshot{},
		&models.WebhookDelivery{},
	}
}

// AutoMigrate creates or updates all Hookyard tables.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(AllModels()...); err != nil {
		return fmt.Errorf("db: auto-migrate: %w", err)
	}
	return nil
}
