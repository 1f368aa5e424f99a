package models

import (
	"strconv"
	"time"
)

// Review task status values. A run moves queued -> processing ->
// {completed, failed}; prreview's Enqueue puts a completed or failed task
// back to queued for a new run.
const (
	ReviewStatusQueued     = "queued"
	ReviewStatusProcessing = "processing"
	ReviewStatusCompleted  = "completed"
	ReviewStatusFailed     = "failed"
)

// ReviewTask is one automated-review run for a single (repo, pr_number).
type ReviewTask struct {
	ID           string `gorm:"column:task_id;primaryKey;size:160"`
	PRNumber     int    `gorm:"not null;index:idx_review_repo_pr"`
	Repo         string `gorm:"size:160;not null;index:idx_review_repo_pr"`
	PRTitle      string `gorm:"size:512"`
	PRAuthor     string `gorm:"size:160"`
	PRURL        string `gorm:"size:512"`
	Status       string `gorm:"size:16;default:queued;index"`
	Progress     int    `gorm:"default:0"`
	Message      string `gorm:"type:text"`
	ErrorMessage string `gorm:"type:text"`
	ReviewContent string `gorm:"type:text"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
	CompletedAt  *time.Time
}

// TableName pins the table name so it survives struct renames.
func (ReviewTask) TableName() string { return "review_tasks" }

// TaskID builds the stable "repo#pr_number" identifier for a review task.
func TaskID(repo string, prNumber int) string {
	return repo + "#" + strconv.Itoa(prNumber)
}
