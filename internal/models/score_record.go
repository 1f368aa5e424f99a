package models

import "time"

// Score record status values, mirroring ReviewTask's lifecycle.
const (
	ScoreStatusQueued     = "queued"
	ScoreStatusProcessing = "processing"
	ScoreStatusCompleted  = "completed"
	ScoreStatusFailed     = "failed"
)

// Content types an issue or comment is classified into before scoring.
const (
	ContentTypeBug        = "bug"
	ContentTypeTask       = "task"
	ContentTypeFeature    = "feature"
	ContentTypeTestResult = "test_result"
	ContentTypeComment    = "comment"
)

// Scoring dimensions.
const (
	DimensionFormat        = "format"
	DimensionContent       = "content"
	DimensionClarity       = "clarity"
	DimensionActionability = "actionability"
	DimensionOverall       = "overall"
)

// ScoreRecord is one scoring event for an issue or a comment on it.
type ScoreRecord struct {
	ID          string `gorm:"column:score_id;primaryKey;size:64"`
	Repo        string `gorm:"size:160;not null;index"`
	IssueNumber int    `gorm:"not null;index"`
	CommentID   *int64 // nil for issue-level scoring
	ContentType string `gorm:"size:16"`
	Title       string `gorm:"size:512"`
	Body        string `gorm:"type:text"`
	Author      string `gorm:"size:160"`
	IssueURL    string `gorm:"size:512"`

	FormatScore            int
	FormatFeedback         string `gorm:"type:text"`
	ContentScore           int
	ContentFeedback        string `gorm:"type:text"`
	ClarityScore           int
	ClarityFeedback        string `gorm:"type:text"`
	ActionabilityScore     int
	ActionabilityFeedback  string `gorm:"type:text"`
	OverallScore           int
	Suggestions            string `gorm:"type:text"`

	Status       string `gorm:"size:16;default:queued;index"`
	ErrorMessage string `gorm:"type:text"`
	UserFeedback string `gorm:"type:text"` // accumulated free-text feedback

	CreatedAt   time.Time
	CompletedAt *time.Time
}

// TableName pins the table name so it survives struct renames.
func (ScoreRecord) TableName() string { return "score_records" }
