package models

import "time"

// Feedback pattern types, classifying what a user's feedback on a score
// implies about the scorer's behavior.
const (
	FeedbackTooHarsh     = "too_harsh"
	FeedbackTooLenient   = "too_lenient"
	FeedbackMissedIssue  = "missed_issue"
	FeedbackGood         = "good_feedback"
	FeedbackUnclear      = "unclear"
	FeedbackOther        = "other"
)

// FeedbackPattern aggregates user_feedback strings by (pattern_type,
// dimension), maintaining a running mean of the signed score deviations
// those feedback items reported. Primary key is "{feedback_type}:{dimension}".
type FeedbackPattern struct {
	ID                 string `gorm:"column:pattern_id;primaryKey;size:96"`
	PatternType         string `gorm:"size:16;not null;index"`
	Dimension           string `gorm:"size:16;not null;index"`
	OccurrenceCount     int    `gorm:"not null;default:1"`
	AvgScoreDeviation    float64
	ExampleFeedbacks    string `gorm:"type:text"` // JSON list, capped at 5
	IdentifiedIssue     string `gorm:"type:text"`
	SuggestedAdjustment string `gorm:"type:text"`
	LastSeen            time.Time `gorm:"index"`
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// TableName pins the table name so it survives struct renames.
func (FeedbackPattern) TableName() string { return "feedback_patterns" }

// PatternKey builds the "{feedback_type}:{dimension}" primary key.
func PatternKey(feedbackType, dimension string) string {
	return feedbackType + ":" + dimension
}

// FeedbackSnapshot is a periodic aggregate over recent ScoreRecord.UserFeedback.
type FeedbackSnapshot struct {
	ID                uint      `gorm:"primaryKey;autoIncrement"`
	SnapshotDate      time.Time `gorm:"index"`
	TotalPositive     int
	TotalNegative     int
	TotalNeutral      int
	TotalOverall      int
	TopIssues         string `gorm:"type:text"` // JSON list
	LearningInsights  string `gorm:"type:text"` // JSON list
	PromptAdjustments string `gorm:"type:text"` // JSON list
	CreatedAt         time.Time
}

// TableName pins the table name so it survives struct renames.
func (FeedbackSnapshot) TableName() string { return "feedback_snapshots" }
