package models

import "time"

// Copy record status values.
const (
	CopyStatusProcessing = "processing"
	CopyStatusSuccess    = "success"
	CopyStatusPartial    = "partial"
	CopyStatusFailed     = "failed"
)

// CopyRecord tracks one (source_issue -> target_repo) replication. The
// (SourceRepo, SourceIssueNumber, TargetRepo) triple is unique: a second
// successful replication attempt for the same triple must be a no-op.
type CopyRecord struct {
	ID                 uint   `gorm:"primaryKey;autoIncrement"`
	SourceRepo         string `gorm:"size:160;not null;uniqueIndex:idx_copy_triple"`
	SourceIssueNumber  int    `gorm:"not null;uniqueIndex:idx_copy_triple"`
	TargetRepo         string `gorm:"size:160;not null;uniqueIndex:idx_copy_triple"`
	TargetIssueNumber  int
	LabelsCopied       string `gorm:"type:text"` // JSON list of label names
	ImagesReuploaded   string `gorm:"type:text"` // JSON list of {original_url,new_url}
	Status             string `gorm:"size:16;index"`
	ErrorMessage       string `gorm:"type:text"`
	CreatedAt          time.Time
}

// TableName pins the table name so it survives struct renames.
func (CopyRecord) TableName() string { return "copy_records" }

// CommentSyncRecord ensures at-most-once mirroring of a source comment onto
// a target issue. Unique on (SourceCommentID, TargetRepo, TargetIssueNumber).
type CommentSyncRecord struct {
	ID                uint   `gorm:"primaryKey;autoIncrement"`
	SourceCommentID   int64  `gorm:"not null;uniqueIndex:idx_sync_pair"`
	SourceRepo        string `gorm:"size:160"`
	SourceIssueNumber int
	TargetRepo        string `gorm:"size:160;not null;uniqueIndex:idx_sync_pair"`
	TargetIssueNumber int    `gorm:"not null;uniqueIndex:idx_sync_pair"`
	TargetCommentID   int64
	Status            string `gorm:"size:16;index"`
	CreatedAt         time.Time
}

// TableName pins the table name so it survives struct renames.
func (CommentSyncRecord) TableName() string { return "comment_sync_records" }
