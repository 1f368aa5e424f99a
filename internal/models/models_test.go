package models

import (
	"reflect"
	"strings"
	"testing"
	"time"
)

// gormTag extracts the gorm tag from a struct field.
func gormTag(t *testing.T, typ reflect.Type, fieldName string) string {
	t.Helper()
	f, ok := typ.FieldByName(fieldName)
	if !ok {
		t.Fatalf("%s.%s: field not found", typ.Name(), fieldName)
	}
	return f.Tag.Get("gorm")
}

// assertGormTag checks that a struct field's gorm tag contains the expected value.
func assertGormTag(t *testing.T, typ reflect.Type, fieldName, expected string) {
	t.Helper()
	tag := gormTag(t, typ, fieldName)
	if !strings.Contains(tag, expected) {
		t.Errorf("%s.%s gorm tag = %q, want to contain %q", typ.Name(), fieldName, tag, expected)
	}
}

// assertFieldType checks that a struct field has the expected Go type.
func assertFieldType(t *testing.T, typ reflect.Type, fieldName, expectedType string) {
	t.Helper()
	f, ok := typ.FieldByName(fieldName)
	if !ok {
		t.Fatalf("%s.%s: field not found", typ.Name(), fieldName)
	}
	got := f.Type.String()
	if got != expectedType {
		t.Errorf("%s.%s type = %q, want %q", typ.Name(), fieldName, got, expectedType)
	}
}

func TestReviewTask_Fields(t *testing.T) {
	typ := reflect.TypeOf(ReviewTask{})

	assertGormTag(t, typ, "ID", "column:task_id")
	assertGormTag(t, typ, "ID", "primaryKey")
	assertGormTag(t, typ, "PRNumber", "index:idx_review_repo_pr")
	assertGormTag(t, typ, "Repo", "index:idx_review_repo_pr")
	assertGormTag(t, typ, "Status", "default:queued")
	assertGormTag(t, typ, "Status", "index")

	assertFieldType(t, typ, "ID", "string")
	assertFieldType(t, typ, "CreatedAt", "time.Time")
	assertFieldType(t, typ, "CompletedAt", "*time.Time")
}

func TestReviewTask_TableName(t *testing.T) {
	if got := (ReviewTask{}).TableName(); got != "review_tasks" {
		t.Errorf("TableName() = %q, want %q", got, "review_tasks")
	}
}

func TestTaskID(t *testing.T) {
	got := TaskID("acme/widgets", 42)
	want := "acme/widgets#42"
	if got != want {
		t.Errorf("TaskID() = %q, want %q", got, want)
	}
}

func TestCopyRecord_Fields(t *testing.T) {
	typ := reflect.TypeOf(CopyRecord{})

	assertGormTag(t, typ, "SourceRepo", "uniqueIndex:idx_copy_triple")
	assertGormTag(t, typ, "SourceIssueNumber", "uniqueIndex:idx_copy_triple")
	assertGormTag(t, typ, "TargetRepo", "uniqueIndex:idx_copy_triple")

	assertFieldType(t, typ, "ID", "uint")
	assertFieldType(t, typ, "CreatedAt", "time.Time")
}

func TestCopyRecord_TableName(t *testing.T) {
	if got := (CopyRecord{}).TableName(); got != "copy_records" {
		t.Errorf("TableName() = %q, want %q", got, "copy_records")
	}
}

func TestCommentSyncRecord_Fields(t *testing.T) {
	typ := reflect.TypeOf(CommentSyncRecord{})

	assertGormTag(t, typ, "SourceCommentID", "uniqueIndex:idx_sync_pair")
	assertGormTag(t, typ, "TargetRepo", "uniqueIndex:idx_sync_pair")
	assertGormTag(t, typ, "TargetIssueNumber", "uniqueIndex:idx_sync_pair")

	assertFieldType(t, typ, "SourceCommentID", "int64")
}

func TestCommentSyncRecord_TableName(t *testing.T) {
	if got := (CommentSyncRecord{}).TableName(); got != "comment_sync_records" {
		t.Errorf("TableName() = %q, want %q", got, "comment_sync_records")
	}
}

func TestScoreRecord_Fields(t *testing.T) {
	typ := reflect.TypeOf(ScoreRecord{})

	assertGormTag(t, typ, "ID", "column:score_id")
	assertGormTag(t, typ, "Repo", "index")
	assertGormTag(t, typ, "IssueNumber", "index")
	assertGormTag(t, typ, "Status", "default:queued")

	assertFieldType(t, typ, "CommentID", "*int64")
	assertFieldType(t, typ, "CompletedAt", "*time.Time")
}

func TestScoreRecord_TableName(t *testing.T) {
	if got := (ScoreRecord{}).TableName(); got != "score_records" {
		t.Errorf("TableName() = %q, want %q", got, "score_records")
	}
}

func TestScoreRecord_Instantiation(t *testing.T) {
	now := time.Now()
	commentID := int64(99)
	rec := ScoreRecord{
		ID:          "abc123",
		Repo:        "acme/widgets",
		IssueNumber: 7,
		CommentID:   &commentID,
		ContentType: ContentTypeBug,
		Status:      ScoreStatusQueued,
		CreatedAt:   now,
	}
	if rec.ContentType != ContentTypeBug {
		t.Errorf("ContentType = %q, want %q", rec.ContentType, ContentTypeBug)
	}
	if *rec.CommentID != 99 {
		t.Errorf("CommentID = %d, want 99", *rec.CommentID)
	}
}

func TestFeedbackPattern_Fields(t *testing.T) {
	typ := reflect.TypeOf(FeedbackPattern{})

	assertGormTag(t, typ, "ID", "column:pattern_id")
	assertGormTag(t, typ, "PatternType", "index")
	assertGormTag(t, typ, "Dimension", "index")
	assertGormTag(t, typ, "LastSeen", "index")

	assertFieldType(t, typ, "AvgScoreDeviation", "float64")
}

func TestFeedbackPattern_TableName(t *testing.T) {
	if got := (FeedbackPattern{}).TableName(); got != "feedback_patterns" {
		t.Errorf("TableName() = %q, want %q", got, "feedback_patterns")
	}
}

func TestPatternKey(t *testing.T) {
	got := PatternKey(FeedbackTooHarsh, DimensionClarity)
	want := "too_harsh:clarity"
	if got != want {
		t.Errorf("PatternKey() = %q, want %q", got, want)
	}
}

func TestFeedbackSnapshot_Fields(t *testing.T) {
	typ := reflect.TypeOf(FeedbackSnapshot{})

	assertGormTag(t, typ, "SnapshotDate", "index")
	assertFieldType(t, typ, "ID", "uint")
	assertFieldType(t, typ, "SnapshotDate", "time.Time")
}

func TestFeedbackSnapshot_TableName(t *testing.T) {
	if got := (FeedbackSnapshot{}).TableName(); got != "feedback_snapshots" {
		t.Errorf("TableName() = %q, want %q", got, "feedback_snapshots")
	}
}

func TestWebhookDelivery_Fields(t *testing.T) {
	typ := reflect.TypeOf(WebhookDelivery{})

	assertGormTag(t, typ, "DeliveryID", "uniqueIndex")
	assertGormTag(t, typ, "EventType", "index")
	assertGormTag(t, typ, "Repo", "index")
	assertGormTag(t, typ, "ReceivedAt", "index")

	assertFieldType(t, typ, "ID", "uint")
}

func TestWebhookDelivery_TableName(t *testing.T) {
	if got := (WebhookDelivery{}).TableName(); got != "webhook_deliveries" {
		t.Errorf("TableName() = %q, want %q", got, "webhook_deliveries")
	}
}
