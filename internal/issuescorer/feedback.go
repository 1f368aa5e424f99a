package issuescorer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/hookyard/hookyard/internal/aiagent"
	"github.com/hookyard/hookyard/internal/config"
	"github.com/hookyard/hookyard/internal/models"
	"gorm.io/gorm"
)

// feedbackAnalysis is the structured result of analyzing one free-text
// feedback item against a ScoreRecord.
type feedbackAnalysis struct {
	Sentiment           string `json:"sentiment"`
	FeedbackType        string `json:"feedback_type"`
	Dimension           string `json:"dimension"`
	ScoreDeviation      int    `json:"score_deviation"`
	IdentifiedIssue     string `json:"identified_issue"`
	SuggestedAdjustment string `json:"suggested_adjustment"`
}

const feedbackAnalysisContract = `Respond with a single fenced JSON object of the form:
` + "```json" + `
{
  "sentiment": "positive|negative|neutral",
  "feedback_type": "too_harsh|too_lenient|missed_issue|good_feedback|unclear|other",
  "dimension": "format|content|clarity|actionability|overall",
  "score_deviation": 0,
  "identified_issue": "",
  "suggested_adjustment": ""
}
` + "```" + `
score_deviation is a signed integer: how many points higher (positive) or
lower (negative) the user thinks the score should have been. Return only the
JSON block, no other text.`

// analyzeFeedback sends feedbackText to the AI CLI for structured analysis,
// falling back to rule-based bilingual keyword matching if the CLI is
// unconfigured or fails.
func analyzeFeedback(ctx context.Context, cfg config.IssueScoringConfig, score models.ScoreRecord, feedbackText string) feedbackAnalysis {
	cliPath := cfg.CLIPath
	if cliPath == "" {
		return ruleBasedAnalysis(feedbackText, score)
	}

	prompt := buildFeedbackAnalysisPrompt(score, feedbackText)
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	result, err := aiagent.Run(ctx, aiagent.Options{
		Binary:  cliPath,
		Mode:    aiagent.ArgMode,
		Prompt:  prompt,
		Timeout: timeout,
	})
	if err != nil || result.ExitCode != 0 || strings.TrimSpace(result.Stdout) == "" {
		slog.Warn("issuescorer: feedback analysis CLI unavailable, using rule-based fallback")
		return ruleBasedAnalysis(feedbackText, score)
	}

	var analysis feedbackAnalysis
	if err := json.Unmarshal([]byte(extractFencedJSON(result.Stdout)), &analysis); err != nil {
		slog.Warn("issuescorer: feedback analysis response unparseable, using rule-based fallback", "error", err)
		return ruleBasedAnalysis(feedbackText, score)
	}
	return analysis
}

func buildFeedbackAnalysisPrompt(score models.ScoreRecord, feedbackText string) string {
	var b strings.Builder
	b.WriteString("A user left feedback on an automated content-quality score. Analyze it.\n\n")
	fmt.Fprintf(&b, "Original scores: format=%d content=%d clarity=%d actionability=%d overall=%d\n\n",
		score.FormatScore, score.ContentScore, score.ClarityScore, score.ActionabilityScore, score.OverallScore)
	b.WriteString("User feedback:\n")
	b.WriteString(feedbackText)
	b.WriteString("\n\n")
	b.WriteString(feedbackAnalysisContract)
	return b.String()
}

// feedbackKeywords holds bilingual (English/Chinese) keyword sets per
// feedback_type, used by the rule-based fallback.
var feedbackKeywords = map[string][]string{
	models.FeedbackTooHarsh: {
		"too harsh", "too strict", "unfair", "太嚴格", "太嚴厲", "評分太低", "過於苛刻", "不公平", "太苛刻", "太低了", "評太低",
	},
	models.FeedbackTooLenient: {
		"too lenient", "too generous", "太寬鬆", "太寬容", "評分太高", "過於寬容", "太高了", "評太高", "不夠嚴格",
	},
	models.FeedbackMissedIssue: {
		"missed", "overlooked", "沒注意到", "忽略了", "漏掉了", "沒發現", "應該指出", "未提及", "沒提到",
	},
	models.FeedbackGood: {
		"accurate", "helpful", "spot on", "準確", "中肯", "很好", "有幫助", "很有用", "精準", "到位",
	},
}

// dimensionKeywords holds bilingual keyword sets used to guess the affected
// dimension when the feedback text doesn't name it explicitly.
var dimensionKeywords = map[string][]string{
	models.DimensionFormat:        {"format", "formatting", "格式", "排版", "標題", "title"},
	models.DimensionContent:       {"content", "completeness", "內容", "完整性", "詳細", "detail"},
	models.DimensionClarity:       {"clarity", "expression", "understanding", "清晰", "表達", "理解"},
	models.DimensionActionability: {"actionable", "specific", "steps", "可操作", "具體", "步驟"},
}

// ruleBasedAnalysis is the fallback analyzer used when the AI CLI is
// unavailable, grounded on the keyword tables above.
func ruleBasedAnalysis(feedbackText string, score models.ScoreRecord) feedbackAnalysis {
	lower := strings.ToLower(feedbackText)

	sentiment := "neutral"
	if containsAny(lower, feedbackKeywords[models.FeedbackGood]) {
		sentiment = "positive"
	} else if containsAny(lower, feedbackKeywords[models.FeedbackTooHarsh]) ||
		containsAny(lower, feedbackKeywords[models.FeedbackTooLenient]) ||
		containsAny(lower, feedbackKeywords[models.FeedbackMissedIssue]) {
		sentiment = "negative"
	}

	feedbackType := models.FeedbackOther
	for _, ft := range []string{models.FeedbackTooHarsh, models.FeedbackTooLenient, models.FeedbackMissedIssue, models.FeedbackGood} {
		if containsAny(lower, feedbackKeywords[ft]) {
			feedbackType = ft
			break
		}
	}
	if feedbackType == models.FeedbackOther && sentiment == "neutral" {
		feedbackType = models.FeedbackUnclear
	}

	dimension := models.DimensionOverall
	for _, d := range []string{models.DimensionFormat, models.DimensionContent, models.DimensionClarity, models.DimensionActionability} {
		if containsAny(lower, dimensionKeywords[d]) {
			dimension = d
			break
		}
	}

	deviation := extractScoreDeviation(feedbackText, score.OverallScore)

	summary := feedbackText
	if len(summary) > 100 {
		summary = summary[:100]
	}

	return feedbackAnalysis{
		Sentiment:           sentiment,
		FeedbackType:        feedbackType,
		Dimension:           dimension,
		ScoreDeviation:      deviation,
		IdentifiedIssue:     summary,
		SuggestedAdjustment: fmt.Sprintf("review %s scoring criteria", dimension),
	}
}

func containsAny(haystack string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(haystack, strings.ToLower(n)) {
			return true
		}
	}
	return false
}

// extractScoreDeviation looks for a suggested numeric score in feedbackText
// and returns its signed deviation from currentScore, or 0 if none is found.
func extractScoreDeviation(feedbackText string, currentScore int) int {
	fields := strings.FieldsFunc(feedbackText, func(r rune) bool {
		return r < '0' || r > '9'
	})
	for _, f := range fields {
		n, err := strconv.Atoi(f)
		if err != nil || n < 0 || n > 100 || n == currentScore {
			continue
		}
		return n - currentScore
	}
	return 0
}

// updateFeedbackPattern applies the running-mean update described by
// FeedbackPattern's invariants: increment occurrence_count, fold the new
// deviation into avg_score_deviation, append the example (capped at 5), and
// refresh last_seen/suggested_adjustment. Runs inside a transaction so
// concurrent feedback on the same (feedback_type, dimension) serializes.
func updateFeedbackPattern(db *gorm.DB, analysis feedbackAnalysis, feedbackText string) error {
	key := models.PatternKey(analysis.FeedbackType, analysis.Dimension)
	now := time.Now().UTC()
	truncated := feedbackText
	if len(truncated) > 200 {
		truncated = truncated[:200]
	}

	return db.Transaction(func(tx *gorm.DB) error {
		var pattern models.FeedbackPattern
		err := tx.Where("pattern_id = ?", key).First(&pattern).Error

		if err == gorm.ErrRecordNotFound {
			examples, _ := json.Marshal([]string{truncated})
			pattern = models.FeedbackPattern{
				ID:                  key,
				PatternType:         analysis.FeedbackType,
				Dimension:           analysis.Dimension,
				OccurrenceCount:     1,
				AvgScoreDeviation:   float64(analysis.ScoreDeviation),
				ExampleFeedbacks:    string(examples),
				IdentifiedIssue:     analysis.IdentifiedIssue,
				SuggestedAdjustment: analysis.SuggestedAdjustment,
				LastSeen:            now,
				CreatedAt:           now,
				UpdatedAt:           now,
			}
			return tx.Create(&pattern).Error
		}
		if err != nil {
			return fmt.Errorf("issuescorer: load feedback pattern %s: %w", key, err)
		}

		newCount := pattern.OccurrenceCount + 1
		newMean := pattern.AvgScoreDeviation + (float64(analysis.ScoreDeviation)-pattern.AvgScoreDeviation)/float64(newCount)

		var examples []string
		_ = json.Unmarshal([]byte(pattern.ExampleFeedbacks), &examples)
		examples = append(examples, truncated)
		if len(examples) > 5 {
			examples = examples[len(examples)-5:]
		}
		examplesJSON, _ := json.Marshal(examples)

		updates := map[string]interface{}{
			"occurrence_count":     newCount,
			"avg_score_deviation":  newMean,
			"example_feedbacks":    string(examplesJSON),
			"suggested_adjustment": analysis.SuggestedAdjustment,
			"last_seen":            now,
			"updated_at":           now,
		}
		return tx.Model(&models.FeedbackPattern{}).Where("pattern_id = ?", key).Updates(updates).Error
	})
}

// queryInsights loads the FeedbackPatterns eligible for prompt injection:
// last windowDays days, occurrence_count >= minOccurrences, ordered by
// occurrence_count descending. Also returns the total feedback count over
// the same window.
func queryInsights(db *gorm.DB, windowDays, minOccurrences int) ([]models.FeedbackPattern, int64, error) {
	if windowDays <= 0 {
		windowDays = 30
	}
	if minOccurrences <= 0 {
		minOccurrences = 2
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -windowDays)

	var patterns []models.FeedbackPattern
	if err := db.Where("last_seen >= ? AND occurrence_count >= ?", cutoff, minOccurrences).
		Order("occurrence_count desc").Limit(10).Find(&patterns).Error; err != nil {
		return nil, 0, fmt.Errorf("issuescorer: query feedback patterns: %w", err)
	}

	var total int64
	if err := db.Model(&models.ScoreRecord{}).
		Where("user_feedback IS NOT NULL AND user_feedback != '' AND created_at >= ?", cutoff).
		Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("issuescorer: count feedback: %w", err)
	}

	return patterns, total, nil
}

// computeSnapshot aggregates the last 24h of ScoreRecord.user_feedback into
// a FeedbackSnapshot: totals by rule-based sentiment, top issues, and the
// general guidance produced by insight synthesis.
func computeSnapshot(db *gorm.DB) (*models.FeedbackSnapshot, error) {
	cutoff := time.Now().UTC().Add(-24 * time.Hour)

	var scored []models.ScoreRecord
	if err := db.Where("user_feedback IS NOT NULL AND user_feedback != '' AND created_at >= ?", cutoff).
		Find(&scored).Error; err != nil {
		return nil, fmt.Errorf("issuescorer: load feedback for snapshot: %w", err)
	}
	if len(scored) == 0 {
		return persistEmptySnapshot(db)
	}

	var positive, negative, neutral int
	for _, s := range scored {
		lower := strings.ToLower(s.UserFeedback)
		switch {
		case containsAny(lower, feedbackKeywords[models.FeedbackGood]):
			positive++
		case containsAny(lower, feedbackKeywords[models.FeedbackTooHarsh]) || containsAny(lower, feedbackKeywords[models.FeedbackTooLenient]):
			negative++
		default:
			neutral++
		}
	}

	patterns, _, err := queryInsights(db, 30, 2)
	if err != nil {
		return nil, err
	}
	var topIssues []string
	for _, p := range patterns {
		topIssues = append(topIssues, fmt.Sprintf("%s (%d occurrences)", p.IdentifiedIssue, p.OccurrenceCount))
	}
	insightBlock := buildInsightBlock(patterns, int64(len(scored)))
	var guidance []string
	if insightBlock != "" {
		guidance = strings.Split(strings.TrimSpace(insightBlock), "\n")
	}

	topIssuesJSON, _ := json.Marshal(topIssues)
	guidanceJSON, _ := json.Marshal(guidance)

	snapshot := &models.FeedbackSnapshot{
		SnapshotDate:      time.Now().UTC(),
		TotalPositive:     positive,
		TotalNegative:     negative,
		TotalNeutral:      neutral,
		TotalOverall:      len(scored),
		TopIssues:         string(topIssuesJSON),
		LearningInsights:  string(guidanceJSON),
		PromptAdjustments: string(guidanceJSON),
		CreatedAt:         time.Now().UTC(),
	}
	if err := db.Create(snapshot).Error; err != nil {
		return nil, fmt.Errorf("issuescorer: persist feedback snapshot: %w", err)
	}
	return snapshot, nil
}

// persistEmptySnapshot records the audit row for a window with no feedback
// at all. The snapshot is still persisted, with zeroed counts and a digest
// noting there was no activity, since the snapshot itself is an audit
// record and not just a carrier for insights.
func persistEmptySnapshot(db *gorm.DB) (*models.FeedbackSnapshot, error) {
	emptyList, _ := json.Marshal([]string{})
	digest, _ := json.Marshal([]string{"no activity"})

	snapshot := &models.FeedbackSnapshot{
		SnapshotDate:      time.Now().UTC(),
		TopIssues:         string(emptyList),
		LearningInsights:  string(digest),
		PromptAdjustments: string(emptyList),
		CreatedAt:         time.Now().UTC(),
	}
	if err := db.Create(snapshot).Error; err != nil {
		return nil, fmt.Errorf("issuescorer: persist feedback snapshot: %w", err)
	}
	return snapshot, nil
}
