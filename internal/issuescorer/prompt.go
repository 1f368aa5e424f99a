package issuescorer

import (
	"fmt"
	"strings"

	"github.com/hookyard/hookyard/internal/config"
	"github.com/hookyard/hookyard/internal/models"
)

const scoreOutputContract = `Respond with a single fenced JSON object of the form:
` + "```json" + `
{
  "format": {"score": 0, "feedback": ""},
  "content": {"score": 0, "feedback": ""},
  "clarity": {"score": 0, "feedback": ""},
  "actionability": {"score": 0, "feedback": ""},
  "overall_score": 0,
  "suggestions": ""
}
` + "```" + `
Each score is an integer 0-100. Return only the JSON block, no other text.`

// rubricFor returns the content-type-specific scoring rubric.
func rubricFor(contentType string) string {
	switch contentType {
	case models.ContentTypeBug:
		return `This is a bug report. A well-formed report has:
- Links to related issues or references
- Environment details (firmware/hardware/bootloader versions, device model)
- A clear description of the problem
- Numbered reproduction steps
- Expected behavior
- Screenshots or attachments where relevant
Score format on adherence to this structure, content on completeness of each
field, clarity on how unambiguous the description and steps are, and
actionability on whether a developer could reproduce and fix the issue from
what's given.`
	case models.ContentTypeTask:
		return `This is a task. A well-formed task has:
- A description of what needs to be done and why
- A checklist of concrete todo items
- Links to related work
- A deadline or priority signal
Score format on structure and checklist usage, content on whether the
description and todos are complete, clarity on how unambiguous the goal is,
and actionability on whether the todo items are directly executable.`
	case models.ContentTypeFeature:
		return `This is a feature request. A well-formed request has:
- A clear problem or need description
- Product/platform/firmware version context
- A concrete specification of the requested behavior
- References to prior art or related requests
Score format on adherence to this structure, content on completeness, clarity
on how unambiguous the requested behavior is, and actionability on whether an
engineer could scope the work from what's given.`
	case models.ContentTypeTestResult:
		return `This is a test result report. A well-formed report has:
- An overview of what was tested and why
- Pass/fail results per test case
- Environment details (firmware/hardware versions, test devices)
- Details (logs, screenshots) for any failing case
Score format on structure and use of tables/lists, content on completeness of
results and environment info, clarity on how easy the results are to read,
and actionability on whether a failing case gives enough to reproduce it.`
	default:
		return `Score this content generally: format on markdown structure and
organization, content on whether it's complete and on-topic, clarity on how
easy it is to follow, and actionability on how useful it is toward resolving
whatever it's discussing.`
	}
}

// buildScoringPrompt assembles the per-event scoring prompt: rubric,
// payload, feedback insight block, and the required output contract.
func buildScoringPrompt(cfg config.IssueScoringConfig, contentType, title, body, author string, insightBlock string) string {
	var b strings.Builder

	fmt.Fprintf(&b, "You are scoring the quality of a GitHub %s.\n\n", contentTypeLabel(contentType))
	b.WriteString(rubricFor(contentType))
	b.WriteString("\n\n")

	if title != "" {
		fmt.Fprintf(&b, "Title: %s\n", title)
	}
	fmt.Fprintf(&b, "Author: %s\n\n", author)
	b.WriteString("Body:\n")
	b.WriteString(body)
	b.WriteString("\n\n")

	if insightBlock != "" {
		b.WriteString(insightBlock)
		b.WriteString("\n\n")
	}

	language := cfg.Language
	if language == "" {
		language = "en"
	}
	fmt.Fprintf(&b, "Respond in language: %s\n\n", language)

	b.WriteString(scoreOutputContract)
	b.WriteString("\n")

	return b.String()
}

func contentTypeLabel(contentType string) string {
	if contentType == models.ContentTypeComment {
		return "comment"
	}
	return "issue"
}

// buildInsightBlock formats FeedbackPatterns into the textual block injected
// into scoring prompts. Returns "" when there's nothing worth surfacing.
func buildInsightBlock(patterns []models.FeedbackPattern, totalFeedbacks int64) string {
	if len(patterns) == 0 {
		return ""
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Recent calibration feedback (%d items, %d recurring patterns):\n", totalFeedbacks, len(patterns))

	for _, p := range patterns {
		direction := "consider loosening"
		if p.AvgScoreDeviation < 0 {
			direction = "consider tightening"
		}
		fmt.Fprintf(&b, "- %s: %s, users think scores are on average %.0f points too %s (seen %d times)\n",
			p.Dimension, direction, absFloat(p.AvgScoreDeviation), deviationWord(p.AvgScoreDeviation), p.OccurrenceCount)
	}

	return b.String()
}

func deviationWord(deviation float64) string {
	if deviation < 0 {
		return "high"
	}
	return "low"
}

func absFloat(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
