package issuescorer

import (
	"strings"

	"github.com/hookyard/hookyard/internal/models"
)

// classifyIssue determines an issue's content type from its labels first,
// falling back to title/body pattern heuristics. Comments are classified
// separately by the caller (always models.ContentTypeComment).
func classifyIssue(title, body string, labels []string) string {
	for _, l := range labels {
		switch strings.ToLower(l) {
		case "bug", "type:bug", "type: bug":
			return models.ContentTypeBug
		case "task", "type:task", "type: task":
			return models.ContentTypeTask
		case "feature", "enhancement", "type:feature", "type: feature", "request":
			return models.ContentTypeFeature
		case "test", "test result", "type:test", "type: test":
			return models.ContentTypeTestResult
		}
	}

	titleLower := strings.ToLower(title)
	bodyLower := strings.ToLower(body)

	switch {
	case strings.Contains(titleLower, "[task]") || strings.Contains(titleLower, "task"):
		return models.ContentTypeTask
	case strings.Contains(titleLower, "[request") || strings.Contains(titleLower, "request for features"):
		return models.ContentTypeFeature
	case strings.Contains(titleLower, "[test]") || strings.Contains(titleLower, "test result"):
		return models.ContentTypeTestResult
	case strings.Contains(titleLower, "[bug]") || strings.Contains(titleLower, "bug report"):
		return models.ContentTypeBug
	}

	switch {
	case strings.Contains(bodyLower, "## todo") || strings.Contains(bodyLower, "- [ ]"):
		return models.ContentTypeTask
	case strings.Contains(bodyLower, "## specification") || strings.Contains(bodyLower, "## reference"):
		return models.ContentTypeFeature
	case strings.Contains(bodyLower, "test case") ||
		(strings.Contains(bodyLower, "## issue overview") && strings.Contains(bodyLower, "## test result")) ||
		(strings.Contains(bodyLower, "## issue overview") && strings.Contains(bodyLower, "## test environment")):
		return models.ContentTypeTestResult
	}

	return models.ContentTypeBug
}
