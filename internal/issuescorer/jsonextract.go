package issuescorer

import "strings"

// extractFencedJSON pulls a JSON object out of an AI response that may wrap
// it in a ```json fenced block or surround it with prose. It tries, in
// order: a ```json fence, a bare ``` fence, then the raw text itself.
func extractFencedJSON(response string) string {
	response = strings.TrimSpace(response)

	if start := strings.Index(response, "```json"); start >= 0 {
		rest := response[start+len("```json"):]
		if end := strings.Index(rest, "```"); end >= 0 {
			return strings.TrimSpace(rest[:end])
		}
	}
	if start := strings.Index(response, "```"); start >= 0 {
		rest := response[start+3:]
		if end := strings.Index(rest, "```"); end >= 0 {
			return strings.TrimSpace(rest[:end])
		}
	}
	return response
}
