package prreview

import (
	"fmt"
	"strings"

	"github.com/hookyard/hookyard/internal/config"
)

// attributionLine is appended to every posted review comment so readers can
// tell it came from the automated reviewer.
const attributionLine = "\n\n---\n*Automated review by Hookyard.*"

// buildPrompt assembles the review prompt. It always includes PR metadata,
// the file-scoped diff, the focus-area list, and a language directive.
func buildPrompt(cfg config.ReviewConfig, repo string, prNumber int, title, author, diff string) string {
	var b strings.Builder

	fmt.Fprintf(&b, "You are reviewing pull request %s#%d.\n", repo, prNumber)
	fmt.Fprintf(&b, "Title: %s\n", title)
	fmt.Fprintf(&b, "Author: %s\n\n", author)

	if len(cfg.FocusAreas) > 0 {
		fmt.Fprintf(&b, "Focus areas: %s\n\n", strings.Join(cfg.FocusAreas, ", "))
	}

	language := cfg.Language
	if language == "" {
		language = "en"
	}
	fmt.Fprintf(&b, "Respond in language: %s\n\n", language)

	b.WriteString("Diff:\n")
	b.WriteString(diff)
	b.WriteString("\n\nWrite a concise code review covering correctness, readability, and risk. ")
	b.WriteString("Do not repeat the diff back verbatim.\n")

	return b.String()
}
