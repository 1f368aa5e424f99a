package issuecopier

import (
	"regexp"
	"strings"
)

// markdownImagePattern matches Markdown image references: ![alt](url).
var markdownImagePattern = regexp.MustCompile(`!\[([^\]]*)\]\(([^)]+)\)`)

// htmlImagePattern matches HTML <img src="..."> references.
var htmlImagePattern = regexp.MustCompile(`<img[^>]+src=["']([^"']+)["'][^>]*>`)

// bareHashPattern matches every "#<digits>" token; rewriteIssueReferences
// filters out the ones that are already qualified or sit inside a URL.
var bareHashPattern = regexp.MustCompile(`#\d+`)

// imageUploader uploads image bytes to a target repo and returns the new
// URL the body should reference instead of the original one.
type imageUploader interface {
	upload(originalURL string) (newURL string, ok bool)
}

// reuploadedImage records one successful re-host, for CopyRecord.ImagesReuploaded.
type reuploadedImage struct {
	OriginalURL string `json:"original_url"`
	NewURL      string `json:"new_url"`
}

// rehostImages scans body for Markdown and HTML image references and
// replaces any URL not already on github.com/githubusercontent.com via
// uploader. A failed upload leaves that single image's URL untouched and
// is not itself an error (the uploader keeps its own record of failures,
// which the caller reads to mark the copy partial).
func rehostImages(body string, uploader imageUploader) (newBody string, uploaded []reuploadedImage) {
	if body == "" {
		return body, nil
	}

	replace := func(url string) string {
		if isGitHubHosted(url) {
			return url
		}
		newURL, ok := uploader.upload(url)
		if !ok {
			return url
		}
		uploaded = append(uploaded, reuploadedImage{OriginalURL: url, NewURL: newURL})
		return newURL
	}

	out := markdownImagePattern.ReplaceAllStringFunc(body, func(m string) string {
		groups := markdownImagePattern.FindStringSubmatch(m)
		alt, url := groups[1], groups[2]
		return "![" + alt + "](" + replace(url) + ")"
	})
	out = htmlImagePattern.ReplaceAllStringFunc(out, func(m string) string {
		groups := htmlImagePattern.FindStringSubmatch(m)
		url := groups[1]
		return strings.Replace(m, url, replace(url), 1)
	})

	return out, uploaded
}

// isGitHubHosted reports whether url already points at github.com or
// githubusercontent.com, and so needs no re-hosting.
func isGitHubHosted(url string) bool {
	return strings.Contains(url, "github.com") || strings.Contains(url, "githubusercontent.com")
}

// rewriteIssueReferences replaces bare "#n" tokens with "sourceRepo#n" so
// links resolve back to the source issue tracker. References already
// qualified with an owner/repo prefix, and "#" fragments inside URLs, are
// left untouched.
func rewriteIssueReferences(body, sourceRepo string) string {
	if body == "" {
		return body
	}

	var out strings.Builder
	last := 0
	for _, m := range bareHashPattern.FindAllStringIndex(body, -1) {
		start, end := m[0], m[1]
		if isQualifiedOrURLFragment(body, start) {
			continue
		}
		out.WriteString(body[last:start])
		out.WriteString(sourceRepo)
		out.WriteString(body[start:end])
		last = end
	}
	out.WriteString(body[last:])
	return out.String()
}

// isQualifiedOrURLFragment reports whether the "#" at hashPos is already
// qualified (preceded by a word character or "/", as in "owner/repo#5") or
// is a URL fragment (the token it's attached to contains "://").
func isQualifiedOrURLFragment(body string, hashPos int) bool {
	if hashPos == 0 {
		return false
	}
	prev := body[hashPos-1]
	if isWordByte(prev) || prev == '/' {
		return true
	}

	tokenStart := hashPos
	for tokenStart > 0 && !isSpaceByte(body[tokenStart-1]) {
		tokenStart--
	}
	return strings.Contains(body[tokenStart:hashPos], "://")
}

func isWordByte(b byte) bool {
	return b == '_' || (b >= '0' && b <= '9') || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}

func isSpaceByte(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}
