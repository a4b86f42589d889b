// Package sanitize cleans free-text form input before it reaches the store.
package sanitize

import (
	"regexp"
	"strings"
)

var (
	tagPattern    = regexp.MustCompile(`<[^>]*>`)
	iframePattern = regexp.MustCompile(`(?i)<iframe[^>]*src\s*=\s*["']([^"']+)["'][^>]*>`)
)

var entityReplacer = strings.NewReplacer(
	"&lt;", "<",
	"&gt;", ">",
	"&amp;", "&",
	"&quot;", `"`,
	"&#039;", "'",
)

func stripTags(input string) string {
	return tagPattern.ReplaceAllString(input, "")
}

// Input trims the string, strips HTML tags, and decodes the common entities.
func Input(input string) string {
	return entityReplacer.Replace(stripTags(strings.TrimSpace(input)))
}

// URL trims and strips tags but leaves URL characters alone. Entities stay
// encoded because ampersands are meaningful in query strings.
func URL(url string) string {
	return stripTags(strings.TrimSpace(url))
}

// IframeURL pulls the src attribute out of an embed snippet. Everything that
// is not an iframe tag passes through URL unchanged, so users can paste
// either the full embed code or the bare link.
func IframeURL(input string) string {
	if match := iframePattern.FindStringSubmatch(input); match != nil {
		return URL(match[1])
	}
	return URL(input)
}
