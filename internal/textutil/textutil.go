package textutil

import (
	"html"
	"regexp"
	"strings"
)

var (
	// Tags whose boundaries mark a line break in the rendered text.
	blockBreakRegex = regexp.MustCompile(`(?i)<\s*(?:br\s*/?|/?p|/?div|/?li|/?h[1-6]|/?ul|/?ol|/?tr)\s*>`)
	htmlTagRegex    = regexp.MustCompile(`<[^>]*>`)
	spaceRunRegex   = regexp.MustCompile(`[ \t]+`)
	newlineRunRegex = regexp.MustCompile(`\n{2,}`)
	nonAlnumRegex   = regexp.MustCompile(`[^a-z0-9\s]+`)
)

// HTMLToText converts an HTML or HTML-encoded string to plain text.
// Block-level tag boundaries become newlines, all remaining tags are
// stripped, entities are decoded (handles double-encoded payloads; no-op on
// already-plain text), and whitespace runs are collapsed. Total: any input,
// including malformed markup, yields a string without raising.
func HTMLToText(content string) string {
	if content == "" {
		return ""
	}
	unescaped := html.UnescapeString(content)
	withBreaks := blockBreakRegex.ReplaceAllString(unescaped, "\n")
	plain := htmlTagRegex.ReplaceAllString(withBreaks, "")
	// Entities may have been double-encoded by the source.
	plain = html.UnescapeString(plain)

	plain = spaceRunRegex.ReplaceAllString(plain, " ")
	lines := strings.Split(plain, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	plain = strings.Join(lines, "\n")
	plain = newlineRunRegex.ReplaceAllString(plain, "\n")
	return strings.TrimSpace(plain)
}

// NormalizeForFingerprint lowers the string, replaces every non-alphanumeric
// run with a single space, and collapses whitespace, so that casing and
// punctuation variants converge to the same form.
func NormalizeForFingerprint(s string) string {
	lowered := strings.ToLower(s)
	stripped := nonAlnumRegex.ReplaceAllString(lowered, " ")
	return strings.Join(strings.Fields(stripped), " ")
}
