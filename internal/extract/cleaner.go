// Package extract turns an article URL into scraped content plus metadata:
// a direct-HTTP + trafilatura primary stage, a headless-render fallback, and
// regex post-processing of the extracted text.
package extract

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// ErrorPatternSentinel replaces content that matched a known block/error page
// template. Downstream steps treat it as a soft failure signal.
const ErrorPatternSentinel = "error_pattern_found"

var (
	reMarkdownImage = regexp.MustCompile(`!\[[^\]]*\]\([^)]*\)`)
	reMarkdownLink  = regexp.MustCompile(`\[([^\]]*)\]\([^)]*\)`)
	reFencedCode    = regexp.MustCompile("(?s)```.*?```")
	reRawURL        = regexp.MustCompile(`https?://[^\s)\]]+`)
	reHTMLTag       = regexp.MustCompile(`<[^>]+>`)
	reMarkdownRule  = regexp.MustCompile(`(?m)^[ \t]*(?:(?:\*[ \t]*){3,}|(?:_[ \t]*){3,}|(?:-[ \t]*){3,})$`)
	reMarkdownHead  = regexp.MustCompile(`(?m)^#{1,6}[ \t]+`)
	reEmail         = regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`)
	reLongDigits    = regexp.MustCompile(`\d{10,}`)
	reZeroWidth     = regexp.MustCompile("[\u200B\u200C\u200D\u2060\uFEFF\u00AD]")
	reSpaces        = regexp.MustCompile(`[ \t]{2,}`)
	reBlankLines    = regexp.MustCompile(`\n{3,}`)
)

// errorPatterns are block/failure page fingerprints observed in scraped
// bodies. Case-insensitive.
var errorPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)connection\s+refused`),
	regexp.MustCompile(`(?i)could\s+not\s+resolve\s+host`),
	regexp.MustCompile(`(?i)dns\s+(?:lookup|resolution)\s+fail`),
	regexp.MustCompile(`(?i)\b(?:403|404|502|503)\s+(?:forbidden|not\s+found|bad\s+gateway|service\s+unavailable)\b`),
	regexp.MustCompile(`(?i)access\s+denied`),
	regexp.MustCompile(`(?i)request\s+blocked`),
	regexp.MustCompile(`(?i)verify\s+(?:that\s+)?you\s+are\s+(?:a\s+)?human`),
	regexp.MustCompile(`(?i)are\s+you\s+a\s+robot`),
	regexp.MustCompile(`(?i)complete\s+the\s+captcha`),
	regexp.MustCompile(`(?i)captcha\s+(?:challenge|verification)`),
	regexp.MustCompile(`(?i)checking\s+your\s+browser\s+before\s+accessing`),
	regexp.MustCompile(`(?i)enable\s+(?:javascript|cookies)\s+(?:and\s+(?:cookies|javascript)\s+)?to\s+continue`),
	regexp.MustCompile(`(?i)attention\s+required!?\s*\|\s*cloudflare`),
	regexp.MustCompile(`(?i)this\s+site\s+can[''\x60]?t\s+be\s+reached`),
	regexp.MustCompile(`(?i)err_(?:connection|name_not_resolved|timed_out)`),
}

// Cleaner applies the post-processing passes over extracted article text.
type Cleaner struct {
	// MaxChars truncates the cleaned content at a word boundary when > 0.
	MaxChars int
}

// Clean runs every pass and returns the final content. When the text matches
// a known error-page template, the sentinel is returned instead.
func (c *Cleaner) Clean(text string) string {
	if text == "" {
		return ""
	}
	if MatchesErrorPattern(text) {
		return ErrorPatternSentinel
	}

	out := norm.NFC.String(text)
	out = reZeroWidth.ReplaceAllString(out, "")
	out = reFencedCode.ReplaceAllString(out, " ")
	out = reMarkdownImage.ReplaceAllString(out, " ")
	out = reMarkdownLink.ReplaceAllString(out, "$1")
	out = reRawURL.ReplaceAllString(out, " ")
	out = reHTMLTag.ReplaceAllString(out, " ")
	out = reMarkdownRule.ReplaceAllString(out, "")
	out = reMarkdownHead.ReplaceAllString(out, "")
	out = reEmail.ReplaceAllString(out, " ")
	out = reLongDigits.ReplaceAllString(out, " ")

	out = strings.ReplaceAll(out, "\r\n", "\n")
	out = reSpaces.ReplaceAllString(out, " ")
	out = reBlankLines.ReplaceAllString(out, "\n\n")

	lines := strings.Split(out, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	out = strings.TrimSpace(strings.Join(lines, "\n"))
	out = reBlankLines.ReplaceAllString(out, "\n\n")

	if c.MaxChars > 0 && len(out) > c.MaxChars {
		out = truncateAtWord(out, c.MaxChars)
	}
	return out
}

// MatchesErrorPattern reports whether text looks like a block/error page.
func MatchesErrorPattern(text string) bool {
	for _, re := range errorPatterns {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

// truncateAtWord cuts s to at most max bytes without splitting a word.
func truncateAtWord(s string, max int) string {
	cut := s[:max]
	if idx := strings.LastIndexAny(cut, " \n\t"); idx > 0 {
		cut = cut[:idx]
	}
	return strings.TrimSpace(cut)
}

// WordCount counts whitespace-separated tokens.
func WordCount(s string) int {
	return len(strings.Fields(s))
}
