package extract

import (
	"strings"
	"testing"
)

func TestCleaner_StripsMarkupAndNoise(t *testing.T) {
	c := &Cleaner{}
	in := "# Headline\n\n" +
		"Some text with ![alt text](https://img.example.com/a.png) an image, " +
		"a [link label](https://example.com/page) and a raw https://example.com/raw url.\n\n" +
		"```\ncode block\n```\n" +
		"<div>html</div> contact me at someone@example.com or 12345678901234.\n\n\n\n" +
		"Final\u200bline."

	out := c.Clean(in)

	for _, banned := range []string{"![", "](", "https://", "<div>", "@example.com", "12345678901234", "```", "# ", "\u200b"} {
		if strings.Contains(out, banned) {
			t.Errorf("cleaned output still contains %q:\n%s", banned, out)
		}
	}
	if !strings.Contains(out, "link label") {
		t.Errorf("link label should survive:\n%s", out)
	}
	if strings.Contains(out, "\n\n\n") {
		t.Errorf("blank lines not collapsed:\n%s", out)
	}
}

func TestCleaner_ErrorPatternSentinel(t *testing.T) {
	c := &Cleaner{}
	cases := []string{
		"Error: connection refused while fetching the page",
		"Attention Required! | Cloudflare",
		"Please verify you are a human to continue",
		"403 Forbidden",
		"Access Denied - you don't have permission",
	}
	for _, in := range cases {
		if got := c.Clean(in); got != ErrorPatternSentinel {
			t.Errorf("Clean(%q): got %q, want sentinel", in, got)
		}
	}

	if got := c.Clean("A normal article about trade policy."); got == ErrorPatternSentinel {
		t.Error("normal text must not match error patterns")
	}
}

func TestCleaner_TruncatesAtWordBoundary(t *testing.T) {
	c := &Cleaner{MaxChars: 20}
	out := c.Clean("alpha beta gamma delta epsilon")
	if len(out) > 20 {
		t.Fatalf("length: got %d, want <= 20", len(out))
	}
	if strings.HasSuffix(out, " ") || strings.Contains(out, "gamm ") {
		t.Fatalf("bad truncation: %q", out)
	}
	for _, w := range strings.Fields(out) {
		if !strings.Contains("alpha beta gamma delta epsilon", w) {
			t.Fatalf("truncation split a word: %q", out)
		}
	}
}

func TestWordCount(t *testing.T) {
	if got := WordCount("  one two\nthree\t"); got != 3 {
		t.Fatalf("word count: got %d, want 3", got)
	}
	if got := WordCount(""); got != 0 {
		t.Fatalf("word count of empty: got %d", got)
	}
}
