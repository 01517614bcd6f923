package extract

import (
	"context"
	"testing"
)

func TestNormalizeURL_SchemeGate(t *testing.T) {
	ctx := context.Background()

	got, err := NormalizeURL(ctx, nil, "https://example.com/news/x")
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if got != "https://example.com/news/x" {
		t.Fatalf("normalize: got %q", got)
	}

	for _, bad := range []string{"ftp://example.com/a", "javascript:alert(1)", "file:///etc/passwd"} {
		if _, err := NormalizeURL(ctx, nil, bad); err == nil {
			t.Errorf("NormalizeURL(%q): expected error", bad)
		}
	}
}

func TestUnwrapConsent(t *testing.T) {
	in := "https://consent.google.com/m?continue=https%3A%2F%2Fexample.com%2Fstory&gl=FR"
	if got := unwrapConsent(in); got != "https://example.com/story" {
		t.Fatalf("unwrap: got %q", got)
	}

	// Non-consent hosts pass through.
	direct := "https://example.com/story"
	if got := unwrapConsent(direct); got != direct {
		t.Fatalf("unwrap passthrough: got %q", got)
	}

	// Unsafe continue targets are ignored.
	evil := "https://consent.google.com/m?continue=javascript:alert(1)"
	if got := unwrapConsent(evil); got != evil {
		t.Fatalf("unwrap unsafe: got %q", got)
	}
}
