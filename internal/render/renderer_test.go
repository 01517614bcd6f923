package render

import (
	"testing"
	"time"

	"github.com/newsgrid/enrichd/internal/netutil"
)

func TestNewChromeRendererDefaults(t *testing.T) {
	r := NewChromeRenderer(Config{})
	if r.pageTimeout != 100*time.Second {
		t.Fatalf("page timeout = %v", r.pageTimeout)
	}
	if r.overallTimeout != 60*time.Second {
		t.Fatalf("overall timeout = %v", r.overallTimeout)
	}
	if r.userAgent != netutil.BrowserUserAgent {
		t.Fatalf("user agent = %q", r.userAgent)
	}
}

func TestNewChromeRendererOverrides(t *testing.T) {
	r := NewChromeRenderer(Config{
		PageTimeout:    5 * time.Second,
		OverallTimeout: 10 * time.Second,
		UserAgent:      "test-agent",
	})
	if r.pageTimeout != 5*time.Second || r.overallTimeout != 10*time.Second {
		t.Fatalf("timeouts = %v %v", r.pageTimeout, r.overallTimeout)
	}
	if r.userAgent != "test-agent" {
		t.Fatalf("user agent = %q", r.userAgent)
	}
}
