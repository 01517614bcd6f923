// Package render drives a headless Chrome session for pages the direct
// scrape cannot read: JS-rendered articles, consent walls, and bot screens.
package render

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"

	"github.com/newsgrid/enrichd/internal/netutil"
)

// dismissOverlaysJS clicks through the common cookie-banner and overlay
// dismissal paths, then installs a mutation tracker the readiness predicate
// reads. Best effort; never throws.
const dismissOverlaysJS = `(() => {
	try {
		const labels = /^(accept|agree|allow|consent|ok|got it|entendi|aceitar|accepter|akzeptieren|aceptar)/i;
		const candidates = document.querySelectorAll(
			'button, [role="button"], input[type="button"], input[type="submit"]');
		for (const el of candidates) {
			const text = (el.innerText || el.value || '').trim();
			if (labels.test(text)) { el.click(); break; }
		}
		for (const sel of ['#onetrust-accept-btn-handler', '.cc-accept', '.cookie-accept',
				'[aria-label="Accept cookies"]', '[data-testid="cookie-accept"]']) {
			const el = document.querySelector(sel);
			if (el) { el.click(); break; }
		}
		for (const el of document.querySelectorAll(
				'.modal-backdrop, .overlay, [class*="cookie-banner"], [id*="cookie-banner"]')) {
			el.remove();
		}
	} catch (e) {}

	if (!window.__lastMutation) {
		window.__lastMutation = Date.now();
		try {
			new MutationObserver(() => { window.__lastMutation = Date.now(); })
				.observe(document.documentElement, {childList: true, subtree: true, characterData: true});
		} catch (e) {}
	}
	return true;
})()`

// readyJS fires when article-shaped DOM exists and mutations have settled
// for at least a second, or when the body has enough text density.
const readyJS = `(() => {
	const quiet = Date.now() - (window.__lastMutation || 0) >= 1000;
	const anchor = document.querySelector(
		'main, article, [role="main"], .article, .article-body');
	if (anchor && quiet) return true;
	const text = (document.body && document.body.innerText) || '';
	const paragraphs = document.querySelectorAll('p').length;
	return (text.length >= 300 || paragraphs >= 2) && quiet;
})()`

// Config sizes the render budgets.
type Config struct {
	// PageTimeout bounds navigation plus readiness. Defaults to 100s.
	PageTimeout time.Duration
	// OverallTimeout bounds one Render call end to end. Defaults to 60s.
	OverallTimeout time.Duration
	UserAgent      string
}

// ChromeRenderer launches one throwaway Chrome per Render call. Sessions are
// not pooled: a crashed or poisoned tab must never leak into the next article.
type ChromeRenderer struct {
	pageTimeout    time.Duration
	overallTimeout time.Duration
	userAgent      string
}

// NewChromeRenderer builds a renderer from config.
func NewChromeRenderer(cfg Config) *ChromeRenderer {
	pageTimeout := cfg.PageTimeout
	if pageTimeout <= 0 {
		pageTimeout = 100 * time.Second
	}
	overallTimeout := cfg.OverallTimeout
	if overallTimeout <= 0 {
		overallTimeout = 60 * time.Second
	}
	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = netutil.BrowserUserAgent
	}
	return &ChromeRenderer{
		pageTimeout:    pageTimeout,
		overallTimeout: overallTimeout,
		userAgent:      userAgent,
	}
}

// Render navigates to rawURL and returns the settled document HTML.
func (r *ChromeRenderer) Render(ctx context.Context, rawURL, proxy string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.overallTimeout)
	defer cancel()

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.UserAgent(r.userAgent),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.WindowSize(1366, 900),
	)
	if proxy != "" {
		opts = append(opts, chromedp.ProxyServer(proxy))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()
	tabCtx, cancelTab := chromedp.NewContext(allocCtx)
	defer cancelTab()

	pageCtx, cancelPage := context.WithTimeout(tabCtx, r.pageTimeout)
	defer cancelPage()

	var html string
	err := chromedp.Run(pageCtx,
		chromedp.Navigate(rawURL),
		chromedp.Evaluate(dismissOverlaysJS, nil),
		chromedp.Poll(readyJS, nil, chromedp.WithPollingInterval(250*time.Millisecond)),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		return "", fmt.Errorf("render %s: %w", rawURL, err)
	}
	return html, nil
}
