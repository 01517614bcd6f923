package netutil

import (
	"net"
	"net/url"
	"strings"

	"golang.org/x/net/publicsuffix"
)

// Hostname derives the registrable domain (eTLD+1) of an article URL, the
// form stored on enriched rows.
//
// Examples:
//
//	"https://www.bbc.co.uk/news/x" -> "bbc.co.uk"
//	"http://g1.globo.com/a"        -> "globo.com"
//	"http://192.168.1.1:8080/a"    -> "192.168.1.1"
func Hostname(rawURL string) string {
	host := rawURL
	if strings.Contains(rawURL, "://") {
		if u, err := url.Parse(rawURL); err == nil && u.Host != "" {
			host = u.Host
		}
	}

	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.TrimSuffix(strings.ToLower(host), ".")

	// The Public Suffix List rejects IPs, localhost, and bare TLDs; fall back
	// to the raw host in those cases.
	if domain, err := publicsuffix.EffectiveTLDPlusOne(host); err == nil {
		return domain
	}
	return host
}
