// Package translate renders short strings into English across a cascade of
// free translation providers, with per-provider circuit breakers and a
// process-wide result cache.
package translate

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// Default provider endpoints; tests point these at httptest servers.
const (
	googleEndpoint   = "https://translate.googleapis.com/translate_a/single"
	freeAPIEndpoint  = "https://ftapi.pythonanywhere.com/translate"
	myMemoryEndpoint = "https://api.mymemory.translated.net/get"
)

// MyMemory rejects inputs above this length.
const myMemoryMaxChars = 500

// Provider is one upstream translation backend.
type Provider interface {
	Name() string
	// Accepts reports whether the provider can handle this request shape.
	// source is a resolved ISO-639-1 code by the time providers see it.
	Accepts(text, source, target string) bool
	Translate(ctx context.Context, client *http.Client, text, source, target string) (string, error)
}

func fetchJSON(ctx context.Context, client *http.Client, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// --- Google (gtx web endpoint) ---

type googleProvider struct {
	endpoint string
}

func (googleProvider) Name() string { return "google" }

func (googleProvider) Accepts(text, source, target string) bool {
	return source != "" && target != ""
}

func (p googleProvider) Translate(ctx context.Context, client *http.Client, text, source, target string) (string, error) {
	q := url.Values{}
	q.Set("client", "gtx")
	q.Set("sl", source)
	q.Set("tl", target)
	q.Set("dt", "t")
	q.Set("q", text)

	body, err := fetchJSON(ctx, client, p.endpoint+"?"+q.Encode())
	if err != nil {
		return "", fmt.Errorf("google: %w", err)
	}

	// Response shape: [[["segment","original",...],...],...]
	var parsed []json.RawMessage
	if err := json.Unmarshal(body, &parsed); err != nil || len(parsed) == 0 {
		return "", fmt.Errorf("google: unexpected payload")
	}
	var segments [][]json.RawMessage
	if err := json.Unmarshal(parsed[0], &segments); err != nil {
		return "", fmt.Errorf("google: unexpected payload")
	}

	var sb strings.Builder
	for _, seg := range segments {
		if len(seg) == 0 {
			continue
		}
		var piece string
		if err := json.Unmarshal(seg[0], &piece); err != nil {
			continue
		}
		sb.WriteString(piece)
	}
	return sb.String(), nil
}

// --- FreeAPI (ftapi) ---

type freeAPIProvider struct {
	endpoint string
}

func (freeAPIProvider) Name() string { return "freeapi" }

func (freeAPIProvider) Accepts(text, source, target string) bool {
	return source != "" && target != ""
}

func (p freeAPIProvider) Translate(ctx context.Context, client *http.Client, text, source, target string) (string, error) {
	q := url.Values{}
	q.Set("sl", source)
	q.Set("dl", target)
	q.Set("text", text)

	body, err := fetchJSON(ctx, client, p.endpoint+"?"+q.Encode())
	if err != nil {
		return "", fmt.Errorf("freeapi: %w", err)
	}

	var parsed map[string]json.RawMessage
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("freeapi: unexpected payload")
	}
	for _, key := range []string{"destination-text", "translated-text"} {
		raw, ok := parsed[key]
		if !ok {
			continue
		}
		var out string
		if err := json.Unmarshal(raw, &out); err == nil && out != "" {
			return out, nil
		}
	}
	return "", fmt.Errorf("freeapi: no translation in payload")
}

// --- MyMemory ---

type myMemoryProvider struct {
	endpoint string
}

func (myMemoryProvider) Name() string { return "mymemory" }

func (myMemoryProvider) Accepts(text, source, target string) bool {
	// MyMemory needs an explicit language pair and caps input length.
	return source != "" && source != "auto" && target != "" && source != target &&
		len(text) <= myMemoryMaxChars
}

func (p myMemoryProvider) Translate(ctx context.Context, client *http.Client, text, source, target string) (string, error) {
	q := url.Values{}
	q.Set("q", text)
	q.Set("langpair", source+"|"+target)

	body, err := fetchJSON(ctx, client, p.endpoint+"?"+q.Encode())
	if err != nil {
		return "", fmt.Errorf("mymemory: %w", err)
	}

	var parsed struct {
		ResponseData struct {
			TranslatedText string `json:"translatedText"`
		} `json:"responseData"`
		ResponseStatus json.Number `json:"responseStatus"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("mymemory: unexpected payload")
	}
	if parsed.ResponseStatus.String() != "200" {
		return "", fmt.Errorf("mymemory: status %s", parsed.ResponseStatus)
	}
	if parsed.ResponseData.TranslatedText == "" {
		return "", fmt.Errorf("mymemory: empty translation")
	}
	return parsed.ResponseData.TranslatedText, nil
}

// defaultProviders returns the production cascade.
func defaultProviders() []Provider {
	return []Provider{
		googleProvider{endpoint: googleEndpoint},
		freeAPIProvider{endpoint: freeAPIEndpoint},
		myMemoryProvider{endpoint: myMemoryEndpoint},
	}
}
