package nlp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Span is one labeled entity span from the token-classification model.
type Span struct {
	Label string
	Text  string
	Score float64
}

// Recognizer runs multilingual NER over one chunk of text.
type Recognizer interface {
	Recognize(ctx context.Context, text string) ([]Span, error)
}

// HTTPRecognizer posts chunks to a hosted token-classification endpoint.
// The endpoint speaks the inference-API convention: request `{"inputs": …}`,
// response `[{entity_group, score, word}]`.
type HTTPRecognizer struct {
	Endpoint string
	APIToken string
	Client   *http.Client
}

type inferenceSpan struct {
	EntityGroup string  `json:"entity_group"`
	Score       float64 `json:"score"`
	Word        string  `json:"word"`
}

// Recognize sends one chunk and maps the response into spans. Model labels
// use PER for people; the rest of the system speaks PERSON.
func (r *HTTPRecognizer) Recognize(ctx context.Context, text string) ([]Span, error) {
	if r.Endpoint == "" {
		return nil, fmt.Errorf("ner endpoint not configured")
	}
	payload, err := json.Marshal(map[string]string{"inputs": text})
	if err != nil {
		return nil, fmt.Errorf("encode ner request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build ner request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if r.APIToken != "" {
		req.Header.Set("Authorization", "Bearer "+r.APIToken)
	}

	client := r.Client
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ner request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("read ner response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ner endpoint returned %d: %s", resp.StatusCode, truncateForLog(body))
	}

	var raw []inferenceSpan
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decode ner response: %w", err)
	}

	spans := make([]Span, 0, len(raw))
	for _, s := range raw {
		word := strings.TrimSpace(s.Word)
		if word == "" {
			continue
		}
		label := s.EntityGroup
		if label == "PER" {
			label = "PERSON"
		}
		spans = append(spans, Span{Label: label, Text: word, Score: s.Score})
	}
	return spans, nil
}

func truncateForLog(b []byte) string {
	const max = 200
	s := strings.TrimSpace(string(b))
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}
