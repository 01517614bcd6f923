package images

import (
	"sort"
	"strings"

	"github.com/newsgrid/enrichd/internal/model"
)

// Entity selection bounds for search-query generation.
const (
	queryScoreFloor = 0.85
	queryMinLen     = 3
	queryMaxLen     = 40
	maxQueries      = 5
)

// Buckets worth searching images for. DATE/MONEY/QUANTITY strings make
// useless queries.
var queryBuckets = []string{"PERSON", "ORG", "GPE", "LOC", "EVENT", "LAW", "NORP"}

// GenerateQueries builds up to five image-search queries from an article's
// entities: the top three singles, the top two joined, and the top three
// joined, deduplicated case-insensitively.
func GenerateQueries(bundle model.EntityBundle) []string {
	buckets := bundle.Buckets()
	var picked []model.Entity
	for _, label := range queryBuckets {
		for _, e := range buckets[label] {
			text := strings.TrimSpace(e.Text)
			if e.Score < queryScoreFloor || len(text) < queryMinLen || len(text) > queryMaxLen {
				continue
			}
			picked = append(picked, model.Entity{Text: text, Score: e.Score})
		}
	}
	sort.SliceStable(picked, func(i, j int) bool { return picked[i].Score > picked[j].Score })

	seen := make(map[string]bool)
	var top []string
	for _, e := range picked {
		key := strings.ToLower(e.Text)
		if seen[key] {
			continue
		}
		seen[key] = true
		top = append(top, e.Text)
		if len(top) == 3 {
			break
		}
	}

	queries := append([]string{}, top...)
	if len(top) >= 2 {
		queries = append(queries, strings.Join(top[:2], " "))
	}
	if len(top) >= 3 {
		queries = append(queries, strings.Join(top[:3], " "))
	}

	seenQ := make(map[string]bool)
	out := make([]string, 0, maxQueries)
	for _, q := range queries {
		key := strings.ToLower(q)
		if seenQ[key] {
			continue
		}
		seenQ[key] = true
		out = append(out, q)
		if len(out) == maxQueries {
			break
		}
	}
	return out
}
