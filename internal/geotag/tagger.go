package geotag

import (
	"sort"

	"github.com/newsgrid/enrichd/internal/model"
	"github.com/newsgrid/enrichd/internal/nlp"
)

const (
	// locConfidenceFloor gates which LOC entities take part in validation.
	locConfidenceFloor = 0.80
	// titleScoreFloor: a country named in the headline is highly salient.
	titleScoreFloor = 1.0
	minMentionCount = 2
	minScore        = 0.6
	maxCountries    = 4
)

// Tagger ranks sovereign countries for one article.
type Tagger struct {
	Index      *Index
	ChunkChars int
}

type countryAgg struct {
	count int
	score float64
}

// Tag turns title, body, and LOC entities into at most four ranked countries.
func (t *Tagger) Tag(title, content string, locs []model.Entity) []model.GeoEntity {
	if t.Index == nil {
		return []model.GeoEntity{}
	}

	agg := make(map[string]*countryAgg)
	for _, chunk := range nlp.SplitChunks(content, t.ChunkChars) {
		for _, hit := range t.Index.TagText(chunk) {
			accumulate(agg, hit.Alpha2, hit.Score)
		}
	}

	// Title mentions add to the counts and floor the score at 1.0.
	for _, hit := range t.Index.TagText(title) {
		a := accumulate(agg, hit.Alpha2, hit.Score)
		if a.score < titleScoreFloor {
			a.score = titleScoreFloor
		}
	}

	var candidates []string
	for alpha2, a := range agg {
		if a.count >= minMentionCount && a.score >= minScore {
			candidates = append(candidates, alpha2)
		}
	}

	validated := t.validateLocs(locs)
	if len(validated) > 0 && len(candidates) > 0 {
		var kept []string
		for _, alpha2 := range candidates {
			if validated[alpha2] {
				kept = append(kept, alpha2)
			}
		}
		// Validation is advisory: an empty intersection keeps the original
		// candidate set instead of wiping the result.
		if len(kept) > 0 {
			candidates = kept
		}
	}

	sort.Slice(candidates, func(i, j int) bool {
		a, b := agg[candidates[i]], agg[candidates[j]]
		if a.count != b.count {
			return a.count > b.count
		}
		if a.score != b.score {
			return a.score > b.score
		}
		return candidates[i] < candidates[j]
	})
	if len(candidates) > maxCountries {
		candidates = candidates[:maxCountries]
	}

	out := make([]model.GeoEntity, 0, len(candidates))
	for _, alpha2 := range candidates {
		c, ok := t.Index.Country(alpha2)
		if !ok {
			continue
		}
		a := agg[alpha2]
		out = append(out, model.GeoEntity{
			Name:     c.Name,
			Alpha2:   c.Alpha2,
			Alpha3:   c.Alpha3,
			Count:    a.count,
			AvgScore: a.score,
		})
	}
	return out
}

// validateLocs resolves high-confidence LOC entities to sovereign states,
// both by direct place lookup and by substring scan.
func (t *Tagger) validateLocs(locs []model.Entity) map[string]bool {
	validated := make(map[string]bool)
	for _, loc := range locs {
		if loc.Score < locConfidenceFloor {
			continue
		}
		if hit, ok := t.Index.TagPlace(loc.Text); ok && hit.FeatureCode == FeaturePCLI {
			validated[hit.Alpha2] = true
			continue
		}
		for _, hit := range t.Index.TagText(loc.Text) {
			if hit.FeatureCode == FeaturePCLI {
				validated[hit.Alpha2] = true
			}
		}
	}
	return validated
}

func accumulate(agg map[string]*countryAgg, alpha2 string, score float64) *countryAgg {
	a := agg[alpha2]
	if a == nil {
		a = &countryAgg{}
		agg[alpha2] = a
	}
	a.count++
	if score > a.score {
		a.score = score
	}
	return a
}
