// Package geotag resolves article text and LOC entities to ranked sovereign
// countries using a multilingual alias index built from an embedded gazetteer.
package geotag

import (
	_ "embed"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"gopkg.in/yaml.v3"
)

// GeoNames-style feature codes carried by index entries.
const (
	FeaturePCLI = "PCLI" // independent political entity
	FeaturePPLC = "PPLC" // capital city
)

// Alias confidence by provenance: the official English name is exact, other
// language forms slightly less so, capital mentions are indirect evidence.
const (
	scoreOfficialName = 1.0
	scoreAltName      = 0.95
	scoreCapital      = 0.85
)

// Hit is one gazetteer match.
type Hit struct {
	FeatureCode string
	Score       float64
	Alpha2      string
	Name        string
}

// Country is one ISO-3166 row from the embedded table.
type Country struct {
	Alpha2  string   `yaml:"alpha2"`
	Alpha3  string   `yaml:"alpha3"`
	Name    string   `yaml:"name"`
	Aliases []string `yaml:"aliases"`
	Capital string   `yaml:"capital"`
}

//go:embed countries.yaml
var countriesYAML []byte

// Index maps lowercased place aliases to countries and scans free text for
// them with longest-match-wins semantics.
type Index struct {
	aliases   map[string]Hit
	scanner   *regexp.Regexp
	countries map[string]Country
}

// NewIndex builds the index from the embedded gazetteer.
func NewIndex() (*Index, error) {
	var doc struct {
		Countries []Country `yaml:"countries"`
	}
	if err := yaml.Unmarshal(countriesYAML, &doc); err != nil {
		return nil, fmt.Errorf("parse gazetteer: %w", err)
	}
	if len(doc.Countries) == 0 {
		return nil, fmt.Errorf("gazetteer is empty")
	}

	idx := &Index{
		aliases:   make(map[string]Hit),
		countries: make(map[string]Country, len(doc.Countries)),
	}
	for _, c := range doc.Countries {
		idx.countries[c.Alpha2] = c
		idx.addAlias(c.Name, Hit{FeatureCode: FeaturePCLI, Score: scoreOfficialName, Alpha2: c.Alpha2, Name: c.Name})
		for _, alt := range c.Aliases {
			idx.addAlias(alt, Hit{FeatureCode: FeaturePCLI, Score: scoreAltName, Alpha2: c.Alpha2, Name: c.Name})
		}
		idx.addAlias(c.Capital, Hit{FeatureCode: FeaturePPLC, Score: scoreCapital, Alpha2: c.Alpha2, Name: c.Name})
	}

	// Longest alias first so the alternation prefers "costa rica" over any
	// shorter alias starting at the same offset.
	patterns := make([]string, 0, len(idx.aliases))
	for alias := range idx.aliases {
		patterns = append(patterns, alias)
	}
	sort.Slice(patterns, func(i, j int) bool {
		if len(patterns[i]) != len(patterns[j]) {
			return len(patterns[i]) > len(patterns[j])
		}
		return patterns[i] < patterns[j]
	})
	for i, p := range patterns {
		patterns[i] = regexp.QuoteMeta(p)
	}
	idx.scanner = regexp.MustCompile(`(?:` + strings.Join(patterns, "|") + `)`)
	return idx, nil
}

func (idx *Index) addAlias(name string, hit Hit) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		return
	}
	// Sovereign-entity entries win over city entries sharing the same name
	// (Singapore, Guatemala, Panama City vs Panama alias collisions).
	if prev, ok := idx.aliases[key]; ok && prev.Score >= hit.Score {
		return
	}
	idx.aliases[key] = hit
}

// TagText scans free text and returns one Hit per alias occurrence. Matches
// inside larger words are rejected by an explicit letter/digit boundary check
// on both sides, which also handles aliases that end in non-ASCII letters.
func (idx *Index) TagText(text string) []Hit {
	if text == "" {
		return nil
	}
	lowered := strings.ToLower(text)
	var hits []Hit
	for _, loc := range idx.scanner.FindAllStringIndex(lowered, -1) {
		start, end := loc[0], loc[1]
		if !boundaryBefore(lowered, start) || !boundaryAfter(lowered, end) {
			continue
		}
		if hit, ok := idx.aliases[lowered[start:end]]; ok {
			hits = append(hits, hit)
		}
	}
	return hits
}

// TagPlace resolves a single place name, trimmed and case-folded.
func (idx *Index) TagPlace(name string) (Hit, bool) {
	hit, ok := idx.aliases[strings.ToLower(strings.TrimSpace(name))]
	return hit, ok
}

// Country returns the ISO-3166 row for an alpha-2 code.
func (idx *Index) Country(alpha2 string) (Country, bool) {
	c, ok := idx.countries[strings.ToUpper(alpha2)]
	return c, ok
}

func boundaryBefore(s string, i int) bool {
	if i == 0 {
		return true
	}
	r, _ := utf8.DecodeLastRuneInString(s[:i])
	return !unicode.IsLetter(r) && !unicode.IsDigit(r)
}

func boundaryAfter(s string, i int) bool {
	if i >= len(s) {
		return true
	}
	r, _ := utf8.DecodeRuneInString(s[i:])
	return !unicode.IsLetter(r) && !unicode.IsDigit(r)
}
