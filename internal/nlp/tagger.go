// Package nlp extracts named entities from article text: a multilingual
// token-classification model handles PERSON/ORG/LOC, and a precompiled regex
// layer covers the categories the model does not emit (EVENT, LAW, DATE,
// MONEY, QUANTITY, NORP).
package nlp

import (
	"context"
	"log"
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/newsgrid/enrichd/internal/model"
)

// Tagger runs chunked NER plus the regex layer and merges everything into
// one EntityBundle.
type Tagger struct {
	Recognizer Recognizer
	Model      string
	ChunkChars int
}

type entityAgg struct {
	display string
	score   float64
}

var titleCaser = cases.Title(language.Und)

// Tag never fails: recognizer errors are logged and the remaining chunks and
// the regex layer still contribute. The returned bundle always carries
// accurate meta, even when empty.
func (t *Tagger) Tag(ctx context.Context, text string) (bundle model.EntityBundle) {
	chars := len(text)
	bundle.Meta = model.EntityMeta{Model: t.Model, Chars: chars}
	if strings.TrimSpace(text) == "" {
		return bundle
	}

	defer func() {
		if r := recover(); r != nil {
			log.Printf("[nlp] tagger panic recovered: %v", r)
			bundle = model.EntityBundle{Meta: model.EntityMeta{Model: t.Model, Chars: chars}}
		}
	}()

	chunks := SplitChunks(text, t.ChunkChars)
	bundle.Meta.Chunks = len(chunks)

	var spans []Span
	if t.Recognizer != nil {
		for i, chunk := range chunks {
			chunkSpans, err := t.Recognizer.Recognize(ctx, chunk)
			if err != nil {
				log.Printf("[nlp] chunk %d/%d failed: %v", i+1, len(chunks), err)
				continue
			}
			spans = append(spans, chunkSpans...)
		}
	}
	spans = append(spans, regexSpans(text)...)

	// Merge case-insensitively per label, keeping the max score and the
	// first-seen display form.
	byLabel := make(map[string]map[string]*entityAgg)
	var order []string
	keyOrder := make(map[string][]string)
	for _, s := range spans {
		key := strings.ToLower(strings.TrimSpace(s.Text))
		if key == "" {
			continue
		}
		agg := byLabel[s.Label]
		if agg == nil {
			agg = make(map[string]*entityAgg)
			byLabel[s.Label] = agg
			order = append(order, s.Label)
		}
		if e, ok := agg[key]; ok {
			if s.Score > e.score {
				e.score = s.Score
			}
			continue
		}
		agg[key] = &entityAgg{display: displayForm(strings.TrimSpace(s.Text)), score: s.Score}
		keyOrder[s.Label] = append(keyOrder[s.Label], key)
	}

	var total float64
	var n int
	for _, label := range order {
		agg := byLabel[label]
		entities := make([]model.Entity, 0, len(agg))
		for _, key := range keyOrder[label] {
			e := agg[key]
			entities = append(entities, model.Entity{Text: e.display, Score: e.score})
			total += e.score
			n++
		}
		sort.SliceStable(entities, func(i, j int) bool {
			if entities[i].Score != entities[j].Score {
				return entities[i].Score > entities[j].Score
			}
			return strings.ToLower(entities[i].Text) < strings.ToLower(entities[j].Text)
		})
		setBucket(&bundle, label, entities)
	}
	if n > 0 {
		bundle.Meta.Score = total / float64(n)
	}
	return bundle
}

// displayForm title-cases all-lowercase spans; mixed-case spans such as
// "COP30" or "McDonald's" keep their original casing.
func displayForm(text string) string {
	for _, r := range text {
		if unicode.IsUpper(r) {
			return text
		}
	}
	return titleCaser.String(text)
}

func setBucket(b *model.EntityBundle, label string, entities []model.Entity) {
	switch label {
	case "PERSON":
		b.Person = entities
	case "ORG":
		b.Org = entities
	case "GPE":
		b.Gpe = entities
	case "LOC":
		b.Loc = entities
	case "NORP":
		b.Norp = entities
	case "EVENT":
		b.Event = entities
	case "LAW":
		b.Law = entities
	case "DATE":
		b.Date = entities
	case "MONEY":
		b.Money = entities
	case "QUANTITY":
		b.Quantity = entities
	}
}
