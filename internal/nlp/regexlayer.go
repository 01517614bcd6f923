package nlp

import (
	_ "embed"
	"fmt"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Fixed confidence scores for regex-derived spans. Regex hits are high
// precision but carry no model probability, so each category is pinned.
const (
	scoreEvent       = 0.95
	scoreLaw         = 0.90
	scoreDateYear    = 0.99
	scoreDateNumeric = 0.97
	scoreMoney       = 0.95
	scoreQuantity    = 0.90
	scoreNorp        = 0.85
)

//go:embed demonyms.yaml
var demonymsYAML []byte

var (
	reEventCOP      = regexp.MustCompile(`\bCOP\d{1,2}\b`)
	reEventTreaty   = regexp.MustCompile(`\b(?:Acordo|Tratado|Protocolo)\s+de\s+\p{Lu}[\p{L}-]+`)
	reEventSummit   = regexp.MustCompile(`\b\p{Lu}[\p{L}-]+\s+Summit\b`)
	reEventCupula   = regexp.MustCompile(`\bCúpula\s+(?:d[aeo]s?\s+)?\p{Lu}[\p{L}-]+`)
	reLawNumbered   = regexp.MustCompile(`\bLei\s+(?:n[ºo°]?\.?\s*)?[\d.]+(?:/\d{2,4})?`)
	reLawNamed      = regexp.MustCompile(`\bLei\s+\p{Lu}[\p{L}-]+(?:\s+(?:d[aeo]s?\s+)?\p{Lu}[\p{L}-]+)*`)
	reLawBill       = regexp.MustCompile(`\b(?:PL|MP)\s?\d+(?:/\d{2,4})?\b`)
	reLawDecree     = regexp.MustCompile(`\bDecreto\s+(?:n[ºo°]?\.?\s*)?[\d.]+(?:/\d{2,4})?`)
	reDateYear      = regexp.MustCompile(`\b(?:1[5-9]\d{2}|2[01]\d{2})\b`)
	reDateNumeric   = regexp.MustCompile(`\b\d{1,2}[/\-.]\d{1,2}[/\-.]\d{4}\b`)
	reMoneyPrefixed = regexp.MustCompile(`(?:R\$|US\$|€|£|¥)\s?\d[\d.,]*(?:\s(?:mil|milh(?:ão|ões)|bilh(?:ão|ões)|trilh(?:ão|ões)|thousand|million|billion|trillion))?`)
	reMoneySuffixed = regexp.MustCompile(`\b\d[\d.,]*\s?(?:USD|EUR|BRL|GBP|JPY)\b`)
	reQuantity      = regexp.MustCompile(`\b\d[\d.,]*\s?(?:km²|km2|km|hectares?|ha|GWh|GW|MW|kWh?|toneladas?|%|milh(?:ão|ões)\b|bilh(?:ão|ões)\b)`)
)

var reNorp = compileNorpPattern()

func compileNorpPattern() *regexp.Regexp {
	var doc struct {
		Demonyms []string `yaml:"demonyms"`
	}
	if err := yaml.Unmarshal(demonymsYAML, &doc); err != nil {
		panic(fmt.Sprintf("nlp: bad demonyms corpus: %v", err))
	}
	if len(doc.Demonyms) == 0 {
		panic("nlp: empty demonyms corpus")
	}
	quoted := make([]string, 0, len(doc.Demonyms))
	for _, d := range doc.Demonyms {
		d = strings.TrimSpace(d)
		if d == "" {
			continue
		}
		quoted = append(quoted, regexp.QuoteMeta(d))
	}
	return regexp.MustCompile(`(?i)\b(?:` + strings.Join(quoted, "|") + `)\b`)
}

type regexRule struct {
	label string
	score float64
	re    *regexp.Regexp
}

var regexRules = []regexRule{
	{"EVENT", scoreEvent, reEventCOP},
	{"EVENT", scoreEvent, reEventTreaty},
	{"EVENT", scoreEvent, reEventSummit},
	{"EVENT", scoreEvent, reEventCupula},
	{"LAW", scoreLaw, reLawNumbered},
	{"LAW", scoreLaw, reLawNamed},
	{"LAW", scoreLaw, reLawBill},
	{"LAW", scoreLaw, reLawDecree},
	{"DATE", scoreDateYear, reDateYear},
	{"DATE", scoreDateNumeric, reDateNumeric},
	{"MONEY", scoreMoney, reMoneyPrefixed},
	{"MONEY", scoreMoney, reMoneySuffixed},
	{"QUANTITY", scoreQuantity, reQuantity},
	{"NORP", scoreNorp, reNorp},
}

// regexSpans runs the full regex layer once over the whole text.
func regexSpans(text string) []Span {
	var spans []Span
	for _, rule := range regexRules {
		for _, m := range rule.re.FindAllString(text, -1) {
			m = strings.TrimSpace(m)
			if m == "" {
				continue
			}
			spans = append(spans, Span{Label: rule.label, Text: m, Score: rule.score})
		}
	}
	return spans
}
