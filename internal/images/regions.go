package images

import (
	_ "embed"
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed territories.yaml
var territoriesYAML []byte

var territoriesByLang = loadTerritories()

func loadTerritories() map[string][]string {
	var doc struct {
		Languages map[string][]string `yaml:"languages"`
	}
	if err := yaml.Unmarshal(territoriesYAML, &doc); err != nil {
		panic(fmt.Sprintf("images: bad territory table: %v", err))
	}
	return doc.Languages
}

// ExpandRegions computes the `<territory>-<lang>` search locales for an
// article. `us-en` is always present; a known article country contributes
// its own locale in both the article language and English; a non-English
// language adds every territory where that language is spoken.
func ExpandRegions(country, lang string) []string {
	country = strings.ToLower(strings.TrimSpace(country))
	lang = strings.ToLower(strings.TrimSpace(lang))

	set := map[string]bool{"us-en": true}
	if country != "" && lang != "" {
		set[country+"-"+lang] = true
	}
	if lang != "" && lang != "en" {
		for _, territory := range territoriesByLang[lang] {
			set[territory+"-"+lang] = true
		}
	}
	if country != "" {
		set[country+"-en"] = true
	}

	regions := make([]string, 0, len(set))
	for r := range set {
		regions = append(regions, r)
	}
	sort.Strings(regions)
	return regions
}
