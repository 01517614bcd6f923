package images

import (
	"reflect"
	"strings"
	"testing"

	"github.com/newsgrid/enrichd/internal/model"
)

func TestGenerateQueriesTopThreePlusJoins(t *testing.T) {
	bundle := model.EntityBundle{
		Person: []model.Entity{{Text: "Marina Silva", Score: 0.99}},
		Org:    []model.Entity{{Text: "Ibama", Score: 0.97}},
		Event:  []model.Entity{{Text: "COP30", Score: 0.95}},
		Loc:    []model.Entity{{Text: "Amazônia", Score: 0.90}},
	}
	got := GenerateQueries(bundle)
	want := []string{
		"Marina Silva",
		"Ibama",
		"COP30",
		"Marina Silva Ibama",
		"Marina Silva Ibama COP30",
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("queries = %v, want %v", got, want)
	}
}

func TestGenerateQueriesFiltersScoreAndLength(t *testing.T) {
	bundle := model.EntityBundle{
		Person: []model.Entity{
			{Text: "OK", Score: 0.99},                                // too short
			{Text: strings.Repeat("x", 41), Score: 0.99},             // too long
			{Text: "Weak Signal", Score: 0.5},                        // low score
			{Text: "Valid Name", Score: 0.9},
		},
	}
	got := GenerateQueries(bundle)
	if len(got) != 1 || got[0] != "Valid Name" {
		t.Fatalf("queries = %v, want only Valid Name", got)
	}
}

func TestGenerateQueriesDedupesCaseInsensitively(t *testing.T) {
	bundle := model.EntityBundle{
		Person: []model.Entity{{Text: "Lula da Silva", Score: 0.99}},
		Org:    []model.Entity{{Text: "LULA DA SILVA", Score: 0.98}},
		Loc:    []model.Entity{{Text: "Brasil", Score: 0.97}},
	}
	got := GenerateQueries(bundle)
	want := []string{
		"Lula da Silva",
		"Brasil",
		"Lula da Silva Brasil",
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("queries = %v, want %v", got, want)
	}
}

func TestGenerateQueriesEmptyBundle(t *testing.T) {
	if got := GenerateQueries(model.EntityBundle{}); len(got) != 0 {
		t.Fatalf("queries = %v, want none", got)
	}
}
