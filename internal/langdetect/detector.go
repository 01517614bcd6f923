// Package langdetect identifies the language of article text as an ISO-639-1
// code using a fast low-accuracy pass backed by a full-accuracy second opinion.
package langdetect

import (
	"strings"

	"github.com/pemistahl/lingua-go"
	"golang.org/x/text/language"
)

// Confidence below which the primary verdict is double-checked.
const confidenceFloor = 0.99

// Detector wraps the two lingua detectors. Construction is expensive (model
// load); build once and share.
type Detector struct {
	primary   lingua.LanguageDetector
	secondary lingua.LanguageDetector
}

// New builds the detector pair over all supported languages.
func New() *Detector {
	return &Detector{
		primary: lingua.NewLanguageDetectorBuilder().
			FromAllLanguages().
			WithLowAccuracyMode().
			Build(),
		secondary: lingua.NewLanguageDetectorBuilder().
			FromAllLanguages().
			Build(),
	}
}

// Detect returns the ISO-639-1 code for text, or "" when detection fails.
// Never returns an error: callers treat an empty code as "unknown" and move on.
func (d *Detector) Detect(text string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return ""
	}

	lang, ok := d.primary.DetectLanguageOf(text)
	if ok {
		confidence := d.primary.ComputeLanguageConfidence(text, lang)
		if confidence >= confidenceFloor {
			return isoCode(lang)
		}
	}

	lang, ok = d.secondary.DetectLanguageOf(text)
	if !ok {
		return ""
	}
	return isoCode(lang)
}

func isoCode(lang lingua.Language) string {
	code := strings.ToLower(lang.IsoCode639_1().String())
	if !ValidISO639_1(code) {
		return ""
	}
	return code
}

// ValidISO639_1 reports whether code is a two-letter language code known to
// the CLDR tables.
func ValidISO639_1(code string) bool {
	if len(code) != 2 {
		return false
	}
	base, err := language.ParseBase(code)
	if err != nil {
		return false
	}
	return base.String() == code
}
