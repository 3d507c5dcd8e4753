package extractor

import (
	"strings"

	"github.com/pemistahl/lingua-go"
)

// languageSampleRunes bounds how much text is fed to the detector.
const languageSampleRunes = 8000

// defaultLanguages covers the languages most scientific papers are published in.
var defaultLanguages = []lingua.Language{
	lingua.English,
	lingua.German,
	lingua.French,
	lingua.Spanish,
	lingua.Portuguese,
	lingua.Italian,
	lingua.Dutch,
	lingua.Russian,
	lingua.Chinese,
	lingua.Japanese,
	lingua.Korean,
}

// LanguageDetector names the language a document is written in.
type LanguageDetector struct {
	detector lingua.LanguageDetector
}

// NewLanguageDetector builds a detector over languages, or a default set when none are given.
func NewLanguageDetector(languages ...lingua.Language) *LanguageDetector {
	if len(languages) < 2 {
		languages = defaultLanguages
	}
	d := lingua.NewLanguageDetectorBuilder().
		FromLanguages(languages...).
		WithMinimumRelativeDistance(0.1).
		Build()
	return &LanguageDetector{detector: d}
}

// Detect returns the language name, e.g. "English", or "" when the text is too ambiguous.
func (l *LanguageDetector) Detect(text string) string {
	if l == nil || l.detector == nil {
		return ""
	}
	sample := sampleRunes(text, languageSampleRunes)
	if strings.TrimSpace(sample) == "" {
		return ""
	}
	lang, ok := l.detector.DetectLanguageOf(sample)
	if !ok {
		return ""
	}
	return lang.String()
}

func sampleRunes(s string, n int) string {
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
