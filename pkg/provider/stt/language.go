package stt

import "strings"

// languageCodes maps the English language names that Whisper-family engines
// report in verbose output to ISO 639-1 codes.
var languageCodes = map[string]string{
	"arabic":     "ar",
	"chinese":    "zh",
	"dutch":      "nl",
	"english":    "en",
	"french":     "fr",
	"german":     "de",
	"greek":      "el",
	"hindi":      "hi",
	"italian":    "it",
	"japanese":   "ja",
	"korean":     "ko",
	"polish":     "pl",
	"portuguese": "pt",
	"russian":    "ru",
	"spanish":    "es",
	"swedish":    "sv",
	"turkish":    "tr",
	"ukrainian":  "uk",
}

// NormalizeLanguage returns the ISO 639-1 code for a language reported by an
// engine. Codes pass through lower-cased; known English names are mapped;
// anything else is returned lower-cased as-is.
func NormalizeLanguage(lang string) string {
	l := strings.ToLower(strings.TrimSpace(lang))
	if code, ok := languageCodes[l]; ok {
		return code
	}
	return l
}
