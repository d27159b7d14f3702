package source

import (
	"strings"
	"sync"
	"unicode"

	lingua "github.com/pemistahl/lingua-go"

	"townbeat/internal/config"
)

var (
	detectorOnce sync.Once
	detector     lingua.LanguageDetector
)

// DetectLanguage returns the ISO 639-1 code of the text, or "" when the
// sample is too short or detection is inconclusive.
func DetectLanguage(text string) string {
	sample := strings.TrimSpace(text)
	if sample == "" {
		return ""
	}

	letterCount := 0
	for _, r := range sample {
		if unicode.IsLetter(r) {
			letterCount++
		}
	}
	if letterCount < 6 {
		return ""
	}

	language, exists := getDetector().DetectLanguageOf(sample)
	if !exists {
		return ""
	}

	code := strings.ToLower(language.IsoCode639_1().String())
	if len(code) != 2 {
		return ""
	}
	return code
}

func getDetector() lingua.LanguageDetector {
	detectorOnce.Do(func() {
		detector = lingua.NewLanguageDetectorBuilder().
			FromAllLanguages().
			WithPreloadedLanguageModels().
			Build()
	})
	return detector
}

// NormalizeLanguageTag lowercases a language tag and normalizes separators to
// "-". Returns "" for blank or malformed values.
func NormalizeLanguageTag(raw string) string {
	trimmed := strings.ToLower(strings.TrimSpace(raw))
	if trimmed == "" {
		return ""
	}

	trimmed = strings.ReplaceAll(trimmed, "_", "-")
	parts := strings.Split(trimmed, "-")
	normalized := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if !isAlphaNumLower(part) {
			return ""
		}
		normalized = append(normalized, part)
	}

	if len(normalized) == 0 {
		return ""
	}
	return strings.Join(normalized, "-")
}

// PrimaryLanguage returns the primary subtag, for example "en" from "en-US".
func PrimaryLanguage(raw string) string {
	tag := NormalizeLanguageTag(raw)
	if tag == "" {
		return ""
	}
	if dash := strings.IndexByte(tag, '-'); dash >= 0 {
		return tag[:dash]
	}
	return tag
}

// LanguageAllowed gates signals against the configured language allowlist.
// Unknown languages pass; an empty allowlist admits everything.
func LanguageAllowed(code string, cfg config.LanguageConfig) bool {
	primary := PrimaryLanguage(code)
	if primary == "" || len(cfg.Allowed) == 0 {
		return true
	}
	for _, allowed := range cfg.Allowed {
		if PrimaryLanguage(allowed) == primary {
			return true
		}
	}
	return false
}

func isAlphaNumLower(value string) bool {
	for _, r := range value {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return false
		}
	}
	return true
}
