// Package lang validates and normalizes transcription language codes.
// Jobs may request a specific language, "auto", or nothing at all; the
// provider auto-detects in the latter two cases.
package lang

import (
	"fmt"
	"strings"
)

// Auto is the explicit auto-detect language value.
const Auto = "auto"

// validLanguages contains ISO 639-1 language codes supported by the
// transcription provider. Not exhaustive, but covers the common languages.
var validLanguages = map[string]bool{
	"af": true, // Afrikaans
	"ar": true, // Arabic
	"bg": true, // Bulgarian
	"bn": true, // Bengali
	"ca": true, // Catalan
	"cs": true, // Czech
	"da": true, // Danish
	"de": true, // German
	"el": true, // Greek
	"en": true, // English
	"es": true, // Spanish
	"et": true, // Estonian
	"fa": true, // Persian
	"fi": true, // Finnish
	"fr": true, // French
	"gu": true, // Gujarati
	"he": true, // Hebrew
	"hi": true, // Hindi
	"hr": true, // Croatian
	"hu": true, // Hungarian
	"id": true, // Indonesian
	"it": true, // Italian
	"ja": true, // Japanese
	"kn": true, // Kannada
	"ko": true, // Korean
	"lt": true, // Lithuanian
	"lv": true, // Latvian
	"mk": true, // Macedonian
	"ml": true, // Malayalam
	"mr": true, // Marathi
	"ms": true, // Malay
	"nl": true, // Dutch
	"no": true, // Norwegian
	"pa": true, // Punjabi
	"pl": true, // Polish
	"pt": true, // Portuguese
	"ro": true, // Romanian
	"ru": true, // Russian
	"sk": true, // Slovak
	"sl": true, // Slovenian
	"sr": true, // Serbian
	"sv": true, // Swedish
	"sw": true, // Swahili
	"ta": true, // Tamil
	"te": true, // Telugu
	"th": true, // Thai
	"tl": true, // Tagalog
	"tr": true, // Turkish
	"uk": true, // Ukrainian
	"ur": true, // Urdu
	"vi": true, // Vietnamese
	"zh": true, // Chinese
}

// Normalize normalizes a language code to lowercase with hyphen separator.
// Accepts: "pt-BR", "pt_BR", "PT-BR", "pt-br" -> "pt-br"
func Normalize(code string) string {
	return strings.ToLower(strings.ReplaceAll(code, "_", "-"))
}

// IsAuto reports whether code requests provider auto-detection.
// Both "auto" and the empty string qualify.
func IsAuto(code string) bool {
	return code == "" || Normalize(code) == Auto
}

// Validate checks whether code is usable on a job.
// Accepts auto-detect values, ISO 639-1 codes (e.g. "en", "fr"), and
// locales (e.g. "pt-BR", "zh-CN"). Returns ErrInvalid otherwise.
func Validate(code string) error {
	if IsAuto(code) {
		return nil
	}

	if !validLanguages[baseOf(Normalize(code))] {
		return fmt.Errorf("invalid language code %q (use ISO 639-1 codes like 'en', 'fr', 'pt-BR'): %w",
			code, ErrInvalid)
	}
	return nil
}

// BaseCode extracts the ISO 639-1 base code to send to the provider,
// which accepts base codes but not regional variants.
// Auto-detect values map to the empty string.
// Examples: "pt-BR" -> "pt", "zh-CN" -> "zh", "auto" -> "".
func BaseCode(code string) string {
	if IsAuto(code) {
		return ""
	}
	return baseOf(Normalize(code))
}

// baseOf strips a locale suffix from a normalized code ("pt-br" -> "pt").
func baseOf(normalized string) string {
	if idx := strings.Index(normalized, "-"); idx != -1 {
		return normalized[:idx]
	}
	return normalized
}
