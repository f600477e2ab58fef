package assemble

import (
	"strings"
	"unicode"
)

// Normalize cleans up whitespace, punctuation spacing, and sentence
// capitalization in a transcript. It is pure and idempotent:
// Normalize(Normalize(s)) == Normalize(s).
func Normalize(s string) string {
	// Collapse runs of whitespace to single spaces and trim the ends.
	s = strings.Join(strings.Fields(s), " ")
	if s == "" {
		return s
	}

	s = fixPunctuationSpacing(s)
	return capitalizeSentences(s)
}

// fixPunctuationSpacing removes spaces before "!?;:", ensures a single space
// after them, and inserts a space after "." only when an ASCII letter
// follows (protecting decimals like 1.5).
func fixPunctuationSpacing(s string) string {
	runes := []rune(s)
	var b strings.Builder
	b.Grow(len(s) + len(s)/8)

	for i := 0; i < len(runes); i++ {
		r := runes[i]

		if r == '!' || r == '?' || r == ';' || r == ':' {
			// Drop any space we already emitted before the mark.
			trimTrailingSpace(&b)
			b.WriteRune(r)
			if i+1 < len(runes) && runes[i+1] != ' ' {
				b.WriteRune(' ')
			}
			continue
		}

		if r == '.' {
			b.WriteRune(r)
			if i+1 < len(runes) && isASCIILetter(runes[i+1]) {
				b.WriteRune(' ')
			}
			continue
		}

		b.WriteRune(r)
	}
	return b.String()
}

// capitalizeSentences uppercases the first character of the text and the
// first lowercase letter following a sentence mark (".", "!", "?") plus
// whitespace.
func capitalizeSentences(s string) string {
	runes := []rune(s)
	afterSentence := false
	sawSpace := false

	for i, r := range runes {
		switch {
		case r == '.' || r == '!' || r == '?':
			afterSentence = true
			sawSpace = false
		case r == ' ':
			if afterSentence {
				sawSpace = true
			}
		default:
			if i == 0 || (afterSentence && sawSpace) {
				runes[i] = unicode.ToUpper(r)
			}
			afterSentence = false
			sawSpace = false
		}
	}

	if len(runes) > 0 {
		runes[0] = unicode.ToUpper(runes[0])
	}
	return string(runes)
}

// trimTrailingSpace removes one run of trailing spaces from the builder.
func trimTrailingSpace(b *strings.Builder) {
	s := b.String()
	trimmed := strings.TrimRight(s, " ")
	if len(trimmed) != len(s) {
		b.Reset()
		b.WriteString(trimmed)
	}
}

// isASCIILetter reports whether r is in [A-Za-z].
func isASCIILetter(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}
