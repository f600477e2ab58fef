package assemble

import "strings"

// Word-similarity tuning. Two words count as "similar" when their edit
// distance relative to the longer word is at most similarWordRatio; a window
// matches when its weighted score reaches matchThreshold.
const (
	similarWordRatio = 0.2
	matchThreshold   = 0.7
)

// levenshtein returns the edit distance between a and b.
func levenshtein(a, b string) int {
	if a == b {
		return 0
	}
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}

	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}

// wordsSimilar reports whether two lowercase words are close enough to count
// as a fuzzy match.
func wordsSimilar(a, b string) bool {
	if a == b {
		return true
	}
	longer := max(len([]rune(a)), len([]rune(b)))
	if longer == 0 {
		return true
	}
	return float64(levenshtein(a, b))/float64(longer) <= similarWordRatio
}

// similarity scores two equal-length lowercase word lists: exact matches
// count 1, similar words count 0.5, divided by the length.
func similarity(a, b []string) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	score := 0.0
	for i := range a {
		switch {
		case a[i] == b[i]:
			score++
		case wordsSimilar(a[i], b[i]):
			score += 0.5
		}
	}
	return score / float64(len(a))
}

// lowerWords returns the words of each entry lowercased.
func lowerWords(words []string) []string {
	out := make([]string, len(words))
	for i, w := range words {
		out[i] = strings.ToLower(w)
	}
	return out
}

// findFuzzyMatch slides phrase over words[0:limit] and returns the first
// start position whose window scores at least matchThreshold, or -1.
// Both inputs must already be lowercased.
func findFuzzyMatch(phrase, words []string, limit int) int {
	w := len(phrase)
	if w == 0 || len(words) < w {
		return -1
	}
	if limit > len(words)-w {
		limit = len(words) - w
	}
	for p := 0; p <= limit; p++ {
		if similarity(phrase, words[p:p+w]) >= matchThreshold {
			return p
		}
	}
	return -1
}

// findSubstringMatch slides sub-windows of the overlap phrase over words as
// case-insensitive literal word sequences. On the first hit it returns the
// position where the full overlap region starts in words, or -1.
// Both inputs must already be lowercased.
func findSubstringMatch(phrase, words []string) int {
	winLen := len(phrase) * 6 / 10
	if winLen < 1 {
		return -1
	}
	for k := 0; k+winLen <= len(phrase); k++ {
		sub := phrase[k : k+winLen]
		for q := 0; q+winLen <= len(words); q++ {
			if equalWords(sub, words[q:q+winLen]) {
				start := q - k
				if start < 0 {
					start = 0
				}
				return start
			}
		}
	}
	return -1
}

// equalWords reports element-wise equality of two word slices.
func equalWords(a, b []string) bool {
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
