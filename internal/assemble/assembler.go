// Package assemble stitches per-chunk transcripts into one normalized
// transcript. In best-quality mode, the audio overlap duplicated across
// chunk boundaries is located by fuzzy word matching and removed so each
// sentence appears exactly once. Assembly is deterministic and pure.
package assemble

import (
	"errors"
	"math"
	"strings"

	"github.com/alnah/go-transcribe-engine/internal/chunk"
	"github.com/alnah/go-transcribe-engine/internal/mode"
)

// ErrChunkCountMismatch indicates the chunk and transcript lists differ in
// length. This is fatal to the job.
var ErrChunkCountMismatch = errors.New("chunk count does not match transcript count")

// Overlap estimation tuning.
const (
	// speechWordsPerMinute estimates how many words fit in the overlap
	// window. Empirical fit varies by language and content; 150 wpm is a
	// reasonable average for conversational speech.
	speechWordsPerMinute = 150

	// maxOverlapShare caps the candidate overlap at half the previous
	// transcript, so a short chunk is never swallowed whole.
	maxOverlapShare = 0.5
)

// Assemble merges per-chunk transcripts in chunk-index order.
// Balanced mode concatenates; best-quality mode strips the duplicated
// overlap region from the head of each chunk whose predecessor overlaps it.
// The result is normalized exactly once.
func Assemble(chunks []chunk.Descriptor, texts []string, m mode.Mode) (string, error) {
	if len(chunks) != len(texts) {
		return "", ErrChunkCountMismatch
	}
	if len(chunks) == 0 {
		return "", nil
	}
	if len(chunks) == 1 {
		return Normalize(texts[0]), nil
	}

	if m != mode.BestQuality {
		return Normalize(strings.Join(texts, " ")), nil
	}

	parts := make([]string, len(texts))
	parts[0] = texts[0]
	for i := 1; i < len(texts); i++ {
		if chunks[i-1].HasOverlap {
			parts[i] = stripOverlap(chunks[i-1], texts[i-1], texts[i])
		} else {
			parts[i] = texts[i]
		}
	}
	return Normalize(strings.Join(parts, " ")), nil
}

// stripOverlap removes from cur the opening region duplicating the tail of
// prev. When no confident match is found, cur is returned verbatim: keeping
// a duplicate beats losing content.
func stripOverlap(prevChunk chunk.Descriptor, prev, cur string) string {
	overlapSeconds := (prevChunk.EndTime - prevChunk.OverlapStart).Seconds()

	prevWords := strings.Fields(prev)
	curWords := strings.Fields(cur)
	if len(prevWords) == 0 || len(curWords) == 0 {
		return cur
	}

	// Estimate the overlap length in words from its duration, capped by the
	// previous transcript so the candidate phrase stays meaningful.
	w := int(math.Ceil(overlapSeconds / 60 * speechWordsPerMinute))
	if w < 1 {
		w = 1
	}
	if limit := int(float64(len(prevWords)) * maxOverlapShare); w > limit {
		w = limit
	}
	if w < 1 {
		return cur
	}

	phrase := lowerWords(prevWords[len(prevWords)-w:])
	lowered := lowerWords(curWords)

	var start int
	if w > len(curWords) {
		// The next chunk is shorter than the candidate phrase, so no fuzzy
		// window fits; its words may still be a literal sub-phrase of the
		// overlap, which means the whole chunk is duplicated audio.
		start = findSubstringMatch(phrase, lowered)
	} else {
		// Most overlaps sit near the head of the next chunk, so search the
		// first half first, then widen, then fall back to a literal
		// sub-phrase scan.
		start = findFuzzyMatch(phrase, lowered, len(lowered)/2)
		if start < 0 {
			start = findFuzzyMatch(phrase, lowered, len(lowered))
		}
		if start < 0 {
			start = findSubstringMatch(phrase, lowered)
		}
	}
	if start < 0 {
		return cur
	}

	drop := start + w
	if drop >= len(curWords) {
		return ""
	}
	return strings.Join(curWords[drop:], " ")
}
