package assemble

// Export internal functions for testing.
var (
	Levenshtein        = levenshtein
	WordsSimilar       = wordsSimilar
	Similarity         = similarity
	FindFuzzyMatch     = findFuzzyMatch
	FindSubstringMatch = findSubstringMatch
)
