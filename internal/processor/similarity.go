// similarity.go - Fuzzy name matching for chunk dedupe and correction lookup

package processor

import (
	"strings"
)

// NameSimilarity returns a score in [0,1] for two item names.
//
// The score blends word-level Jaccard overlap with a character-level
// Levenshtein ratio (60/40), computed on lowercased, space-normalized
// input. 1.0 means identical after normalization; the pipeline treats
// scores at or above the configured threshold (default 0.75) as the
// same product. Symmetric: NameSimilarity(a, b) == NameSimilarity(b, a).
func NameSimilarity(a, b string) float64 {
	a = normalizeForMatch(a)
	b = normalizeForMatch(b)

	if a == "" || b == "" {
		return 0.0
	}
	if a == b {
		return 1.0
	}

	jaccard := tokenJaccard(a, b)
	editRatio := levenshteinRatio(a, b)

	score := jaccard*0.6 + editRatio*0.4

	// Substring containment bonus ("bananas" vs "organic bananas")
	if strings.Contains(a, b) || strings.Contains(b, a) {
		score += 0.2
	}

	if score > 1.0 {
		score = 1.0
	}
	return score
}

func normalizeForMatch(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// tokenJaccard computes word-overlap similarity (intersection / union)
func tokenJaccard(s1, s2 string) float64 {
	words1 := strings.Fields(s1)
	words2 := strings.Fields(s2)

	if len(words1) == 0 || len(words2) == 0 {
		return 0.0
	}

	commonCount := 0
	for _, w1 := range words1 {
		for _, w2 := range words2 {
			if w1 == w2 {
				commonCount++
				break
			}
		}
	}

	totalWords := len(words1) + len(words2) - commonCount
	if totalWords == 0 {
		return 0.0
	}

	return float64(commonCount) / float64(totalWords)
}

// levenshteinRatio converts edit distance to a [0,1] similarity
func levenshteinRatio(s1, s2 string) float64 {
	maxLen := len(s1)
	if len(s2) > maxLen {
		maxLen = len(s2)
	}
	if maxLen == 0 {
		return 1.0
	}

	dist := levenshteinDistance(s1, s2)
	return 1.0 - float64(dist)/float64(maxLen)
}

func levenshteinDistance(s1, s2 string) int {
	len1 := len(s1)
	len2 := len(s2)

	matrix := make([][]int, len1+1)
	for i := range matrix {
		matrix[i] = make([]int, len2+1)
	}

	for i := 0; i <= len1; i++ {
		matrix[i][0] = i
	}
	for j := 0; j <= len2; j++ {
		matrix[0][j] = j
	}

	for i := 1; i <= len1; i++ {
		for j := 1; j <= len2; j++ {
			cost := 0
			if s1[i-1] != s2[j-1] {
				cost = 1
			}

			matrix[i][j] = minInt(
				matrix[i-1][j]+1,      // deletion
				matrix[i][j-1]+1,      // insertion
				matrix[i-1][j-1]+cost, // substitution
			)
		}
	}

	return matrix[len1][len2]
}

func minInt(values ...int) int {
	m := values[0]
	for _, v := range values[1:] {
		if v < m {
			m = v
		}
	}
	return m
}
