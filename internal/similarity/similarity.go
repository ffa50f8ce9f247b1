// Package similarity scores decoded text against the text that was encoded.
package similarity

import (
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
)

// SuccessThreshold is the minimum score counted as a successful decode.
const SuccessThreshold = 0.9

// Score returns 1 - editDistance/maxLen over runes. An empty expected text
// always scores 0.
func Score(expected, observed string) float64 {
	if expected == "" {
		return 0
	}
	maxLen := utf8.RuneCountInString(expected)
	if n := utf8.RuneCountInString(observed); n > maxLen {
		maxLen = n
	}
	dist := levenshtein.ComputeDistance(expected, observed)
	return 1 - float64(dist)/float64(maxLen)
}

// Succeeded applies SuccessThreshold.
func Succeeded(score float64) bool {
	return score >= SuccessThreshold
}
