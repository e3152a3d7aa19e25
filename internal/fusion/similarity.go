package fusion

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// normalize folds case, composes unicode and collapses whitespace.
// A Caser is stateful, so each call gets its own.
func normalize(s string) string {
	s = norm.NFKC.String(s)
	s = cases.Fold().String(s)
	return strings.Join(strings.Fields(s), " ")
}

// Similarity is 1 - levenshtein(a, b) / max(len(a), len(b)) over normalized
// runes. Two empty texts are identical.
func Similarity(a, b string, maxRunes int) float64 {
	ra := []rune(normalize(a))
	rb := []rune(normalize(b))
	if maxRunes > 0 {
		if len(ra) > maxRunes {
			ra = ra[:maxRunes]
		}
		if len(rb) > maxRunes {
			rb = rb[:maxRunes]
		}
	}

	longest := len(ra)
	if len(rb) > longest {
		longest = len(rb)
	}
	if longest == 0 {
		return 1
	}

	return 1 - float64(levenshtein(ra, rb))/float64(longest)
}

func levenshtein(a, b []rune) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}

	return prev[len(b)]
}

// maxPairwise returns the highest similarity among all pairs
func maxPairwise(texts []string, maxRunes int) float64 {
	best := 0.0
	for i := 0; i < len(texts); i++ {
		for j := i + 1; j < len(texts); j++ {
			if s := Similarity(texts[i], texts[j], maxRunes); s > best {
				best = s
			}
		}
	}
	return best
}
