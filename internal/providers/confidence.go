package providers

import (
	"strings"
	"unicode"

	"github.com/adverant/nexus/ocr-engine/internal/ocr"
)

const (
	MinHeuristicConfidence = 0.1
	MaxHeuristicConfidence = 0.95
)

// EstimateConfidence derives a confidence for backends that report none.
// It looks at completeness, length and structural characters and always
// stays inside [0.1, 0.95].
func EstimateConfidence(text string, truncated bool) float64 {
	text = strings.TrimSpace(text)
	if text == "" {
		return MinHeuristicConfidence
	}

	confidence := 0.75 // Base confidence for a complete generation
	if truncated {
		confidence = 0.55
	}

	// Check text length
	switch n := len(text); {
	case n < 20:
		confidence -= 0.15
	case n >= 500:
		confidence += 0.1
	case n >= 100:
		confidence += 0.05
	}

	// Multi-line output means layout was preserved
	if strings.Count(text, "\n") >= 2 {
		confidence += 0.05
	}

	// Structural characters: digits, currency, separators
	if strings.ContainsAny(text, ":|$€£%#") || strings.IndexFunc(text, unicode.IsDigit) >= 0 {
		confidence += 0.05
	}

	// Mostly non-letters usually means garbage
	letters := 0
	for _, r := range text {
		if unicode.IsLetter(r) {
			letters++
		}
	}
	if float64(letters)/float64(len([]rune(text))) < 0.3 {
		confidence -= 0.2
	}

	return ocr.ClampConfidence(confidence, MinHeuristicConfidence, MaxHeuristicConfidence)
}

// calculateTesseractConfidence estimates confidence of local OCR output
// when the engine's own mean confidence is unavailable
func calculateTesseractConfidence(text string) float64 {
	confidence := 0.5 // Base confidence

	// Check text length
	if len(text) > 1000 {
		confidence += 0.1
	}
	if len(text) > 5000 {
		confidence += 0.1
	}

	// Check for coherent words (simple heuristic)
	words := strings.Fields(text)
	if len(words) > 100 {
		confidence += 0.1
	}

	// Check for reasonable character distribution
	alphaCount := 0
	for _, r := range text {
		if unicode.IsLetter(r) {
			alphaCount++
		}
	}
	if len(text) > 0 {
		alphaRatio := float64(alphaCount) / float64(len(text))
		if alphaRatio > 0.5 && alphaRatio < 0.9 {
			confidence += 0.1
		}
	}

	// Cap at reasonable maximum for Tesseract
	if confidence > 0.85 {
		confidence = 0.85
	}

	return confidence
}
