//go:build cgo && ocr

package providers

import (
	"context"
	"fmt"
	"strings"

	"github.com/otiai10/gosseract/v2"
)

// TesseractEngine performs local OCR through libtesseract
type TesseractEngine struct {
	languages []string
}

// NewTesseractEngine creates a local engine for the given languages
func NewTesseractEngine(languages []string) LocalEngine {
	return &TesseractEngine{languages: languages}
}

func (t *TesseractEngine) Available() bool {
	return true
}

// Recognize runs OCR on image bytes and returns the text with its mean word confidence
func (t *TesseractEngine) Recognize(ctx context.Context, image []byte, languages []string) (string, float64, error) {
	if err := ctx.Err(); err != nil {
		return "", 0, err
	}
	if len(languages) == 0 {
		languages = t.languages
	}

	// Create Tesseract client
	client := gosseract.NewClient()
	defer client.Close()

	if err := client.SetLanguage(languages...); err != nil {
		return "", 0, fmt.Errorf("failed to set languages %s: %w", strings.Join(languages, "+"), err)
	}

	// Set image from bytes
	if err := client.SetImageFromBytes(image); err != nil {
		return "", 0, fmt.Errorf("failed to set image: %w", err)
	}

	// Extract text
	text, err := client.Text()
	if err != nil {
		return "", 0, fmt.Errorf("tesseract OCR failed: %w", err)
	}

	// Prefer the engine's own word confidences when present
	boxes, err := client.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil || len(boxes) == 0 {
		return text, calculateTesseractConfidence(text), nil
	}
	var total float64
	for _, b := range boxes {
		total += b.Confidence
	}
	return text, total / float64(len(boxes)) / 100, nil
}

func (t *TesseractEngine) Close() error {
	return nil
}
