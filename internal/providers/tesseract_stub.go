//go:build !cgo || !ocr

package providers

import (
	"context"
	"fmt"
)

// TesseractEngine is a stub for builds without Tesseract/CGO support
type TesseractEngine struct{}

// NewTesseractEngine creates a stub engine that reports unavailability
func NewTesseractEngine(languages []string) LocalEngine {
	return &TesseractEngine{}
}

func (t *TesseractEngine) Available() bool {
	return false
}

func (t *TesseractEngine) Recognize(ctx context.Context, image []byte, languages []string) (string, float64, error) {
	return "", 0, fmt.Errorf("local OCR not available: built without Tesseract support")
}

func (t *TesseractEngine) Close() error {
	return nil
}
