package providers

import (
	"fmt"
	"strings"

	"github.com/adverant/nexus/ocr-engine/internal/ocr"
)

const basePrompt = "Extract all text from this image exactly as it appears. " +
	"Preserve line breaks and reading order. " +
	"Return only the extracted text with no commentary or formatting."

// BuildPrompt constructs the instruction sent alongside the image
func BuildPrompt(opts ocr.Options) string {
	var sb strings.Builder
	sb.WriteString(basePrompt)

	if opts.DetectTables {
		sb.WriteString(" Render every table with one row per line and cells separated by \" | \".")
	}

	if lang := strings.TrimSpace(opts.Language); lang != "" && !strings.EqualFold(lang, "auto") {
		sb.WriteString(fmt.Sprintf(" The document is written in %s.", lang))
	}

	return sb.String()
}
