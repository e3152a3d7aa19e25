package providers

import (
	"bytes"
	"fmt"
	"image"
	"math"
)

const (
	contrastGrid     = 64
	edgeThreshold    = 48.0
	minTextStdDev    = 18.0
	minTextEdgeRatio = 0.02
	maxTextEdgeRatio = 0.65
	minSampledPixels = 16
)

// ContrastAnalysis summarizes a sampled-pixel pass over an image
type ContrastAnalysis struct {
	Width         int
	Height        int
	Samples       int
	MeanLuminance float64
	StdDev        float64
	EdgeRatio     float64
	LikelyText    bool
}

// AnalyzeContrast samples a grid of pixels and decides whether the image
// likely contains printed text: text shows high luminance spread with a
// moderate share of sharp transitions between neighbouring samples.
func AnalyzeContrast(data []byte) (*ContrastAnalysis, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w == 0 || h == 0 {
		return nil, fmt.Errorf("image has no pixels")
	}

	stepX := w / contrastGrid
	if stepX < 1 {
		stepX = 1
	}
	stepY := h / contrastGrid
	if stepY < 1 {
		stepY = 1
	}

	var sum, sumSq float64
	samples, edges, pairs := 0, 0, 0

	for y := b.Min.Y; y < b.Max.Y; y += stepY {
		prev := -1.0
		for x := b.Min.X; x < b.Max.X; x += stepX {
			l := luminance(img, x, y)
			sum += l
			sumSq += l * l
			samples++

			if prev >= 0 {
				pairs++
				if math.Abs(l-prev) > edgeThreshold {
					edges++
				}
			}
			prev = l
		}
	}

	mean := sum / float64(samples)
	variance := sumSq/float64(samples) - mean*mean
	if variance < 0 {
		variance = 0
	}

	analysis := &ContrastAnalysis{
		Width:         w,
		Height:        h,
		Samples:       samples,
		MeanLuminance: mean,
		StdDev:        math.Sqrt(variance),
	}
	if pairs > 0 {
		analysis.EdgeRatio = float64(edges) / float64(pairs)
	}

	analysis.LikelyText = samples >= minSampledPixels &&
		analysis.StdDev >= minTextStdDev &&
		analysis.EdgeRatio >= minTextEdgeRatio &&
		analysis.EdgeRatio <= maxTextEdgeRatio

	return analysis, nil
}

func luminance(img image.Image, x, y int) float64 {
	r, g, b, _ := img.At(x, y).RGBA()
	// RGBA returns 16-bit channels
	return 0.299*float64(r>>8) + 0.587*float64(g>>8) + 0.114*float64(b>>8)
}
