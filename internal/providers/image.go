package providers

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/adverant/nexus/ocr-engine/internal/ocr"
)

// PreparedImage is an image ready for transmission to a provider
type PreparedImage struct {
	Data      []byte
	MediaType string
	Reencoded bool
}

// passthroughTypes are accepted by every hosted vision backend as-is
var passthroughTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
	"image/webp": true,
}

var jpegQualities = []int{90, 80, 70, 60, 50, 40}

// PrepareImage fits data into maxBytes and maxDimension (0 disables a limit).
// Images that cannot be decoded are sent unchanged if they already fit.
func PrepareImage(data []byte, maxBytes, maxDimension int) (*PreparedImage, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty image")
	}

	mediaType := ocr.DetectMimeType(data)
	fitsBytes := maxBytes <= 0 || len(data) <= maxBytes

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		if fitsBytes {
			if mediaType == "" {
				mediaType = "image/jpeg"
			}
			return &PreparedImage{Data: data, MediaType: mediaType}, nil
		}
		return nil, fmt.Errorf("image of %d bytes exceeds limit %d and cannot be decoded: %w", len(data), maxBytes, err)
	}

	bounds := img.Bounds()
	fitsDims := maxDimension <= 0 || (bounds.Dx() <= maxDimension && bounds.Dy() <= maxDimension)
	if fitsBytes && fitsDims && passthroughTypes[mediaType] {
		return &PreparedImage{Data: data, MediaType: mediaType}, nil
	}

	if !fitsDims {
		img = imaging.Fit(img, maxDimension, maxDimension, imaging.Lanczos)
	}

	// Walk quality down, then shrink, until the encoding fits
	for scale := 0; scale < 4; scale++ {
		for _, q := range jpegQualities {
			var buf bytes.Buffer
			if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(q)); err != nil {
				return nil, fmt.Errorf("failed to encode image: %w", err)
			}
			if maxBytes <= 0 || buf.Len() <= maxBytes {
				return &PreparedImage{Data: buf.Bytes(), MediaType: "image/jpeg", Reencoded: true}, nil
			}
		}
		b := img.Bounds()
		img = imaging.Resize(img, b.Dx()*3/4, 0, imaging.Lanczos)
	}

	return nil, fmt.Errorf("image cannot be reduced below %d bytes", maxBytes)
}
