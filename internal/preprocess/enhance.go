package preprocess

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"

	"github.com/disintegration/imaging"
)

// Level selects the enhancement aggressiveness.
type Level string

const (
	LevelFast     Level = "fast"
	LevelBalanced Level = "balanced"
	LevelQuality  Level = "quality"
)

func ParseLevel(s string) (Level, error) {
	switch Level(s) {
	case LevelFast, LevelBalanced, LevelQuality:
		return Level(s), nil
	default:
		return "", fmt.Errorf("unknown preprocess level %q", s)
	}
}

// Enhance normalizes one receipt image for OCR: EXIF orientation fix,
// dimension clamp, sharpening, contrast boost and grayscale conversion.
// Output is always JPEG, the color mode both extraction backends accept.
func Enhance(data []byte, level Level, maxDim int) ([]byte, error) {
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	img = clamp(img, maxDim)

	switch level {
	case LevelFast:
		img = imaging.Sharpen(img, 1.5)
		img = imaging.AdjustContrast(img, 25)
		img = imaging.Grayscale(img)

	case LevelQuality:
		img = imaging.Sharpen(img, 3.5)
		img = imaging.AdjustContrast(img, 50)
		img = imaging.AdjustBrightness(img, 20)
		img = imaging.Grayscale(img)
		img = imaging.AdjustContrast(img, 45)
		img = imaging.AdjustGamma(img, 1.2)
		img = imaging.Sharpen(img, 1.0)

	default: // LevelBalanced
		img = imaging.Sharpen(img, 2.5)
		img = imaging.AdjustContrast(img, 40)
		img = imaging.AdjustBrightness(img, 15)
		img = imaging.Grayscale(img)
		img = imaging.AdjustContrast(img, 30)
		img = imaging.AdjustGamma(img, 1.1)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 95}); err != nil {
		return nil, fmt.Errorf("failed to encode processed image: %w", err)
	}
	return buf.Bytes(), nil
}

// clamp resizes so the longest side does not exceed maxDim, preserving
// aspect ratio. Receipts photographed at full phone resolution blow past
// backend payload limits otherwise.
func clamp(img image.Image, maxDim int) image.Image {
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if width <= maxDim && height <= maxDim {
		return img
	}
	if width > height {
		return imaging.Resize(img, maxDim, 0, imaging.Lanczos)
	}
	return imaging.Resize(img, 0, maxDim, imaging.Lanczos)
}
