package media

import (
	"bytes"
	"image"
	"image/jpeg"

	"golang.org/x/image/draw"

	"github.com/sightline-ai/sightline/pkg/core"
)

// EncodeJPEG downscales img to the given width (height preserves the source
// aspect ratio) and compresses it. Images already at or below the target
// width are compressed as-is.
func EncodeJPEG(img image.Image, width, quality int) ([]byte, error) {
	if img == nil {
		return nil, core.NewDecodeError("nil frame")
	}
	bounds := img.Bounds()
	if bounds.Dx() <= 0 || bounds.Dy() <= 0 {
		return nil, core.NewDecodeError("empty frame")
	}

	if width > 0 && bounds.Dx() > width {
		height := bounds.Dy() * width / bounds.Dx()
		if height < 1 {
			height = 1
		}
		scaled := image.NewRGBA(image.Rect(0, 0, width, height))
		draw.ApproxBiLinear.Scale(scaled, scaled.Bounds(), img, bounds, draw.Src, nil)
		img = scaled
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
