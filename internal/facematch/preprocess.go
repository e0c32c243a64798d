package facematch

import (
	"context"
	"image"
	"log/slog"

	"github.com/Hofman2HQ/LookALike/internal/constants"
	"github.com/Hofman2HQ/LookALike/internal/imaging"
)

// Preprocessor turns arbitrary images into aligned face crops.
type Preprocessor struct {
	detector Detector
	size     int
}

// NewPreprocessor builds a preprocessor around d; a nil detector crops the whole image.
func NewPreprocessor(d Detector) *Preprocessor {
	if d == nil {
		d = noDetector{}
	}
	return &Preprocessor{detector: d, size: constants.FaceCropSize}
}

// DetectorName reports the active detection strategy.
func (p *Preprocessor) DetectorName() string {
	return p.detector.Name()
}

// DetectAndAlign crops the most prominent face and resizes it to a
// 112x112 RGB image. Images larger than MaxImageSize are downscaled first.
// When no face is found, or detection fails, the whole image is resized
// instead, so the result always has the crop size.
func (p *Preprocessor) DetectAndAlign(ctx context.Context, img image.Image) *image.RGBA {
	if img.Bounds().Empty() {
		return image.NewRGBA(image.Rect(0, 0, p.size, p.size))
	}
	img = imaging.FitWithin(img, constants.MaxImageSize)
	bounds := img.Bounds()

	det, ok, err := p.detector.Locate(ctx, img)
	if err != nil {
		slog.Warn("face detection failed, using whole image", "detector", p.detector.Name(), "error", err)
		ok = false
	}
	if ok {
		if region := BBoxToRect(det.BBox, bounds); !region.Empty() {
			return imaging.ResizeRegion(img, region, p.size, p.size)
		}
	}
	return imaging.Resize(img, p.size, p.size)
}
