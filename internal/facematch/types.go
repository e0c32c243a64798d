// Package facematch locates the most prominent face in an image and aligns it
// into the fixed-size square crop consumed by embedders.
package facematch

import (
	"context"
	"image"
)

// Detection is a single face candidate in source pixel coordinates.
type Detection struct {
	BBox       []float64 // [x1, y1, x2, y2]
	Confidence float64   // detector score; neighbour count for the cascade
}

// Area returns the bounding box area in square pixels.
func (d Detection) Area() float64 {
	return BBoxArea(d.BBox)
}

// Detector finds the face a crop should be built from. Locate reports false
// when no usable face was found; callers then fall back to the whole image.
type Detector interface {
	Name() string
	Locate(ctx context.Context, img image.Image) (Detection, bool, error)
}

// Detector kinds accepted by NewDetector.
const (
	DetectorCascade = "cascade"
	DetectorSSD     = "ssd"
	DetectorNone    = "none"
)

// LargestFace picks the detection with the largest area. Ties keep the first.
func LargestFace(detections []Detection) (Detection, bool) {
	best := -1
	bestArea := 0.0
	for i, d := range detections {
		if a := d.Area(); a > bestArea {
			best, bestArea = i, a
		}
	}
	if best < 0 {
		return Detection{}, false
	}
	return detections[best], true
}

// MostConfidentFace picks the highest scoring detection at or above minConfidence.
func MostConfidentFace(detections []Detection, minConfidence float64) (Detection, bool) {
	best := -1
	for i, d := range detections {
		if d.Confidence < minConfidence || d.Area() == 0 {
			continue
		}
		if best < 0 || d.Confidence > detections[best].Confidence {
			best = i
		}
	}
	if best < 0 {
		return Detection{}, false
	}
	return detections[best], true
}

// noDetector always reports no face, so the whole image is used.
type noDetector struct{}

func (noDetector) Name() string { return DetectorNone }

func (noDetector) Locate(context.Context, image.Image) (Detection, bool, error) {
	return Detection{}, false, nil
}
