package facematch

import (
	"context"
	"fmt"
	"image"
	"sort"

	"github.com/Hofman2HQ/LookALike/internal/constants"
	"github.com/Hofman2HQ/LookALike/internal/fingerprint"
	"github.com/Hofman2HQ/LookALike/internal/imaging"
)

// nmsIoUThreshold suppresses overlapping boxes for the same face.
const nmsIoUThreshold = 0.4

// FaceLocator runs a learned face detector on an encoded image.
type FaceLocator interface {
	DetectFaces(ctx context.Context, imageData []byte) (*fingerprint.FaceResponse, error)
}

// SSDDetector feeds a fixed 300x300 blob to a single-shot detector and keeps
// the most confident face above the threshold.
type SSDDetector struct {
	locator    FaceLocator
	confidence float64
}

// NewSSDDetector creates a learned detector; confidence <= 0 selects 0.5.
func NewSSDDetector(locator FaceLocator, confidence float64) *SSDDetector {
	if confidence <= 0 {
		confidence = constants.DefaultDetectionConfidence
	}
	return &SSDDetector{locator: locator, confidence: confidence}
}

func (d *SSDDetector) Name() string { return DetectorSSD }

// Locate returns the best detection mapped back to img coordinates.
func (d *SSDDetector) Locate(ctx context.Context, img image.Image) (Detection, bool, error) {
	bounds := img.Bounds()
	if bounds.Dx() == 0 || bounds.Dy() == 0 {
		return Detection{}, false, nil
	}

	blob := imaging.Resize(img, constants.DetectorInputSize, constants.DetectorInputSize)
	data, err := imaging.EncodePNG(blob)
	if err != nil {
		return Detection{}, false, fmt.Errorf("failed to encode detector input: %w", err)
	}

	resp, err := d.locator.DetectFaces(ctx, data)
	if err != nil {
		return Detection{}, false, fmt.Errorf("face detection failed: %w", err)
	}

	detections := make([]Detection, 0, len(resp.Faces))
	for _, f := range resp.Faces {
		if len(f.BBox) != 4 {
			continue
		}
		detections = append(detections, Detection{
			BBox:       ScaleBBox(f.BBox, constants.DetectorInputSize, constants.DetectorInputSize, bounds.Dx(), bounds.Dy()),
			Confidence: f.DetScore,
		})
	}

	det, ok := MostConfidentFace(SuppressOverlaps(detections, nmsIoUThreshold), d.confidence)
	return det, ok, nil
}

// SuppressOverlaps performs greedy non-maximum suppression, keeping the most
// confident box of every group overlapping above iouThreshold.
func SuppressOverlaps(detections []Detection, iouThreshold float64) []Detection {
	sorted := make([]Detection, len(detections))
	copy(sorted, detections)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Confidence > sorted[j].Confidence })

	kept := make([]Detection, 0, len(sorted))
	for _, d := range sorted {
		overlaps := false
		for _, k := range kept {
			if ComputeIoU(d.BBox, k.BBox) > iouThreshold {
				overlaps = true
				break
			}
		}
		if !overlaps {
			kept = append(kept, d)
		}
	}
	return kept
}
