package facematch

import (
	"image"
	"math"
)

// ComputeIoU calculates Intersection over Union between two bounding boxes.
// bbox1 and bbox2 are [x1, y1, x2, y2] in the same coordinate system.
func ComputeIoU(bbox1, bbox2 []float64) float64 {
	if len(bbox1) != 4 || len(bbox2) != 4 {
		return 0
	}

	// Calculate intersection.
	x1 := max(bbox1[0], bbox2[0])
	y1 := max(bbox1[1], bbox2[1])
	x2 := min(bbox1[2], bbox2[2])
	y2 := min(bbox1[3], bbox2[3])

	if x2 <= x1 || y2 <= y1 {
		return 0 // No intersection
	}

	intersection := (x2 - x1) * (y2 - y1)

	// Calculate union.
	union := BBoxArea(bbox1) + BBoxArea(bbox2) - intersection

	if union <= 0 {
		return 0
	}

	return intersection / union
}

// BBoxArea returns the area of an [x1, y1, x2, y2] box, zero for malformed boxes.
func BBoxArea(bbox []float64) float64 {
	if len(bbox) != 4 {
		return 0
	}
	w := bbox[2] - bbox[0]
	h := bbox[3] - bbox[1]
	if w <= 0 || h <= 0 {
		return 0
	}
	return w * h
}

// ScaleBBox maps a box from a fromW x fromH coordinate space into toW x toH.
func ScaleBBox(bbox []float64, fromW, fromH, toW, toH int) []float64 {
	if len(bbox) != 4 || fromW <= 0 || fromH <= 0 {
		return bbox
	}
	sx := float64(toW) / float64(fromW)
	sy := float64(toH) / float64(fromH)
	return []float64{bbox[0] * sx, bbox[1] * sy, bbox[2] * sx, bbox[3] * sy}
}

// BBoxToRect converts a pixel box to an integer rectangle clamped to bounds.
// The rectangle is empty when the box does not overlap bounds.
func BBoxToRect(bbox []float64, bounds image.Rectangle) image.Rectangle {
	if len(bbox) != 4 {
		return image.Rectangle{}
	}
	r := image.Rect(
		bounds.Min.X+int(math.Floor(bbox[0])),
		bounds.Min.Y+int(math.Floor(bbox[1])),
		bounds.Min.X+int(math.Ceil(bbox[2])),
		bounds.Min.Y+int(math.Ceil(bbox[3])),
	)
	return r.Intersect(bounds)
}

// RectToBBox converts an integer rectangle (relative to its image origin) to [x1, y1, x2, y2].
func RectToBBox(r image.Rectangle) []float64 {
	return []float64{float64(r.Min.X), float64(r.Min.Y), float64(r.Max.X), float64(r.Max.Y)}
}
