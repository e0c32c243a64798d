package facematch

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"math"
	"testing"

	"github.com/Hofman2HQ/LookALike/internal/fingerprint"
)

type fakeLocator struct {
	faces []fingerprint.FaceDetection
	err   error
	got   image.Point
}

func (f *fakeLocator) DetectFaces(_ context.Context, data []byte) (*fingerprint.FaceResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	if img, err := png.Decode(bytes.NewReader(data)); err == nil {
		f.got = img.Bounds().Size()
	}
	return &fingerprint.FaceResponse{FacesCount: len(f.faces), Faces: f.faces}, nil
}

func TestSSDDetector_Locate(t *testing.T) {
	loc := &fakeLocator{faces: []fingerprint.FaceDetection{
		{BBox: []float64{0, 0, 150, 150}, DetScore: 0.3},
		{BBox: []float64{30, 60, 90, 120}, DetScore: 0.9},
		{BBox: []float64{32, 62, 92, 122}, DetScore: 0.7}, // overlaps the 0.9 box
		{BBox: []float64{1, 2}, DetScore: 0.99},           // malformed
	}}
	d := NewSSDDetector(loc, 0.5)

	det, ok, err := d.Locate(context.Background(), createTestImage(600, 150, color.White))
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("expected a face")
	}
	if loc.got != image.Pt(300, 300) {
		t.Errorf("detector input = %v, want 300x300", loc.got)
	}
	want := []float64{60, 30, 180, 60}
	for i := range want {
		if math.Abs(det.BBox[i]-want[i]) > 1e-9 {
			t.Fatalf("bbox = %v, want %v", det.BBox, want)
		}
	}
	if det.Confidence != 0.9 {
		t.Errorf("confidence = %f, want 0.9", det.Confidence)
	}
}

func TestSSDDetector_BelowConfidence(t *testing.T) {
	loc := &fakeLocator{faces: []fingerprint.FaceDetection{{BBox: []float64{0, 0, 100, 100}, DetScore: 0.49}}}
	_, ok, err := NewSSDDetector(loc, 0).Locate(context.Background(), createTestImage(50, 50, color.White))
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("expected no face below the default confidence")
	}
}

func TestSSDDetector_Error(t *testing.T) {
	loc := &fakeLocator{err: errors.New("connection refused")}
	_, ok, err := NewSSDDetector(loc, 0.5).Locate(context.Background(), createTestImage(50, 50, color.White))
	if err == nil || ok {
		t.Errorf("expected error, got ok=%v err=%v", ok, err)
	}
}

func TestSuppressOverlaps(t *testing.T) {
	dets := []Detection{
		{BBox: []float64{0, 0, 10, 10}, Confidence: 0.6},
		{BBox: []float64{1, 1, 11, 11}, Confidence: 0.8},
		{BBox: []float64{50, 50, 60, 60}, Confidence: 0.7},
	}
	kept := SuppressOverlaps(dets, 0.4)
	if len(kept) != 2 {
		t.Fatalf("expected 2 boxes, got %d", len(kept))
	}
	if kept[0].Confidence != 0.8 || kept[1].Confidence != 0.7 {
		t.Errorf("unexpected survivors %+v", kept)
	}
}
