package facematch

import (
	"context"
	"errors"
	"image"
	"image/color"
	"testing"

	"github.com/Hofman2HQ/LookALike/internal/constants"
	"github.com/Hofman2HQ/LookALike/internal/fingerprint"
)

type stubDetector struct {
	det Detection
	ok  bool
	err error
}

func (s stubDetector) Name() string { return "stub" }

func (s stubDetector) Locate(context.Context, image.Image) (Detection, bool, error) {
	return s.det, s.ok, s.err
}

func TestDetectAndAlign_AlwaysCropSize(t *testing.T) {
	cascade := NewCascadeDetector(mustParseCascade(t, testCascadeXML(2, "")), 1.1, 5, 0)
	sizes := []image.Point{{1, 1}, {10, 10}, {112, 112}, {640, 480}, {37, 901}}

	detectors := map[string]Detector{
		"none":      noDetector{},
		"cascade":   cascade,
		"ssd-error": NewSSDDetector(&fakeLocator{err: errors.New("down")}, 0.5),
		"ssd-empty": NewSSDDetector(&fakeLocator{}, 0.5),
		"off-image": stubDetector{det: Detection{BBox: []float64{5000, 5000, 6000, 6000}}, ok: true},
	}

	for name, d := range detectors {
		p := NewPreprocessor(d)
		for _, size := range sizes {
			crop := p.DetectAndAlign(context.Background(), createTestImage(size.X, size.Y, color.Gray{Y: 200}))
			if crop.Bounds() != image.Rect(0, 0, 112, 112) {
				t.Errorf("%s %v: crop bounds %v, want 112x112", name, size, crop.Bounds())
			}
		}
	}
}

func TestDetectAndAlign_EmptyImage(t *testing.T) {
	crop := NewPreprocessor(nil).DetectAndAlign(context.Background(), image.NewRGBA(image.Rect(0, 0, 0, 0)))
	if crop.Bounds() != image.Rect(0, 0, 112, 112) {
		t.Errorf("crop bounds %v, want 112x112", crop.Bounds())
	}
}

func TestDetectAndAlign_UsesDetectedRegion(t *testing.T) {
	// Left half red, right half blue; the face box covers only the blue half.
	img := image.NewRGBA(image.Rect(0, 0, 200, 100))
	for y := range 100 {
		for x := range 200 {
			c := color.RGBA{R: 255, A: 255}
			if x >= 100 {
				c = color.RGBA{B: 255, A: 255}
			}
			img.Set(x, y, c)
		}
	}

	p := NewPreprocessor(stubDetector{det: Detection{BBox: []float64{120, 10, 180, 90}, Confidence: 1}, ok: true})
	crop := p.DetectAndAlign(context.Background(), img)

	r, _, b, _ := crop.At(56, 56).RGBA()
	if r != 0 || b == 0 {
		t.Errorf("expected crop from the blue region, got r=%d b=%d", r, b)
	}
}

func TestDetectAndAlign_DeterministicWithHashEmbedder(t *testing.T) {
	p := NewPreprocessor(nil)
	e := fingerprint.NewHashEmbedder(512)
	img := createTestImage(80, 60, color.RGBA{R: 10, G: 200, B: 30, A: 255})

	v1, _ := e.Embed(context.Background(), p.DetectAndAlign(context.Background(), img))
	v2, _ := e.Embed(context.Background(), p.DetectAndAlign(context.Background(), img))
	for i := range v1 {
		if v1[i] != v2[i] {
			t.Fatalf("embedding differs at %d", i)
		}
	}
}

type sizeRecorder struct{ seen image.Rectangle }

func (s *sizeRecorder) Name() string { return "recorder" }

func (s *sizeRecorder) Locate(_ context.Context, img image.Image) (Detection, bool, error) {
	s.seen = img.Bounds()
	return Detection{}, false, nil
}

func TestDetectAndAlign_DownscalesLargeImages(t *testing.T) {
	rec := &sizeRecorder{}
	crop := NewPreprocessor(rec).DetectAndAlign(context.Background(), createTestImage(constants.MaxImageSize*2, 300, color.Gray{Y: 120}))

	if rec.seen.Dx() != constants.MaxImageSize || rec.seen.Dy() != 150 {
		t.Errorf("detector saw %v, want %dx150", rec.seen, constants.MaxImageSize)
	}
	if crop.Bounds() != image.Rect(0, 0, 112, 112) {
		t.Errorf("crop bounds %v, want 112x112", crop.Bounds())
	}
}
