package facematch

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// testCascadeXML builds a one-stage, one-stump cascade over a 24x24 window.
// With leaves {1, 1} every window scores 1, so stageThreshold decides whether
// everything or nothing is accepted.
func testCascadeXML(stageThreshold float64, featureExtra string) string {
	return fmt.Sprintf(`<?xml version="1.0"?>
<opencv_storage>
<cascade type_id="opencv-cascade-classifier">
  <stageType>BOOST</stageType>
  <featureType>HAAR</featureType>
  <height>24</height>
  <width>24</width>
  <stageNum>1</stageNum>
  <stages>
    <_>
      <maxWeakCount>1</maxWeakCount>
      <stageThreshold>%g</stageThreshold>
      <weakClassifiers>
        <_>
          <internalNodes>
            0 -1 0 1.0e-02</internalNodes>
          <leafValues>
            1. 1.</leafValues></_></weakClassifiers></_></stages>
  <features>
    <_>
      <rects>
        <_>
          0 0 24 24 -1.</_>
        <_>
          6 6 12 12 4.</_></rects>%s</_></features></cascade>
</opencv_storage>
`, stageThreshold, featureExtra)
}

func mustParseCascade(t *testing.T, src string) *Cascade {
	t.Helper()
	c, err := ParseCascade(strings.NewReader(src))
	if err != nil {
		t.Fatalf("ParseCascade failed: %v", err)
	}
	return c
}

func createTestImage(width, height int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := range height {
		for x := range width {
			img.Set(x, y, c)
		}
	}
	return img
}

func TestParseCascade(t *testing.T) {
	c := mustParseCascade(t, testCascadeXML(0.5, ""))
	w, h := c.WindowSize()
	if w != 24 || h != 24 {
		t.Errorf("window = %dx%d, want 24x24", w, h)
	}
	if len(c.stages) != 1 || len(c.stages[0].weak) != 1 {
		t.Fatalf("unexpected structure: %+v", c.stages)
	}
	if len(c.features) != 1 || len(c.features[0]) != 2 {
		t.Fatalf("unexpected features: %+v", c.features)
	}
	if c.features[0][1].weight != 4 {
		t.Errorf("unexpected rect weight %f", c.features[0][1].weight)
	}
}

func TestParseCascade_Unsupported(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"tilted feature", testCascadeXML(0.5, "\n      <tilted>1</tilted>")},
		{"lbp cascade", strings.Replace(testCascadeXML(0.5, ""), "HAAR", "LBP", 1)},
		{"rect outside window", strings.Replace(testCascadeXML(0.5, ""), "6 6 12 12 4.", "20 20 12 12 4.", 1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseCascade(strings.NewReader(tt.src))
			if !errors.Is(err, ErrUnsupportedCascade) {
				t.Errorf("expected ErrUnsupportedCascade, got %v", err)
			}
		})
	}

	if _, err := ParseCascade(strings.NewReader("<not-xml")); err == nil {
		t.Error("expected error for malformed XML")
	}
}

func TestDetectMultiScale_AcceptAll(t *testing.T) {
	c := mustParseCascade(t, testCascadeXML(0.5, ""))
	img := createTestImage(64, 48, color.Gray{Y: 128})

	dets := c.DetectMultiScale(img, 1.1, 5, 0)
	if len(dets) == 0 {
		t.Fatal("expected grouped detections")
	}
	for _, d := range dets {
		if d.BBox[0] < 0 || d.BBox[1] < 0 || d.BBox[2] > 64 || d.BBox[3] > 48 {
			t.Errorf("detection %v outside image", d.BBox)
		}
		if d.Confidence <= 5 {
			t.Errorf("grouped detection should have more than 5 neighbours, got %f", d.Confidence)
		}
	}
}

func TestDetectMultiScale_RejectAll(t *testing.T) {
	c := mustParseCascade(t, testCascadeXML(2, ""))
	if dets := c.DetectMultiScale(createTestImage(64, 48, color.White), 1.1, 5, 0); len(dets) != 0 {
		t.Errorf("expected no detections, got %d", len(dets))
	}
}

func TestDetectMultiScale_TinyImage(t *testing.T) {
	c := mustParseCascade(t, testCascadeXML(0.5, ""))
	if dets := c.DetectMultiScale(createTestImage(1, 1, color.White), 1.1, 5, 0); len(dets) != 0 {
		t.Errorf("expected no detections on 1x1 input, got %d", len(dets))
	}
}

func TestIntegral(t *testing.T) {
	plane := []float64{
		1, 2, 3,
		4, 5, 6,
	}
	ii := newIntegral(plane, 3, 2)
	if got := ii.rectSum(ii.sum, 0, 0, 3, 2); got != 21 {
		t.Errorf("full sum = %f, want 21", got)
	}
	if got := ii.rectSum(ii.sum, 1, 1, 2, 1); got != 11 {
		t.Errorf("sub sum = %f, want 11", got)
	}
	if got := ii.rectSum(ii.sqsum, 0, 0, 1, 2); got != 17 {
		t.Errorf("sq sum = %f, want 17", got)
	}
}

func TestGroupRectangles(t *testing.T) {
	var rects []image.Rectangle
	for i := range 6 {
		rects = append(rects, image.Rect(10+i%2, 10, 40+i%2, 40))
	}

	groups := GroupRectangles(rects, 5, 0.2)
	if len(groups) != 1 {
		t.Fatalf("expected 1 group, got %d", len(groups))
	}
	if groups[0].Neighbors != 6 {
		t.Errorf("expected 6 neighbours, got %d", groups[0].Neighbors)
	}

	if groups := GroupRectangles(rects[:5], 5, 0.2); len(groups) != 0 {
		t.Errorf("expected clusters of 5 to be dropped, got %d", len(groups))
	}
	if groups := GroupRectangles(nil, 5, 0.2); groups != nil {
		t.Errorf("expected nil for no input, got %v", groups)
	}
}

func TestGroupRectangles_DropsNested(t *testing.T) {
	var rects []image.Rectangle
	for range 10 {
		rects = append(rects, image.Rect(0, 0, 100, 100))
	}
	for range 6 {
		rects = append(rects, image.Rect(40, 40, 60, 60))
	}

	groups := GroupRectangles(rects, 3, 0.2)
	if len(groups) != 1 {
		t.Fatalf("expected nested group to be removed, got %v", groups)
	}
	if groups[0].Rect != image.Rect(0, 0, 100, 100) {
		t.Errorf("unexpected surviving group %v", groups[0].Rect)
	}
}

func writeCascadeFile(t *testing.T, src string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cascade.xml")
	if err := os.WriteFile(path, []byte(src), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestNewDetector_Fallbacks(t *testing.T) {
	cascadePath := writeCascadeFile(t, testCascadeXML(0.5, ""))

	tests := []struct {
		name string
		opts DetectorOptions
		want string
	}{
		{"cascade", DetectorOptions{Kind: "cascade", CascadePath: cascadePath}, DetectorCascade},
		{"default kind is cascade", DetectorOptions{CascadePath: cascadePath}, DetectorCascade},
		{"missing cascade file", DetectorOptions{Kind: "cascade", CascadePath: filepath.Join(t.TempDir(), "nope.xml")}, DetectorNone},
		{"ssd without model", DetectorOptions{Kind: "ssd", CascadePath: cascadePath}, DetectorCascade},
		{"ssd without model or cascade", DetectorOptions{Kind: "ssd"}, DetectorNone},
		{"ssd with model", DetectorOptions{Kind: "SSD", Locator: &fakeLocator{}}, DetectorSSD},
		{"explicit none", DetectorOptions{Kind: "none", CascadePath: cascadePath}, DetectorNone},
		{"unknown", DetectorOptions{Kind: "yolo"}, DetectorNone},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NewDetector(tt.opts).Name(); got != tt.want {
				t.Errorf("NewDetector(%+v).Name() = %q, want %q", tt.opts, got, tt.want)
			}
		})
	}
}

func TestCascadeDetector_Locate(t *testing.T) {
	d := NewCascadeDetector(mustParseCascade(t, testCascadeXML(0.5, "")), 1.1, 5, 0)
	det, ok, err := d.Locate(context.Background(), createTestImage(64, 64, color.Gray{Y: 90}))
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("expected a face")
	}
	if det.Area() <= 0 {
		t.Errorf("expected positive area, got %f", det.Area())
	}
}
