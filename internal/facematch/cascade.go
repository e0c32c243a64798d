package facematch

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"image"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/Hofman2HQ/LookALike/internal/constants"
	"github.com/Hofman2HQ/LookALike/internal/imaging"
)

// cascadeMaxDetectSize bounds the image side the cascade scans; larger
// inputs are downscaled first and boxes mapped back.
const cascadeMaxDetectSize = 640

// ErrUnsupportedCascade is returned for cascade files this detector cannot evaluate.
var ErrUnsupportedCascade = errors.New("unsupported cascade")

type haarRect struct {
	x, y, w, h int
	weight     float64
}

type haarNode struct {
	left, right int // > 0 next node index, <= 0 negated leaf index
	feature     int
	threshold   float64
}

type weakClassifier struct {
	nodes  []haarNode
	leaves []float64
}

type cascadeStage struct {
	threshold float64
	weak      []weakClassifier
}

// Cascade is a boosted Haar cascade in the OpenCV XML format
// (e.g. haarcascade_frontalface_default.xml).
type Cascade struct {
	width, height int
	stages        []cascadeStage
	features      [][]haarRect
}

type cascadeFile struct {
	Cascade struct {
		StageType   string `xml:"stageType"`
		FeatureType string `xml:"featureType"`
		Height      int    `xml:"height"`
		Width       int    `xml:"width"`
		Stages      []struct {
			StageThreshold  float64 `xml:"stageThreshold"`
			WeakClassifiers []struct {
				InternalNodes string `xml:"internalNodes"`
				LeafValues    string `xml:"leafValues"`
			} `xml:"weakClassifiers>_"`
		} `xml:"stages>_"`
		Features []struct {
			Rects  []string `xml:"rects>_"`
			Tilted int      `xml:"tilted"`
		} `xml:"features>_"`
	} `xml:"cascade"`
}

// LoadCascadeFile reads a cascade from disk.
func LoadCascadeFile(path string) (*Cascade, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is from trusted config
	if err != nil {
		return nil, fmt.Errorf("failed to read cascade file: %w", err)
	}
	return ParseCascade(bytes.NewReader(data))
}

// ParseCascade parses a BOOST/HAAR cascade in the OpenCV storage format.
func ParseCascade(r io.Reader) (*Cascade, error) {
	var f cascadeFile
	if err := xml.NewDecoder(r).Decode(&f); err != nil {
		return nil, fmt.Errorf("failed to parse cascade: %w", err)
	}
	src := f.Cascade

	if !strings.EqualFold(src.StageType, "BOOST") || !strings.EqualFold(src.FeatureType, "HAAR") {
		return nil, fmt.Errorf("%w: stage type %q, feature type %q", ErrUnsupportedCascade, src.StageType, src.FeatureType)
	}
	if src.Width < 3 || src.Height < 3 {
		return nil, fmt.Errorf("%w: window %dx%d", ErrUnsupportedCascade, src.Width, src.Height)
	}
	if len(src.Stages) == 0 {
		return nil, fmt.Errorf("%w: no stages", ErrUnsupportedCascade)
	}

	c := &Cascade{width: src.Width, height: src.Height}

	for fi, feat := range src.Features {
		if feat.Tilted != 0 {
			return nil, fmt.Errorf("%w: tilted feature %d", ErrUnsupportedCascade, fi)
		}
		rects := make([]haarRect, 0, len(feat.Rects))
		for _, raw := range feat.Rects {
			v, err := parseFloats(raw)
			if err != nil || len(v) != 5 {
				return nil, fmt.Errorf("%w: feature %d rect %q", ErrUnsupportedCascade, fi, strings.TrimSpace(raw))
			}
			rect := haarRect{x: int(v[0]), y: int(v[1]), w: int(v[2]), h: int(v[3]), weight: v[4]}
			if rect.x < 0 || rect.y < 0 || rect.x+rect.w > c.width || rect.y+rect.h > c.height {
				return nil, fmt.Errorf("%w: feature %d rect outside window", ErrUnsupportedCascade, fi)
			}
			rects = append(rects, rect)
		}
		c.features = append(c.features, rects)
	}

	for si, st := range src.Stages {
		stage := cascadeStage{threshold: st.StageThreshold}
		for wi, wc := range st.WeakClassifiers {
			weak, err := parseWeakClassifier(wc.InternalNodes, wc.LeafValues, len(c.features))
			if err != nil {
				return nil, fmt.Errorf("stage %d classifier %d: %w", si, wi, err)
			}
			stage.weak = append(stage.weak, weak)
		}
		c.stages = append(c.stages, stage)
	}

	return c, nil
}

func parseWeakClassifier(nodesRaw, leavesRaw string, featureCount int) (weakClassifier, error) {
	nodeVals, err := parseFloats(nodesRaw)
	if err != nil || len(nodeVals) == 0 || len(nodeVals)%4 != 0 {
		return weakClassifier{}, fmt.Errorf("%w: internal nodes %q", ErrUnsupportedCascade, strings.TrimSpace(nodesRaw))
	}
	leaves, err := parseFloats(leavesRaw)
	if err != nil || len(leaves) == 0 {
		return weakClassifier{}, fmt.Errorf("%w: leaf values %q", ErrUnsupportedCascade, strings.TrimSpace(leavesRaw))
	}

	wc := weakClassifier{leaves: leaves}
	for i := 0; i < len(nodeVals); i += 4 {
		n := haarNode{
			left:      int(nodeVals[i]),
			right:     int(nodeVals[i+1]),
			feature:   int(nodeVals[i+2]),
			threshold: nodeVals[i+3],
		}
		if n.feature < 0 || n.feature >= featureCount {
			return weakClassifier{}, fmt.Errorf("%w: feature index %d", ErrUnsupportedCascade, n.feature)
		}
		for _, next := range []int{n.left, n.right} {
			if next > 0 && next >= len(nodeVals)/4 || next <= 0 && -next >= len(leaves) {
				return weakClassifier{}, fmt.Errorf("%w: dangling node reference %d", ErrUnsupportedCascade, next)
			}
		}
		wc.nodes = append(wc.nodes, n)
	}
	return wc, nil
}

func parseFloats(s string) ([]float64, error) {
	fields := strings.Fields(s)
	out := make([]float64, 0, len(fields))
	for _, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// WindowSize returns the base detection window.
func (c *Cascade) WindowSize() (int, int) {
	return c.width, c.height
}

// integral holds summed-area tables of a grayscale plane, (w+1) x (h+1).
type integral struct {
	w, h  int
	sum   []float64
	sqsum []float64
}

func newIntegral(plane []float64, w, h int) *integral {
	stride := w + 1
	ii := &integral{w: w, h: h, sum: make([]float64, stride*(h+1)), sqsum: make([]float64, stride*(h+1))}
	for y := range h {
		var rowSum, rowSq float64
		for x := range w {
			v := plane[y*w+x]
			rowSum += v
			rowSq += v * v
			ii.sum[(y+1)*stride+x+1] = ii.sum[y*stride+x+1] + rowSum
			ii.sqsum[(y+1)*stride+x+1] = ii.sqsum[y*stride+x+1] + rowSq
		}
	}
	return ii
}

func (ii *integral) rectSum(table []float64, x, y, w, h int) float64 {
	stride := ii.w + 1
	return table[(y+h)*stride+x+w] - table[y*stride+x+w] - table[(y+h)*stride+x] + table[y*stride+x]
}

// passes evaluates every stage for the window whose top-left corner is (x, y).
func (c *Cascade) passes(ii *integral, x, y int) bool {
	// Variance normalisation over the window shrunk by one pixel per side.
	nw, nh := c.width-2, c.height-2
	area := float64(nw * nh)
	s := ii.rectSum(ii.sum, x+1, y+1, nw, nh)
	sq := ii.rectSum(ii.sqsum, x+1, y+1, nw, nh)
	nf := area*sq - s*s
	if nf > 0 {
		nf = math.Sqrt(nf)
	} else {
		nf = 1
	}

	for _, stage := range c.stages {
		var total float64
		for _, wc := range stage.weak {
			idx := 0
			for {
				node := wc.nodes[idx]
				var val float64
				for _, r := range c.features[node.feature] {
					val += r.weight * ii.rectSum(ii.sum, x+r.x, y+r.y, r.w, r.h)
				}
				next := node.right
				if val/nf < node.threshold {
					next = node.left
				}
				if next <= 0 {
					total += wc.leaves[-next]
					break
				}
				idx = next
			}
		}
		if total < stage.threshold {
			return false
		}
	}
	return true
}

// DetectMultiScale scans an image pyramid and returns grouped face boxes in
// the coordinates of img. Each returned detection carries its neighbour
// count as confidence.
func (c *Cascade) DetectMultiScale(img image.Image, scaleFactor float64, minNeighbors, minSize int) []Detection {
	if scaleFactor <= 1 {
		scaleFactor = constants.DefaultScaleFactor
	}
	bounds := img.Bounds()
	srcW, srcH := bounds.Dx(), bounds.Dy()

	scan := imaging.FitWithin(img, cascadeMaxDetectSize)
	scanW, scanH := scan.Bounds().Dx(), scan.Bounds().Dy()
	scanRect := image.Rect(0, 0, scanW, scanH)

	var raw []image.Rectangle
	for factor := 1.0; ; factor *= scaleFactor {
		lw := int(math.Round(float64(scanW) / factor))
		lh := int(math.Round(float64(scanH) / factor))
		if lw < c.width || lh < c.height {
			break
		}
		winW := int(math.Round(float64(c.width) * factor))
		if winW < minSize {
			continue
		}

		level := scan
		if factor != 1 {
			level = imaging.ResizeBilinear(scan, lw, lh)
		}
		plane, w, h := imaging.Gray(level)
		ii := newIntegral(plane, w, h)

		step := 2
		if factor > 2 {
			step = 1
		}
		for y := 0; y+c.height <= h; y += step {
			for x := 0; x+c.width <= w; x += step {
				if c.passes(ii, x, y) {
					raw = append(raw, image.Rect(
						int(math.Round(float64(x)*factor)),
						int(math.Round(float64(y)*factor)),
						int(math.Round(float64(x+c.width)*factor)),
						int(math.Round(float64(y+c.height)*factor)),
					).Intersect(scanRect))
				}
			}
		}
	}

	grouped := GroupRectangles(raw, minNeighbors, constants.GroupEps)
	detections := make([]Detection, 0, len(grouped))
	for _, g := range grouped {
		bbox := ScaleBBox(RectToBBox(g.Rect), scanW, scanH, srcW, srcH)
		detections = append(detections, Detection{BBox: bbox, Confidence: float64(g.Neighbors)})
	}
	return detections
}

// CascadeDetector adapts a Cascade to the Detector interface, picking the
// largest grouped face.
type CascadeDetector struct {
	cascade      *Cascade
	scaleFactor  float64
	minNeighbors int
	minSize      int
}

// NewCascadeDetector wraps a parsed cascade with scan parameters.
func NewCascadeDetector(c *Cascade, scaleFactor float64, minNeighbors, minSize int) *CascadeDetector {
	return &CascadeDetector{cascade: c, scaleFactor: scaleFactor, minNeighbors: minNeighbors, minSize: minSize}
}

func (d *CascadeDetector) Name() string { return DetectorCascade }

// Locate runs the cascade on the image and returns the largest face.
func (d *CascadeDetector) Locate(_ context.Context, img image.Image) (Detection, bool, error) {
	det, ok := LargestFace(d.cascade.DetectMultiScale(img, d.scaleFactor, d.minNeighbors, d.minSize))
	return det, ok, nil
}
