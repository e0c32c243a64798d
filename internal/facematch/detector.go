package facematch

import (
	"errors"
	"io/fs"
	"log/slog"
	"strings"
)

// DetectorOptions selects and configures a face detector.
type DetectorOptions struct {
	Kind         string
	CascadePath  string
	ScaleFactor  float64
	MinNeighbors int
	MinSize      int
	Confidence   float64
	Locator      FaceLocator // nil when no model server is reachable
}

// NewDetector resolves the detector strategy once. A learned detector without
// a reachable model falls back to the cascade, and a cascade that cannot be
// loaded falls back to the whole-image detector. It never fails.
func NewDetector(opts DetectorOptions) Detector {
	kind := strings.ToLower(strings.TrimSpace(opts.Kind))

	if kind == DetectorSSD {
		if opts.Locator != nil {
			return NewSSDDetector(opts.Locator, opts.Confidence)
		}
		slog.Warn("learned face detector unavailable, falling back to cascade")
		kind = DetectorCascade
	}

	if kind == DetectorCascade || kind == "" {
		if opts.CascadePath == "" {
			slog.Warn("no cascade file configured, using whole image")
			return noDetector{}
		}
		c, err := LoadCascadeFile(opts.CascadePath)
		if errors.Is(err, fs.ErrNotExist) {
			slog.Warn("face cascade not found, using whole image; run 'lookalike fetch-cascade' to download it",
				"path", opts.CascadePath)
			return noDetector{}
		}
		if err != nil {
			slog.Warn("failed to load face cascade, using whole image", "path", opts.CascadePath, "error", err)
			return noDetector{}
		}
		return NewCascadeDetector(c, opts.ScaleFactor, opts.MinNeighbors, opts.MinSize)
	}

	if kind != DetectorNone {
		slog.Warn("unknown face detector, using whole image", "kind", opts.Kind)
	}
	return noDetector{}
}
