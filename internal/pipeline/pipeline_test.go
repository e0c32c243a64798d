package pipeline

import (
	"context"
	"errors"
	"image"
	"image/color"
	"path/filepath"
	"testing"

	"github.com/Hofman2HQ/LookALike/internal/config"
	"github.com/Hofman2HQ/LookALike/internal/constants"
	"github.com/Hofman2HQ/LookALike/internal/database"
	"github.com/Hofman2HQ/LookALike/internal/facematch"
	"github.com/Hofman2HQ/LookALike/internal/fingerprint"
)

func solidImage(w, h int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			img.Set(x, y, c)
		}
	}
	return img
}

func hashPipeline() *Pipeline {
	return NewWith(facematch.NewPreprocessor(nil), fingerprint.NewHashEmbedder(constants.EmbeddingDim))
}

// testConfig points every artifact into a fresh directory and disables the
// model server and the cascade.
func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Defaults()
	dir := t.TempDir()
	cfg.Data.IndexPath = filepath.Join(dir, "celebs.index")
	cfg.Data.MetaPath = filepath.Join(dir, "celebs_meta.json")
	cfg.Detector.Kind = facematch.DetectorNone
	cfg.Model.URL = ""
	return cfg
}

func TestNew_FallsBackWithoutModel(t *testing.T) {
	p := New(context.Background(), Options{
		Detector: facematch.DetectorOptions{Kind: facematch.DetectorSSD},
	})
	if p.Embedder().Name() != fingerprint.StrategyHash {
		t.Errorf("Expected hash embedder, got %s", p.Embedder().Name())
	}
	// ssd without a model falls back to the cascade, which has no file here.
	if p.Preprocessor().DetectorName() != facematch.DetectorNone {
		t.Errorf("Expected whole-image detector, got %s", p.Preprocessor().DetectorName())
	}
}

func TestGet_ReturnsSingleton(t *testing.T) {
	opts := Options{Detector: facematch.DetectorOptions{Kind: facematch.DetectorNone}}
	a, err := Get(context.Background(), opts)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	b, err := Get(context.Background(), opts)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if a != b {
		t.Error("Expected the same pipeline instance for equal options")
	}
}

func TestPipeline_EmbedIsDeterministic(t *testing.T) {
	p := hashPipeline()
	img := solidImage(50, 40, color.RGBA{120, 30, 200, 255})

	a, err := p.Embed(context.Background(), img)
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	b, err := p.Embed(context.Background(), img)
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	if len(a) != constants.EmbeddingDim {
		t.Fatalf("Expected %d values, got %d", constants.EmbeddingDim, len(a))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("Embeddings differ at %d", i)
		}
	}
}

func TestNewMatcher_DimensionCheck(t *testing.T) {
	p := hashPipeline()

	idx, err := database.NewSimilarityIndex(4, []float32{1, 0, 0, 0}, database.Metadata{0: {Name: "A"}})
	if err != nil {
		t.Fatalf("Failed to build index: %v", err)
	}
	if _, err := NewMatcher(p, idx); !errors.Is(err, database.ErrDimensionMismatch) {
		t.Errorf("Expected ErrDimensionMismatch, got %v", err)
	}

	// An empty index of another dimensionality is accepted.
	if _, err := NewMatcher(p, database.NewEmptyIndex(4)); err != nil {
		t.Errorf("Expected empty index to be accepted, got %v", err)
	}
}

// countingIndex records how often the reference count is requested.
type countingIndex struct {
	*database.SimilarityIndex
	lenCalls int
}

func (c *countingIndex) Len() int {
	c.lenCalls++
	return c.SimilarityIndex.Len()
}

func TestMatcher_CountsIndexOnce(t *testing.T) {
	p := hashPipeline()
	ref, err := p.Embed(context.Background(), solidImage(8, 8, color.White))
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	idx, err := database.NewSimilarityIndex(constants.EmbeddingDim, fingerprint.NormalizeL2(ref), database.Metadata{0: {Name: "White"}})
	if err != nil {
		t.Fatalf("Failed to build index: %v", err)
	}
	counted := &countingIndex{SimilarityIndex: idx}

	m, err := NewMatcher(p, counted)
	if err != nil {
		t.Fatalf("NewMatcher failed: %v", err)
	}
	for range 3 {
		if _, err := m.Match(context.Background(), solidImage(8, 8, color.White), 1, 0); err != nil {
			t.Fatalf("Match failed: %v", err)
		}
	}
	if m.Size() != 1 {
		t.Errorf("Expected size 1, got %d", m.Size())
	}
	if counted.lenCalls != 1 {
		t.Errorf("Expected the index to be counted once, got %d calls", counted.lenCalls)
	}
}

func TestMatcher_BlackImageAgainstUnbuiltIndex(t *testing.T) {
	cfg := testConfig(t)

	m, err := Open(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if m.Index().Len() != 0 {
		t.Fatalf("Expected empty index, got %d entries", m.Index().Len())
	}

	matches, err := m.Match(context.Background(), solidImage(10, 10, color.Black), 3, 0)
	if err != nil {
		t.Fatalf("Match failed: %v", err)
	}
	if matches == nil || len(matches) != 0 {
		t.Errorf("Expected empty non-nil matches, got %#v", matches)
	}
}

func TestMatcher_FindsIdenticalReference(t *testing.T) {
	p := hashPipeline()
	ctx := context.Background()

	refs := []image.Image{
		solidImage(20, 20, color.RGBA{255, 0, 0, 255}),
		solidImage(20, 20, color.RGBA{0, 255, 0, 255}),
	}
	var data []float32
	for _, img := range refs {
		v, err := p.Embed(ctx, img)
		if err != nil {
			t.Fatalf("Embed failed: %v", err)
		}
		data = append(data, fingerprint.NormalizeL2(v)...)
	}
	idx, err := database.NewSimilarityIndex(constants.EmbeddingDim, data, database.Metadata{
		0: {Name: "Red", PhotoURL: "/static/Red/1.png"},
		1: {Name: "Green", PhotoURL: "/static/Green/1.png"},
	})
	if err != nil {
		t.Fatalf("Failed to build index: %v", err)
	}

	m, err := NewMatcher(p, idx)
	if err != nil {
		t.Fatalf("NewMatcher failed: %v", err)
	}
	matches, err := m.Match(ctx, refs[1], 2, 0)
	if err != nil {
		t.Fatalf("Match failed: %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("Expected 2 matches, got %d", len(matches))
	}
	if matches[0].Name != "Green" {
		t.Errorf("Expected Green first, got %+v", matches)
	}
	if matches[0].Score < matches[1].Score {
		t.Errorf("Scores not descending: %+v", matches)
	}

	if _, err := m.Match(ctx, refs[0], 0, 0); !errors.Is(err, database.ErrInvalidTopK) {
		t.Errorf("Expected ErrInvalidTopK, got %v", err)
	}
}

func TestOpenIndex_Backends(t *testing.T) {
	cfg := testConfig(t)

	cfg.Search.Backend = "redis"
	if _, err := OpenIndex(context.Background(), cfg, 8); !errors.Is(err, ErrUnknownBackend) {
		t.Errorf("Expected ErrUnknownBackend, got %v", err)
	}

	if !database.IsInitialized() {
		cfg.Search.Backend = BackendPostgres
		if _, err := OpenIndex(context.Background(), cfg, 8); !errors.Is(err, database.ErrBackendNotInitialized) {
			t.Errorf("Expected ErrBackendNotInitialized, got %v", err)
		}
	}
}
