// Package pipeline wires the preprocessor, the embedder and the reference
// index into the query path shared by the server and the CLI.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"strings"

	"github.com/Hofman2HQ/LookALike/internal/cache"
	"github.com/Hofman2HQ/LookALike/internal/config"
	"github.com/Hofman2HQ/LookALike/internal/database"
	"github.com/Hofman2HQ/LookALike/internal/facematch"
	"github.com/Hofman2HQ/LookALike/internal/fingerprint"
)

// Backend names for the reference store.
const (
	BackendFile     = "file"
	BackendPostgres = "postgres"
)

// ErrUnknownBackend is returned for an unrecognised INDEX_BACKEND value.
var ErrUnknownBackend = errors.New("unknown index backend")

// Options selects the detector and embedder. The detector's Locator is
// filled in from the probed model client.
type Options struct {
	Detector facematch.DetectorOptions
	Embedder fingerprint.EmbedderOptions
}

func (o Options) key() string {
	d, e := o.Detector, o.Embedder
	return fmt.Sprintf("%s|%s|%g|%d|%d|%g|%s|%d|%s|%s",
		d.Kind, d.CascadePath, d.ScaleFactor, d.MinNeighbors, d.MinSize, d.Confidence,
		e.ModelURL, e.Dim, e.ProbeTimeout, e.RequestTimeout)
}

// OptionsFromConfig maps the loaded configuration onto pipeline options.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Detector: facematch.DetectorOptions{
			Kind:         cfg.Detector.Kind,
			CascadePath:  cfg.Detector.CascadePath,
			ScaleFactor:  cfg.Detector.ScaleFactor,
			MinNeighbors: cfg.Detector.MinNeighbors,
			MinSize:      cfg.Detector.MinSize,
			Confidence:   cfg.Detector.Confidence,
		},
		Embedder: fingerprint.EmbedderOptions{
			ModelURL:       cfg.Model.URL,
			Dim:            cfg.Model.EmbeddingDim,
			ProbeTimeout:   cfg.Model.ProbeTimeout,
			RequestTimeout: cfg.Model.RequestTimeout,
		},
	}
}

// Pipeline turns an image into a query embedding.
type Pipeline struct {
	pre      *facematch.Preprocessor
	embedder fingerprint.Embedder
}

// New resolves both strategies once. The model server is probed before the
// detector is chosen so a learned detector can fall back when it is down.
func New(ctx context.Context, opts Options) *Pipeline {
	embedder, client := fingerprint.NewEmbedder(ctx, opts.Embedder)

	detOpts := opts.Detector
	if client != nil {
		detOpts.Locator = client
	}
	pre := facematch.NewPreprocessor(facematch.NewDetector(detOpts))

	slog.Info("pipeline ready", "detector", pre.DetectorName(), "embedder", embedder.Name(), "dim", embedder.Dim())
	return &Pipeline{pre: pre, embedder: embedder}
}

// NewWith assembles a pipeline from already constructed parts.
func NewWith(pre *facematch.Preprocessor, embedder fingerprint.Embedder) *Pipeline {
	return &Pipeline{pre: pre, embedder: embedder}
}

var pipelineCache = cache.MustNewLoaderCache[Options, *Pipeline](cache.DefaultMaxEntries, Options.key)

// Get returns the process-wide pipeline for opts, constructing it on first use.
func Get(ctx context.Context, opts Options) (*Pipeline, error) {
	return pipelineCache.Get(ctx, opts, func(ctx context.Context, o Options) (*Pipeline, error) {
		return New(ctx, o), nil
	})
}

// Preprocessor returns the detection and alignment stage.
func (p *Pipeline) Preprocessor() *facematch.Preprocessor { return p.pre }

// Embedder returns the active embedding strategy.
func (p *Pipeline) Embedder() fingerprint.Embedder { return p.embedder }

// Embed detects, aligns and embeds img.
func (p *Pipeline) Embed(ctx context.Context, img image.Image) ([]float32, error) {
	crop := p.pre.DetectAndAlign(ctx, img)
	vec, err := p.embedder.Embed(ctx, crop)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	return vec, nil
}

// Matcher answers look-alike queries against a reference index.
type Matcher struct {
	pipeline *Pipeline
	index    database.Searcher
	size     int
}

// NewMatcher binds a pipeline to an index. A non-empty index whose
// dimensionality differs from the embedder's is rejected. The index is
// read-only while served, so its size is counted once here.
func NewMatcher(p *Pipeline, index database.Searcher) (*Matcher, error) {
	size := index.Len()
	if size > 0 && index.Dim() != p.embedder.Dim() {
		return nil, fmt.Errorf("%w: embedder %s produces %d values, index has %d",
			database.ErrDimensionMismatch, p.embedder.Name(), p.embedder.Dim(), index.Dim())
	}
	return &Matcher{pipeline: p, index: index, size: size}, nil
}

// Pipeline returns the query pipeline.
func (m *Matcher) Pipeline() *Pipeline { return m.pipeline }

// Index returns the reference index.
func (m *Matcher) Index() database.Searcher { return m.index }

// Size returns the number of references counted when the matcher was built.
func (m *Matcher) Size() int { return m.size }

// Match returns the reference faces most similar to the face in img.
func (m *Matcher) Match(ctx context.Context, img image.Image, topK int, threshold float64) ([]database.MatchResult, error) {
	if topK < 1 {
		return nil, database.ErrInvalidTopK
	}
	if m.size == 0 {
		return []database.MatchResult{}, nil
	}
	vec, err := m.pipeline.Embed(ctx, img)
	if err != nil {
		return nil, err
	}
	return m.index.Search(ctx, vec, topK, threshold)
}

// OpenIndex returns the reference index selected by the configuration.
func OpenIndex(ctx context.Context, cfg *config.Config, dim int) (database.Searcher, error) {
	switch strings.ToLower(cfg.Search.Backend) {
	case BackendFile, "":
		return database.GetIndex(ctx, database.IndexOptions{
			IndexPath: cfg.Data.IndexPath,
			MetaPath:  cfg.Data.MetaPath,
			Dim:       dim,
			Mode:      cfg.Search.Mode,
		})
	case BackendPostgres:
		return database.GetReferenceReader(ctx, dim)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.Search.Backend)
	}
}

// Open builds the pipeline and index for cfg and checks they agree.
func Open(ctx context.Context, cfg *config.Config) (*Matcher, error) {
	p, err := Get(ctx, OptionsFromConfig(cfg))
	if err != nil {
		return nil, err
	}
	index, err := OpenIndex(ctx, cfg, p.embedder.Dim())
	if err != nil {
		return nil, fmt.Errorf("failed to open index: %w", err)
	}
	return NewMatcher(p, index)
}
