// Package fingerprint turns aligned face crops into fixed-length embedding
// vectors, either through a model server or a deterministic content hash.
package fingerprint

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"math"
	"time"

	"github.com/Hofman2HQ/LookALike/internal/constants"
	"github.com/Hofman2HQ/LookALike/internal/imaging"
)

// Strategy names reported by Embedder.Name.
const (
	StrategyModel = "model"
	StrategyHash  = "hash"
)

// ErrDimensionMismatch is returned when the model server produces a vector of
// a different length than configured.
var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

// Embedder maps a face crop to a vector of length Dim.
type Embedder interface {
	Embed(ctx context.Context, crop image.Image) ([]float32, error)
	Dim() int
	Name() string
}

// HashEmbedder derives a reproducible vector from pixel content alone.
// The crop is resampled to a fixed grid, hashed with SHA-256, and the 32
// digest bytes are scaled to [0, 1] and tiled to the target length.
type HashEmbedder struct {
	dim int
}

// NewHashEmbedder creates a hash embedder; dim <= 0 selects 512.
func NewHashEmbedder(dim int) *HashEmbedder {
	if dim <= 0 {
		dim = constants.EmbeddingDim
	}
	return &HashEmbedder{dim: dim}
}

func (e *HashEmbedder) Dim() int     { return e.dim }
func (e *HashEmbedder) Name() string { return StrategyHash }

// Embed never fails.
func (e *HashEmbedder) Embed(_ context.Context, crop image.Image) ([]float32, error) {
	return HashVector(crop, e.dim), nil
}

// HashVector computes the deterministic fallback embedding of img.
func HashVector(img image.Image, dim int) []float32 {
	sample := imaging.ResizeBilinear(img, constants.HashSampleSize, constants.HashSampleSize)
	digest := sha256.Sum256(imaging.RGBBytes(sample))

	out := make([]float32, dim)
	for i := range out {
		out[i] = float32(digest[i%len(digest)]) / 255
	}
	return out
}

// ModelEmbedder embeds crops through the model server.
type ModelEmbedder struct {
	client *ModelClient
	dim    int
}

// NewModelEmbedder wraps a probed client; every vector must have length dim.
func NewModelEmbedder(client *ModelClient, dim int) *ModelEmbedder {
	if dim <= 0 {
		dim = constants.EmbeddingDim
	}
	return &ModelEmbedder{client: client, dim: dim}
}

func (e *ModelEmbedder) Dim() int     { return e.dim }
func (e *ModelEmbedder) Name() string { return StrategyModel }

// Embed PNG-encodes the crop and returns the model's raw output vector.
func (e *ModelEmbedder) Embed(ctx context.Context, crop image.Image) ([]float32, error) {
	data, err := imaging.EncodePNG(crop)
	if err != nil {
		return nil, fmt.Errorf("failed to encode crop: %w", err)
	}
	res, err := e.client.ComputeEmbedding(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("failed to compute embedding: %w", err)
	}
	if len(res.Embedding) != e.dim {
		return nil, fmt.Errorf("%w: model returned %d, expected %d", ErrDimensionMismatch, len(res.Embedding), e.dim)
	}
	for _, v := range res.Embedding {
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			return nil, errors.New("model returned non-finite embedding")
		}
	}
	return res.Embedding, nil
}

// EmbedderOptions configures NewEmbedder.
type EmbedderOptions struct {
	ModelURL       string
	Dim            int
	ProbeTimeout   time.Duration
	RequestTimeout time.Duration
}

// NewEmbedder picks the embedding strategy once. The model server is probed
// a single time; when it is not configured or does not answer, the hash
// fallback is returned with a nil client. It never fails.
func NewEmbedder(ctx context.Context, opts EmbedderOptions) (Embedder, *ModelClient) {
	if opts.ModelURL == "" {
		slog.Info("no model server configured, using hash embedder")
		return NewHashEmbedder(constants.EmbeddingDim), nil
	}

	client := NewModelClient(opts.ModelURL, opts.RequestTimeout)
	probeCtx := ctx
	if opts.ProbeTimeout > 0 {
		var cancel context.CancelFunc
		probeCtx, cancel = context.WithTimeout(ctx, opts.ProbeTimeout)
		defer cancel()
	}
	if err := client.Probe(probeCtx); err != nil {
		slog.Warn("model server unavailable, falling back to hash embedder", "url", client.BaseURL(), "error", err)
		return NewHashEmbedder(constants.EmbeddingDim), nil
	}

	slog.Info("using model server embedder", "url", client.BaseURL(), "dim", opts.Dim)
	return NewModelEmbedder(client, opts.Dim), client
}
