package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/Hofman2HQ/LookALike/internal/cache"
	"github.com/Hofman2HQ/LookALike/internal/constants"
)

// IndexOptions identifies a persisted index. Equal options share one loaded
// instance per process.
type IndexOptions struct {
	IndexPath string
	MetaPath  string
	Dim       int    // dimensionality of the empty index used when artifacts are missing
	Mode      string // exact or hnsw
}

func (o IndexOptions) key() string {
	return fmt.Sprintf("%s|%s|%d|%s", o.IndexPath, o.MetaPath, o.Dim, o.Mode)
}

var indexCache = cache.MustNewLoaderCache[IndexOptions, *SimilarityIndex](cache.DefaultMaxEntries, IndexOptions.key)

// GetIndex returns the process-wide index for opts, loading it on first use.
// Concurrent first callers share a single load. Failed loads are retried on
// the next call.
func GetIndex(ctx context.Context, opts IndexOptions) (*SimilarityIndex, error) {
	return indexCache.Get(ctx, opts, func(_ context.Context, o IndexOptions) (*SimilarityIndex, error) {
		return LoadIndex(o)
	})
}

// LoadIndex reads the artifacts without caching. Missing artifacts yield an
// empty index; unreadable ones are an error.
func LoadIndex(opts IndexOptions) (*SimilarityIndex, error) {
	dim := opts.Dim
	if dim <= 0 {
		dim = constants.EmbeddingDim
	}

	if missing := missingArtifacts(opts.IndexPath, opts.MetaPath); len(missing) > 0 {
		slog.Warn("index artifacts not found, starting with an empty index",
			"missing", strings.Join(missing, ", "), "dim", dim)
		return NewEmptyIndex(dim), nil
	}

	fileDim, data, err := LoadFlatIndex(opts.IndexPath)
	if err != nil {
		return nil, err
	}
	meta, err := LoadMetadata(opts.MetaPath)
	if err != nil {
		return nil, err
	}

	idx, err := NewSimilarityIndex(fileDim, data, meta)
	if err != nil {
		return nil, err
	}
	if dangling := idx.Len() - countKnown(meta, idx.Len()); dangling > 0 {
		slog.Warn("index rows without metadata will be skipped", "count", dangling)
	}

	if strings.EqualFold(opts.Mode, SearchModeHNSW) && idx.Len() > 0 {
		idx.graph = loadHNSWGraph(opts.IndexPath, fileDim, data)
	}

	slog.Info("loaded similarity index",
		"path", opts.IndexPath, "entries", idx.Len(), "dim", idx.Dim(), "mode", idx.Mode())
	return idx, nil
}

func missingArtifacts(paths ...string) []string {
	var missing []string
	for _, p := range paths {
		if p == "" {
			missing = append(missing, "<unset>")
			continue
		}
		if _, err := os.Stat(p); errors.Is(err, os.ErrNotExist) {
			missing = append(missing, p)
		}
	}
	return missing
}

func countKnown(meta Metadata, n int) int {
	known := 0
	for id := range n {
		if _, ok := meta[id]; ok {
			known++
		}
	}
	return known
}
