package database

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/Hofman2HQ/LookALike/internal/fingerprint"
)

var (
	// ErrDimensionMismatch is returned when a query or row length differs from the index dimension.
	ErrDimensionMismatch = errors.New("dimension mismatch")
	// ErrInvalidTopK is returned for top_k values below 1.
	ErrInvalidTopK = errors.New("top_k must be at least 1")
)

// Searcher is the read-only query surface shared by the in-memory index and
// the PostgreSQL backend.
type Searcher interface {
	// Search returns up to topK matches with score >= threshold, by score
	// descending and ordinal id ascending on ties.
	Search(ctx context.Context, query []float32, topK int, threshold float64) ([]MatchResult, error)
	// Dim returns the vector dimensionality.
	Dim() int
	// Len returns the number of stored vectors.
	Len() int
}

// SimilarityIndex is an immutable in-memory inner-product index over
// unit-normalized reference vectors.
type SimilarityIndex struct {
	dim     int
	n       int
	vectors []float32 // row-major, n*dim
	meta    Metadata
	graph   *hnswGraph // nil in exact mode
	mu      sync.RWMutex
}

// NewSimilarityIndex builds an index over flat row-major data.
func NewSimilarityIndex(dim int, data []float32, meta Metadata) (*SimilarityIndex, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("%w: dimension %d", ErrDimensionMismatch, dim)
	}
	if len(data)%dim != 0 {
		return nil, fmt.Errorf("%w: %d values is not a multiple of %d", ErrDimensionMismatch, len(data), dim)
	}
	if meta == nil {
		meta = make(Metadata)
	}
	return &SimilarityIndex{dim: dim, n: len(data) / dim, vectors: data, meta: meta}, nil
}

// NewEmptyIndex returns an index with no entries; every search is empty.
func NewEmptyIndex(dim int) *SimilarityIndex {
	return &SimilarityIndex{dim: dim, meta: make(Metadata)}
}

// Dim returns the vector dimensionality.
func (s *SimilarityIndex) Dim() int { return s.dim }

// Len returns the number of stored vectors.
func (s *SimilarityIndex) Len() int { return s.n }

// Mode reports whether searches are exact or HNSW-assisted.
func (s *SimilarityIndex) Mode() string {
	if s.graph != nil {
		return SearchModeHNSW
	}
	return SearchModeExact
}

// Metadata returns the metadata for id and whether it exists.
func (s *SimilarityIndex) Metadata(id int) (ReferenceMeta, bool) {
	m, ok := s.meta[id]
	return m, ok
}

func (s *SimilarityIndex) row(id int) []float32 {
	return s.vectors[id*s.dim : (id+1)*s.dim]
}

// Search implements Searcher. Ids without metadata are skipped and the next
// best candidates fill their place.
func (s *SimilarityIndex) Search(_ context.Context, query []float32, topK int, threshold float64) ([]MatchResult, error) {
	if topK < 1 {
		return nil, ErrInvalidTopK
	}
	if s.n == 0 {
		return []MatchResult{}, nil
	}
	if len(query) != s.dim {
		return nil, fmt.Errorf("%w: query has %d values, index has %d", ErrDimensionMismatch, len(query), s.dim)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.graph != nil {
		candidates := s.graphCandidates(query, topK)
		results := s.rank(candidates, topK, threshold)
		// Dangling or thresholded ids can leave the graph neighbourhood short.
		if len(results) == topK || len(candidates) >= s.n {
			return results, nil
		}
	}
	return s.rank(s.exactCandidates(query, threshold), topK, threshold), nil
}

// rank orders candidates by score descending and id ascending, then keeps
// the first topK that clear threshold and have metadata.
func (s *SimilarityIndex) rank(candidates []MatchResult, topK int, threshold float64) []MatchResult {
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Score != candidates[j].Score {
			return candidates[i].Score > candidates[j].Score
		}
		return candidates[i].ID < candidates[j].ID
	})

	results := make([]MatchResult, 0, min(topK, len(candidates)))
	for _, c := range candidates {
		if c.Score < threshold {
			break
		}
		m, ok := s.meta[c.ID]
		if !ok {
			continue
		}
		c.Name = m.Name
		c.PhotoURL = m.PhotoURL
		results = append(results, c)
		if len(results) == topK {
			break
		}
	}
	return results
}

func (s *SimilarityIndex) exactCandidates(query []float32, threshold float64) []MatchResult {
	candidates := make([]MatchResult, 0, 16)
	for id := range s.n {
		score := fingerprint.Dot(query, s.row(id))
		if score >= threshold {
			candidates = append(candidates, MatchResult{ID: id, Score: score})
		}
	}
	return candidates
}

// graphCandidates asks the graph for an oversampled neighbourhood and
// rescores it exactly.
func (s *SimilarityIndex) graphCandidates(query []float32, topK int) []MatchResult {
	ids := s.graph.search(query, topK*HNSWSearchMultiplier)
	candidates := make([]MatchResult, 0, len(ids))
	for _, id := range ids {
		if id < 0 || id >= s.n {
			continue
		}
		candidates = append(candidates, MatchResult{ID: id, Score: fingerprint.Dot(query, s.row(id))})
	}
	return candidates
}
