package database

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/coder/hnsw"
)

// hnswGraph wraps an HNSW graph keyed by ordinal id. It only proposes
// candidates; scores always come from the flat vectors.
type hnswGraph struct {
	graph *hnsw.Graph[int]
}

func newHNSWGraph() *hnsw.Graph[int] {
	g := hnsw.NewGraph[int]()
	g.M = HNSWMaxNeighbors
	g.Ml = 1.0 / float64(HNSWMaxNeighbors) // Standard HNSW formula
	g.EfSearch = HNSWEfSearch
	g.Distance = hnsw.CosineDistance
	return g
}

// buildHNSWGraph inserts every row of a flat row-major buffer.
func buildHNSWGraph(dim int, data []float32) *hnswGraph {
	g := newHNSWGraph()
	n := len(data) / dim
	nodes := make([]hnsw.Node[int], 0, n)
	for id := range n {
		nodes = append(nodes, hnsw.MakeNode(id, data[id*dim:(id+1)*dim]))
	}
	if len(nodes) > 0 {
		g.Add(nodes...)
	}
	return &hnswGraph{graph: g}
}

func (h *hnswGraph) search(query []float32, k int) []int {
	if h.graph.Len() == 0 {
		return nil
	}
	neighbors := h.graph.Search(query, k)
	ids := make([]int, len(neighbors))
	for i, n := range neighbors {
		ids[i] = n.Key
	}
	return ids
}

func (h *hnswGraph) export(w io.Writer) error {
	if err := h.graph.Export(w); err != nil {
		return fmt.Errorf("exporting HNSW graph: %w", err)
	}
	return nil
}

// HNSWGraphPath returns where the optional graph for indexPath is stored.
func HNSWGraphPath(indexPath string) string {
	return indexPath + hnswGraphSuffix
}

// SaveHNSWGraph builds a graph over the given unit vectors and persists it
// next to the flat index.
func SaveHNSWGraph(indexPath string, dim int, vectors [][]float32) error {
	data := make([]float32, 0, len(vectors)*dim)
	for i, v := range vectors {
		if len(v) != dim {
			return fmt.Errorf("%w: row %d has %d values, expected %d", ErrDimensionMismatch, i, len(v), dim)
		}
		data = append(data, v...)
	}
	g := buildHNSWGraph(dim, data)
	return writeAtomic(HNSWGraphPath(indexPath), g.export)
}

// loadHNSWGraph imports a persisted graph if it exists and covers exactly n
// nodes; otherwise the graph is rebuilt from the flat vectors.
func loadHNSWGraph(indexPath string, dim int, data []float32) *hnswGraph {
	n := len(data) / dim
	path := HNSWGraphPath(indexPath)

	f, err := os.Open(path) //nolint:gosec // path is from trusted config
	if err == nil {
		defer f.Close()
		g := newHNSWGraph()
		importErr := g.Import(f)
		switch {
		case importErr != nil:
			slog.Warn("failed to import HNSW graph, rebuilding", "path", path, "error", importErr)
		case g.Len() != n:
			slog.Warn("stale HNSW graph, rebuilding", "path", path, "nodes", g.Len(), "vectors", n)
		default:
			slog.Info("loaded HNSW graph", "path", path, "nodes", n)
			return &hnswGraph{graph: g}
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		slog.Warn("failed to open HNSW graph, rebuilding", "path", path, "error", err)
	}

	return buildHNSWGraph(dim, data)
}
