package database

// HNSW graph parameters for 512-dim face embeddings
const (
	// HNSWMaxNeighbors (M) is the maximum number of neighbors per node.
	// Higher values improve recall but increase memory and build time.
	HNSWMaxNeighbors = 16

	// HNSWEfSearch is the search candidate pool size.
	// Higher values improve recall but slow down search.
	HNSWEfSearch = 100

	// HNSWSearchMultiplier is the factor to request more candidates from HNSW
	// to ensure we have enough after threshold filtering and exact rescoring.
	HNSWSearchMultiplier = 3
)

// Search modes.
const (
	SearchModeExact = "exact"
	SearchModeHNSW  = "hnsw"
)

// Flat index file layout.
const (
	flatIndexMagic   = "LKIX"
	flatIndexVersion = 1
	// hnswGraphSuffix is appended to the flat index path for the optional graph.
	hnswGraphSuffix = ".hnsw"
)
