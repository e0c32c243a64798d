package database

// ReferenceEntry is one row of the built reference index. IDs are dense
// ordinals assigned in dataset traversal order starting at 0.
type ReferenceEntry struct {
	ID        int
	Embedding []float32
	Name      string
	PhotoURL  string
}

// ReferenceMeta is the per-identity metadata persisted next to the vectors.
type ReferenceMeta struct {
	Name     string `json:"name"`
	PhotoURL string `json:"photo_url"`
}

// Metadata maps ordinal ids to their reference metadata. It serializes as a
// JSON object keyed by the decimal id.
type Metadata map[int]ReferenceMeta

// MatchResult is a single search hit.
type MatchResult struct {
	ID       int     `json:"-"`
	Name     string  `json:"name"`
	Score    float64 `json:"score"`
	PhotoURL string  `json:"photo_url"`
}
