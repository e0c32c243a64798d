package database

import (
	"context"
)

// ReferenceReader provides read-only access to stored references.
type ReferenceReader interface {
	Searcher
	// Count returns the number of stored references.
	Count(ctx context.Context) (int, error)
	// StoredDims returns every distinct dimensionality present in the store.
	StoredDims(ctx context.Context) ([]int, error)
}

// ReferenceWriter provides write access to stored references.
type ReferenceWriter interface {
	ReferenceReader

	// ReplaceAll swaps the whole reference set in one transaction.
	ReplaceAll(ctx context.Context, entries []ReferenceEntry) error
}
