package database

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrBackendNotInitialized is returned when the PostgreSQL backend is requested
// but DATABASE_URL was not configured.
var ErrBackendNotInitialized = errors.New("PostgreSQL backend not initialized: DATABASE_URL is required")

var (
	postgresReferenceWriter func(dim int) ReferenceWriter
	postgresMu              sync.RWMutex
)

// RegisterPostgresBackend registers the PostgreSQL repository constructor.
// This is called by the postgres package to avoid import cycles.
func RegisterPostgresBackend(writer func(dim int) ReferenceWriter) {
	postgresMu.Lock()
	defer postgresMu.Unlock()
	postgresReferenceWriter = writer
}

// IsInitialized returns whether the PostgreSQL backend has been initialized.
func IsInitialized() bool {
	postgresMu.RLock()
	defer postgresMu.RUnlock()
	return postgresReferenceWriter != nil
}

// GetReferenceWriter returns a ReferenceWriter from the PostgreSQL backend.
func GetReferenceWriter(_ context.Context, dim int) (ReferenceWriter, error) {
	postgresMu.RLock()
	defer postgresMu.RUnlock()
	if postgresReferenceWriter == nil {
		return nil, ErrBackendNotInitialized
	}
	return postgresReferenceWriter(dim), nil
}

// GetReferenceReader returns a ReferenceReader from the PostgreSQL backend.
// A store holding rows of any other dimensionality is rejected.
func GetReferenceReader(ctx context.Context, dim int) (ReferenceReader, error) {
	r, err := GetReferenceWriter(ctx, dim)
	if err != nil {
		return nil, err
	}
	dims, err := r.StoredDims(ctx)
	if err != nil {
		return nil, err
	}
	for _, d := range dims {
		if d != dim {
			return nil, fmt.Errorf("%w: stored references have %d values, embedder produces %d",
				ErrDimensionMismatch, d, dim)
		}
	}
	return r, nil
}
