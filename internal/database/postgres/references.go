package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/pgvector/pgvector-go"

	"github.com/Hofman2HQ/LookALike/internal/database"
)

// lenTimeout bounds the row count behind Len, which has no caller context.
const lenTimeout = 5 * time.Second

// ReferenceRepository stores reference faces in PostgreSQL with pgvector.
// Rows of a different dimensionality are invisible to it.
type ReferenceRepository struct {
	pool *Pool
	dim  int
}

// NewReferenceRepository creates a repository for vectors of length dim.
func NewReferenceRepository(pool *Pool, dim int) *ReferenceRepository {
	return &ReferenceRepository{pool: pool, dim: dim}
}

var _ database.ReferenceWriter = (*ReferenceRepository)(nil)

// Dim returns the vector dimensionality served by this repository.
func (r *ReferenceRepository) Dim() int {
	return r.dim
}

// Len returns the number of stored references, or 0 when the count fails.
func (r *ReferenceRepository) Len() int {
	ctx, cancel := context.WithTimeout(context.Background(), lenTimeout)
	defer cancel()
	n, err := r.Count(ctx)
	if err != nil {
		slog.Warn("failed to count reference faces", "error", err)
		return 0
	}
	return n
}

// Count returns the number of stored references.
func (r *ReferenceRepository) Count(ctx context.Context) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM reference_faces WHERE dim = $1`, r.dim).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count reference faces: %w", err)
	}
	return count, nil
}

// StoredDims returns the distinct dimensionalities of all stored rows.
func (r *ReferenceRepository) StoredDims(ctx context.Context) ([]int, error) {
	rows, err := r.pool.Query(ctx, `SELECT DISTINCT dim FROM reference_faces ORDER BY dim`)
	if err != nil {
		return nil, fmt.Errorf("list reference dims: %w", err)
	}
	defer rows.Close()

	var dims []int
	for rows.Next() {
		var d int
		if err := rows.Scan(&d); err != nil {
			return nil, fmt.Errorf("scan reference dim: %w", err)
		}
		dims = append(dims, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reference dims: %w", err)
	}
	return dims, nil
}

// ReplaceAll deletes every stored reference and inserts entries.
func (r *ReferenceRepository) ReplaceAll(ctx context.Context, entries []database.ReferenceEntry) error {
	for _, e := range entries {
		if len(e.Embedding) != r.dim {
			return fmt.Errorf("%w: entry %d has %d values, expected %d", database.ErrDimensionMismatch, e.ID, len(e.Embedding), r.dim)
		}
	}

	tx, err := r.pool.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if _, err := tx.ExecContext(ctx, `DELETE FROM reference_faces`); err != nil {
		return fmt.Errorf("clear reference faces: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO reference_faces (id, name, photo_url, dim, embedding)
		VALUES ($1, $2, $3, $4, $5)
	`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, e := range entries {
		if _, err := stmt.ExecContext(ctx, e.ID, e.Name, e.PhotoURL, r.dim, pgvector.NewVector(e.Embedding)); err != nil {
			return fmt.Errorf("insert reference %d: %w", e.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit reference faces: %w", err)
	}
	return nil
}

// Search implements database.Searcher with an exact inner-product scan.
// pgvector's <#> operator yields the negated inner product.
func (r *ReferenceRepository) Search(ctx context.Context, query []float32, topK int, threshold float64) ([]database.MatchResult, error) {
	if topK < 1 {
		return nil, database.ErrInvalidTopK
	}
	if len(query) != r.dim {
		return nil, fmt.Errorf("%w: query has %d values, index has %d", database.ErrDimensionMismatch, len(query), r.dim)
	}

	rows, err := r.pool.Query(ctx, `
		SELECT id, name, photo_url, -(embedding <#> $1::vector) AS score
		FROM reference_faces
		WHERE dim = $2 AND -(embedding <#> $1::vector) >= $3
		ORDER BY embedding <#> $1::vector, id
		LIMIT $4
	`, pgvector.NewVector(query), r.dim, threshold, topK)
	if err != nil {
		return nil, fmt.Errorf("search reference faces: %w", err)
	}
	defer rows.Close()

	results := make([]database.MatchResult, 0, topK)
	for rows.Next() {
		var m database.MatchResult
		if err := rows.Scan(&m.ID, &m.Name, &m.PhotoURL, &m.Score); err != nil {
			return nil, fmt.Errorf("scan reference face: %w", err)
		}
		results = append(results, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reference faces: %w", err)
	}
	return results, nil
}
