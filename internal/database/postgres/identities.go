package postgres

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"

	"github.com/kozaktomas/face-logger/internal/identity"
)

// PushStats summarizes one identity push.
type PushStats struct {
	Inserted int
	Existing int
	Removed  int
}

// IdentityMatch is one row returned by Nearest.
type IdentityMatch struct {
	Label    string
	File     string
	Distance float64
}

// IdentityRepository stores registered embeddings as pgvector rows.
type IdentityRepository struct {
	pool *Pool
}

// NewIdentityRepository creates a new identity repository.
func NewIdentityRepository(pool *Pool) *IdentityRepository {
	return &IdentityRepository{pool: pool}
}

// fileKey is the stable row key of an embedding file: "<label>/<file name>".
func fileKey(e identity.KnownEmbedding) string {
	return filepath.ToSlash(filepath.Join(e.Label, filepath.Base(e.Path)))
}

func toFloat32(v []float64) []float32 {
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(x)
	}
	return out
}

// Push inserts embeddings not yet in the table and, when prune is set, deletes
// rows whose file no longer exists in the store. progress is called once per
// embedding and may be nil.
func (r *IdentityRepository) Push(ctx context.Context, embeddings []identity.KnownEmbedding, prune bool, progress func()) (PushStats, error) {
	var stats PushStats

	tx, err := r.pool.db.BeginTx(ctx, nil)
	if err != nil {
		return stats, fmt.Errorf("begin push: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO identity_embeddings (label, file, dim, embedding)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (file) DO NOTHING
	`)
	if err != nil {
		return stats, fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	keys := make([]string, 0, len(embeddings))
	for _, e := range embeddings {
		key := fileKey(e)
		keys = append(keys, key)

		res, err := stmt.ExecContext(ctx, e.Label, key, len(e.Embedding), pgvector.NewVector(toFloat32(e.Embedding)))
		if err != nil {
			return stats, fmt.Errorf("insert %s: %w", key, err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			stats.Inserted++
		} else {
			stats.Existing++
		}
		if progress != nil {
			progress()
		}
	}

	if prune {
		res, err := tx.ExecContext(ctx, `DELETE FROM identity_embeddings WHERE NOT (file = ANY($1))`, pq.Array(keys))
		if err != nil {
			return stats, fmt.Errorf("prune identities: %w", err)
		}
		n, _ := res.RowsAffected()
		stats.Removed = int(n)
	}

	if err := tx.Commit(); err != nil {
		return stats, fmt.Errorf("commit push: %w", err)
	}
	return stats, nil
}

// CountByLabel returns the number of stored embeddings per label.
func (r *IdentityRepository) CountByLabel(ctx context.Context) (map[string]int, error) {
	rows, err := r.pool.query(ctx, `SELECT label, COUNT(*) FROM identity_embeddings GROUP BY label`)
	if err != nil {
		return nil, fmt.Errorf("count identities: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var label string
		var n int
		if err := rows.Scan(&label, &n); err != nil {
			return nil, fmt.Errorf("scan identity count: %w", err)
		}
		counts[label] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate identity counts: %w", err)
	}
	return counts, nil
}

// Nearest returns the closest stored embeddings of the same dimension by L2
// distance, nearest first.
func (r *IdentityRepository) Nearest(ctx context.Context, embedding []float64, limit int) ([]IdentityMatch, error) {
	rows, err := r.pool.query(ctx, `
		SELECT label, file, embedding <-> $1 AS distance
		FROM identity_embeddings
		WHERE dim = $2
		ORDER BY distance, id
		LIMIT $3
	`, pgvector.NewVector(toFloat32(embedding)), len(embedding), limit)
	if err != nil {
		return nil, fmt.Errorf("query nearest identities: %w", err)
	}
	defer rows.Close()

	var matches []IdentityMatch
	for rows.Next() {
		var m IdentityMatch
		if err := rows.Scan(&m.Label, &m.File, &m.Distance); err != nil {
			return nil, fmt.Errorf("scan identity match: %w", err)
		}
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate identity matches: %w", err)
	}
	return matches, nil
}
