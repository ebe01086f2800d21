package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// EmbeddingCacheRepository caches chunk embeddings keyed by model and chunk hash
type EmbeddingCacheRepository struct {
	db *DB
}

// NewEmbeddingCacheRepository creates a new EmbeddingCacheRepository
func NewEmbeddingCacheRepository(db *DB) *EmbeddingCacheRepository {
	return &EmbeddingCacheRepository{db: db}
}

// GetEmbeddings returns the cached vectors for the given hashes. Missing hashes are absent from the map.
func (r *EmbeddingCacheRepository) GetEmbeddings(ctx context.Context, model string, hashes []string) (map[string][]float32, error) {
	out := make(map[string][]float32, len(hashes))
	if len(hashes) == 0 {
		return out, nil
	}

	query := `
		SELECT chunk_hash, vector
		FROM embedding_cache
		WHERE model = $1 AND chunk_hash = ANY($2)
	`
	rows, err := r.db.QueryContext(ctx, query, model, pq.Array(hashes))
	if err != nil {
		return nil, fmt.Errorf("query cache: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var hash string
		var raw []byte
		if err := rows.Scan(&hash, &raw); err != nil {
			return nil, err
		}
		var vec []float32
		if err := json.Unmarshal(raw, &vec); err != nil {
			return nil, fmt.Errorf("unmarshal vector: %w", err)
		}
		out[hash] = vec
	}
	return out, rows.Err()
}

// PutEmbeddings stores vectors in one transaction
func (r *EmbeddingCacheRepository) PutEmbeddings(ctx context.Context, model string, vectors map[string][]float32) error {
	if len(vectors) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO embedding_cache (model, chunk_hash, vector, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (model, chunk_hash) DO UPDATE
		SET vector = EXCLUDED.vector,
		    created_at = EXCLUDED.created_at
	`)
	if err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	now := time.Now()
	for hash, vec := range vectors {
		raw, err := json.Marshal(vec)
		if err != nil {
			return fmt.Errorf("marshal vector: %w", err)
		}
		if _, err := stmt.ExecContext(ctx, model, hash, raw, now); err != nil {
			return fmt.Errorf("insert cache: %w", err)
		}
	}
	return tx.Commit()
}
