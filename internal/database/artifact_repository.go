package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/snappy-loop/snippets/internal/models"
)

// ArtifactRepository handles run artifact database operations
type ArtifactRepository struct {
	db *DB
}

// NewArtifactRepository creates a new ArtifactRepository
func NewArtifactRepository(db *DB) *ArtifactRepository {
	return &ArtifactRepository{db: db}
}

// Upsert stores an artifact, replacing the previous row with the same run and name.
func (r *ArtifactRepository) Upsert(ctx context.Context, a *models.RunArtifact) error {
	var meta []byte
	if len(a.Meta) > 0 {
		var err error
		if meta, err = json.Marshal(a.Meta); err != nil {
			return fmt.Errorf("marshal meta: %w", err)
		}
	}

	query := `
		INSERT INTO run_artifacts (
			id, run_id, name, storage_key, mime_type, size_bytes, meta, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
		ON CONFLICT (run_id, name) DO UPDATE
		SET storage_key = EXCLUDED.storage_key,
		    mime_type = EXCLUDED.mime_type,
		    size_bytes = EXCLUDED.size_bytes,
		    meta = EXCLUDED.meta,
		    updated_at = EXCLUDED.updated_at
	`
	_, err := r.db.ExecContext(ctx, query,
		a.ID, a.RunID, a.Name, a.StorageKey, a.MimeType, a.SizeBytes, meta, a.CreatedAt,
	)
	return err
}

// Get retrieves one artifact of a run by name
func (r *ArtifactRepository) Get(ctx context.Context, runID uuid.UUID, name string) (*models.RunArtifact, error) {
	query := `
		SELECT id, run_id, name, storage_key, mime_type, size_bytes, meta, created_at, updated_at
		FROM run_artifacts
		WHERE run_id = $1 AND name = $2
	`
	a, err := scanArtifact(r.db.QueryRowContext(ctx, query, runID, name))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("artifact %s of run %s: %w", name, runID, models.ErrNotFound)
	}
	return a, err
}

// ListByRun retrieves artifacts for a run in creation order
func (r *ArtifactRepository) ListByRun(ctx context.Context, runID uuid.UUID) ([]*models.RunArtifact, error) {
	query := `
		SELECT id, run_id, name, storage_key, mime_type, size_bytes, meta, created_at, updated_at
		FROM run_artifacts
		WHERE run_id = $1
		ORDER BY created_at ASC
	`
	rows, err := r.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var artifacts []*models.RunArtifact
	for rows.Next() {
		a, err := scanArtifact(rows)
		if err != nil {
			return nil, err
		}
		artifacts = append(artifacts, a)
	}
	return artifacts, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanArtifact(row rowScanner) (*models.RunArtifact, error) {
	a := &models.RunArtifact{}
	var meta []byte
	if err := row.Scan(
		&a.ID, &a.RunID, &a.Name, &a.StorageKey, &a.MimeType, &a.SizeBytes,
		&meta, &a.CreatedAt, &a.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &a.Meta); err != nil {
			return nil, fmt.Errorf("failed to unmarshal meta: %w", err)
		}
	}
	return a, nil
}
