package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/snappy-loop/snippets/internal/models"
)

// RunRepository handles run-related database operations
type RunRepository struct {
	db *DB
}

// NewRunRepository creates a new RunRepository
func NewRunRepository(db *DB) *RunRepository {
	return &RunRepository{db: db}
}

const runColumns = `id, status, profile, questions, books, webhook_url, webhook_secret,
	failed_stage, error_code, error_message, podcast_key, podcast_duration,
	created_at, started_at, finished_at`

// Create creates a new run
func (r *RunRepository) Create(ctx context.Context, run *models.Run) error {
	profile, err := json.Marshal(run.Profile)
	if err != nil {
		return fmt.Errorf("marshal profile: %w", err)
	}
	questions, err := json.Marshal(run.Questions)
	if err != nil {
		return fmt.Errorf("marshal questions: %w", err)
	}
	books, err := json.Marshal(run.Books)
	if err != nil {
		return fmt.Errorf("marshal books: %w", err)
	}

	query := `
		INSERT INTO runs (
			id, status, profile, questions, books, webhook_url, webhook_secret, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err = r.db.ExecContext(ctx, query,
		run.ID, run.Status, profile, questions, books,
		run.WebhookURL, run.WebhookSecret, run.CreatedAt,
	)
	return err
}

// GetByID retrieves a run by ID
func (r *RunRepository) GetByID(ctx context.Context, runID uuid.UUID) (*models.Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs WHERE id = $1`

	run := &models.Run{}
	var profile, questions, books []byte
	err := r.db.QueryRowContext(ctx, query, runID).Scan(
		&run.ID, &run.Status, &profile, &questions, &books,
		&run.WebhookURL, &run.WebhookSecret,
		&run.FailedStage, &run.ErrorCode, &run.ErrorMessage,
		&run.PodcastKey, &run.PodcastDuration,
		&run.CreatedAt, &run.StartedAt, &run.FinishedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", runID, models.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(profile, &run.Profile); err != nil {
		return nil, fmt.Errorf("unmarshal profile: %w", err)
	}
	if err := json.Unmarshal(questions, &run.Questions); err != nil {
		return nil, fmt.Errorf("unmarshal questions: %w", err)
	}
	if err := json.Unmarshal(books, &run.Books); err != nil {
		return nil, fmt.Errorf("unmarshal books: %w", err)
	}
	return run, nil
}

// MarkRunning moves a queued run to running. A run left running for longer than staleAfter
// is claimed again, since its worker died without finishing it; staleAfter <= 0 disables that.
// It reports false when the run was not claimed, which happens when a run message is
// redelivered while another worker still holds it.
func (r *RunRepository) MarkRunning(ctx context.Context, runID uuid.UUID, staleAfter time.Duration) (bool, error) {
	query := `
		UPDATE runs
		SET status = 'running', started_at = NOW()
		WHERE id = $1 AND (
			status = 'queued' OR
			($2::float8 > 0 AND status = 'running' AND started_at < NOW() - make_interval(secs => $2::float8))
		)
	`
	res, err := r.db.ExecContext(ctx, query, runID, staleAfter.Seconds())
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// MarkSucceeded records the podcast and finishes the run
func (r *RunRepository) MarkSucceeded(ctx context.Context, runID uuid.UUID, podcastKey string, duration float64) error {
	query := `
		UPDATE runs
		SET status = 'succeeded', podcast_key = $1, podcast_duration = $2, finished_at = NOW()
		WHERE id = $3
	`
	_, err := r.db.ExecContext(ctx, query, podcastKey, duration, runID)
	return err
}

// MarkFailed records the failing stage and error and finishes the run
func (r *RunRepository) MarkFailed(ctx context.Context, runID uuid.UUID, stage, code, message string) error {
	query := `
		UPDATE runs
		SET status = 'failed', failed_stage = NULLIF($1, ''), error_code = $2, error_message = $3,
		    finished_at = NOW()
		WHERE id = $4
	`
	_, err := r.db.ExecContext(ctx, query, stage, code, message, runID)
	return err
}
