package services

import (
	"context"

	"github.com/google/uuid"

	"github.com/snappy-loop/snippets/internal/knowledge"
	"github.com/snappy-loop/snippets/internal/models"
)

// RunPublisher queues runs for a worker (e.g. Kafka). Nil executes runs in-process.
type RunPublisher interface {
	PublishRun(ctx context.Context, runID uuid.UUID, traceID string) error
}

// RunExecutor carries a queued run to a terminal status.
type RunExecutor interface {
	ProcessRun(ctx context.Context, runID uuid.UUID) error
}

// runRepository is the subset of run DB operations used by RunService.
type runRepository interface {
	Create(ctx context.Context, run *models.Run) error
	GetByID(ctx context.Context, runID uuid.UUID) (*models.Run, error)
	MarkFailed(ctx context.Context, runID uuid.UUID, stage, code, message string) error
}

// artifactRepository is the subset of artifact DB operations used by RunService.
type artifactRepository interface {
	Get(ctx context.Context, runID uuid.UUID, name string) (*models.RunArtifact, error)
	ListByRun(ctx context.Context, runID uuid.UUID) ([]*models.RunArtifact, error)
}

// bookCatalog lists the selectable books.
type bookCatalog interface {
	Titles() []string
	Lookup(title string) (knowledge.Book, bool)
}
