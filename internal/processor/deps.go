package processor

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/snappy-loop/snippets/internal/kafka"
	"github.com/snappy-loop/snippets/internal/models"
)

type kafkaRunMessage = kafka.RunMessage

// EventPublisher receives run progress events (in-process hub, Kafka, webhooks).
type EventPublisher interface {
	PublishEvent(ctx context.Context, ev models.Event) error
}

// runStore is the subset of run DB operations used by RunProcessor.
type runStore interface {
	GetByID(ctx context.Context, runID uuid.UUID) (*models.Run, error)
	MarkRunning(ctx context.Context, runID uuid.UUID, staleAfter time.Duration) (bool, error)
	MarkSucceeded(ctx context.Context, runID uuid.UUID, podcastKey string, duration float64) error
	MarkFailed(ctx context.Context, runID uuid.UUID, stage, code, message string) error
}

// artifactStore is the subset of artifact DB operations used by RunProcessor.
type artifactStore interface {
	Upsert(ctx context.Context, a *models.RunArtifact) error
}
