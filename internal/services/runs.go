package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/snappy-loop/snippets/internal/models"
	"github.com/snappy-loop/snippets/internal/storage"
)

// ErrEnqueueFailed is returned when a created run could not be handed to a worker.
var ErrEnqueueFailed = errors.New("failed to enqueue run")

// RunService handles run-related business logic
type RunService struct {
	runs      runRepository
	artifacts artifactRepository
	store     storage.Store
	catalog   bookCatalog
	publisher RunPublisher
	executor  RunExecutor

	wg sync.WaitGroup
}

// NewRunService creates a new RunService. With a nil publisher, Create runs the pipeline in a
// background goroutine of this process.
func NewRunService(
	runs runRepository,
	artifacts artifactRepository,
	store storage.Store,
	catalog bookCatalog,
	publisher RunPublisher,
	executor RunExecutor,
) *RunService {
	return &RunService{
		runs:      runs,
		artifacts: artifacts,
		store:     store,
		catalog:   catalog,
		publisher: publisher,
		executor:  executor,
	}
}

// Catalog returns the selectable book titles
func (s *RunService) Catalog() *models.CatalogResponse {
	return &models.CatalogResponse{Books: s.catalog.Titles()}
}

// Validate normalizes req and reports the first missing or invalid field as a
// *models.ValidationError.
func (s *RunService) Validate(req *models.CreateRunRequest) error {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return err
	}
	var unknown []string
	for _, title := range req.Books {
		if _, ok := s.catalog.Lookup(title); !ok {
			unknown = append(unknown, title)
		}
	}
	if len(unknown) > 0 {
		return &models.ValidationError{
			Field:   "books",
			Message: "unknown book(s): " + strings.Join(unknown, ", "),
		}
	}
	return nil
}

func (s *RunService) create(ctx context.Context, req *models.CreateRunRequest) (*models.Run, error) {
	if err := s.Validate(req); err != nil {
		return nil, err
	}

	run := &models.Run{
		ID:        uuid.New(),
		Status:    models.RunStatusQueued,
		Profile:   req.Profile,
		Questions: req.Questions,
		Books:     req.Books,
		CreatedAt: time.Now(),
	}
	if req.Webhook != nil {
		run.WebhookURL = &req.Webhook.URL
		run.WebhookSecret = req.Webhook.Secret
	}

	if err := s.runs.Create(ctx, run); err != nil {
		return nil, fmt.Errorf("failed to create run: %w", err)
	}

	log.Info().
		Str("run_id", run.ID.String()).
		Str("student", run.Profile.Name).
		Int("questions", len(run.Questions)).
		Strs("books", run.Books).
		Msg("Run created")
	return run, nil
}

// Create validates req, stores a queued run and hands it to a worker or to a background goroutine.
func (s *RunService) Create(ctx context.Context, req *models.CreateRunRequest) (*models.CreateRunResponse, error) {
	run, err := s.create(ctx, req)
	if err != nil {
		return nil, err
	}

	if s.publisher != nil {
		traceID := uuid.New().String()
		if err := s.publisher.PublishRun(ctx, run.ID, traceID); err != nil {
			log.Error().Err(err).Str("run_id", run.ID.String()).Msg("Failed to publish run to Kafka")
			if mErr := s.runs.MarkFailed(ctx, run.ID, "", "enqueue_failed", err.Error()); mErr != nil {
				log.Error().Err(mErr).Str("run_id", run.ID.String()).Msg("Failed to mark run failed")
			}
			return nil, fmt.Errorf("%w: %w", ErrEnqueueFailed, err)
		}
	} else {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			if err := s.executor.ProcessRun(context.WithoutCancel(ctx), run.ID); err != nil {
				log.Error().Err(err).Str("run_id", run.ID.String()).Msg("In-process run failed")
			}
		}()
	}

	return &models.CreateRunResponse{
		RunID:     run.ID,
		Status:    run.Status,
		CreatedAt: run.CreatedAt,
	}, nil
}

// Generate creates a run and executes it before returning, as the form submit does.
func (s *RunService) Generate(ctx context.Context, req *models.CreateRunRequest) (*models.RunStatusResponse, error) {
	run, err := s.create(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := s.executor.ProcessRun(ctx, run.ID); err != nil {
		return nil, fmt.Errorf("failed to process run: %w", err)
	}
	return s.Get(ctx, run.ID)
}

// Get returns a run with its artifacts and their download URLs
func (s *RunService) Get(ctx context.Context, runID uuid.UUID) (*models.RunStatusResponse, error) {
	run, err := s.runs.GetByID(ctx, runID)
	if err != nil {
		return nil, err
	}
	artifacts, err := s.artifacts.ListByRun(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get artifacts: %w", err)
	}
	return &models.RunStatusResponse{
		Run:       *run,
		Artifacts: s.buildArtifactResponses(ctx, artifacts),
	}, nil
}

// buildArtifactResponses attaches direct storage URLs when the store has them, API routes otherwise.
func (s *RunService) buildArtifactResponses(ctx context.Context, artifacts []*models.RunArtifact) []*models.ArtifactResponse {
	out := make([]*models.ArtifactResponse, len(artifacts))
	for i, a := range artifacts {
		url := s.store.URL(ctx, a.StorageKey)
		if url == "" {
			url = ArtifactPath(a.RunID, a.Name)
		}
		out[i] = &models.ArtifactResponse{Artifact: *a, DownloadURL: url}
	}
	return out
}

// ArtifactPath is the API route serving an artifact's content.
func ArtifactPath(runID uuid.UUID, name string) string {
	if name == models.ArtifactPodcast {
		return "/v1/runs/" + runID.String() + "/podcast"
	}
	return "/v1/runs/" + runID.String() + "/artifacts/" + name
}

// OpenArtifact opens the stored content of one artifact. The caller closes the reader.
func (s *RunService) OpenArtifact(ctx context.Context, runID uuid.UUID, name string) (io.ReadCloser, *models.RunArtifact, error) {
	a, err := s.artifacts.Get(ctx, runID, name)
	if err != nil {
		return nil, nil, err
	}
	rc, err := s.store.Get(ctx, a.StorageKey)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil, fmt.Errorf("artifact content %s: %w", a.StorageKey, models.ErrNotFound)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open artifact: %w", err)
	}
	return rc, a, nil
}

// Wait blocks until in-process runs started by Create finish.
func (s *RunService) Wait() {
	s.wg.Wait()
}
