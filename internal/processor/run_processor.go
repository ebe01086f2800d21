package processor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/snappy-loop/snippets/internal/audio"
	"github.com/snappy-loop/snippets/internal/models"
	"github.com/snappy-loop/snippets/internal/pipeline"
	"github.com/snappy-loop/snippets/internal/storage"
)

// Stage names recorded for failures after the generation stages
const (
	StageRender   = "render"
	StageAssemble = "assemble"
	StagePublish  = "publish"
)

// Error codes stored on failed runs
const (
	CodeGenerationFailed = "generation_failed"
	CodeSynthesisFailed  = "synthesis_failed"
	CodeAssemblyFailed   = "assembly_failed"
	CodeStorageFailed    = "storage_failed"
	CodeCanceled         = "canceled"
)

// RunProcessor executes a run end-to-end: generation stages, speech rendering, assembly and
// publication of the podcast.
type RunProcessor struct {
	runs         runStore
	artifacts    artifactStore
	store        storage.Store
	orchestrator *pipeline.Orchestrator
	renderer     *audio.Renderer
	assembler    *audio.Assembler
	events       []EventPublisher
	tempDir      string
	legacy       bool
	claimTimeout time.Duration
}

// Options holds the filesystem and claim settings of a RunProcessor
type Options struct {
	TempDir          string
	LegacyFixedPaths bool
	// ClaimTimeout is how long a run may stay running before another delivery reclaims it.
	ClaimTimeout time.Duration
}

// NewRunProcessor creates a new run processor. Events go to every publisher in order.
func NewRunProcessor(
	runs runStore,
	artifacts artifactStore,
	store storage.Store,
	orchestrator *pipeline.Orchestrator,
	renderer *audio.Renderer,
	assembler *audio.Assembler,
	opts Options,
	events ...EventPublisher,
) *RunProcessor {
	return &RunProcessor{
		runs:         runs,
		artifacts:    artifacts,
		store:        store,
		orchestrator: orchestrator,
		renderer:     renderer,
		assembler:    assembler,
		events:       events,
		tempDir:      opts.TempDir,
		legacy:       opts.LegacyFixedPaths,
		claimTimeout: opts.ClaimTimeout,
	}
}

// stepError tags a failure with the stage and error code stored on the run.
type stepError struct {
	stage string
	code  string
	err   error
}

func (e *stepError) Error() string { return e.stage + ": " + e.err.Error() }
func (e *stepError) Unwrap() error { return e.err }

// HandleRun implements the Kafka run handler.
func (p *RunProcessor) HandleRun(ctx context.Context, msg *kafkaRunMessage) error {
	return p.ProcessRun(ctx, msg.RunID)
}

// ProcessRun carries a queued run to succeeded or failed. Pipeline failures are recorded on the
// run and not returned; an error means the run could not be loaded or claimed.
func (p *RunProcessor) ProcessRun(ctx context.Context, runID uuid.UUID) error {
	log.Info().Str("run_id", runID.String()).Msg("Starting run processing")

	run, err := p.runs.GetByID(ctx, runID)
	if err != nil {
		return fmt.Errorf("failed to get run: %w", err)
	}
	if run.Terminal() {
		log.Warn().Str("run_id", runID.String()).Str("status", run.Status).Msg("Run already processed")
		return nil
	}

	claimed, err := p.runs.MarkRunning(ctx, runID, p.claimTimeout)
	if err != nil {
		return fmt.Errorf("failed to mark run running: %w", err)
	}
	if !claimed {
		log.Warn().Str("run_id", runID.String()).Msg("Run already claimed by another worker")
		return nil
	}
	if run.Status == models.RunStatusRunning {
		log.Warn().Str("run_id", runID.String()).Msg("Reclaimed stale running run")
	}
	p.emit(ctx, runID, models.EventRunStarted, "", "")

	start := time.Now()
	podcast, key, err := p.execute(ctx, run)
	// Status updates must land even when ctx was cancelled mid-run.
	finishCtx := context.WithoutCancel(ctx)
	if err != nil {
		stage, code := classify(err)
		log.Error().
			Err(err).
			Str("run_id", runID.String()).
			Str("stage", stage).
			Str("error_code", code).
			Msg("Run processing failed")

		if mErr := p.runs.MarkFailed(finishCtx, runID, stage, code, err.Error()); mErr != nil {
			log.Error().Err(mErr).Str("run_id", runID.String()).Msg("Failed to update run status to failed")
		}
		p.emit(finishCtx, runID, models.EventRunFailed, stage, err.Error())
		return nil
	}

	if err := p.runs.MarkSucceeded(finishCtx, runID, key, podcast.Duration); err != nil {
		log.Error().Err(err).Str("run_id", runID.String()).Msg("Failed to update run status to succeeded")
	}
	p.emit(finishCtx, runID, models.EventRunCompleted, "", fmt.Sprintf("%.1fs podcast", podcast.Duration))

	log.Info().
		Str("run_id", runID.String()).
		Int("clips", podcast.Clips).
		Float64("duration_seconds", podcast.Duration).
		Dur("elapsed", time.Since(start)).
		Msg("Run processing completed successfully")
	return nil
}

func (p *RunProcessor) execute(ctx context.Context, run *models.Run) (*audio.Podcast, string, error) {
	dir, err := os.MkdirTemp(p.tempDir, "run-"+run.ID.String()+"-")
	if err != nil {
		return nil, "", &stepError{stage: StageRender, code: CodeStorageFailed, err: fmt.Errorf("create temp dir: %w", err)}
	}
	defer func() {
		if err := os.RemoveAll(dir); err != nil {
			log.Warn().Err(err).Str("dir", dir).Msg("Failed to remove run temp dir")
		}
	}()

	in := pipeline.Input{
		Profile:   run.Profile,
		Questions: run.Questions,
		Books:     run.Books,
	}
	refined, err := p.orchestrator.Run(ctx, in, &recorder{p: p, runID: run.ID})
	if err != nil {
		return nil, "", err
	}

	p.emit(ctx, run.ID, models.EventStageStarted, StageRender, "")
	clips, err := p.renderer.RenderScript(ctx, filepath.Join(dir, "clips"), refined,
		audio.WithProgress(func(done, total int) {
			p.emit(ctx, run.ID, models.EventAudioRendered, StageRender, fmt.Sprintf("%d/%d", done, total))
		}),
	)
	if err != nil {
		return nil, "", &stepError{stage: StageRender, code: CodeSynthesisFailed, err: err}
	}
	p.emit(ctx, run.ID, models.EventStageCompleted, StageRender, fmt.Sprintf("%d clips", len(clips)))

	p.emit(ctx, run.ID, models.EventStageStarted, StageAssemble, "")
	format := p.assembler.Format()
	podcast, err := p.assembler.Assemble(ctx, clips, filepath.Join(dir, "podcast"+format.Ext()))
	if err != nil {
		return nil, "", &stepError{stage: StageAssemble, code: CodeAssemblyFailed, err: err}
	}
	p.emit(ctx, run.ID, models.EventStageCompleted, StageAssemble, "")

	key := storage.PodcastKey(run.ID, format.Ext(), p.legacy)
	if err := p.publishPodcast(ctx, run.ID, key, podcast); err != nil {
		return nil, "", &stepError{stage: StagePublish, code: CodeStorageFailed, err: err}
	}
	return podcast, key, nil
}

func (p *RunProcessor) publishPodcast(ctx context.Context, runID uuid.UUID, key string, podcast *audio.Podcast) error {
	f, err := os.Open(podcast.Path)
	if err != nil {
		return fmt.Errorf("open podcast: %w", err)
	}
	defer f.Close()

	if err := p.store.Put(ctx, key, f, podcast.MimeType, podcast.SizeBytes); err != nil {
		return fmt.Errorf("store podcast: %w", err)
	}
	return p.artifacts.Upsert(ctx, &models.RunArtifact{
		ID:         uuid.New(),
		RunID:      runID,
		Name:       models.ArtifactPodcast,
		StorageKey: key,
		MimeType:   podcast.MimeType,
		SizeBytes:  podcast.SizeBytes,
		Meta: map[string]any{
			"duration_seconds": podcast.Duration,
			"clips":            podcast.Clips,
		},
		CreatedAt: time.Now(),
	})
}

// classify maps a run failure to the stage and error code stored on the run.
func classify(err error) (stage, code string) {
	var se *pipeline.StageError
	var step *stepError
	switch {
	case errors.As(err, &se):
		stage, code = se.Stage, CodeGenerationFailed
	case errors.As(err, &step):
		stage, code = step.stage, step.code
	default:
		code = "processing_error"
	}
	if errors.Is(err, context.Canceled) {
		code = CodeCanceled
	}
	return stage, code
}

func (p *RunProcessor) emit(ctx context.Context, runID uuid.UUID, typ, stage, message string) {
	ev := models.Event{RunID: runID, Type: typ, Stage: stage, Message: message, At: time.Now()}
	for _, pub := range p.events {
		if err := pub.PublishEvent(ctx, ev); err != nil {
			log.Warn().Err(err).Str("run_id", runID.String()).Str("event", typ).Msg("Failed to publish run event")
		}
	}
}

// recorder stores each stage's output as a text artifact of the run.
type recorder struct {
	p     *RunProcessor
	runID uuid.UUID
}

func (r *recorder) StageStarted(ctx context.Context, stage string) {
	r.p.emit(ctx, r.runID, models.EventStageStarted, stage, "")
}

func (r *recorder) StageCompleted(ctx context.Context, stage, output string) error {
	key, err := storage.ArtifactKey(r.runID, stage, r.p.legacy)
	if err != nil {
		return err
	}
	const mimeType = "text/plain; charset=utf-8"
	if err := r.p.store.Put(ctx, key, strings.NewReader(output), mimeType, int64(len(output))); err != nil {
		return err
	}
	if err := r.p.artifacts.Upsert(ctx, &models.RunArtifact{
		ID:         uuid.New(),
		RunID:      r.runID,
		Name:       stage,
		StorageKey: key,
		MimeType:   mimeType,
		SizeBytes:  int64(len(output)),
		CreatedAt:  time.Now(),
	}); err != nil {
		return fmt.Errorf("record artifact: %w", err)
	}
	r.p.emit(ctx, r.runID, models.EventStageCompleted, stage, "")
	return nil
}
