// Package app wires configuration into the storage, persistence, pipeline and delivery components
// shared by the binaries.
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"

	"github.com/snappy-loop/snippets/internal/audio"
	"github.com/snappy-loop/snippets/internal/config"
	"github.com/snappy-loop/snippets/internal/database"
	"github.com/snappy-loop/snippets/internal/kafka"
	"github.com/snappy-loop/snippets/internal/knowledge"
	"github.com/snappy-loop/snippets/internal/llm"
	"github.com/snappy-loop/snippets/internal/models"
	"github.com/snappy-loop/snippets/internal/pipeline"
	"github.com/snappy-loop/snippets/internal/processor"
	"github.com/snappy-loop/snippets/internal/progress"
	"github.com/snappy-loop/snippets/internal/services"
	"github.com/snappy-loop/snippets/internal/storage"
	"github.com/snappy-loop/snippets/internal/webhook"
	"github.com/snappy-loop/snippets/migrations"
)

// RunRepository is implemented by the Postgres and in-memory run stores.
type RunRepository interface {
	Create(ctx context.Context, run *models.Run) error
	GetByID(ctx context.Context, runID uuid.UUID) (*models.Run, error)
	MarkRunning(ctx context.Context, runID uuid.UUID, staleAfter time.Duration) (bool, error)
	MarkSucceeded(ctx context.Context, runID uuid.UUID, podcastKey string, duration float64) error
	MarkFailed(ctx context.Context, runID uuid.UUID, stage, code, message string) error
}

// ArtifactRepository is implemented by the Postgres and in-memory artifact stores.
type ArtifactRepository interface {
	Upsert(ctx context.Context, a *models.RunArtifact) error
	Get(ctx context.Context, runID uuid.UUID, name string) (*models.RunArtifact, error)
	ListByRun(ctx context.Context, runID uuid.UUID) ([]*models.RunArtifact, error)
}

// App holds the components shared by the binaries.
type App struct {
	Cfg       *config.Config
	DB        *database.DB // nil when runs are kept in memory
	Store     storage.Store
	Runs      RunRepository
	Artifacts ArtifactRepository
	Catalog   *knowledge.Catalog
	Hub       *progress.Hub
	Producer  *kafka.Producer // nil without Kafka
	Webhooks  *webhook.DeliveryService

	embeddingCache knowledge.EmbeddingCache
	llm            *llm.Client
	index          *knowledge.Index
}

// New connects the database (running migrations), the artifact store and the Kafka producer.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{Cfg: cfg, Hub: progress.NewHub()}

	if cfg.DatabaseURL != "" {
		db, err := database.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if err := migrations.Run(ctx, db.DB); err != nil {
			db.Close()
			return nil, fmt.Errorf("run migrations: %w", err)
		}
		a.DB = db
		a.Runs = database.NewRunRepository(db)
		a.Artifacts = database.NewArtifactRepository(db)
		a.embeddingCache = database.NewEmbeddingCacheRepository(db)
	} else {
		log.Warn().Msg("DATABASE_URL not set, runs are kept in memory")
		a.Runs = database.NewMemoryRunRepository()
		a.Artifacts = database.NewMemoryArtifactRepository()
		a.embeddingCache = database.NewMemoryEmbeddingCache()
	}

	store, err := newStore(ctx, cfg)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Store = store

	catalog, err := newCatalog(cfg)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Catalog = catalog

	if cfg.KafkaEnabled() {
		a.Producer = kafka.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopicRuns, cfg.KafkaTopicEvents)
	}
	a.Webhooks = webhook.NewDeliveryService(a.Runs, cfg)
	return a, nil
}

func newStore(ctx context.Context, cfg *config.Config) (storage.Store, error) {
	switch cfg.StorageBackend {
	case "s3":
		store, err := storage.NewS3Store(ctx, s3Endpoint(cfg.S3Endpoint, cfg.S3UseSSL), cfg.S3Region, cfg.S3Bucket,
			cfg.S3AccessKey, cfg.S3SecretKey, cfg.S3PublicURL)
		if err != nil {
			return nil, fmt.Errorf("init s3 store: %w", err)
		}
		return store, nil
	default:
		store, err := storage.NewLocalStore(cfg.OutputDir)
		if err != nil {
			return nil, fmt.Errorf("init local store: %w", err)
		}
		return store, nil
	}
}

// s3Endpoint adds a scheme to host:port endpoints.
func s3Endpoint(endpoint string, useSSL bool) string {
	if endpoint == "" || strings.Contains(endpoint, "://") {
		return endpoint
	}
	if useSSL {
		return "https://" + endpoint
	}
	return "http://" + endpoint
}

func newCatalog(cfg *config.Config) (*knowledge.Catalog, error) {
	if cfg.KnowledgeCatalogFile == "" {
		return knowledge.DefaultCatalog(cfg.KnowledgeDir), nil
	}
	catalog, err := knowledge.LoadCatalog(cfg.KnowledgeCatalogFile, cfg.KnowledgeDir)
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}
	return catalog, nil
}

// NewProcessor builds the generation pipeline, the renderer and the assembler, and returns a
// processor that reports to events.
func (a *App) NewProcessor(ctx context.Context, events ...processor.EventPublisher) (*processor.RunProcessor, error) {
	cfg := a.Cfg
	if a.llm == nil {
		client, err := llm.NewClient(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("init llm client: %w", err)
		}
		a.llm = client
	}

	embedder, err := embeddings.NewEmbedder(a.llm)
	if err != nil {
		return nil, fmt.Errorf("init embedder: %w", err)
	}
	loader := knowledge.NewLoader(cfg.KnowledgeChunkSize, cfg.KnowledgeOverlap, a.llm)
	a.index = knowledge.NewIndex(a.Catalog, loader, embedder, a.embeddingCache, a.llm.EmbeddingModel(), cfg.KnowledgeTopK)
	orchestrator := pipeline.NewOrchestrator(a.llm, a.index)

	renderer, err := a.newRenderer()
	if err != nil {
		return nil, err
	}
	format, err := audio.ParseFormat(cfg.PodcastFormat)
	if err != nil {
		return nil, err
	}

	return processor.NewRunProcessor(
		a.Runs,
		a.Artifacts,
		a.Store,
		orchestrator,
		renderer,
		audio.NewAssembler(format),
		processor.Options{TempDir: cfg.TempDir, LegacyFixedPaths: cfg.LegacyFixedPaths, ClaimTimeout: cfg.RunClaimTimeout},
		events...,
	), nil
}

func (a *App) newRenderer() (*audio.Renderer, error) {
	cfg := a.Cfg
	rc := audio.RendererConfig{
		Concurrency:    cfg.TTSConcurrency,
		MaxAttempts:    cfg.TTSMaxAttempts,
		CallTimeout:    cfg.TTSCallTimeout,
		RetryBaseDelay: cfg.TTSRetryBaseDelay,
		StripMarkdown:  cfg.TTSStripMarkdown,
	}
	var synth audio.Synthesizer
	switch cfg.TTSProvider {
	case "elevenlabs":
		synth = audio.NewElevenLabs(cfg.ElevenLabsAPIKey, audio.WithElevenLabsBaseURL(cfg.ElevenLabsBaseURL))
		rc.HostVoice = cfg.ElevenLabsHostVoice
		rc.ExpertVoice = cfg.ElevenLabsExpertVoice
		rc.ModelID = cfg.ElevenLabsModel
		rc.OutputFormat = cfg.ElevenLabsOutputFormat
		rc.VoiceSettings = audio.VoiceSettings{
			Stability:       cfg.ElevenLabsStability,
			SimilarityBoost: cfg.ElevenLabsSimilarityBoost,
			Style:           cfg.ElevenLabsStyle,
			UseSpeakerBoost: cfg.ElevenLabsSpeakerBoost,
		}
	case "gemini":
		synth = a.llm.Speaker()
		rc.HostVoice = cfg.GeminiTTSHostVoice
		rc.ExpertVoice = cfg.GeminiTTSExpertVoice
	default:
		return nil, fmt.Errorf("unknown TTS provider %q", cfg.TTSProvider)
	}
	log.Info().Str("provider", synth.Name()).Int("concurrency", rc.Concurrency).Msg("Speech synthesizer configured")
	return audio.NewRenderer(synth, rc), nil
}

// WarmIndex embeds every catalog book ahead of the first run. Call after NewProcessor.
func (a *App) WarmIndex(ctx context.Context) {
	if a.index == nil {
		return
	}
	if err := a.index.Warm(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Warn().Err(err).Msg("Knowledge index warm-up failed, books will be indexed on first use")
		return
	}
	log.Info().Int("books", len(a.Catalog.Titles())).Msg("Knowledge index ready")
}

// NewRunService returns the run service. With Kafka, runs are published for the worker; otherwise
// executor runs them in this process.
func (a *App) NewRunService(executor services.RunExecutor) *services.RunService {
	var publisher services.RunPublisher
	if a.Producer != nil {
		publisher = a.Producer
	}
	return services.NewRunService(a.Runs, a.Artifacts, a.Store, a.Catalog, publisher, executor)
}

// Health checks the database when one is configured.
func (a *App) Health(ctx context.Context) error {
	if a.DB == nil {
		return nil
	}
	return a.DB.Health(ctx)
}

// Close releases clients and connections.
func (a *App) Close() {
	if a.Producer != nil {
		if err := a.Producer.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close Kafka producer")
		}
	}
	if a.llm != nil {
		a.llm.Close()
	}
	if a.DB != nil {
		a.DB.Close()
	}
}
