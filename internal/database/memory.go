package database

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/snappy-loop/snippets/internal/models"
)

// MemoryRunRepository keeps runs in process memory. It backs the API when DATABASE_URL is unset.
type MemoryRunRepository struct {
	mu   sync.RWMutex
	runs map[uuid.UUID]*models.Run
}

// NewMemoryRunRepository creates an empty MemoryRunRepository
func NewMemoryRunRepository() *MemoryRunRepository {
	return &MemoryRunRepository{runs: make(map[uuid.UUID]*models.Run)}
}

func cloneRun(r *models.Run) *models.Run {
	c := *r
	c.Questions = slices.Clone(r.Questions)
	c.Books = slices.Clone(r.Books)
	return &c
}

// Create stores a copy of run
func (m *MemoryRunRepository) Create(ctx context.Context, run *models.Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.runs[run.ID]; ok {
		return fmt.Errorf("run %s already exists", run.ID)
	}
	m.runs[run.ID] = cloneRun(run)
	return nil
}

// GetByID returns a copy of the run
func (m *MemoryRunRepository) GetByID(ctx context.Context, runID uuid.UUID) (*models.Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.runs[runID]
	if !ok {
		return nil, fmt.Errorf("run %s: %w", runID, models.ErrNotFound)
	}
	return cloneRun(r), nil
}

// MarkRunning moves a queued run, or one running for longer than staleAfter, to running
func (m *MemoryRunRepository) MarkRunning(ctx context.Context, runID uuid.UUID, staleAfter time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.runs[runID]
	if !ok {
		return false, fmt.Errorf("run %s: %w", runID, models.ErrNotFound)
	}
	now := time.Now()
	stale := staleAfter > 0 && r.Status == models.RunStatusRunning &&
		r.StartedAt != nil && now.Sub(*r.StartedAt) > staleAfter
	if r.Status != models.RunStatusQueued && !stale {
		return false, nil
	}
	r.Status = models.RunStatusRunning
	r.StartedAt = &now
	return true, nil
}

// MarkSucceeded records the podcast and finishes the run
func (m *MemoryRunRepository) MarkSucceeded(ctx context.Context, runID uuid.UUID, podcastKey string, duration float64) error {
	return m.finish(runID, func(r *models.Run) {
		r.Status = models.RunStatusSucceeded
		r.PodcastKey = &podcastKey
		r.PodcastDuration = &duration
	})
}

// MarkFailed records the failure and finishes the run
func (m *MemoryRunRepository) MarkFailed(ctx context.Context, runID uuid.UUID, stage, code, message string) error {
	return m.finish(runID, func(r *models.Run) {
		r.Status = models.RunStatusFailed
		if stage != "" {
			r.FailedStage = &stage
		}
		r.ErrorCode = &code
		r.ErrorMessage = &message
	})
}

func (m *MemoryRunRepository) finish(runID uuid.UUID, apply func(*models.Run)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.runs[runID]
	if !ok {
		return fmt.Errorf("run %s: %w", runID, models.ErrNotFound)
	}
	apply(r)
	now := time.Now()
	r.FinishedAt = &now
	return nil
}

type artifactKey struct {
	runID uuid.UUID
	name  string
}

// MemoryArtifactRepository keeps artifact rows in process memory.
type MemoryArtifactRepository struct {
	mu        sync.RWMutex
	artifacts map[artifactKey]*models.RunArtifact
}

// NewMemoryArtifactRepository creates an empty MemoryArtifactRepository
func NewMemoryArtifactRepository() *MemoryArtifactRepository {
	return &MemoryArtifactRepository{artifacts: make(map[artifactKey]*models.RunArtifact)}
}

// Upsert stores a, keeping the original ID and creation time of an existing row.
func (m *MemoryArtifactRepository) Upsert(ctx context.Context, a *models.RunArtifact) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := artifactKey{a.RunID, a.Name}
	c := *a
	if prev, ok := m.artifacts[k]; ok {
		c.ID = prev.ID
		c.CreatedAt = prev.CreatedAt
	}
	c.UpdatedAt = a.CreatedAt
	m.artifacts[k] = &c
	return nil
}

// Get returns one artifact of a run
func (m *MemoryArtifactRepository) Get(ctx context.Context, runID uuid.UUID, name string) (*models.RunArtifact, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.artifacts[artifactKey{runID, name}]
	if !ok {
		return nil, fmt.Errorf("artifact %s of run %s: %w", name, runID, models.ErrNotFound)
	}
	c := *a
	return &c, nil
}

// ListByRun returns the run's artifacts in creation order
func (m *MemoryArtifactRepository) ListByRun(ctx context.Context, runID uuid.UUID) ([]*models.RunArtifact, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*models.RunArtifact
	for k, a := range m.artifacts {
		if k.runID == runID {
			c := *a
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// MemoryEmbeddingCache keeps embeddings for the lifetime of the process.
type MemoryEmbeddingCache struct {
	mu      sync.RWMutex
	vectors map[string]map[string][]float32
}

// NewMemoryEmbeddingCache creates an empty MemoryEmbeddingCache
func NewMemoryEmbeddingCache() *MemoryEmbeddingCache {
	return &MemoryEmbeddingCache{vectors: make(map[string]map[string][]float32)}
}

// GetEmbeddings returns the cached vectors for hashes
func (m *MemoryEmbeddingCache) GetEmbeddings(ctx context.Context, model string, hashes []string) (map[string][]float32, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string][]float32, len(hashes))
	for _, h := range hashes {
		if v, ok := m.vectors[model][h]; ok {
			out[h] = v
		}
	}
	return out, nil
}

// PutEmbeddings stores vectors
func (m *MemoryEmbeddingCache) PutEmbeddings(ctx context.Context, model string, vectors map[string][]float32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	byHash, ok := m.vectors[model]
	if !ok {
		byHash = make(map[string][]float32)
		m.vectors[model] = byHash
	}
	for h, v := range vectors {
		byHash[h] = v
	}
	return nil
}
