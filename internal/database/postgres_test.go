package database

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/snappy-loop/snippets/internal/models"
	"github.com/snappy-loop/snippets/migrations"
)

// openTestDB connects to DATABASE_URL and applies migrations; tests skip without it.
func openTestDB(t *testing.T) *DB {
	t.Helper()
	url := os.Getenv("DATABASE_URL")
	if url == "" {
		t.Skip("DATABASE_URL not set")
	}
	ctx := context.Background()
	db, err := Connect(ctx, url)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := migrations.Run(ctx, db.DB); err != nil {
		t.Fatalf("migrations.Run() error = %v", err)
	}
	return db
}

func TestRunRepositoryPostgres(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	runs := NewRunRepository(db)
	artifacts := NewArtifactRepository(db)

	run := newTestRun()
	if err := runs.Create(ctx, run); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if claimed, err := runs.MarkRunning(ctx, run.ID, time.Minute); err != nil || !claimed {
		t.Fatalf("MarkRunning() = %v, %v", claimed, err)
	}

	a := &models.RunArtifact{
		ID: uuid.New(), RunID: run.ID, Name: models.ArtifactPodcast,
		StorageKey: "runs/x/podcast.mp3", MimeType: "audio/mpeg", SizeBytes: 42,
		Meta: map[string]any{"clips": float64(3)}, CreatedAt: time.Now(),
	}
	if err := artifacts.Upsert(ctx, a); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	a.SizeBytes = 84
	if err := artifacts.Upsert(ctx, a); err != nil {
		t.Fatalf("second Upsert() error = %v", err)
	}
	if err := runs.MarkSucceeded(ctx, run.ID, a.StorageKey, 12.5); err != nil {
		t.Fatal(err)
	}

	got, err := runs.GetByID(ctx, run.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != models.RunStatusSucceeded || got.Profile.Name != "Asha" || len(got.Books) != 1 {
		t.Errorf("GetByID() = %+v", got)
	}
	stored, err := artifacts.Get(ctx, run.ID, models.ArtifactPodcast)
	if err != nil || stored.SizeBytes != 84 || stored.Meta["clips"] != float64(3) {
		t.Errorf("Get() = %+v, %v", stored, err)
	}
}

func TestEmbeddingCachePostgres(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	cache := NewEmbeddingCacheRepository(db)
	hash := uuid.NewString()
	if err := cache.PutEmbeddings(ctx, "test-model", map[string][]float32{hash: {0.5, 0.25}}); err != nil {
		t.Fatal(err)
	}
	got, err := cache.GetEmbeddings(ctx, "test-model", []string{hash, "missing"})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[hash][0] != 0.5 {
		t.Errorf("GetEmbeddings() = %v", got)
	}
}
