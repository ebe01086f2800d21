// Package storage keeps run artifacts on local disk or in S3-compatible object storage.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"

	"github.com/google/uuid"

	"github.com/snappy-loop/snippets/internal/models"
)

// ErrNotFound is returned by Get for a missing key.
var ErrNotFound = errors.New("object not found")

// Store persists artifacts by key. Put replaces any existing object under the key.
type Store interface {
	Put(ctx context.Context, key string, data io.Reader, contentType string, size int64) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
	// URL returns a direct download URL, or "" when objects are only reachable through the API.
	URL(ctx context.Context, key string) string
}

var (
	artifactFiles = map[string]string{
		models.ArtifactAnswers:       "answers.txt",
		models.ArtifactScript:        "script.txt",
		models.ArtifactRefinedScript: "refined_script.txt",
	}
	legacyArtifactFiles = map[string]string{
		models.ArtifactAnswers:       "output/answers.txt",
		models.ArtifactScript:        "output/script.txt",
		models.ArtifactRefinedScript: "output/refine_script.txt",
	}
)

// ArtifactKey returns the storage key for a text artifact of a run. With legacy set, every run
// shares the same fixed keys.
func ArtifactKey(runID uuid.UUID, name string, legacy bool) (string, error) {
	files := artifactFiles
	if legacy {
		files = legacyArtifactFiles
	}
	file, ok := files[name]
	if !ok {
		return "", fmt.Errorf("unknown artifact %q", name)
	}
	if legacy {
		return file, nil
	}
	return path.Join("runs", runID.String(), file), nil
}

// PodcastKey returns the storage key of a run's podcast; ext includes the dot.
func PodcastKey(runID uuid.UUID, ext string, legacy bool) string {
	if legacy {
		return "final_podcast" + ext
	}
	return path.Join("runs", runID.String(), "podcast"+ext)
}
