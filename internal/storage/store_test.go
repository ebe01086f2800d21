package storage

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/snappy-loop/snippets/internal/models"
)

func TestLocalStorePutOverwrites(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	s, err := NewLocalStore(root)
	if err != nil {
		t.Fatal(err)
	}

	for _, body := range []string{"first version, longer", "second"} {
		if err := s.Put(ctx, "runs/x/answers.txt", strings.NewReader(body), "text/plain", int64(len(body))); err != nil {
			t.Fatalf("Put() error = %v", err)
		}
	}

	r, err := s.Get(ctx, "runs/x/answers.txt")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	defer r.Close()
	got, _ := io.ReadAll(r)
	if string(got) != "second" {
		t.Errorf("content = %q, want %q", got, "second")
	}

	entries, _ := os.ReadDir(filepath.Join(root, "runs", "x"))
	if len(entries) != 1 {
		t.Errorf("leftover temp files: %v", entries)
	}
}

func TestLocalStoreGetMissing(t *testing.T) {
	s, _ := NewLocalStore(t.TempDir())
	if _, err := s.Get(context.Background(), "nope.txt"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() error = %v, want ErrNotFound", err)
	}
	if err := s.Delete(context.Background(), "nope.txt"); err != nil {
		t.Errorf("Delete(missing) error = %v", err)
	}
}

func TestLocalStoreRejectsEscapingKeys(t *testing.T) {
	s, _ := NewLocalStore(t.TempDir())
	for _, key := range []string{"../evil", "/abs/path", "a/../../b"} {
		if err := s.Put(context.Background(), key, strings.NewReader("x"), "text/plain", 1); err == nil {
			t.Errorf("Put(%q) expected error", key)
		}
	}
}

func TestArtifactKeys(t *testing.T) {
	id := uuid.MustParse("11111111-2222-3333-4444-555555555555")
	tests := []struct {
		name   string
		legacy bool
		want   string
	}{
		{models.ArtifactAnswers, false, "runs/11111111-2222-3333-4444-555555555555/answers.txt"},
		{models.ArtifactRefinedScript, false, "runs/11111111-2222-3333-4444-555555555555/refined_script.txt"},
		{models.ArtifactAnswers, true, "output/answers.txt"},
		{models.ArtifactScript, true, "output/script.txt"},
		{models.ArtifactRefinedScript, true, "output/refine_script.txt"},
	}
	for _, tt := range tests {
		got, err := ArtifactKey(id, tt.name, tt.legacy)
		if err != nil || got != tt.want {
			t.Errorf("ArtifactKey(%s, %v) = %q, %v; want %q", tt.name, tt.legacy, got, err, tt.want)
		}
	}
	if _, err := ArtifactKey(id, "bogus", false); err == nil {
		t.Error("ArtifactKey(bogus) expected error")
	}
	if got := PodcastKey(id, ".mp3", false); got != "runs/11111111-2222-3333-4444-555555555555/podcast.mp3" {
		t.Errorf("PodcastKey() = %q", got)
	}
	if got := PodcastKey(id, ".mp3", true); got != "final_podcast.mp3" {
		t.Errorf("PodcastKey(legacy) = %q", got)
	}
}
