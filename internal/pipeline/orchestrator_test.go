package pipeline

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/snappy-loop/snippets/internal/agents"
	"github.com/snappy-loop/snippets/internal/models"
	"github.com/snappy-loop/snippets/internal/script"
)

// scriptedGenerator answers each persona with a canned response.
type scriptedGenerator struct {
	mu      sync.Mutex
	byRole  map[string]string
	errRole string
	prompts map[string]string
	order   []string
}

func (g *scriptedGenerator) Generate(ctx context.Context, systemPrompt, prompt string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for role, out := range g.byRole {
		if strings.Contains(systemPrompt, "You are "+role+".") {
			if g.prompts == nil {
				g.prompts = map[string]string{}
			}
			g.prompts[role] = prompt
			g.order = append(g.order, role)
			if role == g.errRole {
				return "", errors.New("model unavailable")
			}
			return out, nil
		}
	}
	return "", errors.New("unexpected persona")
}

type memoryRecorder struct {
	started   []string
	artifacts map[string]string
	writes    []string
	failOn    string
}

func (r *memoryRecorder) StageStarted(ctx context.Context, stage string) {
	r.started = append(r.started, stage)
}

func (r *memoryRecorder) StageCompleted(ctx context.Context, stage, output string) error {
	if stage == r.failOn {
		return errors.New("disk full")
	}
	if r.artifacts == nil {
		r.artifacts = map[string]string{}
	}
	r.artifacts[stage] = output
	r.writes = append(r.writes, stage)
	return nil
}

type fakeRetriever struct {
	books []string
	query string
	err   error
}

func (f *fakeRetriever) Retrieve(ctx context.Context, books []string, query string) ([]Passage, error) {
	f.books, f.query = books, query
	if f.err != nil {
		return nil, f.err
	}
	return []Passage{{Book: books[0], Page: 12, Text: "Light travels in straight lines."}}, nil
}

func testInput() Input {
	return Input{
		Profile: models.StudentProfile{
			Name: "Alex", Age: 12, Grade: "6th", SelfRating: "Know a little",
			ExplanationStyle: "Fun", PodcastType: "Rapid Answers",
		},
		Questions: []string{"Why do volcanoes erupt?", "What is magma?"},
		Books:     []string{"Class 12 Physics Part 2"},
	}
}

func newGenerator() *scriptedGenerator {
	return &scriptedGenerator{byRole: map[string]string{
		"answer questions":         "ANSWERS: pressure builds up.",
		"Podcast Script Generator": "**Host:** Welcome Alex!\n[music]\nExpert: Volcanoes erupt because of pressure.",
		"Script Cleaner":           "Host:Welcome Alex!\n(sound effect)\nExpert:Volcanoes erupt because of pressure.\n",
	}}
}

func TestRunExecutesStagesInOrder(t *testing.T) {
	gen := newGenerator()
	ret := &fakeRetriever{}
	rec := &memoryRecorder{}

	final, err := NewOrchestrator(gen, ret).Run(context.Background(), testInput(), rec)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	wantOrder := []string{models.ArtifactAnswers, models.ArtifactScript, models.ArtifactRefinedScript}
	if strings.Join(rec.writes, ",") != strings.Join(wantOrder, ",") {
		t.Errorf("writes = %v, want %v", rec.writes, wantOrder)
	}
	if strings.Join(rec.started, ",") != strings.Join(wantOrder, ",") {
		t.Errorf("started = %v, want %v", rec.started, wantOrder)
	}
	for _, name := range wantOrder {
		if strings.TrimSpace(rec.artifacts[name]) == "" {
			t.Errorf("artifact %s is empty", name)
		}
	}

	wantFinal := "Host:Welcome Alex!\nExpert:Volcanoes erupt because of pressure."
	if final != wantFinal || rec.artifacts[models.ArtifactRefinedScript] != wantFinal {
		t.Errorf("final = %q, want %q", final, wantFinal)
	}
	if err := script.Validate(final); err != nil {
		t.Errorf("final script violates line contract: %v", err)
	}

	// later stages embed earlier outputs
	if !strings.Contains(gen.prompts["Podcast Script Generator"], "ANSWERS: pressure builds up.") {
		t.Error("script prompt does not embed answers")
	}
	if !strings.Contains(gen.prompts["Script Cleaner"], "Expert: Volcanoes erupt") {
		t.Error("refine prompt does not embed script")
	}
	if strings.Contains(gen.prompts["Script Cleaner"], "ANSWERS:") {
		t.Error("refine prompt should only see the script")
	}

	answersPrompt := gen.prompts["answer questions"]
	for _, want := range []string{"1. Why do volcanoes erupt?\n2. What is magma?", "Light travels in straight lines.", "Class 12 Physics Part 2, p. 12"} {
		if !strings.Contains(answersPrompt, want) {
			t.Errorf("answers prompt missing %q", want)
		}
	}
	scriptPrompt := gen.prompts["Podcast Script Generator"]
	for _, want := range []string{"**Name:** Alex", "**Age:** 12", "**Podcast Type:** Rapid Answers"} {
		if !strings.Contains(scriptPrompt, want) {
			t.Errorf("script prompt missing %q", want)
		}
	}
	if ret.query != "Why do volcanoes erupt?\nWhat is magma?" {
		t.Errorf("retrieval query = %q", ret.query)
	}
}

func TestRunFailures(t *testing.T) {
	tests := []struct {
		name       string
		setup      func(g *scriptedGenerator, r *memoryRecorder, ret *fakeRetriever)
		wantStage  string
		wantWrites int
		wantErr    error
	}{
		{
			name:      "retrieval fails",
			setup:     func(g *scriptedGenerator, r *memoryRecorder, ret *fakeRetriever) { ret.err = errors.New("no index") },
			wantStage: models.ArtifactAnswers,
		},
		{
			name:       "second stage generation fails",
			setup:      func(g *scriptedGenerator, r *memoryRecorder, ret *fakeRetriever) { g.errRole = "Podcast Script Generator" },
			wantStage:  models.ArtifactScript,
			wantWrites: 1,
		},
		{
			name: "empty answers",
			setup: func(g *scriptedGenerator, r *memoryRecorder, ret *fakeRetriever) {
				g.byRole["answer questions"] = "   "
			},
			wantStage: models.ArtifactAnswers,
			wantErr:   agents.ErrEmptyOutput,
		},
		{
			name: "refined script without dialogue",
			setup: func(g *scriptedGenerator, r *memoryRecorder, ret *fakeRetriever) {
				g.byRole["Script Cleaner"] = "Narrator: once upon a time"
			},
			wantStage:  models.ArtifactRefinedScript,
			wantWrites: 2,
			wantErr:    script.ErrNoDialogue,
		},
		{
			name:       "artifact write fails",
			setup:      func(g *scriptedGenerator, r *memoryRecorder, ret *fakeRetriever) { r.failOn = models.ArtifactScript },
			wantStage:  models.ArtifactScript,
			wantWrites: 1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen, rec, ret := newGenerator(), &memoryRecorder{}, &fakeRetriever{}
			tt.setup(gen, rec, ret)

			_, err := NewOrchestrator(gen, ret).Run(context.Background(), testInput(), rec)
			var se *StageError
			if !errors.As(err, &se) {
				t.Fatalf("error = %v, want *StageError", err)
			}
			if se.Stage != tt.wantStage {
				t.Errorf("Stage = %q, want %q", se.Stage, tt.wantStage)
			}
			if len(rec.writes) != tt.wantWrites {
				t.Errorf("writes = %v, want %d", rec.writes, tt.wantWrites)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestRunStopsStagesAfterFailure(t *testing.T) {
	gen := newGenerator()
	gen.errRole = "answer questions"
	_, err := NewOrchestrator(gen, nil).Run(context.Background(), testInput(), &memoryRecorder{})
	if err == nil {
		t.Fatal("expected error")
	}
	if len(gen.order) != 1 {
		t.Errorf("generator called for %v, want only the first stage", gen.order)
	}
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewOrchestrator(newGenerator(), nil).Run(ctx, testInput(), &memoryRecorder{})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}
