package agents

import (
	"context"
	"errors"
	"strings"
	"testing"
)

type recordingGenerator struct {
	system, prompt string
	out            string
	err            error
}

func (g *recordingGenerator) Generate(ctx context.Context, systemPrompt, prompt string) (string, error) {
	g.system, g.prompt = systemPrompt, prompt
	return g.out, g.err
}

func TestPerform(t *testing.T) {
	agent := Agent{Role: "Script Cleaner", Goal: "Clean the script", Backstory: "You edit scripts."}
	task := Task{
		Description:    "Refine the script.",
		ExpectedOutput: "Only Host: and Expert: lines.",
		Context:        []ContextItem{{Name: "script", Content: "Host: hi\n"}},
	}
	gen := &recordingGenerator{out: "  Host:hi \n"}

	out, err := agent.Perform(context.Background(), gen, task)
	if err != nil {
		t.Fatalf("Perform() error = %v", err)
	}
	if out != "Host:hi" {
		t.Errorf("Perform() = %q", out)
	}
	for _, want := range []string{"You are Script Cleaner.", "You edit scripts.", "Your personal goal is: Clean the script"} {
		if !strings.Contains(gen.system, want) {
			t.Errorf("system prompt missing %q:\n%s", want, gen.system)
		}
	}
	for _, want := range []string{"Current Task: Refine the script.", "Only Host: and Expert: lines.", "### script\nHost: hi"} {
		if !strings.Contains(gen.prompt, want) {
			t.Errorf("prompt missing %q:\n%s", want, gen.prompt)
		}
	}
}

func TestPerformErrors(t *testing.T) {
	boom := errors.New("boom")
	tests := []struct {
		name string
		gen  *recordingGenerator
		want error
	}{
		{"generator error", &recordingGenerator{err: boom}, boom},
		{"blank output", &recordingGenerator{out: " \n "}, ErrEmptyOutput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Agent{Role: "r"}.Perform(context.Background(), tt.gen, Task{Description: "d"})
			if !errors.Is(err, tt.want) {
				t.Errorf("error = %v, want %v", err, tt.want)
			}
		})
	}
}
