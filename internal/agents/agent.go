// Package agents describes the personas that perform pipeline tasks.
package agents

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrEmptyOutput is returned when a generator answers with blank text.
var ErrEmptyOutput = errors.New("generator returned empty output")

// TextGenerator produces text for a system prompt and a user prompt.
type TextGenerator interface {
	Generate(ctx context.Context, systemPrompt, prompt string) (string, error)
}

// Agent is a persona the generator is asked to play.
type Agent struct {
	Role      string
	Goal      string
	Backstory string
}

// ContextItem is the output of an earlier task handed to a later one.
type ContextItem struct {
	Name    string
	Content string
}

// Task is one unit of work for an agent.
type Task struct {
	Description    string
	ExpectedOutput string
	Context        []ContextItem
}

// SystemPrompt describes the persona.
func (a Agent) SystemPrompt() string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are %s.\n", a.Role)
	if a.Backstory != "" {
		b.WriteString(a.Backstory)
		b.WriteString("\n")
	}
	if a.Goal != "" {
		fmt.Fprintf(&b, "Your personal goal is: %s", a.Goal)
	}
	return strings.TrimSpace(b.String())
}

// Prompt renders the task with its context and the expected output.
func (t Task) Prompt() string {
	var b strings.Builder
	b.WriteString("Current Task: ")
	b.WriteString(strings.TrimSpace(t.Description))
	if t.ExpectedOutput != "" {
		b.WriteString("\n\nThis is the expected criteria for your final answer: ")
		b.WriteString(strings.TrimSpace(t.ExpectedOutput))
	}
	if len(t.Context) > 0 {
		b.WriteString("\n\nThis is the context you're working with:")
		for _, c := range t.Context {
			fmt.Fprintf(&b, "\n\n### %s\n%s", c.Name, strings.TrimSpace(c.Content))
		}
	}
	b.WriteString("\n\nBegin! Return only your final answer.")
	return b.String()
}

// Perform asks gen to carry out task as agent and returns the trimmed answer.
func (a Agent) Perform(ctx context.Context, gen TextGenerator, task Task) (string, error) {
	out, err := gen.Generate(ctx, a.SystemPrompt(), task.Prompt())
	if err != nil {
		return "", err
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return "", ErrEmptyOutput
	}
	return out, nil
}
