// Package pipeline runs the three generation stages that turn questions into a dialogue script.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/snappy-loop/snippets/internal/agents"
)

// StageError reports the stage that failed a run.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// Retriever finds book passages relevant to a query.
type Retriever interface {
	Retrieve(ctx context.Context, books []string, query string) ([]Passage, error)
}

// Recorder observes a run and persists each stage's output. StageCompleted must store
// output under the stage name, replacing earlier content.
type Recorder interface {
	StageStarted(ctx context.Context, stage string)
	StageCompleted(ctx context.Context, stage, output string) error
}

// Orchestrator runs stages strictly in order.
type Orchestrator struct {
	generator agents.TextGenerator
	retriever Retriever
	stages    []Stage
}

// NewOrchestrator creates an orchestrator with the default stages. retriever may be nil.
func NewOrchestrator(generator agents.TextGenerator, retriever Retriever) *Orchestrator {
	return &Orchestrator{generator: generator, retriever: retriever, stages: DefaultStages()}
}

// Stages returns the stage names in execution order.
func (o *Orchestrator) Stages() []string {
	names := make([]string, len(o.stages))
	for i, s := range o.stages {
		names[i] = s.Name
	}
	return names
}

// Run executes every stage and returns the final stage's output.
func (o *Orchestrator) Run(ctx context.Context, in Input, rec Recorder) (string, error) {
	if len(o.stages) == 0 {
		return "", errors.New("no stages configured")
	}

	if o.retriever != nil && len(in.Books) > 0 {
		passages, err := o.retriever.Retrieve(ctx, in.Books, strings.Join(in.Questions, "\n"))
		if err != nil {
			return "", &StageError{Stage: o.stages[0].Name, Err: fmt.Errorf("retrieve passages: %w", err)}
		}
		in.Passages = passages
		log.Debug().Int("passages", len(passages)).Strs("books", in.Books).Msg("Retrieved reference passages")
	}

	outputs := make(map[string]string, len(o.stages))
	var last string
	for _, stage := range o.stages {
		if err := ctx.Err(); err != nil {
			return "", &StageError{Stage: stage.Name, Err: err}
		}

		task := stage.Task(in)
		for _, name := range stage.Context {
			content, ok := outputs[name]
			if !ok {
				return "", &StageError{Stage: stage.Name, Err: fmt.Errorf("context %q not produced by an earlier stage", name)}
			}
			task.Context = append(task.Context, agents.ContextItem{Name: name, Content: content})
		}

		rec.StageStarted(ctx, stage.Name)
		start := time.Now()

		out, err := stage.Agent.Perform(ctx, o.generator, task)
		if err != nil {
			return "", &StageError{Stage: stage.Name, Err: err}
		}
		if stage.Finalize != nil {
			if out, err = stage.Finalize(out); err != nil {
				return "", &StageError{Stage: stage.Name, Err: err}
			}
		}
		if err := rec.StageCompleted(ctx, stage.Name, out); err != nil {
			return "", &StageError{Stage: stage.Name, Err: fmt.Errorf("store artifact: %w", err)}
		}

		log.Info().
			Str("stage", stage.Name).
			Int("output_length", len(out)).
			Dur("elapsed", time.Since(start)).
			Msg("Stage completed")

		outputs[stage.Name] = out
		last = out
	}
	return last, nil
}
