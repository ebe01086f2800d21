package pipeline

import (
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/snappy-loop/snippets/internal/agents"
	"github.com/snappy-loop/snippets/internal/knowledge"
	"github.com/snappy-loop/snippets/internal/models"
	"github.com/snappy-loop/snippets/internal/script"
)

// Passage is a retrieved excerpt of a selected book.
type Passage = knowledge.Passage

// Input is everything a run knows before the first stage.
type Input struct {
	Profile   models.StudentProfile
	Questions []string
	Books     []string
	// Passages retrieved from the selected books; filled by the orchestrator.
	Passages []Passage
}

// Stage is one generation step. Its output is stored under Name and handed to later stages
// that list Name in Context.
type Stage struct {
	Name    string
	Agent   agents.Agent
	Task    func(in Input) agents.Task
	Context []string
	// Finalize validates or rewrites the raw output before it is stored.
	Finalize func(out string) (string, error)
}

// DefaultStages returns answers -> script -> refined_script.
func DefaultStages() []Stage {
	return []Stage{
		{
			Name:  models.ArtifactAnswers,
			Agent: bookAgent,
			Task:  answersTask,
		},
		{
			Name:    models.ArtifactScript,
			Agent:   scriptAgent,
			Task:    scriptTask,
			Context: []string{models.ArtifactAnswers},
		},
		{
			Name:     models.ArtifactRefinedScript,
			Agent:    cleanerAgent,
			Task:     refineTask,
			Context:  []string{models.ArtifactScript},
			Finalize: finalizeDialogue,
		},
	}
}

// finalizeDialogue enforces the Host:/Expert: line contract on the refined script.
func finalizeDialogue(out string) (string, error) {
	normalized, dropped := script.Normalize(out)
	if dropped > 0 {
		log.Warn().Int("dropped_lines", dropped).Msg("Removed lines without a Host/Expert label from refined script")
	}
	if err := script.Validate(normalized); err != nil {
		return "", fmt.Errorf("refined script: %w", err)
	}
	return normalized, nil
}
