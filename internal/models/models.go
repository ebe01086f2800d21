package models

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned by repositories when a run or artifact does not exist.
var ErrNotFound = errors.New("not found")

// Run statuses
const (
	RunStatusQueued    = "queued"
	RunStatusRunning   = "running"
	RunStatusSucceeded = "succeeded"
	RunStatusFailed    = "failed"
)

// Artifact names, one per pipeline output
const (
	ArtifactAnswers       = "answers"
	ArtifactScript        = "script"
	ArtifactRefinedScript = "refined_script"
	ArtifactPodcast       = "podcast"
)

// Run represents one podcast generation
type Run struct {
	ID              uuid.UUID      `json:"id"`
	Status          string         `json:"status"` // queued, running, succeeded, failed
	Profile         StudentProfile `json:"profile"`
	Questions       []string       `json:"questions"`
	Books           []string       `json:"books"`
	WebhookURL      *string        `json:"webhook_url,omitempty"`
	WebhookSecret   *string        `json:"-"`
	FailedStage     *string        `json:"failed_stage,omitempty"`
	ErrorCode       *string        `json:"error_code,omitempty"`
	ErrorMessage    *string        `json:"error_message,omitempty"`
	PodcastKey      *string        `json:"-"`
	PodcastDuration *float64       `json:"podcast_duration_seconds,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
	StartedAt       *time.Time     `json:"started_at,omitempty"`
	FinishedAt      *time.Time     `json:"finished_at,omitempty"`
}

// Terminal reports whether the run can no longer change status.
func (r *Run) Terminal() bool {
	return r.Status == RunStatusSucceeded || r.Status == RunStatusFailed
}

// RunArtifact is a stored output of a run (stage text or podcast audio)
type RunArtifact struct {
	ID         uuid.UUID      `json:"id"`
	RunID      uuid.UUID      `json:"run_id"`
	Name       string         `json:"name"` // answers, script, refined_script, podcast
	StorageKey string         `json:"-"`
	MimeType   string         `json:"mime_type"`
	SizeBytes  int64          `json:"size_bytes"`
	Meta       map[string]any `json:"meta,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// Event types emitted while a run progresses
const (
	EventRunStarted     = "run_started"
	EventStageStarted   = "stage_started"
	EventStageCompleted = "stage_completed"
	EventAudioRendered  = "audio_rendered"
	EventRunCompleted   = "run_completed"
	EventRunFailed      = "run_failed"
)

// Event is a progress notification for one run
type Event struct {
	RunID   uuid.UUID `json:"run_id"`
	Type    string    `json:"type"`
	Stage   string    `json:"stage,omitempty"`
	Message string    `json:"message,omitempty"`
	At      time.Time `json:"at"`
}

// Final reports whether no further events follow for the run.
func (e Event) Final() bool {
	return e.Type == EventRunCompleted || e.Type == EventRunFailed
}

// CreateRunRequest represents a request to generate a podcast
type CreateRunRequest struct {
	Profile StudentProfile `json:"profile"`
	// Questions may be given as a list or as raw multi-line text.
	Questions     []string       `json:"questions,omitempty"`
	QuestionsText string         `json:"questions_text,omitempty"`
	Books         []string       `json:"books"`
	Webhook       *WebhookConfig `json:"webhook,omitempty"`
}

// WebhookConfig represents webhook configuration for a run
type WebhookConfig struct {
	URL    string  `json:"url"`
	Secret *string `json:"secret,omitempty"`
}

// CreateRunResponse represents the response when creating a run
type CreateRunResponse struct {
	RunID     uuid.UUID `json:"run_id"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// RunStatusResponse represents detailed run status
type RunStatusResponse struct {
	Run       Run                 `json:"run"`
	Artifacts []*ArtifactResponse `json:"artifacts"`
}

// ArtifactResponse represents artifact metadata with download URL (storage key excluded)
type ArtifactResponse struct {
	Artifact    RunArtifact `json:"artifact"`
	DownloadURL string      `json:"download_url"`
}

// CatalogResponse lists the selectable books
type CatalogResponse struct {
	Books []string `json:"books"`
}
