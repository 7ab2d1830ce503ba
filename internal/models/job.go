package models

import "time"

// Mode selects the presentation contract for a generated game
type Mode string

const (
	// ModeCreate produces content that plays itself with no input
	ModeCreate Mode = "create"
	// ModePC produces content driven by mouse and keyboard
	ModePC Mode = "pc"
	// ModeMobile produces content driven by touch
	ModeMobile Mode = "mobile"
)

// JobStatus represents a job's position in its lifecycle
type JobStatus string

const (
	JobStatusQueued     JobStatus = "queued"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// IsTerminal reports whether the status can no longer change
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// Source identifies where a submission came from
type Source string

const (
	SourceWeb  Source = "web"
	SourceChat Source = "chat"
)

// Submission is a validated prompt ready to become a job
type Submission struct {
	Mode   Mode   `json:"mode"`
	Prompt string `json:"prompt"`
}

// Job is one prompt-to-document generation request
type Job struct {
	ID              string    `json:"id"`
	Prompt          string    `json:"prompt"`
	Mode            Mode      `json:"mode"`
	Source          Source    `json:"source"`
	Status          JobStatus `json:"status"`
	SubmittedAt     time.Time `json:"submitted_at"`
	StartedAt       time.Time `json:"started_at,omitempty"`
	FinishedAt      time.Time `json:"finished_at,omitempty"`
	DurationSeconds float64   `json:"duration_seconds,omitempty"`
	Error           string    `json:"error,omitempty"`
}

// GenerationResult is the structured output of one generation call.
// Fields are always present; missing ones are empty strings.
type GenerationResult struct {
	HTML string `json:"html"`
	CSS  string `json:"css"`
	JS   string `json:"js"`
}

// HistoryRecord is one entry in the bounded prompt history
type HistoryRecord struct {
	Prompt      string `json:"prompt"`
	RequestID   string `json:"requestId"`
	Timestamp   int64  `json:"timestamp"` // Unix milliseconds
	CommandType Mode   `json:"commandType"`
}

// TrackedJob is a job the scheduler still holds for observer reconciliation:
// the current job or one that finished but has not yet been advanced past.
type TrackedJob struct {
	Job         Job               `json:"job"`
	Result      *GenerationResult `json:"result,omitempty"`
	Duration    float64           `json:"duration,omitempty"` // generation duration in seconds
	ArtifactURL string            `json:"artifact_url,omitempty"`
}

// ObserverSnapshot is the scheduler state a newly connected observer needs
type ObserverSnapshot struct {
	History     []HistoryRecord `json:"history"`
	QueueLength int             `json:"queue_length"`
	Tracked     []TrackedJob    `json:"tracked"` // current job first
}
