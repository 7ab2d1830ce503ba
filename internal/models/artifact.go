package models

import "time"

// Artifact describes a persisted generated document
type Artifact struct {
	Name        string `json:"name"`
	URL         string `json:"url"`
	Date        int64  `json:"date"` // modification time, Unix milliseconds
	Size        int64  `json:"size"`
	RequestID   string `json:"requestId"`
	Prompt      string `json:"prompt"`
	CommandType Mode   `json:"commandType"`
	Title       string `json:"title,omitempty"`
}

// ArtifactMetadata is the stored record for an artifact, keyed by file name
type ArtifactMetadata struct {
	Name      string    `json:"name"`
	RequestID string    `json:"request_id"`
	Prompt    string    `json:"prompt"`
	Mode      Mode      `json:"mode"`
	Title     string    `json:"title"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"created_at"`
}
