package broadcast

import "github.com/ternarybob/playforge/internal/models"

// Wire payloads. Field names match what the web UI reads.

type queuedPayload struct {
	RequestID     string      `json:"requestId"`
	Prompt        string      `json:"prompt"`
	QueuePosition int         `json:"queuePosition"`
	CommandType   models.Mode `json:"commandType"`
}

type requestPayload struct {
	RequestID   string      `json:"requestId"`
	Prompt      string      `json:"prompt"`
	CommandType models.Mode `json:"commandType"`
}

type queueUpdatePayload struct {
	QueueLength int `json:"queueLength"`
}

type countdownStartPayload struct {
	RequestID    string `json:"requestId"`
	Prompt       string `json:"prompt"`
	TotalSeconds int    `json:"totalSeconds"`
}

type countdownPayload struct {
	RequestID string `json:"requestId"`
	Seconds   int    `json:"seconds"`
	Prompt    string `json:"prompt,omitempty"`
}

// idleCountdownPayload tells observers no post-completion countdown is running
type idleCountdownPayload struct {
	RequestID *string `json:"requestId"`
	Seconds   *int    `json:"seconds"`
}

type logPayload struct {
	Text   string `json:"text"`
	Append bool   `json:"append,omitempty"`
}

type promptAddedPayload struct {
	Prompt      string           `json:"prompt"`
	RequestID   string           `json:"requestId"`
	Status      models.JobStatus `json:"status"`
	CommandType models.Mode      `json:"commandType"`
}

type modelStartPayload struct {
	Model     string `json:"model"`
	Index     int    `json:"index"`
	RequestID string `json:"requestId"`
}

type modelResponsePayload struct {
	Model     string  `json:"model"`
	Index     int     `json:"index"`
	HTML      string  `json:"html"`
	CSS       string  `json:"css"`
	JS        string  `json:"js"`
	Duration  float64 `json:"duration"`
	RequestID string  `json:"requestId"`
}

type modelErrorPayload struct {
	Model     string  `json:"model"`
	Index     int     `json:"index"`
	Error     string  `json:"error"`
	Duration  float64 `json:"duration"`
	RequestID string  `json:"requestId"`
}

type fileURLPayload struct {
	RequestID string `json:"requestId"`
	URL       string `json:"url"`
}

type completedPayload struct {
	RequestID string  `json:"requestId"`
	Duration  float64 `json:"duration"`
}

type historyPayload struct {
	History []models.HistoryRecord `json:"history"`
}

type descriptionPayload struct {
	Description string `json:"description"`
	HTML        string `json:"html"`
}

type errorPayload struct {
	Message string `json:"message"`
}
