package common

import (
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	jobIDMu   sync.Mutex
	lastJobID int64
)

// NewJobID returns a time-derived job ID: the current Unix time in milliseconds,
// bumped past the previous ID when two submissions land in the same millisecond.
// IDs are unique and strictly increasing for the life of the process.
func NewJobID() string {
	jobIDMu.Lock()
	defer jobIDMu.Unlock()

	id := time.Now().UnixMilli()
	if id <= lastJobID {
		id = lastJobID + 1
	}
	lastJobID = id
	return strconv.FormatInt(id, 10)
}

// NewInstanceID generates a unique server instance ID.
// Format: srv_<uuid>
func NewInstanceID() string {
	return "srv_" + uuid.New().String()
}
