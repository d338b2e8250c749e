package common

import (
	"github.com/google/uuid"
)

// NewRunID generates a unique run ID with the "run_" prefix
// Format: run_<uuid>
func NewRunID() string {
	return "run_" + uuid.New().String()
}

// ShortID returns the first block of a run ID's uuid, for directory names
func ShortID(runID string) string {
	id := runID
	if len(id) > 4 && id[:4] == "run_" {
		id = id[4:]
	}
	if len(id) > 8 {
		id = id[:8]
	}
	return id
}
