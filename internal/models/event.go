package models

import "time"

// EventType is the kind of pipeline event
type EventType string

const (
	EventLog      EventType = "log"
	EventProgress EventType = "progress"
	EventComplete EventType = "complete"
	EventError    EventType = "error"
)

// Event is emitted by the pipeline as it advances. Fields not relevant to
// the event type are left empty.
type Event struct {
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	RunID     string    `json:"run_id,omitempty"`

	// log, error
	Message string `json:"message,omitempty"`

	// progress
	Percent int    `json:"percent,omitempty"`
	Status  string `json:"status,omitempty"`

	// complete
	StockName   string `json:"stock_name,omitempty"`
	FolderPath  string `json:"folder_path,omitempty"`
	ArchivePath string `json:"archive_path,omitempty"`
	NotebookID  string `json:"notebook_id,omitempty"`
	Count       int    `json:"count,omitempty"`
	Failed      int    `json:"failed,omitempty"`
	Result      string `json:"result,omitempty"`
}

// LogEvent builds a log event
func LogEvent(message string) Event {
	return Event{Type: EventLog, Timestamp: time.Now(), Message: message}
}

// ProgressEvent builds a progress event, clamping percent to 0..100
func ProgressEvent(percent int, status string) Event {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	return Event{Type: EventProgress, Timestamp: time.Now(), Percent: percent, Status: status}
}

// ErrorEvent builds an error event
func ErrorEvent(message string) Event {
	return Event{Type: EventError, Timestamp: time.Now(), Message: message}
}

// EmitFunc receives pipeline events
type EmitFunc func(Event)

// Discard is an EmitFunc that drops every event
func Discard(Event) {}
