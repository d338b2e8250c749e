package models

import "time"

// PackageMode selects how downloaded files are delivered
type PackageMode string

const (
	ModeArchive PackageMode = "archive"
	ModeUpload  PackageMode = "upload"
)

// IsValid checks if the mode is known
func (m PackageMode) IsValid() bool {
	return m == ModeArchive || m == ModeUpload
}

// Run states
const (
	RunStatusRunning  = "running"
	RunStatusComplete = "complete"
	RunStatusPartial  = "partial"
	RunStatusFailed   = "failed"
)

// RunRecord summarises one analysis run
type RunRecord struct {
	ID          string      `json:"id" badgerhold:"key"`
	Query       string      `json:"query"`
	StockCode   string      `json:"stock_code"`
	StockName   string      `json:"stock_name"`
	Market      Market      `json:"market"`
	Mode        PackageMode `json:"mode"`
	Status      string      `json:"status" badgerhold:"index"`
	Selected    int         `json:"selected"`
	Downloaded  int         `json:"downloaded"`
	Failed      int         `json:"failed"`
	StagingDir  string      `json:"staging_dir,omitempty"`
	ArchivePath string      `json:"archive_path,omitempty"`
	NotebookID  string      `json:"notebook_id,omitempty"`
	Error       string      `json:"error,omitempty"`
	StartedAt   time.Time   `json:"started_at"`
	FinishedAt  time.Time   `json:"finished_at,omitempty"`
}

// Succeeded reports whether at least one file was delivered
func (r *RunRecord) Succeeded() bool {
	return r.Status == RunStatusComplete || r.Status == RunStatusPartial
}
