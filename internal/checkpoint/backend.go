package checkpoint

import "time"

// Run and file statuses.
const (
	StatusRunning = "running"
	StatusSuccess = "success"
	StatusFailed  = "failed"
	StatusSkipped = "skipped"

	// StatusScripted marks a file written to an offline script. It does not
	// count as ingested.
	StatusScripted = "scripted"
)

// Run represents one ingest run
type Run struct {
	ID          string
	StartedAt   time.Time
	CompletedAt *time.Time
	Status      string
	Error       string
	Config      string
	Files       int
	Failed      int
}

// FileRecord is the outcome of ingesting one input file in a run
type FileRecord struct {
	RunID      string
	Path       string
	Hash       string
	Status     string
	Statements int
	Error      string
	RecordedAt time.Time
}

// StateBackend defines the interface for the ingest ledger.
// Implementations are SQLite (default) and a single YAML file.
type StateBackend interface {
	// Run management
	CreateRun(id string, config any) error
	CompleteRun(id string, status string, errorMsg string) error

	// Per-file outcomes
	RecordFile(runID, path, hash, status string, statements int, errorMsg string) error
	IsIngested(hash string) (bool, error)
	GetRunFiles(runID string) ([]FileRecord, error)

	// History
	GetAllRuns() ([]Run, error)
	GetRunByID(runID string) (*Run, error)
	CleanupOldRuns(retentionDays int) (int, error)

	// Lifecycle
	Close() error
}
