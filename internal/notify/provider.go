package notify

import "time"

// RunSummary is the outcome of an ingest run as reported to notification backends.
type RunSummary struct {
	Files      int
	Succeeded  int
	Failed     int
	Skipped    int
	Statements int64
	Failures   []string // paths of failed files
}

// Provider defines the notification contract for ingest runs.
type Provider interface {
	// RunStarted sends notification when a run starts.
	RunStarted(runID, target string, files int) error

	// RunCompleted sends notification when every file was ingested or skipped.
	RunCompleted(runID string, startTime time.Time, duration time.Duration, summary RunSummary) error

	// RunCompletedWithErrors sends notification when some files failed.
	RunCompletedWithErrors(runID string, startTime time.Time, duration time.Duration, summary RunSummary) error

	// RunFailed sends notification when the run was aborted.
	RunFailed(runID string, err error, duration time.Duration) error
}

// Ensure Notifier implements Provider
var _ Provider = (*Notifier)(nil)
