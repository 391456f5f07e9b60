package progress

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/johndauphine/profile-ingest/internal/logging"
)

// ProgressUpdate is one JSON progress line for automation.
type ProgressUpdate struct {
	Timestamp     string  `json:"timestamp"`
	Phase         string  `json:"phase"` // parsing, ingesting, complete
	RunID         string  `json:"run_id,omitempty"`
	FilesComplete int     `json:"files_complete"`
	FilesTotal    int     `json:"files_total"`
	FilesFailed   int     `json:"files_failed,omitempty"`
	FilesSkipped  int     `json:"files_skipped,omitempty"`
	Statements    int64   `json:"statements"`
	ProgressPct   float64 `json:"progress_pct"`
	CurrentFile   string  `json:"current_file,omitempty"`
}

// Percent fills ProgressPct from the file counts.
func (u *ProgressUpdate) Percent() {
	if u.FilesTotal > 0 {
		u.ProgressPct = float64(u.FilesComplete) * 100 / float64(u.FilesTotal)
	}
}

// Reporter defines the interface for progress reporting.
type Reporter interface {
	// Report emits a progress update, possibly throttled
	Report(update ProgressUpdate)
	// ReportImmediate emits a progress update, bypassing throttling
	ReportImmediate(update ProgressUpdate)
	Close()
}

// JSONReporter writes one JSON object per line, typically to stderr.
type JSONReporter struct {
	writer     io.Writer
	mu         sync.Mutex
	interval   time.Duration
	lastReport time.Time
	closed     bool
}

// NewJSONReporter creates a JSON reporter emitting at most one throttled
// update per interval.
func NewJSONReporter(writer io.Writer, interval time.Duration) *JSONReporter {
	if writer == nil {
		writer = os.Stderr
	}
	return &JSONReporter{
		writer:   writer,
		interval: interval,
	}
}

// Report emits update unless the previous one was less than interval ago.
func (r *JSONReporter) Report(update ProgressUpdate) {
	r.emit(update, false)
}

// ReportImmediate emits update regardless of throttling. Used for phase changes.
func (r *JSONReporter) ReportImmediate(update ProgressUpdate) {
	r.emit(update, true)
}

func (r *JSONReporter) emit(update ProgressUpdate, force bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return
	}

	now := time.Now()
	if !force && r.interval > 0 && now.Sub(r.lastReport) < r.interval {
		return
	}
	r.lastReport = now

	if update.Timestamp == "" {
		update.Timestamp = now.Format(time.RFC3339)
	}
	update.Percent()

	data, err := json.Marshal(update)
	if err != nil {
		logging.Warn("Failed to marshal progress update: %v", err)
		return
	}
	fmt.Fprintln(r.writer, string(data))
}

// Close stops further output.
func (r *JSONReporter) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
}

// NullReporter is a no-op reporter for when progress reporting is disabled.
type NullReporter struct{}

func (r *NullReporter) Report(update ProgressUpdate)          {}
func (r *NullReporter) ReportImmediate(update ProgressUpdate) {}
func (r *NullReporter) Close()                                {}
