package progress

import (
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/schollz/progressbar/v3"
	"golang.org/x/term"

	"github.com/johndauphine/profile-ingest/internal/logging"
)

// Tracker tracks ingest progress over input files
type Tracker struct {
	bar        *progressbar.ProgressBar
	total      int64
	files      atomic.Int64
	statements atomic.Int64
	failed     atomic.Int64
	startTime  time.Time
	showBar    bool
}

// New creates a new progress tracker. The bar is drawn on stderr only when
// stderr is a terminal.
func New() *Tracker {
	return &Tracker{
		startTime: time.Now(),
		showBar:   term.IsTerminal(int(os.Stderr.Fd())),
	}
}

// SetTotal sets the number of input files
func (t *Tracker) SetTotal(total int64) {
	t.total = total
	if !t.showBar {
		return
	}
	t.bar = progressbar.NewOptions64(
		total,
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetDescription("Ingesting"),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("files"),
		progressbar.OptionFullWidth(),
		progressbar.OptionSetRenderBlankState(true),
	)
}

// StartFile shows the file being ingested
func (t *Tracker) StartFile(name string) {
	if t.bar != nil {
		t.bar.Describe(fmt.Sprintf("Ingesting %s", name))
	}
}

// EndFile counts a finished file and the statements it produced
func (t *Tracker) EndFile(statements int, failed bool) {
	t.files.Add(1)
	t.statements.Add(int64(statements))
	if failed {
		t.failed.Add(1)
	}
	if t.bar != nil {
		t.bar.Add(1)
	}
}

// Files returns the number of finished files
func (t *Tracker) Files() int64 {
	return t.files.Load()
}

// Statements returns the number of statements handled so far
func (t *Tracker) Statements() int64 {
	return t.statements.Load()
}

// Failed returns the number of failed files
func (t *Tracker) Failed() int64 {
	return t.failed.Load()
}

// Finish marks the progress as complete
func (t *Tracker) Finish() {
	if t.bar != nil {
		t.bar.Finish()
		fmt.Fprintln(os.Stderr)
	}

	elapsed := time.Since(t.startTime)
	filesPerSec := float64(t.files.Load()) / elapsed.Seconds()

	logging.Info("Ingest complete: %d files, %d statements in %s (%.1f files/sec)",
		t.files.Load(), t.statements.Load(), elapsed.Round(time.Millisecond), filesPerSec)
}
