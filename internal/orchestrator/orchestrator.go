package orchestrator

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/johndauphine/profile-ingest/internal/checkpoint"
	"github.com/johndauphine/profile-ingest/internal/config"
	"github.com/johndauphine/profile-ingest/internal/driver"
	"github.com/johndauphine/profile-ingest/internal/executor"
	"github.com/johndauphine/profile-ingest/internal/extract"
	"github.com/johndauphine/profile-ingest/internal/logging"
	"github.com/johndauphine/profile-ingest/internal/notify"
	"github.com/johndauphine/profile-ingest/internal/progress"
	"github.com/johndauphine/profile-ingest/internal/schema"
	"github.com/johndauphine/profile-ingest/internal/stats"
)

var errRolledBack = errors.New("rolled back with the run transaction")

// Options controls what New opens.
type Options struct {
	// LedgerOnly opens the ledger and nothing else (history commands).
	LedgerOnly bool

	// CompileOnly skips the connection when the schema cache can be used.
	CompileOnly bool

	// ProgressJSON emits JSON progress lines on stderr.
	ProgressJSON bool
}

// Orchestrator coordinates an ingest run
type Orchestrator struct {
	config   *config.Config
	driver   driver.Driver
	db       *sql.DB // nil when offline or compile-only
	schema   schema.TypeMap
	state    checkpoint.StateBackend
	progress *progress.Tracker
	reporter progress.Reporter
	notifier notify.Provider
	exec     *executor.Options
}

// New creates a new orchestrator
func New(ctx context.Context, cfg *config.Config, opts Options) (*Orchestrator, error) {
	state, err := openState(cfg)
	if err != nil {
		return nil, err
	}

	o := &Orchestrator{
		config:   cfg,
		state:    state,
		progress: progress.New(),
		reporter: &progress.NullReporter{},
		notifier: notify.New(&cfg.Slack),
		exec: &executor.Options{
			TransactionPerBatch: cfg.Ingest.TransactionPerBatch,
			DryRun:              cfg.Ingest.DryRun,
			ScriptFile:          cfg.Ingest.ScriptFile,
		},
	}
	if opts.ProgressJSON {
		o.reporter = progress.NewJSONReporter(os.Stderr, time.Second)
	}
	if opts.LedgerOnly {
		return o, nil
	}

	o.driver, err = driver.Get(cfg.Database.Type)
	if err != nil {
		o.Close()
		return nil, err
	}

	if !cfg.Database.AllowBackslashEscapes {
		o.exec.ScriptHeader = o.driver.Defaults().ScriptHeader
	}

	cached := !cfg.Schema.Refresh && fileExists(cfg.Schema.CacheFile)
	if !cfg.Ingest.Offline && !(opts.CompileOnly && cached) {
		_, o.db, err = driver.Connect(ctx, &cfg.Database)
		if err != nil {
			o.Close()
			return nil, err
		}
	}

	if err := o.loadSchema(ctx, cached); err != nil {
		o.Close()
		return nil, err
	}
	return o, nil
}

func openState(cfg *config.Config) (checkpoint.StateBackend, error) {
	if cfg.State.StateFile != "" {
		state, err := checkpoint.NewFileState(cfg.State.StateFile)
		if err != nil {
			return nil, fmt.Errorf("opening state file: %w", err)
		}
		return state, nil
	}
	state, err := checkpoint.New(cfg.State.DataDir)
	if err != nil {
		return nil, fmt.Errorf("creating state manager: %w", err)
	}
	return state, nil
}

// loadSchema reads the cached type map or introspects the database and
// rewrites the cache.
func (o *Orchestrator) loadSchema(ctx context.Context, cached bool) error {
	path := o.config.Schema.CacheFile
	if cached {
		m, err := schema.LoadFile(path)
		if err != nil {
			return fmt.Errorf("loading schema cache: %w", err)
		}
		logging.Debug("Loaded schema cache %s (%d tables)", path, len(m))
		o.schema = m
		return nil
	}

	if o.db == nil {
		return fmt.Errorf("schema cache %s not found (required without a database connection)", path)
	}

	m, err := o.driver.Introspect(ctx, o.db, &o.config.Database)
	if err != nil {
		return fmt.Errorf("introspecting schema: %w", err)
	}
	if len(m) == 0 {
		logging.Warn("Database has no tables; every section will be skipped")
	}
	if err := schema.SaveFile(path, m); err != nil {
		logging.Warn("Could not write schema cache: %v", err)
	} else {
		logging.Debug("Wrote schema cache %s (%d tables)", path, len(m))
	}
	o.schema = m
	return nil
}

// Schema returns the type map the run validates against.
func (o *Orchestrator) Schema() schema.TypeMap {
	return o.schema
}

// Close releases all resources
func (o *Orchestrator) Close() {
	o.reporter.Close()
	if o.db != nil {
		logging.Debug("Connection pool: %s", stats.FromDB(o.driver.Name(), o.db.Stats()))
		o.db.Close()
	}
	if o.state != nil {
		o.state.Close()
	}
}

// FileFailure names a file that could not be ingested.
type FileFailure struct {
	Path  string `json:"path"`
	Error string `json:"error"`
}

// Result summarizes an ingest run.
type Result struct {
	RunID           string        `json:"run_id"`
	Status          string        `json:"status"`
	StartedAt       time.Time     `json:"started_at"`
	CompletedAt     time.Time     `json:"completed_at"`
	DurationSeconds float64       `json:"duration_seconds"`
	FilesTotal      int           `json:"files_total"`
	FilesSucceeded  int           `json:"files_succeeded"`
	FilesFailed     int           `json:"files_failed"`
	FilesSkipped    int           `json:"files_skipped"`
	Statements      int64         `json:"statements"`
	Failures        []FileFailure `json:"failures"`
	Error           string        `json:"error,omitempty"`
}

func (r *Result) summary() notify.RunSummary {
	s := notify.RunSummary{
		Files:      r.FilesTotal,
		Succeeded:  r.FilesSucceeded,
		Failed:     r.FilesFailed,
		Skipped:    r.FilesSkipped,
		Statements: r.Statements,
	}
	for _, f := range r.Failures {
		s.Failures = append(s.Failures, f.Path)
	}
	return s
}

func (r *Result) fail(path string, err error) {
	r.FilesFailed++
	r.Failures = append(r.Failures, FileFailure{Path: path, Error: err.Error()})
}

// session is the execution target of one run. Both fields stay nil
// interfaces when statements go to the script file.
type session struct {
	conn executor.Conn
	tx   *sql.Tx
	txe  executor.Execer
	pin  *sql.Conn

	pending []committed
}

// committed is a file whose statements wait on the run transaction.
type committed struct {
	doc        document
	statements int
}

func (o *Orchestrator) openSession(ctx context.Context) (*session, error) {
	s := &session{}
	if o.db == nil {
		return s, nil
	}

	// @rid lives on one server session, so every statement of the run goes
	// through the same connection.
	conn, err := o.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("pinning connection: %w", err)
	}
	s.pin = conn
	s.conn = conn

	if !o.exec.TransactionPerBatch && !o.exec.DryRun {
		tx, err := conn.BeginTx(ctx, nil)
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("beginning run transaction: %w", err)
		}
		s.tx = tx
		s.txe = tx
	}
	return s, nil
}

func (s *session) rollback() {
	if s.tx != nil {
		if err := s.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			logging.Warn("Rollback failed: %v", err)
		}
		s.tx = nil
	}
}

func (s *session) commit() error {
	if s.tx == nil {
		return nil
	}
	err := s.tx.Commit()
	s.tx = nil
	if err != nil {
		return fmt.Errorf("committing run transaction: %w", err)
	}
	return nil
}

func (s *session) close() {
	s.rollback()
	if s.pin != nil {
		s.pin.Close()
	}
}

// shared reports whether all files share one transaction.
func (s *session) shared() bool {
	return s.tx != nil
}

// Run ingests the input files. inputs defaults to ingest.inputs.
//
// Files are parsed concurrently and ingested one at a time in input order.
// With a shared transaction any failure rolls back the whole run. In
// per-batch mode a failing file is recorded and skipped unless
// stop_on_error is set. The result is returned even when err is non-nil.
func (o *Orchestrator) Run(ctx context.Context, inputs []string) (*Result, error) {
	startTime := time.Now()
	runID := uuid.New().String()[:8]
	result := &Result{RunID: runID, Status: checkpoint.StatusRunning, StartedAt: startTime, Failures: []FileFailure{}}

	if len(inputs) == 0 {
		inputs = o.config.Ingest.Inputs
	}

	logging.Info("Starting run %s", runID)
	if err := o.createRun(runID); err != nil {
		return result, err
	}

	files, err := LocateInputs(inputs, o.config.Ingest.Pattern)
	if err != nil {
		return o.abort(result, err, nil)
	}
	if len(files) == 0 {
		logging.Warn("No input files matched %q in %v", o.config.Ingest.Pattern, inputs)
	}
	result.FilesTotal = len(files)
	o.notifier.RunStarted(runID, o.target(), len(files))

	o.reporter.ReportImmediate(progress.ProgressUpdate{Phase: "parsing", RunID: runID, FilesTotal: len(files)})
	docs, err := parseAll(ctx, files, o.config.Ingest.ParseWorkers)
	if err != nil {
		return o.abort(result, err, nil)
	}

	sess, err := o.openSession(ctx)
	if err != nil {
		return o.abort(result, err, nil)
	}
	defer sess.close()

	ex := extract.New(o.schema, o.extractOptions())
	o.progress.SetTotal(int64(len(docs)))

	for _, d := range docs {
		if err := ctx.Err(); err != nil {
			return o.abort(result, err, sess)
		}

		if d.Err == nil && o.config.Ingest.SkipIngested {
			done, err := o.state.IsIngested(d.Hash)
			if err != nil {
				return o.abort(result, fmt.Errorf("checking ledger: %w", err), sess)
			}
			if done {
				logging.Info("Skipping %s (already ingested)", d.Path)
				result.FilesSkipped++
				o.recordFile(runID, d, checkpoint.StatusSkipped, 0, nil)
				o.progress.EndFile(0, false)
				o.report(result, d.Path)
				continue
			}
		}

		o.progress.StartFile(d.Path)
		n, err := o.ingestFile(ctx, ex, sess, d)
		if err != nil {
			result.fail(d.Path, err)
			o.recordFile(runID, d, checkpoint.StatusFailed, 0, err)
			o.progress.EndFile(0, true)

			if sess.shared() {
				return o.abort(result, fmt.Errorf("%w (run rolled back)", err), sess)
			}
			if o.config.Ingest.StopOnError {
				return o.abort(result, err, sess)
			}
			logging.Error("Failed to ingest %s: %v", d.Path, err)
			o.report(result, d.Path)
			continue
		}

		result.FilesSucceeded++
		result.Statements += int64(n)
		o.progress.EndFile(n, false)
		o.report(result, d.Path)

		// shared-transaction files are recorded once the commit succeeds
		if sess.shared() {
			sess.pending = append(sess.pending, committed{doc: d, statements: n})
			continue
		}
		o.recordFile(runID, d, o.successStatus(), n, nil)
	}

	if err := sess.commit(); err != nil {
		return o.abort(result, err, sess)
	}
	for _, c := range sess.pending {
		o.recordFile(runID, c.doc, checkpoint.StatusSuccess, c.statements, nil)
	}

	o.progress.Finish()
	return o.complete(result)
}

func (o *Orchestrator) successStatus() string {
	if o.db == nil {
		return checkpoint.StatusScripted
	}
	return checkpoint.StatusSuccess
}

// ingestFile compiles one document and dispatches its statements.
func (o *Orchestrator) ingestFile(ctx context.Context, ex *extract.Extractor, sess *session, d document) (int, error) {
	if d.Err != nil {
		return 0, d.Err
	}
	blocks, err := ex.Extract(d.Path, d.Doc)
	if err != nil {
		return 0, err
	}
	if len(blocks) == 0 {
		logging.Warn("%s: no sections matched a table", d.Path)
		return 0, nil
	}
	n, err := executor.Dispatch(ctx, extract.Fragments(blocks), sess.conn, sess.txe, o.exec)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", d.Path, err)
	}
	return n, nil
}

func (o *Orchestrator) extractOptions() extract.Options {
	defaults := o.driver.Defaults()
	return extract.Options{
		SessionVariables: defaults.SessionVariables,
		LastInsertID:     defaults.LastInsertID,
	}
}

func (o *Orchestrator) createRun(runID string) error {
	if o.config.Ingest.DryRun {
		return nil
	}
	if err := o.state.CreateRun(runID, o.config.Sanitized()); err != nil {
		return fmt.Errorf("recording run in ledger: %w", err)
	}
	return nil
}

// recordFile writes a ledger entry. Ledger failures are logged, never fatal.
func (o *Orchestrator) recordFile(runID string, d document, status string, statements int, fileErr error) {
	if o.config.Ingest.DryRun {
		return
	}
	msg := ""
	if fileErr != nil {
		msg = fileErr.Error()
	}
	if err := o.state.RecordFile(runID, d.Path, d.Hash, status, statements, msg); err != nil {
		logging.Warn("Recording %s in ledger: %v", d.Path, err)
	}
}

func (o *Orchestrator) completeRun(runID, status, msg string) {
	if o.config.Ingest.DryRun {
		return
	}
	if err := o.state.CompleteRun(runID, status, msg); err != nil {
		logging.Warn("Completing run %s in ledger: %v", runID, err)
	}
}

func (o *Orchestrator) report(r *Result, current string) {
	u := progress.ProgressUpdate{
		Phase:         "ingesting",
		RunID:         r.RunID,
		FilesComplete: r.FilesSucceeded + r.FilesFailed + r.FilesSkipped,
		FilesTotal:    r.FilesTotal,
		FilesFailed:   r.FilesFailed,
		FilesSkipped:  r.FilesSkipped,
		Statements:    r.Statements,
		CurrentFile:   current,
	}
	u.Percent()
	o.reporter.Report(u)
}

// abort ends the run as failed, rolling back the shared transaction.
// Files already executed inside it are recorded as failed.
func (o *Orchestrator) abort(r *Result, err error, sess *session) (*Result, error) {
	if sess != nil {
		sess.rollback()
		for _, c := range sess.pending {
			r.FilesSucceeded--
			r.Statements -= int64(c.statements)
			r.fail(c.doc.Path, errRolledBack)
			o.recordFile(r.RunID, c.doc, checkpoint.StatusFailed, 0, errRolledBack)
		}
		sess.pending = nil
	}
	o.finish(r, checkpoint.StatusFailed)
	r.Error = err.Error()

	o.completeRun(r.RunID, checkpoint.StatusFailed, err.Error())
	o.notifyFailure(r.RunID, err, time.Since(r.StartedAt))
	o.reporter.ReportImmediate(progress.ProgressUpdate{Phase: "failed", RunID: r.RunID, FilesTotal: r.FilesTotal, FilesFailed: r.FilesFailed})
	return r, err
}

func (o *Orchestrator) complete(r *Result) (*Result, error) {
	duration := time.Since(r.StartedAt)

	if r.FilesFailed > 0 {
		err := fmt.Errorf("%d of %d files failed", r.FilesFailed, r.FilesTotal)
		o.finish(r, checkpoint.StatusFailed)
		r.Error = err.Error()
		o.completeRun(r.RunID, checkpoint.StatusFailed, err.Error())
		o.notifier.RunCompletedWithErrors(r.RunID, r.StartedAt, duration, r.summary())
		o.reportComplete(r)
		return r, err
	}

	o.finish(r, checkpoint.StatusSuccess)
	o.completeRun(r.RunID, checkpoint.StatusSuccess, "")
	o.notifier.RunCompleted(r.RunID, r.StartedAt, duration, r.summary())
	o.reportComplete(r)
	logging.Info("Run %s complete: %d ingested, %d skipped, %d statements",
		r.RunID, r.FilesSucceeded, r.FilesSkipped, r.Statements)
	return r, nil
}

func (o *Orchestrator) finish(r *Result, status string) {
	r.Status = status
	r.CompletedAt = time.Now()
	r.DurationSeconds = r.CompletedAt.Sub(r.StartedAt).Seconds()
}

func (o *Orchestrator) reportComplete(r *Result) {
	u := progress.ProgressUpdate{
		Phase:         "complete",
		RunID:         r.RunID,
		FilesComplete: r.FilesSucceeded + r.FilesFailed + r.FilesSkipped,
		FilesTotal:    r.FilesTotal,
		FilesFailed:   r.FilesFailed,
		FilesSkipped:  r.FilesSkipped,
		Statements:    r.Statements,
	}
	u.Percent()
	o.reporter.ReportImmediate(u)
}

// notifyFailure sends a failure notification
func (o *Orchestrator) notifyFailure(runID string, err error, duration time.Duration) {
	o.notifier.RunFailed(runID, err, duration)
}

// target describes where statements go, for notifications.
func (o *Orchestrator) target() string {
	switch {
	case o.db == nil:
		return "script " + o.config.Ingest.ScriptFile
	case o.config.Database.Type == "sqlite":
		return "sqlite " + o.config.Database.Path
	default:
		return fmt.Sprintf("mysql %s:%d/%s", o.config.Database.Host, o.config.Database.Port, o.config.Database.Database)
	}
}

func fileExists(path string) bool {
	if path == "" {
		return false
	}
	_, err := os.Stat(path)
	return err == nil
}
