package checkpoint

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const sqliteTime = "2006-01-02 15:04:05"

// State manages the ingest ledger in SQLite
type State struct {
	db *sql.DB
}

// New creates a ledger at dataDir/ingest.db
func New(dataDir string) (*State, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("creating data dir: %w", err)
	}

	dbPath := filepath.Join(dataDir, "ingest.db")
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &State{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating schema: %w", err)
	}

	return s, nil
}

func (s *State) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		started_at TEXT NOT NULL,
		completed_at TEXT,
		status TEXT NOT NULL DEFAULT 'running',
		error TEXT,
		config TEXT
	);

	CREATE TABLE IF NOT EXISTS files (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT REFERENCES runs(id),
		path TEXT NOT NULL,
		hash TEXT NOT NULL,
		status TEXT NOT NULL,
		statements INTEGER DEFAULT 0,
		error_message TEXT,
		recorded_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_files_hash_status ON files(hash, status);
	CREATE INDEX IF NOT EXISTS idx_files_run ON files(run_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection
func (s *State) Close() error {
	return s.db.Close()
}

// CreateRun creates a new ingest run
func (s *State) CreateRun(id string, config any) error {
	configJSON, _ := json.Marshal(config)
	_, err := s.db.Exec(`
		INSERT INTO runs (id, started_at, status, config)
		VALUES (?, datetime('now'), 'running', ?)
	`, id, string(configJSON))
	return err
}

// CompleteRun marks a run as finished with the given status
func (s *State) CompleteRun(id string, status string, errorMsg string) error {
	_, err := s.db.Exec(`
		UPDATE runs SET status = ?, error = ?, completed_at = datetime('now')
		WHERE id = ?
	`, status, errorMsg, id)
	return err
}

// RecordFile stores the outcome of one input file
func (s *State) RecordFile(runID, path, hash, status string, statements int, errorMsg string) error {
	_, err := s.db.Exec(`
		INSERT INTO files (run_id, path, hash, status, statements, error_message, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, datetime('now'))
	`, runID, path, hash, status, statements, errorMsg)
	return err
}

// IsIngested reports whether content with this hash was ingested successfully
// by any run.
func (s *State) IsIngested(hash string) (bool, error) {
	var count int
	err := s.db.QueryRow(`
		SELECT COUNT(*) FROM files WHERE hash = ? AND status = 'success'
	`, hash).Scan(&count)
	return count > 0, err
}

// GetRunFiles returns the file records of a run in the order they were recorded
func (s *State) GetRunFiles(runID string) ([]FileRecord, error) {
	rows, err := s.db.Query(`
		SELECT run_id, path, hash, status, statements, COALESCE(error_message, ''), recorded_at
		FROM files WHERE run_id = ? ORDER BY id
	`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var files []FileRecord
	for rows.Next() {
		var f FileRecord
		var recordedAt string
		if err := rows.Scan(&f.RunID, &f.Path, &f.Hash, &f.Status, &f.Statements, &f.Error, &recordedAt); err != nil {
			return nil, err
		}
		f.RecordedAt, _ = time.Parse(sqliteTime, recordedAt)
		files = append(files, f)
	}
	return files, rows.Err()
}

const runColumns = `
	SELECT r.id, r.started_at, r.completed_at, r.status, COALESCE(r.error, ''), COALESCE(r.config, ''),
		(SELECT COUNT(*) FROM files f WHERE f.run_id = r.id),
		(SELECT COUNT(*) FROM files f WHERE f.run_id = r.id AND f.status = 'failed')
	FROM runs r`

func scanRun(sc interface{ Scan(...any) error }) (*Run, error) {
	var r Run
	var startedAtStr string
	var completedAtStr sql.NullString
	if err := sc.Scan(&r.ID, &startedAtStr, &completedAtStr, &r.Status, &r.Error, &r.Config, &r.Files, &r.Failed); err != nil {
		return nil, err
	}
	r.StartedAt, _ = time.Parse(sqliteTime, startedAtStr)
	if completedAtStr.Valid {
		t, _ := time.Parse(sqliteTime, completedAtStr.String)
		r.CompletedAt = &t
	}
	return &r, nil
}

// GetAllRuns returns the 20 most recent runs for history
func (s *State) GetAllRuns() ([]Run, error) {
	rows, err := s.db.Query(runColumns + ` ORDER BY r.started_at DESC, r.rowid DESC LIMIT 20`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, rows.Err()
}

// GetRunByID returns a run, or nil if it does not exist
func (s *State) GetRunByID(runID string) (*Run, error) {
	r, err := scanRun(s.db.QueryRow(runColumns+` WHERE r.id = ?`, runID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return r, err
}

// CleanupOldRuns deletes finished runs, and their file records, completed
// more than retentionDays ago. Running runs are never removed.
func (s *State) CleanupOldRuns(retentionDays int) (int, error) {
	if retentionDays <= 0 {
		return 0, nil
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -retentionDays).Format(sqliteTime)

	tx, err := s.db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	const stale = `SELECT id FROM runs WHERE status != 'running' AND completed_at IS NOT NULL AND completed_at < ?`
	if _, err := tx.Exec(`DELETE FROM files WHERE run_id IN (`+stale+`)`, cutoff); err != nil {
		return 0, fmt.Errorf("deleting file records: %w", err)
	}
	res, err := tx.Exec(`DELETE FROM runs WHERE id IN (`+stale+`)`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("deleting runs: %w", err)
	}
	n, _ := res.RowsAffected()

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return int(n), nil
}

// Ensure State implements StateBackend
var _ StateBackend = (*State)(nil)
