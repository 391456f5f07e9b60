package checkpoint

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/zeebo/xxh3"
	"gopkg.in/yaml.v3"
)

// FileState implements StateBackend using a single YAML file.
// Intended for headless environments where a SQLite file is impractical.
type FileState struct {
	path  string
	mu    sync.RWMutex
	state *fileStateData
}

// fileStateData is the YAML structure for the state file.
type fileStateData struct {
	Runs []fileRun `yaml:"runs"`
	// Ingested maps a content hash to the run that ingested it.
	Ingested map[string]string `yaml:"ingested"`
}

type fileRun struct {
	ID          string       `yaml:"id"`
	StartedAt   time.Time    `yaml:"started_at"`
	CompletedAt *time.Time   `yaml:"completed_at,omitempty"`
	Status      string       `yaml:"status"` // running, success, failed
	Error       string       `yaml:"error,omitempty"`
	ConfigHash  string       `yaml:"config_hash,omitempty"`
	Files       []fileRecord `yaml:"files,omitempty"`
}

type fileRecord struct {
	Path       string    `yaml:"path"`
	Hash       string    `yaml:"hash"`
	Status     string    `yaml:"status"`
	Statements int       `yaml:"statements,omitempty"`
	Error      string    `yaml:"error,omitempty"`
	RecordedAt time.Time `yaml:"recorded_at"`
}

// NewFileState creates a file-based ledger.
// If the file exists, it loads the existing state.
func NewFileState(path string) (*FileState, error) {
	fs := &FileState{
		path:  path,
		state: &fileStateData{Ingested: make(map[string]string)},
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, fs.state); err != nil {
			return nil, fmt.Errorf("parsing state file: %w", err)
		}
		if fs.state.Ingested == nil {
			fs.state.Ingested = make(map[string]string)
		}
	case !os.IsNotExist(err):
		return nil, fmt.Errorf("reading state file: %w", err)
	}

	return fs, nil
}

// save writes the current state to the YAML file.
func (fs *FileState) save() error {
	data, err := yaml.Marshal(fs.state)
	if err != nil {
		return fmt.Errorf("marshaling state: %w", err)
	}
	if dir := filepath.Dir(fs.path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating state dir: %w", err)
		}
	}
	if err := os.WriteFile(fs.path, data, 0600); err != nil {
		return fmt.Errorf("writing state file: %w", err)
	}
	return nil
}

func (fs *FileState) findRun(id string) *fileRun {
	for i := range fs.state.Runs {
		if fs.state.Runs[i].ID == id {
			return &fs.state.Runs[i]
		}
	}
	return nil
}

// CreateRun starts a new ingest run.
func (fs *FileState) CreateRun(id string, config any) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if fs.findRun(id) != nil {
		return fmt.Errorf("run %s already exists", id)
	}

	// Config hash for change detection
	configJSON, _ := json.Marshal(config)
	fs.state.Runs = append(fs.state.Runs, fileRun{
		ID:         id,
		StartedAt:  time.Now(),
		Status:     StatusRunning,
		ConfigHash: strconv.FormatUint(xxh3.Hash(configJSON), 16),
	})

	return fs.save()
}

// CompleteRun marks the run as complete.
func (fs *FileState) CompleteRun(id string, status string, errorMsg string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	r := fs.findRun(id)
	if r == nil {
		return fmt.Errorf("unknown run ID %s", id)
	}

	now := time.Now()
	r.Status = status
	r.CompletedAt = &now
	r.Error = errorMsg

	return fs.save()
}

// RecordFile appends a file outcome to the run.
func (fs *FileState) RecordFile(runID, path, hash, status string, statements int, errorMsg string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	r := fs.findRun(runID)
	if r == nil {
		return fmt.Errorf("unknown run ID %s", runID)
	}
	r.Files = append(r.Files, fileRecord{
		Path:       path,
		Hash:       hash,
		Status:     status,
		Statements: statements,
		Error:      errorMsg,
		RecordedAt: time.Now(),
	})
	if status == StatusSuccess {
		fs.state.Ingested[hash] = runID
	}

	return fs.save()
}

// IsIngested reports whether content with this hash was ingested successfully.
func (fs *FileState) IsIngested(hash string) (bool, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	_, ok := fs.state.Ingested[hash]
	return ok, nil
}

// GetRunFiles returns the file records of a run.
func (fs *FileState) GetRunFiles(runID string) ([]FileRecord, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	r := fs.findRun(runID)
	if r == nil {
		return nil, nil
	}
	files := make([]FileRecord, len(r.Files))
	for i, f := range r.Files {
		files[i] = FileRecord{
			RunID:      runID,
			Path:       f.Path,
			Hash:       f.Hash,
			Status:     f.Status,
			Statements: f.Statements,
			Error:      f.Error,
			RecordedAt: f.RecordedAt,
		}
	}
	return files, nil
}

func (r *fileRun) toRun() Run {
	run := Run{
		ID:          r.ID,
		StartedAt:   r.StartedAt,
		CompletedAt: r.CompletedAt,
		Status:      r.Status,
		Error:       r.Error,
		Config:      r.ConfigHash,
		Files:       len(r.Files),
	}
	for _, f := range r.Files {
		if f.Status == StatusFailed {
			run.Failed++
		}
	}
	return run
}

// GetAllRuns returns the 20 most recent runs, newest first.
func (fs *FileState) GetAllRuns() ([]Run, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	runs := make([]Run, 0, len(fs.state.Runs))
	for i := len(fs.state.Runs) - 1; i >= 0; i-- {
		runs = append(runs, fs.state.Runs[i].toRun())
	}
	sort.SliceStable(runs, func(i, j int) bool {
		return runs[i].StartedAt.After(runs[j].StartedAt)
	})
	if len(runs) > 20 {
		runs = runs[:20]
	}
	return runs, nil
}

// GetRunByID returns the run, or nil if it does not exist.
func (fs *FileState) GetRunByID(runID string) (*Run, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	r := fs.findRun(runID)
	if r == nil {
		return nil, nil
	}
	run := r.toRun()
	return &run, nil
}

// CleanupOldRuns drops finished runs completed more than retentionDays ago,
// along with the hashes they ingested.
func (fs *FileState) CleanupOldRuns(retentionDays int) (int, error) {
	if retentionDays <= 0 {
		return 0, nil
	}
	fs.mu.Lock()
	defer fs.mu.Unlock()

	cutoff := time.Now().AddDate(0, 0, -retentionDays)
	kept := fs.state.Runs[:0]
	deleted := 0
	for _, r := range fs.state.Runs {
		if r.Status != StatusRunning && r.CompletedAt != nil && r.CompletedAt.Before(cutoff) {
			for hash, runID := range fs.state.Ingested {
				if runID == r.ID {
					delete(fs.state.Ingested, hash)
				}
			}
			deleted++
			continue
		}
		kept = append(kept, r)
	}
	fs.state.Runs = kept
	if deleted == 0 {
		return 0, nil
	}
	return deleted, fs.save()
}

// Close is a no-op for file state.
func (fs *FileState) Close() error {
	return nil
}

// Path returns the state file path.
func (fs *FileState) Path() string {
	return fs.path
}

// Ensure FileState implements StateBackend
var _ StateBackend = (*FileState)(nil)
