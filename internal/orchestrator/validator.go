package orchestrator

import (
	"context"
	"fmt"

	"github.com/johndauphine/profile-ingest/internal/extract"
	"github.com/johndauphine/profile-ingest/internal/logging"
)

// FileCheck is the compile outcome of one input file.
type FileCheck struct {
	Path       string   `json:"path"`
	Tables     []string `json:"tables"`
	Rows       int      `json:"rows"`
	Statements int      `json:"statements"`
	Error      string   `json:"error,omitempty"`
}

// CheckResult summarizes a compile-only pass over the inputs.
type CheckResult struct {
	Files  []FileCheck `json:"files"`
	Valid  int         `json:"valid"`
	Failed int         `json:"failed"`
}

// Check validates and compiles the inputs without executing anything or
// touching the ledger. Every file is checked; the returned error reports
// how many failed.
func (o *Orchestrator) Check(ctx context.Context, inputs []string) (*CheckResult, error) {
	if len(inputs) == 0 {
		inputs = o.config.Ingest.Inputs
	}
	files, err := LocateInputs(inputs, o.config.Ingest.Pattern)
	if err != nil {
		return nil, err
	}
	docs, err := parseAll(ctx, files, o.config.Ingest.ParseWorkers)
	if err != nil {
		return nil, err
	}

	ex := extract.New(o.schema, o.extractOptions())
	result := &CheckResult{Files: make([]FileCheck, 0, len(docs))}

	for _, d := range docs {
		fc := FileCheck{Path: d.Path, Tables: []string{}}
		err := d.Err
		if err == nil {
			var blocks []extract.Block
			blocks, err = ex.Extract(d.Path, d.Doc)
			for _, b := range blocks {
				fc.Tables = append(fc.Tables, b.Table)
				fc.Rows += b.Rows
			}
			fc.Statements = extract.Statements(blocks)
		}

		if err != nil {
			fc.Error = err.Error()
			result.Failed++
			logging.Error("%v", err)
		} else {
			result.Valid++
			logging.Info("%s: OK (%d rows, %d statements)", d.Path, fc.Rows, fc.Statements)
		}
		result.Files = append(result.Files, fc)
	}

	if result.Failed > 0 {
		return result, fmt.Errorf("validation failed for %d of %d files", result.Failed, len(docs))
	}
	return result, nil
}
