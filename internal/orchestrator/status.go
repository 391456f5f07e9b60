package orchestrator

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/johndauphine/profile-ingest/internal/checkpoint"
	"github.com/johndauphine/profile-ingest/internal/config"
	"github.com/johndauphine/profile-ingest/internal/schema"
)

const timeFormat = "2006-01-02 15:04:05"

// ShowHistory displays recent ingest runs
func (o *Orchestrator) ShowHistory(w io.Writer) error {
	runs, err := o.state.GetAllRuns()
	if err != nil {
		return err
	}

	if len(runs) == 0 {
		fmt.Fprintln(w, "No ingest history")
		return nil
	}

	fmt.Fprintf(w, "%-10s %-20s %-20s %-10s %6s %6s\n", "ID", "Started", "Completed", "Status", "Files", "Failed")
	fmt.Fprintln(w, "-----------------------------------------------------------------------------")

	for _, r := range runs {
		completed := "-"
		if r.CompletedAt != nil {
			completed = r.CompletedAt.Format(timeFormat)
		}
		fmt.Fprintf(w, "%-10s %-20s %-20s %-10s %6d %6d\n",
			r.ID, r.StartedAt.Format(timeFormat), completed, r.Status, r.Files, r.Failed)
		if r.Error != "" {
			fmt.Fprintf(w, "           Error: %s\n", r.Error)
		}
	}

	fmt.Fprintln(w, "\nUse 'history --run <ID>' to view files and configuration")
	return nil
}

// ShowRunDetails displays one run with its files
func (o *Orchestrator) ShowRunDetails(w io.Writer, runID string) error {
	run, err := o.state.GetRunByID(runID)
	if err != nil {
		return fmt.Errorf("getting run: %w", err)
	}
	if run == nil {
		return fmt.Errorf("run not found: %s", runID)
	}

	fmt.Fprintf(w, "Run ID:     %s\n", run.ID)
	fmt.Fprintf(w, "Status:     %s\n", run.Status)
	if run.Error != "" {
		fmt.Fprintf(w, "Error:      %s\n", run.Error)
	}
	fmt.Fprintf(w, "Started:    %s (%s)\n", run.StartedAt.Format(timeFormat), humanize.Time(run.StartedAt))
	if run.CompletedAt != nil {
		fmt.Fprintf(w, "Completed:  %s\n", run.CompletedAt.Format(timeFormat))
		fmt.Fprintf(w, "Duration:   %s\n", run.CompletedAt.Sub(run.StartedAt).Round(time.Millisecond))
	}

	files, err := o.state.GetRunFiles(run.ID)
	if err != nil {
		return fmt.Errorf("getting run files: %w", err)
	}
	var statements int64
	for _, f := range files {
		statements += int64(f.Statements)
	}
	fmt.Fprintf(w, "\nFiles: %d (%d failed), %s statements\n", run.Files, run.Failed, humanize.Comma(statements))
	for _, f := range files {
		icon := "✓"
		switch f.Status {
		case checkpoint.StatusFailed:
			icon = "✗"
		case checkpoint.StatusSkipped, checkpoint.StatusScripted:
			icon = "-"
		}
		fmt.Fprintf(w, "  %s %-8s %6d  %s\n", icon, f.Status, f.Statements, f.Path)
		if f.Error != "" {
			fmt.Fprintf(w, "             %s\n", f.Error)
		}
	}

	if run.Config != "" {
		fmt.Fprintln(w, "\nConfiguration:")
		fmt.Fprintln(w, "--------------")
		var cfg config.Config
		if err := json.Unmarshal([]byte(run.Config), &cfg); err == nil {
			prettyJSON, _ := json.MarshalIndent(cfg, "", "  ")
			fmt.Fprintln(w, string(prettyJSON))
		} else {
			fmt.Fprintln(w, run.Config)
		}
	}

	return nil
}

// PruneHistory deletes completed runs older than days.
func (o *Orchestrator) PruneHistory(w io.Writer, days int) error {
	if days < 1 {
		return fmt.Errorf("--days must be at least 1, got %d", days)
	}
	n, err := o.state.CleanupOldRuns(days)
	if err != nil {
		return fmt.Errorf("pruning ledger: %w", err)
	}
	fmt.Fprintf(w, "Removed %d runs older than %d days\n", n, days)
	return nil
}

// ShowSchema prints the type map, or one table of it.
func (o *Orchestrator) ShowSchema(w io.Writer, table string) error {
	tables := o.schema.Tables()
	if table != "" {
		if !o.schema.HasTable(table) {
			return fmt.Errorf("table %q not found in schema", table)
		}
		tables = []string{table}
	}

	for _, t := range tables {
		fmt.Fprintf(w, "%s\n", t)
		for _, c := range o.schema.ColumnNames(t) {
			desc, _ := o.schema.Descriptor(t, c)
			fmt.Fprintf(w, "  %-30s %s\n", c, desc)
		}
	}
	return nil
}

// DumpSchema writes the type map to path, or to stdout when path is "-".
func (o *Orchestrator) DumpSchema(path string) error {
	if path == "-" {
		return schema.Write(os.Stdout, o.schema)
	}
	if err := schema.SaveFile(path, o.schema); err != nil {
		return err
	}
	fmt.Printf("Wrote %d tables to %s\n", len(o.schema), path)
	return nil
}
