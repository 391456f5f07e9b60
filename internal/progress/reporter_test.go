package progress

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestJSONReporterThrottles(t *testing.T) {
	var buf bytes.Buffer
	r := NewJSONReporter(&buf, time.Hour)

	r.Report(ProgressUpdate{Phase: "ingesting", FilesComplete: 1, FilesTotal: 4})
	r.Report(ProgressUpdate{Phase: "ingesting", FilesComplete: 2, FilesTotal: 4})
	r.ReportImmediate(ProgressUpdate{Phase: "complete", FilesComplete: 4, FilesTotal: 4, Statements: 12})
	r.Close()
	r.ReportImmediate(ProgressUpdate{Phase: "after-close"})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d: %q", len(lines), buf.String())
	}

	var first, last ProgressUpdate
	if err := json.Unmarshal([]byte(lines[0]), &first); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if err := json.Unmarshal([]byte(lines[1]), &last); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if first.ProgressPct != 25 {
		t.Errorf("progress = %v, want 25", first.ProgressPct)
	}
	if first.Timestamp == "" {
		t.Error("timestamp not set")
	}
	if last.Phase != "complete" || last.Statements != 12 || last.ProgressPct != 100 {
		t.Errorf("last update = %+v", last)
	}
}

func TestTrackerCounts(t *testing.T) {
	tr := New()
	tr.showBar = false
	tr.SetTotal(3)
	tr.StartFile("a.yaml")
	tr.EndFile(4, false)
	tr.EndFile(0, true)

	if tr.Files() != 2 || tr.Statements() != 4 || tr.Failed() != 1 {
		t.Errorf("files=%d statements=%d failed=%d", tr.Files(), tr.Statements(), tr.Failed())
	}
}
