package notify

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/johndauphine/profile-ingest/internal/config"
)

func TestDisabledNotifierSendsNothing(t *testing.T) {
	n := New(nil)
	if n.IsEnabled() {
		t.Fatal("nil config should be disabled")
	}
	if err := n.RunFailed("r", errors.New("boom"), time.Second); err != nil {
		t.Errorf("disabled notifier returned error: %v", err)
	}

	n = New(&config.SlackConfig{Enabled: true})
	if n.IsEnabled() {
		t.Error("notifier without webhook should be disabled")
	}
}

func TestRunCompletedWithErrorsPayload(t *testing.T) {
	var got SlackMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decoding payload: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := New(&config.SlackConfig{Enabled: true, WebhookURL: srv.URL, Channel: "#ingest"})
	summary := RunSummary{
		Files:      8,
		Succeeded:  1,
		Failed:     7,
		Statements: 12345,
		Failures:   []string{"a", "b", "c", "d", "e", "f", "g"},
	}
	if err := n.RunCompletedWithErrors("run-1", time.Now(), 90*time.Second, summary); err != nil {
		t.Fatalf("RunCompletedWithErrors: %v", err)
	}

	if got.Channel != "#ingest" || got.Username != "profile-ingest" {
		t.Errorf("unexpected message header %+v", got)
	}
	if len(got.Attachments) != 1 {
		t.Fatalf("expected one attachment, got %d", len(got.Attachments))
	}
	fields := map[string]string{}
	for _, f := range got.Attachments[0].Fields {
		fields[f.Title] = f.Value
	}
	if fields["Statements"] != "12,345" {
		t.Errorf("statements = %q", fields["Statements"])
	}
	if fields["Duration"] != "1m 30s" {
		t.Errorf("duration = %q", fields["Duration"])
	}
	if !strings.HasSuffix(fields["Failed Files"], "and 4 more") {
		t.Errorf("failed files = %q", fields["Failed Files"])
	}
}

func TestSendReportsStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	n := New(&config.SlackConfig{Enabled: true, WebhookURL: srv.URL})
	err := n.RunStarted("run-1", "mysql://localhost/profiles", 3)
	if err == nil || !strings.Contains(err.Error(), "403") {
		t.Errorf("expected status error, got %v", err)
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{5 * time.Second, "5s"},
		{61 * time.Second, "1m 1s"},
		{time.Hour + 2*time.Minute + 3*time.Second, "1h 2m 3s"},
	}
	for _, tt := range tests {
		if got := formatDuration(tt.in); got != tt.want {
			t.Errorf("formatDuration(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
