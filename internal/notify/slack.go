package notify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/johndauphine/profile-ingest/internal/config"
)

const footer = "profile-ingest"

// Notifier sends notifications to Slack
type Notifier struct {
	config     *config.SlackConfig
	httpClient *http.Client
}

// SlackMessage represents a Slack webhook message
type SlackMessage struct {
	Channel     string            `json:"channel,omitempty"`
	Username    string            `json:"username,omitempty"`
	IconEmoji   string            `json:"icon_emoji,omitempty"`
	Text        string            `json:"text,omitempty"`
	Attachments []SlackAttachment `json:"attachments,omitempty"`
}

// SlackAttachment represents a Slack message attachment
type SlackAttachment struct {
	Color     string       `json:"color,omitempty"`
	Title     string       `json:"title,omitempty"`
	Text      string       `json:"text,omitempty"`
	Fields    []SlackField `json:"fields,omitempty"`
	Footer    string       `json:"footer,omitempty"`
	Timestamp int64        `json:"ts,omitempty"`
}

// SlackField represents a field in a Slack attachment
type SlackField struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Short bool   `json:"short"`
}

// New creates a new Slack notifier
func New(cfg *config.SlackConfig) *Notifier {
	if cfg == nil {
		cfg = &config.SlackConfig{Enabled: false}
	}
	return &Notifier{
		config: cfg,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// IsEnabled returns true if notifications are enabled
func (n *Notifier) IsEnabled() bool {
	return n.config != nil && n.config.Enabled && n.config.WebhookURL != ""
}

// RunStarted sends notification when a run starts
func (n *Notifier) RunStarted(runID, target string, files int) error {
	if !n.IsEnabled() {
		return nil
	}

	return n.send(n.message(":rocket:", "", SlackAttachment{
		Color: "#36a64f", // green
		Title: "Ingest Started",
		Fields: []SlackField{
			{Title: "Run ID", Value: runID, Short: true},
			{Title: "Files", Value: humanize.Comma(int64(files)), Short: true},
			{Title: "Target", Value: target, Short: false},
		},
	}))
}

// RunCompleted sends notification when a run completes without failures
func (n *Notifier) RunCompleted(runID string, startTime time.Time, duration time.Duration, s RunSummary) error {
	if !n.IsEnabled() {
		return nil
	}

	header := fmt.Sprintf("Ingest completed. %s files ingested, %s skipped, %s statements.",
		humanize.Comma(int64(s.Succeeded)), humanize.Comma(int64(s.Skipped)), humanize.Comma(s.Statements))

	return n.send(n.message(":white_check_mark:", header, SlackAttachment{
		Color:  "#36a64f", // green
		Fields: summaryFields(runID, startTime, duration, s),
	}))
}

// RunCompletedWithErrors sends notification when some files failed
func (n *Notifier) RunCompletedWithErrors(runID string, startTime time.Time, duration time.Duration, s RunSummary) error {
	if !n.IsEnabled() {
		return nil
	}

	header := fmt.Sprintf("Ingest completed with errors. %d files succeeded, %d failed.", s.Succeeded, s.Failed)
	fields := append(summaryFields(runID, startTime, duration, s),
		SlackField{Title: "Failed Files", Value: failureSummary(s.Failures), Short: false})

	return n.send(n.message(":warning:", header, SlackAttachment{
		Color:  "#ffc107", // yellow
		Fields: fields,
	}))
}

// RunFailed sends notification when a run is aborted
func (n *Notifier) RunFailed(runID string, err error, duration time.Duration) error {
	if !n.IsEnabled() {
		return nil
	}

	errMsg := "Unknown error"
	if err != nil {
		errMsg = err.Error()
		if len(errMsg) > 500 {
			errMsg = errMsg[:500] + "..."
		}
	}

	return n.send(n.message(":x:", "", SlackAttachment{
		Color: "#dc3545", // red
		Title: "Ingest Failed",
		Fields: []SlackField{
			{Title: "Run ID", Value: runID, Short: true},
			{Title: "Duration", Value: formatDuration(duration), Short: true},
			{Title: "Error", Value: errMsg, Short: false},
		},
	}))
}

func (n *Notifier) message(icon, text string, att SlackAttachment) SlackMessage {
	att.Footer = footer
	att.Timestamp = time.Now().Unix()
	return SlackMessage{
		Channel:     n.config.Channel,
		Username:    n.getUsername(),
		IconEmoji:   icon,
		Text:        text,
		Attachments: []SlackAttachment{att},
	}
}

func summaryFields(runID string, startTime time.Time, duration time.Duration, s RunSummary) []SlackField {
	return []SlackField{
		{Title: "Run ID", Value: runID, Short: true},
		{Title: "Started", Value: startTime.UTC().Format("2006-01-02 15:04:05 UTC"), Short: true},
		{Title: "Duration", Value: formatDuration(duration), Short: true},
		{Title: "Files", Value: humanize.Comma(int64(s.Files)), Short: true},
		{Title: "Statements", Value: humanize.Comma(s.Statements), Short: true},
	}
}

func failureSummary(failures []string) string {
	if len(failures) <= 5 {
		return strings.Join(failures, ", ")
	}
	return fmt.Sprintf("%s... and %d more", strings.Join(failures[:3], ", "), len(failures)-3)
}

func (n *Notifier) send(msg SlackMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshaling message: %w", err)
	}

	resp, err := n.httpClient.Post(n.config.WebhookURL, "application/json", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("sending to Slack: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("Slack returned status %d", resp.StatusCode)
	}

	return nil
}

func (n *Notifier) getUsername() string {
	if n.config.Username != "" {
		return n.config.Username
	}
	return footer
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second

	if h > 0 {
		return fmt.Sprintf("%dh %dm %ds", h, m, s)
	}
	if m > 0 {
		return fmt.Sprintf("%dm %ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}
