// Package summary writes a machine- and human-readable report at the end of
// a capture or replay run.
package summary

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/entrhq/graphsync/pkg/capture"
	"github.com/entrhq/graphsync/pkg/replay"
)

// Run outcomes recorded in RunSummary.Status
const (
	// StatusSuccess means the run reached the end of its input
	StatusSuccess = "success"
	// StatusFailed means the run stopped on an error
	StatusFailed = "failed"
	// StatusInterrupted means the run was cancelled by a signal
	StatusInterrupted = "interrupted"
)

// RunSummary describes a finished run
type RunSummary struct {
	RunID     string        `json:"run_id"`
	Mode      string        `json:"mode"`
	File      string        `json:"file"`
	Status    string        `json:"status"`
	Error     string        `json:"error,omitempty"`
	StartTime time.Time     `json:"start_time"`
	EndTime   time.Time     `json:"end_time"`
	Duration  time.Duration `json:"duration"`

	Capture *capture.Stats `json:"capture,omitempty"`
	Replay  *replay.Stats  `json:"replay,omitempty"`

	// MonitorDropped counts MONITOR replies that were not command records
	MonitorDropped int `json:"monitor_dropped,omitempty"`
}

// Finish stamps the end time and duration
func (s *RunSummary) Finish(status string, err error) {
	s.EndTime = time.Now()
	s.Duration = s.EndTime.Sub(s.StartTime)
	s.Status = status
	if err != nil {
		s.Error = err.Error()
	}
}

// Writer handles writing run summaries
type Writer struct {
	outputDir string
}

// NewWriter creates a new summary writer
func NewWriter(outputDir string) *Writer {
	return &Writer{
		outputDir: outputDir,
	}
}

// WriteAll writes both the JSON and markdown summaries
func (w *Writer) WriteAll(summary *RunSummary) error {
	if err := os.MkdirAll(w.outputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	if err := w.WriteJSON(summary); err != nil {
		return err
	}

	if err := w.WriteMarkdown(summary); err != nil {
		return err
	}

	return nil
}

// WriteJSON writes the full summary as JSON
func (w *Writer) WriteJSON(summary *RunSummary) error {
	path := filepath.Join(w.outputDir, "summary.json")

	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal run summary: %w", err)
	}

	if writeErr := os.WriteFile(path, data, 0600); writeErr != nil {
		return fmt.Errorf("failed to write summary JSON: %w", writeErr)
	}

	return nil
}

// WriteMarkdown writes a human-readable markdown summary
func (w *Writer) WriteMarkdown(summary *RunSummary) error {
	path := filepath.Join(w.outputDir, "summary.md")

	var md strings.Builder

	md.WriteString("# graphsync Run Summary\n\n")
	md.WriteString(fmt.Sprintf("**Run:** %s\n\n", summary.RunID))
	md.WriteString(fmt.Sprintf("**Mode:** %s\n\n", summary.Mode))
	md.WriteString(fmt.Sprintf("**File:** `%s`\n\n", summary.File))
	md.WriteString(fmt.Sprintf("**Status:** %s\n\n", summary.Status))
	md.WriteString(fmt.Sprintf("**Started:** %s\n\n", summary.StartTime.Format(time.RFC3339)))
	md.WriteString(fmt.Sprintf("**Completed:** %s\n\n", summary.EndTime.Format(time.RFC3339)))
	md.WriteString(fmt.Sprintf("**Duration:** %s\n\n", summary.Duration))

	if summary.Error != "" {
		md.WriteString(fmt.Sprintf("**Error:** %s\n\n", summary.Error))
	}

	if c := summary.Capture; c != nil {
		md.WriteString("## Capture\n\n")
		md.WriteString(fmt.Sprintf("- **Commands Seen:** %d\n", c.Seen))
		md.WriteString(fmt.Sprintf("- **Captured:** %d\n", c.Captured))
		md.WriteString(fmt.Sprintf("- **Ignored:** %d\n", c.Ignored))
		md.WriteString(fmt.Sprintf("- **Filtered:** %d\n", c.Filtered))
		md.WriteString(fmt.Sprintf("- **Malformed:** %d\n", c.Malformed))
		if summary.MonitorDropped > 0 {
			md.WriteString(fmt.Sprintf("- **Unrecognised Monitor Replies:** %d\n", summary.MonitorDropped))
		}
		md.WriteString("\n")
	}

	if r := summary.Replay; r != nil {
		md.WriteString("## Replay\n\n")
		md.WriteString(fmt.Sprintf("- **Lines Read:** %d\n", r.Lines))
		md.WriteString(fmt.Sprintf("- **Skipped:** %d\n", r.Skipped))
		md.WriteString(fmt.Sprintf("- **Dispatched:** %d\n", r.Dispatched))
		md.WriteString(fmt.Sprintf("- **Filtered:** %d\n", r.Filtered))
		md.WriteString(fmt.Sprintf("- **Failed:** %d\n", r.Failed))
		md.WriteString(fmt.Sprintf("- **Marker Found:** %t\n", r.MarkerFound))
		md.WriteString("\n")

		if r.LastLine > 0 {
			md.WriteString("### Resume\n\n")
			md.WriteString(fmt.Sprintf("Last replayed entry (line %d):\n\n", r.LastLine))
			md.WriteString(fmt.Sprintf("```\n%s\n```\n\n", r.LastEntry))
			md.WriteString(fmt.Sprintf("Pass `--start-after-line %d` to continue after it.\n", r.LastLine))
		}
	}

	if writeErr := os.WriteFile(path, []byte(md.String()), 0600); writeErr != nil {
		return fmt.Errorf("failed to write summary markdown: %w", writeErr)
	}

	return nil
}
