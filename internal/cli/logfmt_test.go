package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/devfleet/devfleet/internal/engine"
)

func TestPrintEventsEncodesJSONLines(t *testing.T) {
	events := make(chan engine.Event, 2)
	logs := make(chan engine.Event, 1)

	events <- engine.Event{
		Timestamp: time.Now(),
		Label:     "api",
		Type:      engine.EventTypeStarted,
		Message:   "started pid 42",
		Reason:    engine.ReasonLaunch,
	}
	events <- engine.Event{
		Label: "search",
		Type:  engine.EventTypeSpawnFailed,
		Err:   errors.New("executable not found"),
	}
	close(events)
	logs <- engine.Event{
		Label:   "api",
		Type:    engine.EventTypeLog,
		Level:   "info",
		Message: "listening on :3000",
	}
	close(logs)

	var out, errOut bytes.Buffer
	printEvents(&out, &errOut, events, logs)

	if errOut.Len() != 0 {
		t.Fatalf("unexpected stderr output: %s", errOut.String())
	}

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 JSON lines, got %d:\n%s", len(lines), out.String())
	}

	byLabel := map[string][]logRecord{}
	for _, line := range lines {
		var record logRecord
		if err := json.Unmarshal([]byte(line), &record); err != nil {
			t.Fatalf("invalid JSON line %q: %v", line, err)
		}
		if record.Timestamp.IsZero() {
			t.Fatalf("expected timestamp on %q", line)
		}
		byLabel[record.Label] = append(byLabel[record.Label], record)
	}

	foundFailure := false
	for _, record := range byLabel["search"] {
		if record.Type == string(engine.EventTypeSpawnFailed) {
			foundFailure = true
			if record.Error != "executable not found" {
				t.Fatalf("expected error field, got %+v", record)
			}
			if record.Level != "error" && record.Level != "info" {
				t.Fatalf("unexpected level %q", record.Level)
			}
		}
	}
	if !foundFailure {
		t.Fatal("missing spawn failure record")
	}
}

func TestPrintReportRendersAllEntries(t *testing.T) {
	report := &engine.TerminationReport{
		Entries: []engine.TerminationEntry{
			{Label: "api", Outcome: engine.OutcomeSignaled, ExitCode: -1},
			{Label: "search", Outcome: engine.OutcomeExitedCleanly, ExitCode: 0},
			{Label: "frontend", Outcome: engine.OutcomeForceKilled, ExitCode: -1, Err: errors.New("signal process group frontend: operation not permitted")},
		},
		Duration: 1234 * time.Millisecond,
	}

	var out bytes.Buffer
	printReport(&out, report)
	text := out.String()

	for _, want := range []string{
		"PROCESS", "OUTCOME", "EXIT", "ERROR",
		"api", "signaled",
		"search", "exited",
		"frontend", "force-killed", "operation not permitted",
		"Shutdown completed in 1.234s.",
	} {
		if !strings.Contains(text, want) {
			t.Fatalf("missing %q in report:\n%s", want, text)
		}
	}

	// Signaled children have no exit status to show.
	for _, line := range strings.Split(text, "\n") {
		if strings.HasPrefix(line, "api") && !strings.Contains(line, "-") {
			t.Fatalf("expected placeholder exit for signaled child: %q", line)
		}
	}
}

func TestPrintReportHandlesNil(t *testing.T) {
	var out bytes.Buffer
	printReport(&out, nil)
	if out.Len() != 0 {
		t.Fatalf("expected no output, got %q", out.String())
	}
}
