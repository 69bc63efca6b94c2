package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/devfleet/devfleet/internal/engine"
	"github.com/devfleet/devfleet/internal/runtime"
)

type logRecord struct {
	Timestamp time.Time `json:"ts"`
	Label     string    `json:"label"`
	Type      string    `json:"type"`
	Level     string    `json:"level"`
	Message   string    `json:"msg"`
	Source    string    `json:"source"`
	Reason    string    `json:"reason,omitempty"`
	Error     string    `json:"error,omitempty"`
}

func newLogRecord(event engine.Event) logRecord {
	level := event.Level
	if level == "" {
		level = "info"
	}
	source := event.Source
	if source == "" {
		source = runtime.LogSourceSystem
	}
	record := logRecord{
		Timestamp: event.Timestamp,
		Label:     event.Label,
		Type:      string(event.Type),
		Level:     level,
		Message:   event.Message,
		Source:    source,
		Reason:    event.Reason,
	}
	if event.Err != nil {
		record.Error = event.Err.Error()
	}
	return record
}

func encodeLogEvent(enc *json.Encoder, stderr io.Writer, event engine.Event) {
	if enc == nil {
		return
	}
	record := newLogRecord(event)
	if record.Timestamp.IsZero() {
		record.Timestamp = time.Now()
	}
	if err := enc.Encode(&record); err != nil {
		fmt.Fprintf(stderr, "error: encode log: %v\n", err)
	}
}

// printEvents renders lifecycle and log events as JSON lines until both
// channels are closed.
func printEvents(out, stderr io.Writer, events <-chan engine.Event, logs <-chan engine.Event) {
	enc := json.NewEncoder(out)
	for events != nil || logs != nil {
		select {
		case evt, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			encodeLogEvent(enc, stderr, evt)
		case evt, ok := <-logs:
			if !ok {
				logs = nil
				continue
			}
			encodeLogEvent(enc, stderr, evt)
		}
	}
}
