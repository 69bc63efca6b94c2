package logmux

import (
	"fmt"
	"sync"
	"time"

	"github.com/devfleet/devfleet/internal/engine"
	"github.com/devfleet/devfleet/internal/runtime"
)

// Mux fans in output lines from multiple children and delivers them via a
// bounded channel. When downstream consumers cannot keep up and the output
// buffer would overflow, the mux drops log records and emits a synthesized
// warning event to surface the number of discarded entries.
type Mux struct {
	out chan engine.Event

	mu     sync.Mutex
	drops  map[string]int
	inputs sync.WaitGroup
}

// New constructs a mux backed by a channel of the provided size. A size of
// zero results in a minimally buffered channel.
func New(size int) *Mux {
	if size <= 0 {
		size = 1
	}
	return &Mux{
		out:   make(chan engine.Event, size),
		drops: make(map[string]int),
	}
}

// Output exposes the muxed event channel.
func (m *Mux) Output() <-chan engine.Event {
	return m.out
}

// Add registers the output stream of a child. The mux consumes lines until
// the source channel is closed.
func (m *Mux) Add(label string, source <-chan runtime.LogEntry) {
	if source == nil {
		return
	}
	m.inputs.Add(1)
	go func() {
		defer m.inputs.Done()
		for entry := range source {
			if entry.Message == "" {
				continue
			}
			m.deliver(normalize(label, entry))
		}
	}()
}

// Close waits for all sources to be drained, emits any pending drop metadata,
// and closes the output channel.
func (m *Mux) Close() {
	m.inputs.Wait()
	m.flushDrops()
	close(m.out)
}

func (m *Mux) deliver(evt engine.Event) {
	if !m.flushPending(evt.Label) {
		m.recordDrop(evt.Label, 1)
		return
	}
	if m.trySend(evt) {
		return
	}
	m.recordDrop(evt.Label, 1)
}

func (m *Mux) flushPending(label string) bool {
	for {
		count := m.takeDrops(label)
		if count == 0 {
			return true
		}
		meta := synthesizeDropEvent(label, count)
		if m.trySend(meta) {
			continue
		}
		m.recordDrop(label, count)
		return false
	}
}

func (m *Mux) takeDrops(label string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := m.drops[label]
	if count != 0 {
		delete(m.drops, label)
	}
	return count
}

func (m *Mux) recordDrop(label string, count int) {
	if count <= 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.drops[label] += count
}

func (m *Mux) flushDrops() {
	m.mu.Lock()
	pending := m.drops
	m.drops = make(map[string]int)
	m.mu.Unlock()

	for label, count := range pending {
		if count <= 0 {
			continue
		}
		m.out <- synthesizeDropEvent(label, count)
	}
}

func (m *Mux) trySend(evt engine.Event) bool {
	select {
	case m.out <- evt:
		return true
	default:
		return false
	}
}

func normalize(label string, entry runtime.LogEntry) engine.Event {
	ts := entry.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	source := entry.Source
	if source == "" {
		source = runtime.LogSourceStdout
	}
	level := entry.Level
	if level == "" {
		if source == runtime.LogSourceStderr {
			level = "warn"
		} else {
			level = "info"
		}
	}
	return engine.Event{
		Timestamp: ts,
		Label:     label,
		Type:      engine.EventTypeLog,
		Message:   entry.Message,
		Level:     level,
		Source:    source,
	}
}

func synthesizeDropEvent(label string, count int) engine.Event {
	return engine.Event{
		Timestamp: time.Now(),
		Label:     label,
		Type:      engine.EventTypeLog,
		Message:   fmt.Sprintf("dropped=%d", count),
		Level:     "warn",
		Source:    runtime.LogSourceSystem,
	}
}
