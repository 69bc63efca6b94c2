package engine

import (
	"time"

	"github.com/devfleet/devfleet/internal/runtime"
)

// EventType captures high level lifecycle notifications emitted by the
// supervisor for each child.
type EventType string

const (
	EventTypeStarting    EventType = "starting"
	EventTypeStarted     EventType = "started"
	EventTypeSpawnFailed EventType = "spawnfailed"
	EventTypeExited      EventType = "exited"
	EventTypeStopping    EventType = "stopping"
	EventTypeStopped     EventType = "stopped"
	EventTypeLog         EventType = "log"
	EventTypeError       EventType = "error"
)

// Event represents a single lifecycle or log notification.
type Event struct {
	Timestamp time.Time
	Label     string
	Type      EventType
	Message   string
	Level     string
	Source    string
	Err       error
	Reason    string
}

const (
	ReasonLaunch        = "launch"
	ReasonSpawnFailure  = "spawn_failure"
	ReasonNaturalExit   = "natural_exit"
	ReasonShutdown      = "shutdown"
	ReasonSignalFailure = "signal_failure"
	ReasonForceKill     = "force_kill"
)

func sendEvent(events chan<- Event, label string, t EventType, message, reason string, err error) {
	if events == nil {
		return
	}
	level := "info"
	if err != nil {
		level = "error"
	}
	events <- Event{
		Timestamp: time.Now(),
		Label:     label,
		Type:      t,
		Message:   message,
		Level:     level,
		Source:    runtime.LogSourceSystem,
		Err:       err,
		Reason:    reason,
	}
}
