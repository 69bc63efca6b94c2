package runtime

import (
	"context"
	"time"
)

const (
	LogSourceStdout = "stdout"
	LogSourceStderr = "stderr"
	LogSourceSystem = "system"
)

// LogEntry is a single line of output captured from a child process.
type LogEntry struct {
	Timestamp time.Time
	Message   string
	Source    string
	Level     string
}

// StartSpec describes one child process to launch.
type StartSpec struct {
	Label   string
	Command []string
	Env     map[string]string
	Workdir string

	// Grace bounds how long Stop waits after the termination signal before
	// escalating to a forced kill.
	Grace time.Duration
}

// StopOutcome describes how a child left the supervised set.
type StopOutcome string

const (
	// OutcomeAlreadyExited means the child had exited before Stop was called.
	OutcomeAlreadyExited StopOutcome = "already-exited"
	// OutcomeExitedCleanly means the child exited with a status code after
	// receiving the termination signal.
	OutcomeExitedCleanly StopOutcome = "exited"
	// OutcomeSignaled means the termination signal ended the child.
	OutcomeSignaled StopOutcome = "signaled"
	// OutcomeForceKilled means the child survived the grace period and was
	// forcibly killed.
	OutcomeForceKilled StopOutcome = "force-killed"
)

// StopResult reports the outcome of stopping a single child. ExitCode is -1
// when the child was ended by a signal.
type StopResult struct {
	Outcome  StopOutcome
	ExitCode int
}

// Handle represents a single spawned child owned by the supervisor.
type Handle interface {
	// Pid returns the operating system process identifier of the child.
	Pid() int

	// Wait blocks until the child has been reaped or the context is
	// cancelled. A nil error means the child exited with status zero.
	Wait(ctx context.Context) error

	// ExitCode reports the child's exit status once it has been reaped.
	ExitCode() (int, bool)

	// Stop terminates the child: a termination signal first, then a forced
	// kill after the grace period. It is safe to call after the child has
	// already exited.
	Stop(ctx context.Context) (StopResult, error)

	// Kill forcibly terminates the child without waiting out a grace period.
	Kill(ctx context.Context) (StopResult, error)

	// Logs returns a channel of output lines. The channel is closed once
	// the child has exited and its pipes are drained.
	Logs() <-chan LogEntry
}

// Runtime describes a backend capable of launching child processes.
type Runtime interface {
	// Start launches the described child and returns a handle for it.
	// Implementations should respect context cancellation and surface
	// spawn failures via returned errors.
	Start(ctx context.Context, spec StartSpec) (Handle, error)
}
