package engine

import (
	"time"

	"github.com/devfleet/devfleet/internal/runtime"
)

// Outcome records how a single child was disposed of during shutdown.
type Outcome string

const (
	// OutcomeExitedCleanly means the child exited with a status code after
	// the termination signal was delivered.
	OutcomeExitedCleanly Outcome = "exited"
	// OutcomeSignaled means the termination signal ended the child within
	// the grace period.
	OutcomeSignaled Outcome = "signaled"
	// OutcomeForceKilled means the child outlived the grace period and was
	// forcibly killed.
	OutcomeForceKilled Outcome = "force-killed"
	// OutcomeAlreadyExited means the child had exited on its own before
	// shutdown reached it.
	OutcomeAlreadyExited Outcome = "already-exited"
	// OutcomeNeverStarted means the child failed to spawn and there was
	// nothing to terminate.
	OutcomeNeverStarted Outcome = "never-started"
)

// TerminationEntry is the per-child record inside a TerminationReport.
// ExitCode is -1 when the child was ended by a signal or never produced a
// status.
type TerminationEntry struct {
	Label    string
	Outcome  Outcome
	ExitCode int
	Err      error
}

// TerminationReport summarises a completed shutdown pass. Entries appear in
// launch order, one per child, including children that never spawned.
type TerminationReport struct {
	Entries  []TerminationEntry
	Duration time.Duration
}

// Entry returns the record for the named child.
func (r *TerminationReport) Entry(label string) (TerminationEntry, bool) {
	for _, entry := range r.Entries {
		if entry.Label == label {
			return entry, true
		}
	}
	return TerminationEntry{}, false
}

// Clean reports whether every child was terminated without errors.
func (r *TerminationReport) Clean() bool {
	for _, entry := range r.Entries {
		if entry.Err != nil || entry.Outcome == OutcomeNeverStarted {
			return false
		}
	}
	return true
}

func outcomeFromStop(res runtime.StopResult) Outcome {
	switch res.Outcome {
	case runtime.OutcomeAlreadyExited:
		return OutcomeAlreadyExited
	case runtime.OutcomeExitedCleanly:
		return OutcomeExitedCleanly
	case runtime.OutcomeSignaled:
		return OutcomeSignaled
	case runtime.OutcomeForceKilled:
		return OutcomeForceKilled
	default:
		return OutcomeSignaled
	}
}
