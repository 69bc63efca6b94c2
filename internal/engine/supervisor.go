package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/devfleet/devfleet/internal/config"
	"github.com/devfleet/devfleet/internal/metrics"
	"github.com/devfleet/devfleet/internal/runtime"
)

const (
	defaultGrace     = 5 * time.Second
	forceKillTimeout = 5 * time.Second
	watcherDrain     = time.Second
)

// ErrChildExited is returned by Fleet.Wait when fail-fast is enabled and a
// child exits on its own before the interrupt arrives.
var ErrChildExited = errors.New("child exited")

// Supervisor launches fleets of child processes and tears them down as a
// single unit.
type Supervisor struct {
	rt       runtime.Runtime
	events   chan<- Event
	grace    time.Duration
	failFast bool
}

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithEvents delivers lifecycle notifications to the provided channel.
func WithEvents(events chan<- Event) Option {
	return func(s *Supervisor) { s.events = events }
}

// WithGrace overrides the default shutdown grace period.
func WithGrace(grace time.Duration) Option {
	return func(s *Supervisor) {
		if grace > 0 {
			s.grace = grace
		}
	}
}

// WithFailFast makes Fleet.Wait return when any child exits on its own.
func WithFailFast(enabled bool) Option {
	return func(s *Supervisor) { s.failFast = enabled }
}

// New constructs a supervisor backed by the provided runtime.
func New(rt runtime.Runtime, opts ...Option) *Supervisor {
	sup := &Supervisor{rt: rt, grace: defaultGrace}
	for _, opt := range opts {
		opt(sup)
	}
	return sup
}

// Child is the runtime tracking record for one launched process.
type Child struct {
	fleet *Fleet

	label  string
	spec   *config.ProcessSpec
	handle runtime.Handle

	// Guarded by fleet.mu.
	state    ChildState
	spawnErr error
	exitErr  error
}

// ChildState enumerates the lifecycle of a tracked child.
type ChildState string

const (
	StatePending     ChildState = "pending"
	StateSpawned     ChildState = "spawned"
	StateExited      ChildState = "exited"
	StateSignaled    ChildState = "signaled"
	StateForceKilled ChildState = "force-killed"
	StateFailed      ChildState = "failed"
)

// Label returns the child's configured label.
func (c *Child) Label() string { return c.label }

// Pid returns the child's process identifier, or 0 if it never spawned.
func (c *Child) Pid() int {
	if c.handle == nil {
		return 0
	}
	return c.handle.Pid()
}

// State returns the child's current lifecycle state.
func (c *Child) State() ChildState {
	c.fleet.mu.Lock()
	defer c.fleet.mu.Unlock()
	return c.state
}

// SpawnErr returns the recorded spawn failure, if any.
func (c *Child) SpawnErr() error {
	c.fleet.mu.Lock()
	defer c.fleet.mu.Unlock()
	return c.spawnErr
}

// Logs returns the child's output stream, or nil if it never spawned.
func (c *Child) Logs() <-chan runtime.LogEntry {
	if c.handle == nil {
		return nil
	}
	return c.handle.Logs()
}

// LaunchStatus is the aggregate result of launching a fleet.
type LaunchStatus struct {
	// Failed lists the labels of children that could not be spawned, in
	// launch order.
	Failed []string
}

// AllStarted reports whether every child spawned successfully.
func (s LaunchStatus) AllStarted() bool { return len(s.Failed) == 0 }

// Fleet tracks the live set of children launched by a supervisor.
type Fleet struct {
	children []*Child
	events   chan<- Event
	failFast bool

	mu           sync.Mutex
	shuttingDown bool

	firstExit chan string
	exitOnce  sync.Once

	watchers sync.WaitGroup

	stopOnce sync.Once
	report   *TerminationReport
}

// Launch spawns each process spec in listed order. A failure to spawn one
// child does not prevent attempting the rest; failures are recorded and
// surface through the fleet's LaunchStatus. The error return is reserved for
// invalid input.
func (s *Supervisor) Launch(ctx context.Context, specs []*config.ProcessSpec) (*Fleet, error) {
	if len(specs) == 0 {
		return nil, errors.New("at least one process is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	fleet := &Fleet{
		events:    s.events,
		failFast:  s.failFast,
		firstExit: make(chan string, 1),
	}

	for _, spec := range specs {
		child := &Child{fleet: fleet, label: spec.Label, spec: spec.Clone(), state: StatePending}
		fleet.children = append(fleet.children, child)

		sendEvent(s.events, child.label, EventTypeStarting, "starting child", ReasonLaunch, nil)

		handle, err := s.rt.Start(ctx, runtime.StartSpec{
			Label:   spec.Label,
			Command: spec.Command,
			Env:     spec.Env,
			Workdir: spec.ResolvedWorkdir,
			Grace:   s.grace,
		})
		if err != nil {
			child.state = StateFailed
			child.spawnErr = err
			metrics.IncSpawnFailure(child.label)
			sendEvent(s.events, child.label, EventTypeSpawnFailed, "spawn failed", ReasonSpawnFailure, err)
			continue
		}

		child.handle = handle
		child.state = StateSpawned
		metrics.IncChildrenRunning()
		sendEvent(s.events, child.label, EventTypeStarted, fmt.Sprintf("started pid %d", handle.Pid()), ReasonLaunch, nil)

		fleet.watchers.Add(1)
		go fleet.watch(child)
	}

	return fleet, nil
}

// Children returns the tracked children in launch order, including children
// that failed to spawn.
func (f *Fleet) Children() []*Child {
	return f.children
}

// Status reports the aggregate launch result.
func (f *Fleet) Status() LaunchStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	var status LaunchStatus
	for _, child := range f.children {
		if child.state == StateFailed {
			status.Failed = append(status.Failed, child.label)
		}
	}
	return status
}

// watch observes a child until it is reaped. Natural exits, observed before
// shutdown begins, are announced and recorded; exits caused by shutdown are
// reported by the shutdown pass itself.
func (f *Fleet) watch(c *Child) {
	defer f.watchers.Done()

	err := c.handle.Wait(context.Background())
	metrics.DecChildrenRunning()

	f.mu.Lock()
	natural := !f.shuttingDown && c.state == StateSpawned
	if natural {
		c.state = StateExited
		c.exitErr = err
	}
	f.mu.Unlock()

	if !natural {
		return
	}

	code, _ := c.handle.ExitCode()
	sendEvent(f.events, c.label, EventTypeExited, fmt.Sprintf("exited with code %d", code), ReasonNaturalExit, err)
	f.exitOnce.Do(func() { f.firstExit <- c.label })
}

// Wait blocks until the external interrupt cancels the context or, when
// fail-fast is enabled, until any child exits on its own.
func (f *Fleet) Wait(ctx context.Context) error {
	if f.failFast {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case label := <-f.firstExit:
			return fmt.Errorf("%w: %s", ErrChildExited, label)
		}
	}
	<-ctx.Done()
	return ctx.Err()
}

// Shutdown terminates every still-alive child in launch order and returns a
// report covering all of them. It is idempotent; subsequent calls return the
// report produced by the first.
func (f *Fleet) Shutdown(ctx context.Context) *TerminationReport {
	f.stopOnce.Do(func() {
		f.report = f.shutdown(ctx)
	})
	return f.report
}

func (f *Fleet) shutdown(ctx context.Context) *TerminationReport {
	start := time.Now()
	if ctx == nil {
		ctx = context.Background()
	}

	f.mu.Lock()
	f.shuttingDown = true
	f.mu.Unlock()

	entries := make([]TerminationEntry, 0, len(f.children))
	for _, child := range f.children {
		entries = append(entries, f.stopChild(ctx, child))
	}

	f.drainWatchers()

	duration := time.Since(start)
	metrics.ObserveShutdownDuration(duration)
	return &TerminationReport{Entries: entries, Duration: duration}
}

func (f *Fleet) stopChild(ctx context.Context, c *Child) TerminationEntry {
	if c.handle == nil {
		f.mu.Lock()
		spawnErr := c.spawnErr
		f.mu.Unlock()
		return TerminationEntry{Label: c.label, Outcome: OutcomeNeverStarted, ExitCode: -1, Err: spawnErr}
	}

	sendEvent(f.events, c.label, EventTypeStopping, "stopping child", ReasonShutdown, nil)

	res, err := c.handle.Stop(ctx)
	if err != nil {
		// Signaling failed or the stop context ran out. Shutdown must
		// still complete for the remaining children, so fall back to a
		// forced kill on a fresh, bounded context.
		sendEvent(f.events, c.label, EventTypeError, "graceful stop failed", ReasonSignalFailure, err)
		killCtx, cancel := context.WithTimeout(context.Background(), forceKillTimeout)
		killRes, killErr := c.handle.Kill(killCtx)
		cancel()
		if killErr != nil {
			f.setState(c, StateForceKilled)
			metrics.IncForceKilled(c.label)
			sendEvent(f.events, c.label, EventTypeError, "force kill failed", ReasonForceKill, killErr)
			return TerminationEntry{Label: c.label, Outcome: OutcomeForceKilled, ExitCode: -1, Err: killErr}
		}
		res = killRes
	}

	outcome := outcomeFromStop(res)
	switch outcome {
	case OutcomeSignaled, OutcomeExitedCleanly:
		f.setState(c, StateSignaled)
		metrics.IncSignaled(c.label)
	case OutcomeForceKilled:
		f.setState(c, StateForceKilled)
		metrics.IncForceKilled(c.label)
	case OutcomeAlreadyExited:
		f.setState(c, StateExited)
	}

	sendEvent(f.events, c.label, EventTypeStopped, fmt.Sprintf("stopped (%s)", outcome), ReasonShutdown, err)
	return TerminationEntry{Label: c.label, Outcome: outcome, ExitCode: res.ExitCode, Err: err}
}

func (f *Fleet) setState(c *Child, state ChildState) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c.state == StateSpawned {
		c.state = state
	}
}

// drainWatchers waits briefly for watcher goroutines so no event is emitted
// after shutdown returns. An unkillable child must not block exit.
func (f *Fleet) drainWatchers() {
	done := make(chan struct{})
	go func() {
		f.watchers.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(watcherDrain):
	}
}
