package process

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/devfleet/devfleet/internal/runtime"
)

const defaultGrace = 5 * time.Second

type runtimeImpl struct{}

// New constructs a runtime that executes children as local processes.
func New() runtime.Runtime {
	return &runtimeImpl{}
}

func (r *runtimeImpl) Start(ctx context.Context, spec runtime.StartSpec) (runtime.Handle, error) {
	if len(spec.Command) == 0 {
		return nil, fmt.Errorf("child %s requires a command", spec.Label)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Termination is managed explicitly through Stop and Kill so the grace
	// period applies to the whole process group; context cancellation only
	// gates the spawn itself.
	cmd := exec.Command(spec.Command[0], spec.Command[1:]...)
	if spec.Workdir != "" {
		cmd.Dir = spec.Workdir
	}

	env := os.Environ()
	if spec.Env != nil {
		envOverrides := make([]string, 0, len(spec.Env))
		for k, v := range spec.Env {
			envOverrides = append(envOverrides, fmt.Sprintf("%s=%s", k, v))
		}
		env = append(env, envOverrides...)
	}
	cmd.Env = env

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("child %s stdout: %w", spec.Label, err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("child %s stderr: %w", spec.Label, err)
	}

	configureCmdSysProcAttr(cmd)

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("spawn child %s: %w", spec.Label, err)
	}

	grace := spec.Grace
	if grace <= 0 {
		grace = defaultGrace
	}

	child := &childProcess{
		label:    spec.Label,
		cmd:      cmd,
		grace:    grace,
		logs:     make(chan runtime.LogEntry, 64),
		waitDone: make(chan struct{}),
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go child.streamLogs(stdout, runtime.LogSourceStdout, &wg)
	go child.streamLogs(stderr, runtime.LogSourceStderr, &wg)
	go func() {
		wg.Wait()
		close(child.logs)
	}()

	go func() {
		child.waitErr = cmd.Wait()
		close(child.waitDone)
	}()

	return child, nil
}

type childProcess struct {
	label string
	cmd   *exec.Cmd
	grace time.Duration
	logs  chan runtime.LogEntry

	// waitErr is written by the reaper goroutine before waitDone closes.
	waitErr  error
	waitDone chan struct{}

	// stopMu serializes Stop and Kill so a child is never signaled twice
	// concurrently.
	stopMu sync.Mutex
}

func (p *childProcess) Pid() int {
	if p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

func (p *childProcess) Wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-p.waitDone:
		return p.waitErr
	}
}

func (p *childProcess) ExitCode() (int, bool) {
	select {
	case <-p.waitDone:
	default:
		return 0, false
	}
	if p.cmd.ProcessState == nil {
		return 0, false
	}
	return p.cmd.ProcessState.ExitCode(), true
}

func (p *childProcess) Logs() <-chan runtime.LogEntry {
	return p.logs
}

func (p *childProcess) streamLogs(r io.Reader, source string, wg *sync.WaitGroup) {
	defer wg.Done()
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\n")
		entry := runtime.LogEntry{Timestamp: time.Now(), Message: line, Source: source}
		if source == runtime.LogSourceStderr {
			entry.Level = "warn"
		}
		p.logs <- entry
	}
}

// exitResult classifies a reaped child. Only valid once waitDone is closed.
func (p *childProcess) exitResult(alreadyExited bool) runtime.StopResult {
	code := -1
	if p.cmd.ProcessState != nil {
		code = p.cmd.ProcessState.ExitCode()
	}
	if alreadyExited {
		return runtime.StopResult{Outcome: runtime.OutcomeAlreadyExited, ExitCode: code}
	}
	if code < 0 {
		return runtime.StopResult{Outcome: runtime.OutcomeSignaled, ExitCode: code}
	}
	return runtime.StopResult{Outcome: runtime.OutcomeExitedCleanly, ExitCode: code}
}
