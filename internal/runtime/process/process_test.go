package process

import (
	"context"
	"errors"
	"runtime"
	"strconv"
	"strings"
	"syscall"
	"testing"
	"time"

	devruntime "github.com/devfleet/devfleet/internal/runtime"
)

func requireUnix(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("requires a unix shell")
	}
}

// collectLogs drains the handle's log channel in the background. Every entry
// is forwarded on the live channel without blocking the drain, and the full
// set is delivered on done once the stream closes.
func collectLogs(h devruntime.Handle) (live <-chan devruntime.LogEntry, done <-chan []devruntime.LogEntry) {
	liveCh := make(chan devruntime.LogEntry, 256)
	doneCh := make(chan []devruntime.LogEntry, 1)
	go func() {
		var entries []devruntime.LogEntry
		for entry := range h.Logs() {
			entries = append(entries, entry)
			select {
			case liveCh <- entry:
			default:
			}
		}
		doneCh <- entries
	}()
	return liveCh, doneCh
}

// awaitLine blocks until the child has printed a line containing want. Tests
// use this to know a shell has finished installing traps before signaling it.
func awaitLine(t *testing.T, live <-chan devruntime.LogEntry, want string) string {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case entry := <-live:
			if strings.Contains(entry.Message, want) {
				return entry.Message
			}
		case <-deadline:
			t.Fatalf("timed out waiting for log line containing %q", want)
			return ""
		}
	}
}

func startShell(t *testing.T, script string, grace time.Duration) devruntime.Handle {
	t.Helper()
	rt := New()
	handle, err := rt.Start(context.Background(), devruntime.StartSpec{
		Label:   "test",
		Command: []string{"/bin/sh", "-c", script},
		Grace:   grace,
	})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	return handle
}

func TestStartStreamsLogsAndEnv(t *testing.T) {
	requireUnix(t)

	rt := New()
	handle, err := rt.Start(context.Background(), devruntime.StartSpec{
		Label:   "test",
		Command: []string{"/bin/sh", "-c", `echo "greeting=$GREETING"; echo oops 1>&2`},
		Env:     map[string]string{"GREETING": "hello"},
		Grace:   time.Second,
	})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	_, logs := collectLogs(handle)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := handle.Wait(ctx); err != nil {
		t.Fatalf("wait: %v", err)
	}

	entries := <-logs
	var sawStdout, sawStderr bool
	for _, entry := range entries {
		switch {
		case entry.Source == devruntime.LogSourceStdout && entry.Message == "greeting=hello":
			sawStdout = true
		case entry.Source == devruntime.LogSourceStderr && entry.Message == "oops":
			sawStderr = true
			if entry.Level != "warn" {
				t.Fatalf("expected warn level on stderr, got %q", entry.Level)
			}
		}
	}
	if !sawStdout {
		t.Fatalf("missing env-expanded stdout line, got %+v", entries)
	}
	if !sawStderr {
		t.Fatalf("missing stderr line, got %+v", entries)
	}
}

func TestStartFailsForMissingBinary(t *testing.T) {
	rt := New()
	_, err := rt.Start(context.Background(), devruntime.StartSpec{
		Label:   "test",
		Command: []string{"/nonexistent/definitely-not-here"},
	})
	if err == nil {
		t.Fatal("expected spawn error")
	}
	if !strings.Contains(err.Error(), "spawn child test") {
		t.Fatalf("expected spawn error naming the child, got %v", err)
	}
}

func TestStopSignalsWithinGrace(t *testing.T) {
	requireUnix(t)

	handle := startShell(t, "sleep 30", 5*time.Second)
	_, logs := collectLogs(handle)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	res, err := handle.Stop(ctx)
	if err != nil {
		t.Fatalf("stop: %v", err)
	}
	if res.Outcome != devruntime.OutcomeSignaled {
		t.Fatalf("expected signaled, got %s", res.Outcome)
	}
	if res.ExitCode >= 0 {
		t.Fatalf("expected negative exit code for signaled child, got %d", res.ExitCode)
	}
	<-logs
}

func TestStopEscalatesToForceKill(t *testing.T) {
	requireUnix(t)

	handle := startShell(t, `trap "" TERM; echo ready; while :; do sleep 0.2; done`, 300*time.Millisecond)
	live, logs := collectLogs(handle)
	awaitLine(t, live, "ready")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	res, err := handle.Stop(ctx)
	if err != nil {
		t.Fatalf("stop: %v", err)
	}
	if res.Outcome != devruntime.OutcomeForceKilled {
		t.Fatalf("expected force-killed, got %s", res.Outcome)
	}
	<-logs
}

func TestStopObservesCleanExitDuringGrace(t *testing.T) {
	requireUnix(t)

	handle := startShell(t, `trap "exit 0" TERM; echo ready; while :; do sleep 0.1; done`, 5*time.Second)
	live, logs := collectLogs(handle)
	awaitLine(t, live, "ready")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	res, err := handle.Stop(ctx)
	if err != nil {
		t.Fatalf("stop: %v", err)
	}
	if res.Outcome != devruntime.OutcomeExitedCleanly {
		t.Fatalf("expected clean exit, got %s", res.Outcome)
	}
	if res.ExitCode != 0 {
		t.Fatalf("expected exit code 0, got %d", res.ExitCode)
	}
	<-logs
}

func TestStopAfterNaturalExit(t *testing.T) {
	requireUnix(t)

	handle := startShell(t, "exit 3", time.Second)
	_, logs := collectLogs(handle)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := handle.Wait(ctx); err == nil {
		t.Fatal("expected non-nil wait error for exit 3")
	}
	code, exited := handle.ExitCode()
	if !exited || code != 3 {
		t.Fatalf("expected exit code 3, got %d (exited=%v)", code, exited)
	}

	res, err := handle.Stop(ctx)
	if err != nil {
		t.Fatalf("stop: %v", err)
	}
	if res.Outcome != devruntime.OutcomeAlreadyExited {
		t.Fatalf("expected already-exited, got %s", res.Outcome)
	}
	if res.ExitCode != 3 {
		t.Fatalf("expected exit code 3, got %d", res.ExitCode)
	}
	<-logs
}

func TestStopTerminatesWholeProcessGroup(t *testing.T) {
	requireUnix(t)

	handle := startShell(t, `sleep 30 & echo "pid=$!"; wait`, 5*time.Second)
	live, _ := collectLogs(handle)

	line := awaitLine(t, live, "pid=")
	grandchild, err := strconv.Atoi(strings.TrimPrefix(strings.TrimSpace(line), "pid="))
	if err != nil || grandchild <= 0 {
		t.Fatalf("unparseable pid line %q", line)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := handle.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		err := syscall.Kill(grandchild, 0)
		if errors.Is(err, syscall.ESRCH) {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("grandchild %d survived process group termination", grandchild)
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestWaitHonorsContext(t *testing.T) {
	requireUnix(t)

	handle := startShell(t, "sleep 30", time.Second)
	_, logs := collectLogs(handle)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := handle.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer stopCancel()
	if _, err := handle.Stop(stopCtx); err != nil {
		t.Fatalf("stop: %v", err)
	}
	<-logs
}
