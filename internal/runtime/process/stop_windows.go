//go:build windows

package process

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/devfleet/devfleet/internal/runtime"
)

func (p *childProcess) Stop(ctx context.Context) (runtime.StopResult, error) {
	return p.terminate(ctx, false)
}

func (p *childProcess) Kill(ctx context.Context) (runtime.StopResult, error) {
	return p.terminate(ctx, true)
}

func (p *childProcess) terminate(ctx context.Context, force bool) (runtime.StopResult, error) {
	p.stopMu.Lock()
	defer p.stopMu.Unlock()

	if p.cmd.Process == nil {
		return runtime.StopResult{Outcome: runtime.OutcomeAlreadyExited, ExitCode: -1}, nil
	}

	select {
	case <-p.waitDone:
		return p.exitResult(true), nil
	default:
	}

	if !force {
		// Attempt a graceful shutdown first.
		_ = p.cmd.Process.Signal(os.Interrupt)

		select {
		case <-p.waitDone:
			return p.exitResult(false), nil
		case <-time.After(p.grace):
		case <-ctx.Done():
			return runtime.StopResult{}, ctx.Err()
		}
	}

	if err := p.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return runtime.StopResult{}, fmt.Errorf("kill process %s: %w", p.label, err)
	}
	select {
	case <-p.waitDone:
		return runtime.StopResult{Outcome: runtime.OutcomeForceKilled, ExitCode: -1}, nil
	case <-ctx.Done():
		return runtime.StopResult{}, ctx.Err()
	}
}
