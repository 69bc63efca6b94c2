package cli

import (
	stdcontext "context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/devfleet/devfleet/internal/config"
	"github.com/devfleet/devfleet/internal/engine"
	"github.com/devfleet/devfleet/internal/logmux"
	"github.com/devfleet/devfleet/internal/metrics"
	"github.com/devfleet/devfleet/internal/runtime/process"
	"github.com/devfleet/devfleet/internal/tui"
)

const shutdownSlack = 10 * time.Second

func newRunCmd(ctx *context) *cobra.Command {
	var (
		release       bool
		failFast      bool
		grace         time.Duration
		metricsListen string
		useTUI        bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Launch the fleet and supervise it until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := ctx.loadFleet()
			if err != nil {
				return err
			}

			specs := config.CloneProcesses(doc.Processes)
			if release {
				if doc.Release == nil {
					return fmt.Errorf("fleet %s has no release block; --release is not available", doc.Fleet.Name)
				}
				for _, spec := range specs {
					if spec.Env == nil {
						spec.Env = make(map[string]string, 1)
					}
					spec.Env[doc.Release.Env] = doc.Release.Value
				}
			}

			graceVal := doc.Defaults.Grace.Duration
			if cmd.Flags().Changed("grace") {
				graceVal = grace
			}
			failFastVal := doc.Defaults.FailFast
			if cmd.Flags().Changed("fail-fast") {
				failFastVal = failFast
			}
			if useTUI && !term.IsTerminal(int(os.Stdout.Fd())) {
				return fmt.Errorf("--tui requires a terminal")
			}

			runCtx := cmd.Context()

			if metricsListen != "" {
				srv, err := metrics.NewServer(metrics.ServerConfig{Addr: metricsListen})
				if err != nil {
					return err
				}
				go func() {
					if err := srv.Run(runCtx); err != nil {
						fmt.Fprintf(cmd.ErrOrStderr(), "metrics server: %v\n", err)
					}
				}()
			}

			events := make(chan engine.Event, 256)
			sup := engine.New(process.New(),
				engine.WithEvents(events),
				engine.WithGrace(graceVal),
				engine.WithFailFast(failFastVal),
			)

			var ui *tui.UI
			printerDone := make(chan struct{})
			mux := logmux.New(256)
			if useTUI {
				ui = tui.New(tui.WithFleetName(doc.Fleet.Name))
				go func() {
					defer close(printerDone)
					forwardEvents(ui, events, mux.Output())
				}()
			} else {
				go func() {
					defer close(printerDone)
					printEvents(cmd.OutOrStdout(), cmd.ErrOrStderr(), events, mux.Output())
				}()
			}

			fleet, err := sup.Launch(runCtx, specs)
			if err != nil {
				close(events)
				go mux.Close()
				return err
			}
			for _, child := range fleet.Children() {
				if logs := child.Logs(); logs != nil {
					mux.Add(child.Label(), logs)
				}
			}

			status := fleet.Status()

			var waitErr error
			if ui != nil {
				uiErrCh := make(chan error, 1)
				go func() { uiErrCh <- ui.Run(runCtx) }()
				waitCh := make(chan error, 1)
				go func() { waitCh <- fleet.Wait(runCtx) }()
				select {
				case waitErr = <-waitCh:
				case <-ui.Done():
				}
			} else {
				waitErr = fleet.Wait(runCtx)
			}

			shutdownCtx, cancel := stdcontext.WithTimeout(
				stdcontext.WithoutCancel(runCtx), graceVal+shutdownSlack)
			report := fleet.Shutdown(shutdownCtx)
			cancel()

			close(events)
			go mux.Close()
			select {
			case <-printerDone:
			case <-time.After(2 * time.Second):
			}

			if ui != nil {
				ui.Stop()
			}

			printReport(cmd.OutOrStdout(), report)

			if !status.AllStarted() {
				return fmt.Errorf("%d of %d children failed to launch: %s",
					len(status.Failed), len(fleet.Children()), strings.Join(status.Failed, ", "))
			}
			if waitErr != nil && errors.Is(waitErr, engine.ErrChildExited) {
				return waitErr
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&release, "release", false, "Forward the fleet's release environment override to every child")
	cmd.Flags().BoolVar(&failFast, "fail-fast", false, "Tear down the fleet when any child exits on its own")
	cmd.Flags().DurationVar(&grace, "grace", 5*time.Second, "Grace period before escalating to a forced kill")
	cmd.Flags().StringVar(&metricsListen, "metrics-listen", "", "Serve Prometheus metrics on this address")
	cmd.Flags().BoolVar(&useTUI, "tui", false, "Render an interactive status view instead of JSON logs")

	return cmd
}

// forwardEvents feeds lifecycle and log events into the TUI until both
// channels are closed. Once the UI has stopped, remaining events are drained
// without delivery so producers never block on a dead interface.
func forwardEvents(ui *tui.UI, events <-chan engine.Event, logs <-chan engine.Event) {
	defer ui.CloseEvents()

	sink := ui.EventSink()
	for events != nil || logs != nil {
		var evt engine.Event
		var ok bool
		select {
		case evt, ok = <-events:
			if !ok {
				events = nil
				continue
			}
		case evt, ok = <-logs:
			if !ok {
				logs = nil
				continue
			}
		}
		if sink == nil {
			continue
		}
		select {
		case sink <- evt:
		case <-ui.Done():
			sink = nil
		}
	}
}
