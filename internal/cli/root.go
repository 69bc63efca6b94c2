package cli

import (
	stdcontext "context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/devfleet/devfleet/internal/config"
)

func NewRootCmd() *cobra.Command {
	root, _ := newRootCommand()
	return root
}

func newRootCommand() (*cobra.Command, *context) {
	var fleetFile string

	root := &cobra.Command{
		Use:   "devfleet",
		Short: "Development fleet supervisor",
		Long:  "devfleet launches a fleet of long-running development processes and tears them down together on interrupt.",
	}

	root.PersistentFlags().
		StringVarP(&fleetFile, "file", "f", "fleet.yaml", "Path to fleet definition")

	ctx := &context{fleetFile: &fleetFile}
	root.AddCommand(newRunCmd(ctx))
	root.AddCommand(newPlanCmd(ctx))
	root.AddCommand(newConfigCmd())

	root.SilenceUsage = true
	root.SilenceErrors = true

	return root, ctx
}

// Execute runs the CLI entrypoint. The first interrupt cancels the root
// context; further interrupts are absorbed so the shutdown sequence runs
// exactly once.
func Execute() {
	ctx, stop := signal.NotifyContext(stdcontext.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := NewRootCmd()
	root.SetContext(ctx)

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type context struct {
	fleetFile *string
}

func (c *context) loadFleet() (*config.Fleet, error) {
	return config.Load(*c.fleetFile)
}
