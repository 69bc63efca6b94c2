package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newPlanCmd(ctx *context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Validate the fleet definition and show the launch order",
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := ctx.loadFleet()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Fleet %s (%d processes)\n", doc.Fleet.Name, len(doc.Processes))
			fmt.Fprintln(out, "Launch order:")
			for i, spec := range doc.Processes {
				fmt.Fprintf(out, "  %d. %s: %s\n", i+1, spec.Label, strings.Join(spec.Command, " "))
			}
			if doc.Release != nil {
				fmt.Fprintf(out, "Release mode sets %s=%s for every process.\n", doc.Release.Env, doc.Release.Value)
			}
			fmt.Fprintf(out, "Grace period: %s\n", doc.Defaults.Grace.Duration)
			return nil
		},
	}
	return cmd
}
