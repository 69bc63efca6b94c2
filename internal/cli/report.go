package cli

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/devfleet/devfleet/internal/engine"
)

func printReport(out io.Writer, report *engine.TerminationReport) {
	if report == nil {
		return
	}
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "PROCESS\tOUTCOME\tEXIT\tERROR")
	for _, entry := range report.Entries {
		exit := "-"
		if entry.ExitCode >= 0 {
			exit = fmt.Sprintf("%d", entry.ExitCode)
		}
		errMsg := "-"
		if entry.Err != nil {
			errMsg = entry.Err.Error()
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", entry.Label, entry.Outcome, exit, errMsg)
	}
	w.Flush()
	fmt.Fprintf(out, "Shutdown completed in %s.\n", report.Duration.Truncate(time.Millisecond))
}
