// Package process launches and terminates local child processes on behalf of
// the supervisor.
//
// Full process-group termination is only guaranteed on Linux, where children
// are started in their own process group and signals reach every member of
// the group. On macOS the same mechanism is used but job-control semantics
// are weaker, and on Windows the Stop and Kill routines deliver an interrupt
// and, if necessary, terminate only the top-level process; grandchildren may
// survive and must be cleaned up separately by the caller.
package process
