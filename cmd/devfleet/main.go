package main

import (
	"github.com/devfleet/devfleet/internal/cli"
	"github.com/devfleet/devfleet/internal/metrics"
)

func main() {
	metrics.EmitBuildInfo()
	cli.Execute()
}
