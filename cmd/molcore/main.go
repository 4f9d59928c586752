// Command molcore is the operational CLI: ingest --file --owner --mapping
// for a one-shot upload, jobs --show id to inspect a prediction job, and
// replay-events --since seq to re-emit outbound events from the audit log
// against a running molcore API server.
package main

import (
	"os"

	"github.com/cro-platform/molcore/internal/interfaces/cli"
)

// Build-time variables injected via ldflags.
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func init() {
	cli.Version = version
	cli.GitCommit = commit
	cli.BuildDate = buildDate
}

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(cli.ExitGeneralFailure)
	}
}
