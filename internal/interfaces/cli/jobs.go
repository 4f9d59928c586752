package cli

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/cro-platform/molcore/internal/infrastructure/monitoring/logging"
)

var jobsShowID string

// newJobsCmd builds the "jobs" subcommand: inspect a prediction job's
// current state against a running molcore server.
func newJobsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect prediction jobs",
		Long:  "jobs looks up a prediction job's state, attempt count, and last error.",
		RunE:  runJobsShow,
	}

	cmd.Flags().StringVar(&jobsShowID, "show", "", "prediction job id to inspect (required)")

	return cmd
}

func runJobsShow(cmd *cobra.Command, args []string) error {
	cliCtx, err := GetCLIContext(cmd)
	if err != nil {
		return err
	}
	logger := cliCtx.Logger

	if jobsShowID == "" {
		logger.Error("missing required flag", logging.String("flag", "--show"))
		os.Exit(ExitValidationFailed)
	}
	if cliCtx.Client == nil {
		logger.Error("API client unavailable")
		os.Exit(ExitGeneralFailure)
	}

	job, err := cliCtx.Client.Predictions().Get(cmd.Context(), jobsShowID)
	if err != nil {
		logger.Error("get job failed", logging.String("job_id", jobsShowID), logging.Err(err))
		os.Exit(exitCodeFor(err))
	}

	return PrintResult(cmd, job)
}
