package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	runJobID uint

	runCmd = &cobra.Command{
		Use:   "run",
		Short: "Perform one scheduling pass, or one job by id",
		Args:  cobra.NoArgs,
		RunE:  runOnce,
	}
)

func init() {
	runCmd.Flags().UintVar(&runJobID, "job", 0, "run only the job with this id, whatever its status")
	rootCmd.AddCommand(runCmd)
}

func runOnce(cmd *cobra.Command, _ []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	sched := a.newScheduler()
	if runJobID == 0 {
		return sched.RunScheduledPass(cmd.Context())
	}

	j, err := sched.RunJob(cmd.Context(), runJobID)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "job %d: %s (%d/%d bytes, %d errors)\n", j.ID, j.Status, j.Downloaded, j.FileSize, j.ErrorCount)
	return nil
}
