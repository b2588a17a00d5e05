package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/yarkm13/fetchopusd/internal/job"
)

var (
	jobsFile   string
	jobsStatus string
	purgeYes   bool

	jobsCmd = &cobra.Command{
		Use:   "jobs",
		Short: "Manage transfer jobs",
	}

	jobsCreateCmd = &cobra.Command{
		Use:   "create",
		Short: "Queue the jobs described in a YAML file",
		Args:  cobra.NoArgs,
		RunE:  createJobs,
	}

	jobsListCmd = &cobra.Command{
		Use:   "list",
		Short: "List transfer jobs in execution order",
		Args:  cobra.NoArgs,
		RunE:  listJobs,
	}

	jobsPurgeCmd = &cobra.Command{
		Use:   "purge",
		Short: "Delete every job with the given status",
		Args:  cobra.NoArgs,
		RunE:  purgeJobs,
	}
)

func init() {
	jobsCreateCmd.Flags().StringVarP(&jobsFile, "file", "f", "", "job file, - for stdin")
	cobra.CheckErr(jobsCreateCmd.MarkFlagRequired("file"))

	jobsListCmd.Flags().StringVar(&jobsStatus, "status", "", "only list jobs with this status")

	jobsPurgeCmd.Flags().StringVar(&jobsStatus, "status", "", "status of the jobs to delete (DONE, ERROR, ...)")
	jobsPurgeCmd.Flags().BoolVarP(&purgeYes, "yes", "y", false, "do not ask for confirmation")
	cobra.CheckErr(jobsPurgeCmd.MarkFlagRequired("status"))

	jobsCmd.AddCommand(jobsCreateCmd, jobsListCmd, jobsPurgeCmd)
	rootCmd.AddCommand(jobsCmd)
}

func parseStatus(s string) (job.Status, error) {
	status := job.Status(strings.ToUpper(s))
	switch status {
	case "", job.StatusCreated, job.StatusDoing, job.StatusDone, job.StatusError:
		return status, nil
	}
	return "", errors.Errorf("unknown status %q", s)
}

func createJobs(cmd *cobra.Command, _ []string) error {
	var r io.Reader = cmd.InOrStdin()
	if jobsFile != "-" {
		f, err := os.Open(jobsFile)
		if err != nil {
			return err
		}
		defer f.Close()
		r = f
	}
	jobs, err := job.ParseJobFile(r)
	if err != nil {
		return err
	}

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.svc.Create(cmd.Context(), jobs); err != nil {
		return err
	}
	for _, j := range jobs {
		fmt.Fprintf(cmd.OutOrStdout(), "created job %d (rank %d): %s -> %s\n", j.ID, j.Rank, j.Source(), j.Target())
	}
	return nil
}

func listJobs(cmd *cobra.Command, _ []string) error {
	status, err := parseStatus(jobsStatus)
	if err != nil {
		return err
	}
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	jobs, err := a.svc.List(cmd.Context(), status)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tRANK\tSTATUS\tSCHEDULING\tSOURCE\tTARGET\tPROGRESS\tERRORS")
	for _, j := range jobs {
		fmt.Fprintf(w, "%d\t%d\t%s\t%s\t%s\t%s\t%d/%d\t%d\n",
			j.ID, j.Rank, j.Status, j.Scheduling, j.Source(), j.Target(), j.Downloaded, j.FileSize, j.ErrorCount)
	}
	return w.Flush()
}

func purgeJobs(cmd *cobra.Command, _ []string) error {
	status, err := parseStatus(jobsStatus)
	if err != nil {
		return err
	}
	if status == "" {
		return errors.New("--status is required")
	}
	if !purgeYes && !promptToContinue(fmt.Sprintf("Delete every %s job?", status)) {
		return nil
	}

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	n, err := a.svc.Purge(cmd.Context(), status)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "deleted %d jobs\n", n)
	return nil
}
