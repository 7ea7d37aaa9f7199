package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/placematch/internal/model"
)

var jobsLimit int

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Inspect indexing jobs",
}

var jobsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent jobs, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		e, err := buildEnv(ctx, cfg)
		if err != nil {
			return err
		}
		defer e.Close()

		list, err := e.Jobs.List(ctx, jobsLimit)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tSTATUS\tLOCATION\tCATEGORY\tCREATED")
		for _, j := range list {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
				j.ID, j.Status, j.Location, orDash(j.Category), j.CreatedAt.Format("2006-01-02 15:04:05"))
		}
		return w.Flush()
	},
}

var jobsGetCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Show one job in detail",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		e, err := buildEnv(ctx, cfg)
		if err != nil {
			return err
		}
		defer e.Close()

		job, err := e.Jobs.Get(ctx, args[0])
		if err != nil {
			return err
		}
		if job == nil {
			return eris.Errorf("job %s not found", args[0])
		}

		fmt.Printf("id:       %s\n", job.ID)
		fmt.Printf("status:   %s\n", job.Status)
		fmt.Printf("location: %s\n", job.Location)
		fmt.Printf("category: %s\n", orDash(job.Category))
		fmt.Printf("created:  %s\n", job.CreatedAt.Format("2006-01-02 15:04:05"))
		if job.StartedAt != nil {
			fmt.Printf("started:  %s\n", job.StartedAt.Format("2006-01-02 15:04:05"))
		}
		if job.CompletedAt != nil {
			fmt.Printf("finished: %s\n", job.CompletedAt.Format("2006-01-02 15:04:05"))
		}
		if job.Status == model.JobRunning && job.Progress != nil {
			p := job.Progress
			fmt.Printf("progress: [%s] %s %d/%d (%.0f%%)\n", p.Provider, p.Phase, p.Current, p.Total, p.Percent)
		}
		if job.Error != "" {
			fmt.Printf("error:    %s\n", job.Error)
		}
		printResult(job.Result)
		return nil
	},
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func init() {
	jobsListCmd.Flags().IntVarP(&jobsLimit, "limit", "n", 20, "maximum jobs to list")
	jobsCmd.AddCommand(jobsListCmd)
	jobsCmd.AddCommand(jobsGetCmd)
	rootCmd.AddCommand(jobsCmd)
}
