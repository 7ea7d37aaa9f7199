package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/placematch/internal/model"
)

var (
	indexCategory string
	indexForce    bool
)

var indexCmd = &cobra.Command{
	Use:   "index <location>",
	Short: "Index restaurant listings for a location",
	Long: `Queries every configured provider for restaurant listings in the given
location, reconciles them into entities, and prints a summary. A completed
run for the same location and category within the cache window is reused
unless --force is set.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		location := args[0]

		e, err := buildEnv(ctx, cfg)
		if err != nil {
			return err
		}
		defer e.Close()

		job, cached, err := e.Jobs.CreateOrReuse(ctx, location, indexCategory, indexForce)
		if err != nil {
			return err
		}
		if cached {
			fmt.Printf("reusing run %s completed %s\n", job.ID, job.CompletedAt.Format("2006-01-02 15:04:05"))
			printResult(job.Result)
			return nil
		}

		fmt.Printf("job %s queued\n", job.ID)
		if err := runPendingJobs(ctx, e, job.ID); err != nil {
			return err
		}

		done, err := e.Jobs.Get(ctx, job.ID)
		if err != nil {
			return err
		}
		if done.Status == model.JobFailed {
			return fmt.Errorf("job failed: %s", done.Error)
		}
		printResult(done.Result)
		return nil
	},
}

// runPendingJobs drains the pending queue in order, stopping once the job
// with the given id has been processed.
func runPendingJobs(ctx context.Context, e *env, untilID string) error {
	for {
		job, err := e.Store.ClaimNextPending(ctx)
		if err != nil {
			return err
		}
		if job == nil {
			return nil
		}

		progress := func(p model.Progress) {
			if p.RecordName != "" {
				fmt.Printf("  [%s] %s %d/%d (%.0f%%) %s\n", p.Provider, p.Phase, p.Current, p.Total, p.Percent, p.RecordName)
			} else {
				fmt.Printf("  [%s] %s\n", p.Provider, p.Phase)
			}
			if err := e.Store.UpdateJobProgress(ctx, job.ID, &p); err != nil {
				zap.L().Warn("progress update failed", zap.Error(err))
			}
		}

		result, err := e.Indexer.Run(ctx, job.Location, job.Category, progress)
		if err != nil {
			if markErr := e.Store.MarkJobFailed(ctx, job.ID, err.Error()); markErr != nil {
				zap.L().Error("mark failed errored", zap.Error(markErr))
			}
		} else if err := e.Store.MarkJobCompleted(ctx, job.ID, result); err != nil {
			return err
		}

		if job.ID == untilID {
			return nil
		}
	}
}

func printResult(r *model.JobResult) {
	if r == nil {
		return
	}
	fmt.Printf("indexed %d places: %d created, %d merged, %d updated\n", r.Total, r.Created, r.Merged, r.Updated)
	for _, p := range r.SkippedProviders {
		fmt.Printf("  skipped provider: %s\n", p)
	}
	for _, w := range r.Warnings {
		fmt.Printf("  warning: %s\n", w)
	}
}

func init() {
	indexCmd.Flags().StringVarP(&indexCategory, "category", "c", "", "cuisine or category filter, e.g. sushi")
	indexCmd.Flags().BoolVar(&indexForce, "force", false, "re-index even when a recent run exists")
	rootCmd.AddCommand(indexCmd)
}
