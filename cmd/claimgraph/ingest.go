// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/pdiddy/claimgraph/internal/jobs"
	"github.com/pdiddy/claimgraph/pkg/types"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [files...]",
	Short: "Ingest PDF files and process them to completion",
	Long: `Ingest submits each file and runs its job through parsing,
extraction, linking and contradiction detection before moving on.
Files whose bytes are already stored are skipped unless their last job
failed and --retry is set.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIngest,
}

// ingestSummary counts per-file outcomes.
type ingestSummary struct {
	Done, Skipped, Failed int
}

func runIngest(cmd *cobra.Command, args []string) error {
	retry, _ := cmd.Flags().GetBool("retry")

	a, err := openApp(cmd.Context(), true)
	if err != nil {
		return err
	}
	defer a.Close()

	summary := ingestFiles(cmd.Context(), a.orch, args, retry, os.Stdout)
	fmt.Fprintf(os.Stdout, "\n%d done, %d skipped, %d failed\n", summary.Done, summary.Skipped, summary.Failed)
	if summary.Failed > 0 {
		return fmt.Errorf("%d document(s) failed", summary.Failed)
	}
	return nil
}

func ingestFiles(ctx context.Context, o *jobs.Orchestrator, paths []string, retry bool, w io.Writer) ingestSummary {
	var s ingestSummary
	for i, path := range paths {
		fmt.Fprintf(w, "[%d/%d] %s ... ", i+1, len(paths), filepath.Base(path))

		job, err := ingestFile(ctx, o, path, retry)
		switch {
		case errors.Is(err, errSkipped):
			fmt.Fprintf(w, "already ingested (%s)\n", job.State)
			s.Skipped++
		case err != nil:
			fmt.Fprintf(w, "error: %v\n", err)
			s.Failed++
		case job.State == types.JobFailed:
			fmt.Fprintf(w, "failed: %s\n", describeJobError(job.Error))
			s.Failed++
		case !job.State.Terminal():
			fmt.Fprintf(w, "in progress elsewhere (%s)\n", job.State)
			s.Skipped++
		default:
			fmt.Fprintf(w, "%s (document %s)\n", job.State, shortID(job.DocumentID))
			s.Done++
		}
	}
	return s
}

var errSkipped = errors.New("skipped")

func ingestFile(ctx context.Context, o *jobs.Orchestrator, path string, retry bool) (types.Job, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return types.Job{}, err
	}
	sub, err := o.Submit(ctx, filepath.Base(path), data)
	if err != nil {
		return types.Job{}, err
	}

	job := sub.Job
	if sub.Duplicate {
		switch {
		case job.State == types.JobFailed && retry:
			if job, err = o.Resubmit(ctx, sub.Document.ID); err != nil {
				return types.Job{}, err
			}
		case job.State.Terminal():
			return job, errSkipped
		}
	}
	return o.Process(ctx, job.ID)
}

func describeJobError(e *types.JobError) string {
	if e == nil {
		return string(types.FailureInternal)
	}
	if e.Message == "" {
		return string(e.Reason)
	}
	return fmt.Sprintf("%s: %s", e.Reason, e.Message)
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}

func init() {
	ingestCmd.Flags().Bool("retry", false, "resubmit files whose last job failed")

	rootCmd.AddCommand(ingestCmd)
}
