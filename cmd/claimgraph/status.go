// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/pdiddy/claimgraph/internal/jobs"
	"github.com/pdiddy/claimgraph/pkg/types"
)

var statusCmd = &cobra.Command{
	Use:   "status [document-id]",
	Short: "Show documents and their ingestion jobs",
	Long: `Status lists every stored document with the state of its current
job. Given a document ID, it shows that document's current job and the
job's state transitions.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStatus,
}

type statusOutput struct {
	Document types.Document    `json:"document"`
	Job      *types.Job        `json:"job,omitempty"`
	History  []jobs.Transition `json:"history,omitempty"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	jsonOutput, _ := cmd.Flags().GetBool("json")

	a, err := openApp(cmd.Context(), false)
	if err != nil {
		return err
	}
	defer a.Close()
	ctx := cmd.Context()

	if len(args) == 0 {
		docs, err := a.orch.Documents(ctx)
		if err != nil {
			return err
		}
		return formatDocuments(docs, jsonOutput)
	}

	doc, err := a.orch.Document(ctx, args[0])
	if err != nil {
		return err
	}
	out := statusOutput{Document: doc}
	job, err := a.orch.Status(ctx, doc.ID)
	switch {
	case errors.Is(err, jobs.ErrNotFound):
	case err != nil:
		return err
	default:
		out.Job = &job
		if out.History, err = a.orch.History(ctx, job.ID); err != nil {
			return err
		}
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	fmt.Fprintf(os.Stdout, "Document:  %s\n", doc.ID)
	fmt.Fprintf(os.Stdout, "Filename:  %s\n", doc.Filename)
	fmt.Fprintf(os.Stdout, "Size:      %d bytes\n", doc.Size)
	fmt.Fprintf(os.Stdout, "Uploaded:  %s\n", doc.UploadedAt.Format(time.RFC3339))
	if out.Job == nil {
		fmt.Fprintln(os.Stdout, "Job:       none")
		return nil
	}
	fmt.Fprintf(os.Stdout, "Job:       %s (attempt %d)\n", job.ID, job.Attempt)
	fmt.Fprintf(os.Stdout, "State:     %s\n", job.State)
	if job.Error != nil {
		fmt.Fprintf(os.Stdout, "Error:     %s\n", describeJobError(job.Error))
	}
	fmt.Fprintln(os.Stdout, "\nTransitions:")
	for _, tr := range out.History {
		fmt.Fprintf(os.Stdout, "  %s  %-10s -> %s\n", tr.At.Format(time.RFC3339), tr.From, tr.To)
	}
	return nil
}

func formatDocuments(docs []types.Document, jsonOutput bool) error {
	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(docs)
	}

	if len(docs) == 0 {
		fmt.Println("No documents.")
		return nil
	}

	fmt.Fprintf(os.Stdout, "%-12s  %-40s  %-10s  %s\n", "Document", "Filename", "Status", "Uploaded")
	fmt.Fprintln(os.Stdout, strings.Repeat("-", 90))
	for _, d := range docs {
		name := d.Filename
		if len(name) > 40 {
			name = name[:37] + "..."
		}
		status := string(d.Status)
		if status == "" {
			status = "-"
		}
		fmt.Fprintf(os.Stdout, "%-12s  %-40s  %-10s  %s\n",
			shortID(d.ID), name, status, d.UploadedAt.Format(time.RFC3339))
	}
	fmt.Fprintf(os.Stdout, "\n%d documents\n", len(docs))
	return nil
}

func init() {
	statusCmd.Flags().Bool("json", false, "output as JSON")

	rootCmd.AddCommand(statusCmd)
}
