// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pdiddy/claimgraph/pkg/types"
)

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Answer a question from the knowledge graph",
	Long: `Ask answers a natural-language question using only claims in the
knowledge graph, quoting each with its document and page. When no claim
supports an answer, ask prints the refusal instead.

Use --doc to restrict the evidence to specific documents.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

func runAsk(cmd *cobra.Command, args []string) error {
	docIDs, _ := cmd.Flags().GetStringSlice("doc")
	jsonOutput, _ := cmd.Flags().GetBool("json")

	a, err := openApp(cmd.Context(), false)
	if err != nil {
		return err
	}
	defer a.Close()

	ans, err := a.answers.Answer(cmd.Context(), types.Question{
		Text:        strings.Join(args, " "),
		DocumentIDs: docIDs,
	})
	if err != nil {
		return err
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(ans)
	}

	if ans.Refused() {
		fmt.Fprintf(os.Stdout, "No answer (%s): %s\n", ans.Refusal.Reason, ans.Refusal.Message)
		return nil
	}
	fmt.Fprint(os.Stdout, ans.Text)
	fmt.Fprintf(os.Stdout, "\n%d citations (graph revision %d)\n", len(ans.Citations), ans.Revision)
	return nil
}

func init() {
	askCmd.Flags().StringSlice("doc", nil, "restrict evidence to these document IDs")
	askCmd.Flags().Bool("json", false, "output as JSON")

	rootCmd.AddCommand(askCmd)
}
