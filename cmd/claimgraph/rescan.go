// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rescanCmd = &cobra.Command{
	Use:   "rescan",
	Short: "Recompute contradictions across the whole graph",
	Long: `Rescan compares every active claim with a comparable key against
every other and records any disagreeing pair not yet linked. Edges
already present are left as they are.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer a.Close()

		added, err := a.detector.Rescan(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "%d new contradictions\n", len(added))
		for _, e := range added {
			fmt.Fprintf(os.Stdout, "  %s\n", e.Rationale)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(rescanCmd)
}
