// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the knowledge graph to YAML or JSON",
	Long: `Export writes the active claims, citations and contradictions of
the graph (or of the documents given with --doc) to stdout or to
--output.`,
	Args: cobra.NoArgs,
	RunE: runExport,
}

func runExport(cmd *cobra.Command, args []string) error {
	format, _ := cmd.Flags().GetString("format")
	output, _ := cmd.Flags().GetString("output")
	docIDs, _ := cmd.Flags().GetStringSlice("doc")

	a, err := openApp(cmd.Context(), false)
	if err != nil {
		return err
	}
	defer a.Close()

	var w io.Writer = os.Stdout
	if output != "" {
		f, err := os.Create(output)
		if err != nil {
			return fmt.Errorf("creating %s: %w", output, err)
		}
		defer f.Close()
		w = f
	}

	switch format {
	case "yaml", "":
		err = a.graph.ExportYAML(cmd.Context(), w, docIDs)
	case "json":
		err = a.graph.ExportJSON(cmd.Context(), w, docIDs)
	default:
		return fmt.Errorf("unsupported format %q: use yaml or json", format)
	}
	if err != nil {
		return err
	}
	if output != "" {
		fmt.Fprintf(os.Stderr, "Exported to %s\n", output)
	}
	return nil
}

func init() {
	exportCmd.Flags().String("format", "yaml", "output format: yaml or json")
	exportCmd.Flags().StringP("output", "o", "", "write to this file instead of stdout")
	exportCmd.Flags().StringSlice("doc", nil, "export only these document IDs")

	rootCmd.AddCommand(exportCmd)
}
