//go:build mage

package main

import (
	"fmt"
	"path/filepath"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

// papersGlob selects the PDFs Ingest submits.
const papersGlob = "papers/*.pdf"

// Serve builds the CLI and runs the HTTP API against ./data.
func Serve() error {
	mg.Deps(Build, Init)
	return sh.RunV(binPath, "serve", "--data-dir", "data")
}

// Ingest builds the CLI and ingests every PDF in papers/.
func Ingest() error {
	mg.Deps(Build, Init)
	files, err := filepath.Glob(papersGlob)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		fmt.Printf("[ingest] No files match %s.\n", papersGlob)
		return nil
	}
	return sh.RunV(binPath, append([]string{"ingest", "--data-dir", "data"}, files...)...)
}

// Rescan recomputes contradictions across the local graph.
func Rescan() error {
	mg.Deps(Build)
	return sh.RunV(binPath, "rescan", "--data-dir", "data")
}
