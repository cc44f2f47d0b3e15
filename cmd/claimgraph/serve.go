// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/pdiddy/claimgraph/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the ingestion workers",
	Long: `Serve starts the job workers and the HTTP API on the configured
address. Jobs left queued by a previous run are picked up at start;
jobs left mid-pipeline are failed with reason timeout once stale.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd.Context(), true)
	if err != nil {
		return err
	}
	defer a.Close()

	srv := server.New(a.orch, a.answers, a.detector, a.cfg.Server, a.log)

	g, ctx := errgroup.WithContext(cmd.Context())
	g.Go(func() error { return a.orch.Run(ctx) })
	g.Go(func() error { return srv.ListenAndServe(ctx) })
	return g.Wait()
}

func init() {
	serveCmd.Flags().String("addr", "", "listen address (overrides server.addr)")
	_ = viper.BindPFlag("server.addr", serveCmd.Flags().Lookup("addr"))

	rootCmd.AddCommand(serveCmd)
}
