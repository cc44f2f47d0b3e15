// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package main is the entry point for the claimgraph CLI and server.
// Documents are ingested into a local knowledge graph of page-cited
// claims; questions are answered from that graph or refused.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/claimgraph/pkg/types"
)

// version is set at build time via ldflags.
var version = "dev"

// rootCmd is the base command for the claimgraph CLI.
var rootCmd = &cobra.Command{
	Use:   "claimgraph",
	Short: "Extract page-cited claims from papers and answer questions from them",
	Long: `claimgraph ingests PDF papers into a knowledge graph of typed claims.
Every claim carries the document and page it was read from. Claims from
different papers that disagree on a training setting are linked as
contradictions.

Questions are answered only from claims in the graph, quoting them with
their citations; when the graph holds no supporting claim the answer is
an explicit refusal.

Run "claimgraph serve" for the HTTP API, or use ingest, status, ask,
rescan and export directly against the local data directory.`,
	SilenceUsage: true,
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("config", "", "config file (default: ./claimgraph.yaml or ~/.config/claimgraph/claimgraph.yaml)")
	rootCmd.PersistentFlags().String("data-dir", "", "data directory (overrides storage.data_dir)")
	_ = viper.BindPFlag("storage.data_dir", rootCmd.PersistentFlags().Lookup("data-dir"))
}

func initConfig() {
	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("claimgraph")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "claimgraph"))
		}
	}

	setDefaults(types.DefaultConfig())

	viper.SetEnvPrefix("CLAIMGRAPH")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// setDefaults registers every key so environment variables bind even when
// no config file mentions them.
func setDefaults(d types.Config) {
	viper.SetDefault("storage.data_dir", d.Storage.DataDir)

	viper.SetDefault("segmenter.backend", string(d.Segmenter.Backend))
	viper.SetDefault("segmenter.min_segment_chars", d.Segmenter.MinSegmentChars)

	viper.SetDefault("extraction.parallelism", d.Extraction.Parallelism)

	viper.SetDefault("orchestrator.workers", d.Orchestrator.Workers)
	viper.SetDefault("orchestrator.queue_size", d.Orchestrator.QueueSize)
	viper.SetDefault("orchestrator.stale_after", d.Orchestrator.StaleAfter)
	viper.SetDefault("orchestrator.supervise_interval", d.Orchestrator.SuperviseInterval)

	viper.SetDefault("query.max_claims", d.Query.MaxClaims)
	viper.SetDefault("query.cache_ttl", d.Query.CacheTTL)

	viper.SetDefault("server.addr", d.Server.Addr)
	viper.SetDefault("server.max_upload_bytes", d.Server.MaxUploadBytes)
	viper.SetDefault("server.submit_rate", d.Server.SubmitRate)
	viper.SetDefault("server.submit_burst", d.Server.SubmitBurst)

	viper.SetDefault("log.mode", d.Log.Mode)
}

// loadConfig decodes the merged flag, environment, file and default
// settings.
func loadConfig() (types.Config, error) {
	var cfg types.Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return types.Config{}, fmt.Errorf("decoding config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return types.Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}
