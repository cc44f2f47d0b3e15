// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/claimgraph/pkg/types"
)

func resetViper(t *testing.T) {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)
	setDefaults(types.DefaultConfig())
	viper.SetEnvPrefix("CLAIMGRAPH")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
}

func TestLoadConfigDefaults(t *testing.T) {
	resetViper(t)
	cfg, err := loadConfig()
	require.NoError(t, err)
	assert.Equal(t, types.DefaultConfig(), cfg)
}

func TestLoadConfigEnvironment(t *testing.T) {
	t.Setenv("CLAIMGRAPH_ORCHESTRATOR_WORKERS", "5")
	t.Setenv("CLAIMGRAPH_QUERY_CACHE_TTL", "90s")
	t.Setenv("CLAIMGRAPH_SEGMENTER_BACKEND", "pdftotext")
	resetViper(t)

	cfg, err := loadConfig()
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.Orchestrator.Workers)
	assert.Equal(t, 90*time.Second, cfg.Query.CacheTTL)
	assert.Equal(t, types.BackendPdftotext, cfg.Segmenter.Backend)
}

func TestLoadConfigRejectsInvalid(t *testing.T) {
	t.Setenv("CLAIMGRAPH_SEGMENTER_BACKEND", "grobid")
	resetViper(t)

	_, err := loadConfig()
	assert.ErrorContains(t, err, "segmenter.backend")
}
