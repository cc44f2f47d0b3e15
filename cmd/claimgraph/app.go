// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"

	"github.com/pdiddy/claimgraph/internal/answer"
	"github.com/pdiddy/claimgraph/internal/contradict"
	"github.com/pdiddy/claimgraph/internal/docstore"
	"github.com/pdiddy/claimgraph/internal/extract"
	"github.com/pdiddy/claimgraph/internal/jobs"
	"github.com/pdiddy/claimgraph/internal/knowledge"
	"github.com/pdiddy/claimgraph/internal/logging"
	"github.com/pdiddy/claimgraph/internal/segment"
	"github.com/pdiddy/claimgraph/internal/sqlite"
	"github.com/pdiddy/claimgraph/pkg/types"
)

// app holds the components shared by the commands, all over one database.
type app struct {
	cfg      types.Config
	log      *logging.Logger
	db       *sqlite.DB
	docs     *docstore.Store
	graph    *knowledge.Store
	detector *contradict.Detector
	orch     *jobs.Orchestrator
	answers  *answer.Engine
}

// openApp loads the configuration and wires the components. The page
// source is only set up when ingest is true, so read-only commands work
// without the pdftotext container runtime.
func openApp(ctx context.Context, ingest bool) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	log, err := logging.New(cfg.Log.Mode)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}

	db, err := sqlite.Open(cfg.Storage.DataDir)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, log: log, db: db}

	if err := a.wire(ctx, ingest); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) wire(ctx context.Context, ingest bool) error {
	var err error
	if a.docs, err = docstore.New(a.db, a.cfg.Storage.DataDir); err != nil {
		return err
	}
	jobStore, err := jobs.NewStore(a.db)
	if err != nil {
		return err
	}
	if a.graph, err = knowledge.New(a.db); err != nil {
		return err
	}
	a.detector = contradict.New(a.graph)

	var seg *segment.Segmenter
	if ingest {
		src, err := segment.NewSource(ctx, a.cfg.Segmenter)
		if err != nil {
			return fmt.Errorf("setting up %s page source: %w", a.cfg.Segmenter.Backend, err)
		}
		seg = segment.New(src, a.cfg.Segmenter.MinSegmentChars)
	}

	a.orch = jobs.New(jobs.Deps{
		Documents: a.docs,
		Jobs:      jobStore,
		Segmenter: seg,
		Extractor: extract.New(),
		Graph:     a.graph,
		Detector:  a.detector,
		Log:       a.log,
	}, a.cfg.Orchestrator, a.cfg.Extraction.Parallelism)

	a.answers = answer.New(a.graph, a.docs, a.cfg.Query, a.log)
	return nil
}

// Close flushes the logger and closes the database.
func (a *app) Close() {
	a.log.Sync()
	a.db.Close()
}
