// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package jobs runs the ingestion pipeline. Each submitted document gets a
// Job that moves queued → parsing → extracting → linking → detecting →
// done, or to failed from any of those states. Workers pick jobs from a
// queue; a supervisor fails jobs that stop making progress.
package jobs

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"golang.org/x/sync/errgroup"

	"github.com/pdiddy/claimgraph/internal/contradict"
	"github.com/pdiddy/claimgraph/internal/docstore"
	"github.com/pdiddy/claimgraph/internal/extract"
	"github.com/pdiddy/claimgraph/internal/knowledge"
	"github.com/pdiddy/claimgraph/internal/lexicon"
	"github.com/pdiddy/claimgraph/internal/logging"
	"github.com/pdiddy/claimgraph/internal/segment"
	"github.com/pdiddy/claimgraph/pkg/types"
)

// Deps are the stages the orchestrator drives.
type Deps struct {
	Documents *docstore.Store
	Jobs      *Store
	Segmenter *segment.Segmenter
	Extractor *extract.Engine
	Graph     *knowledge.Store
	Detector  *contradict.Detector
	Log       *logging.Logger
}

// Orchestrator owns job state. Nothing else transitions a job.
type Orchestrator struct {
	docs     *docstore.Store
	jobs     *Store
	seg      *segment.Segmenter
	ext      *extract.Engine
	graph    *knowledge.Store
	detector *contradict.Detector
	log      *logging.Logger

	cfg         types.OrchestratorConfig
	parallelism int
	queue       chan string

	// submitMu makes "store bytes, then find or create the job" atomic
	// across concurrent identical submissions.
	submitMu sync.Mutex
}

// New builds an orchestrator. cfg supplies the worker pool and supervisor
// settings; parallelism bounds concurrent extraction within one job.
func New(deps Deps, cfg types.OrchestratorConfig, parallelism int) *Orchestrator {
	log := deps.Log
	if log == nil {
		log = logging.Nop()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	if parallelism <= 0 {
		parallelism = 1
	}
	return &Orchestrator{
		docs:        deps.Documents,
		jobs:        deps.Jobs,
		seg:         deps.Segmenter,
		ext:         deps.Extractor,
		graph:       deps.Graph,
		detector:    deps.Detector,
		log:         log.With("component", "orchestrator"),
		cfg:         cfg,
		parallelism: parallelism,
		queue:       make(chan string, cfg.QueueSize),
	}
}

// Submission is the synchronous outcome of submitting a document.
type Submission struct {
	Document types.Document `json:"document" yaml:"document"`
	Job      types.Job      `json:"job" yaml:"job"`

	// Duplicate is true when the bytes were already stored; Job is then
	// the document's existing job.
	Duplicate bool `json:"duplicate" yaml:"duplicate"`
}

// Submit stores data and creates its job in state queued. Resubmitting
// bytes already stored returns the existing document and job without
// creating another. Processing continues asynchronously.
func (o *Orchestrator) Submit(ctx context.Context, filename string, data []byte) (Submission, error) {
	o.submitMu.Lock()
	defer o.submitMu.Unlock()

	doc, created, err := o.docs.Put(ctx, filename, data)
	if err != nil {
		return Submission{}, goerr.Wrap(err, "submitting document", goerr.V("filename", filename))
	}

	if !created {
		job, err := o.jobs.Latest(ctx, doc.ID)
		if err == nil {
			doc.Status = job.State
			return Submission{Document: doc, Job: job, Duplicate: true}, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return Submission{}, err
		}
		// Stored by a submission that stopped before creating its job.
	}

	job, err := o.jobs.Create(ctx, doc.ID)
	if err != nil {
		return Submission{}, err
	}
	o.enqueue(job.ID)
	o.log.Info("document submitted", "document_id", doc.ID, "filename", doc.Filename, "job_id", job.ID)

	doc.Status = job.State
	return Submission{Document: doc, Job: job, Duplicate: !created}, nil
}

// Resubmit starts attempt n+1 for a stored document. It fails with
// ErrJobActive while the current job is not terminal.
func (o *Orchestrator) Resubmit(ctx context.Context, docID string) (types.Job, error) {
	if _, err := o.docs.Get(ctx, docID); err != nil {
		return types.Job{}, err
	}

	o.submitMu.Lock()
	defer o.submitMu.Unlock()

	job, err := o.jobs.Create(ctx, docID)
	if err != nil {
		return types.Job{}, err
	}
	o.enqueue(job.ID)
	o.log.Info("document resubmitted", "document_id", docID, "job_id", job.ID, "attempt", job.Attempt)
	return job, nil
}

// Status returns the current job of a document.
func (o *Orchestrator) Status(ctx context.Context, docID string) (types.Job, error) {
	if _, err := o.docs.Get(ctx, docID); err != nil {
		return types.Job{}, err
	}
	return o.jobs.Latest(ctx, docID)
}

// History returns the transitions of a job.
func (o *Orchestrator) History(ctx context.Context, jobID string) ([]Transition, error) {
	return o.jobs.History(ctx, jobID)
}

// Document returns a document record with Status set from its current job.
func (o *Orchestrator) Document(ctx context.Context, docID string) (types.Document, error) {
	doc, err := o.docs.Get(ctx, docID)
	if err != nil {
		return types.Document{}, err
	}
	return o.withStatus(ctx, doc)
}

// Documents lists every document with its status.
func (o *Orchestrator) Documents(ctx context.Context) ([]types.Document, error) {
	docs, err := o.docs.List(ctx)
	if err != nil {
		return nil, err
	}
	for i := range docs {
		if docs[i], err = o.withStatus(ctx, docs[i]); err != nil {
			return nil, err
		}
	}
	return docs, nil
}

func (o *Orchestrator) withStatus(ctx context.Context, doc types.Document) (types.Document, error) {
	job, err := o.jobs.Latest(ctx, doc.ID)
	switch {
	case errors.Is(err, ErrNotFound):
	case err != nil:
		return types.Document{}, err
	default:
		doc.Status = job.State
	}
	return doc, nil
}

// enqueue hands a job to the workers. A full queue leaves the job queued
// in the store; the supervisor re-enqueues it.
func (o *Orchestrator) enqueue(jobID string) {
	select {
	case o.queue <- jobID:
	default:
		o.log.Warn("queue full, job left for the supervisor", "job_id", jobID)
	}
}

// Run starts the worker pool and the supervisor and blocks until ctx is
// done. Jobs left queued by a previous run are picked up first; jobs left
// mid-pipeline are failed with reason timeout once they are stale.
func (o *Orchestrator) Run(ctx context.Context) error {
	if err := o.requeue(ctx); err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	for i := range o.cfg.Workers {
		g.Go(func() error {
			o.work(ctx, i)
			return nil
		})
	}
	g.Go(func() error {
		o.supervise(ctx)
		return nil
	})
	return g.Wait()
}

func (o *Orchestrator) work(ctx context.Context, id int) {
	log := o.log.With("worker", id)
	for {
		select {
		case <-ctx.Done():
			return
		case jobID := <-o.queue:
			if _, err := o.Process(ctx, jobID); err != nil && ctx.Err() == nil {
				log.Err("processing job", err, "job_id", jobID)
			}
		}
	}
}

func (o *Orchestrator) supervise(ctx context.Context) {
	interval := o.cfg.SuperviseInterval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if o.cfg.StaleAfter > 0 {
			if _, err := o.ExpireStale(ctx, o.cfg.StaleAfter); err != nil && ctx.Err() == nil {
				o.log.Err("expiring stale jobs", err)
			}
		}
		if len(o.queue) == 0 {
			if err := o.requeue(ctx); err != nil && ctx.Err() == nil {
				o.log.Err("re-enqueueing jobs", err)
			}
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// requeue enqueues every job in state queued.
func (o *Orchestrator) requeue(ctx context.Context) error {
	queued, err := o.jobs.ListByState(ctx, types.JobQueued)
	if err != nil {
		return err
	}
	for _, job := range queued {
		o.enqueue(job.ID)
	}
	if len(queued) > 0 {
		o.log.Info("re-enqueued queued jobs", "count", len(queued))
	}
	return nil
}

// ExpireStale fails every non-terminal job that has not changed state for
// olderThan, with reason timeout. A worker still running such a job loses
// its next transition and abandons the run.
func (o *Orchestrator) ExpireStale(ctx context.Context, olderThan time.Duration) ([]types.Job, error) {
	stale, err := o.jobs.Stale(ctx, o.jobs.now().Add(-olderThan))
	if err != nil {
		return nil, err
	}

	var expired []types.Job
	for _, job := range stale {
		failed, err := o.jobs.Transition(ctx, job.ID, job.State, types.JobFailed, &types.JobError{
			Reason:  Classify(ErrTimeout),
			Message: fmt.Sprintf("%v: no progress in state %s for %s", ErrTimeout, job.State, olderThan),
		})
		if errors.Is(err, ErrConflict) {
			continue
		}
		if err != nil {
			return expired, err
		}
		o.log.Warn("job timed out", "job_id", job.ID, "document_id", job.DocumentID, "state", job.State)
		expired = append(expired, failed)
	}
	return expired, nil
}

// RunPending processes every queued job in submission order on the
// calling goroutine and returns the resulting jobs.
func (o *Orchestrator) RunPending(ctx context.Context) ([]types.Job, error) {
	queued, err := o.jobs.ListByState(ctx, types.JobQueued)
	if err != nil {
		return nil, err
	}
	var done []types.Job
	for _, job := range queued {
		result, err := o.Process(ctx, job.ID)
		if err != nil {
			return done, err
		}
		done = append(done, result)
	}
	return done, nil
}

// Process runs one job through the pipeline and returns it in its final
// state. A job that is no longer queued is returned as is. Pipeline
// failures are recorded on the job rather than returned; the error is
// non-nil only when the job could not be read or its outcome recorded,
// or ctx ended the run.
func (o *Orchestrator) Process(ctx context.Context, jobID string) (job types.Job, err error) {
	job, err = o.jobs.Get(ctx, jobID)
	if err != nil || job.State != types.JobQueued {
		return job, err
	}
	log := o.log.With("job_id", job.ID, "document_id", job.DocumentID, "attempt", job.Attempt)

	job, err = o.jobs.Transition(ctx, job.ID, types.JobQueued, types.JobParsing, nil)
	if errors.Is(err, ErrConflict) {
		log.Debug("job claimed by another worker")
		return o.jobs.Get(ctx, jobID)
	}
	if err != nil {
		return job, err
	}
	log.Info("job started")

	defer func() {
		if r := recover(); r != nil {
			log.Error("pipeline panic", "panic", r, "state", job.State)
			job, err = o.fail(ctx, log, job, fmt.Errorf("panic in state %s: %v", job.State, r))
		}
	}()

	runErr := o.run(ctx, log, &job)
	switch {
	case runErr == nil:
		log.Info("job done")
		return job, nil
	case errors.Is(runErr, ErrConflict):
		log.Warn("job changed state underneath the worker, abandoning run")
		return o.jobs.Get(context.WithoutCancel(ctx), jobID)
	case ctx.Err() != nil:
		log.Warn("job interrupted", "state", job.State)
		return job, ctx.Err()
	default:
		return o.fail(ctx, log, job, runErr)
	}
}

// run executes the stages after the job has been claimed. job is kept at
// the latest recorded state.
func (o *Orchestrator) run(ctx context.Context, log *logging.Logger, job *types.Job) error {
	docID := job.DocumentID

	// Parsing.
	data, err := o.docs.ReadBytes(ctx, docID)
	if err != nil {
		return err
	}
	seq, err := o.seg.Segment(ctx, docID, data)
	if err != nil {
		return goerr.Wrap(err, "segmenting document")
	}
	segs := seq.Collect()
	if err := o.docs.PutSegments(ctx, docID, segs); err != nil {
		return err
	}
	log.Info("document parsed", "pages", seq.Pages(), "segments", len(segs))
	if err := o.advance(ctx, job, types.JobExtracting); err != nil {
		return err
	}

	// Extracting.
	claims, citations, err := o.extractAll(ctx, log, segs)
	if err != nil {
		return err
	}
	claims = extract.ResolveSubjects(claims)
	inserted, retired, err := o.graph.ReplaceDocumentClaims(ctx, docID, extract.RuleVersion, claims)
	if err != nil {
		return err
	}
	log.Info("claims extracted", "claims", len(claims), "new", len(inserted), "retired", retired, "citations", len(citations))
	if err := o.advance(ctx, job, types.JobLinking); err != nil {
		return err
	}

	// Linking.
	bibliography, refSegments := extract.ParseBibliography(segs)
	linked := extract.Link(citations, bibliography, refSegments)
	n, err := o.graph.UpsertCitations(ctx, linked)
	if err != nil {
		return err
	}
	log.Info("citations linked", "bibliography", len(bibliography), "edges", len(linked), "new", n)
	if err := o.advance(ctx, job, types.JobDetecting); err != nil {
		return err
	}

	// Detecting. Every active comparable claim of the document is scanned,
	// not only the new ones, so a resubmission completes detection that
	// an earlier failed attempt never reached.
	active, err := o.graph.GetSubgraph(ctx, knowledge.SubgraphQuery{
		Keys:        lexicon.ComparableKeys(),
		DocumentIDs: []string{docID},
	})
	if err != nil {
		return err
	}
	edges, err := o.detector.Scan(ctx, active.Claims)
	if err != nil {
		return err
	}
	log.Info("contradictions detected", "compared", len(active.Claims), "new", len(edges))
	return o.advance(ctx, job, types.JobDone)
}

func (o *Orchestrator) advance(ctx context.Context, job *types.Job, to types.JobState) error {
	next, err := o.jobs.Transition(ctx, job.ID, job.State, to, nil)
	if err != nil {
		return err
	}
	*job = next
	return nil
}

type extracted struct {
	index  int
	result extract.Result
}

// extractAll runs the extractor over every segment with bounded
// parallelism. Results go into a shared buffer and are put back in
// segment order once all segments are done.
func (o *Orchestrator) extractAll(ctx context.Context, log *logging.Logger, segs []types.Segment) ([]types.Claim, []types.CitationEdge, error) {
	var (
		mu     sync.Mutex
		buffer = make([]extracted, 0, len(segs))
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.parallelism)
	for i, seg := range segs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res := o.ext.Extract(seg)
			mu.Lock()
			buffer = append(buffer, extracted{index: i, result: res})
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	slices.SortFunc(buffer, func(a, b extracted) int { return cmp.Compare(a.index, b.index) })

	var (
		claims    []types.Claim
		citations []types.CitationEdge
	)
	for _, e := range buffer {
		claims = append(claims, e.result.Claims...)
		citations = append(citations, e.result.Citations...)
		for _, d := range e.result.Degraded {
			log.Warn("extraction degraded", "variant", d.Variant, "segment_id", d.SegmentID, "reason", d.Reason)
		}
	}
	return claims, citations, nil
}

// fail records cause on the job. Recording is not cancelled with ctx so a
// failure found while shutting down is still stored.
func (o *Orchestrator) fail(ctx context.Context, log *logging.Logger, job types.Job, cause error) (types.Job, error) {
	ctx = context.WithoutCancel(ctx)
	reason := Classify(cause)
	failed, err := o.jobs.Transition(ctx, job.ID, job.State, types.JobFailed, &types.JobError{
		Reason:  reason,
		Message: cause.Error(),
	})
	if errors.Is(err, ErrConflict) {
		return o.jobs.Get(ctx, job.ID)
	}
	if err != nil {
		log.Err("recording job failure", err, "cause", cause.Error())
		return job, err
	}
	log.Err("job failed", cause, "reason", reason, "state", job.State)
	return failed, nil
}
