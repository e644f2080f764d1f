// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package pipeline drives one research run: plan a query, search, fetch
// details, rank, and stream a synthesis. Progress is delivered as a lazy
// sequence of events that the caller pulls.
package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"iter"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/pdiddy/litreview-engine/internal/logger"
	"github.com/pdiddy/litreview-engine/internal/metrics"
	"github.com/pdiddy/litreview-engine/internal/planner"
	"github.com/pdiddy/litreview-engine/internal/rank"
	"github.com/pdiddy/litreview-engine/pkg/types"
)

var (
	// ErrDuplicateRun is returned when a run with the same topic and
	// filters is already in flight.
	ErrDuplicateRun = errors.New("an identical research run is already in progress")

	// ErrRunInProgress is returned when the concurrent run limit is reached.
	ErrRunInProgress = errors.New("too many research runs in progress")

	// ErrNoResult is returned by Collect when the sequence ended without
	// a terminal event.
	ErrNoResult = errors.New("run ended before completion")
)

// QueryPlanner produces the search query for a topic.
type QueryPlanner interface {
	Plan(ctx context.Context, topic string, f planner.Filters) (types.GeneratedQuery, error)
}

// Searcher is the bibliographic search client.
type Searcher interface {
	Search(ctx context.Context, query string, maxResults int) ([]string, error)
	FetchDetails(ctx context.Context, ids []string) ([]types.ArticleRecord, error)
}

// Ranker scores candidates.
type Ranker interface {
	Rank(ctx context.Context, topic string, candidates []types.ArticleRecord, topN int) (rank.Result, error)
}

// Synthesizer streams the narrative.
type Synthesizer interface {
	Stream(ctx context.Context, articles []types.ArticleRecord, focus string) iter.Seq2[string, error]
}

// Request is one research run.
type Request struct {
	Topic         string
	Filters       planner.Filters
	MaxCandidates int
	TopN          int
	Focus         string
}

// Event is one step of a run. Report, when set, is a snapshot owned by
// the receiver. Chunk is set only on synthesis deltas and Err only on
// the Failed event.
type Event struct {
	Phase  Phase
	Report *types.Report
	Chunk  string
	Err    error
}

// Deps are the phase implementations.
type Deps struct {
	Planner     QueryPlanner
	Searcher    Searcher
	Ranker      Ranker
	Synthesizer Synthesizer
	Logger      *zap.Logger
	Metrics     *metrics.Metrics
}

// Orchestrator runs research requests.
type Orchestrator struct {
	deps Deps
	cfg  types.PipelineConfig
	log  *zap.Logger
	sem  *semaphore.Weighted

	mu     sync.Mutex
	active map[string]string
}

// New builds an orchestrator. Zero limits in cfg take defaults.
func New(deps Deps, cfg types.PipelineConfig) *Orchestrator {
	if cfg.MaxCandidates <= 0 {
		cfg.MaxCandidates = 50
	}
	if cfg.TopN <= 0 {
		cfg.TopN = 10
	}
	if cfg.MaxConcurrentRuns <= 0 {
		cfg.MaxConcurrentRuns = 1
	}
	log := logger.OrNop(deps.Logger)
	return &Orchestrator{
		deps:   deps,
		cfg:    cfg,
		log:    log,
		sem:    semaphore.NewWeighted(int64(cfg.MaxConcurrentRuns)),
		active: make(map[string]string),
	}
}

// Fingerprint identifies a request by its normalized topic and filters.
func Fingerprint(req Request) string {
	f := req.Filters
	f.ArticleTypes = slices.Clone(f.ArticleTypes)
	for i, t := range f.ArticleTypes {
		f.ArticleTypes[i] = strings.ToLower(strings.TrimSpace(t))
	}
	slices.Sort(f.ArticleTypes)
	filters, _ := json.Marshal(f)

	h := sha256.New()
	h.Write([]byte(strings.Join(strings.Fields(strings.ToLower(req.Topic)), " ")))
	h.Write([]byte{0})
	h.Write(filters)
	return hex.EncodeToString(h.Sum(nil))[:16]
}

func (o *Orchestrator) acquire(fp, runID string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, ok := o.active[fp]; ok {
		return ErrDuplicateRun
	}
	if !o.sem.TryAcquire(1) {
		return ErrRunInProgress
	}
	o.active[fp] = runID
	return nil
}

func (o *Orchestrator) release(fp string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.active, fp)
	o.sem.Release(1)
}

// Run returns the event sequence for req. Nothing happens until the
// caller starts ranging. Stopping early cancels the run and releases its
// guards. The sequence ends after a Done or Failed event.
func (o *Orchestrator) Run(ctx context.Context, req Request) iter.Seq[Event] {
	return func(yield func(Event) bool) {
		runID := uuid.NewString()
		fp := Fingerprint(req)
		if err := o.acquire(fp, runID); err != nil {
			o.log.Warn("run refused", zap.String("topic", req.Topic), zap.Error(err))
			yield(Event{Phase: PhaseFailed, Err: err})
			return
		}
		defer o.release(fp)

		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		if req.MaxCandidates <= 0 {
			req.MaxCandidates = o.cfg.MaxCandidates
		}
		if req.TopN <= 0 {
			req.TopN = o.cfg.TopN
		}

		r := &run{
			o:     o,
			req:   req,
			phase: PhaseIdle,
			yield: yield,
			log:   o.log.With(zap.String("run_id", runID)),
		}
		result := r.execute(ctx)
		o.deps.Metrics.RunFinished(result)
		r.log.Info("run finished", zap.String("result", result), zap.String("topic", req.Topic))
	}
}

// Collect drains a run and returns the final report, or the error carried
// by the Failed event. onEvent, when non-nil, sees every event first.
func Collect(seq iter.Seq[Event], onEvent func(Event)) (*types.Report, error) {
	for ev := range seq {
		if onEvent != nil {
			onEvent(ev)
		}
		switch ev.Phase {
		case PhaseDone:
			return ev.Report, nil
		case PhaseFailed:
			return ev.Report, ev.Err
		}
	}
	return nil, ErrNoResult
}

// run holds the mutable state of one execution.
type run struct {
	o      *Orchestrator
	req    Request
	phase  Phase
	report *types.Report
	yield  func(Event) bool
	log    *zap.Logger
}

// errStopped marks a consumer that stopped pulling.
var errStopped = errors.New("consumer stopped")

// enter moves to phase p and emits its event.
func (r *run) enter(p Phase, ev Event) error {
	if !r.phase.CanTransition(p) {
		r.log.Error("invalid phase transition", zap.String("from", string(r.phase)), zap.String("to", string(p)))
		return errors.New("invalid phase transition from " + string(r.phase) + " to " + string(p))
	}
	r.phase = p
	ev.Phase = p
	r.log.Debug("phase entered", zap.String("phase", string(p)))
	if !r.yield(ev) {
		return errStopped
	}
	return nil
}

// emit re-emits the current phase with extra payload.
func (r *run) emit(ev Event) error {
	ev.Phase = r.phase
	if !r.yield(ev) {
		return errStopped
	}
	return nil
}

func (r *run) snapshot() *types.Report {
	return r.report.Clone()
}

// timed runs fn under the phase timeout and records its duration.
func (r *run) timed(ctx context.Context, timeout time.Duration, fn func(context.Context) error) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	start := time.Now()
	err := fn(ctx)
	outcome := "ok"
	switch {
	case errors.Is(err, errStopped):
		outcome = "cancelled"
	case err != nil:
		outcome = "error"
	}
	r.o.deps.Metrics.ObservePhase(string(r.phase), outcome, time.Since(start).Seconds())
	return err
}

// execute walks the phases and returns the terminal result label.
func (r *run) execute(ctx context.Context) string {
	err := r.phases(ctx)
	switch {
	case err == nil:
		return "done"
	case errors.Is(err, errStopped):
		return "cancelled"
	}

	r.log.Warn("run failed", zap.String("phase", string(r.phase)), zap.Error(err))
	ev := Event{Err: err}
	if r.report != nil {
		ev.Report = r.snapshot()
	}
	r.phase = PhaseFailed
	ev.Phase = PhaseFailed
	r.yield(ev)
	return "failed"
}

func (r *run) phases(ctx context.Context) error {
	cfg := r.o.cfg
	deps := r.o.deps

	if err := r.enter(PhasePlanning, Event{}); err != nil {
		return err
	}
	var query types.GeneratedQuery
	if err := r.timed(ctx, cfg.PlanTimeout, func(ctx context.Context) (err error) {
		query, err = deps.Planner.Plan(ctx, r.req.Topic, r.req.Filters)
		return err
	}); err != nil {
		return err
	}

	if err := r.enter(PhaseSearching, Event{}); err != nil {
		return err
	}
	var ids []string
	if err := r.timed(ctx, cfg.SearchTimeout, func(ctx context.Context) (err error) {
		ids, err = deps.Searcher.Search(ctx, query.Query, r.req.MaxCandidates)
		return err
	}); err != nil {
		return err
	}
	r.log.Debug("search complete", zap.Int("identifiers", len(ids)))

	if err := r.enter(PhaseFetchingDetails, Event{}); err != nil {
		return err
	}
	var candidates []types.ArticleRecord
	if err := r.timed(ctx, cfg.FetchTimeout, func(ctx context.Context) (err error) {
		candidates, err = deps.Searcher.FetchDetails(ctx, ids)
		return err
	}); err != nil {
		return err
	}

	if err := r.enter(PhaseRanking, Event{}); err != nil {
		return err
	}
	var ranked rank.Result
	if err := r.timed(ctx, cfg.RankTimeout, func(ctx context.Context) (err error) {
		ranked, err = deps.Ranker.Rank(ctx, r.req.Topic, candidates, r.req.TopN)
		return err
	}); err != nil {
		return err
	}
	deps.Metrics.Rejected(len(ranked.Rejected))

	r.report = &types.Report{
		Topic:              r.req.Topic,
		Queries:            []types.GeneratedQuery{query},
		Articles:           ranked.Articles,
		Insights:           ranked.Insights,
		KeywordFrequencies: ranked.KeywordFrequencies,
	}
	if err := r.emit(Event{Report: r.snapshot()}); err != nil {
		return err
	}

	if err := r.enter(PhaseStreamingSynthesis, Event{Report: r.snapshot()}); err != nil {
		return err
	}
	var sb strings.Builder
	if err := r.timed(ctx, cfg.SynthesisTimeout, func(ctx context.Context) error {
		for chunk, err := range deps.Synthesizer.Stream(ctx, types.CloneArticles(r.report.Articles), r.req.Focus) {
			if err != nil {
				return err
			}
			sb.WriteString(chunk)
			r.report.Synthesis = sb.String()
			deps.Metrics.Chunk()
			if err := r.emit(Event{Report: r.snapshot(), Chunk: chunk}); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		return err
	}

	r.report.Final = true
	if err := r.enter(PhaseDone, Event{Report: r.snapshot()}); err != nil && !errors.Is(err, errStopped) {
		return err
	}
	return nil
}
