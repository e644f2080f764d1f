// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pipeline

import (
	"context"
	"errors"
	"iter"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/litreview-engine/internal/ai/aitest"
	"github.com/pdiddy/litreview-engine/internal/metrics"
	"github.com/pdiddy/litreview-engine/internal/planner"
	"github.com/pdiddy/litreview-engine/internal/rank"
	"github.com/pdiddy/litreview-engine/internal/search"
	"github.com/pdiddy/litreview-engine/internal/synthesis"
	"github.com/pdiddy/litreview-engine/pkg/types"
)

// --- fakes ---

type fakePlanner struct {
	err error
}

func (f *fakePlanner) Plan(_ context.Context, topic string, _ planner.Filters) (types.GeneratedQuery, error) {
	if f.err != nil {
		return types.GeneratedQuery{}, f.err
	}
	return types.GeneratedQuery{Query: topic + "[tiab]", Rationale: "r"}, nil
}

type fakeSearcher struct {
	searchErr error
	fetchErr  error
	block     bool
	gotMax    int
}

func (f *fakeSearcher) Search(ctx context.Context, _ string, maxResults int) ([]string, error) {
	f.gotMax = maxResults
	if f.block {
		<-ctx.Done()
		return nil, &search.ServiceError{Op: "search", Err: ctx.Err()}
	}
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	return []string{"1", "2", "3"}, nil
}

func (f *fakeSearcher) FetchDetails(_ context.Context, ids []string) ([]types.ArticleRecord, error) {
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	var out []types.ArticleRecord
	for _, id := range ids {
		out = append(out, types.ArticleRecord{Identifier: id, Title: "Title " + id})
	}
	return out, nil
}

type fakeRanker struct {
	err error
}

func (f *fakeRanker) Rank(_ context.Context, _ string, candidates []types.ArticleRecord, topN int) (rank.Result, error) {
	if f.err != nil {
		return rank.Result{}, f.err
	}
	var arts []types.ArticleRecord
	for i, c := range candidates[:min(topN, len(candidates))] {
		c.RelevanceScore = float64(90 - i*10)
		c.Keywords = []string{"k"}
		arts = append(arts, c)
	}
	return rank.Result{
		Articles:           arts,
		Insights:           []types.Insight{{Question: "q", Answer: "a", SupportingIdentifiers: []string{"1"}}},
		KeywordFrequencies: rank.KeywordFrequencies(arts),
		Rejected:           []rank.Rejection{{Identifier: "999", Reason: "not a candidate"}},
	}, nil
}

func newOrchestrator(p QueryPlanner, s Searcher, r Ranker, chunks []string, m *metrics.Metrics) (*Orchestrator, *aitest.Provider) {
	fake := &aitest.Provider{Chunks: chunks}
	o := New(Deps{
		Planner:     p,
		Searcher:    s,
		Ranker:      r,
		Synthesizer: &synthesis.Streamer{Provider: fake},
		Metrics:     m,
	}, types.PipelineConfig{TopN: 2})
	return o, fake
}

func collect(seq iter.Seq[Event]) []Event {
	var evs []Event
	for ev := range seq {
		evs = append(evs, ev)
	}
	return evs
}

func phases(evs []Event) []Phase {
	var out []Phase
	for _, ev := range evs {
		if len(out) == 0 || out[len(out)-1] != ev.Phase {
			out = append(out, ev.Phase)
		}
	}
	return out
}

// --- tests ---

func TestRunHappyPath(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	chunks := []string{"Statins ", "", "help ", "[1]."}
	o, _ := newOrchestrator(&fakePlanner{}, &fakeSearcher{}, &fakeRanker{}, chunks, m)

	evs := collect(o.Run(context.Background(), Request{Topic: "statins"}))

	assert.Equal(t, []Phase{
		PhasePlanning, PhaseSearching, PhaseFetchingDetails, PhaseRanking, PhaseStreamingSynthesis, PhaseDone,
	}, phases(evs))

	// The ranking output is emitted before synthesis starts.
	var partial *types.Report
	for _, ev := range evs {
		if ev.Phase == PhaseRanking && ev.Report != nil {
			partial = ev.Report
		}
	}
	require.NotNil(t, partial)
	assert.False(t, partial.Final)
	assert.Empty(t, partial.Synthesis)
	assert.Len(t, partial.Articles, 2)
	assert.Equal(t, "statins[tiab]", partial.Queries[0].Query)
	assert.NotEmpty(t, partial.Insights)
	assert.NotEmpty(t, partial.KeywordFrequencies)

	var streamed strings.Builder
	for _, ev := range evs {
		if ev.Chunk != "" {
			streamed.WriteString(ev.Chunk)
			assert.Equal(t, streamed.String(), ev.Report.Synthesis)
			assert.False(t, ev.Report.Final)
		}
	}

	final := evs[len(evs)-1]
	require.Equal(t, PhaseDone, final.Phase)
	require.NoError(t, final.Err)
	assert.True(t, final.Report.Final)
	assert.Equal(t, "Statins help [1].", final.Report.Synthesis)
	assert.Equal(t, streamed.String(), final.Report.Synthesis)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.RunsTotal.WithLabelValues("done")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RankingRejected))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.SynthesisChunks))
}

func TestRunDropsIdentifiersTheRankerInvented(t *testing.T) {
	ranked := `{
  "articles": [
    {"identifier": "2", "relevance_score": 80, "relevance_explanation": "on topic", "keywords": ["statins"], "article_type": "Review", "ai_abstract": "s2"},
    {"identifier": "99999999", "relevance_score": 99, "relevance_explanation": "made up", "keywords": ["statins"], "article_type": "", "ai_abstract": ""}
  ],
  "insights": [
    {"question": "Q", "answer": "A", "supporting_identifiers": ["2", "99999999"]}
  ]
}`
	r := &rank.Ranker{Provider: &aitest.Provider{Responses: []string{ranked}}}
	m := metrics.New(prometheus.NewRegistry())
	o, _ := newOrchestrator(&fakePlanner{}, &fakeSearcher{}, r, []string{"Statins [1]."}, m)

	evs := collect(o.Run(context.Background(), Request{Topic: "statins"}))
	final := evs[len(evs)-1]
	require.Equal(t, PhaseDone, final.Phase)
	require.NoError(t, final.Err)

	for _, ev := range evs {
		if ev.Report == nil {
			continue
		}
		for _, a := range ev.Report.Articles {
			assert.NotEqual(t, "99999999", a.Identifier, "phase %s", ev.Phase)
		}
		for _, in := range ev.Report.Insights {
			assert.NotContains(t, in.SupportingIdentifiers, "99999999")
		}
	}

	require.Len(t, final.Report.Articles, 1)
	assert.Equal(t, "2", final.Report.Articles[0].Identifier)
	assert.Equal(t, "Title 2", final.Report.Articles[0].Title, "bibliographic fields come from the search")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RankingRejected))
}

func TestRunSnapshotsAreIndependent(t *testing.T) {
	o, _ := newOrchestrator(&fakePlanner{}, &fakeSearcher{}, &fakeRanker{}, []string{"a", "b"}, nil)

	var first *types.Report
	for ev := range o.Run(context.Background(), Request{Topic: "x"}) {
		if ev.Chunk == "a" {
			first = ev.Report
		}
	}
	require.NotNil(t, first)
	assert.Equal(t, "a", first.Synthesis)
}

func TestRunFailures(t *testing.T) {
	planErr := &planner.PlanningError{Topic: "x", Err: errors.New("no query")}
	emptyErr := &search.EmptyResultError{Query: "x[tiab]"}
	fetchErr := &search.DetailsFetchError{Requested: 3}
	rankErr := &rank.RankingValidationError{Returned: 2}

	tests := []struct {
		name       string
		p          QueryPlanner
		s          Searcher
		r          Ranker
		wantErr    error
		lastPhase  Phase
		wantReport bool
	}{
		{"planning", &fakePlanner{err: planErr}, &fakeSearcher{}, &fakeRanker{}, planErr, PhasePlanning, false},
		{"empty search", &fakePlanner{}, &fakeSearcher{searchErr: emptyErr}, &fakeRanker{}, emptyErr, PhaseSearching, false},
		{"details", &fakePlanner{}, &fakeSearcher{fetchErr: fetchErr}, &fakeRanker{}, fetchErr, PhaseFetchingDetails, false},
		{"ranking", &fakePlanner{}, &fakeSearcher{}, &fakeRanker{err: rankErr}, rankErr, PhaseRanking, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o, fake := newOrchestrator(tt.p, tt.s, tt.r, []string{"never"}, nil)
			evs := collect(o.Run(context.Background(), Request{Topic: "x"}))

			require.GreaterOrEqual(t, len(evs), 2)
			last := evs[len(evs)-1]
			assert.Equal(t, PhaseFailed, last.Phase)
			assert.Same(t, tt.wantErr, last.Err, "error must be surfaced unmodified")
			assert.Equal(t, tt.lastPhase, evs[len(evs)-2].Phase)
			assert.Nil(t, last.Report)
			assert.Equal(t, 0, fake.Opened)
		})
	}
}

func TestRunSynthesisFailureKeepsPartialReport(t *testing.T) {
	fake := &aitest.Provider{Chunks: []string{"partial"}, ChunkErr: errors.New("stream reset")}
	o := New(Deps{
		Planner:     &fakePlanner{},
		Searcher:    &fakeSearcher{},
		Ranker:      &fakeRanker{},
		Synthesizer: &synthesis.Streamer{Provider: fake},
	}, types.PipelineConfig{})

	report, err := Collect(o.Run(context.Background(), Request{Topic: "x"}), nil)
	require.EqualError(t, err, "stream reset")
	require.NotNil(t, report)
	assert.False(t, report.Final)
	assert.Equal(t, "partial", report.Synthesis)
}

func TestRunEarlyStopReleasesGuard(t *testing.T) {
	o, fake := newOrchestrator(&fakePlanner{}, &fakeSearcher{}, &fakeRanker{}, []string{"a"}, nil)

	for ev := range o.Run(context.Background(), Request{Topic: "x"}) {
		if ev.Phase == PhaseSearching {
			break
		}
	}
	assert.Equal(t, 0, fake.Opened)

	report, err := Collect(o.Run(context.Background(), Request{Topic: "x"}), nil)
	require.NoError(t, err)
	assert.True(t, report.Final)
}

func TestRunPhaseTimeout(t *testing.T) {
	o := New(Deps{
		Planner:     &fakePlanner{},
		Searcher:    &fakeSearcher{block: true},
		Ranker:      &fakeRanker{},
		Synthesizer: &synthesis.Streamer{Provider: &aitest.Provider{}},
	}, types.PipelineConfig{SearchTimeout: 10 * time.Millisecond})

	_, err := Collect(o.Run(context.Background(), Request{Topic: "x"}), nil)
	var sErr *search.ServiceError
	require.True(t, errors.As(err, &sErr), "got %v", err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRunDuplicateAndConcurrencyGuards(t *testing.T) {
	o, _ := newOrchestrator(&fakePlanner{}, &fakeSearcher{}, &fakeRanker{}, []string{"a"}, nil)

	next, stop := iter.Pull(o.Run(context.Background(), Request{Topic: "Statins  in elderly"}))
	defer stop()
	ev, ok := next()
	require.True(t, ok)
	require.Equal(t, PhasePlanning, ev.Phase)

	_, err := Collect(o.Run(context.Background(), Request{Topic: "statins in ELDERLY"}), nil)
	assert.ErrorIs(t, err, ErrDuplicateRun)

	_, err = Collect(o.Run(context.Background(), Request{Topic: "something else"}), nil)
	assert.ErrorIs(t, err, ErrRunInProgress)

	stop()
	_, err = Collect(o.Run(context.Background(), Request{Topic: "something else"}), nil)
	assert.NoError(t, err)
}

func TestRunUsesDefaults(t *testing.T) {
	s := &fakeSearcher{}
	o, _ := newOrchestrator(&fakePlanner{}, s, &fakeRanker{}, []string{"a"}, nil)
	_, err := Collect(o.Run(context.Background(), Request{Topic: "x"}), nil)
	require.NoError(t, err)
	assert.Equal(t, 50, s.gotMax)
}

func TestFingerprint(t *testing.T) {
	a := Fingerprint(Request{Topic: "Statins  elderly", Filters: planner.Filters{ArticleTypes: []string{"Review", "Trial"}}})
	b := Fingerprint(Request{Topic: "statins elderly", Filters: planner.Filters{ArticleTypes: []string{"trial", "review"}}})
	c := Fingerprint(Request{Topic: "statins elderly", Filters: planner.Filters{OpenAccessOnly: true}})
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}

func TestPhaseTransitions(t *testing.T) {
	assert.True(t, PhaseIdle.CanTransition(PhasePlanning))
	assert.False(t, PhaseIdle.CanTransition(PhaseRanking))
	assert.True(t, PhaseRanking.CanTransition(PhaseFailed))
	assert.False(t, PhaseDone.CanTransition(PhaseFailed))
	assert.False(t, PhaseFailed.CanTransition(PhasePlanning))
	assert.True(t, PhaseStreamingSynthesis.CanTransition(PhaseDone))
}
