// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/pdiddy/litreview-engine/internal/ai"
	"github.com/pdiddy/litreview-engine/internal/knowledge"
	"github.com/pdiddy/litreview-engine/internal/logger"
	"github.com/pdiddy/litreview-engine/internal/metrics"
	"github.com/pdiddy/litreview-engine/internal/pipeline"
	"github.com/pdiddy/litreview-engine/internal/planner"
	"github.com/pdiddy/litreview-engine/internal/rank"
	"github.com/pdiddy/litreview-engine/internal/search"
	"github.com/pdiddy/litreview-engine/internal/secrets"
	"github.com/pdiddy/litreview-engine/internal/synthesis"
	"github.com/pdiddy/litreview-engine/pkg/types"
)

func setDefaults() {
	viper.SetDefault("logging.level", "warn")
	viper.SetDefault("logging.format", "console")
	viper.SetDefault("logging.output", "stderr")

	viper.SetDefault("search.timeout", 30*time.Second)
	viper.SetDefault("search.user_agent", "litreview/"+version)
	viper.SetDefault("search.tool", "litreview")
	viper.SetDefault("search.fetch_batch_size", 200)
	viper.SetDefault("search.max_retries", 0)

	viper.SetDefault("ai.provider", string(types.ProviderOpenAI))
	viper.SetDefault("ai.model", "gpt-4o-mini")
	viper.SetDefault("ai.max_tokens", 4096)
	viper.SetDefault("ai.temperature", 0.2)

	viper.SetDefault("pipeline.max_candidates", 50)
	viper.SetDefault("pipeline.top_n", 10)
	viper.SetDefault("pipeline.max_concurrent_runs", 1)
	viper.SetDefault("pipeline.plan_timeout", 60*time.Second)
	viper.SetDefault("pipeline.search_timeout", 60*time.Second)
	viper.SetDefault("pipeline.fetch_timeout", 2*time.Minute)
	viper.SetDefault("pipeline.rank_timeout", 3*time.Minute)
	viper.SetDefault("pipeline.synthesis_timeout", 5*time.Minute)

	viper.SetDefault("store.backend", string(types.StoreSQLite))
	viper.SetDefault("store.dir", "knowledge")
}

// loadConfig decodes viper settings, fills credentials from the loaded
// secrets and validates the result.
func loadConfig() (types.Config, error) {
	var cfg types.Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("decoding config: %w", err)
	}
	secrets.Apply(&cfg, loadedSecrets)
	if err := types.ValidateConfig(cfg); err != nil {
		return cfg, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// app bundles what every subcommand needs.
type app struct {
	cfg      types.Config
	log      *zap.Logger
	registry *prometheus.Registry
	metrics  *metrics.Metrics
	store    *knowledge.Store
	unwatch  func()
}

// newApp loads configuration, builds the logger and opens the store.
func newApp(ctx context.Context) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	log, err := logger.New(cfg.Logging)
	if err != nil {
		return nil, err
	}

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	backend, err := knowledge.OpenBackend(cfg.Store)
	if err != nil {
		return nil, err
	}
	store, err := knowledge.Open(ctx, backend, log.Named("knowledge"), m)
	if err != nil {
		backend.Close()
		return nil, err
	}
	log.Debug("store opened",
		zap.String("backend", string(cfg.Store.Backend)),
		zap.String("dir", filepath.Clean(cfg.Store.Dir)))

	unwatch := watchStore(store, log.Named("knowledge"))

	return &app{cfg: cfg, log: log, registry: reg, metrics: m, store: store, unwatch: unwatch}, nil
}

// watchStore logs every committed store change at debug level.
func watchStore(store *knowledge.Store, log *zap.Logger) func() {
	return store.Subscribe(func(c knowledge.Change) {
		log.Debug("store changed",
			zap.String("kind", string(c.Kind)),
			zap.Strings("ids", c.IDs))
	})
}

func (a *app) Close() error {
	a.unwatch()
	err := a.store.Close()
	_ = a.log.Sync()
	return err
}

// orchestrator wires the pipeline stages to the configured services.
func (a *app) orchestrator() (*pipeline.Orchestrator, error) {
	provider, err := ai.NewProvider(a.cfg.AI, &http.Client{}, a.log.Named("ai"))
	if err != nil {
		return nil, err
	}
	model := a.cfg.AI.Model
	deps := pipeline.Deps{
		Planner:     &planner.Planner{Provider: provider, Model: model, Logger: a.log.Named("planner")},
		Searcher:    search.NewPubMed(a.cfg.Search, &http.Client{Timeout: a.cfg.Search.Timeout}, a.log.Named("pubmed")),
		Ranker:      &rank.Ranker{Provider: provider, Model: model, Logger: a.log.Named("rank")},
		Synthesizer: &synthesis.Streamer{Provider: provider, Model: model, Logger: a.log.Named("synthesis")},
		Logger:      a.log.Named("pipeline"),
		Metrics:     a.metrics,
	}
	return pipeline.New(deps, a.cfg.Pipeline), nil
}
