// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package ai is the boundary to the generative AI services used by the
// planner, ranker and synthesis streamer. Each service implements
// Provider; callers never see vendor types.
package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/pdiddy/litreview-engine/pkg/types"
)

// Request is one generation call. When Schema is set the provider is
// asked for a JSON object matching it.
type Request struct {
	Model       string
	System      string
	User        string
	Schema      json.RawMessage
	SchemaName  string
	MaxTokens   int
	Temperature float32
}

// TextStream yields text deltas in arrival order. Recv returns io.EOF
// after the last delta.
type TextStream interface {
	Recv() (string, error)
	Close() error
}

// Provider generates text from a prompt.
type Provider interface {
	Generate(ctx context.Context, req Request) (string, error)
	Stream(ctx context.Context, req Request) (TextStream, error)
}

// NewProvider builds the provider selected by cfg.Provider. Request
// fields left zero are filled from cfg.
func NewProvider(cfg types.AIConfig, client *http.Client, log *zap.Logger) (Provider, error) {
	if log == nil {
		log = zap.NewNop()
	}
	switch cfg.Provider {
	case types.ProviderOpenAI, "":
		return NewOpenAIProvider(cfg, client, log), nil
	case types.ProviderAnthropic:
		return &AnthropicProvider{
			APIKey:      cfg.APIKey,
			Model:       cfg.Model,
			MaxTokens:   cfg.MaxTokens,
			Temperature: cfg.Temperature,
			Client:      client,
			Logger:      log,
		}, nil
	default:
		return nil, fmt.Errorf("unknown AI provider %q", cfg.Provider)
	}
}
