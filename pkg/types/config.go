// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// HTTPConfig holds shared HTTP settings used by components that make
// network requests.
type HTTPConfig struct {
	// Timeout is the HTTP request timeout.
	Timeout time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout"`

	// UserAgent is the User-Agent header sent with HTTP requests
	// (e.g. "litreview/0.1").
	UserAgent string `json:"user_agent" yaml:"user_agent" mapstructure:"user_agent"`
}

// LoggingConfig selects the structured logger's level, encoding and sink.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `json:"level" yaml:"level" mapstructure:"level"`

	// Format is json or console.
	Format string `json:"format" yaml:"format" mapstructure:"format"`

	// Output is stdout, stderr, or a file path.
	Output string `json:"output" yaml:"output" mapstructure:"output"`
}

// SearchConfig holds settings for the bibliographic search client.
type SearchConfig struct {
	HTTPConfig `yaml:",inline" mapstructure:",squash"`

	// APIKey is the optional NCBI API key; it raises the rate limit.
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty" mapstructure:"api_key"`

	// Email and Tool identify the caller to NCBI.
	Email string `json:"email,omitempty" yaml:"email,omitempty" mapstructure:"email"`
	Tool  string `json:"tool" yaml:"tool" mapstructure:"tool"`

	// FetchBatchSize is the number of ids per detail request (default 200).
	FetchBatchSize int `json:"fetch_batch_size" yaml:"fetch_batch_size" mapstructure:"fetch_batch_size"`

	// RequestsPerSecond caps the request rate (default 3, or 10 with an API key).
	RequestsPerSecond float64 `json:"requests_per_second" yaml:"requests_per_second" mapstructure:"requests_per_second"`

	// MaxRetries is the number of HTTP 429 retries. Zero disables retrying.
	MaxRetries int `json:"max_retries" yaml:"max_retries" mapstructure:"max_retries"`
}

// AIProviderName identifies the generative AI backend.
type AIProviderName string

const (
	ProviderOpenAI    AIProviderName = "openai"
	ProviderAnthropic AIProviderName = "anthropic"
)

// AIConfig holds shared settings for components that call a generative AI API.
type AIConfig struct {
	// Provider selects the backend: openai or anthropic.
	Provider AIProviderName `json:"provider" yaml:"provider" mapstructure:"provider" validate:"oneof=openai anthropic"`

	// Model is the model identifier.
	Model string `json:"model" yaml:"model" mapstructure:"model" validate:"required"`

	// APIKey is the authentication key for the AI API.
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty" mapstructure:"api_key"`

	// BaseURL overrides the API endpoint (OpenAI-compatible servers).
	BaseURL string `json:"base_url,omitempty" yaml:"base_url,omitempty" mapstructure:"base_url"`

	// MaxTokens bounds each completion.
	MaxTokens int `json:"max_tokens" yaml:"max_tokens" mapstructure:"max_tokens"`

	// Temperature is the sampling temperature.
	Temperature float32 `json:"temperature" yaml:"temperature" mapstructure:"temperature"`
}

// PipelineConfig holds run limits and per-phase timeouts.
type PipelineConfig struct {
	// MaxCandidates is the number of identifiers requested from search.
	MaxCandidates int `json:"max_candidates" yaml:"max_candidates" mapstructure:"max_candidates" validate:"gte=1"`

	// TopN is the number of ranked articles kept.
	TopN int `json:"top_n" yaml:"top_n" mapstructure:"top_n" validate:"gte=1"`

	// MaxConcurrentRuns bounds simultaneous runs (default 1).
	MaxConcurrentRuns int `json:"max_concurrent_runs" yaml:"max_concurrent_runs" mapstructure:"max_concurrent_runs" validate:"gte=1"`

	PlanTimeout      time.Duration `json:"plan_timeout" yaml:"plan_timeout" mapstructure:"plan_timeout"`
	SearchTimeout    time.Duration `json:"search_timeout" yaml:"search_timeout" mapstructure:"search_timeout"`
	FetchTimeout     time.Duration `json:"fetch_timeout" yaml:"fetch_timeout" mapstructure:"fetch_timeout"`
	RankTimeout      time.Duration `json:"rank_timeout" yaml:"rank_timeout" mapstructure:"rank_timeout"`
	SynthesisTimeout time.Duration `json:"synthesis_timeout" yaml:"synthesis_timeout" mapstructure:"synthesis_timeout"`
}

// StoreBackend identifies the knowledge store persistence engine.
type StoreBackend string

const (
	StoreSQLite StoreBackend = "sqlite"
	StoreBadger StoreBackend = "badger"
)

// StoreConfig holds settings for the knowledge store.
type StoreConfig struct {
	// Backend selects sqlite or badger.
	Backend StoreBackend `json:"backend" yaml:"backend" mapstructure:"backend" validate:"oneof=sqlite badger"`

	// Dir is the directory holding the database files.
	Dir string `json:"dir" yaml:"dir" mapstructure:"dir" validate:"required"`
}

// Config groups all component configurations.
type Config struct {
	Logging  LoggingConfig  `json:"logging" yaml:"logging" mapstructure:"logging"`
	Search   SearchConfig   `json:"search" yaml:"search" mapstructure:"search"`
	AI       AIConfig       `json:"ai" yaml:"ai" mapstructure:"ai"`
	Pipeline PipelineConfig `json:"pipeline" yaml:"pipeline" mapstructure:"pipeline"`
	Store    StoreConfig    `json:"store" yaml:"store" mapstructure:"store"`
}
