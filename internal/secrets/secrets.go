// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package secrets loads API keys and credentials from a directory of plain-text files
// or from a dotenv file. In a secrets directory each file is one secret: the filename
// is the key name and the file contents (trimmed) are the value.
//
// Supported keys: pubmed-api-key, pubmed-email, openai-api-key, anthropic-api-key.
package secrets

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"

	"github.com/pdiddy/litreview-engine/pkg/types"
)

// Key names recognized by Apply.
const (
	PubMedAPIKey    = "pubmed-api-key"
	PubMedEmail     = "pubmed-email"
	OpenAIAPIKey    = "openai-api-key"
	AnthropicAPIKey = "anthropic-api-key"
)

// Load reads all files in dir and returns a map of filename to trimmed contents.
// A missing directory or missing files are not errors; Load returns an empty map.
// Unreadable files produce a warning on stderr but do not abort.
func Load(dir string) (map[string]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("reading secrets directory %s: %w", dir, err)
	}

	secrets := make(map[string]string)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}

		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			fmt.Fprintf(os.Stderr, "warning: could not read secret %s: %v\n", name, err)
			continue
		}

		value := strings.TrimSpace(string(data))
		if value != "" {
			secrets[name] = value
		}
	}

	return secrets, nil
}

// LoadDotEnv reads a dotenv file and returns its values under secret key
// names: PUBMED_API_KEY becomes pubmed-api-key. A missing file returns an
// empty map.
func LoadDotEnv(path string) (map[string]string, error) {
	vars, err := godotenv.Read(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("reading env file %s: %w", path, err)
	}

	secrets := make(map[string]string, len(vars))
	for k, v := range vars {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		secrets[strings.ReplaceAll(strings.ToLower(k), "_", "-")] = v
	}
	return secrets, nil
}

// Merge combines secret maps; later maps win.
func Merge(maps ...map[string]string) map[string]string {
	out := make(map[string]string)
	for _, m := range maps {
		for k, v := range m {
			out[k] = v
		}
	}
	return out
}

// Apply fills credentials left empty in cfg from secrets. Values already
// set by configuration are kept.
func Apply(cfg *types.Config, secrets map[string]string) {
	fill := func(dst *string, key string) {
		if *dst == "" {
			*dst = secrets[key]
		}
	}
	fill(&cfg.Search.APIKey, PubMedAPIKey)
	fill(&cfg.Search.Email, PubMedEmail)

	switch cfg.AI.Provider {
	case types.ProviderAnthropic:
		fill(&cfg.AI.APIKey, AnthropicAPIKey)
	default:
		fill(&cfg.AI.APIKey, OpenAIAPIKey)
	}
}
