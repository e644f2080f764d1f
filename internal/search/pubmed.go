// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/pdiddy/litreview-engine/internal/httputil"
	"github.com/pdiddy/litreview-engine/pkg/types"
)

// eutilsBase is the NCBI E-utilities root. Declared as a var so tests
// can substitute an httptest server.
var eutilsBase = "https://eutils.ncbi.nlm.nih.gov/entrez/eutils"

const (
	defaultFetchBatch = 200
	defaultTool       = "litreview"

	// NCBI allows 3 requests/s anonymously and 10 with an API key.
	anonymousRPS = 3
	keyedRPS     = 10
)

// PubMedBackend queries PubMed through ESearch and EFetch.
type PubMedBackend struct {
	caller *httputil.Caller
	cfg    types.SearchConfig
	log    *zap.Logger
}

// NewPubMed builds a PubMed client. The request rate defaults to the
// NCBI limit for the configured credentials.
func NewPubMed(cfg types.SearchConfig, client *http.Client, log *zap.Logger) *PubMedBackend {
	if log == nil {
		log = zap.NewNop()
	}
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	rps := cfg.RequestsPerSecond
	if rps == 0 {
		rps = anonymousRPS
		if cfg.APIKey != "" {
			rps = keyedRPS
		}
	}
	if cfg.FetchBatchSize <= 0 {
		cfg.FetchBatchSize = defaultFetchBatch
	}
	if cfg.Tool == "" {
		cfg.Tool = defaultTool
	}
	return &PubMedBackend{
		caller: httputil.NewCaller(client, rps, cfg.MaxRetries, log),
		cfg:    cfg,
		log:    log,
	}
}

// Name returns the backend identifier.
func (b *PubMedBackend) Name() string { return "pubmed" }

// commonParams returns the parameters NCBI asks every caller to send.
func (b *PubMedBackend) commonParams() url.Values {
	v := url.Values{}
	v.Set("db", "pubmed")
	v.Set("tool", b.cfg.Tool)
	if b.cfg.Email != "" {
		v.Set("email", b.cfg.Email)
	}
	if b.cfg.APIKey != "" {
		v.Set("api_key", b.cfg.APIKey)
	}
	return v
}

type esearchResponse struct {
	Result struct {
		Count  string   `json:"count"`
		IDList []string `json:"idlist"`
		Error  string   `json:"ERROR"`
	} `json:"esearchresult"`
	Error string `json:"error"`
}

// Search runs ESearch sorted by relevance.
func (b *PubMedBackend) Search(ctx context.Context, query string, maxResults int) ([]string, error) {
	if strings.TrimSpace(query) == "" {
		return nil, &ServiceError{Op: "search", Err: errors.New("empty query")}
	}
	if maxResults <= 0 {
		maxResults = 20
	}

	params := b.commonParams()
	params.Set("term", query)
	params.Set("retmax", strconv.Itoa(maxResults))
	params.Set("retmode", "json")
	params.Set("sort", "relevance")

	body, err := b.post(ctx, "search", "/esearch.fcgi", params)
	if err != nil {
		return nil, err
	}

	var resp esearchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &ServiceError{Op: "search", Err: fmt.Errorf("decoding response: %w", err)}
	}
	if msg := firstNonEmpty(resp.Error, resp.Result.Error); msg != "" {
		return nil, &ServiceError{Op: "search", Err: errors.New(msg)}
	}

	ids := make([]string, 0, len(resp.Result.IDList))
	for _, id := range resp.Result.IDList {
		if id = strings.TrimSpace(id); id != "" && !slices.Contains(ids, id) {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return nil, &EmptyResultError{Query: query}
	}

	b.log.Debug("pubmed search", zap.String("count", resp.Result.Count), zap.Int("returned", len(ids)))
	return ids, nil
}

// FetchDetails runs EFetch in batches. A failed batch is logged and
// skipped; the call fails only when no record at all resolves.
func (b *PubMedBackend) FetchDetails(ctx context.Context, ids []string) ([]types.ArticleRecord, error) {
	var (
		records []types.ArticleRecord
		seen    = make(map[string]bool)
		lastErr error
	)
	for batch := range slices.Chunk(ids, b.cfg.FetchBatchSize) {
		params := b.commonParams()
		params.Set("id", strings.Join(batch, ","))
		params.Set("retmode", "xml")
		params.Set("rettype", "abstract")

		body, err := b.post(ctx, "fetch details", "/efetch.fcgi", params)
		if err != nil {
			if ctx.Err() != nil {
				return nil, &DetailsFetchError{Requested: len(ids), Err: err}
			}
			b.log.Warn("pubmed fetch batch failed", zap.Int("batch_size", len(batch)), zap.Error(err))
			lastErr = err
			continue
		}

		parsed, err := parseArticleSet(body)
		if err != nil {
			b.log.Warn("pubmed fetch batch unparseable", zap.Int("batch_size", len(batch)), zap.Error(err))
			lastErr = &ServiceError{Op: "fetch details", Err: err}
			continue
		}
		for _, r := range parsed {
			if seen[r.Identifier] {
				continue
			}
			seen[r.Identifier] = true
			records = append(records, r)
		}
	}

	if len(records) == 0 {
		return nil, &DetailsFetchError{Requested: len(ids), Err: lastErr}
	}
	if dropped := len(ids) - len(records); dropped > 0 {
		b.log.Debug("pubmed records dropped", zap.Int("dropped", dropped))
	}
	return records, nil
}

func (b *PubMedBackend) post(ctx context.Context, op, path string, params url.Values) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, eutilsBase+path, strings.NewReader(params.Encode()))
	if err != nil {
		return nil, &ServiceError{Op: op, Err: fmt.Errorf("creating request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if b.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", b.cfg.UserAgent)
	}

	resp, err := b.caller.Do(ctx, req)
	if err != nil {
		return nil, &ServiceError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &ServiceError{Op: op, Err: fmt.Errorf("reading response: %w", err)}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &ServiceError{Op: op, StatusCode: resp.StatusCode, Err: errors.New(strings.TrimSpace(truncate(string(body), 200)))}
	}
	return body, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// truncate cuts s to n characters without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "..."
}
