// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package rank scores candidate articles against the research topic with
// one AI call and validates the answer against the candidate set.
package rank

import (
	"bytes"
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"text/template"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/pdiddy/litreview-engine/internal/ai"
	"github.com/pdiddy/litreview-engine/pkg/types"
)

// RankingValidationError reports that no ranked article survived
// validation.
type RankingValidationError struct {
	Returned int
	Rejected []Rejection
}

func (e *RankingValidationError) Error() string {
	return fmt.Sprintf("ranking produced no valid articles (%d returned, %d rejected)", e.Returned, len(e.Rejected))
}

// Rejection records one ranked item dropped during validation.
type Rejection struct {
	Identifier string `json:"identifier"`
	Reason     string `json:"reason"`
}

// Result is the validated ranking.
type Result struct {
	Articles           []types.ArticleRecord
	Insights           []types.Insight
	KeywordFrequencies []types.KeywordFrequency
	Rejected           []Rejection
}

// rankedItem and rankResponse mirror rankSchema.
type rankedItem struct {
	Identifier           string   `json:"identifier"`
	RelevanceScore       float64  `json:"relevance_score"`
	RelevanceExplanation string   `json:"relevance_explanation"`
	Keywords             []string `json:"keywords"`
	ArticleType          string   `json:"article_type"`
	AIAbstract           string   `json:"ai_abstract"`
}

type rankResponse struct {
	Articles []rankedItem    `json:"articles"`
	Insights []types.Insight `json:"insights"`
}

var rankSchema = json.RawMessage(`{
  "type": "object",
  "properties": {
    "articles": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "identifier": {"type": "string"},
          "relevance_score": {"type": "number", "minimum": 0, "maximum": 100},
          "relevance_explanation": {"type": "string"},
          "keywords": {"type": "array", "items": {"type": "string"}},
          "article_type": {"type": "string"},
          "ai_abstract": {"type": "string"}
        },
        "required": ["identifier", "relevance_score", "relevance_explanation", "keywords", "article_type", "ai_abstract"],
        "additionalProperties": false
      }
    },
    "insights": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "question": {"type": "string"},
          "answer": {"type": "string"},
          "supporting_identifiers": {"type": "array", "items": {"type": "string"}}
        },
        "required": ["question", "answer", "supporting_identifiers"],
        "additionalProperties": false
      }
    }
  },
  "required": ["articles", "insights"],
  "additionalProperties": false
}`)

const (
	rankSystem     = `You are an expert systematic reviewer. You judge how well each article answers a research question and only cite identifiers you were given.`
	maxAbstractLen = 1500
)

var rankPromptTmpl = template.Must(template.New("rank").Parse(`Research topic: {{.Topic}}

Select the {{.TopN}} articles below that are most relevant to the topic. For each selected article return:
- identifier: exactly as given in brackets
- relevance_score: 0 to 100
- relevance_explanation: one sentence
- keywords: 3 to 6 lowercase topic keywords
- article_type: e.g. "Randomized Controlled Trial", "Systematic Review", "Cohort Study"
- ai_abstract: a two sentence plain-language summary

Also return 2 to 4 insights: questions a reviewer would ask about this literature, each with a short answer and the identifiers of the selected articles that support it.

Candidates:
{{range .Candidates}}
[{{.Identifier}}] {{.Title}}{{if .Year}} ({{.Year}}){{end}}
{{.Abstract}}
{{end}}`))

// Ranker calls the AI service once per Rank.
type Ranker struct {
	Provider ai.Provider
	Model    string
	Logger   *zap.Logger
}

// Rank returns at most topN candidates ordered by descending score.
// Bibliographic fields always come from the candidates; only the
// annotations come from the model.
func (r *Ranker) Rank(ctx context.Context, topic string, candidates []types.ArticleRecord, topN int) (Result, error) {
	if topN <= 0 {
		topN = 10
	}

	prompt, err := renderPrompt(topic, candidates, topN)
	if err != nil {
		return Result{}, fmt.Errorf("rendering prompt: %w", err)
	}

	text, err := r.Provider.Generate(ctx, ai.Request{
		Model:      r.Model,
		System:     rankSystem,
		User:       prompt,
		Schema:     rankSchema,
		SchemaName: "relevance_ranking",
	})
	if err != nil {
		return Result{}, err
	}

	var resp rankResponse
	if err := ai.DecodeJSON(text, &resp); err != nil {
		return Result{}, err
	}

	res := validateRanking(resp, candidates, topN)
	if r.Logger != nil && len(res.Rejected) > 0 {
		r.Logger.Warn("ranked items rejected", zap.Int("rejected", len(res.Rejected)), zap.Any("items", res.Rejected))
	}
	if len(res.Articles) == 0 {
		return Result{}, &RankingValidationError{Returned: len(resp.Articles), Rejected: res.Rejected}
	}
	return res, nil
}

// validateRanking checks a raw ranking against the candidates. Items naming an
// unknown or repeated identifier, or failing field validation, are
// rejected.
func validateRanking(resp rankResponse, candidates []types.ArticleRecord, topN int) Result {
	byID := make(map[string]types.ArticleRecord, len(candidates))
	for _, c := range candidates {
		byID[c.Identifier] = c
	}

	var res Result
	seen := make(map[string]bool)
	for _, item := range resp.Articles {
		id := strings.TrimSpace(item.Identifier)
		cand, ok := byID[id]
		switch {
		case !ok:
			res.Rejected = append(res.Rejected, Rejection{Identifier: id, Reason: "not a candidate"})
			continue
		case seen[id]:
			res.Rejected = append(res.Rejected, Rejection{Identifier: id, Reason: "duplicate"})
			continue
		}

		a := cand.Clone()
		a.RelevanceScore = item.RelevanceScore
		a.RelevanceExplanation = strings.TrimSpace(item.RelevanceExplanation)
		a.Keywords = normalizeKeywords(item.Keywords)
		if t := strings.TrimSpace(item.ArticleType); t != "" {
			a.ArticleType = t
		}
		a.AIAbstract = strings.TrimSpace(item.AIAbstract)

		if err := types.ValidateArticle(a); err != nil {
			res.Rejected = append(res.Rejected, Rejection{Identifier: id, Reason: err.Error()})
			continue
		}
		seen[id] = true
		res.Articles = append(res.Articles, a)
	}

	slices.SortStableFunc(res.Articles, func(x, y types.ArticleRecord) int {
		return cmp.Compare(y.RelevanceScore, x.RelevanceScore)
	})
	if len(res.Articles) > topN {
		res.Articles = res.Articles[:topN]
	}

	for _, in := range resp.Insights {
		var support []string
		for _, id := range in.SupportingIdentifiers {
			id = strings.TrimSpace(id)
			if _, ok := byID[id]; ok && !slices.Contains(support, id) {
				support = append(support, id)
			}
		}
		if len(support) == 0 || strings.TrimSpace(in.Question) == "" {
			continue
		}
		in.SupportingIdentifiers = support
		res.Insights = append(res.Insights, in)
	}

	res.KeywordFrequencies = KeywordFrequencies(res.Articles)
	return res
}

// KeywordFrequencies counts, for each keyword, the articles carrying it.
// Rows are ordered by count, then keyword.
func KeywordFrequencies(articles []types.ArticleRecord) []types.KeywordFrequency {
	counts := make(map[string]int)
	for _, a := range articles {
		for _, k := range normalizeKeywords(a.Keywords) {
			counts[k]++
		}
	}
	out := make([]types.KeywordFrequency, 0, len(counts))
	for k, n := range counts {
		out = append(out, types.KeywordFrequency{Keyword: k, Count: n})
	}
	slices.SortFunc(out, func(x, y types.KeywordFrequency) int {
		if c := cmp.Compare(y.Count, x.Count); c != 0 {
			return c
		}
		return cmp.Compare(x.Keyword, y.Keyword)
	})
	return out
}

// normalizeKeywords lowercases, trims and de-duplicates keywords,
// keeping first-seen order.
func normalizeKeywords(in []string) []string {
	var out []string
	for _, k := range in {
		k = strings.ToLower(strings.TrimSpace(k))
		if k != "" && !slices.Contains(out, k) {
			out = append(out, k)
		}
	}
	return out
}

func renderPrompt(topic string, candidates []types.ArticleRecord, topN int) (string, error) {
	trimmed := make([]types.ArticleRecord, len(candidates))
	for i, c := range candidates {
		if utf8.RuneCountInString(c.Abstract) > maxAbstractLen {
			c.Abstract = string([]rune(c.Abstract)[:maxAbstractLen]) + "..."
		}
		trimmed[i] = c
	}
	var buf bytes.Buffer
	err := rankPromptTmpl.Execute(&buf, struct {
		Topic      string
		TopN       int
		Candidates []types.ArticleRecord
	}{topic, topN, trimmed})
	return buf.String(), err
}
