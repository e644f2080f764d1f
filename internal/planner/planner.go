// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package planner turns a free-text research topic and structured filters
// into one executable PubMed query.
package planner

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"text/template"
	"time"

	"go.uber.org/zap"

	"github.com/pdiddy/litreview-engine/internal/ai"
	"github.com/pdiddy/litreview-engine/pkg/types"
)

// Filters restrict the search. Zero values mean no restriction.
type Filters struct {
	DateFrom       time.Time `json:"date_from,omitempty" yaml:"date_from,omitempty"`
	DateTo         time.Time `json:"date_to,omitempty" yaml:"date_to,omitempty"`
	ArticleTypes   []string  `json:"article_types,omitempty" yaml:"article_types,omitempty"`
	OpenAccessOnly bool      `json:"open_access_only,omitempty" yaml:"open_access_only,omitempty"`
}

// PlanningError reports that no usable query could be produced.
type PlanningError struct {
	Topic string
	Err   error
}

func (e *PlanningError) Error() string {
	return fmt.Sprintf("planning query for %q: %v", e.Topic, e.Err)
}

func (e *PlanningError) Unwrap() error { return e.Err }

var planSchema = json.RawMessage(`{
  "type": "object",
  "properties": {
    "query": {"type": "string", "description": "PubMed boolean expression for the topic only, without date or publication type filters"},
    "rationale": {"type": "string"}
  },
  "required": ["query", "rationale"],
  "additionalProperties": false
}`)

const planSystem = `You are a biomedical librarian who writes PubMed search strategies.`

var planPromptTmpl = template.Must(template.New("plan").Parse(`Write one PubMed query for the research topic below.

Expand each concept into its synonyms and MeSH terms joined with OR, wrap each concept group in parentheses, and join the groups with AND. Use field tags such as [tiab] and [MeSH Terms] where they help. Do not add date ranges, publication types, or availability filters; they are applied separately.

Return a JSON object with "query" (the search string) and "rationale" (one or two sentences explaining the strategy).

Research topic:
{{.Topic}}
`))

// Planner asks the AI service for a topic expression and appends the
// filters itself so their syntax is always exact.
type Planner struct {
	Provider ai.Provider
	Model    string
	Logger   *zap.Logger
}

// Plan returns the query for topic with filters applied. Any failure is
// a *PlanningError.
func (p *Planner) Plan(ctx context.Context, topic string, f Filters) (types.GeneratedQuery, error) {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return types.GeneratedQuery{}, &PlanningError{Topic: topic, Err: errors.New("topic is empty")}
	}
	if !f.DateFrom.IsZero() && !f.DateTo.IsZero() && f.DateTo.Before(f.DateFrom) {
		return types.GeneratedQuery{}, &PlanningError{Topic: topic, Err: errors.New("date range ends before it starts")}
	}

	var prompt bytes.Buffer
	if err := planPromptTmpl.Execute(&prompt, struct{ Topic string }{topic}); err != nil {
		return types.GeneratedQuery{}, &PlanningError{Topic: topic, Err: fmt.Errorf("rendering prompt: %w", err)}
	}

	text, err := p.Provider.Generate(ctx, ai.Request{
		Model:      p.Model,
		System:     planSystem,
		User:       prompt.String(),
		Schema:     planSchema,
		SchemaName: "search_plan",
	})
	if err != nil {
		return types.GeneratedQuery{}, &PlanningError{Topic: topic, Err: err}
	}

	var out types.GeneratedQuery
	if err := ai.DecodeJSON(text, &out); err != nil {
		return types.GeneratedQuery{}, &PlanningError{Topic: topic, Err: err}
	}
	out.Query = strings.TrimSpace(out.Query)
	if out.Query == "" {
		return types.GeneratedQuery{}, &PlanningError{Topic: topic, Err: errors.New("AI service returned an empty query")}
	}

	out.Query = ApplyFilters(out.Query, f)
	if p.Logger != nil {
		p.Logger.Debug("query planned", zap.String("topic", topic), zap.String("query", out.Query))
	}
	return out, nil
}

const pubmedDate = "2006/01/02"

// ApplyFilters joins the topic expression with one AND clause per filter.
func ApplyFilters(expr string, f Filters) string {
	clauses := []string{"(" + expr + ")"}

	if !f.DateFrom.IsZero() || !f.DateTo.IsZero() {
		from, to := "1800/01/01", "3000/12/31"
		if !f.DateFrom.IsZero() {
			from = f.DateFrom.Format(pubmedDate)
		}
		if !f.DateTo.IsZero() {
			to = f.DateTo.Format(pubmedDate)
		}
		clauses = append(clauses, fmt.Sprintf(`("%s"[Date - Publication] : "%s"[Date - Publication])`, from, to))
	}

	var kinds []string
	for _, t := range f.ArticleTypes {
		if t = strings.TrimSpace(t); t != "" {
			kinds = append(kinds, fmt.Sprintf(`"%s"[Publication Type]`, t))
		}
	}
	if len(kinds) > 0 {
		clauses = append(clauses, "("+strings.Join(kinds, " OR ")+")")
	}

	if f.OpenAccessOnly {
		clauses = append(clauses, "free full text[sb]")
	}

	if len(clauses) == 1 {
		return expr
	}
	return strings.Join(clauses, " AND ")
}
