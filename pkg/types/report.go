// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "slices"

// GeneratedQuery is the boolean search expression produced by the planner
// together with the model's explanation of how it was built.
type GeneratedQuery struct {
	Query     string `json:"query" yaml:"query"`
	Rationale string `json:"rationale" yaml:"rationale"`
}

// Insight is a question/answer pair tied to the ranked articles that
// support it.
type Insight struct {
	Question              string   `json:"question" yaml:"question"`
	Answer                string   `json:"answer" yaml:"answer"`
	SupportingIdentifiers []string `json:"supporting_identifiers" yaml:"supporting_identifiers"`
}

// KeywordFrequency is one row of the keyword table.
type KeywordFrequency struct {
	Keyword string `json:"keyword" yaml:"keyword"`
	Count   int    `json:"count" yaml:"count"`
}

// Report is the result of one pipeline run. Partial snapshots have
// Final set to false; the report delivered with the Done event is final
// and its Synthesis no longer changes.
type Report struct {
	Topic              string             `json:"topic" yaml:"topic"`
	Queries            []GeneratedQuery   `json:"queries" yaml:"queries"`
	Articles           []ArticleRecord    `json:"articles" yaml:"articles"`
	Synthesis          string             `json:"synthesis" yaml:"synthesis"`
	Insights           []Insight          `json:"insights" yaml:"insights"`
	KeywordFrequencies []KeywordFrequency `json:"keyword_frequencies" yaml:"keyword_frequencies"`
	Final              bool               `json:"final" yaml:"final"`
}

// Clone returns a deep copy of the report so snapshots handed to callers
// are not affected by later appends.
func (r *Report) Clone() *Report {
	if r == nil {
		return nil
	}
	out := *r
	out.Queries = slices.Clone(r.Queries)
	out.Articles = CloneArticles(r.Articles)
	out.KeywordFrequencies = slices.Clone(r.KeywordFrequencies)
	if r.Insights != nil {
		out.Insights = make([]Insight, len(r.Insights))
		for i, in := range r.Insights {
			in.SupportingIdentifiers = slices.Clone(in.SupportingIdentifiers)
			out.Insights[i] = in
		}
	}
	return &out
}
