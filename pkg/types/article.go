// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "slices"

// ArticleRecord is one bibliographic record as fetched from the search
// service and annotated by the ranker. Identifier is the PubMed id and is
// the deduplication key across the whole knowledge store.
type ArticleRecord struct {
	// Identifier is the PMID. It never changes once assigned.
	Identifier string `json:"identifier" yaml:"identifier" validate:"identifier"`

	// Title is the article title.
	Title string `json:"title" yaml:"title" validate:"required"`

	// Authors lists the authors in source order.
	Authors []string `json:"authors" yaml:"authors"`

	// Venue is the journal or conference name.
	Venue string `json:"venue" yaml:"venue"`

	// Year is the publication year (0 when unknown).
	Year int `json:"year" yaml:"year" validate:"gte=0"`

	// Abstract is the source abstract.
	Abstract string `json:"abstract" yaml:"abstract"`

	// DOI is the digital object identifier, when the record carries one.
	DOI string `json:"doi,omitempty" yaml:"doi,omitempty"`

	// RelevanceScore is set only by the ranker, in [0, 100].
	RelevanceScore float64 `json:"relevance_score" yaml:"relevance_score" validate:"gte=0,lte=100"`

	// RelevanceExplanation is the ranker's short justification.
	RelevanceExplanation string `json:"relevance_explanation" yaml:"relevance_explanation"`

	// Keywords are lowercase topic labels assigned by the ranker.
	Keywords []string `json:"keywords" yaml:"keywords" validate:"dive,required"`

	// IsOpenAccess reports whether a free full text is available.
	IsOpenAccess bool `json:"is_open_access" yaml:"is_open_access"`

	// ArticleType is the publication classification (e.g. "Review").
	ArticleType string `json:"article_type,omitempty" yaml:"article_type,omitempty"`

	// AIAbstract is an optional model-written summary.
	AIAbstract string `json:"ai_abstract,omitempty" yaml:"ai_abstract,omitempty"`

	// Tags are user-editable labels, kept in the order they were set.
	Tags []string `json:"tags,omitempty" yaml:"tags,omitempty"`
}

// Clone returns a deep copy of the record.
func (a ArticleRecord) Clone() ArticleRecord {
	a.Authors = slices.Clone(a.Authors)
	a.Keywords = slices.Clone(a.Keywords)
	a.Tags = slices.Clone(a.Tags)
	return a
}

// CloneArticles deep-copies a slice of records. A nil input stays nil.
func CloneArticles(in []ArticleRecord) []ArticleRecord {
	if in == nil {
		return nil
	}
	out := make([]ArticleRecord, len(in))
	for i, a := range in {
		out[i] = a.Clone()
	}
	return out
}

// AggregatedArticle is a row of the de-duplicated cross-entry view. It is
// derived on demand and never persisted.
type AggregatedArticle struct {
	ArticleRecord `yaml:",inline"`

	// SourceEntryID is the entry holding the winning instance.
	SourceEntryID string `json:"source_entry_id" yaml:"source_entry_id"`

	// SourceTitle is that entry's title.
	SourceTitle string `json:"source_title" yaml:"source_title"`
}
