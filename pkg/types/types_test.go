// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleArticle(id string) ArticleRecord {
	return ArticleRecord{
		Identifier:     id,
		Title:          "Title " + id,
		Authors:        []string{"Ada Lovelace"},
		RelevanceScore: 50,
		Keywords:       []string{"sepsis"},
		Tags:           []string{"keep"},
	}
}

func TestArticleCloneIsDeep(t *testing.T) {
	a := sampleArticle("1")
	b := a.Clone()
	b.Authors[0] = "changed"
	b.Keywords[0] = "changed"
	b.Tags[0] = "changed"

	assert.Equal(t, "Ada Lovelace", a.Authors[0])
	assert.Equal(t, "sepsis", a.Keywords[0])
	assert.Equal(t, "keep", a.Tags[0])
	assert.Nil(t, CloneArticles(nil))
}

func TestReportCloneIsDeep(t *testing.T) {
	r := &Report{
		Topic:    "t",
		Queries:  []GeneratedQuery{{Query: "q"}},
		Articles: []ArticleRecord{sampleArticle("1")},
		Insights: []Insight{{Question: "?", SupportingIdentifiers: []string{"1"}}},
	}
	c := r.Clone()
	c.Articles[0].Title = "changed"
	c.Insights[0].SupportingIdentifiers[0] = "2"
	c.Queries[0].Query = "changed"

	assert.Equal(t, "Title 1", r.Articles[0].Title)
	assert.Equal(t, "1", r.Insights[0].SupportingIdentifiers[0])
	assert.Equal(t, "q", r.Queries[0].Query)

	var nilReport *Report
	assert.Nil(t, nilReport.Clone())
}

func TestEntryConstructorsMirrorArticles(t *testing.T) {
	arts := []ArticleRecord{sampleArticle("1")}

	tests := []struct {
		name    string
		entry   Entry
		kind    EntryKind
		title   string
		payload func(Entry) []ArticleRecord
	}{
		{
			name:    "research",
			entry:   NewResearchEntry(&Report{Topic: "sepsis", Articles: arts}),
			kind:    KindResearch,
			title:   "sepsis",
			payload: func(e Entry) []ArticleRecord { return e.Research.Articles },
		},
		{
			name:    "author",
			entry:   NewAuthorEntry(AuthorProfile{Name: "Ada", Articles: arts}),
			kind:    KindAuthor,
			title:   "Ada",
			payload: func(e Entry) []ArticleRecord { return e.Author.Articles },
		},
		{
			name:    "journal",
			entry:   NewJournalEntry(JournalProfile{Name: "Lancet", Articles: arts}),
			kind:    KindJournal,
			title:   "Lancet",
			payload: func(e Entry) []ArticleRecord { return e.Journal.Articles },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := tt.entry
			assert.Equal(t, tt.kind, e.Kind)
			assert.Equal(t, tt.title, e.Title)
			assert.Equal(t, arts, e.Articles)
			assert.Equal(t, arts, tt.payload(e))

			e.SetArticles(nil)
			assert.Empty(t, e.Articles)
			assert.Empty(t, tt.payload(e))
			assert.Len(t, arts, 1, "caller slice untouched")
		})
	}
}

func TestEntryCloneAndIndexOf(t *testing.T) {
	e := NewAuthorEntry(AuthorProfile{
		Name:         "Ada",
		Affiliations: []string{"Analytical Society"},
		Articles:     []ArticleRecord{sampleArticle("1"), sampleArticle("2")},
	})
	c := e.Clone()
	c.Articles[0].Title = "changed"
	c.Author.Affiliations[0] = "changed"
	c.Author.Articles[1].Title = "changed"

	assert.Equal(t, "Title 1", e.Articles[0].Title)
	assert.Equal(t, "Analytical Society", e.Author.Affiliations[0])
	assert.Equal(t, "Title 2", e.Author.Articles[1].Title)

	assert.Equal(t, 1, e.IndexOf("2"))
	assert.Equal(t, -1, e.IndexOf("3"))
}

func TestValidateArticle(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*ArticleRecord)
		wantErr bool
	}{
		{name: "valid", mutate: func(*ArticleRecord) {}},
		{name: "empty identifier", mutate: func(a *ArticleRecord) { a.Identifier = "" }, wantErr: true},
		{name: "identifier with space", mutate: func(a *ArticleRecord) { a.Identifier = "12 34" }, wantErr: true},
		{name: "identifier too long", mutate: func(a *ArticleRecord) { a.Identifier = strings.Repeat("9", 65) }, wantErr: true},
		{name: "missing title", mutate: func(a *ArticleRecord) { a.Title = "" }, wantErr: true},
		{name: "score above 100", mutate: func(a *ArticleRecord) { a.RelevanceScore = 100.5 }, wantErr: true},
		{name: "negative score", mutate: func(a *ArticleRecord) { a.RelevanceScore = -1 }, wantErr: true},
		{name: "boundary scores", mutate: func(a *ArticleRecord) { a.RelevanceScore = 100 }},
		{name: "blank keyword", mutate: func(a *ArticleRecord) { a.Keywords = []string{""} }, wantErr: true},
		{name: "negative year", mutate: func(a *ArticleRecord) { a.Year = -1 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := sampleArticle("38012345")
			tt.mutate(&a)
			err := ValidateArticle(a)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateEntry(t *testing.T) {
	e := NewResearchEntry(&Report{Topic: "t", Articles: []ArticleRecord{sampleArticle("1")}})
	e.ID = "abc"
	e.CreatedAt = time.Now()
	require.NoError(t, ValidateEntry(e))

	noID := e
	noID.ID = ""
	assert.Error(t, ValidateEntry(noID))

	badKind := e
	badKind.Kind = "podcast"
	assert.Error(t, ValidateEntry(badKind))

	badArticle := e.Clone()
	badArticle.Articles[0].RelevanceScore = 400
	assert.Error(t, ValidateEntry(badArticle))
}

func TestValidateConfig(t *testing.T) {
	valid := Config{
		AI:       AIConfig{Provider: ProviderOpenAI, Model: "gpt-4o-mini"},
		Pipeline: PipelineConfig{MaxCandidates: 50, TopN: 10, MaxConcurrentRuns: 1},
		Store:    StoreConfig{Backend: StoreSQLite, Dir: "data"},
	}
	require.NoError(t, ValidateConfig(valid))

	badProvider := valid
	badProvider.AI.Provider = "gemini"
	assert.Error(t, ValidateConfig(badProvider))

	zeroTop := valid
	zeroTop.Pipeline.TopN = 0
	assert.Error(t, ValidateConfig(zeroTop))

	noDir := valid
	noDir.Store.Dir = ""
	assert.Error(t, ValidateConfig(noDir))
}
