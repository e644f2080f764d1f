// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"slices"
	"time"
)

// EntryKind discriminates the payload carried by an Entry.
type EntryKind string

const (
	KindResearch EntryKind = "research"
	KindAuthor   EntryKind = "author"
	KindJournal  EntryKind = "journal"
)

// AuthorProfile is the payload of an author-analysis entry.
type AuthorProfile struct {
	Name          string          `json:"name" yaml:"name"`
	Affiliations  []string        `json:"affiliations,omitempty" yaml:"affiliations,omitempty"`
	Summary       string          `json:"summary,omitempty" yaml:"summary,omitempty"`
	ResearchAreas []string        `json:"research_areas,omitempty" yaml:"research_areas,omitempty"`
	Articles      []ArticleRecord `json:"articles" yaml:"articles"`
}

// JournalProfile is the payload of a journal-analysis entry.
type JournalProfile struct {
	Name        string          `json:"name" yaml:"name"`
	ISSN        string          `json:"issn,omitempty" yaml:"issn,omitempty"`
	Publisher   string          `json:"publisher,omitempty" yaml:"publisher,omitempty"`
	Description string          `json:"description,omitempty" yaml:"description,omitempty"`
	Scope       []string        `json:"scope,omitempty" yaml:"scope,omitempty"`
	Articles    []ArticleRecord `json:"articles" yaml:"articles"`
}

// Entry is one saved result in the knowledge store. Exactly one of
// Research, Author or Journal is set, matching Kind. Articles mirrors the
// payload's article list; use SetArticles to change both together.
type Entry struct {
	ID        string          `json:"id" yaml:"id" validate:"required"`
	Kind      EntryKind       `json:"kind" yaml:"kind" validate:"oneof=research author journal"`
	Title     string          `json:"title" yaml:"title"`
	CreatedAt time.Time       `json:"created_at" yaml:"created_at"`
	Articles  []ArticleRecord `json:"articles" yaml:"articles" validate:"dive"`

	Research *Report         `json:"research,omitempty" yaml:"research,omitempty"`
	Author   *AuthorProfile  `json:"author,omitempty" yaml:"author,omitempty"`
	Journal  *JournalProfile `json:"journal,omitempty" yaml:"journal,omitempty"`
}

// NewResearchEntry wraps a finished report. The id and timestamp are
// assigned by the store.
func NewResearchEntry(r *Report) Entry {
	e := Entry{Kind: KindResearch, Title: r.Topic, Research: r.Clone()}
	e.Articles = CloneArticles(r.Articles)
	return e
}

// NewAuthorEntry wraps an author profile.
func NewAuthorEntry(p AuthorProfile) Entry {
	p.Articles = CloneArticles(p.Articles)
	e := Entry{Kind: KindAuthor, Title: p.Name, Author: &p}
	e.Articles = CloneArticles(p.Articles)
	return e
}

// NewJournalEntry wraps a journal profile.
func NewJournalEntry(p JournalProfile) Entry {
	p.Articles = CloneArticles(p.Articles)
	e := Entry{Kind: KindJournal, Title: p.Name, Journal: &p}
	e.Articles = CloneArticles(p.Articles)
	return e
}

// SetArticles replaces the article list on the entry and on its payload.
func (e *Entry) SetArticles(articles []ArticleRecord) {
	e.Articles = CloneArticles(articles)
	switch e.Kind {
	case KindResearch:
		if e.Research != nil {
			e.Research.Articles = CloneArticles(articles)
		}
	case KindAuthor:
		if e.Author != nil {
			e.Author.Articles = CloneArticles(articles)
		}
	case KindJournal:
		if e.Journal != nil {
			e.Journal.Articles = CloneArticles(articles)
		}
	}
}

// Clone returns a deep copy of the entry.
func (e Entry) Clone() Entry {
	e.Articles = CloneArticles(e.Articles)
	if e.Research != nil {
		e.Research = e.Research.Clone()
	}
	if e.Author != nil {
		a := *e.Author
		a.Affiliations = slices.Clone(a.Affiliations)
		a.ResearchAreas = slices.Clone(a.ResearchAreas)
		a.Articles = CloneArticles(a.Articles)
		e.Author = &a
	}
	if e.Journal != nil {
		j := *e.Journal
		j.Scope = slices.Clone(j.Scope)
		j.Articles = CloneArticles(j.Articles)
		e.Journal = &j
	}
	return e
}

// IndexOf returns the position of the article with the given identifier,
// or -1.
func (e Entry) IndexOf(identifier string) int {
	return slices.IndexFunc(e.Articles, func(a ArticleRecord) bool {
		return a.Identifier == identifier
	})
}
