// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package aggregate computes the de-duplicated article view across all
// saved entries and runs bulk maintenance over it. Every mutation goes
// through one knowledge.Store batch; entries left without articles are
// deleted in the same batch.
package aggregate

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"go.uber.org/zap"

	"github.com/pdiddy/litreview-engine/internal/knowledge"
	"github.com/pdiddy/litreview-engine/internal/logger"
	"github.com/pdiddy/litreview-engine/pkg/types"
)

// ErrArticleNotFound is returned by UpdateTags when no entry holds the
// identifier.
var ErrArticleNotFound = errors.New("article not found in any entry")

// Result summarizes a bulk operation.
type Result struct {
	// Removed counts article instances removed across all entries.
	Removed int `json:"removed"`

	// Identifiers lists the distinct identifiers touched, sorted.
	Identifiers []string `json:"identifiers,omitempty"`

	// UpdatedEntries lists entries that changed but survived.
	UpdatedEntries []string `json:"updated_entries,omitempty"`

	// DeletedEntries lists entries removed because they became empty.
	DeletedEntries []string `json:"deleted_entries,omitempty"`
}

// ComputeUniqueArticles returns one row per identifier holding the
// highest-scoring instance. Entries are scanned newest first (then by id)
// and an instance replaces the current best when its score is greater or
// equal, so ties go to the last entry scanned. Rows are ordered by score,
// then identifier.
func ComputeUniqueArticles(entries []types.Entry) []types.AggregatedArticle {
	scan := slices.Clone(entries)
	knowledge.SortEntries(scan)

	best := make(map[string]types.AggregatedArticle)
	for _, e := range scan {
		for _, a := range e.Articles {
			cur, ok := best[a.Identifier]
			if ok && a.RelevanceScore < cur.RelevanceScore {
				continue
			}
			best[a.Identifier] = types.AggregatedArticle{
				ArticleRecord: a.Clone(),
				SourceEntryID: e.ID,
				SourceTitle:   e.Title,
			}
		}
	}

	out := make([]types.AggregatedArticle, 0, len(best))
	for _, row := range best {
		out = append(out, row)
	}
	slices.SortFunc(out, func(x, y types.AggregatedArticle) int {
		if c := cmp.Compare(y.RelevanceScore, x.RelevanceScore); c != 0 {
			return c
		}
		return cmp.Compare(x.Identifier, y.Identifier)
	})
	return out
}

// Engine runs aggregation operations against a store.
type Engine struct {
	store *knowledge.Store
	log   *zap.Logger
}

// New builds an engine over store.
func New(store *knowledge.Store, log *zap.Logger) *Engine {
	return &Engine{store: store, log: logger.OrNop(log)}
}

// UniqueArticles computes the view over the store's current entries.
func (g *Engine) UniqueArticles() []types.AggregatedArticle {
	return ComputeUniqueArticles(g.store.ListEntries())
}

// MergeDuplicates keeps each duplicated identifier only in the entry that
// holds its winning instance. A second call with no new duplicates
// removes nothing and writes nothing.
func (g *Engine) MergeDuplicates(ctx context.Context) (Result, error) {
	return g.apply(ctx, "merge", func(entries []types.Entry) func(types.Entry, types.ArticleRecord) bool {
		holders := make(map[string]int)
		for _, e := range entries {
			seen := make(map[string]bool)
			for _, a := range e.Articles {
				if !seen[a.Identifier] {
					seen[a.Identifier] = true
					holders[a.Identifier]++
				}
			}
		}
		winner := make(map[string]string)
		for _, row := range ComputeUniqueArticles(entries) {
			if holders[row.Identifier] > 1 {
				winner[row.Identifier] = row.SourceEntryID
			}
		}
		return func(e types.Entry, a types.ArticleRecord) bool {
			w, dup := winner[a.Identifier]
			return dup && w != e.ID
		}
	})
}

// PruneByRelevance removes every article instance scoring strictly below
// threshold. Matching nothing is a zero-count success.
func (g *Engine) PruneByRelevance(ctx context.Context, threshold float64) (Result, error) {
	if threshold < 0 || threshold > 100 {
		return Result{}, fmt.Errorf("threshold %v outside [0, 100]", threshold)
	}
	return g.apply(ctx, "prune", func([]types.Entry) func(types.Entry, types.ArticleRecord) bool {
		return func(_ types.Entry, a types.ArticleRecord) bool {
			return a.RelevanceScore < threshold
		}
	})
}

// DeleteArticles removes the identifiers from every entry.
func (g *Engine) DeleteArticles(ctx context.Context, identifiers []string) (Result, error) {
	drop := make(map[string]bool, len(identifiers))
	for _, id := range identifiers {
		drop[id] = true
	}
	return g.apply(ctx, "delete", func([]types.Entry) func(types.Entry, types.ArticleRecord) bool {
		return func(_ types.Entry, a types.ArticleRecord) bool {
			return drop[a.Identifier]
		}
	})
}

// UpdateTags sets tags on every instance of identifier in every entry,
// not only the winning one, and returns how many entries changed.
func (g *Engine) UpdateTags(ctx context.Context, identifier string, tags []string) (int, error) {
	tags = normalizeTags(tags)
	touched := 0
	err := g.store.Batch(ctx, func(tx *knowledge.Tx) error {
		found := false
		for _, e := range tx.Entries() {
			if e.IndexOf(identifier) < 0 {
				continue
			}
			found = true
			arts := e.Articles
			changed := false
			for i := range arts {
				if arts[i].Identifier != identifier {
					continue
				}
				if !slices.Equal(arts[i].Tags, tags) {
					arts[i].Tags = slices.Clone(tags)
					changed = true
				}
			}
			if !changed {
				continue
			}
			e.SetArticles(arts)
			if err := tx.Put(e); err != nil {
				return err
			}
			touched++
		}
		if !found {
			return fmt.Errorf("%w: %s", ErrArticleNotFound, identifier)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	g.log.Info("tags updated", zap.String("identifier", identifier), zap.Strings("tags", tags), zap.Int("entries", touched))
	return touched, nil
}

// apply removes every instance for which the predicate built from the
// current entries returns true. Entries that end up empty are deleted,
// including entries that held no articles to begin with.
func (g *Engine) apply(ctx context.Context, op string, build func([]types.Entry) func(types.Entry, types.ArticleRecord) bool) (Result, error) {
	var res Result
	err := g.store.Batch(ctx, func(tx *knowledge.Tx) error {
		res = Result{}
		entries := tx.Entries()
		remove := build(entries)
		ids := make(map[string]bool)

		for _, e := range entries {
			kept := make([]types.ArticleRecord, 0, len(e.Articles))
			for _, a := range e.Articles {
				if remove(e, a) {
					res.Removed++
					ids[a.Identifier] = true
					continue
				}
				kept = append(kept, a)
			}
			if len(kept) == 0 {
				tx.Delete(e.ID)
				res.DeletedEntries = append(res.DeletedEntries, e.ID)
				continue
			}
			if len(kept) == len(e.Articles) {
				continue
			}
			e.SetArticles(kept)
			if err := tx.Put(e); err != nil {
				return err
			}
			res.UpdatedEntries = append(res.UpdatedEntries, e.ID)
		}

		for id := range ids {
			res.Identifiers = append(res.Identifiers, id)
		}
		slices.Sort(res.Identifiers)
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	g.log.Info("aggregation applied",
		zap.String("op", op),
		zap.Int("removed", res.Removed),
		zap.Int("updated_entries", len(res.UpdatedEntries)),
		zap.Int("deleted_entries", len(res.DeletedEntries)))
	return res, nil
}

// normalizeTags trims tags and drops blanks and repeats, keeping order.
func normalizeTags(in []string) []string {
	out := make([]string, 0, len(in))
	for _, t := range in {
		t = strings.TrimSpace(t)
		if t != "" && !slices.Contains(out, t) {
			out = append(out, t)
		}
	}
	return out
}
