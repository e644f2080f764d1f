// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package knowledge is the persistent store of saved entries. All writes
// go through one writer: each change is persisted first, then applied to
// the in-memory view, then broadcast to subscribers.
package knowledge

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pdiddy/litreview-engine/internal/logger"
	"github.com/pdiddy/litreview-engine/internal/metrics"
	"github.com/pdiddy/litreview-engine/pkg/types"
)

// ErrEntryNotFound is returned when an entry id is unknown.
var ErrEntryNotFound = errors.New("entry not found")

// ChangeKind names the mutation a Change describes.
type ChangeKind string

const (
	ChangeAdded   ChangeKind = "added"
	ChangeUpdated ChangeKind = "updated"
	ChangeDeleted ChangeKind = "deleted"
	ChangeCleared ChangeKind = "cleared"
)

// Change is broadcast after a mutation is persisted. One batch may
// produce an updated and a deleted change.
type Change struct {
	Kind ChangeKind
	IDs  []string
}

// EntryChanges is a partial update. Title applies when non-nil and
// Articles applies when SetArticles is true.
type EntryChanges struct {
	Title       *string
	Articles    []types.ArticleRecord
	SetArticles bool
}

// Store caches all entries in memory over a Backend.
type Store struct {
	backend Backend
	log     *zap.Logger
	metrics *metrics.Metrics
	now     func() time.Time

	writeMu sync.Mutex
	mu      sync.RWMutex
	entries map[string]types.Entry

	listenerMu sync.Mutex
	listeners  map[int]func(Change)
	nextID     int
}

// Open loads every entry from backend.
func Open(ctx context.Context, backend Backend, log *zap.Logger, m *metrics.Metrics) (*Store, error) {
	s := &Store{
		backend:   backend,
		log:       logger.OrNop(log),
		metrics:   m,
		now:       time.Now,
		listeners: make(map[int]func(Change)),
	}
	if err := s.reload(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// Close closes the backend.
func (s *Store) Close() error {
	return s.backend.Close()
}

func (s *Store) reload(ctx context.Context) error {
	all, err := s.backend.GetAll(ctx)
	if err != nil {
		return &StoreIOError{Op: "load", Err: err}
	}
	m := make(map[string]types.Entry, len(all))
	for _, e := range all {
		m[e.ID] = e
	}
	s.mu.Lock()
	s.entries = m
	s.mu.Unlock()
	return nil
}

// Subscribe registers fn for every future change and returns a function
// that removes it. Listeners run on the writer's goroutine after the
// change is visible; they may read the store but must not write to it.
func (s *Store) Subscribe(fn func(Change)) func() {
	s.listenerMu.Lock()
	defer s.listenerMu.Unlock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	return func() {
		s.listenerMu.Lock()
		defer s.listenerMu.Unlock()
		delete(s.listeners, id)
	}
}

func (s *Store) broadcast(changes ...Change) {
	s.listenerMu.Lock()
	fns := make([]func(Change), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.listenerMu.Unlock()

	for _, c := range changes {
		if len(c.IDs) == 0 && c.Kind != ChangeCleared {
			continue
		}
		for _, fn := range fns {
			fn(c)
		}
	}
}

// AddEntry assigns an id and timestamp, persists e and returns the stored
// copy.
func (s *Store) AddEntry(ctx context.Context, e types.Entry) (types.Entry, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	e = e.Clone()
	e.ID = uuid.NewString()
	e.CreatedAt = s.now().UTC()
	if err := types.ValidateEntry(e); err != nil {
		return types.Entry{}, fmt.Errorf("invalid entry: %w", err)
	}

	if err := s.backend.Put(ctx, e); err != nil {
		return types.Entry{}, &StoreIOError{Op: "add", Err: err}
	}
	s.mu.Lock()
	s.entries[e.ID] = e
	s.mu.Unlock()

	s.metrics.Mutation("add")
	s.log.Debug("entry added", zap.String("id", e.ID), zap.String("kind", string(e.Kind)), zap.Int("articles", len(e.Articles)))
	s.broadcast(Change{Kind: ChangeAdded, IDs: []string{e.ID}})
	return e.Clone(), nil
}

// UpdateEntry applies changes to one entry. Setting an empty article
// list deletes the entry.
func (s *Store) UpdateEntry(ctx context.Context, id string, changes EntryChanges) (types.Entry, error) {
	var out types.Entry
	err := s.Batch(ctx, func(tx *Tx) error {
		e, ok := tx.Get(id)
		if !ok {
			return fmt.Errorf("%w: %s", ErrEntryNotFound, id)
		}
		if changes.Title != nil {
			e.Title = *changes.Title
		}
		if changes.SetArticles {
			e.SetArticles(changes.Articles)
			if len(e.Articles) == 0 {
				tx.Delete(id)
				out = e
				return nil
			}
		}
		if err := tx.Put(e); err != nil {
			return err
		}
		out = e
		return nil
	})
	return out, err
}

// DeleteEntries removes the given entries and returns how many existed.
func (s *Store) DeleteEntries(ctx context.Context, ids []string) (int, error) {
	n := 0
	err := s.Batch(ctx, func(tx *Tx) error {
		for _, id := range ids {
			if tx.Delete(id) {
				n++
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

// Clear removes every entry.
func (s *Store) Clear(ctx context.Context) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.backend.Clear(ctx); err != nil {
		return &StoreIOError{Op: "clear", Err: err}
	}
	s.mu.Lock()
	s.entries = make(map[string]types.Entry)
	s.mu.Unlock()

	s.metrics.Mutation("clear")
	s.broadcast(Change{Kind: ChangeCleared})
	return nil
}

// Get returns a copy of one entry.
func (s *Store) Get(id string) (types.Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[id]
	if !ok {
		return types.Entry{}, false
	}
	return e.Clone(), true
}

// ListEntries returns copies of all entries, newest first. Entries with
// equal timestamps are ordered by id.
func (s *Store) ListEntries() []types.Entry {
	s.mu.RLock()
	out := make([]types.Entry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e.Clone())
	}
	s.mu.RUnlock()
	SortEntries(out)
	return out
}

// SortEntries orders entries by descending creation time, then id.
func SortEntries(entries []types.Entry) {
	slices.SortFunc(entries, func(a, b types.Entry) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
}

// Batch runs fn against a working copy of the store and commits every
// change it made with one backend write for deletes and one for updates.
// If fn returns an error nothing is written. If the backend fails the
// in-memory view is reloaded from the backend.
func (s *Store) Batch(ctx context.Context, fn func(tx *Tx) error) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.RLock()
	tx := &Tx{
		base:    s.entries,
		puts:    make(map[string]types.Entry),
		deletes: make(map[string]bool),
	}
	s.mu.RUnlock()

	if err := fn(tx); err != nil {
		return err
	}
	if len(tx.puts) == 0 && len(tx.deletes) == 0 {
		return nil
	}

	puts := make([]types.Entry, 0, len(tx.puts))
	for _, e := range tx.puts {
		puts = append(puts, e)
	}
	SortEntries(puts)
	dels := make([]string, 0, len(tx.deletes))
	for id := range tx.deletes {
		dels = append(dels, id)
	}
	slices.Sort(dels)

	// Deletes are written first; a failed update must not leave behind
	// entries the batch removed.
	if err := s.backend.DeleteMany(ctx, dels); err != nil {
		return s.resync(ctx, "delete", err)
	}
	if err := s.backend.PutMany(ctx, puts); err != nil {
		return s.resync(ctx, "update", err)
	}

	s.mu.Lock()
	next := make(map[string]types.Entry, len(s.entries))
	for id, e := range s.entries {
		if !tx.deletes[id] {
			next[id] = e
		}
	}
	for _, e := range puts {
		next[e.ID] = e
	}
	s.entries = next
	s.mu.Unlock()

	updated := make([]string, len(puts))
	for i, e := range puts {
		updated[i] = e.ID
	}
	slices.Sort(updated)
	if len(puts) > 0 {
		s.metrics.Mutation("update")
	}
	if len(dels) > 0 {
		s.metrics.Mutation("delete")
	}
	s.log.Debug("batch committed", zap.Int("updated", len(puts)), zap.Int("deleted", len(dels)))
	s.broadcast(Change{Kind: ChangeUpdated, IDs: updated}, Change{Kind: ChangeDeleted, IDs: dels})
	return nil
}

func (s *Store) resync(ctx context.Context, op string, cause error) error {
	s.log.Error("store write failed, reloading", zap.String("op", op), zap.Error(cause))
	if err := s.reload(ctx); err != nil {
		s.log.Error("store reload failed", zap.Error(err))
	}
	return &StoreIOError{Op: op, Err: cause}
}

// Tx is the working copy seen inside Batch. It is not safe for use after
// Batch returns.
type Tx struct {
	base    map[string]types.Entry
	puts    map[string]types.Entry
	deletes map[string]bool
}

// Get returns a copy of the entry as changed so far in this batch.
func (tx *Tx) Get(id string) (types.Entry, bool) {
	if tx.deletes[id] {
		return types.Entry{}, false
	}
	if e, ok := tx.puts[id]; ok {
		return e.Clone(), true
	}
	e, ok := tx.base[id]
	if !ok {
		return types.Entry{}, false
	}
	return e.Clone(), true
}

// Entries returns copies of every live entry, newest first.
func (tx *Tx) Entries() []types.Entry {
	out := make([]types.Entry, 0, len(tx.base)+len(tx.puts))
	for id, e := range tx.base {
		if tx.deletes[id] {
			continue
		}
		if p, ok := tx.puts[id]; ok {
			e = p
		}
		out = append(out, e.Clone())
	}
	for id, e := range tx.puts {
		if _, ok := tx.base[id]; !ok {
			out = append(out, e.Clone())
		}
	}
	SortEntries(out)
	return out
}

// Put stages an update to an existing entry. The id must already exist.
func (tx *Tx) Put(e types.Entry) error {
	if _, ok := tx.base[e.ID]; !ok || tx.deletes[e.ID] {
		return fmt.Errorf("%w: %s", ErrEntryNotFound, e.ID)
	}
	if err := types.ValidateEntry(e); err != nil {
		return fmt.Errorf("invalid entry: %w", err)
	}
	tx.puts[e.ID] = e.Clone()
	return nil
}

// Upsert stages an entry that may not exist yet, keeping its id and
// timestamp.
func (tx *Tx) Upsert(e types.Entry) error {
	if err := types.ValidateEntry(e); err != nil {
		return fmt.Errorf("invalid entry %s: %w", e.ID, err)
	}
	delete(tx.deletes, e.ID)
	tx.puts[e.ID] = e.Clone()
	return nil
}

// Delete stages removal of an entry and reports whether it was live.
func (tx *Tx) Delete(id string) bool {
	_, inBase := tx.base[id]
	_, staged := tx.puts[id]
	if (!inBase && !staged) || tx.deletes[id] {
		return false
	}
	delete(tx.puts, id)
	if inBase {
		tx.deletes[id] = true
	}
	return true
}
