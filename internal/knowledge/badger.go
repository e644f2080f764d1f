// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package knowledge

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/dgraph-io/badger/v4"

	"github.com/pdiddy/litreview-engine/pkg/types"
)

var entryPrefix = []byte("entry/")

func entryKey(id string) []byte {
	return append(append([]byte(nil), entryPrefix...), id...)
}

// BadgerBackend stores entries as JSON values under "entry/<id>".
type BadgerBackend struct {
	db *badger.DB
}

// NewBadgerBackend opens a database in dir, or an in-memory one when
// inMemory is set (dir is then ignored).
func NewBadgerBackend(dir string, inMemory bool) (*BadgerBackend, error) {
	var opts badger.Options
	if inMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating store directory: %w", err)
		}
		opts = badger.DefaultOptions(dir)
	}
	opts = opts.WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening badger: %w", err)
	}
	return &BadgerBackend{db: db}, nil
}

// Close releases the database.
func (b *BadgerBackend) Close() error {
	return b.db.Close()
}

// GetAll loads every entry.
func (b *BadgerBackend) GetAll(_ context.Context) ([]types.Entry, error) {
	var out []types.Entry
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = entryPrefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			var e types.Entry
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &e)
			}); err != nil {
				return fmt.Errorf("decoding %s: %w", item.Key(), err)
			}
			out = append(out, e)
		}
		return nil
	})
	return out, err
}

// Put writes one entry.
func (b *BadgerBackend) Put(ctx context.Context, e types.Entry) error {
	return b.PutMany(ctx, []types.Entry{e})
}

// PutMany writes entries in one transaction.
func (b *BadgerBackend) PutMany(_ context.Context, entries []types.Entry) error {
	if len(entries) == 0 {
		return nil
	}
	return b.db.Update(func(txn *badger.Txn) error {
		for _, e := range entries {
			data, err := json.Marshal(e)
			if err != nil {
				return fmt.Errorf("encoding entry %s: %w", e.ID, err)
			}
			if err := txn.Set(entryKey(e.ID), data); err != nil {
				return fmt.Errorf("writing entry %s: %w", e.ID, err)
			}
		}
		return nil
	})
}

// DeleteMany removes entries by id.
func (b *BadgerBackend) DeleteMany(_ context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	return b.db.Update(func(txn *badger.Txn) error {
		for _, id := range ids {
			if err := txn.Delete(entryKey(id)); err != nil {
				return fmt.Errorf("deleting entry %s: %w", id, err)
			}
		}
		return nil
	})
}

// Clear removes every entry.
func (b *BadgerBackend) Clear(_ context.Context) error {
	return b.db.DropPrefix(entryPrefix)
}
