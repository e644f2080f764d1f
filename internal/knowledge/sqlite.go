// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package knowledge

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/pdiddy/litreview-engine/pkg/types"
)

const dbFile = "litreview.db"

// SQLiteBackend stores each entry as a JSON document in one table.
type SQLiteBackend struct {
	db *sql.DB
}

// NewSQLiteBackend opens or creates dir/litreview.db and its schema.
func NewSQLiteBackend(dir string) (*SQLiteBackend, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating store directory: %w", err)
	}

	db, err := sql.Open("sqlite3", filepath.Join(dir, dbFile)+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	db.SetMaxOpenConns(1)

	b := &SQLiteBackend{db: db}
	if err := b.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return b, nil
}

func (b *SQLiteBackend) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS entries (
			id TEXT PRIMARY KEY,
			kind TEXT NOT NULL,
			title TEXT,
			created_at TEXT NOT NULL,
			payload TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_entries_created_at ON entries(created_at)`,
	}
	for _, stmt := range statements {
		if _, err := b.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}
	return nil
}

// Close releases the database connection.
func (b *SQLiteBackend) Close() error {
	return b.db.Close()
}

// GetAll loads every entry.
func (b *SQLiteBackend) GetAll(ctx context.Context) ([]types.Entry, error) {
	rows, err := b.db.QueryContext(ctx, `SELECT id, payload FROM entries ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("querying entries: %w", err)
	}
	defer rows.Close()

	var out []types.Entry
	for rows.Next() {
		var id, payload string
		if err := rows.Scan(&id, &payload); err != nil {
			return nil, fmt.Errorf("scanning entry: %w", err)
		}
		var e types.Entry
		if err := json.Unmarshal([]byte(payload), &e); err != nil {
			return nil, fmt.Errorf("decoding entry %s: %w", id, err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Put inserts or replaces one entry.
func (b *SQLiteBackend) Put(ctx context.Context, e types.Entry) error {
	return b.PutMany(ctx, []types.Entry{e})
}

// PutMany inserts or replaces entries in one transaction.
func (b *SQLiteBackend) PutMany(ctx context.Context, entries []types.Entry) error {
	if len(entries) == 0 {
		return nil
	}
	return b.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `INSERT OR REPLACE INTO entries (id, kind, title, created_at, payload) VALUES (?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("preparing insert: %w", err)
		}
		defer stmt.Close()

		for _, e := range entries {
			payload, err := json.Marshal(e)
			if err != nil {
				return fmt.Errorf("encoding entry %s: %w", e.ID, err)
			}
			if _, err := stmt.ExecContext(ctx, e.ID, string(e.Kind), e.Title, e.CreatedAt.UTC().Format(time.RFC3339Nano), string(payload)); err != nil {
				return fmt.Errorf("writing entry %s: %w", e.ID, err)
			}
		}
		return nil
	})
}

// DeleteMany removes entries by id. Unknown ids are ignored.
func (b *SQLiteBackend) DeleteMany(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	return b.inTx(ctx, func(tx *sql.Tx) error {
		for _, id := range ids {
			if _, err := tx.ExecContext(ctx, `DELETE FROM entries WHERE id = ?`, id); err != nil {
				return fmt.Errorf("deleting entry %s: %w", id, err)
			}
		}
		return nil
	})
}

// Clear removes every entry.
func (b *SQLiteBackend) Clear(ctx context.Context) error {
	if _, err := b.db.ExecContext(ctx, `DELETE FROM entries`); err != nil {
		return fmt.Errorf("clearing entries: %w", err)
	}
	return nil
}

func (b *SQLiteBackend) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}
