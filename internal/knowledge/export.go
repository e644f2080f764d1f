// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package knowledge

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/litreview-engine/pkg/types"
)

// Format selects the backup encoding.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

const backupVersion = 1

// Backup is the on-disk form of a full store export.
type Backup struct {
	Version    int           `json:"version" yaml:"version"`
	ExportedAt time.Time     `json:"exported_at" yaml:"exported_at"`
	Entries    []types.Entry `json:"entries" yaml:"entries"`
}

// Export writes every entry to w, newest first.
func (s *Store) Export(w io.Writer, format Format) error {
	b := Backup{
		Version:    backupVersion,
		ExportedAt: s.now().UTC(),
		Entries:    s.ListEntries(),
	}
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(b); err != nil {
			return fmt.Errorf("encoding JSON: %w", err)
		}
	case FormatYAML, "":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(b); err != nil {
			return fmt.Errorf("encoding YAML: %w", err)
		}
		if err := enc.Close(); err != nil {
			return fmt.Errorf("encoding YAML: %w", err)
		}
	default:
		return fmt.Errorf("unsupported export format %q", format)
	}
	return nil
}

// Import reads a backup and upserts its entries in one batch, keeping
// their ids and timestamps. Entries already present are replaced.
func (s *Store) Import(ctx context.Context, r io.Reader, format Format) (int, error) {
	var b Backup
	switch format {
	case FormatJSON:
		if err := json.NewDecoder(r).Decode(&b); err != nil {
			return 0, fmt.Errorf("decoding JSON: %w", err)
		}
	case FormatYAML, "":
		if err := yaml.NewDecoder(r).Decode(&b); err != nil {
			return 0, fmt.Errorf("decoding YAML: %w", err)
		}
	default:
		return 0, fmt.Errorf("unsupported import format %q", format)
	}
	if b.Version > backupVersion {
		return 0, fmt.Errorf("backup version %d is newer than supported version %d", b.Version, backupVersion)
	}

	err := s.Batch(ctx, func(tx *Tx) error {
		for _, e := range b.Entries {
			if e.CreatedAt.IsZero() {
				e.CreatedAt = s.now().UTC()
			}
			if err := tx.Upsert(e); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(b.Entries), nil
}
