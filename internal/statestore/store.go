// CrossWatch - cross-provider media library synchronization engine
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/crosswatch-sync/crosswatch

package statestore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/rs/zerolog"

	"github.com/crosswatch-sync/crosswatch/internal/identity"
	"github.com/crosswatch-sync/crosswatch/internal/logging"
)

// Store reads and writes PairState documents atomically under a root
// directory, per spec §4.4 "StateStore". File layout is
// "<name>.<safe_scope>.<ext>"; a legacy unscoped "<name>.<ext>" is
// auto-migrated on first read.
//
// This component is implemented on encoding/json + os file primitives
// rather than a third-party store: it is a few atomic JSON documents per
// pair, not a query workload, and none of the pack's storage drivers
// (DuckDB, BadgerDB) are a better fit for "read whole file, write whole
// file, scoped by filename" — see DESIGN.md.
type Store struct {
	root string
	log  zerolog.Logger
}

// New creates a Store rooted at dir, creating it if necessary.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create state store root %s: %w", dir, err)
	}
	return &Store{root: dir, log: logging.ForProvider("statestore")}, nil
}

func (s *Store) scopedPath(name, safeScope, ext string) string {
	return filepath.Join(s.root, fmt.Sprintf("%s.%s.%s", name, safeScope, ext))
}

func (s *Store) legacyPath(name, ext string) string {
	return filepath.Join(s.root, fmt.Sprintf("%s.%s", name, ext))
}

// Load reads the PairState for scope, migrating a legacy unscoped file in
// place if the scoped file does not yet exist. A disabled scope (per
// Disabled) always returns a fresh empty state without touching disk.
func (s *Store) Load(name string, scope PairScope) (*PairState, error) {
	raw := scope.Key()
	if Disabled(raw) {
		return NewPairState(), nil
	}
	safe := SanitizeScope(raw)
	path := s.scopedPath(name, safe, "json")

	if _, err := os.Stat(path); err != nil {
		legacy := s.legacyPath(name, "json")
		if data, lerr := os.ReadFile(legacy); lerr == nil {
			s.log.Info().Str("name", name).Str("scope", safe).Msg("migrating legacy unscoped state file")
			if werr := s.writeAtomic(path, data); werr != nil {
				return nil, werr
			}
			_ = os.Remove(legacy)
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return NewPairState(), nil
		}
		return nil, fmt.Errorf("read state %s: %w", path, err)
	}

	ps := NewPairState()
	if err := json.Unmarshal(data, ps); err != nil {
		return nil, fmt.Errorf("decode state %s: %w", path, err)
	}
	if ps.Baseline == nil {
		ps.Baseline = map[string]identity.Item{}
	}
	if ps.Shadow == nil {
		ps.Shadow = map[string]ShadowEntry{}
	}
	return ps, nil
}

// Save writes ps atomically for scope: marshal with stable key order, write
// to "<final>.tmp", then rename over the final path. A disabled scope is a
// silent no-op.
func (s *Store) Save(name string, scope PairScope, ps *PairState) error {
	raw := scope.Key()
	if Disabled(raw) {
		return nil
	}
	safe := SanitizeScope(raw)
	path := s.scopedPath(name, safe, "json")

	data, err := marshalStable(ps)
	if err != nil {
		return fmt.Errorf("encode state %s: %w", path, err)
	}
	return s.writeAtomic(path, data)
}

func (s *Store) writeAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write temp state file %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("rename temp state file into place %s: %w", path, err)
	}
	return nil
}

// marshalStable encodes v with map keys in sorted order (Go's
// encoding/json already sorts map[string]* keys on Marshal, so this just
// documents the invariant from spec §4.4 "JSON with stable sort of keys").
func marshalStable(v any) ([]byte, error) {
	return json.MarshalIndent(v, "", "  ")
}

// listStateFiles returns scoped state file paths under root matching name,
// sorted by modification time.
func listStateFiles(root, name string) ([]string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, err
	}
	type fi struct {
		path string
		mod  int64
	}
	var matches []fi
	prefix := name + "."
	for _, e := range entries {
		if e.IsDir() || len(e.Name()) <= len(prefix) || e.Name()[:len(prefix)] != prefix {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		matches = append(matches, fi{path: filepath.Join(root, e.Name()), mod: info.ModTime().UnixNano()})
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].mod < matches[j].mod })
	out := make([]string, len(matches))
	for i, m := range matches {
		out[i] = m.path
	}
	return out, nil
}
