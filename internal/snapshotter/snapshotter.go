// CrossWatch - cross-provider media library synchronization engine
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/crosswatch-sync/crosswatch

// Package snapshotter implements C6 Snapshotter: point-in-time captures of
// a provider/feature index, with list/read/restore/delete/diff and a
// provider-feature "clear" convenience, per spec §4.6. Grounded directly on
// the Python original's services/snapshots.py (file naming, bundle/child
// document shape, restore modes, diff algorithm).
package snapshotter

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/crosswatch-sync/crosswatch/internal/identity"
	"github.com/crosswatch-sync/crosswatch/internal/provider"
)

const (
	KindSnapshot = "snapshot"
	KindBundle   = "snapshot_bundle"

	// FeatureAll requests a bundle covering every enabled feature of a
	// provider, per spec §4.6 "For feature='all' ...".
	FeatureAll = "all"
)

// RestoreMode selects how Restore reconciles a snapshot against the
// adapter's current index, per spec §4.6.
type RestoreMode string

const (
	RestoreMerge        RestoreMode = "merge"
	RestoreClearRestore RestoreMode = "clear_restore"
)

var safeLabelChars = regexp.MustCompile(`[^a-zA-Z0-9._ -]+`)
var whitespaceRun = regexp.MustCompile(`\s+`)

func safeLabel(label string) string {
	s := safeLabelChars.ReplaceAllString(strings.TrimSpace(label), "")
	s = strings.TrimSpace(whitespaceRun.ReplaceAllString(s, " "))
	if s == "" {
		return "snapshot"
	}
	if len(s) > 60 {
		s = s[:60]
	}
	return s
}

var unsafeNameChars = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// Stats summarizes one feature index, per spec §4.6/original `_stats_for`.
type Stats struct {
	Feature string         `json:"feature"`
	Count   int            `json:"count"`
	ByType  map[string]int `json:"by_type,omitempty"`
}

func statsFor(feature string, idx map[string]identity.Item) Stats {
	byType := map[string]int{}
	for _, item := range idx {
		byType[string(item.Type)]++
	}
	return Stats{Feature: feature, Count: len(idx), ByType: byType}
}

// ChildMeta is one bundle child reference, per the original's `children`
// array entries.
type ChildMeta struct {
	Feature string `json:"feature"`
	Path    string `json:"path"`
	Stats   Stats  `json:"stats,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Document is the on-disk snapshot payload, per spec §3 and §4.6.
type Document struct {
	Kind       string                    `json:"kind"`
	CreatedAt  string                    `json:"created_at"`
	Provider   string                    `json:"provider"`
	Instance   string                    `json:"instance"`
	Feature    string                    `json:"feature"`
	Label      string                    `json:"label"`
	Stats      Stats                     `json:"stats"`
	Items      map[string]identity.Item  `json:"items,omitempty"`
	Children   []ChildMeta               `json:"children,omitempty"`
	AppVersion string                    `json:"app_version,omitempty"`
	Path       string                    `json:"-"`
}

// Meta is the summary row returned by List, parsed from a snapshot's
// filename (no need to read the file body), per the original's
// `list_snapshots`.
type Meta struct {
	Path     string
	Stamp    string
	Provider string
	Instance string
	Feature  string
	Label    string
	Size     int64
	ModTime  time.Time
}

// Snapshotter creates, lists, reads, restores, deletes, and diffs snapshot
// documents rooted at Root, per spec §4.6.
type Snapshotter struct {
	Root string
}

// New builds a Snapshotter rooted at dir, creating it if necessary.
func New(dir string) (*Snapshotter, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create snapshots root %s: %w", dir, err)
	}
	return &Snapshotter{Root: dir}, nil
}

func (s *Snapshotter) dateDir(ts time.Time) string {
	return filepath.Join(s.Root, ts.Format("2006-01-02"))
}

func snapName(ts time.Time, providerKey, instance, feature, label string) string {
	stamp := ts.Format("20060102T150405Z")
	safe := strings.ReplaceAll(safeLabel(label), " ", "_")
	inst := unsafeNameChars.ReplaceAllString(strings.TrimSpace(instance), "")
	if inst == "" {
		inst = "default"
	}
	return fmt.Sprintf("%s__%s__%s__%s__%s.json", stamp, strings.ToUpper(providerKey), inst, feature, safe)
}

// writeAtomic marshals doc and writes it via a uuid-suffixed temp file then
// rename, per spec §4.6/§1F "tmp-file suffixing for atomic writes
// (<final>.tmp-<uuid>)".
func writeAtomic(path string, doc any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	tmp := fmt.Sprintf("%s.tmp-%s", path, uuid.New().String()[:8])
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write temp snapshot %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("rename temp snapshot into place %s: %w", path, err)
	}
	return nil
}

// Create invokes adapter.BuildIndex and writes the resulting document,
// returning its relative path and stats, per spec §4.6 `create`. feature
// may be FeatureAll to build one child per enabled feature plus a parent
// bundle document; children and bundle share ts.
func (s *Snapshotter) Create(ctx context.Context, adapter provider.Adapter, providerKey, instance, feature, label string) (Meta, Document, error) {
	ts := time.Now().UTC()
	if feature == FeatureAll {
		return s.createBundle(ctx, adapter, providerKey, instance, label, ts)
	}
	return s.createSingle(ctx, adapter, providerKey, instance, provider.Feature(feature), label, ts)
}

func (s *Snapshotter) createSingle(ctx context.Context, adapter provider.Adapter, providerKey, instance string, feature provider.Feature, label string, ts time.Time) (Meta, Document, error) {
	idx, err := adapter.BuildIndex(ctx, feature)
	if err != nil {
		return Meta{}, Document{}, fmt.Errorf("build index for snapshot: %w", err)
	}
	stats := statsFor(string(feature), idx)
	rel := filepath.Join(ts.Format("2006-01-02"), snapName(ts, providerKey, instance, string(feature), label))
	path := filepath.Join(s.Root, rel)

	doc := Document{
		Kind:      KindSnapshot,
		CreatedAt: ts.Format(time.RFC3339),
		Provider:  providerKey,
		Instance:  instance,
		Feature:   string(feature),
		Label:     safeLabel(label),
		Stats:     stats,
		Items:     idx,
	}
	if err := writeAtomic(path, doc); err != nil {
		return Meta{}, Document{}, err
	}
	doc.Path = rel
	return Meta{Path: rel, Stamp: ts.Format("20060102T150405Z"), Provider: providerKey, Instance: instance, Feature: string(feature), Label: doc.Label, ModTime: ts}, doc, nil
}

func (s *Snapshotter) createBundle(ctx context.Context, adapter provider.Adapter, providerKey, instance, label string, ts time.Time) (Meta, Document, error) {
	var children []ChildMeta
	featuresTotal := map[string]int{}
	total := 0
	enabled := adapter.Features()

	for _, feature := range []provider.Feature{provider.FeatureWatchlist, provider.FeatureRatings, provider.FeatureHistory} {
		if !enabled[string(feature)] {
			continue
		}
		_, childDoc, err := s.createSingle(ctx, adapter, providerKey, instance, feature, label, ts)
		if err != nil {
			children = append(children, ChildMeta{Feature: string(feature), Error: err.Error()})
			continue
		}
		children = append(children, ChildMeta{Feature: string(feature), Path: childDoc.Path, Stats: childDoc.Stats})
		featuresTotal[string(feature)] = childDoc.Stats.Count
		total += childDoc.Stats.Count
	}
	if len(children) == 0 {
		return Meta{}, Document{}, fmt.Errorf("no snapshot-capable features for provider %s", providerKey)
	}

	rel := filepath.Join(ts.Format("2006-01-02"), snapName(ts, providerKey, instance, FeatureAll, label))
	path := filepath.Join(s.Root, rel)
	stats := Stats{Feature: FeatureAll, Count: total, ByType: featuresTotal}

	doc := Document{
		Kind:      KindBundle,
		CreatedAt: ts.Format(time.RFC3339),
		Provider:  providerKey,
		Instance:  instance,
		Feature:   FeatureAll,
		Label:     safeLabel(label),
		Stats:     stats,
		Children:  children,
	}
	if err := writeAtomic(path, doc); err != nil {
		return Meta{}, Document{}, err
	}
	doc.Path = rel
	return Meta{Path: rel, Stamp: ts.Format("20060102T150405Z"), Provider: providerKey, Instance: instance, Feature: FeatureAll, Label: doc.Label, ModTime: ts}, doc, nil
}

// List recursively scans Root and parses each filename into a Meta, sorted
// by mtime descending, per spec §4.6 `list`.
func (s *Snapshotter) List() ([]Meta, error) {
	var out []Meta
	err := filepath.Walk(s.Root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || !strings.HasSuffix(info.Name(), ".json") {
			return nil
		}
		rel, relErr := filepath.Rel(s.Root, path)
		if relErr != nil {
			rel = path
		}
		rel = filepath.ToSlash(rel)
		out = append(out, parseMeta(rel, info))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ModTime.After(out[j].ModTime) })
	return out, nil
}

func parseMeta(rel string, info os.FileInfo) Meta {
	meta := Meta{Path: rel, Size: info.Size(), ModTime: info.ModTime()}
	name := filepath.Base(rel)
	parts := strings.Split(name, "__")
	switch {
	case len(parts) >= 5:
		meta.Stamp = parts[0]
		meta.Provider = parts[1]
		meta.Instance = parts[2]
		meta.Feature = parts[3]
		meta.Label = strings.ReplaceAll(strings.TrimSuffix(parts[4], filepath.Ext(parts[4])), "_", " ")
	case len(parts) >= 3:
		meta.Stamp = parts[0]
		meta.Provider = parts[1]
		meta.Instance = "default"
		meta.Feature = strings.TrimSuffix(parts[2], filepath.Ext(parts[2]))
	}
	return meta
}

// resolvePath validates that rel stays within Root (no traversal), per
// spec §4.6 `read`/`delete`: "validates path is inside the snapshots root".
func (s *Snapshotter) resolvePath(rel string) (string, error) {
	rel = strings.TrimPrefix(strings.TrimSpace(rel), "/")
	if rel == "" {
		return "", fmt.Errorf("snapshot path is required")
	}
	root, err := filepath.Abs(s.Root)
	if err != nil {
		return "", err
	}
	abs, err := filepath.Abs(filepath.Join(root, rel))
	if err != nil {
		return "", err
	}
	if abs != root && !strings.HasPrefix(abs, root+string(filepath.Separator)) {
		return "", fmt.Errorf("invalid snapshot path")
	}
	return abs, nil
}

// Read loads and validates a snapshot document, enriching bundle stats if
// missing by summing children, per spec §4.6 `read`.
func (s *Snapshotter) Read(rel string) (Document, error) {
	abs, err := s.resolvePath(rel)
	if err != nil {
		return Document{}, err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return Document{}, fmt.Errorf("snapshot not found: %s", rel)
		}
		return Document{}, fmt.Errorf("read snapshot %s: %w", rel, err)
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return Document{}, fmt.Errorf("decode snapshot %s: %w", rel, err)
	}
	doc.Path = strings.TrimPrefix(filepath.ToSlash(rel), "/")

	if doc.Kind == KindBundle || doc.Feature == FeatureAll {
		if doc.Stats.Count == 0 && len(doc.Children) > 0 {
			total := 0
			byFeature := map[string]int{}
			for _, c := range doc.Children {
				byFeature[c.Feature] = c.Stats.Count
				total += c.Stats.Count
			}
			doc.Stats = Stats{Feature: FeatureAll, Count: total, ByType: byFeature}
		}
		return doc, nil
	}
	if doc.Stats.Count == 0 && len(doc.Items) > 0 {
		doc.Stats = statsFor(doc.Feature, doc.Items)
	}
	return doc, nil
}

// RestoreResult is the outcome of restoring one (non-bundle) snapshot.
type RestoreResult struct {
	OK            bool
	Provider      string
	Instance      string
	Feature       string
	Mode          RestoreMode
	Added         int
	Removed       int
	CurrentCount  int
	SnapshotCount int
	Errors        []string
	Children      []RestoreResult
}

// Restore applies a snapshot to adapter's current index, per spec §4.6
// `restore`. `merge` adds snapshot items missing from the current index;
// `clear_restore` removes everything current first, aborting before the
// add phase on any remove error. Bundle snapshots restore each child.
func (s *Snapshotter) Restore(ctx context.Context, adapter provider.Adapter, rel string, mode RestoreMode, chunkSize int) (RestoreResult, error) {
	doc, err := s.Read(rel)
	if err != nil {
		return RestoreResult{}, err
	}
	if doc.Kind == KindBundle || doc.Feature == FeatureAll {
		result := RestoreResult{OK: true, Provider: doc.Provider, Instance: doc.Instance, Feature: FeatureAll, Mode: mode}
		for _, child := range doc.Children {
			if child.Path == "" {
				continue
			}
			childResult, err := s.Restore(ctx, adapter, child.Path, mode, chunkSize)
			if err != nil {
				result.Errors = append(result.Errors, err.Error())
				result.OK = false
				continue
			}
			result.Children = append(result.Children, childResult)
			result.OK = result.OK && childResult.OK
		}
		return result, nil
	}
	return s.restoreSingle(ctx, adapter, doc, mode, chunkSize)
}

func (s *Snapshotter) restoreSingle(ctx context.Context, adapter provider.Adapter, doc Document, mode RestoreMode, chunkSize int) (RestoreResult, error) {
	feature := provider.Feature(doc.Feature)
	cur, err := adapter.BuildIndex(ctx, feature)
	if err != nil {
		return RestoreResult{}, fmt.Errorf("build current index for restore: %w", err)
	}

	var toAddItems, toRemoveItems []identity.Item
	for key, item := range doc.Items {
		if _, present := cur[key]; !present {
			toAddItems = append(toAddItems, item)
		}
	}
	if mode == RestoreClearRestore {
		for _, item := range cur {
			toRemoveItems = append(toRemoveItems, item)
		}
	}

	result := RestoreResult{OK: true, Provider: doc.Provider, Instance: doc.Instance, Feature: doc.Feature, Mode: mode, CurrentCount: len(cur), SnapshotCount: len(doc.Items)}

	for _, chunk := range provider.Chunk(toRemoveItems, chunkSize) {
		wr, err := adapter.Remove(ctx, feature, chunk, false)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("remove_failed: %v", err))
			continue
		}
		result.Removed += wr.Count
	}
	if mode == RestoreClearRestore && len(result.Errors) > 0 {
		result.OK = false
		return result, nil
	}

	for _, chunk := range provider.Chunk(toAddItems, chunkSize) {
		wr, err := adapter.Add(ctx, feature, chunk, false)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("add_failed: %v", err))
			continue
		}
		result.Added += wr.Count
	}

	result.OK = len(result.Errors) == 0
	return result, nil
}

// DeleteResult is the outcome of Delete.
type DeleteResult struct {
	OK      bool
	Deleted []string
	Errors  []string
}

// Delete removes a snapshot file (refusing paths outside Root), and when
// deleteChildren is set on a bundle, recursively deletes its children
// first, per spec §4.6 `delete`.
func (s *Snapshotter) Delete(rel string, deleteChildren bool) (DeleteResult, error) {
	abs, err := s.resolvePath(rel)
	if err != nil {
		return DeleteResult{}, err
	}
	info, err := os.Stat(abs)
	if err != nil || info.IsDir() {
		return DeleteResult{}, fmt.Errorf("snapshot not found: %s", rel)
	}

	var result DeleteResult
	if deleteChildren {
		if data, err := os.ReadFile(abs); err == nil {
			var doc Document
			if json.Unmarshal(data, &doc) == nil && (doc.Kind == KindBundle || doc.Feature == FeatureAll) {
				for _, child := range doc.Children {
					if child.Path == "" {
						continue
					}
					childResult, _ := s.Delete(child.Path, false)
					result.Deleted = append(result.Deleted, childResult.Deleted...)
					result.Errors = append(result.Errors, childResult.Errors...)
				}
			}
		}
	}

	if err := os.Remove(abs); err != nil {
		result.Errors = append(result.Errors, err.Error())
	} else {
		result.Deleted = append(result.Deleted, strings.TrimPrefix(filepath.ToSlash(rel), "/"))
	}

	if parent := filepath.Dir(abs); parent != s.Root {
		if entries, err := os.ReadDir(parent); err == nil && len(entries) == 0 {
			_ = os.Remove(parent)
		}
	}

	result.OK = len(result.Errors) == 0
	return result, nil
}

// ClearResult is the outcome of ClearProviderFeatures.
type ClearResult struct {
	OK      bool
	Results map[string]FeatureClearResult
}

// FeatureClearResult is the per-feature outcome within ClearResult.
type FeatureClearResult struct {
	OK      bool
	Skipped bool
	Reason  string
	Removed int
	Count   int
	Errors  []string
}

// ClearProviderFeatures builds each feature's index then removes
// everything in chunks, per spec §4.6 `clear_provider_features`.
func (s *Snapshotter) ClearProviderFeatures(ctx context.Context, adapter provider.Adapter, features []provider.Feature, chunkSize int) (ClearResult, error) {
	enabled := adapter.Features()
	result := ClearResult{OK: true, Results: map[string]FeatureClearResult{}}

	for _, feature := range features {
		if !enabled[string(feature)] {
			result.Results[string(feature)] = FeatureClearResult{OK: true, Skipped: true, Reason: "feature_disabled"}
			continue
		}
		idx, err := adapter.BuildIndex(ctx, feature)
		if err != nil {
			result.OK = false
			result.Results[string(feature)] = FeatureClearResult{Errors: []string{err.Error()}}
			continue
		}
		items := make([]identity.Item, 0, len(idx))
		for _, item := range idx {
			items = append(items, item)
		}

		fr := FeatureClearResult{OK: true, Count: len(items)}
		for _, chunk := range provider.Chunk(items, chunkSize) {
			wr, err := adapter.Remove(ctx, feature, chunk, false)
			if err != nil {
				fr.Errors = append(fr.Errors, err.Error())
				continue
			}
			fr.Removed += wr.Count
		}
		fr.OK = len(fr.Errors) == 0
		result.OK = result.OK && fr.OK
		result.Results[string(feature)] = fr
	}
	return result, nil
}

// Change is one field-level difference within an updated item, per spec
// §4.6 `diff`'s "Updated items carry per-field changes to max_depth".
type Change struct {
	Path string `json:"path"`
	Old  any    `json:"old"`
	New  any    `json:"new"`
}

// DiffResult is the outcome of Diff, per spec §4.6.
type DiffResult struct {
	Summary   DiffSummary
	Added     []KeyedItem
	Removed   []KeyedItem
	Updated   []UpdatedItem
	Truncated map[string]bool
}

// DiffSummary totals the buckets in a DiffResult.
type DiffSummary struct {
	TotalA, TotalB                   int
	Added, Removed, Updated, Unchanged int
}

// KeyedItem pairs a canonical key with its item, for Added/Removed rows.
type KeyedItem struct {
	Key  string
	Item identity.Item
}

// UpdatedItem carries both sides of a changed key plus its field diffs.
type UpdatedItem struct {
	Key     string
	Old     identity.Item
	New     identity.Item
	Changes []Change
}

// Diff compares two non-bundle snapshots, per spec §4.6 `diff`. Results
// are capped at limit per bucket with Truncated flags; updated items'
// field-level diffs are capped at maxDepth/maxChanges.
func (s *Snapshotter) Diff(aPath, bPath string, limit, maxDepth, maxChanges int) (DiffResult, error) {
	a, err := s.Read(aPath)
	if err != nil {
		return DiffResult{}, err
	}
	b, err := s.Read(bPath)
	if err != nil {
		return DiffResult{}, err
	}
	if a.Kind == KindBundle || a.Feature == FeatureAll {
		return DiffResult{}, fmt.Errorf("snapshot A is a bundle; pick a watchlist/ratings/history snapshot")
	}
	if b.Kind == KindBundle || b.Feature == FeatureAll {
		return DiffResult{}, fmt.Errorf("snapshot B is a bundle; pick a watchlist/ratings/history snapshot")
	}
	if limit <= 0 {
		limit = 200
	}
	if limit > 2000 {
		limit = 2000
	}
	if maxDepth <= 0 {
		maxDepth = 4
	}
	if maxChanges <= 0 {
		maxChanges = 25
	}

	var addedKeys, removedKeys, commonKeys []string
	for key := range b.Items {
		if _, ok := a.Items[key]; !ok {
			addedKeys = append(addedKeys, key)
		}
	}
	for key := range a.Items {
		if _, ok := b.Items[key]; ok {
			commonKeys = append(commonKeys, key)
		} else {
			removedKeys = append(removedKeys, key)
		}
	}
	sort.Strings(addedKeys)
	sort.Strings(removedKeys)
	sort.Strings(commonKeys)

	var updatedKeys []string
	for _, key := range commonKeys {
		if !itemsEqual(a.Items[key], b.Items[key]) {
			updatedKeys = append(updatedKeys, key)
		}
	}

	result := DiffResult{
		Summary: DiffSummary{
			TotalA:    len(a.Items),
			TotalB:    len(b.Items),
			Added:     len(addedKeys),
			Removed:   len(removedKeys),
			Updated:   len(updatedKeys),
			Unchanged: len(commonKeys) - len(updatedKeys),
		},
		Truncated: map[string]bool{
			"added":   len(addedKeys) > limit,
			"removed": len(removedKeys) > limit,
			"updated": len(updatedKeys) > limit,
		},
	}
	for _, key := range capSlice(addedKeys, limit) {
		result.Added = append(result.Added, KeyedItem{Key: key, Item: b.Items[key]})
	}
	for _, key := range capSlice(removedKeys, limit) {
		result.Removed = append(result.Removed, KeyedItem{Key: key, Item: a.Items[key]})
	}
	for _, key := range capSlice(updatedKeys, limit) {
		old, new_ := a.Items[key], b.Items[key]
		var changes []Change
		diffAny(asAny(old), asAny(new_), "", &changes, maxDepth, maxChanges, 0)
		result.Updated = append(result.Updated, UpdatedItem{Key: key, Old: old, New: new_, Changes: changes})
	}
	return result, nil
}

func capSlice(keys []string, limit int) []string {
	if len(keys) > limit {
		return keys[:limit]
	}
	return keys
}

func itemsEqual(a, b identity.Item) bool {
	aj, _ := json.Marshal(a)
	bj, _ := json.Marshal(b)
	return string(aj) == string(bj)
}

// asAny round-trips an Item through JSON into a generic map so diffAny can
// walk it field-by-field, mirroring the original's dict-based comparison.
func asAny(item identity.Item) any {
	data, _ := json.Marshal(item)
	var out any
	_ = json.Unmarshal(data, &out)
	return out
}

func diffAny(a, b any, path string, out *[]Change, maxDepth, maxChanges, depth int) {
	if len(*out) >= maxChanges {
		return
	}
	aj, _ := json.Marshal(a)
	bj, _ := json.Marshal(b)
	if string(aj) == string(bj) {
		return
	}
	if depth >= maxDepth {
		*out = append(*out, Change{Path: pathOrRoot(path), Old: a, New: b})
		return
	}
	am, aok := a.(map[string]any)
	bm, bok := b.(map[string]any)
	if aok && bok {
		keys := map[string]struct{}{}
		for k := range am {
			keys[k] = struct{}{}
		}
		for k := range bm {
			keys[k] = struct{}{}
		}
		sorted := make([]string, 0, len(keys))
		for k := range keys {
			sorted = append(sorted, k)
		}
		sort.Strings(sorted)
		for _, k := range sorted {
			if len(*out) >= maxChanges {
				return
			}
			av, hasA := am[k]
			bv, hasB := bm[k]
			p := joinPath(path, k)
			switch {
			case !hasA:
				*out = append(*out, Change{Path: p, Old: nil, New: bv})
			case !hasB:
				*out = append(*out, Change{Path: p, Old: av, New: nil})
			default:
				diffAny(av, bv, p, out, maxDepth, maxChanges, depth+1)
			}
		}
		return
	}
	*out = append(*out, Change{Path: pathOrRoot(path), Old: a, New: b})
}

func joinPath(base, key string) string {
	if base == "" {
		return key
	}
	return base + "." + key
}

func pathOrRoot(path string) string {
	if path == "" {
		return "<root>"
	}
	return path
}
