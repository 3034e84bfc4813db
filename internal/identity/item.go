// CrossWatch - cross-provider media library synchronization engine
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/crosswatch-sync/crosswatch

// Package identity implements the cross-provider canonical keying system
// (normalization, ID merging, canonical key selection, and overlap-based
// item matching) shared by every ProviderAdapter and the Reconciler.
//
// It is pure and does no I/O: every function here is a deterministic
// transform over Item values, grounded on the original CrossWatch Python
// implementation's cw_platform/id_map.py.
package identity

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ItemType enumerates the universal unit types recognized across all
// providers and features.
type ItemType string

const (
	TypeMovie   ItemType = "movie"
	TypeShow    ItemType = "show"
	TypeSeason  ItemType = "season"
	TypeEpisode ItemType = "episode"
	TypeAnime   ItemType = "anime"
)

// Item is the universal record synchronized between providers: a watchlist
// entry, a rating, a history row, or a playlist member.
type Item struct {
	Type  ItemType          `json:"type"`
	Title string            `json:"title,omitempty"`
	Year  int               `json:"year,omitempty"`
	IDs   map[string]string `json:"ids,omitempty"`

	// Feature payloads, optional.
	Rating    int    `json:"rating,omitempty"`
	RatedAt   string `json:"rated_at,omitempty"`
	WatchedAt string `json:"watched_at,omitempty"`
	Season    int    `json:"season,omitempty"`
	Episode   int    `json:"episode,omitempty"`

	// ShowIDs carries the show-level IDs when Type is episode/season.
	ShowIDs map[string]string `json:"show_ids,omitempty"`

	// Private is opaque provider-specific substructure (e.g. AniList's
	// list_entry_id), passed through untouched by IdentityMap.
	Private map[string]any `json:"private,omitempty"`
}

// idKeys is the recognized set of ID kinds, in §3's priority order.
var idKeys = []string{"tmdb", "imdb", "tvdb", "trakt", "plex", "guid", "slug", "simkl"}

// keyPriority governs canonical_key selection. Note "tmdb" leads per spec
// §3's "priority tmdb > imdb > tvdb > trakt > plex > guid > slug > simkl".
var keyPriority = idKeys

var (
	reDigits   = regexp.MustCompile(`\d+`)
	reImdbTT   = regexp.MustCompile(`^tt\d+$`)
	rePlexAgent = regexp.MustCompile(`^com\.plexapp\.agents\.([a-zA-Z0-9]+)://([^?#]+)`)
	reSchemeID = regexp.MustCompile(`^(imdb|tmdb|tvdb|plex)://([^?#]+)`)
)

// Normalize enforces the on-disk ID format for one (kind, raw) pair. It
// returns ("", false) for blank or uninterpretable input.
func Normalize(kind, raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}
	kind = strings.ToLower(strings.TrimSpace(kind))

	switch kind {
	case "imdb":
		v := strings.ToLower(raw)
		if reImdbTT.MatchString(v) {
			return v, true
		}
		if m := reDigits.FindString(v); m != "" {
			return "tt" + m, true
		}
		return "", false
	case "tmdb", "tvdb", "trakt", "simkl", "anilist", "mal":
		m := reDigits.FindString(raw)
		if m == "" {
			return "", false
		}
		return m, true
	case "guid":
		return trimGUID(raw), true
	case "slug":
		return strings.ToLower(raw), true
	default:
		return raw, true
	}
}

// trimGUID strips query string and fragment from a vendor GUID, per §4.1
// "GUID strings are trimmed of query string and fragment before matching."
func trimGUID(raw string) string {
	if i := strings.IndexAny(raw, "?#"); i >= 0 {
		raw = raw[:i]
	}
	return raw
}

// idsFromGUID recognizes legacy com.plexapp.agents.* GUIDs and generic
// imdb://, tmdb://, tvdb://, plex:// scheme URIs, returning the inferred
// (kind, value) pair if any.
func idsFromGUID(guid string) (kind, value string, ok bool) {
	guid = trimGUID(guid)
	if m := rePlexAgent.FindStringSubmatch(guid); m != nil {
		agent := strings.ToLower(m[1])
		val := m[2]
		switch agent {
		case "imdb":
			return "imdb", val, true
		case "themoviedb", "tmdb":
			return "tmdb", val, true
		case "thetvdb", "tvdb":
			return "tvdb", val, true
		default:
			return "guid", guid, true
		}
	}
	if m := reSchemeID.FindStringSubmatch(guid); m != nil {
		return m[1], m[2], true
	}
	if guid != "" {
		return "guid", guid, true
	}
	return "", "", false
}

// IDsFrom merges item.IDs, top-level shorthand fields (not modeled as
// separate Go fields; IDs is the sole carrier here) with any GUID-derived
// IDs found under the "guid" key, returning a normalized kind→value map.
func IDsFrom(item Item) map[string]string {
	out := map[string]string{}
	for kind, raw := range item.IDs {
		if kind == "guid" {
			continue // handled below so GUID-derived kinds can populate too
		}
		if v, ok := Normalize(kind, raw); ok {
			out[kind] = v
		}
	}
	if raw, ok := item.IDs["guid"]; ok && raw != "" {
		if kind, val, ok := idsFromGUID(raw); ok {
			if v, ok := Normalize(kind, val); ok {
				if _, exists := out[kind]; !exists {
					out[kind] = v
				}
			}
		}
	}
	return out
}

// CanonicalKey computes the single deterministic key for an item per the
// §3 priority order, falling back to a title|year key. Episode items are
// scoped using the episode's own IDs if present, else synthesized from the
// show's IDs plus season/episode numbers.
func CanonicalKey(item Item) string {
	ids := IDsFrom(item)
	for _, kind := range keyPriority {
		if v, ok := ids[kind]; ok && v != "" {
			return kind + ":" + v
		}
	}
	if item.Type == TypeEpisode && len(item.ShowIDs) > 0 {
		showIDs := map[string]string{}
		for kind, raw := range item.ShowIDs {
			if v, ok := Normalize(kind, raw); ok {
				showIDs[kind] = v
			}
		}
		for _, kind := range keyPriority {
			if v, ok := showIDs[kind]; ok && v != "" {
				return fmt.Sprintf("%s:%s|S%dE%d", kind, v, item.Season, item.Episode)
			}
		}
	}
	return TitleYearKey(item)
}

// TitleYearKey builds the type|title|year fallback key, matching the
// original implementation's exact format.
func TitleYearKey(item Item) string {
	return fmt.Sprintf("%s|title:%s|year:%s", item.Type, strings.ToLower(strings.TrimSpace(item.Title)), yearStr(item.Year))
}

func yearStr(y int) string {
	if y == 0 {
		return ""
	}
	return strconv.Itoa(y)
}

// KeysForItem returns the full comparable key set for an item: every
// normalized "kind:value" pair plus the title|year fallback key.
func KeysForItem(item Item) map[string]struct{} {
	keys := map[string]struct{}{}
	for kind, v := range IDsFrom(item) {
		keys[kind+":"+v] = struct{}{}
	}
	if item.Title != "" {
		keys[TitleYearKey(item)] = struct{}{}
	}
	return keys
}

// AnyKeyOverlap reports whether two items' key sets intersect. It is
// reflexive and symmetric (P5): an empty set never overlaps with anything,
// including itself.
func AnyKeyOverlap(a, b Item) bool {
	ka := KeysForItem(a)
	kb := KeysForItem(b)
	if len(ka) == 0 || len(kb) == 0 {
		return false
	}
	for k := range ka {
		if _, ok := kb[k]; ok {
			return true
		}
	}
	return false
}

// MergeIDs merges two ID maps; primary wins on key collisions, secondary
// fills gaps. Both inputs are normalized and nulls/blank values are
// dropped.
func MergeIDs(primary, secondary map[string]string) map[string]string {
	out := map[string]string{}
	for kind, raw := range secondary {
		if v, ok := Normalize(kind, raw); ok {
			out[kind] = v
		}
	}
	for kind, raw := range primary {
		if v, ok := Normalize(kind, raw); ok {
			out[kind] = v
		}
	}
	return out
}

// Minimal projects an item down to {ids, type, title, year} plus any
// present rating/rated_at/watched_at feature fields, dropping provider-
// private substructure.
func Minimal(item Item) Item {
	out := Item{
		Type:  item.Type,
		Title: item.Title,
		Year:  item.Year,
		IDs:   IDsFrom(item),
	}
	if item.Rating != 0 {
		out.Rating = item.Rating
	}
	if item.RatedAt != "" {
		out.RatedAt = item.RatedAt
	}
	if item.WatchedAt != "" {
		out.WatchedAt = item.WatchedAt
	}
	return out
}
