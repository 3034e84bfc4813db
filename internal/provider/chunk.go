// CrossWatch - cross-provider media library synchronization engine
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/crosswatch-sync/crosswatch

package provider

import (
	"strconv"
	"strings"

	"github.com/crosswatch-sync/crosswatch/internal/identity"
)

// DefaultChunkSize is the Reconciler's default batch size for add/remove
// calls absent an adapter-specific override, per spec §4.3's "25-100 per
// request" guidance.
const DefaultChunkSize = 50

// Chunk splits items into groups of at most size, per spec §4.3 "Chunking
// and throttling" (watchlist writes 25-100 per request, ratings writes
// 25-100 per request). size <= 0 returns one chunk containing everything.
func Chunk(items []identity.Item, size int) [][]identity.Item {
	if size <= 0 || len(items) <= size {
		return [][]identity.Item{items}
	}
	var out [][]identity.Item
	for len(items) > 0 {
		n := size
		if n > len(items) {
			n = len(items)
		}
		out = append(out, items[:n])
		items = items[n:]
	}
	return out
}

// PageSignature builds a cheap first/last-item fingerprint used to detect
// repeating pages during cursor/offset pagination, per spec §4.3: "detects
// page-repeat via first/last-item signature and aborts after two duplicate
// pages".
func PageSignature(page []identity.Item) string {
	if len(page) == 0 {
		return ""
	}
	first := identity.CanonicalKey(page[0])
	last := identity.CanonicalKey(page[len(page)-1])
	return first + "|" + last + "|" + strconv.Itoa(len(page))
}

// PageRepeatGuard tracks consecutive duplicate page signatures across a
// pagination loop and reports when the caller should abort (two duplicates
// in a row), guarding against broken vendor pagination.
type PageRepeatGuard struct {
	last    string
	repeats int
}

// Observe records one page's signature and reports whether the loop should
// abort now.
func (g *PageRepeatGuard) Observe(page []identity.Item) (abort bool) {
	sig := PageSignature(page)
	if sig == "" {
		return false
	}
	if sig == g.last {
		g.repeats++
	} else {
		g.repeats = 0
		g.last = sig
	}
	return g.repeats >= 2
}

// AniListScore implements the AniList search-candidate scoring rubric from
// spec §4.3: "exact normalized-title match +70 / substring ±20; year equal
// +30 / diff -50; kind-aligned format +5. Accept best only if score >= 85."
func AniListScore(wantTitle string, wantYear int, wantKind bool, candidateTitle string, candidateYear int, candidateKindAligned bool) int {
	score := 0
	want := strings.ToLower(strings.TrimSpace(wantTitle))
	cand := strings.ToLower(strings.TrimSpace(candidateTitle))

	switch {
	case want != "" && want == cand:
		score += 70
	case want != "" && cand != "" && strings.Contains(cand, want):
		score += 20
	case want != "" && cand != "" && strings.Contains(want, cand):
		score += 20
	default:
		score -= 20
	}

	switch {
	case wantYear == 0 || candidateYear == 0:
		// no signal either way
	case wantYear == candidateYear:
		score += 30
	default:
		score -= 50
	}

	if candidateKindAligned {
		score += 5
	}
	return score
}

// AniListAcceptThreshold is the minimum score to accept a search candidate.
const AniListAcceptThreshold = 85
