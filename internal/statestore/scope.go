// CrossWatch - cross-provider media library synchronization engine
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/crosswatch-sync/crosswatch

// Package statestore implements C4 StateStore: scoped, atomically-written
// JSON persistence for PairState (baseline index, shadow/unresolved
// entries, watermark), per spec §4.4 and §3 "Entity PairState".
package statestore

import "regexp"

var unsafeScopeChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

const maxScopeLen = 96

// disabledScopes are scope names that turn persistence into a no-op, per
// spec §4.4: "A pair scope absent or named unscoped/default/none disables
// persistence (reads return empty, writes no-op)."
var disabledScopes = map[string]bool{
	"":         true,
	"unscoped": true,
	"default":  true,
	"none":     true,
}

// SanitizeScope normalizes a raw pair-scope string into a filesystem-safe
// form: disallowed characters become "_", runs collapse, and the result is
// truncated to 96 chars, falling back to "default" when empty.
func SanitizeScope(raw string) string {
	safe := unsafeScopeChars.ReplaceAllString(raw, "_")
	safe = collapseUnderscores(safe)
	if len(safe) > maxScopeLen {
		safe = safe[:maxScopeLen]
	}
	if safe == "" {
		return "default"
	}
	return safe
}

func collapseUnderscores(s string) string {
	out := make([]byte, 0, len(s))
	prevUnderscore := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '_' {
			if prevUnderscore {
				continue
			}
			prevUnderscore = true
		} else {
			prevUnderscore = false
		}
		out = append(out, c)
	}
	return string(out)
}

// Disabled reports whether a raw scope string disables persistence
// entirely (spec §4.4).
func Disabled(rawScope string) bool {
	return disabledScopes[rawScope]
}

// PairScope names the five-tuple a PairState is scoped by, per spec §3.
type PairScope struct {
	SrcProvider string
	SrcInstance string
	DstProvider string
	DstInstance string
	Feature     string
}

// Key builds the raw (pre-sanitize) scope string for a PairScope.
func (p PairScope) Key() string {
	src := p.SrcInstance
	if src == "" {
		src = "default"
	}
	dst := p.DstInstance
	if dst == "" {
		dst = "default"
	}
	return p.SrcProvider + "." + src + "__" + p.DstProvider + "." + dst + "__" + p.Feature
}
