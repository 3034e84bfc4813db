// CrossWatch - cross-provider media library synchronization engine
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/crosswatch-sync/crosswatch

package httpclient

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// Label classifies an endpoint into a stable label such as
// "watchlist:index", "ratings:add", "history:remove" for observability and
// event routing, per spec §4.2. It is a generalization of the original
// CrossWatch Python implementation's per-provider label_* functions
// (providers/sync/_mod_common.py) into one shared, path-driven classifier
// usable by every adapter.
func (c *Client) Label(method, rawURL string, params url.Values) string {
	return Label(method, rawURL, params)
}

// Label is the package-level form, usable without a Client instance (e.g.
// from tests or adapters composing requests before a Client exists).
func Label(method, rawURL string, _ url.Values) string {
	u, err := url.Parse(rawURL)
	path := rawURL
	if err == nil {
		path = u.Path
	}
	path = strings.ToLower(path)

	feature := classifyFeature(path)
	op := classifyOp(method, path)
	if feature == "" {
		return op
	}
	return feature + ":" + op
}

func classifyFeature(path string) string {
	switch {
	case strings.Contains(path, "watchlist"):
		return "watchlist"
	case strings.Contains(path, "rating"):
		return "ratings"
	case strings.Contains(path, "history"):
		return "history"
	case strings.Contains(path, "playlist") || strings.Contains(path, "collection") || strings.Contains(path, "favorite"):
		return "playlists"
	default:
		return ""
	}
}

func classifyOp(method, path string) string {
	m := strings.ToUpper(method)
	switch {
	case strings.Contains(path, "remove") || strings.Contains(path, "delete") || m == http.MethodDelete:
		return "remove"
	case strings.Contains(path, "add") || m == http.MethodPost || m == http.MethodPut:
		return "add"
	default:
		return "index"
	}
}

// RateLimit is the result of ParseRateLimit: the provider's advertised
// budget for the current window.
type RateLimit struct {
	Limit     int
	Remaining int
	ResetUnix int64
}

// ParseRateLimit recognizes both X-RateLimit-* and RateLimit-* header
// variants (and their case-insensitive forms, handled by http.Header's
// canonicalization), per spec §4.2.
func ParseRateLimit(h http.Header) RateLimit {
	get := func(names ...string) string {
		for _, n := range names {
			if v := h.Get(n); v != "" {
				return v
			}
		}
		return ""
	}
	rl := RateLimit{}
	if v := get("X-RateLimit-Limit", "RateLimit-Limit", "Ratelimit-Limit"); v != "" {
		rl.Limit, _ = strconv.Atoi(v)
	}
	if v := get("X-RateLimit-Remaining", "RateLimit-Remaining", "Ratelimit-Remaining"); v != "" {
		rl.Remaining, _ = strconv.Atoi(v)
	}
	if v := get("X-RateLimit-Reset", "RateLimit-Reset", "Ratelimit-Reset"); v != "" {
		rl.ResetUnix, _ = strconv.ParseInt(v, 10, 64)
	}
	return rl
}
