// CrossWatch - cross-provider media library synchronization engine
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/crosswatch-sync/crosswatch

// Package trakt implements the Trakt ProviderAdapter, per spec §4.3.x:
// "device-code auth; read /sync/watchlist, write /sync/watchlist[/remove],
// ratings at /sync/ratings[/remove]; watermarks from /sync/last_activities."
package trakt

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/crosswatch-sync/crosswatch/internal/config"
	"github.com/crosswatch-sync/crosswatch/internal/httpclient"
	"github.com/crosswatch-sync/crosswatch/internal/identity"
	"github.com/crosswatch-sync/crosswatch/internal/provider"
	"github.com/crosswatch-sync/crosswatch/internal/syncerr"
)

const baseURL = "https://api.trakt.tv"

// Adapter is the Trakt ProviderAdapter.
type Adapter struct {
	cfg    config.TraktConfig
	client *httpclient.Client
}

// New builds a Trakt adapter from a resolved ProviderBlock.
func New(block config.ProviderBlock) (provider.Adapter, error) {
	cfg, _ := block.Raw.(config.TraktConfig)
	client := httpclient.New(httpclient.Options{
		Provider:           "trakt",
		Instance:           block.Instance,
		Timeout:            time.Duration(cfg.Timeout * float64(time.Second)),
		MaxRetries:         cfg.MaxRetries,
		RateLimitPerSecond: 3,
		RateLimitBurst:     3,
	})
	return &Adapter{cfg: cfg, client: client}, nil
}

var _ provider.Adapter = (*Adapter)(nil)

func (a *Adapter) Manifest() provider.Manifest {
	return provider.Manifest{
		Name: "trakt", Label: "Trakt", Version: "1.0", Type: "sync", Bidirectional: true,
		Features: map[string]bool{"watchlist": true, "ratings": true, "history": false, "playlists": false},
		Capabilities: provider.Capabilities{
			Ratings:         provider.RatingCapabilities{Types: map[string]bool{"movies": true, "shows": true, "seasons": true, "episodes": true}, Upsert: true, Unrate: true, FromDate: true},
			IndexSemantics:  provider.SemanticsPresent,
			ObservedDeletes: true,
			CanTarget:       true,
		},
	}
}

func (a *Adapter) Features() map[string]bool { return a.Manifest().Features }
func (a *Adapter) Capabilities() provider.Capabilities { return a.Manifest().Capabilities }

func (a *Adapter) IsConfigured() bool {
	return a.cfg.ClientID != "" && a.cfg.AccessToken != ""
}

func (a *Adapter) headers() http.Header {
	h := http.Header{}
	h.Set("Content-Type", "application/json")
	h.Set("trakt-api-version", "2")
	h.Set("trakt-api-key", a.cfg.ClientID)
	h.Set("Authorization", "Bearer "+a.cfg.AccessToken)
	return h
}

func (a *Adapter) Health(ctx context.Context) provider.Health {
	if !a.IsConfigured() {
		return provider.Health{OK: false, Status: "unconfigured", Details: provider.HealthDetails{Reason: "missing_config"}}
	}
	start := time.Now()
	resp, err := a.client.RequestWithRetries(ctx, httpclient.Request{Method: http.MethodGet, URL: baseURL + "/sync/last_activities", Header: a.headers()})
	latency := time.Since(start).Milliseconds()
	if err != nil {
		return provider.Health{OK: false, Status: "error", LatencyMS: latency, Details: provider.HealthDetails{Reason: "network_error"}}
	}
	defer resp.Body.Close()
	if reason, bad := syncerr.ClassifyHTTPStatus(resp.StatusCode); bad {
		return provider.Health{OK: false, Status: string(reason), LatencyMS: latency}
	}
	return provider.Health{OK: true, Status: "ok", LatencyMS: latency, Features: a.Features()}
}

type traktIDs struct {
	Trakt int    `json:"trakt,omitempty"`
	Slug  string `json:"slug,omitempty"`
	Imdb  string `json:"imdb,omitempty"`
	Tmdb  int    `json:"tmdb,omitempty"`
	Tvdb  int    `json:"tvdb,omitempty"`
}

type traktMovie struct {
	Title string   `json:"title"`
	Year  int      `json:"year"`
	IDs   traktIDs `json:"ids"`
}

type traktWatchlistEntry struct {
	Type   string     `json:"type"`
	Movie  *traktMovie `json:"movie,omitempty"`
	Show   *traktMovie `json:"show,omitempty"`
}

type traktRatingEntry struct {
	RatedAt string      `json:"rated_at"`
	Rating  int         `json:"rating"`
	Type    string      `json:"type"`
	Movie   *traktMovie `json:"movie,omitempty"`
	Show    *traktMovie `json:"show,omitempty"`
}

func idsFrom(ids traktIDs) map[string]string {
	out := map[string]string{}
	if ids.Imdb != "" {
		out["imdb"] = ids.Imdb
	}
	if ids.Tmdb != 0 {
		out["tmdb"] = fmt.Sprintf("%d", ids.Tmdb)
	}
	if ids.Tvdb != 0 {
		out["tvdb"] = fmt.Sprintf("%d", ids.Tvdb)
	}
	if ids.Trakt != 0 {
		out["trakt"] = fmt.Sprintf("%d", ids.Trakt)
	}
	if ids.Slug != "" {
		out["slug"] = ids.Slug
	}
	return out
}

func itemType(kind string) identity.ItemType {
	if kind == "show" {
		return identity.TypeShow
	}
	return identity.TypeMovie
}

func (a *Adapter) BuildIndex(ctx context.Context, feature provider.Feature) (map[string]identity.Item, error) {
	switch feature {
	case provider.FeatureWatchlist:
		return a.buildWatchlistIndex(ctx)
	case provider.FeatureRatings:
		return a.buildRatingsIndex(ctx)
	default:
		return map[string]identity.Item{}, nil
	}
}

func (a *Adapter) buildWatchlistIndex(ctx context.Context) (map[string]identity.Item, error) {
	resp, err := a.client.RequestWithRetries(ctx, httpclient.Request{Method: http.MethodGet, URL: baseURL + "/sync/watchlist", Header: a.headers()})
	if err != nil {
		return nil, &syncerr.ItemError{Reason: syncerr.ReasonNetworkError, Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		if reason, _ := syncerr.ClassifyHTTPStatus(resp.StatusCode); reason != "" {
			return nil, &syncerr.ItemError{Reason: reason, Hint: fmt.Sprintf("http:%d", resp.StatusCode)}
		}
	}
	var entries []traktWatchlistEntry
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		return nil, fmt.Errorf("decode trakt watchlist: %w", err)
	}

	out := map[string]identity.Item{}
	for _, e := range entries {
		m := e.Movie
		if m == nil {
			m = e.Show
		}
		if m == nil {
			continue
		}
		item := identity.Item{Type: itemType(e.Type), Title: m.Title, Year: m.Year, IDs: idsFrom(m.IDs)}
		out[identity.CanonicalKey(item)] = item
	}
	return out, nil
}

func (a *Adapter) buildRatingsIndex(ctx context.Context) (map[string]identity.Item, error) {
	resp, err := a.client.RequestWithRetries(ctx, httpclient.Request{Method: http.MethodGet, URL: baseURL + "/sync/ratings", Header: a.headers()})
	if err != nil {
		return nil, &syncerr.ItemError{Reason: syncerr.ReasonNetworkError, Err: err}
	}
	defer resp.Body.Close()
	var entries []traktRatingEntry
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		return nil, fmt.Errorf("decode trakt ratings: %w", err)
	}
	out := map[string]identity.Item{}
	for _, e := range entries {
		m := e.Movie
		if m == nil {
			m = e.Show
		}
		if m == nil {
			continue
		}
		item := identity.Item{Type: itemType(e.Type), Title: m.Title, Year: m.Year, IDs: idsFrom(m.IDs), Rating: e.Rating, RatedAt: e.RatedAt}
		out[identity.CanonicalKey(item)] = item
	}
	return out, nil
}

func (a *Adapter) buildWriteBody(items []identity.Item, feature provider.Feature) []byte {
	movies := []map[string]any{}
	shows := []map[string]any{}
	for _, it := range items {
		ids := map[string]any{}
		for k, v := range identity.IDsFrom(it) {
			if k == "tmdb" || k == "tvdb" || k == "trakt" {
				ids[k], _ = toInt(v)
			} else {
				ids[k] = v
			}
		}
		entry := map[string]any{"title": it.Title, "year": it.Year, "ids": ids}
		if feature == provider.FeatureRatings {
			entry["rating"] = it.Rating
			if it.RatedAt != "" {
				entry["rated_at"] = it.RatedAt
			}
		}
		if it.Type == identity.TypeShow {
			shows = append(shows, entry)
		} else {
			movies = append(movies, entry)
		}
	}
	body, _ := json.Marshal(map[string]any{"movies": movies, "shows": shows})
	return body
}

func toInt(s string) (int, error) {
	var n int
	_, err := fmt.Sscanf(s, "%d", &n)
	return n, err
}

func (a *Adapter) write(ctx context.Context, feature provider.Feature, items []identity.Item, dryRun bool, remove bool) (provider.WriteResult, error) {
	if !a.IsConfigured() {
		return provider.WriteResult{}, &syncerr.ItemError{Reason: syncerr.ReasonMissingConfig}
	}
	if dryRun {
		result := provider.WriteResult{OK: true, Count: len(items)}
		for _, it := range items {
			result.ConfirmedKeys = append(result.ConfirmedKeys, identity.CanonicalKey(it))
		}
		return result, nil
	}

	path := "/sync/watchlist"
	if feature == provider.FeatureRatings {
		path = "/sync/ratings"
	}
	if remove {
		path += "/remove"
	}

	result := provider.WriteResult{OK: true}
	for _, chunk := range chunkItems(items, 100) {
		body := a.buildWriteBody(chunk, feature)
		resp, err := a.client.RequestWithRetries(ctx, httpclient.Request{
			Method: http.MethodPost, URL: baseURL + path, Header: a.headers(), Body: body,
		})
		if err != nil {
			for _, it := range chunk {
				result.Unresolved = append(result.Unresolved, provider.Unresolved{Key: identity.CanonicalKey(it), Reason: string(syncerr.ReasonNetworkError)})
			}
			continue
		}
		func() {
			defer resp.Body.Close()
			io.Copy(io.Discard, resp.Body)
		}()

		switch {
		case resp.StatusCode == http.StatusNotFound && remove:
			// already absent: success
		case (resp.StatusCode == http.StatusConflict || resp.StatusCode == http.StatusUnprocessableEntity) && !remove:
			// already present: success
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			// success
		default:
			reason, _ := syncerr.ClassifyHTTPStatus(resp.StatusCode)
			for _, it := range chunk {
				result.Unresolved = append(result.Unresolved, provider.Unresolved{Key: identity.CanonicalKey(it), Reason: string(reason), Hint: fmt.Sprintf("http:%d", resp.StatusCode)})
			}
			continue
		}

		for _, it := range chunk {
			key := identity.CanonicalKey(it)
			result.ConfirmedKeys = append(result.ConfirmedKeys, key)
			result.Count++
		}
	}
	return result, nil
}

func chunkItems(items []identity.Item, size int) [][]identity.Item {
	if len(items) <= size {
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

func (a *Adapter) Add(ctx context.Context, feature provider.Feature, items []identity.Item, dryRun bool) (provider.WriteResult, error) {
	return a.write(ctx, feature, items, dryRun, false)
}

func (a *Adapter) Remove(ctx context.Context, feature provider.Feature, items []identity.Item, dryRun bool) (provider.WriteResult, error) {
	return a.write(ctx, feature, items, dryRun, true)
}
