// CrossWatch - cross-provider media library synchronization engine
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/crosswatch-sync/crosswatch

// Package simkl implements the SIMKL ProviderAdapter, per spec §4.3.x:
// "ID projection restricted to {simkl,imdb,tmdb,tvdb,slug}; watchlist via
// /sync/all-items with type filter; remove via /sync/history/remove and
// /sync/watchlist/remove." SIMKL cannot observe deletions on its history
// feature, so ObservedDeletes is false there (spec §4.3 "Index semantics").
package simkl

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

const baseURL = "https://api.simkl.com"

// allowedIDKinds is the ID projection SIMKL accepts, per spec §4.3.x.
var allowedIDKinds = map[string]bool{"simkl": true, "imdb": true, "tmdb": true, "tvdb": true, "slug": true}

type Adapter struct {
	cfg    config.SimklConfig
	client *httpclient.Client
}

func New(block config.ProviderBlock) (provider.Adapter, error) {
	cfg, _ := block.Raw.(config.SimklConfig)
	client := httpclient.New(httpclient.Options{
		Provider: "simkl", Instance: block.Instance,
		Timeout:    time.Duration(cfg.Timeout * float64(time.Second)),
		MaxRetries: cfg.MaxRetries,
	})
	return &Adapter{cfg: cfg, client: client}, nil
}

var _ provider.Adapter = (*Adapter)(nil)

func (a *Adapter) Manifest() provider.Manifest {
	return provider.Manifest{
		Name: "simkl", Label: "SIMKL", Version: "1.0", Type: "sync", Bidirectional: false,
		Features: map[string]bool{"watchlist": true, "history": true},
		Capabilities: provider.Capabilities{
			IndexSemantics:  provider.SemanticsEvents,
			ObservedDeletes: false,
			CanTarget:       true,
		},
	}
}

func (a *Adapter) Features() map[string]bool          { return a.Manifest().Features }
func (a *Adapter) Capabilities() provider.Capabilities { return a.Manifest().Capabilities }

func (a *Adapter) IsConfigured() bool {
	return a.cfg.ClientID != "" && a.cfg.AccessToken != ""
}

func (a *Adapter) headers() http.Header {
	h := http.Header{}
	h.Set("Content-Type", "application/json")
	h.Set("simkl-api-key", a.cfg.ClientID)
	h.Set("Authorization", "Bearer "+a.cfg.AccessToken)
	return h
}

func (a *Adapter) Health(ctx context.Context) provider.Health {
	if !a.IsConfigured() {
		return provider.Health{OK: false, Status: "unconfigured", Details: provider.HealthDetails{Reason: "missing_config"}}
	}
	start := time.Now()
	resp, err := a.client.RequestWithRetries(ctx, httpclient.Request{Method: http.MethodGet, URL: baseURL + "/sync/all-items?type=movies", Header: a.headers()})
	latency := time.Since(start).Milliseconds()
	if err != nil {
		return provider.Health{OK: false, Status: "error", LatencyMS: latency}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		reason, _ := syncerr.ClassifyHTTPStatus(resp.StatusCode)
		return provider.Health{OK: false, Status: string(reason), LatencyMS: latency}
	}
	return provider.Health{OK: true, Status: "ok", LatencyMS: latency, Features: a.Features()}
}

type simklIDs struct {
	Simkl int    `json:"simkl,omitempty"`
	Imdb  string `json:"imdb,omitempty"`
	Tmdb  int    `json:"tmdb,omitempty"`
	Tvdb  int    `json:"tvdb,omitempty"`
	Slug  string `json:"slug,omitempty"`
}

type simklMediaEntry struct {
	Movie *struct {
		Title string   `json:"title"`
		Year  int      `json:"year"`
		IDs   simklIDs `json:"ids"`
	} `json:"movie,omitempty"`
	Show *struct {
		Title string   `json:"title"`
		Year  int      `json:"year"`
		IDs   simklIDs `json:"ids"`
	} `json:"show,omitempty"`
}

func simklIDsToMap(ids simklIDs) map[string]string {
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
	if ids.Simkl != 0 {
		out["simkl"] = fmt.Sprintf("%d", ids.Simkl)
	}
	if ids.Slug != "" {
		out["slug"] = ids.Slug
	}
	return out
}

func (a *Adapter) BuildIndex(ctx context.Context, feature provider.Feature) (map[string]identity.Item, error) {
	kind := "movies"
	if feature == provider.FeatureHistory {
		kind = "anime"
	}
	resp, err := a.client.RequestWithRetries(ctx, httpclient.Request{
		Method: http.MethodGet, URL: fmt.Sprintf("%s/sync/all-items?type=%s", baseURL, kind), Header: a.headers(),
	})
	if err != nil {
		return nil, &syncerr.ItemError{Reason: syncerr.ReasonNetworkError, Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		reason, _ := syncerr.ClassifyHTTPStatus(resp.StatusCode)
		return nil, &syncerr.ItemError{Reason: reason, Hint: fmt.Sprintf("http:%d", resp.StatusCode)}
	}

	var entries []simklMediaEntry
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		return nil, fmt.Errorf("decode simkl index: %w", err)
	}

	out := map[string]identity.Item{}
	for _, e := range entries {
		if e.Movie != nil {
			item := identity.Item{Type: identity.TypeMovie, Title: e.Movie.Title, Year: e.Movie.Year, IDs: simklIDsToMap(e.Movie.IDs)}
			out[identity.CanonicalKey(item)] = item
		}
		if e.Show != nil {
			item := identity.Item{Type: identity.TypeShow, Title: e.Show.Title, Year: e.Show.Year, IDs: simklIDsToMap(e.Show.IDs)}
			out[identity.CanonicalKey(item)] = item
		}
	}
	return out, nil
}

// projectIDs restricts an item's IDs to SIMKL's accepted kinds, per spec
// §4.3.x "ID projection restricted to {simkl,imdb,tmdb,tvdb,slug}".
func projectIDs(item identity.Item) map[string]any {
	ids := map[string]any{}
	for k, v := range identity.IDsFrom(item) {
		if !allowedIDKinds[k] {
			continue
		}
		if k == "tmdb" || k == "tvdb" || k == "simkl" {
			var n int
			fmt.Sscanf(v, "%d", &n)
			ids[k] = n
		} else {
			ids[k] = v
		}
	}
	return ids
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
	if feature == provider.FeatureHistory {
		path = "/sync/history"
	}
	if remove {
		path += "/remove"
	}

	movies := []map[string]any{}
	shows := []map[string]any{}
	for _, it := range items {
		entry := map[string]any{"ids": projectIDs(it)}
		if it.Type == identity.TypeShow {
			shows = append(shows, entry)
		} else {
			movies = append(movies, entry)
		}
	}
	body, _ := json.Marshal(map[string]any{"movies": movies, "shows": shows})

	resp, err := a.client.RequestWithRetries(ctx, httpclient.Request{Method: http.MethodPost, URL: baseURL + path, Header: a.headers(), Body: body})
	result := provider.WriteResult{OK: true}
	if err != nil {
		for _, it := range items {
			result.Unresolved = append(result.Unresolved, provider.Unresolved{Key: identity.CanonicalKey(it), Reason: string(syncerr.ReasonNetworkError)})
		}
		return result, nil
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	switch {
	case resp.StatusCode == http.StatusNotFound:
		// SIMKL not_found freezes items per spec §8 scenario 5.
		for _, it := range items {
			result.Unresolved = append(result.Unresolved, provider.Unresolved{Key: identity.CanonicalKey(it), Reason: string(syncerr.ReasonNotFound), Hint: "add:not-found"})
		}
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		for _, it := range items {
			result.ConfirmedKeys = append(result.ConfirmedKeys, identity.CanonicalKey(it))
			result.Count++
		}
	default:
		reason, _ := syncerr.ClassifyHTTPStatus(resp.StatusCode)
		for _, it := range items {
			result.Unresolved = append(result.Unresolved, provider.Unresolved{Key: identity.CanonicalKey(it), Reason: string(reason), Hint: fmt.Sprintf("http:%d", resp.StatusCode)})
		}
	}
	return result, nil
}

func (a *Adapter) Add(ctx context.Context, feature provider.Feature, items []identity.Item, dryRun bool) (provider.WriteResult, error) {
	return a.write(ctx, feature, items, dryRun, false)
}

func (a *Adapter) Remove(ctx context.Context, feature provider.Feature, items []identity.Item, dryRun bool) (provider.WriteResult, error) {
	return a.write(ctx, feature, items, dryRun, true)
}
