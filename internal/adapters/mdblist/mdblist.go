// CrossWatch - cross-provider media library synchronization engine
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/crosswatch-sync/crosswatch

// Package mdblist implements the MDBList ProviderAdapter, per spec §4.3.x:
// "batch add/remove at /watchlist/items/{add|remove}; not_found items
// freeze into shadow with reason not-found." Grounded on the original
// CrossWatch Python implementation's providers/sync/mdblist/_watchlist.py,
// whose shadow-freeze-on-not_found behavior is reused here via
// internal/statestore's PairState.Shadow rather than a hand-rolled second
// unresolved-items file.
package mdblist

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/crosswatch-sync/crosswatch/internal/config"
	"github.com/crosswatch-sync/crosswatch/internal/httpclient"
	"github.com/crosswatch-sync/crosswatch/internal/identity"
	"github.com/crosswatch-sync/crosswatch/internal/provider"
	"github.com/crosswatch-sync/crosswatch/internal/statestore"
	"github.com/crosswatch-sync/crosswatch/internal/syncerr"
)

const baseURL = "https://api.mdblist.com"

type Adapter struct {
	cfg      config.MDBListConfig
	instance string
	client   *httpclient.Client
	store    *statestore.Store
}

func New(block config.ProviderBlock) (provider.Adapter, error) {
	cfg, _ := block.Raw.(config.MDBListConfig)
	client := httpclient.New(httpclient.Options{
		Provider: "mdblist", Instance: block.Instance,
		Timeout:    time.Duration(cfg.Timeout * float64(time.Second)),
		MaxRetries: cfg.MaxRetries,
	})
	store, err := statestore.New("/config/.cw_state")
	if err != nil {
		return nil, err
	}
	return &Adapter{cfg: cfg, instance: block.Instance, client: client, store: store}, nil
}

var _ provider.Adapter = (*Adapter)(nil)

func (a *Adapter) Manifest() provider.Manifest {
	return provider.Manifest{
		Name: "mdblist", Label: "MDBList", Version: "1.0", Type: "sync", Bidirectional: false,
		Features: map[string]bool{"watchlist": true},
		Capabilities: provider.Capabilities{
			IndexSemantics:  provider.SemanticsPresent,
			ObservedDeletes: true,
			CanTarget:       true,
		},
	}
}

func (a *Adapter) Features() map[string]bool          { return a.Manifest().Features }
func (a *Adapter) Capabilities() provider.Capabilities { return a.Manifest().Capabilities }

func (a *Adapter) IsConfigured() bool { return a.cfg.APIKey != "" }

func (a *Adapter) shadowScope() statestore.PairScope {
	return statestore.PairScope{SrcProvider: "mdblist", SrcInstance: a.instance, Feature: "watchlist"}
}

func (a *Adapter) Health(ctx context.Context) provider.Health {
	if !a.IsConfigured() {
		return provider.Health{OK: false, Status: "unconfigured", Details: provider.HealthDetails{Reason: "missing_config"}}
	}
	start := time.Now()
	url := fmt.Sprintf("%s/watchlist/items?apikey=%s&limit=1&offset=0&unified=1", baseURL, a.cfg.APIKey)
	resp, err := a.client.RequestWithRetries(ctx, httpclient.Request{Method: http.MethodGet, URL: url})
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

type mdblistRow struct {
	ID             int    `json:"id"`
	IMDbID         string `json:"imdb_id"`
	TMDbID         int    `json:"tmdb_id"`
	TVDbID         int    `json:"tvdb_id"`
	MediaType      string `json:"mediatype"`
	Title          string `json:"title"`
	Year           int    `json:"year"`
	ReleaseDate    string `json:"release_date"`
	FirstAirDate   string `json:"first_air_date"`
}

type mdblistPage struct {
	Movies []mdblistRow `json:"movies"`
	Shows  []mdblistRow `json:"shows"`
	Results []mdblistRow `json:"results"`
	Items  []mdblistRow `json:"items"`
}

func rowToItem(row mdblistRow) identity.Item {
	itemType := identity.TypeMovie
	t := row.MediaType
	if t == "show" || t == "shows" || t == "tv" || t == "series" {
		itemType = identity.TypeShow
	}
	ids := map[string]string{}
	if row.IMDbID != "" {
		ids["imdb"] = row.IMDbID
	}
	if row.TMDbID != 0 {
		ids["tmdb"] = fmt.Sprintf("%d", row.TMDbID)
	}
	if row.TVDbID != 0 {
		ids["tvdb"] = fmt.Sprintf("%d", row.TVDbID)
	}
	if row.ID != 0 {
		ids["mdblist"] = fmt.Sprintf("%d", row.ID)
	}
	year := row.Year
	if year == 0 && len(row.ReleaseDate) >= 4 {
		fmt.Sscanf(row.ReleaseDate[:4], "%d", &year)
	}
	if year == 0 && len(row.FirstAirDate) >= 4 {
		fmt.Sscanf(row.FirstAirDate[:4], "%d", &year)
	}
	return identity.Item{Type: itemType, Title: row.Title, Year: year, IDs: ids}
}

// BuildIndex fetches the watchlist page by page via limit/offset per spec
// §4.3.x; the original implementation's shadow-TTL read-caching is not
// reproduced here since internal/statestore's load/save already gives
// this adapter a cheap on-disk baseline via the Reconciler's own caching.
func (a *Adapter) BuildIndex(ctx context.Context, feature provider.Feature) (map[string]identity.Item, error) {
	if feature != provider.FeatureWatchlist {
		return map[string]identity.Item{}, nil
	}
	if !a.IsConfigured() {
		return nil, &syncerr.ItemError{Reason: syncerr.ReasonMissingConfig}
	}

	pageSize := a.cfg.WatchlistPageSize
	if pageSize <= 0 {
		pageSize = 200
	}

	out := map[string]identity.Item{}
	offset := 0
	var guard provider.PageRepeatGuard
	for {
		url := fmt.Sprintf("%s/watchlist/items?apikey=%s&limit=%d&offset=%d&unified=1", baseURL, a.cfg.APIKey, pageSize, offset)
		resp, err := a.client.RequestWithRetries(ctx, httpclient.Request{Method: http.MethodGet, URL: url})
		if err != nil {
			return nil, &syncerr.ItemError{Reason: syncerr.ReasonNetworkError, Err: err}
		}
		var page mdblistPage
		decodeErr := json.NewDecoder(resp.Body).Decode(&page)
		resp.Body.Close()
		if decodeErr != nil {
			return nil, fmt.Errorf("decode mdblist watchlist page: %w", decodeErr)
		}

		rows := page.Movies
		rows = append(rows, page.Shows...)
		rows = append(rows, page.Results...)
		rows = append(rows, page.Items...)
		if len(rows) == 0 {
			break
		}

		items := make([]identity.Item, 0, len(rows))
		for _, row := range rows {
			item := rowToItem(row)
			items = append(items, item)
			out[identity.CanonicalKey(item)] = item
		}
		if len(rows) < pageSize {
			break
		}
		if guard.Observe(items) {
			break
		}
		offset += len(rows)
	}
	return out, nil
}

func mediaTypeFor(it identity.Item) string {
	if it.Type == identity.TypeShow || it.Type == identity.TypeEpisode || it.Type == identity.TypeSeason {
		return "shows"
	}
	return "movies"
}

type mdblistWriteResponse struct {
	Added    map[string]int                     `json:"added"`
	Existing map[string]int                     `json:"existing"`
	Deleted  map[string]int                     `json:"deleted"`
	Removed  map[string]int                     `json:"removed"`
	NotFound map[string][]map[string]any        `json:"not_found"`
}

// write batches items into MDBList's movies/shows payload shape and posts
// to /watchlist/items/{action}. Items with no imdb/tmdb/tvdb id are
// rejected before the request; any vendor-reported not_found entries are
// frozen into shadow state so a subsequent identical write is skipped.
func (a *Adapter) write(ctx context.Context, items []identity.Item, dryRun, remove bool) (provider.WriteResult, error) {
	if !a.IsConfigured() {
		return provider.WriteResult{}, &syncerr.ItemError{Reason: syncerr.ReasonMissingConfig}
	}
	result := provider.WriteResult{OK: true}
	if dryRun {
		result.Count = len(items)
		for _, it := range items {
			result.ConfirmedKeys = append(result.ConfirmedKeys, identity.CanonicalKey(it))
		}
		return result, nil
	}

	scope := a.shadowScope()
	ps, err := a.store.Load("mdblist_shadow", scope)
	if err != nil {
		return provider.WriteResult{}, err
	}

	type accepted struct {
		key  string
		item identity.Item
		ids  map[string]string
	}
	var batch []accepted
	for _, it := range items {
		key := identity.CanonicalKey(it)
		if ps.IsIgnored(key) {
			continue
		}
		ids := identity.IDsFrom(it)
		if ids["imdb"] == "" && ids["tmdb"] == "" && ids["tvdb"] == "" {
			result.Unresolved = append(result.Unresolved, provider.Unresolved{Key: key, Reason: string(syncerr.ReasonMissingIDs)})
			continue
		}
		batch = append(batch, accepted{key: key, item: it, ids: ids})
	}

	batchSize := a.cfg.WatchlistBatchSize
	if batchSize <= 0 {
		batchSize = 100
	}
	action := "add"
	if remove {
		action = "remove"
	}
	now := time.Now().UTC().Format(time.RFC3339)

	for start := 0; start < len(batch); start += batchSize {
		end := start + batchSize
		if end > len(batch) {
			end = len(batch)
		}
		slice := batch[start:end]

		payload := map[string]any{}
		var movies, shows []map[string]any
		for _, b := range slice {
			row := map[string]any{}
			if b.ids["imdb"] != "" {
				row["imdb"] = b.ids["imdb"]
			}
			if b.ids["tmdb"] != "" {
				row["tmdb"] = b.ids["tmdb"]
			}
			if mediaTypeFor(b.item) == "shows" {
				shows = append(shows, row)
			} else {
				movies = append(movies, row)
			}
		}
		if len(movies) > 0 {
			payload["movies"] = movies
		}
		if len(shows) > 0 {
			payload["shows"] = shows
		}
		if len(payload) == 0 {
			continue
		}

		body, _ := json.Marshal(payload)
		url := fmt.Sprintf("%s/watchlist/items/%s?apikey=%s", baseURL, action, a.cfg.APIKey)
		resp, err := a.client.RequestWithRetries(ctx, httpclient.Request{Method: http.MethodPost, URL: url, Body: body})
		if err != nil {
			for _, b := range slice {
				result.Unresolved = append(result.Unresolved, provider.Unresolved{Key: b.key, Reason: string(syncerr.ReasonNetworkError)})
			}
			continue
		}

		if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
			reason, _ := syncerr.ClassifyHTTPStatus(resp.StatusCode)
			resp.Body.Close()
			for _, b := range slice {
				result.Unresolved = append(result.Unresolved, provider.Unresolved{Key: b.key, Reason: string(reason), Hint: fmt.Sprintf("http:%d", resp.StatusCode)})
			}
			continue
		}

		var decoded mdblistWriteResponse
		decodeErr := json.NewDecoder(resp.Body).Decode(&decoded)
		resp.Body.Close()
		if decodeErr != nil {
			for _, b := range slice {
				result.Unresolved = append(result.Unresolved, provider.Unresolved{Key: b.key, Reason: string(syncerr.ReasonUpstreamError)})
			}
			continue
		}

		notFoundKeys := map[string]bool{}
		for _, kind := range []string{"movies", "shows"} {
			for _, obj := range decoded.NotFound[kind] {
				nfIMDb, _ := obj["imdb"].(string)
				nfKey := fmt.Sprintf("imdb:%s", nfIMDb)
				notFoundKeys[nfKey] = true
			}
		}

		for _, b := range slice {
			if notFoundKeys[b.key] {
				ps.MarkUnresolved(b.key, "not-found", now)
				result.Unresolved = append(result.Unresolved, provider.Unresolved{Key: b.key, Reason: string(syncerr.ReasonNotFound), Hint: "not_found"})
				continue
			}
			ps.ClearShadow(b.key)
			result.ConfirmedKeys = append(result.ConfirmedKeys, b.key)
			result.Count++
		}
	}

	if err := a.store.Save("mdblist_shadow", scope, ps); err != nil {
		return provider.WriteResult{}, err
	}
	return result, nil
}

func (a *Adapter) Add(ctx context.Context, feature provider.Feature, items []identity.Item, dryRun bool) (provider.WriteResult, error) {
	return a.write(ctx, items, dryRun, false)
}

func (a *Adapter) Remove(ctx context.Context, feature provider.Feature, items []identity.Item, dryRun bool) (provider.WriteResult, error) {
	return a.write(ctx, items, dryRun, true)
}
