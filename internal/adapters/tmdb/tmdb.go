// CrossWatch - cross-provider media library synchronization engine
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/crosswatch-sync/crosswatch

// Package tmdb implements the TMDb sync ProviderAdapter, per spec §4.3.x:
// "requires v3 api_key + session_id; watchlist via
// /account/{id}/watchlist; ratings via per-media /rating; deletion uses
// DELETE with session_id." Grounded on the original CrossWatch Python
// implementation's providers/sync/tmdb/_watchlist.py (exact endpoint
// shapes and request bodies).
package tmdb

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
	"github.com/crosswatch-sync/crosswatch/internal/syncerr"
)

const baseURL = "https://api.themoviedb.org/3"

type Adapter struct {
	cfg    config.TMDbConfig
	client *httpclient.Client
}

func New(block config.ProviderBlock) (provider.Adapter, error) {
	cfg, _ := block.Raw.(config.TMDbConfig)
	client := httpclient.New(httpclient.Options{
		Provider: "tmdb", Instance: block.Instance,
		Timeout:    time.Duration(cfg.Timeout * float64(time.Second)),
		MaxRetries: cfg.MaxRetries,
	})
	return &Adapter{cfg: cfg, client: client}, nil
}

var _ provider.Adapter = (*Adapter)(nil)

func (a *Adapter) Manifest() provider.Manifest {
	return provider.Manifest{
		Name: "tmdb", Label: "TMDb", Version: "1.0", Type: "sync", Bidirectional: false,
		Features: map[string]bool{"watchlist": true, "ratings": true},
		Capabilities: provider.Capabilities{
			Ratings:         provider.RatingCapabilities{Types: map[string]bool{"movies": true, "shows": true}, Upsert: true, Unrate: true},
			IndexSemantics:  provider.SemanticsPresent,
			ObservedDeletes: true,
			CanTarget:       true,
		},
	}
}

func (a *Adapter) Features() map[string]bool          { return a.Manifest().Features }
func (a *Adapter) Capabilities() provider.Capabilities { return a.Manifest().Capabilities }

func (a *Adapter) IsConfigured() bool {
	return a.cfg.APIKey != "" && a.cfg.SessionID != "" && a.cfg.AccountID != ""
}

func (a *Adapter) Health(ctx context.Context) provider.Health {
	if !a.IsConfigured() {
		return provider.Health{OK: false, Status: "unconfigured", Details: provider.HealthDetails{Reason: "missing_config"}}
	}
	start := time.Now()
	url := fmt.Sprintf("%s/account/%s?api_key=%s&session_id=%s", baseURL, a.cfg.AccountID, a.cfg.APIKey, a.cfg.SessionID)
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

type tmdbResult struct {
	ID          int     `json:"id"`
	Title       string  `json:"title"`
	Name        string  `json:"name"`
	ReleaseDate string  `json:"release_date"`
	FirstAirDate string `json:"first_air_date"`
}

type tmdbPage struct {
	Results    []tmdbResult `json:"results"`
	Page       int          `json:"page"`
	TotalPages int          `json:"total_pages"`
}

func (a *Adapter) BuildIndex(ctx context.Context, feature provider.Feature) (map[string]identity.Item, error) {
	if feature != provider.FeatureWatchlist {
		return map[string]identity.Item{}, nil
	}
	if !a.IsConfigured() {
		return nil, &syncerr.ItemError{Reason: syncerr.ReasonMissingConfig}
	}

	out := map[string]identity.Item{}
	var guard provider.PageRepeatGuard
	for _, kind := range []string{"movies", "tv"} {
		for page := 1; page <= 500; page++ {
			url := fmt.Sprintf("%s/account/%s/watchlist/%s?api_key=%s&session_id=%s&page=%d",
				baseURL, a.cfg.AccountID, kind, a.cfg.APIKey, a.cfg.SessionID, page)
			resp, err := a.client.RequestWithRetries(ctx, httpclient.Request{Method: http.MethodGet, URL: url})
			if err != nil {
				return nil, &syncerr.ItemError{Reason: syncerr.ReasonNetworkError, Err: err}
			}
			var decoded tmdbPage
			decodeErr := json.NewDecoder(resp.Body).Decode(&decoded)
			resp.Body.Close()
			if decodeErr != nil {
				return nil, fmt.Errorf("decode tmdb watchlist page: %w", decodeErr)
			}

			items := make([]identity.Item, 0, len(decoded.Results))
			for _, r := range decoded.Results {
				item := tmdbResultToItem(kind, r)
				items = append(items, item)
				out[identity.CanonicalKey(item)] = item
			}
			if len(decoded.Results) == 0 || page >= decoded.TotalPages {
				break
			}
			if guard.Observe(items) {
				break
			}
		}
	}
	return out, nil
}

func tmdbResultToItem(kind string, r tmdbResult) identity.Item {
	title := r.Title
	date := r.ReleaseDate
	itemType := identity.TypeMovie
	if kind == "tv" {
		title = r.Name
		date = r.FirstAirDate
		itemType = identity.TypeShow
	}
	year := 0
	if len(date) >= 4 {
		fmt.Sscanf(date[:4], "%d", &year)
	}
	return identity.Item{Type: itemType, Title: title, Year: year, IDs: map[string]string{"tmdb": fmt.Sprintf("%d", r.ID)}}
}

func pickMediaType(item identity.Item) string {
	if item.Type == identity.TypeShow || item.Type == identity.TypeEpisode || item.Type == identity.TypeSeason {
		return "tv"
	}
	return "movie"
}

func (a *Adapter) write(ctx context.Context, feature provider.Feature, items []identity.Item, dryRun, remove bool) (provider.WriteResult, error) {
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

	for _, it := range items {
		tmdbID := identity.IDsFrom(it)["tmdb"]
		if tmdbID == "" {
			result.Unresolved = append(result.Unresolved, provider.Unresolved{Key: identity.CanonicalKey(it), Reason: string(syncerr.ReasonMissingIDs)})
			continue
		}
		var id int
		fmt.Sscanf(tmdbID, "%d", &id)

		url := fmt.Sprintf("%s/account/%s/watchlist?api_key=%s&session_id=%s", baseURL, a.cfg.AccountID, a.cfg.APIKey, a.cfg.SessionID)
		if feature == provider.FeatureRatings {
			url = fmt.Sprintf("%s/%s/%d/rating?api_key=%s&session_id=%s", baseURL, pickMediaType(it), id, a.cfg.APIKey, a.cfg.SessionID)
		}

		method := http.MethodPost
		var body []byte
		switch {
		case feature == provider.FeatureRatings && remove:
			method = http.MethodDelete
		case feature == provider.FeatureRatings:
			body, _ = json.Marshal(map[string]any{"value": it.Rating})
		default:
			body, _ = json.Marshal(map[string]any{"media_type": pickMediaType(it), "media_id": id, "watchlist": !remove})
		}

		resp, err := a.client.RequestWithRetries(ctx, httpclient.Request{Method: method, URL: url, Body: body})
		if err != nil {
			result.Unresolved = append(result.Unresolved, provider.Unresolved{Key: identity.CanonicalKey(it), Reason: string(syncerr.ReasonNetworkError)})
			continue
		}
		resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusNotFound && remove:
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
		default:
			reason, _ := syncerr.ClassifyHTTPStatus(resp.StatusCode)
			result.Unresolved = append(result.Unresolved, provider.Unresolved{Key: identity.CanonicalKey(it), Reason: string(reason), Hint: fmt.Sprintf("http:%d", resp.StatusCode)})
			continue
		}
		result.ConfirmedKeys = append(result.ConfirmedKeys, identity.CanonicalKey(it))
		result.Count++
	}
	return result, nil
}

func (a *Adapter) Add(ctx context.Context, feature provider.Feature, items []identity.Item, dryRun bool) (provider.WriteResult, error) {
	return a.write(ctx, feature, items, dryRun, false)
}

func (a *Adapter) Remove(ctx context.Context, feature provider.Feature, items []identity.Item, dryRun bool) (provider.WriteResult, error) {
	return a.write(ctx, feature, items, dryRun, true)
}
