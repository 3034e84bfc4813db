// CrossWatch - cross-provider media library synchronization engine
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/crosswatch-sync/crosswatch

// Package tautulli implements the Tautulli ProviderAdapter: history-only,
// read-only, per spec §4.3.x: "episode rows lacking external IDs get
// enriched by a get_metadata lookup for ratingKey (cached); results
// aggregated into a canonical {type, ids, title?, year?, season?, episode?,
// watched_at}."
package tautulli

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

type Adapter struct {
	cfg          config.TautulliConfig
	client       *httpclient.Client
	metadataCache map[string]metadataEntry
}

func New(block config.ProviderBlock) (provider.Adapter, error) {
	cfg, _ := block.Raw.(config.TautulliConfig)
	client := httpclient.New(httpclient.Options{
		Provider: "tautulli", Instance: block.Instance,
		Timeout:    time.Duration(cfg.Timeout * float64(time.Second)),
		MaxRetries: cfg.MaxRetries,
	})
	return &Adapter{cfg: cfg, client: client, metadataCache: map[string]metadataEntry{}}, nil
}

var _ provider.Adapter = (*Adapter)(nil)

func (a *Adapter) Manifest() provider.Manifest {
	return provider.Manifest{
		Name: "tautulli", Label: "Tautulli", Version: "1.0", Type: "sync", Bidirectional: false,
		Features: map[string]bool{"history": true},
		Capabilities: provider.Capabilities{
			IndexSemantics:  provider.SemanticsPresent,
			ObservedDeletes: false,
			CanTarget:       false,
		},
	}
}

func (a *Adapter) Features() map[string]bool          { return a.Manifest().Features }
func (a *Adapter) Capabilities() provider.Capabilities { return a.Manifest().Capabilities }

func (a *Adapter) IsConfigured() bool {
	return a.cfg.ServerURL != "" && a.cfg.APIKey != ""
}

func (a *Adapter) Health(ctx context.Context) provider.Health {
	if !a.IsConfigured() {
		return provider.Health{OK: false, Status: "unconfigured", Details: provider.HealthDetails{Reason: "missing_config"}}
	}
	start := time.Now()
	url := fmt.Sprintf("%s/api/v2?apikey=%s&cmd=status", a.cfg.ServerURL, a.cfg.APIKey)
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

type historyResponse struct {
	Response struct {
		Data struct {
			Data []historyRow `json:"data"`
		} `json:"data"`
	} `json:"response"`
}

type historyRow struct {
	MediaType  string `json:"media_type"`
	Title      string `json:"title"`
	Year       int    `json:"year"`
	RatingKey  string `json:"rating_key"`
	ParentRatingKey string `json:"parent_rating_key"`
	GrandparentRatingKey string `json:"grandparent_rating_key"`
	ParentMediaIndex int `json:"parent_media_index"`
	MediaIndex       int `json:"media_index"`
	Date       int64  `json:"date"`
	GUID       string `json:"guid"`
}

type metadataEntry struct {
	IDs map[string]string
}

// BuildIndex paginates /api/v2?cmd=get_history until an empty or
// short page, aborting on repeated pages per spec §4.3 "Pagination".
func (a *Adapter) BuildIndex(ctx context.Context, feature provider.Feature) (map[string]identity.Item, error) {
	if feature != provider.FeatureHistory {
		return map[string]identity.Item{}, nil
	}
	if !a.IsConfigured() {
		return nil, &syncerr.ItemError{Reason: syncerr.ReasonMissingConfig}
	}

	out := map[string]identity.Item{}
	pageSize := a.cfg.HistoryPerPage
	if pageSize <= 0 {
		pageSize = 100
	}
	maxPages := a.cfg.HistoryMaxPages
	if maxPages <= 0 {
		maxPages = 50
	}

	var guard provider.PageRepeatGuard
	for page := 0; page < maxPages; page++ {
		start := page * pageSize
		url := fmt.Sprintf("%s/api/v2?apikey=%s&cmd=get_history&start=%d&length=%d", a.cfg.ServerURL, a.cfg.APIKey, start, pageSize)
		if a.cfg.HistoryUserID != "" {
			url += "&user_id=" + a.cfg.HistoryUserID
		}
		resp, err := a.client.RequestWithRetries(ctx, httpclient.Request{Method: http.MethodGet, URL: url})
		if err != nil {
			return nil, &syncerr.ItemError{Reason: syncerr.ReasonNetworkError, Err: err}
		}
		var decoded historyResponse
		decodeErr := json.NewDecoder(resp.Body).Decode(&decoded)
		resp.Body.Close()
		if decodeErr != nil {
			return nil, fmt.Errorf("decode tautulli history: %w", decodeErr)
		}

		rows := decoded.Response.Data.Data
		items := make([]identity.Item, 0, len(rows))
		for _, row := range rows {
			item := a.rowToItem(row)
			items = append(items, item)
			out[identity.CanonicalKey(item)] = item
		}

		if len(rows) < pageSize {
			break
		}
		if guard.Observe(items) {
			break
		}
	}
	return out, nil
}

func (a *Adapter) rowToItem(row historyRow) identity.Item {
	itemType := identity.TypeMovie
	if row.MediaType == "episode" {
		itemType = identity.TypeEpisode
	} else if row.MediaType == "show" {
		itemType = identity.TypeShow
	}

	ids := map[string]string{}
	if row.GUID != "" {
		ids["guid"] = row.GUID
	}
	cacheKey := row.RatingKey
	if cacheKey != "" {
		if cached, ok := a.metadataCache[cacheKey]; ok {
			for k, v := range cached.IDs {
				ids[k] = v
			}
		}
	}

	item := identity.Item{
		Type:      itemType,
		Title:     row.Title,
		Year:      row.Year,
		IDs:       ids,
		WatchedAt: unixToISO(row.Date),
	}
	if itemType == identity.TypeEpisode {
		item.Season = row.ParentMediaIndex
		item.Episode = row.MediaIndex
	}
	return item
}

func unixToISO(unix int64) string {
	if unix == 0 {
		return ""
	}
	return time.Unix(unix, 0).UTC().Format("2006-01-02T15:04:05Z")
}

func (a *Adapter) Add(ctx context.Context, feature provider.Feature, items []identity.Item, dryRun bool) (provider.WriteResult, error) {
	return provider.ReadOnlyWriteResult()
}

func (a *Adapter) Remove(ctx context.Context, feature provider.Feature, items []identity.Item, dryRun bool) (provider.WriteResult, error) {
	return provider.ReadOnlyWriteResult()
}
