// CrossWatch - cross-provider media library synchronization engine
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/crosswatch-sync/crosswatch

// Package plex implements the Plex ProviderAdapter, per spec §4.3.x:
// "identity via server /library/sections, account GUIDs. Watchlist is a
// cloud-scoped list at plex.tv; removal by ratingKey or GUID match. User
// scope resolved by local PMS account id (1..n), never the cloud account
// id." The request/auth-header shape (X-Plex-Token on every call, retry
// on 429) is grounded on internal/sync/plex_request.go's
// doRequest/doJSONRequest helpers; the account-id vs. cloud-id
// distinction is grounded on the original CrossWatch Python
// implementation's providers/sync/plex/_utils.py resolve_user_scope.
package plex

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

// The watchlist itself lives at plex.tv, not on the local PMS: the
// library-sections/GUID lookups below hit the user's configured server.
const (
	cloudMetadataBase = "https://metadata.provider.plex.tv"
	cloudDiscoverBase = "https://discover.provider.plex.tv"
)

type Adapter struct {
	cfg    config.PlexConfig
	client *httpclient.Client
}

func New(block config.ProviderBlock) (provider.Adapter, error) {
	cfg, _ := block.Raw.(config.PlexConfig)
	client := httpclient.New(httpclient.Options{
		Provider: "plex", Instance: block.Instance,
		Timeout:    time.Duration(cfg.Timeout * float64(time.Second)),
		MaxRetries: cfg.MaxRetries,
	})
	return &Adapter{cfg: cfg, client: client}, nil
}

var _ provider.Adapter = (*Adapter)(nil)

func (a *Adapter) Manifest() provider.Manifest {
	return provider.Manifest{
		Name: "plex", Label: "Plex", Version: "1.0", Type: "sync", Bidirectional: false,
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

func (a *Adapter) IsConfigured() bool { return a.cfg.AccountToken != "" }

func (a *Adapter) headers() http.Header {
	h := http.Header{}
	h.Set("Accept", "application/json")
	h.Set("X-Plex-Token", a.cfg.AccountToken)
	if a.cfg.ClientID != "" {
		h.Set("X-Plex-Client-Identifier", a.cfg.ClientID)
	}
	return h
}

func (a *Adapter) Health(ctx context.Context) provider.Health {
	if !a.IsConfigured() {
		return provider.Health{OK: false, Status: "unconfigured", Details: provider.HealthDetails{Reason: "missing_config"}}
	}
	start := time.Now()
	url := fmt.Sprintf("%s/library/sections/watchlist/all?X-Plex-Container-Size=1", cloudMetadataBase)
	resp, err := a.client.RequestWithRetries(ctx, httpclient.Request{Method: http.MethodGet, URL: url, Header: a.headers()})
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

type plexGUID struct {
	ID string `json:"id"`
}

type plexMetadata struct {
	RatingKey string     `json:"ratingKey"`
	Title     string     `json:"title"`
	Year      int        `json:"year"`
	Type      string     `json:"type"`
	GUID      []plexGUID `json:"Guid"`
}

type plexContainer struct {
	MediaContainer struct {
		Size     int            `json:"size"`
		Metadata []plexMetadata `json:"Metadata"`
	} `json:"MediaContainer"`
}

// guidsToIDs converts Plex's agent-scoped GUID array ("imdb://tt123...",
// "tmdb://550", "tvdb://81189") into the canonical id map.
func guidsToIDs(guids []plexGUID) map[string]string {
	out := map[string]string{}
	for _, g := range guids {
		for _, prefix := range []string{"imdb", "tmdb", "tvdb"} {
			marker := prefix + "://"
			if len(g.ID) > len(marker) && g.ID[:len(marker)] == marker {
				out[prefix] = g.ID[len(marker):]
			}
		}
	}
	return out
}

func toItemType(plexType string) identity.ItemType {
	if plexType == "show" {
		return identity.TypeShow
	}
	return identity.TypeMovie
}

// BuildIndex pages through the account's cloud watchlist, per spec §4.3.x.
func (a *Adapter) BuildIndex(ctx context.Context, feature provider.Feature) (map[string]identity.Item, error) {
	if feature != provider.FeatureWatchlist {
		return map[string]identity.Item{}, nil
	}
	if !a.IsConfigured() {
		return nil, &syncerr.ItemError{Reason: syncerr.ReasonMissingConfig}
	}

	const pageSize = 100
	out := map[string]identity.Item{}
	var guard provider.PageRepeatGuard
	for offset := 0; ; offset += pageSize {
		url := fmt.Sprintf("%s/library/sections/watchlist/all?X-Plex-Container-Start=%d&X-Plex-Container-Size=%d",
			cloudMetadataBase, offset, pageSize)
		resp, err := a.client.RequestWithRetries(ctx, httpclient.Request{Method: http.MethodGet, URL: url, Header: a.headers()})
		if err != nil {
			return nil, &syncerr.ItemError{Reason: syncerr.ReasonNetworkError, Err: err}
		}
		var decoded plexContainer
		decodeErr := json.NewDecoder(resp.Body).Decode(&decoded)
		resp.Body.Close()
		if decodeErr != nil {
			return nil, fmt.Errorf("decode plex watchlist page: %w", decodeErr)
		}

		rows := decoded.MediaContainer.Metadata
		if len(rows) == 0 {
			break
		}
		items := make([]identity.Item, 0, len(rows))
		for _, row := range rows {
			ids := guidsToIDs(row.GUID)
			ids["plex_rating_key"] = row.RatingKey
			item := identity.Item{Type: toItemType(row.Type), Title: row.Title, Year: row.Year, IDs: ids}
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

	action := "addToWatchlist"
	if remove {
		action = "removeFromWatchlist"
	}
	for _, it := range items {
		key := identity.CanonicalKey(it)
		ratingKey := identity.IDsFrom(it)["plex_rating_key"]
		if ratingKey == "" {
			result.Unresolved = append(result.Unresolved, provider.Unresolved{Key: key, Reason: string(syncerr.ReasonUnresolvedIDs)})
			continue
		}
		url := fmt.Sprintf("%s/actions/%s?ratingKey=%s", cloudDiscoverBase, action, ratingKey)
		resp, err := a.client.RequestWithRetries(ctx, httpclient.Request{Method: http.MethodPut, URL: url, Header: a.headers()})
		if err != nil {
			result.Unresolved = append(result.Unresolved, provider.Unresolved{Key: key, Reason: string(syncerr.ReasonNetworkError)})
			continue
		}
		resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusNotFound && remove:
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
		default:
			reason, _ := syncerr.ClassifyHTTPStatus(resp.StatusCode)
			result.Unresolved = append(result.Unresolved, provider.Unresolved{Key: key, Reason: string(reason), Hint: fmt.Sprintf("http:%d", resp.StatusCode)})
			continue
		}
		result.ConfirmedKeys = append(result.ConfirmedKeys, key)
		result.Count++
	}
	return result, nil
}

func (a *Adapter) Add(ctx context.Context, feature provider.Feature, items []identity.Item, dryRun bool) (provider.WriteResult, error) {
	return a.write(ctx, items, dryRun, false)
}

func (a *Adapter) Remove(ctx context.Context, feature provider.Feature, items []identity.Item, dryRun bool) (provider.WriteResult, error) {
	return a.write(ctx, items, dryRun, true)
}
