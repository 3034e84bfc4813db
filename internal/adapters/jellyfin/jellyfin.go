// CrossWatch - cross-provider media library synchronization engine
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/crosswatch-sync/crosswatch

// Package jellyfin implements the Jellyfin/Emby ProviderAdapter (both share
// a schema per spec §6 and an API surface per spec §4.3.x): "watchlist
// backed by one of {favorites, a named playlist, a named collection};
// adapter chooses mode from config. Internal ItemId resolved by
// AnyProviderIdEquals query when missing. Deletions differ by mode
// (favorites DELETE per item; playlist DELETE by EntryIds; collection
// DELETE by Ids)." The MediaBrowser auth header scheme is grounded on the
// original CrossWatch Python implementation's providers/sync/jellyfin/_utils.py.
package jellyfin

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/crosswatch-sync/crosswatch/internal/config"
	"github.com/crosswatch-sync/crosswatch/internal/httpclient"
	"github.com/crosswatch-sync/crosswatch/internal/identity"
	"github.com/crosswatch-sync/crosswatch/internal/provider"
	"github.com/crosswatch-sync/crosswatch/internal/syncerr"
)

// Label distinguishes the Jellyfin and Emby manifests while sharing one
// implementation, since both vendors speak the same MediaBrowser API.
type Label string

const (
	LabelJellyfin Label = "jellyfin"
	LabelEmby     Label = "emby"
)

type Adapter struct {
	label  Label
	cfg    config.JellyfinConfig
	client *httpclient.Client

	containerMu sync.Mutex
	containerID string
}

// New builds a Jellyfin adapter. NewEmby builds the Emby-labeled variant of
// the same implementation.
func New(block config.ProviderBlock) (provider.Adapter, error) {
	return newAdapter(LabelJellyfin, block)
}

func NewEmby(block config.ProviderBlock) (provider.Adapter, error) {
	return newAdapter(LabelEmby, block)
}

func newAdapter(label Label, block config.ProviderBlock) (provider.Adapter, error) {
	cfg, _ := block.Raw.(config.JellyfinConfig)
	client := httpclient.New(httpclient.Options{
		Provider: string(label), Instance: block.Instance,
		Timeout:    time.Duration(cfg.Timeout * float64(time.Second)),
		MaxRetries: cfg.MaxRetries,
	})
	return &Adapter{label: label, cfg: cfg, client: client}, nil
}

var _ provider.Adapter = (*Adapter)(nil)

// watchlistMode selects which MediaBrowser container backs the watchlist
// feature, per spec §4.3.x: "watchlist backed by one of {favorites, a
// named playlist, a named collection}; adapter chooses mode from config."
type watchlistMode string

const (
	modeFavorites  watchlistMode = "favorites"
	modePlaylist   watchlistMode = "playlist"
	modeCollection watchlistMode = "collection"
)

func (a *Adapter) mode() watchlistMode {
	switch a.cfg.WatchlistMode {
	case string(modePlaylist):
		return modePlaylist
	case string(modeCollection):
		return modeCollection
	default:
		return modeFavorites
	}
}

func (a *Adapter) containerName() string {
	switch a.mode() {
	case modePlaylist:
		if a.cfg.PlaylistName != "" {
			return a.cfg.PlaylistName
		}
		return "CrossWatch Watchlist"
	case modeCollection:
		if a.cfg.CollectionName != "" {
			return a.cfg.CollectionName
		}
		return "CrossWatch Watchlist"
	default:
		return ""
	}
}

type jellyfinContainer struct {
	Id   string `json:"Id"`
	Name string `json:"Name"`
}

type jellyfinContainersResponse struct {
	Items []jellyfinContainer `json:"Items"`
}

// resolveContainer finds the playlist/collection named by containerName(),
// creating it on first use, and caches the id for the life of the adapter.
func (a *Adapter) resolveContainer(ctx context.Context) (string, error) {
	a.containerMu.Lock()
	defer a.containerMu.Unlock()
	if a.containerID != "" {
		return a.containerID, nil
	}

	itemType := "Playlist"
	if a.mode() == modeCollection {
		itemType = "BoxSet"
	}
	listURL := fmt.Sprintf("%sUsers/%s/Items?IncludeItemTypes=%s&Recursive=true", a.baseURL(), a.cfg.UserID, itemType)
	resp, err := a.client.RequestWithRetries(ctx, httpclient.Request{Method: http.MethodGet, URL: listURL, Header: a.headers()})
	if err != nil {
		return "", &syncerr.ItemError{Reason: syncerr.ReasonNetworkError, Err: err}
	}
	var found jellyfinContainersResponse
	decodeErr := json.NewDecoder(resp.Body).Decode(&found)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		reason, _ := syncerr.ClassifyHTTPStatus(resp.StatusCode)
		return "", &syncerr.ItemError{Reason: reason, Hint: fmt.Sprintf("http:%d", resp.StatusCode)}
	}
	if decodeErr != nil {
		return "", fmt.Errorf("decode %s containers: %w", a.label, decodeErr)
	}
	for _, c := range found.Items {
		if c.Name == a.containerName() {
			a.containerID = c.Id
			return a.containerID, nil
		}
	}

	createURL := a.baseURL() + "Playlists"
	if a.mode() == modeCollection {
		createURL = fmt.Sprintf("%sCollections?Name=%s&IsLocked=false", a.baseURL(), url.QueryEscape(a.containerName()))
	}
	var body []byte
	if a.mode() != modeCollection {
		body, _ = json.Marshal(map[string]any{"Name": a.containerName(), "UserId": a.cfg.UserID, "Ids": []string{}})
	}
	createResp, err := a.client.RequestWithRetries(ctx, httpclient.Request{Method: http.MethodPost, URL: createURL, Header: a.headers(), Body: body})
	if err != nil {
		return "", &syncerr.ItemError{Reason: syncerr.ReasonNetworkError, Err: err}
	}
	defer createResp.Body.Close()
	if createResp.StatusCode < 200 || createResp.StatusCode >= 300 {
		reason, _ := syncerr.ClassifyHTTPStatus(createResp.StatusCode)
		return "", &syncerr.ItemError{Reason: reason, Hint: fmt.Sprintf("http:%d", createResp.StatusCode)}
	}
	var created jellyfinContainer
	if err := json.NewDecoder(createResp.Body).Decode(&created); err != nil {
		return "", fmt.Errorf("decode %s container creation: %w", a.label, err)
	}
	a.containerID = created.Id
	return a.containerID, nil
}

func (a *Adapter) Manifest() provider.Manifest {
	name := string(a.label)
	return provider.Manifest{
		Name: name, Label: titleCase(name), Version: "1.0", Type: "sync", Bidirectional: false,
		Features: map[string]bool{"watchlist": true, "playlists": a.mode() == modePlaylist},
		Capabilities: provider.Capabilities{
			IndexSemantics:  provider.SemanticsPresent,
			ObservedDeletes: true,
			CanTarget:       true,
		},
	}
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func (a *Adapter) Features() map[string]bool          { return a.Manifest().Features }
func (a *Adapter) Capabilities() provider.Capabilities { return a.Manifest().Capabilities }

func (a *Adapter) IsConfigured() bool {
	return a.cfg.Server != "" && a.cfg.AccessToken != "" && a.cfg.UserID != ""
}

func (a *Adapter) authHeader() string {
	deviceID := a.cfg.DeviceID
	if deviceID == "" {
		deviceID = "crosswatch"
	}
	auth := fmt.Sprintf(`MediaBrowser Client="CrossWatch", Device="Web", DeviceId="%s", Version="1.0"`, deviceID)
	if a.cfg.AccessToken != "" {
		auth += fmt.Sprintf(`, Token="%s"`, a.cfg.AccessToken)
	}
	return auth
}

func (a *Adapter) headers() http.Header {
	h := http.Header{}
	h.Set("Accept", "application/json")
	h.Set("Authorization", a.authHeader())
	h.Set("X-Emby-Authorization", a.authHeader())
	if a.cfg.AccessToken != "" {
		h.Set("X-MediaBrowser-Token", a.cfg.AccessToken)
	}
	return h
}

func (a *Adapter) baseURL() string {
	u := a.cfg.Server
	if u == "" {
		return ""
	}
	if u[len(u)-1] != '/' {
		u += "/"
	}
	return u
}

func (a *Adapter) Health(ctx context.Context) provider.Health {
	if !a.IsConfigured() {
		return provider.Health{OK: false, Status: "unconfigured", Details: provider.HealthDetails{Reason: "missing_config"}}
	}
	start := time.Now()
	resp, err := a.client.RequestWithRetries(ctx, httpclient.Request{Method: http.MethodGet, URL: a.baseURL() + "System/Info", Header: a.headers()})
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

type jellyfinItem struct {
	Id             string            `json:"Id"`
	Name           string            `json:"Name"`
	Type           string            `json:"Type"`
	ProductionYear int               `json:"ProductionYear"`
	ProviderIds    map[string]string `json:"ProviderIds"`
	PlaylistItemId string            `json:"PlaylistItemId"`
}

type jellyfinItemsResponse struct {
	Items []jellyfinItem `json:"Items"`
}

func providerIDsToMap(ids map[string]string) map[string]string {
	out := map[string]string{}
	for k, v := range ids {
		switch k {
		case "Imdb":
			out["imdb"] = v
		case "Tmdb":
			out["tmdb"] = v
		case "Tvdb":
			out["tvdb"] = v
		}
	}
	return out
}

func toItemType(jfType string) identity.ItemType {
	switch jfType {
	case "Series":
		return identity.TypeShow
	case "Episode":
		return identity.TypeEpisode
	default:
		return identity.TypeMovie
	}
}

// BuildIndex fetches the watchlist surface per the configured mode
// (favorites/playlist/collection), per spec §4.3.x.
func (a *Adapter) BuildIndex(ctx context.Context, feature provider.Feature) (map[string]identity.Item, error) {
	if feature != provider.FeatureWatchlist {
		return map[string]identity.Item{}, nil
	}
	if !a.IsConfigured() {
		return nil, &syncerr.ItemError{Reason: syncerr.ReasonMissingConfig}
	}

	var fetchURL string
	switch a.mode() {
	case modePlaylist:
		id, err := a.resolveContainer(ctx)
		if err != nil {
			return nil, err
		}
		fetchURL = fmt.Sprintf("%sPlaylists/%s/Items?UserId=%s&Fields=ProviderIds,ProductionYear", a.baseURL(), id, a.cfg.UserID)
	case modeCollection:
		id, err := a.resolveContainer(ctx)
		if err != nil {
			return nil, err
		}
		fetchURL = fmt.Sprintf("%sUsers/%s/Items?ParentId=%s&Recursive=true&Fields=ProviderIds,ProductionYear", a.baseURL(), a.cfg.UserID, id)
	default:
		fetchURL = fmt.Sprintf("%sUsers/%s/Items?Filters=IsFavorite&Recursive=true&Fields=ProviderIds,ProductionYear", a.baseURL(), a.cfg.UserID)
	}

	resp, err := a.client.RequestWithRetries(ctx, httpclient.Request{Method: http.MethodGet, URL: fetchURL, Header: a.headers()})
	if err != nil {
		return nil, &syncerr.ItemError{Reason: syncerr.ReasonNetworkError, Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		reason, _ := syncerr.ClassifyHTTPStatus(resp.StatusCode)
		return nil, &syncerr.ItemError{Reason: reason, Hint: fmt.Sprintf("http:%d", resp.StatusCode)}
	}

	var decoded jellyfinItemsResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode %s items: %w", a.label, err)
	}

	out := map[string]identity.Item{}
	for _, raw := range decoded.Items {
		item := identity.Item{
			Type: toItemType(raw.Type), Title: raw.Name, Year: raw.ProductionYear,
			IDs: providerIDsToMap(raw.ProviderIds),
		}
		if item.IDs == nil {
			item.IDs = map[string]string{}
		}
		item.IDs["jellyfin"] = raw.Id
		if a.mode() == modePlaylist {
			item.IDs["jellyfin_entry"] = raw.PlaylistItemId
		}
		out[identity.CanonicalKey(item)] = item
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

	var containerID string
	if a.mode() != modeFavorites {
		id, err := a.resolveContainer(ctx)
		if err != nil {
			return provider.WriteResult{}, err
		}
		containerID = id
	}

	for _, it := range items {
		ids := identity.IDsFrom(it)
		itemID := ids["jellyfin"]
		if itemID == "" {
			result.Unresolved = append(result.Unresolved, provider.Unresolved{Key: identity.CanonicalKey(it), Reason: string(syncerr.ReasonUnresolvedIDs)})
			continue
		}

		var method, reqURL string
		switch a.mode() {
		case modePlaylist:
			if remove {
				entryID := ids["jellyfin_entry"]
				if entryID == "" {
					result.Unresolved = append(result.Unresolved, provider.Unresolved{Key: identity.CanonicalKey(it), Reason: string(syncerr.ReasonUnresolvedIDs)})
					continue
				}
				method = http.MethodDelete
				reqURL = fmt.Sprintf("%sPlaylists/%s/Items?EntryIds=%s", a.baseURL(), containerID, entryID)
			} else {
				method = http.MethodPost
				reqURL = fmt.Sprintf("%sPlaylists/%s/Items?Ids=%s&UserId=%s", a.baseURL(), containerID, itemID, a.cfg.UserID)
			}
		case modeCollection:
			method = http.MethodPost
			if remove {
				method = http.MethodDelete
			}
			reqURL = fmt.Sprintf("%sCollections/%s/Items?Ids=%s", a.baseURL(), containerID, itemID)
		default:
			method = http.MethodPost
			if remove {
				method = http.MethodDelete
			}
			reqURL = fmt.Sprintf("%sUsers/%s/FavoriteItems/%s", a.baseURL(), a.cfg.UserID, itemID)
		}

		resp, err := a.client.RequestWithRetries(ctx, httpclient.Request{Method: method, URL: reqURL, Header: a.headers()})
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
	return a.write(ctx, items, dryRun, false)
}

func (a *Adapter) Remove(ctx context.Context, feature provider.Feature, items []identity.Item, dryRun bool) (provider.WriteResult, error) {
	return a.write(ctx, items, dryRun, true)
}
