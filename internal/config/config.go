// CrossWatch - cross-provider media library synchronization engine
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/crosswatch-sync/crosswatch

// Package config provides centralized configuration management for
// CrossWatch, loaded via koanf from built-in defaults, an optional YAML
// file, and environment variable overrides (highest precedence).
package config

import (
	"fmt"

	"github.com/crosswatch-sync/crosswatch/internal/validation"
)

// Config is the root configuration document, unmarshaled from
// <config>/config.json (or a YAML equivalent for local dev) per spec §6.
type Config struct {
	Plex      PlexConfig      `koanf:"plex" validate:"-"`
	Jellyfin  JellyfinConfig  `koanf:"jellyfin" validate:"-"`
	Emby      JellyfinConfig  `koanf:"emby" validate:"-"`
	Trakt     TraktConfig     `koanf:"trakt" validate:"-"`
	Simkl     SimklConfig     `koanf:"simkl" validate:"-"`
	TMDb      TMDbConfig      `koanf:"tmdb" validate:"-"`
	AniList   AniListConfig   `koanf:"anilist" validate:"-"`
	MDBList   MDBListConfig   `koanf:"mdblist" validate:"-"`
	Tautulli  TautulliConfig  `koanf:"tautulli" validate:"-"`
	CrossWatch CrossWatchLocalConfig `koanf:"crosswatch" validate:"-"`

	Pairs   []PairConfig  `koanf:"pairs" validate:"-"`
	Logging LoggingConfig `koanf:"logging"`
}

// Common holds the fields every provider block shares, per spec §6
// "Common: timeout, max_retries, debug, verify_ssl".
type Common struct {
	Timeout    float64 `koanf:"timeout" validate:"gte=0"`
	MaxRetries int     `koanf:"max_retries" validate:"gte=0,lte=20"`
	Debug      bool    `koanf:"debug"`
	VerifySSL  bool    `koanf:"verify_ssl"`
}

func defaultCommon() Common {
	return Common{Timeout: 15, MaxRetries: 5, VerifySSL: true}
}

// PlexConfig configures the Plex adapter instance.
type PlexConfig struct {
	Common         `koanf:",squash"`
	AccountToken   string              `koanf:"account_token"`
	ClientID       string              `koanf:"client_id"`
	ServerURL      string              `koanf:"server_url"`
	Username       string              `koanf:"username"`
	AccountID      string              `koanf:"account_id"`
	HistoryLibs    []string            `koanf:"history_libraries"`
	RatingsLibs    []string            `koanf:"ratings_libraries"`
	ScrobbleLibs   []string            `koanf:"scrobble_libraries"`
	Instances      map[string]PlexConfig `koanf:"instances"`
}

// JellyfinConfig configures the Jellyfin/Emby adapter instance (both share
// the same schema per spec §6).
type JellyfinConfig struct {
	Common       `koanf:",squash"`
	Server       string   `koanf:"server"`
	AccessToken  string   `koanf:"access_token"`
	UserID       string   `koanf:"user_id"`
	DeviceID     string   `koanf:"device_id"`
	WatchlistMode string  `koanf:"watchlist_mode" validate:"omitempty,oneof=favorites playlist collection"`
	PlaylistName string   `koanf:"watchlist_playlist_name"`
	CollectionName string `koanf:"watchlist_collection_name"`
	Instances    map[string]JellyfinConfig `koanf:"instances"`
}

// TraktConfig configures the Trakt adapter instance.
type TraktConfig struct {
	Common         `koanf:",squash"`
	ClientID       string `koanf:"client_id"`
	ClientSecret   string `koanf:"client_secret"`
	AccessToken    string `koanf:"access_token"`
	RefreshToken   string `koanf:"refresh_token"`
	TokenExpiresAt string `koanf:"token_expires_at"`
	Instances      map[string]TraktConfig `koanf:"instances"`
}

// SimklConfig configures the SIMKL adapter instance.
type SimklConfig struct {
	Common         `koanf:",squash"`
	ClientID       string `koanf:"client_id"`
	ClientSecret   string `koanf:"client_secret"`
	AccessToken    string `koanf:"access_token"`
	TokenExpiresAt string `koanf:"token_expires_at"`
	Instances      map[string]SimklConfig `koanf:"instances"`
}

// TMDbConfig configures the TMDb sync adapter instance.
type TMDbConfig struct {
	Common    `koanf:",squash"`
	APIKey    string `koanf:"api_key"`
	SessionID string `koanf:"session_id"`
	AccountID string `koanf:"account_id"`
	Instances map[string]TMDbConfig `koanf:"instances"`
}

// AniListConfig configures the AniList adapter instance.
type AniListConfig struct {
	Common      `koanf:",squash"`
	AccessToken string `koanf:"access_token"`
	Instances   map[string]AniListConfig `koanf:"instances"`
}

// MDBListConfig configures the MDBList adapter instance.
type MDBListConfig struct {
	Common                 `koanf:",squash"`
	APIKey                 string  `koanf:"api_key"`
	WatchlistBatchSize     int     `koanf:"watchlist_batch_size" validate:"gte=0"`
	WatchlistPageSize      int     `koanf:"watchlist_page_size" validate:"gte=0"`
	WatchlistShadowTTLHours float64 `koanf:"watchlist_shadow_ttl_hours" validate:"gte=0"`
	RatingsChunkSize       int     `koanf:"ratings_chunk_size" validate:"gte=0"`
	RatingsWriteDelayMS    int     `koanf:"ratings_write_delay_ms" validate:"gte=0"`
	RatingsMaxBackoffMS    int     `koanf:"ratings_max_backoff_ms" validate:"gte=0"`
	RatingsPerPage         int     `koanf:"ratings_per_page" validate:"gte=0"`
	Instances              map[string]MDBListConfig `koanf:"instances"`
}

// TautulliConfig configures the (read-only) Tautulli adapter instance.
type TautulliConfig struct {
	Common        `koanf:",squash"`
	ServerURL     string `koanf:"server_url"`
	APIKey        string `koanf:"api_key"`
	HistoryUserID string `koanf:"history_user_id"`
	HistoryPerPage int   `koanf:"history_per_page" validate:"gte=0"`
	HistoryMaxPages int  `koanf:"history_max_pages" validate:"gte=0"`
	Instances     map[string]TautulliConfig `koanf:"instances"`
}

// CrossWatchLocalConfig configures the local "authoritative" CrossWatch
// store adapter, per spec §4.3.x.
type CrossWatchLocalConfig struct {
	Common           `koanf:",squash"`
	RootDir          string `koanf:"root_dir"`
	RetentionDays    int    `koanf:"retention_days" validate:"gte=0"`
	AutoSnapshot     bool   `koanf:"auto_snapshot"`
	MaxSnapshots     int    `koanf:"max_snapshots" validate:"gte=0"`
	RestoreWatchlist string `koanf:"restore_watchlist"`
	RestoreRatings   string `koanf:"restore_ratings"`
	RestoreHistory   string `koanf:"restore_history"`
	Instances        map[string]CrossWatchLocalConfig `koanf:"instances"`
}

// PairConfig is one entry of the global pairs[] list, per spec §6.
type PairConfig struct {
	Source         string          `koanf:"source" validate:"required"`
	SourceInstance string          `koanf:"source_instance"`
	Target         string          `koanf:"target" validate:"required"`
	TargetInstance string          `koanf:"target_instance"`
	Direction      string          `koanf:"direction" validate:"required,oneof=mirror two-way"`
	Features       map[string]bool `koanf:"features"`
	Enabled        bool            `koanf:"enabled"`

	// IntervalSeconds is the Orchestrator's periodic-trigger period for this
	// pair. Zero falls back to DefaultPairIntervalSeconds.
	IntervalSeconds int `koanf:"interval_seconds" validate:"gte=0"`
}

// DefaultPairIntervalSeconds is the periodic-trigger period applied to a
// pair whose IntervalSeconds is unset.
const DefaultPairIntervalSeconds = 3600

// LoggingConfig mirrors CW_LOG_LEVEL / CW_LOG_FORMAT.
type LoggingConfig struct {
	Level  string `koanf:"level" validate:"omitempty,oneof=off error warn info debug trace"`
	Format string `koanf:"format" validate:"omitempty,oneof=kv json"`
}

// defaultConfig returns built-in, sensible defaults for all optional
// settings, layered first by koanf's structs.Provider.
func defaultConfig() *Config {
	return &Config{
		Plex:     PlexConfig{Common: defaultCommon()},
		Jellyfin: JellyfinConfig{Common: defaultCommon(), WatchlistMode: "favorites"},
		Emby:     JellyfinConfig{Common: defaultCommon(), WatchlistMode: "favorites"},
		Trakt:    TraktConfig{Common: defaultCommon()},
		Simkl:    SimklConfig{Common: defaultCommon()},
		TMDb:     TMDbConfig{Common: defaultCommon()},
		AniList:  AniListConfig{Common: defaultCommon()},
		MDBList: MDBListConfig{
			Common:                  defaultCommon(),
			WatchlistBatchSize:      100,
			WatchlistPageSize:       100,
			WatchlistShadowTTLHours: 24,
			RatingsChunkSize:        100,
			RatingsWriteDelayMS:     600,
			RatingsMaxBackoffMS:     8000,
			RatingsPerPage:          100,
		},
		Tautulli: TautulliConfig{Common: defaultCommon(), HistoryPerPage: 100, HistoryMaxPages: 50},
		CrossWatch: CrossWatchLocalConfig{
			Common:        defaultCommon(),
			RootDir:       "/config/.cw_provider",
			RetentionDays: 30,
			AutoSnapshot:  true,
			MaxSnapshots:  20,
		},
		Logging: LoggingConfig{Level: "info", Format: "json"},
	}
}

// Validate runs go-playground/validator tag validation (internal/validation)
// plus the hand-written cross-field checks a struct tag cannot express.
func (c *Config) Validate() error {
	if verr := validation.ValidateStruct(c); verr != nil {
		return fmt.Errorf("config validation failed: %w", verr)
	}
	for i, p := range c.Pairs {
		if p.Source == p.Target && p.SourceInstance == p.TargetInstance {
			return fmt.Errorf("pairs[%d]: source and target cannot be the same provider instance", i)
		}
	}
	return nil
}
