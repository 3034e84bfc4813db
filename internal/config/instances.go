// CrossWatch - cross-provider media library synchronization engine
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/crosswatch-sync/crosswatch

// This file implements the named-instance / pair-scoped configuration-view
// mechanics described in spec §9 ("Shared mutable configuration → immutable
// view") and SPEC_FULL.md §4.4, grounded directly on the original CrossWatch
// Python implementation's cw_platform/provider_instances.py:
// normalize_instance_id, get_provider_block, build_config_view,
// build_pair_config_view. A named instance block is returned verbatim and
// is NEVER merged with the provider's base block — this mirrors the
// Python original's get_provider_block exactly.
package config

import "strings"

// DefaultInstance is the sentinel instance id used when a pair or request
// does not name one.
const DefaultInstance = "default"

// NormalizeInstanceID folds blank and case-insensitive "default" values to
// DefaultInstance, leaving any other id untouched.
func NormalizeInstanceID(v string) string {
	v = strings.TrimSpace(v)
	if v == "" || strings.EqualFold(v, DefaultInstance) {
		return DefaultInstance
	}
	return v
}

// PlexInstance resolves a named Plex instance block. A named instance is
// fully independent of the base block, never inherited/overlaid.
func (c PlexConfig) PlexInstance(instance string) PlexConfig {
	if NormalizeInstanceID(instance) == DefaultInstance {
		return c
	}
	if blk, ok := c.Instances[NormalizeInstanceID(instance)]; ok {
		return blk
	}
	return PlexConfig{}
}

func (c JellyfinConfig) JellyfinInstance(instance string) JellyfinConfig {
	if NormalizeInstanceID(instance) == DefaultInstance {
		return c
	}
	if blk, ok := c.Instances[NormalizeInstanceID(instance)]; ok {
		return blk
	}
	return JellyfinConfig{}
}

func (c TraktConfig) TraktInstance(instance string) TraktConfig {
	if NormalizeInstanceID(instance) == DefaultInstance {
		return c
	}
	if blk, ok := c.Instances[NormalizeInstanceID(instance)]; ok {
		return blk
	}
	return TraktConfig{}
}

func (c SimklConfig) SimklInstance(instance string) SimklConfig {
	if NormalizeInstanceID(instance) == DefaultInstance {
		return c
	}
	if blk, ok := c.Instances[NormalizeInstanceID(instance)]; ok {
		return blk
	}
	return SimklConfig{}
}

func (c TMDbConfig) TMDbInstance(instance string) TMDbConfig {
	if NormalizeInstanceID(instance) == DefaultInstance {
		return c
	}
	if blk, ok := c.Instances[NormalizeInstanceID(instance)]; ok {
		return blk
	}
	return TMDbConfig{}
}

func (c AniListConfig) AniListInstance(instance string) AniListConfig {
	if NormalizeInstanceID(instance) == DefaultInstance {
		return c
	}
	if blk, ok := c.Instances[NormalizeInstanceID(instance)]; ok {
		return blk
	}
	return AniListConfig{}
}

func (c MDBListConfig) MDBListInstance(instance string) MDBListConfig {
	if NormalizeInstanceID(instance) == DefaultInstance {
		return c
	}
	if blk, ok := c.Instances[NormalizeInstanceID(instance)]; ok {
		return blk
	}
	return MDBListConfig{}
}

func (c TautulliConfig) TautulliInstance(instance string) TautulliConfig {
	if NormalizeInstanceID(instance) == DefaultInstance {
		return c
	}
	if blk, ok := c.Instances[NormalizeInstanceID(instance)]; ok {
		return blk
	}
	return TautulliConfig{}
}

func (c CrossWatchLocalConfig) CrossWatchInstance(instance string) CrossWatchLocalConfig {
	if NormalizeInstanceID(instance) == DefaultInstance {
		return c
	}
	if blk, ok := c.Instances[NormalizeInstanceID(instance)]; ok {
		return blk
	}
	return CrossWatchLocalConfig{}
}

// ListInstanceIDs returns "default" plus any named instance ids declared
// for a provider, sorted, matching the Python original's list_instance_ids.
func ListInstanceIDs[T any](instances map[string]T) []string {
	out := []string{DefaultInstance}
	if len(instances) == 0 {
		return out
	}
	names := make([]string, 0, len(instances))
	for k := range instances {
		if strings.TrimSpace(k) != "" {
			names = append(names, k)
		}
	}
	for i := 0; i < len(names); i++ {
		for j := i + 1; j < len(names); j++ {
			if names[j] < names[i] {
				names[i], names[j] = names[j], names[i]
			}
		}
	}
	return append(out, names...)
}

// PairConfigView is a resolved, read-only snapshot of the two provider
// blocks a pair-sync task needs, built once per task via BuildPairConfigView
// (spec §5 "Shared resources … Configuration view").
type PairConfigView struct {
	Source ProviderBlock
	Target ProviderBlock
}

// ProviderBlock is a type-erased resolved provider config block, keyed by
// provider name, handed to the ProviderAdapter constructor selected from
// the ManifestRegistry (C7). Concrete adapters type-assert Raw back to
// their own config struct.
type ProviderBlock struct {
	Provider string
	Instance string
	Raw      any
}

// BuildProviderConfigView resolves one provider+instance block out of cfg,
// mirroring build_provider_config_view.
func BuildProviderConfigView(cfg *Config, provider, instance string) ProviderBlock {
	inst := NormalizeInstanceID(instance)
	switch strings.ToLower(provider) {
	case "plex":
		return ProviderBlock{Provider: "plex", Instance: inst, Raw: cfg.Plex.PlexInstance(inst)}
	case "jellyfin":
		return ProviderBlock{Provider: "jellyfin", Instance: inst, Raw: cfg.Jellyfin.JellyfinInstance(inst)}
	case "emby":
		return ProviderBlock{Provider: "emby", Instance: inst, Raw: cfg.Emby.JellyfinInstance(inst)}
	case "trakt":
		return ProviderBlock{Provider: "trakt", Instance: inst, Raw: cfg.Trakt.TraktInstance(inst)}
	case "simkl":
		return ProviderBlock{Provider: "simkl", Instance: inst, Raw: cfg.Simkl.SimklInstance(inst)}
	case "tmdb":
		return ProviderBlock{Provider: "tmdb", Instance: inst, Raw: cfg.TMDb.TMDbInstance(inst)}
	case "anilist":
		return ProviderBlock{Provider: "anilist", Instance: inst, Raw: cfg.AniList.AniListInstance(inst)}
	case "mdblist":
		return ProviderBlock{Provider: "mdblist", Instance: inst, Raw: cfg.MDBList.MDBListInstance(inst)}
	case "tautulli":
		return ProviderBlock{Provider: "tautulli", Instance: inst, Raw: cfg.Tautulli.TautulliInstance(inst)}
	case "crosswatch":
		return ProviderBlock{Provider: "crosswatch", Instance: inst, Raw: cfg.CrossWatch.CrossWatchInstance(inst)}
	default:
		return ProviderBlock{Provider: provider, Instance: inst}
	}
}

// BuildPairConfigView resolves both sides of a pair in one call, mirroring
// build_pair_config_view. The result never aliases cfg's maps across pairs
// (each Raw value is copied by Go's value-type assignment above), so no
// task can mutate another pair's configuration view.
func BuildPairConfigView(cfg *Config, src, srcInstance, dst, dstInstance string) PairConfigView {
	return PairConfigView{
		Source: BuildProviderConfigView(cfg, src, srcInstance),
		Target: BuildProviderConfigView(cfg, dst, dstInstance),
	}
}
