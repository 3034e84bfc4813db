// CrossWatch - cross-provider media library synchronization engine
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/crosswatch-sync/crosswatch

package registry

import (
	"github.com/crosswatch-sync/crosswatch/internal/adapters/anilist"
	"github.com/crosswatch-sync/crosswatch/internal/adapters/crosswatchlocal"
	"github.com/crosswatch-sync/crosswatch/internal/adapters/jellyfin"
	"github.com/crosswatch-sync/crosswatch/internal/adapters/mdblist"
	"github.com/crosswatch-sync/crosswatch/internal/adapters/plex"
	"github.com/crosswatch-sync/crosswatch/internal/adapters/simkl"
	"github.com/crosswatch-sync/crosswatch/internal/adapters/tautulli"
	"github.com/crosswatch-sync/crosswatch/internal/adapters/tmdb"
	"github.com/crosswatch-sync/crosswatch/internal/adapters/trakt"
)

// NewDefault builds a Registry with every shipped adapter registered under
// its spec §6 provider key, the static table the Python original's
// cw_platform/modules_registry.py would have built by scanning its
// providers/ package at import time.
func NewDefault() *Registry {
	r := New()
	r.Register("plex", plex.New)
	r.Register("jellyfin", jellyfin.New)
	r.Register("emby", jellyfin.NewEmby)
	r.Register("trakt", trakt.New)
	r.Register("simkl", simkl.New)
	r.Register("tmdb", tmdb.New)
	r.Register("anilist", anilist.New)
	r.Register("mdblist", mdblist.New)
	r.Register("tautulli", tautulli.New)
	r.Register("crosswatch", crosswatchlocal.New)
	return r
}
