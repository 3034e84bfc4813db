// CrossWatch - cross-provider media library synchronization engine
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/crosswatch-sync/crosswatch

// Package registry implements C7 ManifestRegistry: a static table mapping
// provider keys to adapter constructors, grounded on the original CrossWatch
// Python implementation's cw_platform/modules_registry.py (a static
// {provider_key: module_path} dict resolved through importlib). Go has no
// runtime import-by-string equivalent, so the table holds constructor
// funcs directly instead of module paths — same shape, compile-time safe.
package registry

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/crosswatch-sync/crosswatch/internal/config"
	"github.com/crosswatch-sync/crosswatch/internal/provider"
)

// Factory builds an Adapter for one resolved provider+instance config block.
type Factory func(block config.ProviderBlock) (provider.Adapter, error)

// Registry holds the static provider_key -> Factory table and builds
// adapters/manifests/health on demand, never caching across config changes
// (spec §4.7: "Never caches across config changes; each query rebuilds from
// current configuration view.").
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// New returns an empty Registry; call Register for each provider.
func New() *Registry {
	return &Registry{factories: map[string]Factory{}}
}

// Register installs the constructor for provider key name (lowercase, e.g.
// "plex", "trakt"). Re-registering a key overwrites the prior factory.
func (r *Registry) Register(name string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = f
}

// Providers returns the sorted list of registered provider keys.
func (r *Registry) Providers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for n := range r.factories {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Build resolves and constructs the adapter for one provider+instance,
// given the effective configuration. Returns an error if the provider key
// isn't registered.
func (r *Registry) Build(cfg *config.Config, providerName, instance string) (provider.Adapter, error) {
	r.mu.RLock()
	factory, ok := r.factories[providerName]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("registry: unknown provider %q", providerName)
	}
	block := config.BuildProviderConfigView(cfg, providerName, instance)
	return factory(block)
}

// Manifests builds every registered adapter at its default instance and
// returns their manifests, for listing endpoints per spec §4.7.
func (r *Registry) Manifests(cfg *config.Config) map[string]provider.Manifest {
	out := map[string]provider.Manifest{}
	for _, name := range r.Providers() {
		a, err := r.Build(cfg, name, config.DefaultInstance)
		if err != nil {
			continue
		}
		out[name] = a.Manifest()
	}
	return out
}

// AggregateHealth builds every registered adapter's default instance and
// probes health concurrently, per spec §4.7 "aggregate health".
func (r *Registry) AggregateHealth(ctx context.Context, cfg *config.Config) map[string]provider.Health {
	names := r.Providers()
	results := make([]provider.Health, len(names))
	var wg sync.WaitGroup
	for i, name := range names {
		i, name := i, name
		wg.Add(1)
		go func() {
			defer wg.Done()
			a, err := r.Build(cfg, name, config.DefaultInstance)
			if err != nil {
				results[i] = provider.Health{OK: false, Status: "unregistered"}
				return
			}
			results[i] = a.Health(ctx)
		}()
	}
	wg.Wait()

	out := make(map[string]provider.Health, len(names))
	for i, name := range names {
		out[name] = results[i]
	}
	return out
}
