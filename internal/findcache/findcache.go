// CrossWatch - cross-provider media library synchronization engine
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/crosswatch-sync/crosswatch

// Package findcache provides a disk-backed cache for external-id
// resolution, per spec §4.3 "External find ... cached on disk": adapters
// that must turn a title/year search into a vendor media id (TMDb,
// AniList) keep the result here so a repeat sync doesn't re-search.
// Grounded on internal/auth/session_badger.go's BadgerDB wrapper, adapted
// from session storage to a generic string->string key/value cache with
// TTL.
package findcache

import (
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
)

// Cache is a per-adapter-instance disk cache keyed by an arbitrary lookup
// string (e.g. "title|year|kind") mapping to a resolved vendor id.
type Cache struct {
	db *badger.DB
}

type entry struct {
	Value     string `json:"value"`
	ExpiresAt int64  `json:"expires_at"`
}

// Open opens (or creates) a BadgerDB cache rooted at dir. Badger's own
// logger is silenced since this cache is a best-effort layer, never load-
// bearing for correctness: a cache miss just re-runs the search.
func Open(dir string) (*Cache, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open findcache at %s: %w", dir, err)
	}
	return &Cache{db: db}, nil
}

func (c *Cache) Close() error { return c.db.Close() }

// Get returns the cached value for key, or ok=false on miss or expiry.
func (c *Cache) Get(key string) (value string, ok bool) {
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			var e entry
			if err := json.Unmarshal(val, &e); err != nil {
				return err
			}
			if e.ExpiresAt > 0 && time.Now().Unix() > e.ExpiresAt {
				return badger.ErrKeyNotFound
			}
			value = e.Value
			ok = true
			return nil
		})
	})
	if err != nil {
		return "", false
	}
	return value, ok
}

// Set stores value for key with an optional ttl (zero means no expiry).
func (c *Cache) Set(key, value string, ttl time.Duration) error {
	e := entry{Value: value}
	if ttl > 0 {
		e.ExpiresAt = time.Now().Add(ttl).Unix()
	}
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal findcache entry: %w", err)
	}
	return c.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), data)
	})
}
