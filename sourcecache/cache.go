/*
Package sourcecache memoizes open tile-source instances so that repeated
requests against the same underlying file reuse one instance instead of
re-reading its directory structure.  Opening is explicit: callers ask the
cache, and the cache either returns a live instance or runs the supplied
open function.  Concurrent opens of the same key are collapsed to a single
call.
*/
package sourcecache

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/DmitriyVTitov/size"
	"github.com/dustin/go-humanize"
	"golang.org/x/sync/singleflight"

	"github.com/rubedolife/large-image/lim"
	"github.com/rubedolife/large-image/tilesource"
)

// Instance is anything the cache can hold.  Evicted instances are closed,
// so callers must not retain an instance across calls without re-fetching
// it from the cache.
type Instance interface {
	Close() error
}

// entry is one cached instance with its bookkeeping.
type entry struct {
	key      string
	instance Instance
	weight   int64
	lastUsed time.Time
}

// Cache memoizes instances keyed by canonical path plus option fingerprint.
// The zero value is not usable; construct with New.
type Cache struct {
	mu      sync.Mutex
	entries map[string]*entry
	policy  Policy
	group   singleflight.Group
}

// New returns an empty cache governed by the given eviction policy.
func New(policy Policy) *Cache {
	return &Cache{
		entries: make(map[string]*entry),
		policy:  policy,
	}
}

// Key canonicalizes a source path and folds in the options that change the
// behavior of the resulting instance, so that equivalent opens share one
// cache slot.
func Key(path string, opts *tilesource.Options) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("cannot canonicalize path %q: %v", path, err)
	}
	tileCacheBytes := 0
	if opts != nil && opts.TileCacheBytes > 0 {
		tileCacheBytes = opts.TileCacheBytes
	}
	return fmt.Sprintf("%s#tilecache=%d", filepath.Clean(abs), tileCacheBytes), nil
}

// GetOrOpen returns the cached instance for key, calling open to create it
// on a miss.  Concurrent callers for the same key share one open call.
func (c *Cache) GetOrOpen(key string, open func() (Instance, error)) (Instance, error) {
	if inst, found := c.lookup(key); found {
		return inst, nil
	}
	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		// A concurrent caller may have inserted while we queued.
		if inst, found := c.lookup(key); found {
			return inst, nil
		}
		inst, err := open()
		if err != nil {
			return nil, err
		}
		c.insert(key, inst)
		return inst, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(Instance), nil
}

// lookup returns the live instance for key and refreshes its recency.
func (c *Cache) lookup(key string) (Instance, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, found := c.entries[key]
	if !found {
		return nil, false
	}
	e.lastUsed = time.Now()
	return e.instance, true
}

// insert stores a freshly opened instance and applies the eviction policy,
// closing any instances the policy names.  The new key itself is never a
// victim.
func (c *Cache) insert(key string, inst Instance) {
	weight := int64(size.Of(inst))
	if weight < 0 {
		weight = 0
	}
	c.mu.Lock()
	c.entries[key] = &entry{
		key:      key,
		instance: inst,
		weight:   weight,
		lastUsed: time.Now(),
	}
	snapshot := make([]Stat, 0, len(c.entries))
	for _, e := range c.entries {
		snapshot = append(snapshot, Stat{Key: e.key, Bytes: e.weight, LastUsed: e.lastUsed})
	}
	var victims []*entry
	for _, vk := range c.policy.Victims(snapshot) {
		if vk == key {
			continue
		}
		if e, found := c.entries[vk]; found {
			victims = append(victims, e)
			delete(c.entries, vk)
		}
	}
	c.mu.Unlock()

	for _, e := range victims {
		lim.Infof("evicting cached source %q (~%s)\n", e.key, humanize.Bytes(uint64(e.weight)))
		if err := e.instance.Close(); err != nil {
			lim.Warningf("closing evicted source %q: %v\n", e.key, err)
		}
	}
}

// Remove drops and closes the instance for key if present.
func (c *Cache) Remove(key string) {
	c.mu.Lock()
	e, found := c.entries[key]
	delete(c.entries, key)
	c.mu.Unlock()
	if found {
		if err := e.instance.Close(); err != nil {
			lim.Warningf("closing removed source %q: %v\n", e.key, err)
		}
	}
}

// Clear drops and closes every cached instance.
func (c *Cache) Clear() {
	c.mu.Lock()
	entries := c.entries
	c.entries = make(map[string]*entry)
	c.mu.Unlock()
	for _, e := range entries {
		if err := e.instance.Close(); err != nil {
			lim.Warningf("closing cached source %q: %v\n", e.key, err)
		}
	}
}

// Len returns the number of cached instances.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Bytes returns the estimated total weight of the cached instances.
func (c *Cache) Bytes() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	var total int64
	for _, e := range c.entries {
		total += e.weight
	}
	return total
}
