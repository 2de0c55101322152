package pack

import (
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/dgryski/go-tinylfu"
)

const (
	defaultStatCacheSize    = 4096
	defaultReaddirCacheSize = 1024
)

// linkCache maps "<dev>:<ino>" to the first archive path seen for that
// inode, so later entries sharing it can be encoded as hard links
// instead of duplicating the body (spec.md §4.5 step 3). It is never
// bounded: losing an entry here doesn't corrupt anything, but it does
// silently give up a hard-link opportunity, so it stays a plain map
// rather than an eviction-prone cache.
type linkCache struct {
	mu sync.Mutex
	m  map[uint64]string
}

func newLinkCache() *linkCache {
	return &linkCache{m: make(map[uint64]string)}
}

func (c *linkCache) lookup(key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.m[xxhash.Sum64String(key)]
	return v, ok
}

func (c *linkCache) store(key, archivePath string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[xxhash.Sum64String(key)] = archivePath
}

// Caches bundles the shared, cross-entry state spec.md §6 names as
// configuration knobs: linkCache (always shared per-Archiver),
// statCache and readdirCache (bounded admission-policy caches a caller
// can share across many Archivers by passing the same *Caches via
// Options.Caches, so a long-lived process packing many archives doesn't
// grow these without bound).
//
// readdirCache is exposed for an external filesystem walker to share —
// this package doesn't call readdir itself, walking directories being
// out of scope per spec.md's Non-goals.
type Caches struct {
	link     *linkCache
	statMu   sync.Mutex
	stat     *tinylfu.T[string, Stat]
	Readdir  *tinylfu.T[string, []string]
}

// NewCaches builds a fresh, unshared Caches set sized for one archiver.
func NewCaches() *Caches {
	return &Caches{
		link:    newLinkCache(),
		stat:    tinylfu.New[string, Stat](defaultStatCacheSize, defaultStatCacheSize*10, xxhash.Sum64String),
		Readdir: tinylfu.New[string, []string](defaultReaddirCacheSize, defaultReaddirCacheSize*10, xxhash.Sum64String),
	}
}

func (c *Caches) statLookup(path string) (Stat, bool) {
	c.statMu.Lock()
	defer c.statMu.Unlock()
	return c.stat.Get(path)
}

func (c *Caches) statStore(path string, st Stat) {
	c.statMu.Lock()
	defer c.statMu.Unlock()
	c.stat.Add(path, st)
}
