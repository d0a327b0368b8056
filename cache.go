package svt

import (
	"image"
	"slices"
	"strconv"
	"strings"
)

// DefaultRenderCacheSize is the number of encoded frames kept by default.
const DefaultRenderCacheSize = 100

const tilePagePrefix = "tile-page:"

// CacheKey identifies one encoded frame. It holds only what changes the
// pixels that get transmitted, never cursor or overlay state.
type CacheKey struct {
	Path   string
	Target image.Point // pixel box the frame was fitted into
	Fit    FitMode
	View   ViewMode
}

// TilePagePath is the synthetic path used to key a composited tile page.
func TilePagePath(start int) string {
	return tilePagePrefix + strconv.Itoa(start)
}

// IsTilePage reports whether path names a composited tile page.
func IsTilePage(path string) bool {
	return strings.HasPrefix(path, tilePagePrefix)
}

// Payload is an encoded frame ready to transmit. It is shared between the
// cache and in-flight writer jobs and is never modified after creation.
type Payload struct {
	Chunks [][]byte
	ID     ProtocolID
	Size   image.Point // pixel size actually transmitted
	Source image.Point // pixel size of the decoded source
	Epoch  uint64      // epoch of the request that produced it
}

// RenderCache is a bounded LRU of encoded frames. It is owned by a single
// goroutine and is not safe for concurrent use.
type RenderCache struct {
	entries     map[CacheKey]*Payload
	accessOrder []CacheKey // most recently used first
	maxSize     int
}

// NewRenderCache creates a cache holding at most capacity frames.
func NewRenderCache(capacity int) *RenderCache {
	if capacity < 1 {
		capacity = 1
	}
	return &RenderCache{
		entries:     make(map[CacheKey]*Payload, capacity),
		accessOrder: make([]CacheKey, 0, capacity),
		maxSize:     capacity,
	}
}

// Get returns the frame for key and marks it most recently used.
func (c *RenderCache) Get(key CacheKey) (*Payload, bool) {
	p, ok := c.entries[key]
	if ok {
		c.touch(key)
	}
	return p, ok
}

// Contains reports whether key is cached without touching its recency.
func (c *RenderCache) Contains(key CacheKey) bool {
	_, ok := c.entries[key]
	return ok
}

// Peek is Get without the recency update.
func (c *RenderCache) Peek(key CacheKey) (*Payload, bool) {
	p, ok := c.entries[key]
	return p, ok
}

// Put stores p under key, evicting least recently used entries as needed.
func (c *RenderCache) Put(key CacheKey, p *Payload) {
	if _, exists := c.entries[key]; exists {
		c.entries[key] = p
		c.touch(key)
		return
	}

	for len(c.entries) >= c.maxSize {
		c.evictLRU()
	}

	c.entries[key] = p
	c.accessOrder = append([]CacheKey{key}, c.accessOrder...)
}

// Remove drops key if present.
func (c *RenderCache) Remove(key CacheKey) {
	if _, ok := c.entries[key]; !ok {
		return
	}
	delete(c.entries, key)
	c.unlink(key)
}

// RemoveFunc drops every entry whose key matches and returns how many went.
func (c *RenderCache) RemoveFunc(match func(CacheKey) bool) int {
	n := 0
	for key := range c.entries {
		if match(key) {
			delete(c.entries, key)
			n++
		}
	}
	if n > 0 {
		c.accessOrder = slices.DeleteFunc(c.accessOrder, match)
	}
	return n
}

// Clear drops every entry.
func (c *RenderCache) Clear() {
	clear(c.entries)
	c.accessOrder = c.accessOrder[:0]
}

// Len returns the number of cached frames.
func (c *RenderCache) Len() int {
	return len(c.entries)
}

// Keys returns the cached keys, most recently used first.
func (c *RenderCache) Keys() []CacheKey {
	return slices.Clone(c.accessOrder)
}

func (c *RenderCache) touch(key CacheKey) {
	c.unlink(key)
	c.accessOrder = append([]CacheKey{key}, c.accessOrder...)
}

func (c *RenderCache) unlink(key CacheKey) {
	if i := slices.Index(c.accessOrder, key); i >= 0 {
		c.accessOrder = slices.Delete(c.accessOrder, i, i+1)
	}
}

func (c *RenderCache) evictLRU() {
	if len(c.accessOrder) == 0 {
		return
	}
	oldest := c.accessOrder[len(c.accessOrder)-1]
	c.accessOrder = c.accessOrder[:len(c.accessOrder)-1]
	delete(c.entries, oldest)
}
