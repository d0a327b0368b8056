package svt

import (
	"image"

	"github.com/jellydator/ttlcache/v3"
)

// DefaultThumbCacheSize bounds the number of tile thumbnails kept across
// page turns.
const DefaultThumbCacheSize = 500

type thumbKey struct {
	Path string
	Box  image.Point
}

// ThumbCache holds scaled tile thumbnails keyed by source path and the inner
// box they were fitted into. It is safe for concurrent use.
type ThumbCache struct {
	c *ttlcache.Cache[thumbKey, image.Image]
}

// NewThumbCache creates a cache holding at most capacity thumbnails.
func NewThumbCache(capacity int) *ThumbCache {
	if capacity < 1 {
		capacity = DefaultThumbCacheSize
	}
	return &ThumbCache{
		c: ttlcache.New[thumbKey, image.Image](
			ttlcache.WithCapacity[thumbKey, image.Image](uint64(capacity)),
		),
	}
}

// Get returns the thumbnail of path scaled for box.
func (t *ThumbCache) Get(path string, box image.Point) (image.Image, bool) {
	item := t.c.Get(thumbKey{Path: path, Box: box})
	if item == nil {
		return nil, false
	}
	return item.Value(), true
}

// Set stores img as the thumbnail of path for box.
func (t *ThumbCache) Set(path string, box image.Point, img image.Image) {
	t.c.Set(thumbKey{Path: path, Box: box}, img, ttlcache.NoTTL)
}

// Forget drops every thumbnail of the given paths, whatever their size.
func (t *ThumbCache) Forget(paths ...string) {
	if len(paths) == 0 {
		return
	}
	drop := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		drop[p] = struct{}{}
	}
	for _, k := range t.c.Keys() {
		if _, ok := drop[k.Path]; ok {
			t.c.Delete(k)
		}
	}
}

// Clear drops every thumbnail.
func (t *ThumbCache) Clear() {
	t.c.DeleteAll()
}

// Len returns the number of cached thumbnails.
func (t *ThumbCache) Len() int {
	return t.c.Len()
}
