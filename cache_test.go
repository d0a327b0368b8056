package svt

import (
	"fmt"
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
)

func testKey(path string) CacheKey {
	return CacheKey{Path: path, Target: image.Pt(800, 600)}
}

func TestRenderCacheLRU(t *testing.T) {
	c := NewRenderCache(2)
	a, b, d := testKey("a"), testKey("b"), testKey("d")

	c.Put(a, &Payload{})
	c.Put(b, &Payload{})
	_, ok := c.Get(a) // a becomes most recent
	assert.True(t, ok)

	c.Put(d, &Payload{})
	assert.Equal(t, 2, c.Len())
	assert.True(t, c.Contains(a))
	assert.False(t, c.Contains(b), "least recently used entry should be evicted")
	assert.True(t, c.Contains(d))
	assert.Equal(t, []CacheKey{d, a}, c.Keys())
}

func TestRenderCacheContainsDoesNotTouch(t *testing.T) {
	c := NewRenderCache(2)
	a, b := testKey("a"), testKey("b")
	c.Put(a, &Payload{})
	c.Put(b, &Payload{})

	assert.True(t, c.Contains(a))
	_, ok := c.Peek(a)
	assert.True(t, ok)

	c.Put(testKey("c"), &Payload{})
	assert.False(t, c.Contains(a))
}

func TestRenderCachePutReplaces(t *testing.T) {
	c := NewRenderCache(3)
	k := testKey("a")
	first, second := &Payload{Epoch: 1}, &Payload{Epoch: 2}

	c.Put(k, first)
	c.Put(k, second)

	got, ok := c.Get(k)
	assert.True(t, ok)
	assert.Same(t, second, got)
	assert.Equal(t, 1, c.Len())
}

func TestRenderCacheRemoveFunc(t *testing.T) {
	c := NewRenderCache(10)
	for _, fit := range []FitMode{FitNormal, FitFill} {
		c.Put(CacheKey{Path: "a.png", Target: image.Pt(10, 10), Fit: fit}, &Payload{})
		c.Put(CacheKey{Path: "b.png", Target: image.Pt(10, 10), Fit: fit}, &Payload{})
	}

	n := c.RemoveFunc(func(k CacheKey) bool { return k.Path == "a.png" })
	assert.Equal(t, 2, n)
	assert.Equal(t, 2, c.Len())
	for _, k := range c.Keys() {
		assert.Equal(t, "b.png", k.Path)
	}

	c.Remove(CacheKey{Path: "b.png", Target: image.Pt(10, 10)})
	assert.Equal(t, 1, c.Len())

	c.Clear()
	assert.Zero(t, c.Len())
	assert.Empty(t, c.Keys())
}

func TestRenderCacheMinimumCapacity(t *testing.T) {
	c := NewRenderCache(0)
	for i := range 5 {
		c.Put(testKey(fmt.Sprint(i)), &Payload{})
	}
	assert.Equal(t, 1, c.Len())
	assert.True(t, c.Contains(testKey("4")))
}

func TestTilePagePath(t *testing.T) {
	assert.Equal(t, "tile-page:24", TilePagePath(24))
	assert.True(t, IsTilePage(TilePagePath(0)))
	assert.False(t, IsTilePage("photos/tile.png"))
}
