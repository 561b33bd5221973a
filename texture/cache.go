package texture

import (
	"github.com/clktmr/tileraster/dma"
	"github.com/clktmr/tileraster/mainmem"
	"github.com/clktmr/tileraster/tile"
)

// CacheSlots is the number of texture tiles held in local memory.
const CacheSlots = 16

// Tag is the DMA tag used for texture tile fills.
const Tag dma.Tag = 6

// invalidTag never matches a tile address.
const invalidTag = ^mainmem.Addr(0)

type CacheStats struct {
	Hits, Misses int
}

// Cache is a direct mapped cache of texture tiles.  Colliding tiles simply
// evict each other.
type Cache struct {
	dma   *dma.Engine
	tags  [CacheSlots]mainmem.Addr
	tiles [CacheSlots]tile.Tile
	stats CacheStats
}

func NewCache(e *dma.Engine) *Cache {
	c := &Cache{dma: e}
	c.InvalidateAll()
	return c
}

func (c *Cache) Stats() CacheStats { return c.stats }

// InvalidateAll forgets every cached tile.
func (c *Cache) InvalidateAll() {
	for i := range c.tags {
		c.tags[i] = invalidTag
	}
}

// Texel returns the packed texel (x, y) of a level.  Coordinates must be
// inside the level.
func (c *Cache) Texel(l *Level, x, y int) uint32 {
	tx, ty := x>>tile.Log2Size, y>>tile.Log2Size
	slot := (tx + ty*l.TilesPerRow) % CacheSlots
	addr := l.TileAddr(tx, ty)
	if c.tags[slot] != addr {
		c.stats.Misses++
		c.dma.GetSync(c.tiles[slot][:TileBytes], addr, Tag)
		c.tags[slot] = addr
	} else {
		c.stats.Hits++
	}
	return c.tiles[slot].U32(x&(tile.Size-1), y&(tile.Size-1))
}
