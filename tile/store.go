package tile

import (
	"github.com/clktmr/tileraster/debug"
	"github.com/clktmr/tileraster/dma"
)

// DMA tags used for the current tiles.
const (
	TagColor dma.Tag = 2
	TagDepth dma.Tag = 3
)

var surfaceTags = [numSurfaces]dma.Tag{TagColor, TagDepth}

// Stats counts tile transfers and lazy clears.
type Stats struct {
	Gets, Puts     [numSurfaces]int
	Materialized   [numSurfaces]int // clear tiles written by Flush
	SynthesizedClr [numSurfaces]int // clear tiles filled locally by Begin
}

// Store owns the current tiles of a worker and the status of all tiles.
type Store struct {
	dma        *dma.Engine
	workerID   int
	numWorkers int

	fb     Framebuffer
	tiles  [numSurfaces]Tile
	status [numSurfaces]StatusTable

	active bool
	tx, ty int

	stats Stats
}

// NewStore returns the tile store of worker id out of n workers.
func NewStore(e *dma.Engine, id, n int) *Store {
	debug.Assert(n > 0 && id >= 0 && id < n, "tile: invalid worker id")
	return &Store{dma: e, workerID: id, numWorkers: n}
}

// SetFramebuffer installs a new framebuffer.  All tiles are considered
// defined in main memory afterwards.
func (s *Store) SetFramebuffer(fb Framebuffer) {
	debug.Assert(!s.active, "tile: framebuffer change during render")
	s.dma.WaitOnMaskAll(dma.Mask(TagColor, TagDepth))
	clearColor, clearDepth := s.fb.ClearColor, s.fb.ClearDepth
	s.fb = fb
	s.fb.ClearColor, s.fb.ClearDepth = clearColor, clearDepth
	for i := range s.status {
		s.status[i].Reset(fb.WidthTiles, fb.HeightTiles, Defined)
	}
}

func (s *Store) Framebuffer() *Framebuffer { return &s.fb }

func (s *Store) Stats() Stats { return s.stats }

// Owns reports whether this worker owns tile (tx, ty).
func (s *Store) Owns(tx, ty int) bool {
	return Owner(tx, ty, s.fb.WidthTiles, s.numWorkers) == s.workerID
}

func (s *Store) has(surf Surface) bool {
	return surf == Color && s.fb.ColorAddr != 0 || surf == Depth && s.fb.HasDepth()
}

// Status returns the status of a tile.
func (s *Store) Status(surf Surface, tx, ty int) Status {
	return s.status[surf].Get(tx, ty)
}

// Clear lazily clears a surface to a packed value.
func (s *Store) Clear(surf Surface, value uint32) {
	debug.Assert(!s.active, "tile: clear during render")
	if surf == Color {
		s.fb.ClearColor = value
	} else {
		s.fb.ClearDepth = value
	}
	s.status[surf].Fill(Clear)
}

func (s *Store) clearValue(surf Surface) uint32 {
	if surf == Depth {
		return s.fb.ClearDepth
	}
	return s.fb.ClearColor
}

// GetTile starts fetching tile (tx, ty) of a surface into dst.
func (s *Store) GetTile(tx, ty int, dst *Tile, surf Surface, tag dma.Tag) {
	bpp := s.fb.BytesPerPixel(surf)
	s.dma.Get(dst.Bytes(bpp), s.fb.TileAddr(surf, tx, ty), tag)
	s.stats.Gets[surf]++
}

// PutTile starts writing src to tile (tx, ty) of a surface.
func (s *Store) PutTile(tx, ty int, src *Tile, surf Surface, tag dma.Tag) {
	bpp := s.fb.BytesPerPixel(surf)
	s.dma.Put(src.Bytes(bpp), s.fb.TileAddr(surf, tx, ty), tag)
	s.stats.Puts[surf]++
}

// Begin makes (tx, ty) the current tile.  Cleared tiles are synthesized
// locally, all others are fetched asynchronously.
func (s *Store) Begin(tx, ty int) {
	debug.Assert(!s.active, "tile: begin without end")
	debug.Assert(s.Owns(tx, ty), "tile: begin on foreign tile")
	s.active = true
	s.tx, s.ty = tx, ty

	for surf := range numSurfaces {
		if !s.has(surf) {
			continue
		}
		// The local buffer might still be read by a previous put.
		tag := surfaceTags[surf]
		s.dma.WaitOnMaskAll(dma.Mask(tag))

		switch st := s.status[surf].Get(tx, ty); st {
		case Clear:
			s.tiles[surf].Fill(s.fb.BytesPerPixel(surf), s.clearValue(surf))
			s.stats.SynthesizedClr[surf]++
		case Defined, Clean:
			s.GetTile(tx, ty, &s.tiles[surf], surf, tag)
			s.status[surf].Set(tx, ty, Getting)
		default:
			debug.Assertf(false, "tile: begin on %v tile (%d,%d)", st, tx, ty)
		}
	}
}

// Tile returns the current tile of a surface, waiting for its contents to
// arrive if necessary.
func (s *Store) Tile(surf Surface) *Tile {
	debug.Assert(s.active, "tile: no current tile")
	if s.status[surf].Get(s.tx, s.ty) == Getting {
		s.dma.WaitOnMaskAll(dma.Mask(surfaceTags[surf]))
		s.status[surf].Set(s.tx, s.ty, Clean)
	}
	return &s.tiles[surf]
}

// MarkDirty records that the current tile of a surface was modified.
func (s *Store) MarkDirty(surf Surface) {
	debug.Assert(s.active, "tile: no current tile")
	debug.Assert(s.status[surf].Get(s.tx, s.ty) != Getting, "tile: modified before ready")
	s.status[surf].Set(s.tx, s.ty, Dirty)
}

// Current returns the coordinate of the current tile.
func (s *Store) Current() (tx, ty int, ok bool) {
	return s.tx, s.ty, s.active
}

// End finishes the current tile.  Modified tiles are written back
// asynchronously, unmodified ones are dropped without a transfer.
func (s *Store) End() {
	debug.Assert(s.active, "tile: end without begin")
	for surf := range numSurfaces {
		if !s.has(surf) {
			continue
		}
		switch s.status[surf].Get(s.tx, s.ty) {
		case Dirty:
			s.PutTile(s.tx, s.ty, &s.tiles[surf], surf, surfaceTags[surf])
			s.status[surf].Set(s.tx, s.ty, Defined)
		case Clean, Getting:
			// A pending get is waited for before the buffer is reused.
			s.status[surf].Set(s.tx, s.ty, Defined)
		}
	}
	s.active = false
}

// Flush writes the clear value to every owned tile that is still cleared
// and waits until all tile transfers completed.
func (s *Store) Flush() {
	debug.Assert(!s.active, "tile: flush during render")
	for surf := range numSurfaces {
		if !s.has(surf) {
			continue
		}
		tag := surfaceTags[surf]
		filled := false
		for ty := range s.fb.HeightTiles {
			for tx := range s.fb.WidthTiles {
				if !s.Owns(tx, ty) || s.status[surf].Get(tx, ty) != Clear {
					continue
				}
				if !filled {
					s.dma.WaitOnMaskAll(dma.Mask(tag))
					s.tiles[surf].Fill(s.fb.BytesPerPixel(surf), s.clearValue(surf))
					filled = true
				}
				s.PutTile(tx, ty, &s.tiles[surf], surf, tag)
				s.status[surf].Set(tx, ty, Defined)
				s.stats.Materialized[surf]++
			}
		}
	}
	s.dma.WaitOnMaskAll(dma.Mask(TagColor, TagDepth))
}
