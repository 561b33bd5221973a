// Package texture samples textures stored in main memory through a small
// direct mapped cache of texture tiles.
//
// Textures use the same tiled layout as framebuffers: a row major grid of
// tile.Size×tile.Size tiles, each stored contiguously in a packed 32 bit
// color format.
package texture

import (
	"github.com/clktmr/tileraster/internal/xmath"
	"github.com/clktmr/tileraster/mainmem"
	"github.com/clktmr/tileraster/pixel"
	"github.com/clktmr/tileraster/tile"
)

const (
	MaxUnits     = 4
	MaxLevels    = 12
	MaxDimension = 4096
)

// TileBytes is the size of a texture tile in main memory.
const TileBytes = tile.Size * tile.Size * 4

type Wrap uint32

const (
	Repeat Wrap = iota
	ClampToEdge
)

type Filter uint32

const (
	Nearest Filter = iota
	Linear
)

// Sampler holds the sampling state of a texture unit.
type Sampler struct {
	WrapS, WrapT         Wrap
	MinFilter, MagFilter Filter
	// Normalized coordinates are in [0, 1] instead of texels.
	Normalized bool
	LodBias    float32
}

// DefaultSampler repeats and filters nearest with normalized coordinates.
var DefaultSampler = Sampler{Normalized: true}

// Level describes one mip level of a texture.
type Level struct {
	Addr                 mainmem.Addr
	Width, Height, Depth int

	TilesPerRow   int
	BytesPerImage int

	// MaskS and MaskT are size-1 for repeating coordinates and all ones
	// for clamped ones.
	MaskS, MaskT   int32
	ScaleS, ScaleT float32
}

// NewLevel returns a level with the tiling computed from its size.
func NewLevel(addr mainmem.Addr, width, height, depth int) Level {
	l := Level{Addr: addr, Width: width, Height: height, Depth: max(depth, 1)}
	l.TilesPerRow = xmath.DivCeil(width, tile.Size)
	l.BytesPerImage = l.TilesPerRow * xmath.DivCeil(height, tile.Size) * TileBytes
	return l
}

// TileAddr returns the address of tile (tx, ty) of the level.
func (l *Level) TileAddr(tx, ty int) mainmem.Addr {
	return l.Addr + mainmem.Addr((ty*l.TilesPerRow+tx)*TileBytes)
}

func (l *Level) update(s *Sampler) {
	l.MaskS, l.MaskT = -1, -1
	if s.WrapS == Repeat {
		l.MaskS = int32(l.Width - 1)
	}
	if s.WrapT == Repeat {
		l.MaskT = int32(l.Height - 1)
	}
	l.ScaleS, l.ScaleT = 1, 1
	if s.Normalized {
		l.ScaleS, l.ScaleT = float32(l.Width), float32(l.Height)
	}
}

// Descriptor is the texture bound to a texture unit.
type Descriptor struct {
	Format pixel.Format
	Levels []Level
}

// Bound reports whether a texture is bound.
func (d *Descriptor) Bound() bool { return len(d.Levels) > 0 && d.Levels[0].Addr != 0 }

// Update recomputes the coordinate masks and scales of every level.  It
// must be called whenever the texture or its sampler changes.
func (d *Descriptor) Update(s Sampler) {
	for i := range d.Levels {
		d.Levels[i].update(&s)
	}
}

// wrap maps an integer texel coordinate into [0, size).
func wrap(c int, size int, mask int32) int {
	if mask == -1 {
		return xmath.Clamp(c, 0, size-1)
	}
	if xmath.IsPow2(size) {
		return c & int(mask)
	}
	c %= size
	if c < 0 {
		c += size
	}
	return c
}
