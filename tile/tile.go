// Package tile holds a worker's working set of framebuffer tiles and tracks
// the state of every tile of the framebuffer.
//
// A worker has exactly one current color tile and one current depth tile.
// Tiles are fetched from and written back to main memory with asynchronous
// transfers.  Clearing is lazy: a cleared tile isn't written to main memory
// until it is rendered to or the frame is finished.
package tile

import (
	"encoding/binary"

	"github.com/clktmr/tileraster/internal/xmath"
	"github.com/clktmr/tileraster/mainmem"
	"github.com/clktmr/tileraster/pixel"
)

// Size is the width and height of a tile in pixels.
const Size = 32

// Log2Size is log2(Size).
const Log2Size = 5

// MaxBytes is the size of a tile with 32 bit pixels.
const MaxBytes = Size * Size * 4

// Tile is the local buffer of a single tile.  Pixels are stored row major,
// with either 16 or 32 bit per pixel.
type Tile [MaxBytes]byte

func offset(x, y, bpp int) int { return (y*Size + x) * bpp }

func (t *Tile) U32(x, y int) uint32 {
	return binary.LittleEndian.Uint32(t[offset(x, y, 4):])
}

func (t *Tile) SetU32(x, y int, v uint32) {
	binary.LittleEndian.PutUint32(t[offset(x, y, 4):], v)
}

func (t *Tile) U16(x, y int) uint16 {
	return binary.LittleEndian.Uint16(t[offset(x, y, 2):])
}

func (t *Tile) SetU16(x, y int, v uint16) {
	binary.LittleEndian.PutUint16(t[offset(x, y, 2):], v)
}

// Pixel reads a pixel of bpp bytes as uint32.
func (t *Tile) Pixel(x, y, bpp int) uint32 {
	if bpp == 2 {
		return uint32(t.U16(x, y))
	}
	return t.U32(x, y)
}

// SetPixel stores v as pixel of bpp bytes.
func (t *Tile) SetPixel(x, y, bpp int, v uint32) {
	if bpp == 2 {
		t.SetU16(x, y, uint16(v))
	} else {
		t.SetU32(x, y, v)
	}
}

// Fill sets every pixel of a tile with bpp bytes per pixel to v.
func (t *Tile) Fill(bpp int, v uint32) {
	var pattern [4]byte
	binary.LittleEndian.PutUint32(pattern[:], v)
	buf := t.Bytes(bpp)
	for i := 0; i < len(buf); i += bpp {
		copy(buf[i:i+bpp], pattern[:bpp])
	}
}

// Bytes returns the used portion of the buffer for bpp bytes per pixel.
func (t *Tile) Bytes(bpp int) []byte {
	return t[:Size*Size*bpp]
}

// Surface selects the color or the depth buffer.
type Surface uint8

const (
	Color Surface = iota
	Depth
	numSurfaces
)

func (s Surface) String() string {
	if s == Color {
		return "color"
	}
	return "depth"
}

// Framebuffer describes the surfaces rendered to.
type Framebuffer struct {
	ColorAddr, DepthAddr    mainmem.Addr
	ColorFormat             pixel.Format
	DepthFormat             pixel.DepthFormat
	Width, Height           int
	WidthTiles, HeightTiles int
	ClearColor, ClearDepth  uint32
}

// NewFramebuffer returns a framebuffer descriptor with the tile dimensions
// computed from width and height.
func NewFramebuffer(color, depth mainmem.Addr, cf pixel.Format, df pixel.DepthFormat, width, height int) Framebuffer {
	fb := Framebuffer{
		ColorAddr:   color,
		DepthAddr:   depth,
		ColorFormat: cf,
		DepthFormat: df,
		Width:       width,
		Height:      height,
	}
	fb.WidthTiles = xmath.DivCeil(width, Size)
	fb.HeightTiles = xmath.DivCeil(height, Size)
	if depth == 0 {
		fb.DepthFormat = pixel.DepthNone
	}
	return fb
}

// HasDepth reports whether the framebuffer has a depth surface.
func (fb *Framebuffer) HasDepth() bool {
	return fb.DepthAddr != 0 && fb.DepthFormat != pixel.DepthNone
}

// BytesPerPixel returns the pixel size of a surface.
func (fb *Framebuffer) BytesPerPixel(s Surface) int {
	if s == Depth {
		return fb.DepthFormat.Bytes()
	}
	return 4
}

// BytesPerTile returns the size of a tile of a surface in main memory.
func (fb *Framebuffer) BytesPerTile(s Surface) int {
	return Size * Size * fb.BytesPerPixel(s)
}

// TileAddr returns the main memory address of a tile.
func (fb *Framebuffer) TileAddr(s Surface, tx, ty int) mainmem.Addr {
	base := fb.ColorAddr
	if s == Depth {
		base = fb.DepthAddr
	}
	return base + mainmem.Addr((ty*fb.WidthTiles+tx)*fb.BytesPerTile(s))
}

// SurfaceSize returns the number of bytes to allocate for a surface.
func (fb *Framebuffer) SurfaceSize(s Surface) int {
	return fb.WidthTiles * fb.HeightTiles * fb.BytesPerTile(s)
}

// Owner returns the worker owning tile (tx, ty).
func Owner(tx, ty, widthTiles, numWorkers int) int {
	return (widthTiles*ty + tx) % numWorkers
}
