// Package shader holds the callables a worker installs at runtime: fragment
// operations, fragment programs, attribute fetchers and vertex programs.
//
// Installable code never executes raw bytes.  A code blob names a program
// from a statically linked table and carries its parameters.
package shader

import (
	"github.com/clktmr/tileraster/pixel"
	"github.com/clktmr/tileraster/texture"
	"github.com/clktmr/tileraster/tile"
)

// MaxAttribs is the number of float4 attributes per vertex.  Attribute 0 is
// the position.
const MaxAttribs = 8

// Attribs are the attributes of a vertex or fragment.
type Attribs [MaxAttribs][4]float32

// Quad is a 2×2 block of fragments.  Fragment i is at (X+i&1, Y+i>>1) in
// tile coordinates and is covered if bit i of Mask is set.
type Quad struct {
	X, Y  int
	Mask  uint8
	Front bool
	Attr  [4]Attribs
}

// Pos returns the tile coordinates of fragment i.
func (q *Quad) Pos(i int) (x, y int) { return q.X + i&1, q.Y + i>>1 }

// QuadContext is the state fragment operations run against.
type QuadContext struct {
	Framebuffer  *tile.Framebuffer
	Color, Depth *tile.Tile

	DepthStencil DepthStencil
	Blend        Blend

	Program   FragmentProgram
	Constants []pixel.Color
	Textures  *texture.Textures

	// ColorWritten and DepthWritten are set when a fragment was stored
	// to the respective tile.
	ColorWritten, DepthWritten bool
}

// Constant returns constant i or transparent black if it isn't set.
func (ctx *QuadContext) Constant(i int) pixel.Color {
	if i < len(ctx.Constants) {
		return ctx.Constants[i]
	}
	return pixel.Color{}
}
