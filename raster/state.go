package raster

import "image"

type CullMode uint32

const (
	CullNone CullMode = iota
	CullFront
	CullBack
)

type Winding uint32

const (
	// CCW is counter-clockwise as seen on screen, with y pointing down.
	CCW Winding = iota
	CW
)

// Rect is a pixel rectangle, Min inclusive and Max exclusive.
type Rect struct {
	X0, Y0, X1, Y1 int32
}

func (r Rect) Image() image.Rectangle {
	return image.Rect(int(r.X0), int(r.Y0), int(r.X1), int(r.Y1))
}

// State is the rasterizer parameter block.
type State struct {
	Cull      CullMode
	FrontFace Winding
	// FlatShade makes every attribute but the position constant across a
	// triangle, taken from the provoking vertex.  The provoking vertex is
	// the last one unless FlatshadeFirst is set.
	FlatShade      bool
	FlatshadeFirst bool
	ScissorEnable  bool
	_              byte
	Scissor        Rect
}

type Primitive uint32

const (
	Triangles Primitive = iota
	TriangleStrip
	TriangleFan
)

func (p Primitive) String() string {
	switch p {
	case Triangles:
		return "triangles"
	case TriangleStrip:
		return "strip"
	case TriangleFan:
		return "fan"
	}
	return "invalid"
}

// Assemble calls fn with the vertex indices of every triangle of a
// primitive with n vertices.  Strip triangles keep the winding of the
// first one.
func Assemble(p Primitive, n int, fn func(i0, i1, i2 int)) {
	switch p {
	case Triangles:
		for i := 0; i+2 < n; i += 3 {
			fn(i, i+1, i+2)
		}
	case TriangleStrip:
		for i := 0; i+2 < n; i++ {
			if i&1 == 0 {
				fn(i, i+1, i+2)
			} else {
				fn(i+1, i, i+2)
			}
		}
	case TriangleFan:
		for i := 1; i+1 < n; i++ {
			fn(0, i, i+1)
		}
	}
}
