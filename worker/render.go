package worker

import (
	"encoding/binary"
	"fmt"
	"image"
	"math"

	"github.com/clktmr/tileraster/mainmem"
	"github.com/clktmr/tileraster/protocol"
	"github.com/clktmr/tileraster/raster"
	"github.com/clktmr/tileraster/shader"
	"github.com/clktmr/tileraster/tile"
)

const (
	maxUniformBytes = 1024
	maxVertices     = 1 << 16
)

// render draws a Render record into every owned tile its bounds touch.
func (c *Context) render(rec []byte) error {
	cmd, indices, inline, err := protocol.RenderData(rec)
	if err != nil {
		return err
	}
	if cmd.Prim > raster.TriangleFan {
		return fmt.Errorf("%w: primitive %d", ErrInvalidState, cmd.Prim)
	}
	verts, err := c.loadVertices(&cmd, inline)
	if err != nil {
		return err
	}

	count := len(verts)
	index := func(i int) int { return i }
	if len(indices) > 0 {
		for _, i := range indices {
			if int(i) >= len(verts) {
				return fmt.Errorf("%w: index %d of %d vertices", ErrInvalidState, i, len(verts))
			}
		}
		count = len(indices)
		index = func(i int) int { return int(indices[i]) }
	}

	fb := c.store.Framebuffer()
	b := cmd.Bounds().Image().Intersect(image.Rect(0, 0, fb.Width, fb.Height))
	if b.Empty() {
		return nil
	}
	for ty := b.Min.Y >> tile.Log2Size; ty <= (b.Max.Y-1)>>tile.Log2Size; ty++ {
		for tx := b.Min.X >> tile.Log2Size; tx <= (b.Max.X-1)>>tile.Log2Size; tx++ {
			if !c.store.Owns(tx, ty) {
				continue
			}
			c.raster.BeginTile(tx, ty)
			raster.Assemble(cmd.Prim, count, func(i0, i1, i2 int) {
				c.raster.Triangle(&verts[index(i0)], &verts[index(i1)], &verts[index(i2)])
			})
			c.raster.EndTile()
		}
	}
	return nil
}

// loadVertices resolves the vertices of a Render record in window
// coordinates.
func (c *Context) loadVertices(cmd *protocol.Render, inline []byte) ([]raster.Vertex, error) {
	n := int(cmd.NumVerts)
	if n > maxVertices {
		return nil, fmt.Errorf("%w: %d vertices", ErrInvalidState, n)
	}
	if cap(c.vertices) < n {
		c.vertices = make([]raster.Vertex, n)
	}
	verts := c.vertices[:n]

	switch cmd.Source {
	case protocol.Inline, protocol.Buffer:
		size := int(cmd.VertexSize)
		if size < 16 || size%16 != 0 || size > 16*shader.MaxAttribs {
			return nil, fmt.Errorf("%w: vertex size %d", ErrInvalidState, size)
		}
		var buf [16 * shader.MaxAttribs]byte
		for i := range verts {
			src := buf[:size]
			if cmd.Source == protocol.Inline {
				src = inline[i*size : (i+1)*size]
			} else {
				c.fetch.FetchUnaligned(src, cmd.VertexAddr+mainmem.Addr(i*size), size)
			}
			decodeVertex(&verts[i], src)
		}

	case protocol.Arrays:
		uniforms := c.loadUniforms()
		var in shader.Attribs
		var buf [16]byte
		for i := range verts {
			for a := range int(c.layout.NumAttribs) {
				f := c.layout.Formats[a]
				size := f.Size()
				if size == 0 || size > len(buf) {
					in[a] = [4]float32{0, 0, 0, 1}
					continue
				}
				arr := &c.arrays[a]
				c.fetch.FetchUnaligned(buf[:], arr.Addr+mainmem.Addr(i*int(arr.Stride)), size)
				c.attrFetch.Fetch(a, buf[:size], &in[a])
			}
			c.vprog(&in, uniforms, &verts[i])
			c.toWindow(&verts[i][0])
		}

	default:
		return nil, fmt.Errorf("%w: vertex source %d", ErrInvalidState, cmd.Source)
	}
	return verts, nil
}

func decodeVertex(v *raster.Vertex, src []byte) {
	*v = raster.Vertex{}
	for a := range len(src) / 16 {
		for i := range 4 {
			v[a][i] = math.Float32frombits(binary.LittleEndian.Uint32(src[16*a+4*i:]))
		}
	}
}

// loadUniforms reads the uniform block through the fetch cache.
func (c *Context) loadUniforms() []float32 {
	size := int(c.uniforms.Size)
	if size == 0 {
		return nil
	}
	var buf [maxUniformBytes]byte
	c.fetch.FetchUnaligned(buf[:mainmem.RoundUp(size, mainmem.QwordSize)], c.uniforms.Addr, size)
	vals := make([]float32, size/4)
	for i := range vals {
		vals[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[4*i:]))
	}
	return vals
}

// toWindow divides a clip space position by w and applies the viewport.
// Normalized device y points down.
func (c *Context) toWindow(p *[4]float32) {
	vp := &c.viewport
	inv := 1 / p[3]
	x, y, z := p[0]*inv, p[1]*inv, p[2]*inv
	p[0] = vp.X + (x+1)*vp.Width/2
	p[1] = vp.Y + (y+1)*vp.Height/2
	p[2] = vp.Near + (z+1)*(vp.Far-vp.Near)/2
	p[3] = inv
}
