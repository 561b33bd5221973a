// Package raster converts triangles into quads of fragments inside the
// current tile.
//
// Sampling follows the usual fill convention: a pixel is covered if its
// center is inside the triangle, with left and top edges inclusive and
// right and bottom edges exclusive.  Triangles sharing an edge thus never
// leave gaps nor cover a pixel twice.
package raster

import (
	"math"

	"github.com/clktmr/tileraster/fixed"
	"github.com/clktmr/tileraster/internal/xmath"
	"github.com/clktmr/tileraster/shader"
	"github.com/clktmr/tileraster/tile"
)

// Vertex holds the attributes of a vertex.  Attribute 0 is the position in
// window coordinates: x and y in pixels, z the depth in [0, 1].
type Vertex = shader.Attribs

// GuardBand bounds the window coordinates of rasterized vertices.
const GuardBand = 1 << 13

type Stats struct {
	Triangles int
	Culled    int
	Rejected  int
	Quads     int
}

// Rasterizer draws triangles into the current tiles of a tile store.
type Rasterizer struct {
	State      State
	NumAttribs int
	Ops        shader.FragmentOps
	Context    shader.QuadContext

	store *tile.Store
	stats Stats
}

func New(store *tile.Store) *Rasterizer {
	r := &Rasterizer{
		NumAttribs: 2,
		Ops:        &shader.NativeOps,
		store:      store,
	}
	r.Context.Framebuffer = store.Framebuffer()
	r.Context.Blend = shader.DefaultBlend
	r.Context.Program = shader.PassThrough
	return r
}

func (r *Rasterizer) Stats() Stats { return r.stats }

type edge struct {
	sy, ey int // sample rows [sy, ey)
	xs     fixed.Int16_16
	dxdy   fixed.Int16_16
}

// ceilHalf returns the first integer n with n+0.5 >= v.
func ceilHalf(v float32) int { return int(math.Ceil(float64(v) - 0.5)) }

func toFixed(v float32) fixed.Int16_16 {
	return fixed.Int16_16F(xmath.Clamp(v, -(1<<15 - 1), 1<<15-1))
}

// newEdge returns the edge from a to b, with a not below b.
func newEdge(a, b *[4]float32) edge {
	e := edge{sy: ceilHalf(a[1]), ey: ceilHalf(b[1])}
	if dy := b[1] - a[1]; dy > 0 {
		slope := (b[0] - a[0]) / dy
		e.dxdy = toFixed(slope)
		e.xs = toFixed(a[0] + (float32(e.sy)+0.5-a[1])*slope)
	}
	return e
}

// x returns the edge's x at the center of row y.
func (e *edge) x(y int) fixed.Int16_16 { return e.xs + e.dxdy.MulInt(y-e.sy) }

type plane struct {
	a0, dadx, dady float32
}

func (p *plane) at(x, y float32) float32 { return p.a0 + p.dadx*x + p.dady*y }

// setup is a triangle prepared for scan conversion.
type setup struct {
	emaj, etop, ebot edge
	majorLeft        bool
	front            bool
	planes           [shader.MaxAttribs][4]plane
}

func invalid(v *Vertex) bool {
	for _, c := range v[0][:3] {
		if c != c {
			return true
		}
	}
	x, y := v[0][0], v[0][1]
	return x > GuardBand || x < -GuardBand || y > GuardBand || y < -GuardBand
}

// prepare sorts the vertices and computes edges and plane equations.  It
// returns false for degenerate and culled triangles.
func (r *Rasterizer) prepare(s *setup, v0, v1, v2 *Vertex) bool {
	if invalid(v0) || invalid(v1) || invalid(v2) {
		r.stats.Rejected++
		return false
	}

	// Winding is taken before sorting.
	det := (v1[0][0]-v0[0][0])*(v2[0][1]-v0[0][1]) - (v1[0][1]-v0[0][1])*(v2[0][0]-v0[0][0])
	if det == 0 {
		r.stats.Rejected++
		return false
	}
	s.front = (det < 0) == (r.State.FrontFace == CCW)
	switch r.State.Cull {
	case CullFront:
		if s.front {
			r.stats.Culled++
			return false
		}
	case CullBack:
		if !s.front {
			r.stats.Culled++
			return false
		}
	}

	provoking := v2
	if r.State.FlatshadeFirst {
		provoking = v0
	}
	if v1[0][1] < v0[0][1] {
		v0, v1 = v1, v0
	}
	if v2[0][1] < v1[0][1] {
		v1, v2 = v2, v1
	}
	if v1[0][1] < v0[0][1] {
		v0, v1 = v1, v0
	}
	p0, p1, p2 := &v0[0], &v1[0], &v2[0]
	s.emaj = newEdge(p0, p2)
	s.etop = newEdge(p0, p1)
	s.ebot = newEdge(p1, p2)

	majdx, majdy := p2[0]-p0[0], p2[1]-p0[1]
	botdx, botdy := p2[0]-p1[0], p2[1]-p1[1]
	area := majdx*botdy - botdx*majdy
	if area == 0 {
		r.stats.Rejected++
		return false
	}
	s.majorLeft = area > 0

	for a := range r.NumAttribs {
		for c := range 4 {
			pl := &s.planes[a][c]
			if a > 0 && r.State.FlatShade {
				*pl = plane{a0: provoking[a][c]}
				continue
			}
			majda := v2[a][c] - v0[a][c]
			botda := v2[a][c] - v1[a][c]
			pl.dadx = (majda*botdy - botda*majdy) / area
			pl.dady = (botda*majdx - majda*botdx) / area
			pl.a0 = v0[a][c] - pl.dadx*p0[0] - pl.dady*p0[1]
		}
	}
	return true
}

type span struct{ x0, x1 int }

func (s span) covers(x int) bool { return x >= s.x0 && x < s.x1 }

// span returns the covered pixels of row y clipped to [xmin, xmax).
func (s *setup) span(y, xmin, xmax int) span {
	if y < s.emaj.sy || y >= s.emaj.ey {
		return span{}
	}
	short := &s.ebot
	if y < s.etop.ey {
		short = &s.etop
	}
	l, rt := s.emaj.x(y), short.x(y)
	if !s.majorLeft {
		l, rt = rt, l
	}
	x0 := max((l - fixed.Int16_16Half).Ceil(), xmin)
	x1 := min((rt - fixed.Int16_16Half).Ceil(), xmax)
	if x0 >= x1 {
		return span{}
	}
	return span{x0, x1}
}

// clip returns the pixels of the current tile that may be drawn.
func (r *Rasterizer) clip() (x0, y0, x1, y1 int) {
	tx, ty, _ := r.store.Current()
	fb := r.store.Framebuffer()
	x0, y0 = tx*tile.Size, ty*tile.Size
	x1, y1 = min(x0+tile.Size, fb.Width), min(y0+tile.Size, fb.Height)
	if r.State.ScissorEnable {
		sc := r.State.Scissor
		x0, y0 = max(x0, int(sc.X0)), max(y0, int(sc.Y0))
		x1, y1 = min(x1, int(sc.X1)), min(y1, int(sc.Y1))
	}
	return
}

// Triangle draws a triangle into the current tile and reports whether any
// fragment was stored.
func (r *Rasterizer) Triangle(v0, v1, v2 *Vertex) bool {
	r.stats.Triangles++
	var s setup
	if !r.prepare(&s, v0, v1, v2) {
		return false
	}

	cx0, cy0, cx1, cy1 := r.clip()
	ystart, yend := max(s.emaj.sy, cy0), min(s.emaj.ey, cy1)
	if ystart >= yend || cx0 >= cx1 {
		return false
	}
	minx := min(v0[0][0], v1[0][0], v2[0][0])
	maxx := max(v0[0][0], v1[0][0], v2[0][0])
	if ceilHalf(maxx) <= cx0 || ceilHalf(minx) >= cx1 {
		return false
	}

	tx, ty, _ := r.store.Current()
	ox, oy := tx*tile.Size, ty*tile.Size
	drawn := false
	q := shader.Quad{Front: s.front}
	for y := ystart &^ 1; y < yend; y += 2 {
		var s0, s1 span
		if y >= ystart {
			s0 = s.span(y, cx0, cx1)
		}
		if y+1 < yend {
			s1 = s.span(y+1, cx0, cx1)
		}
		if s0.x0 == s0.x1 && s1.x0 == s1.x1 {
			continue
		}
		xs, xe := s0.x0, s0.x1
		if s0.x0 == s0.x1 {
			xs, xe = s1.x0, s1.x1
		} else if s1.x0 != s1.x1 {
			xs, xe = min(xs, s1.x0), max(xe, s1.x1)
		}
		for x := xs &^ 1; x < xe; x += 2 {
			var mask uint8
			if s0.covers(x) {
				mask |= 1
			}
			if s0.covers(x + 1) {
				mask |= 2
			}
			if s1.covers(x) {
				mask |= 4
			}
			if s1.covers(x + 1) {
				mask |= 8
			}
			if mask == 0 {
				continue
			}
			q.X, q.Y, q.Mask = x-ox, y-oy, mask
			r.interpolate(&s, &q, x, y)
			if r.emit(&q) {
				drawn = true
			}
		}
	}

	if r.Context.ColorWritten {
		r.store.MarkDirty(tile.Color)
	}
	if r.Context.DepthWritten {
		r.store.MarkDirty(tile.Depth)
	}
	r.Context.ColorWritten, r.Context.DepthWritten = false, false
	return drawn
}

// interpolate evaluates the attributes at the pixel centers of the quad
// whose top left pixel is (x, y).
func (r *Rasterizer) interpolate(s *setup, q *shader.Quad, x, y int) {
	for i := range 4 {
		if q.Mask&(1<<i) == 0 {
			continue
		}
		px := float32(x+i&1) + 0.5
		py := float32(y+i>>1) + 0.5
		for a := range r.NumAttribs {
			for c := range 4 {
				q.Attr[i][a][c] = s.planes[a][c].at(px, py)
			}
		}
		q.Attr[i][0][0], q.Attr[i][0][1] = px, py
	}
}

// emit runs the fragment operations on a quad against the current tiles.
func (r *Rasterizer) emit(q *shader.Quad) bool {
	r.stats.Quads++
	ctx := &r.Context
	if ctx.Color == nil && ctx.Framebuffer.ColorAddr != 0 {
		ctx.Color = r.store.Tile(tile.Color)
	}
	if ctx.Depth == nil && ctx.Framebuffer.HasDepth() {
		ctx.Depth = r.store.Tile(tile.Depth)
	}
	r.Ops.Run(ctx, q)
	return q.Mask != 0
}

// BeginTile makes (tx, ty) the current tile of the store.
func (r *Rasterizer) BeginTile(tx, ty int) {
	r.store.Begin(tx, ty)
	r.Context.Color, r.Context.Depth = nil, nil
}

// EndTile finishes the current tile.
func (r *Rasterizer) EndTile() {
	r.Context.Color, r.Context.Depth = nil, nil
	r.store.End()
}
