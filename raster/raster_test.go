package raster

import (
	"encoding/binary"
	"fmt"
	"testing"

	"github.com/clktmr/tileraster/dma"
	"github.com/clktmr/tileraster/mainmem"
	"github.com/clktmr/tileraster/pixel"
	"github.com/clktmr/tileraster/shader"
	"github.com/clktmr/tileraster/tile"
)

type fixture struct {
	mem   *mainmem.Memory
	store *tile.Store
	r     *Rasterizer
	fb    tile.Framebuffer
}

func newFixture(t *testing.T, w, h int, df pixel.DepthFormat) *fixture {
	t.Helper()
	mem := mainmem.New(1 << 20)
	probe := tile.NewFramebuffer(1, 1, pixel.A8R8G8B8, df, w, h)
	color := mem.MustAlloc(probe.SurfaceSize(tile.Color), 64)
	var depth mainmem.Addr
	if df != pixel.DepthNone {
		depth = mem.MustAlloc(probe.SurfaceSize(tile.Depth), 64)
	}
	fb := tile.NewFramebuffer(color, depth, pixel.A8R8G8B8, df, w, h)
	store := tile.NewStore(dma.New(mem), 0, 1)
	store.SetFramebuffer(fb)
	return &fixture{mem: mem, store: store, r: New(store), fb: fb}
}

func vtx(x, y, z float32, c pixel.Color) *Vertex {
	var v Vertex
	v[0] = [4]float32{x, y, z, 1}
	v[1] = c
	return &v
}

// coverage counts how often each pixel reaches the fragment operations.
type coverage struct {
	store *tile.Store
	count map[[2]int]int
}

func (c *coverage) Run(_ *shader.QuadContext, q *shader.Quad) {
	tx, ty, _ := c.store.Current()
	for i := range 4 {
		if q.Mask&(1<<i) != 0 {
			x, y := q.Pos(i)
			c.count[[2]int{tx*tile.Size + x, ty*tile.Size + y}]++
		}
	}
}

func (f *fixture) eachTile(fn func()) {
	for ty := range f.fb.HeightTiles {
		for tx := range f.fb.WidthTiles {
			f.r.BeginTile(tx, ty)
			fn()
			f.r.EndTile()
		}
	}
}

func TestSharedEdges(t *testing.T) {
	const n, step = 6, 16
	size := (n - 1) * step

	// A grid of jittered points whose border stays on the rectangle.
	var pts [n][n][2]float32
	seed := uint32(1)
	rnd := func() float32 {
		seed = seed*1664525 + 1013904223
		return float32(seed>>8)/(1<<24)*6 - 3
	}
	for j := range n {
		for i := range n {
			x, y := float32(i*step), float32(j*step)
			if i > 0 && i < n-1 {
				x += rnd()
			}
			if j > 0 && j < n-1 {
				y += rnd()
			}
			pts[j][i] = [2]float32{x, y}
		}
	}

	for _, flip := range []bool{false, true} {
		t.Run(fmt.Sprintf("flip=%v", flip), func(t *testing.T) {
			f := newFixture(t, size, size, pixel.DepthNone)
			cov := &coverage{f.store, map[[2]int]int{}}
			f.r.Ops = cov

			tri := func(a, b, c [2]float32) {
				if flip {
					a, b = b, a
				}
				f.r.Triangle(vtx(a[0], a[1], 0, pixel.Color{}), vtx(b[0], b[1], 0, pixel.Color{}), vtx(c[0], c[1], 0, pixel.Color{}))
			}
			f.eachTile(func() {
				for j := range n - 1 {
					for i := range n - 1 {
						p00, p10 := pts[j][i], pts[j][i+1]
						p01, p11 := pts[j+1][i], pts[j+1][i+1]
						if (i+j)&1 == 0 {
							tri(p00, p10, p11)
							tri(p00, p11, p01)
						} else {
							tri(p00, p10, p01)
							tri(p10, p11, p01)
						}
					}
				}
			})

			for y := range size {
				for x := range size {
					if c := cov.count[[2]int{x, y}]; c != 1 {
						t.Fatalf("pixel (%d,%d) covered %d times", x, y, c)
					}
				}
			}
			if len(cov.count) != size*size {
				t.Fatalf("%d pixels outside the rectangle covered", len(cov.count)-size*size)
			}
		})
	}
}

func TestFillConvention(t *testing.T) {
	tests := map[string]struct {
		v    [3][2]float32
		want int
	}{
		"corner":             {[3][2]float32{{0, 0}, {4, 0}, {0, 4}}, 6},
		"pixel centers":      {[3][2]float32{{0.5, 0.5}, {4.5, 0.5}, {0.5, 4.5}}, 10},
		"thin sliver":        {[3][2]float32{{0, 0}, {8, 0.2}, {0, 0.4}}, 0},
		"outside tile":       {[3][2]float32{{40, 40}, {50, 40}, {40, 50}}, 0},
		"degenerate":         {[3][2]float32{{0, 0}, {4, 4}, {8, 8}}, 0},
		"negative":           {[3][2]float32{{-8, -8}, {12, -8}, {-8, 12}}, 6},
		"clipped right edge": {[3][2]float32{{30, 0}, {40, 0}, {30, 10}}, 2 + 2 + 2 + 2 + 2 + 2 + 2 + 2 + 1 + 0},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t, 32, 32, pixel.DepthNone)
			cov := &coverage{f.store, map[[2]int]int{}}
			f.r.Ops = cov
			f.r.BeginTile(0, 0)
			v := tc.v
			f.r.Triangle(vtx(v[0][0], v[0][1], 0, pixel.Color{}), vtx(v[1][0], v[1][1], 0, pixel.Color{}), vtx(v[2][0], v[2][1], 0, pixel.Color{}))
			f.r.EndTile()
			if len(cov.count) != tc.want {
				t.Fatalf("covered %d pixels, want %d", len(cov.count), tc.want)
			}
		})
	}
}

func TestCulling(t *testing.T) {
	// Counter-clockwise on screen.
	ccw := [3]*Vertex{vtx(0, 0, 0, pixel.Color{}), vtx(0, 8, 0, pixel.Color{}), vtx(8, 0, 0, pixel.Color{})}
	tests := map[string]struct {
		cull  CullMode
		front Winding
		order [3]int
		drawn bool
	}{
		"none":             {CullNone, CCW, [3]int{0, 1, 2}, true},
		"back ccw":         {CullBack, CCW, [3]int{0, 1, 2}, true},
		"back cw":          {CullBack, CCW, [3]int{0, 2, 1}, false},
		"front ccw":        {CullFront, CCW, [3]int{0, 1, 2}, false},
		"front cw, cw":     {CullFront, CW, [3]int{0, 2, 1}, false},
		"back cw, cw":      {CullBack, CW, [3]int{0, 2, 1}, true},
		"rotated back ccw": {CullBack, CCW, [3]int{1, 2, 0}, true},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t, 32, 32, pixel.DepthNone)
			f.r.State.Cull, f.r.State.FrontFace = tc.cull, tc.front
			f.r.BeginTile(0, 0)
			drawn := f.r.Triangle(ccw[tc.order[0]], ccw[tc.order[1]], ccw[tc.order[2]])
			f.r.EndTile()
			if drawn != tc.drawn {
				t.Fatalf("drawn %v, want %v", drawn, tc.drawn)
			}
		})
	}
}

func TestInterpolation(t *testing.T) {
	f := newFixture(t, 32, 32, pixel.DepthNone)
	// Red rises with x, green with y.
	v0 := vtx(0, 0, 0, pixel.Color{0, 0, 0, 1})
	v1 := vtx(32, 0, 0, pixel.Color{1, 0, 0, 1})
	v2 := vtx(0, 32, 0, pixel.Color{0, 1, 0, 1})
	f.r.BeginTile(0, 0)
	f.r.Triangle(v0, v1, v2)
	tl := f.store.Tile(tile.Color)
	got := pixel.Unpack(pixel.A8R8G8B8, tl.U32(7, 3))
	f.r.EndTile()
	want := pixel.Unpack(pixel.A8R8G8B8, pixel.Pack(pixel.A8R8G8B8, pixel.Color{7.5 / 32, 3.5 / 32, 0, 1}))
	if got != want {
		t.Fatalf("got %v, want %v", got, want)
	}

	// Flat shading takes the last vertex.
	f.r.State.FlatShade = true
	f.r.BeginTile(0, 0)
	f.r.Triangle(v0, v1, v2)
	tl = f.store.Tile(tile.Color)
	p := tl.U32(1, 1)
	f.r.EndTile()
	if p != pixel.Pack(pixel.A8R8G8B8, v2[1]) {
		t.Fatalf("flat: got %#08x", p)
	}
}

func fillDepth(f *fixture, z float32) {
	buf := f.mem.Bytes(f.fb.DepthAddr, f.fb.SurfaceSize(tile.Depth))
	v := uint16(pixel.PackDepth(pixel.Z16, z))
	for i := 0; i < len(buf); i += 2 {
		binary.LittleEndian.PutUint16(buf[i:], v)
	}
}

func TestDepthScenario(t *testing.T) {
	f := newFixture(t, 32, 32, pixel.Z16)
	fillDepth(f, 0.5)
	f.r.Context.DepthStencil = shader.DepthStencil{DepthTest: true, DepthWrite: true, DepthFunc: shader.Less}
	blue := pixel.Color{0, 0, 1, 1}
	quad := func(z float32) bool {
		a := f.r.Triangle(vtx(0, 0, z, blue), vtx(32, 0, z, blue), vtx(32, 32, z, blue))
		b := f.r.Triangle(vtx(0, 0, z, blue), vtx(32, 32, z, blue), vtx(0, 32, z, blue))
		return a && b
	}

	f.r.BeginTile(0, 0)
	if !quad(0.25) {
		t.Fatal("nearer quad not drawn")
	}
	for _, s := range []tile.Surface{tile.Color, tile.Depth} {
		if st := f.store.Status(s, 0, 0); st != tile.Dirty {
			t.Fatalf("%v tile is %v, want dirty", s, st)
		}
	}
	f.r.EndTile()
	f.store.Flush()
	color := f.mem.Bytes(f.fb.ColorAddr, 4096)
	for i := 0; i < len(color); i += 4 {
		if p := binary.LittleEndian.Uint32(color[i:]); p != 0xff0000ff {
			t.Fatalf("pixel %d is %#08x", i/4, p)
		}
	}
	puts := f.store.Stats().Puts

	f.r.BeginTile(0, 0)
	if quad(0.75) {
		t.Fatal("farther quad drawn")
	}
	f.r.EndTile()
	f.store.Flush()
	for _, s := range []tile.Surface{tile.Color, tile.Depth} {
		if st := f.store.Status(s, 0, 0); st != tile.Defined {
			t.Fatalf("%v tile is %v, want defined", s, st)
		}
	}
	if got := f.store.Stats().Puts; got != puts {
		t.Fatalf("puts %v, want %v", got, puts)
	}
	depth := f.mem.Bytes(f.fb.DepthAddr, 2048)
	if z := binary.LittleEndian.Uint16(depth[100:]); uint32(z) != pixel.PackDepth(pixel.Z16, 0.25) {
		t.Fatalf("depth %#x", z)
	}
}

func TestAssemble(t *testing.T) {
	tests := map[string]struct {
		prim Primitive
		n    int
		want [][3]int
	}{
		"list":  {Triangles, 7, [][3]int{{0, 1, 2}, {3, 4, 5}}},
		"strip": {TriangleStrip, 5, [][3]int{{0, 1, 2}, {2, 1, 3}, {2, 3, 4}}},
		"fan":   {TriangleFan, 5, [][3]int{{0, 1, 2}, {0, 2, 3}, {0, 3, 4}}},
		"short": {TriangleStrip, 2, nil},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			var got [][3]int
			Assemble(tc.prim, tc.n, func(a, b, c int) { got = append(got, [3]int{a, b, c}) })
			if fmt.Sprint(got) != fmt.Sprint(tc.want) {
				t.Fatalf("got %v, want %v", got, tc.want)
			}
		})
	}
}
