package tile

import (
	"encoding/binary"
	"testing"

	"github.com/clktmr/tileraster/dma"
	"github.com/clktmr/tileraster/mainmem"
	"github.com/clktmr/tileraster/pixel"
)

func TestTileAccessors(t *testing.T) {
	var tl Tile
	tl.SetU32(3, 2, 0xdeadbeef)
	if got := tl.U32(3, 2); got != 0xdeadbeef {
		t.Fatalf("got %#x", got)
	}
	if got := binary.LittleEndian.Uint32(tl[(2*Size+3)*4:]); got != 0xdeadbeef {
		t.Fatalf("unexpected layout, got %#x", got)
	}
	tl.SetU16(31, 31, 0xabcd)
	if got := tl.Pixel(31, 31, 2); got != 0xabcd {
		t.Fatalf("got %#x", got)
	}

	tl.Fill(2, 0x1234)
	for i := 0; i < Size*Size; i++ {
		if got := tl.U16(i%Size, i/Size); got != 0x1234 {
			t.Fatalf("pixel %d: got %#x", i, got)
		}
	}
	tl.Fill(4, 0xff00ff00)
	if got := tl.U32(Size-1, Size-1); got != 0xff00ff00 {
		t.Fatalf("got %#x", got)
	}
}

func TestOwner(t *testing.T) {
	// 4x1 tiles, two workers
	owners := []int{0, 1, 0, 1}
	for tx, want := range owners {
		if got := Owner(tx, 0, 4, 2); got != want {
			t.Errorf("tile %d: expected owner %d, got %d", tx, want, got)
		}
	}
	// 3 wide grid, round robin continues on the next row
	if got := Owner(0, 1, 3, 2); got != 1 {
		t.Errorf("expected owner 1, got %d", got)
	}
}

func TestNewFramebuffer(t *testing.T) {
	tests := map[string]struct {
		w, h   int
		wt, ht int
	}{
		"exact":   {64, 64, 2, 2},
		"partial": {65, 31, 3, 1},
		"tiny":    {1, 1, 1, 1},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			fb := NewFramebuffer(0x1000, 0, pixel.A8R8G8B8, pixel.Z16, tc.w, tc.h)
			if fb.WidthTiles != tc.wt || fb.HeightTiles != tc.ht {
				t.Fatalf("expected %dx%d tiles, got %dx%d", tc.wt, tc.ht, fb.WidthTiles, fb.HeightTiles)
			}
			if fb.HasDepth() {
				t.Fatal("framebuffer without depth address has depth")
			}
		})
	}
	fb := NewFramebuffer(0x1000, 0x8000, pixel.A8R8G8B8, pixel.Z16, 64, 64)
	if got := fb.TileAddr(Color, 1, 1); got != 0x1000+3*4096 {
		t.Errorf("color tile address %#x", got)
	}
	if got := fb.TileAddr(Depth, 1, 0); got != 0x8000+2048 {
		t.Errorf("depth tile address %#x", got)
	}
}

type storeFixture struct {
	mem   *mainmem.Memory
	store *Store
	trace []dma.Transfer
}

func newStoreFixture(t *testing.T, id, n, w, h int, df pixel.DepthFormat) *storeFixture {
	t.Helper()
	f := &storeFixture{mem: mainmem.New(1 << 20)}
	e := dma.New(f.mem, dma.WithTrace(func(tr dma.Transfer) { f.trace = append(f.trace, tr) }))
	probe := NewFramebuffer(1, 1, pixel.A8R8G8B8, df, w, h)
	color := f.mem.MustAlloc(probe.SurfaceSize(Color), 128)
	var depth mainmem.Addr
	if df != pixel.DepthNone {
		depth = f.mem.MustAlloc(probe.SurfaceSize(Depth), 128)
	}
	fb := NewFramebuffer(color, depth, pixel.A8R8G8B8, df, w, h)
	f.store = NewStore(e, id, n)
	f.store.SetFramebuffer(fb)
	return f
}

func (f *storeFixture) colorTile(tx, ty int) []byte {
	fb := f.store.Framebuffer()
	return f.mem.Bytes(fb.TileAddr(Color, tx, ty), fb.BytesPerTile(Color))
}

func solid(buf []byte, v uint32) bool {
	for i := 0; i < len(buf); i += 4 {
		if binary.LittleEndian.Uint32(buf[i:]) != v {
			return false
		}
	}
	return true
}

func TestLazyClear(t *testing.T) {
	f := newStoreFixture(t, 0, 1, 64, 64, pixel.DepthNone)
	s := f.store

	s.Clear(Color, 0xff00ff00)
	if len(f.trace) != 0 {
		t.Fatal("clear must not transfer anything")
	}
	for ty := range 2 {
		for tx := range 2 {
			if st := s.Status(Color, tx, ty); st != Clear {
				t.Fatalf("tile (%d,%d) is %v", tx, ty, st)
			}
		}
	}

	// Touch tile (0,0) without modifying it: no fetch, no write back.
	s.Begin(0, 0)
	if got := s.Tile(Color).U32(5, 5); got != 0xff00ff00 {
		t.Fatalf("clear tile not synthesized, got %#x", got)
	}
	s.End()
	if st := s.Status(Color, 0, 0); st != Clear {
		t.Fatalf("untouched clear tile became %v", st)
	}
	if len(f.trace) != 0 {
		t.Fatalf("unexpected transfers %v", f.trace)
	}

	// Modify tile (1,0)
	s.Begin(1, 0)
	s.Tile(Color).SetU32(0, 0, 0x12345678)
	s.MarkDirty(Color)
	if st := s.Status(Color, 1, 0); st != Dirty {
		t.Fatalf("expected DIRTY, got %v", st)
	}
	s.End()
	if st := s.Status(Color, 1, 0); st != Defined {
		t.Fatalf("expected DEFINED, got %v", st)
	}

	s.Flush()
	for ty := range 2 {
		for tx := range 2 {
			if st := s.Status(Color, tx, ty); st != Defined {
				t.Errorf("tile (%d,%d) is %v after flush", tx, ty, st)
			}
		}
	}
	for _, c := range [][2]int{{0, 0}, {0, 1}, {1, 1}} {
		if !solid(f.colorTile(c[0], c[1]), 0xff00ff00) {
			t.Errorf("tile %v not materialized", c)
		}
	}
	got := f.colorTile(1, 0)
	if binary.LittleEndian.Uint32(got) != 0x12345678 || !solid(got[4:], 0xff00ff00) {
		t.Error("rendered tile corrupted")
	}
	if stats := s.Stats(); stats.Materialized[Color] != 3 || stats.Gets[Color] != 0 {
		t.Errorf("unexpected stats %+v", stats)
	}
}

func TestFetchOnDefined(t *testing.T) {
	f := newStoreFixture(t, 0, 1, 32, 32, pixel.DepthNone)
	s := f.store
	copy(f.colorTile(0, 0), []byte{1, 2, 3, 4})

	s.Begin(0, 0)
	if st := s.Status(Color, 0, 0); st != Getting {
		t.Fatalf("expected GETTING, got %v", st)
	}
	if got := s.Tile(Color).U32(0, 0); got != 0x04030201 {
		t.Fatalf("got %#x", got)
	}
	if st := s.Status(Color, 0, 0); st != Clean {
		t.Fatalf("expected CLEAN, got %v", st)
	}
	s.End()
	if st := s.Status(Color, 0, 0); st != Defined {
		t.Fatalf("expected DEFINED, got %v", st)
	}
	s.Flush()
	if n := s.Stats().Puts[Color]; n != 0 {
		t.Fatalf("unmodified tile written back %d times", n)
	}
}

func TestOwnership(t *testing.T) {
	f := newStoreFixture(t, 0, 2, 128, 32, pixel.Z16)
	s := f.store
	for tx := range 4 {
		if s.Owns(tx, 0) != (tx%2 == 0) {
			t.Fatalf("tile %d: wrong ownership", tx)
		}
	}
	s.Clear(Color, 0)
	s.Clear(Depth, 0xffff)
	s.Flush()

	fb := s.Framebuffer()
	for _, tr := range f.trace {
		surf, base := Color, fb.ColorAddr
		if tr.EA >= fb.DepthAddr {
			surf, base = Depth, fb.DepthAddr
		}
		idx := int(tr.EA-base) / fb.BytesPerTile(surf)
		if idx != 0 && idx != 2 {
			t.Errorf("worker 0 transferred %v tile %d", surf, idx)
		}
	}
	if len(f.trace) != 4 {
		t.Errorf("expected 4 transfers, got %d", len(f.trace))
	}
}
