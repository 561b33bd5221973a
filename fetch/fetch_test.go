package fetch

import (
	"bytes"
	"testing"

	"github.com/clktmr/tileraster/dma"
	"github.com/clktmr/tileraster/mainmem"
)

func newCache(t *testing.T) (*Cache, *mainmem.Memory, mainmem.Addr) {
	t.Helper()
	mem := mainmem.New(64 << 10)
	base := mem.MustAlloc(4096, LineSize)
	buf := mem.Bytes(base, 4096)
	for i := range buf {
		buf[i] = byte(i*7 + i>>8)
	}
	return New(dma.New(mem)), mem, base
}

func TestFetchUnalignedMatchesCopy(t *testing.T) {
	c, mem, base := newCache(t)
	for shift := range 16 {
		for size := 1; size <= 130; size++ {
			ea := base + 256 + mainmem.Addr(shift)
			dst := make([]byte, mainmem.RoundUp(size, 16))
			for i := range dst {
				dst[i] = 0xaa
			}
			c.FetchUnaligned(dst, ea, size)

			want := mem.Bytes(ea, size)
			if !bytes.Equal(dst[:size], want) {
				t.Fatalf("shift %d size %d: got %x, expected %x", shift, size, dst[:size], want)
			}
			for i, b := range dst[size:] {
				if b != 0 {
					t.Fatalf("shift %d size %d: tail byte %d not zeroed", shift, size, i)
				}
			}
		}
	}
}

func TestFetchAcrossLines(t *testing.T) {
	c, mem, base := newCache(t)
	ea := base + LineSize - 3
	dst := make([]byte, 32)
	c.FetchUnaligned(dst, ea, 20)
	if !bytes.Equal(dst[:20], mem.Bytes(ea, 20)) {
		t.Fatal("data spanning two lines differs")
	}
	if s := c.Stats(); s.Misses != 2 {
		t.Fatalf("expected 2 line fills, got %d", s.Misses)
	}
}

func TestMarkDirty(t *testing.T) {
	c, mem, base := newCache(t)
	addr := base + 200
	dst := make([]byte, 16)

	c.FetchUnaligned(dst, addr, 4)
	old := append([]byte(nil), dst[:4]...)

	// Main memory changes behind the cache's back.
	copy(mem.Bytes(addr, 4), []byte{0xde, 0xad, 0xbe, 0xef})
	c.FetchUnaligned(dst, addr, 4)
	if !bytes.Equal(dst[:4], old) {
		t.Fatal("cache is expected to return stale data before invalidation")
	}

	c.MarkDirty(addr+2, 1)
	c.FetchUnaligned(dst, addr, 4)
	if !bytes.Equal(dst[:4], []byte{0xde, 0xad, 0xbe, 0xef}) {
		t.Fatalf("stale data after MarkDirty: %x", dst[:4])
	}
}

func TestMarkDirtyKeepsOtherLines(t *testing.T) {
	c, _, base := newCache(t)
	dst := make([]byte, 16)
	c.FetchUnaligned(dst, base, 16)
	c.FetchUnaligned(dst, base+4*LineSize, 16)
	c.MarkDirty(base+4*LineSize+8, 8)

	misses := c.Stats().Misses
	c.FetchUnaligned(dst, base, 16)
	if c.Stats().Misses != misses {
		t.Fatal("unrelated line was invalidated")
	}
	c.FetchUnaligned(dst, base+4*LineSize, 16)
	if c.Stats().Misses != misses+1 {
		t.Fatal("dirty line wasn't refetched")
	}
}

func TestAssociativity(t *testing.T) {
	c, _, _ := newCache(t)
	dst := make([]byte, 16)
	// Ways+1 lines mapping to the same set evict the oldest.
	stride := mainmem.Addr(NumSets * LineSize)
	for i := range Ways + 1 {
		c.FetchUnaligned(dst, mainmem.Addr(i)*stride+LineSize, 16)
	}
	misses := c.Stats().Misses
	c.FetchUnaligned(dst, LineSize, 16)
	if c.Stats().Misses != misses+1 {
		t.Fatal("expected oldest line to be evicted")
	}
	c.FetchUnaligned(dst, mainmem.Addr(Ways)*stride+LineSize, 16)
	if c.Stats().Misses != misses+1 {
		t.Fatal("expected newest line to be cached")
	}
}
