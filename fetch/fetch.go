// Package fetch implements a small read-only cache through which a worker
// reads arbitrary, unaligned ranges of main memory, e.g. vertex data.
//
// The cache isn't coherent with main memory.  Ranges that may have changed
// since they were cached must be invalidated explicitly with MarkDirty.
package fetch

import (
	"github.com/clktmr/tileraster/debug"
	"github.com/clktmr/tileraster/dma"
	"github.com/clktmr/tileraster/mainmem"
)

const (
	LineSize     = 128
	log2LineSize = 7
	NumSets      = 64
	Ways         = 4
)

// Tag is the DMA tag used for line fills.
const Tag dma.Tag = 4

// Qword is the 16 byte unit data is assembled in.
type Qword [mainmem.QwordSize]byte

type line struct {
	addr  mainmem.Addr
	valid bool
	data  [LineSize]byte
}

type set struct {
	ways [Ways]line
	next int // round robin victim
}

type Stats struct {
	Hits, Misses, Invalidations int
}

// Cache is a set associative read-only cache over main memory.  It must only
// be used by the worker owning the DMA engine.
type Cache struct {
	dma   *dma.Engine
	sets  [NumSets]set
	stats Stats
}

func New(e *dma.Engine) *Cache {
	return &Cache{dma: e}
}

func (c *Cache) Stats() Stats { return c.stats }

func (c *Cache) line(addr mainmem.Addr) *line {
	la := mainmem.AlignDown(addr, LineSize)
	s := &c.sets[(la>>log2LineSize)%NumSets]
	for i := range s.ways {
		if l := &s.ways[i]; l.valid && l.addr == la {
			c.stats.Hits++
			return l
		}
	}

	c.stats.Misses++
	l := &s.ways[s.next]
	s.next = (s.next + 1) % Ways
	l.addr, l.valid = la, true
	n := LineSize
	if end := c.dma.Memory().Size(); int(la)+n > end {
		n = end - int(la)
	}
	c.dma.GetSync(l.data[:n], la, Tag)
	return l
}

// Qword returns the aligned qword at addr.
func (c *Cache) Qword(addr mainmem.Addr) (q Qword) {
	debug.AssertAligned(uint32(addr), mainmem.QwordSize, "fetch: qword address")
	l := c.line(addr)
	off := int(addr - l.addr)
	copy(q[:], l.data[off:off+mainmem.QwordSize])
	return
}

// merge returns the qword starting shift bytes into a, continuing with b.
func merge(a, b Qword, shift int) (q Qword) {
	copy(q[:], a[shift:])
	copy(q[mainmem.QwordSize-shift:], b[:shift])
	return
}

// FetchUnaligned copies size bytes starting at ea into dst.  dst must have
// room for size rounded up to a qword, the bytes following size are zeroed.
func (c *Cache) FetchUnaligned(dst []byte, ea mainmem.Addr, size int) {
	padded := mainmem.RoundUp(size, mainmem.QwordSize)
	debug.Assert(len(dst) >= padded, "fetch: destination too small")

	shift := int(ea & (mainmem.QwordSize - 1))
	base := mainmem.AlignDown(ea, mainmem.QwordSize)
	end := ea + mainmem.Addr(size)
	n := padded / mainmem.QwordSize

	if shift == 0 {
		for i := range n {
			q := c.Qword(base + mainmem.Addr(i*mainmem.QwordSize))
			copy(dst[i*mainmem.QwordSize:], q[:])
		}
	} else {
		cur := c.Qword(base)
		for i := range n {
			var next Qword
			if na := base + mainmem.Addr((i+1)*mainmem.QwordSize); na < end {
				next = c.Qword(na)
			}
			q := merge(cur, next, shift)
			copy(dst[i*mainmem.QwordSize:], q[:])
			cur = next
		}
	}
	clear(dst[size:padded])
}

// MarkDirty invalidates all cached lines overlapping [addr, addr+size).
func (c *Cache) MarkDirty(addr mainmem.Addr, size int) {
	lo := mainmem.AlignDown(addr, LineSize)
	hi := mainmem.AlignUp(addr+mainmem.Addr(size), mainmem.QwordSize)
	for si := range c.sets {
		for wi := range c.sets[si].ways {
			l := &c.sets[si].ways[wi]
			if l.valid && l.addr >= lo && l.addr < hi {
				l.valid = false
				c.stats.Invalidations++
			}
		}
	}
}

// InvalidateAll drops every cached line.
func (c *Cache) InvalidateAll() {
	for si := range c.sets {
		for wi := range c.sets[si].ways {
			c.sets[si].ways[wi].valid = false
		}
	}
}
