// Package dma implements the tagged asynchronous bulk transfers a worker uses
// to move data between its local memory and main memory.
//
// Transfers are issued with a tag.  Completion can only be observed per tag
// group, by waiting on a mask of tags.  Transfers in the same group are not
// ordered relative to each other.
package dma

import (
	"fmt"
	"math/bits"
	"sync"

	"github.com/clktmr/tileraster/debug"
	"github.com/clktmr/tileraster/mainmem"
)

// Tag identifies a group of transfers.
type Tag uint8

const NumTags = 32

// MaxTransferSize is the largest size of a single transfer.
const MaxTransferSize = 16 << 10

// Mask returns the tag mask selecting all given tags.
func Mask(tags ...Tag) uint32 {
	var m uint32
	for _, t := range tags {
		m |= 1 << t
	}
	return m
}

// AllTags selects every tag group.
const AllTags = ^uint32(0)

type Kind uint8

const (
	Get Kind = iota // main memory to local memory
	Put             // local memory to main memory
)

func (k Kind) String() string {
	if k == Get {
		return "GET"
	}
	return "PUT"
}

// Transfer describes an issued transfer, as passed to a trace function.
type Transfer struct {
	Kind Kind
	EA   mainmem.Addr
	Size int
	Tag  Tag
}

func (t Transfer) String() string {
	return fmt.Sprintf("%v ea=%#x size=%d tag=%d", t.Kind, t.EA, t.Size, t.Tag)
}

type Stats struct {
	Gets, Puts          int
	BytesIn, BytesOut   int
	Waits, BlockedWaits int
}

type Option func(*Engine)

// WithTrace calls fn for every transfer at the time it is issued.  fn is
// called from the issuing goroutine.
func WithTrace(fn func(Transfer)) Option {
	return func(e *Engine) { e.trace = fn }
}

// Engine issues transfers on behalf of a single worker.  It must only be used
// from that worker's goroutine.
type Engine struct {
	mem   *mainmem.Memory
	trace func(Transfer)

	mtx     sync.Mutex
	idle    *sync.Cond
	pending [NumTags]int
	stats   Stats
}

func New(mem *mainmem.Memory, opts ...Option) *Engine {
	e := &Engine{mem: mem}
	e.idle = sync.NewCond(&e.mtx)
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) Memory() *mainmem.Memory { return e.mem }

// Get starts copying len(local) bytes from main memory at ea into local.
// local must not be accessed until the tag group was waited for.
func (e *Engine) Get(local []byte, ea mainmem.Addr, tag Tag) {
	e.issue(Transfer{Get, ea, len(local), tag}, local)
}

// Put starts copying local to main memory at ea.  local must not be modified
// until the tag group was waited for.
func (e *Engine) Put(local []byte, ea mainmem.Addr, tag Tag) {
	e.issue(Transfer{Put, ea, len(local), tag}, local)
}

func checkAlignment(t Transfer) {
	if !debug.Enabled {
		return
	}
	switch t.Size {
	case 1, 2, 4, 8:
		debug.AssertAligned(uint32(t.EA), uint32(t.Size), "dma: small transfer address")
	default:
		debug.AssertAligned(uint32(t.EA), mainmem.QwordSize, "dma: address")
		debug.AssertAligned(uint32(t.Size), mainmem.QwordSize, "dma: size")
	}
	debug.Assertf(t.Size <= MaxTransferSize, "dma: transfer of %d bytes too large", t.Size)
	debug.Assertf(t.Tag < NumTags, "dma: invalid tag %d", t.Tag)
}

func (e *Engine) issue(t Transfer, local []byte) {
	checkAlignment(t)
	if t.Size == 0 {
		return
	}
	if int64(t.EA)+int64(t.Size) > int64(e.mem.Size()) {
		panic(fmt.Sprintf("dma: %v out of bounds", t))
	}

	e.mtx.Lock()
	e.pending[t.Tag]++
	if t.Kind == Get {
		e.stats.Gets++
		e.stats.BytesIn += t.Size
	} else {
		e.stats.Puts++
		e.stats.BytesOut += t.Size
	}
	e.mtx.Unlock()

	if e.trace != nil {
		e.trace(t)
	}

	go func() {
		if t.Kind == Get {
			e.mem.ReadAt(local, int64(t.EA))
		} else {
			e.mem.WriteAt(local, int64(t.EA))
		}

		e.mtx.Lock()
		e.pending[t.Tag]--
		if e.pending[t.Tag] == 0 {
			e.idle.Broadcast()
		}
		e.mtx.Unlock()
	}()
}

// idleMask returns the subset of mask whose tag groups have no outstanding
// transfers.  Must be called with mtx held.
func (e *Engine) idleMask(mask uint32) (idle uint32) {
	for m := mask; m != 0; m &= m - 1 {
		tag := bits.TrailingZeros32(m)
		if e.pending[tag] == 0 {
			idle |= 1 << tag
		}
	}
	return
}

// WaitOnMask blocks until at least one tag group in mask has no outstanding
// transfers and returns the mask of those groups.
func (e *Engine) WaitOnMask(mask uint32) uint32 {
	e.mtx.Lock()
	defer e.mtx.Unlock()
	e.stats.Waits++
	blocked := false
	for {
		if idle := e.idleMask(mask); idle != 0 {
			if blocked {
				e.stats.BlockedWaits++
			}
			return idle
		}
		blocked = true
		e.idle.Wait()
	}
}

// WaitOnMaskAll blocks until every tag group in mask has no outstanding
// transfers.
func (e *Engine) WaitOnMaskAll(mask uint32) {
	e.mtx.Lock()
	defer e.mtx.Unlock()
	e.stats.Waits++
	blocked := false
	for e.idleMask(mask) != mask {
		blocked = true
		e.idle.Wait()
	}
	if blocked {
		e.stats.BlockedWaits++
	}
}

// Pending returns the number of outstanding transfers in a tag group.
func (e *Engine) Pending(tag Tag) int {
	e.mtx.Lock()
	defer e.mtx.Unlock()
	return e.pending[tag]
}

func (e *Engine) Stats() Stats {
	e.mtx.Lock()
	defer e.mtx.Unlock()
	return e.stats
}

// GetSync is a Get immediately followed by a wait on its tag.
func (e *Engine) GetSync(local []byte, ea mainmem.Addr, tag Tag) {
	e.Get(local, ea, tag)
	e.WaitOnMaskAll(Mask(tag))
}

// PutSync is a Put immediately followed by a wait on its tag.
func (e *Engine) PutSync(local []byte, ea mainmem.Addr, tag Tag) {
	e.Put(local, ea, tag)
	e.WaitOnMaskAll(Mask(tag))
}
